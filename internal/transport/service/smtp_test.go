package service

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tdomain "github.com/corvusHold/courier/internal/transport/domain"
)

func parseMessage(t *testing.T, raw []byte) *mail.Message {
	t.Helper()
	m, err := mail.ReadMessage(bufio.NewReader(bytes.NewReader(raw)))
	require.NoError(t, err)
	return m
}

func TestBuildMIME_PlainText(t *testing.T) {
	env := tdomain.Envelope{
		From:     "noreply@example.com",
		To:       "a@example.com",
		Subject:  "hello",
		TextBody: "plain body",
	}
	raw, err := buildMIME(env, "<id@host>")
	require.NoError(t, err)

	m := parseMessage(t, raw)
	assert.Equal(t, "noreply@example.com", m.Header.Get("From"))
	assert.Equal(t, "a@example.com", m.Header.Get("To"))
	assert.Equal(t, "<id@host>", m.Header.Get("Message-ID"))
	assert.Equal(t, "1.0", m.Header.Get("Mime-Version"))
	assert.Contains(t, m.Header.Get("Content-Type"), "text/plain")

	body, _ := io.ReadAll(m.Body)
	assert.Contains(t, string(body), "plain body")
}

func TestBuildMIME_AlternativeBodies(t *testing.T) {
	env := tdomain.Envelope{
		From:     "noreply@example.com",
		To:       "a@example.com",
		Subject:  "hello",
		TextBody: "text variant",
		HTMLBody: "<p>html variant</p>",
	}
	raw, err := buildMIME(env, "<id@host>")
	require.NoError(t, err)

	m := parseMessage(t, raw)
	mediaType, params, err := mime.ParseMediaType(m.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(m.Body, params["boundary"])
	var types []string
	var bodies []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, _ := io.ReadAll(p)
		types = append(types, p.Header.Get("Content-Type"))
		bodies = append(bodies, string(b))
	}
	require.Len(t, types, 2)
	assert.Contains(t, types[0], "text/plain")
	assert.Contains(t, types[1], "text/html", "html last so clients prefer it")
	assert.Equal(t, "text variant", bodies[0])
	assert.Equal(t, "<p>html variant</p>", bodies[1])
}

func TestBuildMIME_AttachmentsWrapInMixed(t *testing.T) {
	env := tdomain.Envelope{
		From:     "noreply@example.com",
		To:       "a@example.com",
		Subject:  "hello",
		TextBody: "see attached",
		Attachments: []tdomain.Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("%PDF-fake")},
		},
	}
	raw, err := buildMIME(env, "<id@host>")
	require.NoError(t, err)

	m := parseMessage(t, raw)
	mediaType, params, err := mime.ParseMediaType(m.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)

	mr := multipart.NewReader(m.Body, params["boundary"])

	// first part carries the bodies
	_, err = mr.NextPart()
	require.NoError(t, err)

	att, err := mr.NextPart()
	require.NoError(t, err)
	assert.Contains(t, att.Header.Get("Content-Disposition"), `filename="report.pdf"`)
	assert.Equal(t, "base64", att.Header.Get("Content-Transfer-Encoding"))

	encoded, _ := io.ReadAll(att)
	decoded, err := base64.StdEncoding.DecodeString(string(encoded))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-fake"), decoded)
}

func TestBuildMIME_EncodesNonASCIIHeaders(t *testing.T) {
	env := tdomain.Envelope{
		From:     "noreply@example.com",
		FromName: "Équipe Ventes",
		To:       "a@example.com",
		Subject:  "Offre d'été ☀",
		TextBody: "bonjour",
	}
	raw, err := buildMIME(env, "<id@host>")
	require.NoError(t, err)

	m := parseMessage(t, raw)
	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(m.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Offre d'été ☀", subject)

	from, err := dec.DecodeHeader(m.Header.Get("From"))
	require.NoError(t, err)
	assert.Contains(t, from, "Équipe Ventes")
}

func TestBuildMIME_PassesAllowListedHeaders(t *testing.T) {
	env := tdomain.Envelope{
		From:     "noreply@example.com",
		To:       "a@example.com",
		Subject:  "hello",
		TextBody: "hi",
		Headers: map[string]string{
			"List-Unsubscribe":      "<https://example.com/t/u/tok>",
			"X-Courier-Track-Token": "tok",
		},
	}
	raw, err := buildMIME(env, "<id@host>")
	require.NoError(t, err)

	m := parseMessage(t, raw)
	assert.Equal(t, "<https://example.com/t/u/tok>", m.Header.Get("List-Unsubscribe"))
	assert.Equal(t, "tok", m.Header.Get("X-Courier-Track-Token"))
	assert.False(t, strings.Contains(string(raw), "\n\nList-Unsubscribe"), "custom headers stay in the header block")
}
