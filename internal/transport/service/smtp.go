package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/corvusHold/courier/internal/config"
	sdomain "github.com/corvusHold/courier/internal/settings/domain"
	tdomain "github.com/corvusHold/courier/internal/transport/domain"
)

// Ensure SMTP implements domain.Sender
var _ tdomain.Sender = (*SMTP)(nil)

// SMTP delivers envelopes over plain SMTP. Host/port/credentials resolve
// through the settings service so companies can bring their own relay.
type SMTP struct {
	cfg      config.Config
	settings sdomain.Service
}

func NewSMTP(settings sdomain.Service, cfg config.Config) *SMTP {
	return &SMTP{settings: settings, cfg: cfg}
}

func (s *SMTP) Send(ctx context.Context, companyID uuid.UUID, env tdomain.Envelope) (string, error) {
	host, _ := s.settings.GetString(ctx, sdomain.KeySMTPHost, &companyID, s.cfg.SMTPHost)
	username, _ := s.settings.GetString(ctx, sdomain.KeySMTPUsername, &companyID, s.cfg.SMTPUsername)
	password, _ := s.settings.GetString(ctx, sdomain.KeySMTPPassword, &companyID, s.cfg.SMTPPassword)
	port, _ := s.settings.GetInt(ctx, sdomain.KeySMTPPort, &companyID, s.cfg.SMTPPort)

	msgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), host)
	raw, err := buildMIME(env, msgID)
	if err != nil {
		return "", err
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, s.cfg.SMTPTimeout)
	if err != nil {
		return "", err
	}
	// one deadline covers the whole SMTP conversation for this envelope
	_ = conn.SetDeadline(time.Now().Add(s.cfg.SMTPTimeout))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return "", err
	}
	defer client.Close()

	if username != "" {
		if err := client.Auth(smtp.PlainAuth("", username, password, host)); err != nil {
			return "", err
		}
	}
	if err := client.Mail(env.From); err != nil {
		return "", err
	}
	if err := client.Rcpt(env.To); err != nil {
		return "", err
	}
	w, err := client.Data()
	if err != nil {
		return "", err
	}
	if _, err := w.Write(raw); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	_ = client.Quit()
	return msgID, nil
}

// buildMIME renders the envelope as an RFC 5322 message: multipart/alternative
// for text+html bodies, wrapped in multipart/mixed when attachments exist.
func buildMIME(env tdomain.Envelope, msgID string) ([]byte, error) {
	var buf bytes.Buffer

	from := env.From
	if env.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", env.FromName), env.From)
	}
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", env.To)
	if env.ReplyTo != "" {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", env.ReplyTo)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", env.Subject))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", msgID)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	for k, v := range env.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(env.Attachments) == 0 {
		var body bytes.Buffer
		ct, err := writeBodies(&body, env)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "Content-Type: %s\r\n\r\n", ct)
		buf.Write(body.Bytes())
		return buf.Bytes(), nil
	}

	mixed := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	var inner bytes.Buffer
	innerType, err := writeBodies(&inner, env)
	if err != nil {
		return nil, err
	}
	bodyHdr := textproto.MIMEHeader{}
	bodyHdr.Set("Content-Type", innerType)
	bodyPart, err := mixed.CreatePart(bodyHdr)
	if err != nil {
		return nil, err
	}
	if _, err := bodyPart.Write(inner.Bytes()); err != nil {
		return nil, err
	}

	for _, a := range env.Attachments {
		h := textproto.MIMEHeader{}
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", fmt.Sprintf("%s; name=%q", ct, a.Filename))
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
		h.Set("Content-Transfer-Encoding", "base64")
		part, err := mixed.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write([]byte(base64.StdEncoding.EncodeToString(a.Content))); err != nil {
			return nil, err
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBodies renders the text/html content into buf and returns the
// Content-Type value describing it. When both bodies are present they become
// a multipart/alternative with HTML last, the variant clients prefer.
func writeBodies(buf *bytes.Buffer, env tdomain.Envelope) (string, error) {
	switch {
	case env.HTMLBody != "" && env.TextBody != "":
		alt := multipart.NewWriter(buf)
		if err := writeTextPart(alt, "text/plain", env.TextBody); err != nil {
			return "", err
		}
		if err := writeTextPart(alt, "text/html", env.HTMLBody); err != nil {
			return "", err
		}
		if err := alt.Close(); err != nil {
			return "", err
		}
		return fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary()), nil
	case env.HTMLBody != "":
		fmt.Fprintf(buf, "%s\r\n", env.HTMLBody)
		return "text/html; charset=utf-8", nil
	default:
		fmt.Fprintf(buf, "%s\r\n", env.TextBody)
		return "text/plain; charset=utf-8", nil
	}
}

func writeTextPart(w *multipart.Writer, contentType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType+"; charset=utf-8")
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write([]byte(body))
	return err
}
