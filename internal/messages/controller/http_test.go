package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/corvusHold/courier/internal/accounts/domain"
	"github.com/corvusHold/courier/internal/auth/middleware"
	"github.com/corvusHold/courier/internal/config"
	domain "github.com/corvusHold/courier/internal/messages/domain"
	"github.com/corvusHold/courier/internal/platform/validation"
	quota "github.com/corvusHold/courier/internal/quota/domain"
)

const signingKey = "test-signing-key"

type fakeService struct {
	gotReq domain.SendRequest
	res    *domain.SendResult
	err    error
}

func (f *fakeService) Send(ctx context.Context, companyID, domainID uuid.UUID, req domain.SendRequest) (*domain.SendResult, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func newServer(svc domain.Service) *echo.Echo {
	e := echo.New()
	e.Validator = validation.New()
	cfg := config.Config{JWTSigningKey: signingKey, PublicBaseURL: "http://localhost:8080"}
	New(svc, cfg).Register(e, middleware.NewJWT(cfg))
	return e
}

func bearerFor(t *testing.T, companyID uuid.UUID) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.NewString(),
		"cmp": companyID.String(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(signingKey))
	require.NoError(t, err)
	return "Bearer " + signed
}

func postMessage(t *testing.T, e *echo.Echo, companyID, domainID uuid.UUID, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/companies/"+companyID.String()+"/domains/"+domainID.String()+"/messages",
		bytes.NewReader(b))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func minimalBody() map[string]any {
	return map[string]any{
		"from":    map[string]string{"email": "noreply@example.com"},
		"subject": "hello",
		"text":    "hi",
		"to":      []string{"a@example.com"},
	}
}

func sentResult(state domain.FinalState) *domain.SendResult {
	msg := &domain.Message{ID: uuid.New(), FinalState: state, ProviderMessageID: "<prov@relay>"}
	return &domain.SendResult{
		Message:    msg,
		Recipients: []domain.MessageRecipient{{Email: "a@example.com", Kind: domain.KindTo}},
		Errors:     map[string]string{},
	}
}

func TestSendMessage_RequiresAuth(t *testing.T) {
	e := newServer(&fakeService{})
	rec := postMessage(t, e, uuid.New(), uuid.New(), "", minimalBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSendMessage_CompanyMismatchForbidden(t *testing.T) {
	e := newServer(&fakeService{})
	rec := postMessage(t, e, uuid.New(), uuid.New(), bearerFor(t, uuid.New()), minimalBody())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSendMessage_StructValidation(t *testing.T) {
	e := newServer(&fakeService{res: sentResult(domain.StateSent)})
	companyID := uuid.New()

	// Subject is optional.
	body := minimalBody()
	delete(body, "subject")
	rec := postMessage(t, e, companyID, uuid.New(), bearerFor(t, companyID), body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	body = minimalBody()
	body["from"] = map[string]string{"email": "not-an-address"}
	rec = postMessage(t, e, companyID, uuid.New(), bearerFor(t, companyID), body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_failed")

	body = minimalBody()
	delete(body, "from")
	rec = postMessage(t, e, companyID, uuid.New(), bearerFor(t, companyID), body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSendMessage_SentMapsTo201(t *testing.T) {
	svc := &fakeService{res: sentResult(domain.StateSent)}
	e := newServer(svc)
	companyID := uuid.New()

	rec := postMessage(t, e, companyID, uuid.New(), bearerFor(t, companyID), minimalBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Status            string `json:"status"`
		ID                string `json:"id"`
		ProviderMessageID string `json:"providerMessageId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sent", resp.Status)
	assert.Equal(t, svc.res.Message.ID.String(), resp.ID)
	assert.Equal(t, "<prov@relay>", resp.ProviderMessageID)
}

func TestSendMessage_PartialMapsTo201WithErrors(t *testing.T) {
	res := sentResult(domain.StatePartial)
	res.Errors = map[string]string{"b@example.com": "mailbox full"}
	e := newServer(&fakeService{res: res})
	companyID := uuid.New()

	rec := postMessage(t, e, companyID, uuid.New(), bearerFor(t, companyID), minimalBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"partial"`)
	assert.Contains(t, rec.Body.String(), "mailbox full")
}

func TestSendMessage_AllFailedMapsTo502(t *testing.T) {
	res := sentResult(domain.StateFailed)
	res.Errors = map[string]string{"a@example.com": "relay refused"}
	e := newServer(&fakeService{res: res})
	companyID := uuid.New()

	rec := postMessage(t, e, companyID, uuid.New(), bearerFor(t, companyID), minimalBody())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSendMessage_QueuedMapsTo202(t *testing.T) {
	e := newServer(&fakeService{res: sentResult(domain.StateQueued)})
	companyID := uuid.New()

	body := minimalBody()
	body["queue"] = true
	rec := postMessage(t, e, companyID, uuid.New(), bearerFor(t, companyID), body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queued"`)
}

func TestSendMessage_PreviewMapsTo200(t *testing.T) {
	res := sentResult(domain.StatePreview)
	res.PreviewHTML = "<p>hi</p>"
	e := newServer(&fakeService{res: res})
	companyID := uuid.New()

	body := minimalBody()
	body["dryRun"] = true
	rec := postMessage(t, e, companyID, uuid.New(), bearerFor(t, companyID), body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string `json:"status"`
		HTML   string `json:"html"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "preview", resp.Status)
	assert.Equal(t, "<p>hi</p>", resp.HTML)
}

func TestSendMessage_ErrorMapping(t *testing.T) {
	companyID := uuid.New()

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", domain.Invalid("bad address"), http.StatusUnprocessableEntity},
		{"quota", &quota.ExceededError{Window: "day", Limit: 200, ResetAt: time.Now()}, http.StatusTooManyRequests},
		{"queue down", &domain.ErrQueueUnavailable{Cause: assertionErr("broker gone")}, http.StatusServiceUnavailable},
		{"company missing", accounts.ErrCompanyNotFound, http.StatusNotFound},
		{"domain missing", accounts.ErrDomainNotFound, http.StatusNotFound},
		{"domain not owned", accounts.ErrDomainNotOwned, http.StatusNotFound},
		{"domain unverified", accounts.ErrDomainUnverified, http.StatusUnprocessableEntity},
		{"unexpected", assertionErr("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newServer(&fakeService{err: tc.err})
			rec := postMessage(t, e, companyID, uuid.New(), bearerFor(t, companyID), minimalBody())
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestSendMessage_QuotaResponseBody(t *testing.T) {
	reset := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	e := newServer(&fakeService{err: &quota.ExceededError{Window: "day", Limit: 200, Remaining: 0, ResetAt: reset}})
	companyID := uuid.New()

	rec := postMessage(t, e, companyID, uuid.New(), bearerFor(t, companyID), minimalBody())
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp struct {
		Error     string `json:"error"`
		Window    string `json:"window"`
		Limit     int64  `json:"limit"`
		Remaining int64  `json:"remaining"`
		ResetAt   string `json:"resetAt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "quota_exceeded", resp.Error)
	assert.Equal(t, "day", resp.Window)
	assert.Equal(t, int64(200), resp.Limit)
	assert.Equal(t, "2026-08-27T00:00:00Z", resp.ResetAt)
}

func TestSendMessage_StringOrListRecipients(t *testing.T) {
	svc := &fakeService{res: sentResult(domain.StateSent)}
	e := newServer(svc)
	companyID := uuid.New()

	body := minimalBody()
	body["to"] = "solo@example.com"
	body["cc"] = []string{"c1@example.com", "c2@example.com"}
	rec := postMessage(t, e, companyID, uuid.New(), bearerFor(t, companyID), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, []string{"solo@example.com"}, svc.gotReq.To)
	assert.Equal(t, []string{"c1@example.com", "c2@example.com"}, svc.gotReq.CC)
}

func TestSendMessage_AttachmentDecoding(t *testing.T) {
	svc := &fakeService{res: sentResult(domain.StateSent)}
	e := newServer(svc)
	companyID := uuid.New()

	body := minimalBody()
	body["attachments"] = []map[string]string{
		{"filename": "a.txt", "contentType": "text/plain", "content": "aGVsbG8="},
	}
	rec := postMessage(t, e, companyID, uuid.New(), bearerFor(t, companyID), body)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, svc.gotReq.Attachments, 1)
	assert.Equal(t, []byte("hello"), svc.gotReq.Attachments[0].Content)

	body["attachments"] = []map[string]string{
		{"filename": "a.txt", "content": "not!!base64"},
	}
	rec = postMessage(t, e, companyID, uuid.New(), bearerFor(t, companyID), body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSendMessage_ForwardedHeadersDriveBaseURL(t *testing.T) {
	svc := &fakeService{res: sentResult(domain.StateSent)}
	e := newServer(svc)
	companyID := uuid.New()
	domainID := uuid.New()

	b, _ := json.Marshal(minimalBody())
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/companies/"+companyID.String()+"/domains/"+domainID.String()+"/messages",
		bytes.NewReader(b))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", bearerFor(t, companyID))
	req.Header.Set("X-Forwarded-Host", "mail.example.com")
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "https://mail.example.com", svc.gotReq.BaseURL)
}

func TestSendMessage_BadIDsRejected(t *testing.T) {
	e := newServer(&fakeService{})
	companyID := uuid.New()

	b, _ := json.Marshal(minimalBody())
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/companies/not-a-uuid/domains/"+uuid.NewString()+"/messages",
		bytes.NewReader(b))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", bearerFor(t, companyID))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type assertionErr string

func (e assertionErr) Error() string { return string(e) }
