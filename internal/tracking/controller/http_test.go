package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/corvusHold/courier/internal/tracking/domain"
	"github.com/corvusHold/courier/internal/tracking/rewrite"
)

type recordedCall struct {
	token string
	typ   domain.EventType
	meta  map[string]string
}

type fakeService struct {
	calls  []recordedCall
	result bool
}

func (f *fakeService) Record(ctx context.Context, token string, typ domain.EventType, meta map[string]string) bool {
	f.calls = append(f.calls, recordedCall{token: token, typ: typ, meta: meta})
	return f.result
}

func setup(t *testing.T) (*echo.Echo, *fakeService) {
	t.Helper()
	e := echo.New()
	svc := &fakeService{result: true}
	New(svc).Register(e)
	return e, svc
}

func TestOpen_ServesPixelAndRecords(t *testing.T) {
	e, svc := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/t/o/tok123.gif", nil)
	req.Header.Set("User-Agent", "TestMail/1.0")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, pixelGIF, rec.Body.Bytes())

	require.Len(t, svc.calls, 1)
	assert.Equal(t, "tok123", svc.calls[0].token, "the .gif suffix is not part of the token")
	assert.Equal(t, domain.EventOpened, svc.calls[0].typ)
	assert.Equal(t, "TestMail/1.0", svc.calls[0].meta["user_agent"])
}

func TestOpen_UnknownTokenStillServesPixel(t *testing.T) {
	e, svc := setup(t)
	svc.result = false

	req := httptest.NewRequest(http.MethodGet, "/t/o/unknown.gif", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pixelGIF, rec.Body.Bytes())
}

func TestClick_RedirectsToDecodedDestination(t *testing.T) {
	e, svc := setup(t)

	dest := "https://example.com/pricing?utm=x"
	u := rewrite.ClickURL("", "tok123", dest) // "" base yields the path we mount
	req := httptest.NewRequest(http.MethodGet, u, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, dest, rec.Header().Get("Location"))

	require.Len(t, svc.calls, 1)
	assert.Equal(t, domain.EventClicked, svc.calls[0].typ)
	assert.Equal(t, dest, svc.calls[0].meta["url"])
}

func TestClick_RepeatStillRedirects(t *testing.T) {
	e, svc := setup(t)
	svc.result = false // duplicate suppressed upstream

	u := rewrite.ClickURL("", "tok123", "https://example.com/")
	req := httptest.NewRequest(http.MethodGet, u, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/", rec.Header().Get("Location"))
}

func TestClick_MalformedDestinationFallsBackToRoot(t *testing.T) {
	e, svc := setup(t)

	for _, u := range []string{
		"/t/c/tok123?u=%%%not-base64",
		"/t/c/tok123", // missing u entirely
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u, nil))
		assert.Equal(t, http.StatusFound, rec.Code, u)
		assert.Equal(t, "/", rec.Header().Get("Location"), u)
	}
	assert.Empty(t, svc.calls, "nothing is recorded when the destination cannot be decoded")
}

func TestClick_NonHTTPDestinationRecordsButRedirectsToRoot(t *testing.T) {
	e, svc := setup(t)

	for _, dest := range []string{
		"javascript:alert(1)",
		"//protocol-relative.example",
	} {
		u := "/t/c/tok123?u=" + encode(dest)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u, nil))
		assert.Equal(t, http.StatusFound, rec.Code, dest)
		assert.Equal(t, "/", rec.Header().Get("Location"), dest)
	}

	require.Len(t, svc.calls, 2, "a decodable destination is still a click")
	assert.Equal(t, domain.EventClicked, svc.calls[0].typ)
	assert.Equal(t, "javascript:alert(1)", svc.calls[0].meta["url"])
	assert.Equal(t, "//protocol-relative.example", svc.calls[1].meta["url"])
}

func TestUnsubscribe_RendersConfirmation(t *testing.T) {
	e, svc := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/t/u/tok123", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsubscribed")

	require.Len(t, svc.calls, 1)
	assert.Equal(t, domain.EventUnsubscribed, svc.calls[0].typ)
}

func TestUnsubscribe_OversizedReasonFallsBack(t *testing.T) {
	e, svc := setup(t)

	long := ""
	for i := 0; i < 10; i++ {
		long += "0123456789"
	}
	req := httptest.NewRequest(http.MethodGet, "/t/u/tok123?reason="+long, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.calls, 1)
	assert.Equal(t, domain.EventUnsubscribed, svc.calls[0].typ)
}

func encode(s string) string {
	u := rewrite.ClickURL("", "x", s)
	return u[len("/t/c/x?u="):]
}
