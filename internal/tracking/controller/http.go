package controller

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	domain "github.com/corvusHold/courier/internal/tracking/domain"
	"github.com/corvusHold/courier/internal/tracking/rewrite"
)

// pixelGIF is a 1x1 transparent GIF, served to every open callback whether or
// not the token resolves.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

const unsubscribePage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Unsubscribed</title></head>
<body>
<h1>You have been unsubscribed</h1>
<p>You will no longer receive emails from this sender.</p>
</body>
</html>`

type Controller struct {
	svc domain.Service
}

func New(svc domain.Service) *Controller {
	return &Controller{svc: svc}
}

// Register mounts the public tracking surfaces. They are unauthenticated:
// the unguessable token is the entire trust model.
func (h *Controller) Register(e *echo.Echo, mws ...echo.MiddlewareFunc) {
	g := e.Group("/t", mws...)
	g.GET("/o/:token", h.open)
	g.GET("/c/:token", h.click)
	g.GET("/u/:token", h.unsubscribe)
}

func (h *Controller) open(c echo.Context) error {
	token := strings.TrimSuffix(c.Param("token"), ".gif")

	h.svc.Record(c.Request().Context(), token, domain.EventOpened, requestMeta(c))

	c.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	c.Response().Header().Set("Pragma", "no-cache")
	c.Response().Header().Set("Expires", "0")
	return c.Blob(http.StatusOK, "image/gif", pixelGIF)
}

func (h *Controller) click(c echo.Context) error {
	token := c.Param("token")

	// Any successfully decoded destination counts as a click, but only
	// http(s) targets are safe to redirect to.
	target := "/"
	if dest, err := rewrite.DecodeClickURL(c.QueryParam("u")); err == nil {
		meta := requestMeta(c)
		meta["url"] = dest
		h.svc.Record(c.Request().Context(), token, domain.EventClicked, meta)
		if isHTTPURL(dest) {
			target = dest
		}
	}
	return c.Redirect(http.StatusFound, target)
}

func (h *Controller) unsubscribe(c echo.Context) error {
	token := c.Param("token")

	reason := strings.TrimSpace(c.QueryParam("reason"))
	if reason == "" || len(reason) > 64 {
		reason = string(domain.EventUnsubscribed)
	}
	h.svc.Record(c.Request().Context(), token, domain.EventType(reason), requestMeta(c))

	return c.HTML(http.StatusOK, unsubscribePage)
}

func requestMeta(c echo.Context) map[string]string {
	return map[string]string{
		"user_agent": c.Request().UserAgent(),
		"ip":         c.RealIP(),
	}
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
