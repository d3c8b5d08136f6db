// Package rewrite derives per-recipient HTML bodies: click links are routed
// through the redirect endpoint and an open pixel is appended, each carrying
// the recipient's track token.
package rewrite

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// anchorHref matches href attributes with absolute http(s) URLs inside anchor
// tags. Only the URL itself is replaced, so every other attribute on the
// anchor survives untouched.
var anchorHref = regexp.MustCompile(`(?i)(<a\b[^>]*\bhref=)(["'])(https?://[^"']+)(["'])`)

// ClickURL builds the redirect URL for one original destination.
func ClickURL(base, token, original string) string {
	return fmt.Sprintf("%s/t/c/%s?u=%s", strings.TrimRight(base, "/"), token,
		base64.RawURLEncoding.EncodeToString([]byte(original)))
}

// DecodeClickURL recovers the original destination from a click redirect's
// u parameter.
func DecodeClickURL(u string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(u)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// PixelURL builds the open-pixel URL for a recipient token.
func PixelURL(base, token string) string {
	return fmt.Sprintf("%s/t/o/%s.gif", strings.TrimRight(base, "/"), token)
}

// UnsubscribeURL builds the one-click unsubscribe URL for a recipient token.
func UnsubscribeURL(base, token string) string {
	return fmt.Sprintf("%s/t/u/%s", strings.TrimRight(base, "/"), token)
}

// Links rewrites every absolute http(s) anchor href in html to route through
// the click redirect for token.
func Links(html, base, token string) string {
	return anchorHref.ReplaceAllStringFunc(html, func(m string) string {
		sub := anchorHref.FindStringSubmatch(m)
		return sub[1] + sub[2] + ClickURL(base, token, sub[3]) + sub[4]
	})
}

// Pixel appends a zero-size open-tracking image. When the body has a closing
// </body> tag the pixel lands just before it.
func Pixel(html, base, token string) string {
	img := fmt.Sprintf(`<img src=%q width="1" height="1" alt="" style="display:none;max-height:1px;max-width:1px;"/>`, PixelURL(base, token))
	lower := strings.ToLower(html)
	if i := strings.LastIndex(lower, "</body>"); i >= 0 {
		return html[:i] + img + html[i:]
	}
	return html + img
}

// Apply performs the full per-recipient rewrite honoring the message's
// tracking flags. Empty bodies pass through untouched.
func Apply(html, base, token string, opens, clicks bool) string {
	if html == "" {
		return html
	}
	if clicks {
		html = Links(html, base, token)
	}
	if opens {
		html = Pixel(html, base, token)
	}
	return html
}

// BaseURL derives the public base for tracking links from forwarded headers,
// so a deployment behind a reverse proxy generates links for the outside
// world. Falls back to the configured public base URL.
func BaseURL(r *http.Request, fallback string) string {
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		return strings.TrimRight(fallback, "/")
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "https"
	}
	return proto + "://" + host
}
