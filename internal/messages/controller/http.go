package controller

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	accounts "github.com/corvusHold/courier/internal/accounts/domain"
	"github.com/corvusHold/courier/internal/auth/middleware"
	"github.com/corvusHold/courier/internal/config"
	domain "github.com/corvusHold/courier/internal/messages/domain"
	"github.com/corvusHold/courier/internal/platform/validation"
	quota "github.com/corvusHold/courier/internal/quota/domain"
	"github.com/corvusHold/courier/internal/tracking/rewrite"
)

type Controller struct {
	svc domain.Service
	cfg config.Config
}

func New(svc domain.Service, cfg config.Config) *Controller {
	return &Controller{svc: svc, cfg: cfg}
}

func (h *Controller) Register(e *echo.Echo, jwt echo.MiddlewareFunc) {
	g := e.Group("/api/v1", jwt)
	h.RegisterV1(g)
}

func (h *Controller) RegisterV1(g *echo.Group) {
	g.POST("/companies/:companyID/domains/:domainID/messages", h.sendMessage)
}

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = stringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = stringList(many)
	return nil
}

type fromReq struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
}

type trackingReq struct {
	Opens  *bool `json:"opens"`
	Clicks *bool `json:"clicks"`
}

type attachmentReq struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type sendReq struct {
	From        fromReq           `json:"from" validate:"required"`
	ReplyTo     string            `json:"replyTo" validate:"omitempty,email"`
	Subject     string            `json:"subject"`
	Text        string            `json:"text"`
	HTML        string            `json:"html"`
	To          stringList        `json:"to"`
	CC          stringList        `json:"cc"`
	BCC         stringList        `json:"bcc"`
	Headers     map[string]string `json:"headers"`
	Tracking    *trackingReq      `json:"tracking"`
	Attachments []attachmentReq   `json:"attachments"`
	DryRun      bool              `json:"dryRun"`
	Queue       bool              `json:"queue"`
}

func (h *Controller) sendMessage(c echo.Context) error {
	companyID, err := uuid.Parse(c.Param("companyID"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid company id"})
	}
	domainID, err := uuid.Parse(c.Param("domainID"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid domain id"})
	}
	if principal, ok := middleware.CompanyID(c); !ok || principal != companyID {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "company mismatch"})
	}

	var req sendReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, validation.ErrorResponse(err))
	}

	attachments := make([]domain.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		content, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "attachment content is not valid base64"})
		}
		attachments = append(attachments, domain.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     content,
		})
	}

	in := domain.SendRequest{
		FromEmail:   req.From.Email,
		FromName:    req.From.Name,
		ReplyTo:     req.ReplyTo,
		Subject:     req.Subject,
		Text:        req.Text,
		HTML:        req.HTML,
		To:          req.To,
		CC:          req.CC,
		BCC:         req.BCC,
		Headers:     req.Headers,
		Attachments: attachments,
		DryRun:      req.DryRun,
		Queue:       req.Queue,
		BaseURL:     rewrite.BaseURL(c.Request(), h.cfg.PublicBaseURL),
	}
	if req.Tracking != nil {
		in.TrackOpens = req.Tracking.Opens
		in.TrackClicks = req.Tracking.Clicks
	}

	res, err := h.svc.Send(c.Request().Context(), companyID, domainID, in)
	if err != nil {
		return h.sendError(c, err)
	}

	switch res.Message.FinalState {
	case domain.StatePreview:
		return c.JSON(http.StatusOK, previewResp(res))
	case domain.StateQueued:
		return c.JSON(http.StatusAccepted, map[string]any{
			"status":     "queued",
			"id":         res.Message.ID.String(),
			"recipients": len(res.Recipients),
		})
	case domain.StateFailed:
		return c.JSON(http.StatusBadGateway, map[string]any{
			"error":  "delivery failed for all recipients",
			"id":     res.Message.ID.String(),
			"errors": res.Errors,
		})
	default: // sent / partial
		return c.JSON(http.StatusCreated, map[string]any{
			"status":            string(res.Message.FinalState),
			"id":                res.Message.ID.String(),
			"providerMessageId": res.Message.ProviderMessageID,
			"errors":            res.Errors,
		})
	}
}

func (h *Controller) sendError(c echo.Context, err error) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": verr.Reason})
	}
	var qerr *quota.ExceededError
	if errors.As(err, &qerr) {
		return c.JSON(http.StatusTooManyRequests, map[string]any{
			"error":     "quota_exceeded",
			"window":    qerr.Window,
			"limit":     qerr.Limit,
			"remaining": qerr.Remaining,
			"resetAt":   qerr.ResetAt.UTC().Format(time.RFC3339),
		})
	}
	var querr *domain.ErrQueueUnavailable
	if errors.As(err, &querr) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
	}
	switch {
	case errors.Is(err, accounts.ErrCompanyNotFound), errors.Is(err, accounts.ErrDomainNotFound), errors.Is(err, accounts.ErrDomainNotOwned):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, accounts.ErrDomainUnverified):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "domain is not verified"})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func previewResp(res *domain.SendResult) map[string]any {
	rcpts := map[string][]string{}
	for _, rc := range res.Recipients {
		rcpts[string(rc.Kind)] = append(rcpts[string(rc.Kind)], rc.Email)
	}
	return map[string]any{
		"status":     "preview",
		"id":         res.Message.ID.String(),
		"from":       res.Message.FromEmail,
		"subject":    res.Message.Subject,
		"html":       res.PreviewHTML,
		"text":       res.PreviewText,
		"recipients": rcpts,
	}
}
