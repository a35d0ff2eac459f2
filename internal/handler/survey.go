package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"malasakit/internal/features"
	"malasakit/internal/twiml"
	"malasakit/internal/utils/extractor"
	logging "malasakit/pkg/logger/pkg"
)

const healthTimeout = 2 * time.Second

// Pinger is anything /healthz should check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SurveyHandler answers the telephony provider's webhooks with voice markup.
type SurveyHandler struct {
	survey    features.ISurvey
	extractor extractor.Extractor
	checks    map[string]Pinger
}

func NewSurveyHandler(survey features.ISurvey, ex extractor.Extractor, checks map[string]Pinger) *SurveyHandler {
	return &SurveyHandler{
		survey:    survey,
		extractor: ex,
		checks:    checks,
	}
}

// Register mounts the survey webhooks. Every route accepts GET and POST.
func (h *SurveyHandler) Register(r gin.IRouter) {
	g := r.Group("/feature-phone")
	g.Any("/landing/", h.step(h.survey.Landing))
	g.Any("/quantitative-questions/", h.step(h.survey.AskQuantitative))
	g.Any("/rate-comments/", h.step(h.survey.RateComment))
	g.Any("/qualitative-questions/", h.step(h.survey.AskQualitative))
	g.Any("/process-recording/:next/", h.ProcessRecording)
	g.Any("/end/", h.step(h.survey.End))

	r.GET("/healthz", h.Health)
}

func (h *SurveyHandler) step(fn func(ctx context.Context, call *features.Call) *twiml.Response) gin.HandlerFunc {
	return func(c *gin.Context) {
		call, ok := h.call(c)
		if !ok {
			return
		}
		h.render(c, fn(c.Request.Context(), call))
	}
}

func (h *SurveyHandler) ProcessRecording(c *gin.Context) {
	call, ok := h.call(c)
	if !ok {
		return
	}
	next := features.State(c.Param("next"))
	h.render(c, h.survey.Ingest(c.Request.Context(), call, next))
}

func (h *SurveyHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := gin.H{}
	code := http.StatusOK
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			logging.Logger(ctx).Warn("Health check failed", zap.String("component", name), zap.Error(err))
			status[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	c.JSON(code, status)
}

// call reads the provider fields. A request without a CallSid cannot be
// tied to a caller and is answered with the apology.
func (h *SurveyHandler) call(c *gin.Context) (*features.Call, bool) {
	r := c.Request
	call := &features.Call{
		Sid:          h.extractor.GetCallSid(r),
		Language:     h.extractor.GetLanguage(r),
		RecordingURL: h.extractor.GetRecordingURL(r),
	}
	if call.Sid == "" {
		logging.Logger(r.Context()).Warn("Webhook without CallSid", zap.String("path", r.URL.Path))
		h.render(c, h.survey.Apology())
		return nil, false
	}
	return call, true
}

func (h *SurveyHandler) render(c *gin.Context, doc *twiml.Response) {
	body, err := doc.Marshal()
	if err != nil {
		logging.Logger(c.Request.Context()).Error("Failed to render voice markup", zap.Error(err))
		body, _ = h.survey.Apology().Marshal()
	}
	c.Data(http.StatusOK, twiml.ContentType, body)
}
