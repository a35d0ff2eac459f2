package extractor

import (
	"net/http"
	"strconv"
	"strings"
)

type Extractor interface {
	Get(r *http.Request, name string) string
	GetCallSid(r *http.Request) string
	GetRecordingURL(r *http.Request) string
	GetRecordingDuration(r *http.Request) (int, bool)
	GetLanguage(r *http.Request) string
	GetRequestID(r *http.Request) string
}

type extractor struct {
}

func New() Extractor {
	return &extractor{}
}

// Get reads name from the query string or a form-encoded body.
func (t *extractor) Get(r *http.Request, name string) string {
	return strings.TrimSpace(r.FormValue(name))
}

func (t *extractor) GetCallSid(r *http.Request) string {
	return t.Get(r, CallSid)
}

func (t *extractor) GetRecordingURL(r *http.Request) string {
	return t.Get(r, RecordingURL)
}

func (t *extractor) GetRecordingDuration(r *http.Request) (int, bool) {
	v, err := strconv.Atoi(t.Get(r, RecordingDuration))
	if err != nil {
		return 0, false
	}
	return v, true
}

// GetLanguage prefers the lang query parameter of the webhook URL over the
// Language form field.
func (t *extractor) GetLanguage(r *http.Request) string {
	if v := strings.TrimSpace(r.URL.Query().Get(LangQuery)); v != "" {
		return strings.ToLower(v)
	}
	return strings.ToLower(t.Get(r, Language))
}

func (t *extractor) GetRequestID(r *http.Request) string {
	return r.Header.Get(XRequestID)
}
