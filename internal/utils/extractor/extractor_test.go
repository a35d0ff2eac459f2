package extractor

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestExtractFromForm(t *testing.T) {
	form := url.Values{
		CallSid:           {"CA1"},
		RecordingURL:      {"http://x/r1.mp3"},
		RecordingDuration: {"4"},
		Language:          {"TL"},
	}
	r := httptest.NewRequest(http.MethodPost, "/feature-phone/landing/", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	e := New()
	if got := e.GetCallSid(r); got != "CA1" {
		t.Fatalf("call sid %q", got)
	}
	if got := e.GetRecordingURL(r); got != "http://x/r1.mp3" {
		t.Fatalf("recording url %q", got)
	}
	if d, ok := e.GetRecordingDuration(r); !ok || d != 4 {
		t.Fatalf("duration %d %v", d, ok)
	}
	if got := e.GetLanguage(r); got != "tl" {
		t.Fatalf("language %q", got)
	}
}

func TestLanguageQueryWins(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/feature-phone/landing/?lang=en&Language=tl&CallSid=CA2", nil)
	e := New()
	if got := e.GetLanguage(r); got != "en" {
		t.Fatalf("language %q", got)
	}
	if got := e.GetCallSid(r); got != "CA2" {
		t.Fatalf("call sid %q", got)
	}
	if _, ok := e.GetRecordingDuration(r); ok {
		t.Fatal("missing duration should not parse")
	}
}
