package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	c := NewRecordingClient(&RecordingConfig{Timeout: 5 * time.Second}, zap.NewNop())
	rec, err := c.Fetch(context.Background(), srv.URL+"/r1")
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Body) != "ID3audio" || rec.Ext != ".mp3" {
		t.Fatalf("unexpected recording %+v", rec)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestFetchFailsFast(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }},
		{"empty", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }},
		{"too large", func(w http.ResponseWriter, r *http.Request) { w.Write(make([]byte, 64)) }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				c.handler(w, r)
			}))
			defer srv.Close()

			client := NewRecordingClient(&RecordingConfig{Timeout: 5 * time.Second, MaxBytes: 32}, zap.NewNop())
			_, err := client.Fetch(context.Background(), srv.URL)
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("expected ErrUnavailable, got %v", err)
			}
			if n := atomic.LoadInt32(&calls); n != 1 {
				t.Fatalf("expected a single attempt, got %d", n)
			}
		})
	}
}

func TestFetchTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewRecordingClient(&RecordingConfig{Timeout: 200 * time.Millisecond}, zap.NewNop())
	start := time.Now()
	if _, err := c.Fetch(context.Background(), srv.URL); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("fetch took %s", elapsed)
	}
}

func TestExtension(t *testing.T) {
	cases := []struct {
		contentType, url, want string
	}{
		{"audio/mpeg", "http://x/a", ".mp3"},
		{"audio/x-wav", "http://x/a", ".wav"},
		{"application/octet-stream", "http://x/a.wav", ".wav"},
		{"", "http://x/a", ".mp3"},
	}
	for _, c := range cases {
		if got := extension(c.contentType, c.url); got != c.want {
			t.Errorf("extension(%q, %q) = %q, want %q", c.contentType, c.url, got, c.want)
		}
	}
}

func TestMediaStore(t *testing.T) {
	root := t.TempDir()
	m := NewMediaStore(&MediaConfig{Root: root, BaseURL: "http://media.test/media/"}, zap.NewNop())

	rel := ResponsePath(12, ".mp3")
	if rel != "responses/12.mp3" {
		t.Fatalf("unexpected path %s", rel)
	}
	if err := m.Save(context.Background(), rel, []byte("not really mp3")); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(root, "responses", "12.mp3"))
	if err != nil || info.Size() == 0 {
		t.Fatalf("file not written: %v", err)
	}
	if got := m.URL(rel); got != "http://media.test/media/responses/12.mp3" {
		t.Fatalf("unexpected url %s", got)
	}
	if got := m.URL("http://elsewhere/a.mp3"); got != "http://elsewhere/a.mp3" {
		t.Fatalf("absolute url rewritten: %s", got)
	}
	if got := PromptPath(InstructionsDir, "welcome"); got != "instructions/welcome.mp3" {
		t.Fatalf("unexpected prompt path %s", got)
	}
	if got := DemographicPath("gender", 7); got != "respondent/gender/7.mp3" {
		t.Fatalf("unexpected demographic path %s", got)
	}

	if d, err := m.Duration("responses/1.wav"); err != nil || d != 0 {
		t.Fatalf("non-mp3 should report zero duration, got %s %v", d, err)
	}

	entries, _ := os.ReadDir(filepath.Join(root, "responses"))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
	if err := m.Remove(rel); err != nil {
		t.Fatal(err)
	}
}
