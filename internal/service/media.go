package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hajimehoshi/go-mp3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	InstructionsDir = "instructions"
	QuestionsDir    = "questions"
	ResponsesDir    = "responses"
	RespondentDir   = "respondent"
)

type MediaConfig struct {
	Root        string
	BaseURL     string
	DiskTimeout time.Duration
}

func ReadMediaConfig() *MediaConfig {
	viper.BindEnv("media.root", "MEDIA_ROOT")
	viper.BindEnv("media.base_url", "MEDIA_BASE_URL")
	viper.SetDefault("media.root", "media")
	viper.SetDefault("timeouts.disk_ms", 5000)

	return &MediaConfig{
		Root:        viper.GetString("media.root"),
		BaseURL:     viper.GetString("media.base_url"),
		DiskTimeout: time.Duration(viper.GetInt("timeouts.disk_ms")) * time.Millisecond,
	}
}

// MediaStore owns the media root. Paths handed out are relative to it and
// use forward slashes so they double as URL paths.
type MediaStore struct {
	config MediaConfig
	logger *zap.Logger
}

func NewMediaStore(cfg *MediaConfig, logger *zap.Logger) *MediaStore {
	c := *cfg
	if c.DiskTimeout <= 0 {
		c.DiskTimeout = 5 * time.Second
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return &MediaStore{config: c, logger: logger}
}

func (m *MediaStore) Root() string {
	return m.config.Root
}

// ResponsePath is the deterministic location of a response's audio.
func ResponsePath(responseID int64, ext string) string {
	return fmt.Sprintf("%s/%d%s", ResponsesDir, responseID, ext)
}

// DemographicPath is where a respondent's age, gender or location recording
// lives.
func DemographicPath(field string, respondentID int64) string {
	return fmt.Sprintf("%s/%s/%d.mp3", RespondentDir, field, respondentID)
}

// PromptPath is where narration or question audio for slug lives.
func PromptPath(dir, slug string) string {
	return fmt.Sprintf("%s/%s.mp3", dir, slug)
}

// URL turns a stored path into the address the provider fetches. Absolute
// URLs are returned unchanged.
func (m *MediaStore) URL(rel string) string {
	if strings.HasPrefix(rel, "http://") || strings.HasPrefix(rel, "https://") {
		return rel
	}
	return m.config.BaseURL + "/" + strings.TrimLeft(rel, "/")
}

// Save writes body to rel through a temp file and rename, so readers never see
// a partial file.
func (m *MediaStore) Save(ctx context.Context, rel string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.DiskTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.write(rel, body)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("write %s: %w", rel, ctx.Err())
	}
}

func (m *MediaStore) write(rel string, body []byte) error {
	dst := m.abs(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(dst), fmt.Sprintf(".tmp_%s", uuid.New().String()))
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (m *MediaStore) Remove(rel string) error {
	return os.Remove(m.abs(rel))
}

// Duration decodes an mp3 to find its length. Other formats report 0.
func (m *MediaStore) Duration(rel string) (d time.Duration, err error) {
	if filepath.Ext(rel) != ".mp3" {
		return 0, nil
	}
	defer func() {
		if v := recover(); v != nil {
			d, err = 0, fmt.Errorf("decode %s: %v", rel, v)
		}
	}()
	f, err := os.Open(m.abs(rel))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, err
	}
	// Decoded PCM is 16-bit stereo, four bytes per sample.
	samples := dec.Length() / 4
	if samples <= 0 || dec.SampleRate() == 0 {
		return 0, nil
	}
	return time.Duration(samples) * time.Second / time.Duration(dec.SampleRate()), nil
}

func (m *MediaStore) abs(rel string) string {
	return filepath.Join(m.config.Root, filepath.FromSlash(rel))
}
