package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ErrUnavailable wraps every reason a recording could not be downloaded.
var ErrUnavailable = errors.New("recording unavailable")

const (
	defaultFetchTimeout = 10 * time.Second
	defaultMaxBytes     = 10 << 20
)

type RecordingConfig struct {
	Timeout  time.Duration
	MaxBytes int64
	// Provider credentials, sent as basic auth when set.
	Username string
	Password string
}

func ReadRecordingConfig() *RecordingConfig {
	viper.BindEnv("recording.fetch_timeout_s", "RECORDING_FETCH_TIMEOUT_S")
	viper.BindEnv("recording.max_bytes", "RECORDING_MAX_BYTES")
	viper.BindEnv("recording.username", "TWILIO_ACCOUNT_SID")
	viper.BindEnv("recording.password", "TWILIO_AUTH_TOKEN")

	return &RecordingConfig{
		Timeout:  time.Duration(viper.GetInt("recording.fetch_timeout_s")) * time.Second,
		MaxBytes: viper.GetInt64("recording.max_bytes"),
		Username: viper.GetString("recording.username"),
		Password: viper.GetString("recording.password"),
	}
}

type Recording struct {
	Body        []byte
	ContentType string
	// Ext includes the leading dot.
	Ext string
}

// RecordingClient downloads caller audio from the telephony provider.
type RecordingClient struct {
	client *http.Client
	config RecordingConfig
	logger *zap.Logger
}

func NewRecordingClient(cfg *RecordingConfig, logger *zap.Logger) *RecordingClient {
	c := *cfg
	if c.Timeout <= 0 {
		c.Timeout = defaultFetchTimeout
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = defaultMaxBytes
	}
	return &RecordingClient{
		client: &http.Client{},
		config: c,
		logger: logger,
	}
}

// Fetch downloads url, retrying transport errors and 5xx responses until the
// configured timeout elapses. Client errors, empty bodies and oversized bodies
// fail immediately.
func (c *RecordingClient) Fetch(ctx context.Context, url string) (*Recording, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = c.config.Timeout

	var rec *Recording
	attempt := 0
	op := func() error {
		attempt++
		r, err := c.fetchOnce(ctx, url)
		if err != nil {
			c.logger.Debug("Recording fetch attempt failed",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		rec = r
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, url, err)
	}
	return rec, nil
}

func (c *RecordingClient) fetchOnce(ctx context.Context, url string) (*Recording, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backoff.Permanent(fmt.Errorf("server returned %d", resp.StatusCode))
	}
	if resp.ContentLength > c.config.MaxBytes {
		return nil, backoff.Permanent(fmt.Errorf("recording of %d bytes exceeds %d", resp.ContentLength, c.config.MaxBytes))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.config.MaxBytes {
		return nil, backoff.Permanent(fmt.Errorf("recording exceeds %d bytes", c.config.MaxBytes))
	}
	if len(body) == 0 {
		return nil, backoff.Permanent(errors.New("empty recording"))
	}

	contentType := resp.Header.Get("Content-Type")
	return &Recording{
		Body:        body,
		ContentType: contentType,
		Ext:         extension(contentType, url),
	}, nil
}

func extension(contentType, url string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "audio/mpeg", "audio/mp3":
			return ".mp3"
		case "audio/wav", "audio/x-wav", "audio/wave":
			return ".wav"
		}
	}
	switch ext := path.Ext(url); ext {
	case ".mp3", ".wav":
		return ext
	}
	return ".mp3"
}
