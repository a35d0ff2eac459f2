package logging

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type ctxKey int

const requestIDKey ctxKey = iota

var (
	_logger           = NewTmpLogger()
	_xRequestIDHeader = "x_request_id"
)

// Config mirrors the `log` section of config.yaml.
type Config struct {
	Level  string
	Pretty bool
}

func ReadConfig() *Config {
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.pretty", "LOG_PRETTY")

	return &Config{
		Level:  viper.GetString("log.level"),
		Pretty: viper.GetBool("log.pretty"),
	}
}

func NewLogger(cfg *Config) (*zap.Logger, error) {
	var c zap.Config
	var opts []zap.Option
	if cfg.Pretty {
		c = zap.NewDevelopmentConfig()
		opts = append(opts, zap.AddStacktrace(zap.ErrorLevel))
	} else {
		c = zap.NewProductionConfig()
	}

	level := zap.NewAtomicLevel()

	levelName := "INFO"
	if cfg.Level != "" {
		levelName = strings.ToUpper(cfg.Level)
	}

	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("could not parse log level %s", cfg.Level)
	}
	c.Level = level

	return c.Build(opts...)
}

func InitLogger(cfg *Config) (err error) {
	l, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	_logger = l
	return nil
}

func NewTmpLogger() *zap.Logger {
	c := zap.NewProductionConfig()
	c.DisableStacktrace = true
	l, err := c.Build()
	if err != nil {
		panic(err)
	}
	return l
}

// Base returns the process logger without request fields.
func Base() *zap.Logger {
	return _logger
}

// Logger Return new logger with context value
// ctx:  nillable
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil || ctx == context.TODO() {
		return _logger
	}
	return injectXRequestID(_logger, ctx)
}

func SetXRequestIDHeader(headerName string) {
	_xRequestIDHeader = headerName
}

// WithRequestID stores the request id so Logger(ctx) can attach it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func injectXRequestID(logger *zap.Logger, ctx context.Context) *zap.Logger {
	requestID := RequestID(ctx)
	if requestID == "" {
		return logger
	}
	return logger.With(zap.String(_xRequestIDHeader, requestID))
}
