// Package session maps telephony call ids to respondent ids so stateless
// callbacks can find the caller they belong to.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

var ErrConflict = errors.New("call already bound to another respondent")

const (
	DefaultTTL = time.Hour

	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config mirrors the `session` section of config.yaml.
type Config struct {
	Backend string
	TTL     time.Duration
}

func ReadConfig() *Config {
	viper.BindEnv("session.backend", "SESSION_BACKEND")
	viper.BindEnv("session.ttl_s", "SESSION_TTL_S")
	viper.SetDefault("session.backend", BackendRedis)

	ttl := time.Duration(viper.GetInt("session.ttl_s")) * time.Second
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Config{
		Backend: viper.GetString("session.backend"),
		TTL:     ttl,
	}
}

type Binder interface {
	// Bind is idempotent for the same respondent and fails with ErrConflict
	// for a different one.
	Bind(ctx context.Context, callSid string, respondentID int64) error
	// Rebind overwrites whatever the call is bound to.
	Rebind(ctx context.Context, callSid string, respondentID int64) error
	// Resolve reports ok=false for an unknown or expired call.
	Resolve(ctx context.Context, callSid string) (respondentID int64, ok bool, err error)
	Forget(ctx context.Context, callSid string) error
	Ping(ctx context.Context) error
}

func key(callSid string) string {
	return fmt.Sprintf("call:%s", callSid)
}
