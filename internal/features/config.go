package features

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Language struct {
	Code string
	Name string
}

type Config struct {
	// BaseURL prefixes every callback URL handed to the provider. Empty
	// means host-relative URLs.
	BaseURL            string
	Languages          []Language
	DefaultLanguage    string
	MaxCommentsPerCall int
	QuantRecordSeconds int
	QualRecordSeconds  int
	// RecordTimeoutSeconds is the trailing silence that ends a recording.
	RecordTimeoutSeconds int
	SweepAge             time.Duration
	SweepInterval        time.Duration
	Apology              string
	Skipped              string
	Closing              string
}

func DefaultConfig() Config {
	return Config{
		Languages: []Language{
			{Code: "en", Name: "English"},
			{Code: "tl", Name: "Tagalog"},
		},
		DefaultLanguage:      "en",
		MaxCommentsPerCall:   2,
		QuantRecordSeconds:   3,
		QualRecordSeconds:    10,
		RecordTimeoutSeconds: 5,
		SweepAge:             600 * time.Second,
		SweepInterval:        60 * time.Second,
		Apology:              "Sorry, something went wrong. Please call again later.",
		Skipped:              "Recording not saved, skipping.",
		Closing:              "Thank you for taking the survey. Goodbye.",
	}
}

func ReadConfig() *Config {
	viper.BindEnv("server.base_url", "SERVER_BASE_URL")
	viper.BindEnv("survey.languages", "LANGUAGES")
	viper.BindEnv("survey.default_language", "DEFAULT_LANGUAGE")
	viper.BindEnv("survey.max_comments_per_call", "MAX_COMMENTS_PER_CALL")
	viper.BindEnv("survey.quant_record_seconds", "QUANT_RECORD_SECONDS")
	viper.BindEnv("survey.qual_record_seconds", "QUAL_RECORD_SECONDS")
	viper.BindEnv("recording.record_timeout_s", "RECORD_TIMEOUT_S")
	viper.BindEnv("sweep.age_s", "ABANDONED_SWEEP_AGE_S")
	viper.BindEnv("sweep.interval_s", "SWEEP_INTERVAL_S")

	cfg := DefaultConfig()
	cfg.BaseURL = strings.TrimRight(viper.GetString("server.base_url"), "/")
	if v := viper.GetString("survey.languages"); v != "" {
		cfg.Languages = ParseLanguages(v)
	}
	if v := viper.GetString("survey.default_language"); v != "" {
		cfg.DefaultLanguage = strings.ToLower(v)
	}
	if v := viper.GetInt("survey.max_comments_per_call"); v > 0 {
		cfg.MaxCommentsPerCall = v
	}
	if v := viper.GetInt("survey.quant_record_seconds"); v > 0 {
		cfg.QuantRecordSeconds = v
	}
	if v := viper.GetInt("survey.qual_record_seconds"); v > 0 {
		cfg.QualRecordSeconds = v
	}
	if v := viper.GetInt("recording.record_timeout_s"); v > 0 {
		cfg.RecordTimeoutSeconds = v
	}
	if v := viper.GetInt("sweep.age_s"); v > 0 {
		cfg.SweepAge = time.Duration(v) * time.Second
	}
	if v := viper.GetInt("sweep.interval_s"); v > 0 {
		cfg.SweepInterval = time.Duration(v) * time.Second
	}
	return &cfg
}

// ParseLanguages reads "en:English,tl:Tagalog". A bare code is its own name.
func ParseLanguages(s string) []Language {
	var out []Language
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, name, ok := strings.Cut(part, ":")
		if !ok {
			name = code
		}
		out = append(out, Language{Code: strings.ToLower(strings.TrimSpace(code)), Name: strings.TrimSpace(name)})
	}
	return out
}

// Language returns code when it is configured, the default otherwise.
func (c *Config) Language(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, l := range c.Languages {
		if l.Code == code {
			return code
		}
	}
	return c.DefaultLanguage
}
