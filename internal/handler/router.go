package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
)

// Config mirrors the `server` section of config.yaml. MediaRoot is filled in
// from the media store.
type Config struct {
	Port           string
	MediaRoot      string
	TracingEnabled bool
	ServiceName    string
}

func ReadConfig() *Config {
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("server.tracing_enabled", "SERVER_TRACING_ENABLED")
	viper.BindEnv("service.name", "DD_SERVICE")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("service.name", "malasakit")

	return &Config{
		Port:           viper.GetString("server.port"),
		TracingEnabled: viper.GetBool("server.tracing_enabled"),
		ServiceName:    viper.GetString("service.name"),
	}
}

// NewRouter builds the HTTP surface: webhooks, health and the media files the
// provider plays back.
func NewRouter(h *SurveyHandler, cfg *Config) *gin.Engine {
	r := gin.New()
	if cfg.TracingEnabled {
		r.Use(gintrace.Middleware(cfg.ServiceName))
	}
	r.Use(RequestID(h.extractor), AccessLog(), Recovery(h.survey.Apology))

	h.Register(r)
	if cfg.MediaRoot != "" {
		r.Static("/media", cfg.MediaRoot)
	}
	return r
}
