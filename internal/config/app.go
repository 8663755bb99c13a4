package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/docqa/pkg/log"
)

type AppConfig struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8000"`

	// Session storage
	SessionDBPath  string `env:"SESSION_DB_PATH" envDefault:"./data/sessions.db"`
	SessionTTLSecs int    `env:"SESSION_TTL" envDefault:"3600"`

	// Conversation cache
	MaxCachedSessions int `env:"MAX_CACHED_SESSIONS" envDefault:"100"`
	CleanupSecs       int `env:"CLEANUP_INTERVAL" envDefault:"300"`
	ContextWindowSize int `env:"CONTEXT_WINDOW_SIZE" envDefault:"30"`

	// Vector store
	VectorStorePath string `env:"VECTOR_STORE_PATH" envDefault:"./chroma_db"`
	RetrievalTopK   int    `env:"RETRIEVAL_TOP_K" envDefault:"4"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse app config")
	}
	return c
}

func (c AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSecs) * time.Second
}

func (c AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupSecs) * time.Second
}
