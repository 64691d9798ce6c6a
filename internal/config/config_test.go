package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_HasUsableDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "local", cfg.KEKBackend)
	require.Equal(t, "noop", cfg.DefaultTranscriptionProvider)
	require.Equal(t, "noop", cfg.DefaultLLMProvider)
	require.Positive(t, cfg.TranscriptionTimeout)
	require.Positive(t, cfg.LLMTimeout)
	require.Positive(t, cfg.RetryMaxAttempts)
}

func TestWithContextAndFromContext(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	got := FromContext(ctx)
	require.Same(t, &cfg, got)
}

func TestFromContext_NilWhenAbsent(t *testing.T) {
	require.Nil(t, FromContext(context.Background()))
}
