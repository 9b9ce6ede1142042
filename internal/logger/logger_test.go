package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecretKeys(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.Info("configured", "llm_api_key", "sk-123", "Authorization", "Bearer x", "tree_id", "abc")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["llm_api_key"])
	assert.Equal(t, "[REDACTED]", fields["Authorization"])
	assert.Equal(t, "abc", fields["tree_id"])
}

func TestWithKeepsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core)).With("component", "tagger")

	log.Warn("slow")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "tagger", logs.All()[0].ContextMap()["component"])
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New("prod", "loud")
	assert.Error(t, err)

	log, err := New("dev", "warn")
	require.NoError(t, err)
	assert.False(t, log.SugaredLogger.Desugar().Core().Enabled(zap.InfoLevel))
}
