package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditscore/internal/config"
)

func TestBuildSinks(t *testing.T) {
	sinks, err := buildSinks(config.Config{Sinks: []string{"stdout"}})
	require.NoError(t, err)
	assert.Len(t, sinks, 1)

	_, err = buildSinks(config.Config{Sinks: []string{"stdout", "carrier-pigeon"}})
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestCompile_RequiresSource(t *testing.T) {
	_, err := Compile(context.Background(), config.Config{})
	assert.ErrorContains(t, err, "source.dsn")
}

func TestCompileStream_UnknownDriver(t *testing.T) {
	cfg := config.Config{Scoring: config.ScoringConfig{Driver: "librdkafka"}}
	_, err := CompileStream(cfg, fakeScorer{})
	assert.Error(t, err)
}
