package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvHelpers(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("LINEAGE_TEST_STR", "value")
	t.Setenv("LINEAGE_TEST_BAD_DURATION", "soon")
	t.Setenv("LINEAGE_TEST_DURATION", "5s")
	t.Setenv("LINEAGE_TEST_LEVEL", "WARNING")

	assert.Equal(t, "value", GetEnvStr("LINEAGE_TEST_STR", "default"))
	assert.Equal(t, "default", GetEnvStr("LINEAGE_TEST_UNSET", "default"))
	assert.Equal(t, 5*time.Second, GetEnvDuration("LINEAGE_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("LINEAGE_TEST_BAD_DURATION", time.Second))
	assert.Equal(t, slog.LevelWarn, GetEnvLogLevel("LINEAGE_TEST_LEVEL", slog.LevelInfo))
	assert.Equal(t, slog.LevelInfo, GetEnvLogLevel("LINEAGE_TEST_UNSET", slog.LevelInfo))
}

func TestParseCommaSeparatedList(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, []string{}, ParseCommaSeparatedList(""))
	assert.Equal(t, []string{"a", "b"}, ParseCommaSeparatedList(" a, ,b ,"))
}
