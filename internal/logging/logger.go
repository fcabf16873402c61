// Package logging builds the process logger from LINEAGE_LOG_LEVEL and LINEAGE_LOG_FORMAT.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/correlator-io/kafka-lineage/internal/config"
)

const (
	LevelEnvVar  = "LINEAGE_LOG_LEVEL"
	FormatEnvVar = "LINEAGE_LOG_FORMAT"

	FormatJSON = "json"
	FormatText = "text"
)

// FromEnv returns a logger writing to stdout, configured from the environment.
func FromEnv() *slog.Logger {
	return New(os.Stdout, config.GetEnvLogLevel(LevelEnvVar, slog.LevelInfo), config.GetEnvStr(FormatEnvVar, FormatJSON))
}

// New returns a JSON logger, or a colored tint logger when format is "text".
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	if strings.EqualFold(format, FormatText) {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level: level,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					a.Value = slog.StringValue(formatRFC3339Millis(a.Value.Time()))
				}

				return a
			},
		}))
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()

	return fmt.Sprintf("%s.%03dZ", t.Format("2006-01-02T15:04:05"), t.Nanosecond()/1_000_000)
}
