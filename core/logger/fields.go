package logger

import (
	"strings"
	"time"
)

// defaultKeyOrder fixes the leading columns of every line; remaining keys are sorted.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"cycle_id",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"kind",
	"op",
	"seq",
	"lang",
	"outcome",
	"duration_ms",
	"cursor",
	"offset",
	"max_seen",
	"fetched",
	"handled",
	"skipped",
	"replay",
	"messages",
	"kb",
	"endpoint",
	"http_code",
	"driver",
	"db",
	"err",
	"err_code",
	"err_kind",
	"retryable",
	"attempts",
	"backoff_ms",
}

var levelNames = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// knownOutcome is enforced: unknown outcomes are dropped from the line.
var knownOutcome = map[string]bool{
	"ok":        true,
	"fail":      true,
	"skip":      true,
	"cancelled": true,
}

func levelName(level string) string {
	if name, ok := levelNames[strings.ToLower(level)]; ok {
		return name
	}
	if level == "" {
		return "INFO"
	}
	return strings.ToUpper(level)
}

// Status maps err to the status field value.
func Status(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

// Took returns the rounded time elapsed since start.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to whole milliseconds, clamping negatives to zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings joins at most limit values and reports whether the list was cut.
func SummarizeStrings(values []string, limit int) (string, bool) {
	if limit <= 0 {
		return "", len(values) > 0
	}
	if len(values) <= limit {
		return strings.Join(values, ", "), false
	}
	return strings.Join(values[:limit], ", "), true
}
