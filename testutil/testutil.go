// Package testutil provides shared helpers for DaaD tests: quiet loggers
// and record fixtures.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger returns a logger that discards everything, keeping test output
// clean.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// UserRecord builds a small single-chunk user record.
func UserRecord(id, name string) map[string]any {
	return map[string]any{
		"id":   id,
		"name": name,
		"note": "fixture",
	}
}

// LargeRecord builds a record whose note field forces the chain to span
// multiple chunks at the given chunk size.
func LargeRecord(id string, chunkSize, chunks int) map[string]any {
	return map[string]any{
		"id":   id,
		"name": "fixture",
		"note": strings.Repeat("x", chunkSize*chunks),
	}
}

// Records builds n distinct user records with ids id-0 through id-(n-1).
func Records(prefix string, n int) []map[string]any {
	recs := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		recs[i] = UserRecord(fmt.Sprintf("%s-%d", prefix, i), fmt.Sprintf("user %d", i))
	}
	return recs
}
