package storage_test

import (
	"testing"
	"time"
)

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return tm
}

func futureTime(t *testing.T) time.Time {
	t.Helper()
	return mustParseTime(t, "2099-01-01T00:00:00Z")
}
