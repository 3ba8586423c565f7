// Package tag provides standardized tag functions for structured logging.
//
// All tag keys use kebab-case naming convention for consistency.
// Use these functions instead of raw strings so the sync engine, the store
// and the HTTP boundary emit the same keys.
package tag

import (
	"log/slog"
	"time"
)

// Error creates a tag for error objects.
func Error(err any) slog.Attr {
	return slog.Any("err", err)
}

// Collection creates a tag for license collection ids.
func Collection(id string) slog.Attr {
	return slog.String("collection", id)
}

// LicenseKey creates a tag for a license key. Only a short prefix is kept.
func LicenseKey(key string) slog.Attr {
	if len(key) > 4 {
		key = key[:4] + "…"
	}
	return slog.String("license-key", key)
}

// Product creates a tag for product names.
func Product(name string) slog.Attr {
	return slog.String("product", name)
}

// Remote creates a tag for a remote location. Callers pass masked URLs only.
func Remote(url string) slog.Attr {
	return slog.String("remote", url)
}

// Branch creates a tag for git branch names.
func Branch(name string) slog.Attr {
	return slog.String("branch", name)
}

// Commit creates a tag for commit hashes.
func Commit(hash string) slog.Attr {
	return slog.String("commit", hash)
}

// SyncID creates a tag for a single sync cycle.
func SyncID(id string) slog.Attr {
	return slog.String("sync-id", id)
}

// Trigger creates a tag for what started a sync cycle.
func Trigger(name string) slog.Attr {
	return slog.String("trigger", name)
}

// Direction creates a tag for pull or push.
func Direction(d string) slog.Attr {
	return slog.String("direction", d)
}

// Phase creates a tag for the orchestrator phase.
func Phase(name string) slog.Attr {
	return slog.String("phase", name)
}

// Attempt creates a tag for attempt numbers.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Interval creates a tag for a wait before the next attempt.
func Interval(d time.Duration) slog.Attr {
	return slog.Duration("next-attempt-in", d)
}

// Duration creates a tag for elapsed time.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Count creates a tag for a number of items.
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// File creates a tag for file paths.
func File(path string) slog.Attr {
	return slog.String("file", path)
}

// Dir creates a tag for directory paths.
func Dir(path string) slog.Attr {
	return slog.String("dir", path)
}

// Bucket creates a tag for object storage buckets.
func Bucket(name string) slog.Attr {
	return slog.String("bucket", name)
}

// Key creates a tag for object keys.
func Key(key string) slog.Attr {
	return slog.String("key", key)
}

// Addr creates a tag for listen addresses.
func Addr(addr string) slog.Attr {
	return slog.String("addr", addr)
}

// Reason creates a tag for a human readable reason.
func Reason(reason string) slog.Attr {
	return slog.String("reason", reason)
}
