package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/milalabs/licsync/internal/logger/tag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithQuiet(), WithWriter(&buf), WithFormat("json"))

	l.Info("sync finished", tag.Collection("demo"), tag.Count(3))

	out := buf.String()
	assert.Contains(t, out, `"msg":"sync finished"`)
	assert.Contains(t, out, `"collection":"demo"`)
	assert.Contains(t, out, `"count":3`)
}

func TestLogger_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithQuiet(), WithWriter(&buf))
	l.Debug("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	l = NewLogger(WithQuiet(), WithWriter(&buf), WithDebug())
	l.Debug("shown")
	out := buf.String()
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "logger_test.go:", "source should point at the caller")
}

func TestLogger_Formatted(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithQuiet(), WithWriter(&buf))
	l.Warnf("attempt %d of %d", 2, 3)
	assert.Contains(t, buf.String(), "attempt 2 of 3")
}

func TestContext_WithValues(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(WithQuiet(), WithWriter(&buf)))
	ctx = WithValues(ctx, tag.SyncID("abc"))

	Info(ctx, "cycle started")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "sync-id=abc")
}

func TestFromContext_Default(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}

func TestTag_LicenseKeyIsTruncated(t *testing.T) {
	attr := tag.LicenseKey("ABCDEFGH-1234")
	assert.Equal(t, "license-key", attr.Key)
	assert.NotContains(t, attr.Value.String(), "1234")
}
