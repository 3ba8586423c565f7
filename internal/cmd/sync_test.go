package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/milalabs/licsync/internal/gitsync"
)

func TestPrintSyncResult(t *testing.T) {
	tests := []struct {
		name   string
		result *gitsync.SyncResult
		want   []string
	}{
		{
			name: "Pushed",
			result: &gitsync.SyncResult{
				Direction: gitsync.DirectionPush,
				Success:   true,
				Message:   "Pushed 1 collection(s)",
				Synced:    []string{"demo"},
				Commit:    "abc123",
				Duration:  1500 * time.Microsecond,
			},
			want: []string{"push ok: Pushed 1 collection(s) (2ms)", "collections: demo", "commit: abc123"},
		},
		{
			name: "Skipped",
			result: &gitsync.SyncResult{
				Direction: gitsync.DirectionPull,
				Skipped:   true,
				Message:   "another sync is in progress",
			},
			want: []string{"pull skipped: another sync is in progress"},
		},
		{
			name: "Failed",
			result: &gitsync.SyncResult{
				Direction: gitsync.DirectionPull,
				Message:   "Failed to pull changes",
				Errors:    []gitsync.SyncError{{Collection: "broken", Message: "bad blob"}, {Message: "remote unreachable"}},
			},
			want: []string{"pull failed: Failed to pull changes", "error [broken]: bad blob", "error: remote unreachable"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printSyncResult(&buf, tt.result)
			out := buf.String()
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			assert.NotContains(t, out, "\x1b[", "no color codes outside a terminal")
		})
	}
}

func TestPrintSyncResult_Nil(t *testing.T) {
	var buf bytes.Buffer
	printSyncResult(&buf, nil)
	assert.Empty(t, buf.String())
}
