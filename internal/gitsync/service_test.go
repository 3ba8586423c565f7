package gitsync

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milalabs/licsync/internal/cmn/crypto"
	"github.com/milalabs/licsync/internal/license"
	"github.com/milalabs/licsync/internal/persis/filelicense"
)

func TestService_PushEncryptsAndPullRestores(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := newBareRemote(t)

	a := newTestNode(t, testConfig(remote))
	a.record(t, "demo", "ABC-123")

	result, err := a.svc.Push(ctx)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.NotEmpty(t, result.Commit)
	assert.Equal(t, []string{"demo"}, result.Synced)

	// The remote only ever holds blobs.
	blob := readRemoteFile(t, remote, "main", "licenses/demo.json")
	assert.NotContains(t, string(blob), "ABC-123")
	_, err = crypto.ParseBlob(string(blob))
	require.NoError(t, err)

	b := newTestNode(t, testConfig(remote))
	result, err = b.svc.Pull(ctx)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, []string{"demo"}, result.Synced)

	rec, err := b.manager.LookupLicense(ctx, "demo", "ABC-123")
	require.NoError(t, err)
	assert.Equal(t, "Demo", rec.ProductName)
	assert.False(t, rec.Activated)
}

func TestService_NothingToPush(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := newBareRemote(t)

	n := newTestNode(t, testConfig(remote))
	n.record(t, "demo", "ABC-123")

	first, err := n.svc.Push(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first.Commit)

	// A fresh IV must not turn unchanged content into a new commit.
	second, err := n.svc.Push(ctx)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Empty(t, second.Commit)
	assert.Equal(t, "Nothing to push", second.Message)
}

func TestService_PullOverwritesLocal(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := newBareRemote(t)

	a := newTestNode(t, testConfig(remote))
	a.record(t, "demo", "REMOTE-1")
	_, err := a.svc.Push(ctx)
	require.NoError(t, err)

	b := newTestNode(t, testConfig(remote))
	b.record(t, "demo", "LOCAL-ONLY")

	_, err = b.svc.Pull(ctx)
	require.NoError(t, err)

	want, err := a.store.ReadRaw(ctx, "demo.json")
	require.NoError(t, err)
	got, err := b.store.ReadRaw(ctx, "demo.json")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestService_PullAcceptsPlaintextRemote(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := newBareRemote(t)
	seedRemote(t, remote, "main", map[string]string{
		"licenses/legacy.json": `{"count":1,"licenses":{"OLD-1":{"product_name":"Legacy","activated":true,"createdAt":"2024-01-02T03:04:05Z"}}}`,
		"licenses/broken.json": "not json and not a blob",
	})

	n := newTestNode(t, testConfig(remote))
	result, err := n.svc.Pull(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"legacy"}, result.Synced)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "broken", result.Errors[0].Collection)

	coll, err := n.store.Load(ctx, "legacy")
	require.NoError(t, err)
	require.Len(t, coll, 1)
	assert.True(t, coll[0].Activated)
	assert.Equal(t, 2024, coll[0].IssuedAt.Year())
}

func TestService_PushLeavesStoreBytesUntouched(t *testing.T) {
	requireGit(t)
	ctx := context.Background()

	for _, tc := range []struct {
		name   string
		remote func(t *testing.T) string
		ok     bool
	}{
		{name: "success", remote: newBareRemote, ok: true},
		{name: "failure", remote: func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.git") }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			n := newTestNode(t, testConfig(tc.remote(t)))
			n.record(t, "demo", "ABC-123")
			n.record(t, "other", "XYZ-789")

			before, err := n.store.Snapshot(ctx)
			require.NoError(t, err)

			result, err := n.svc.Push(ctx)
			assert.Equal(t, tc.ok, err == nil)
			assert.Equal(t, tc.ok, result.Success)

			after, err := n.store.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestService_ConflictMergesBothSides(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := newBareRemote(t)

	a := newTestNode(t, testConfig(remote))
	b := newTestNode(t, testConfig(remote))

	// Both clones exist before either pushes.
	_, err := a.svc.Pull(ctx)
	require.NoError(t, err)
	_, err = b.svc.Pull(ctx)
	require.NoError(t, err)

	a.record(t, "demo", "FROM-A")
	_, err = a.manager.Activate(ctx, "demo", "FROM-A")
	require.NoError(t, err)
	_, err = a.svc.Push(ctx)
	require.NoError(t, err)

	b.record(t, "demo", "FROM-B")
	result, err := b.svc.Push(ctx)
	require.NoError(t, err)
	require.True(t, result.Success)

	local, err := b.store.Load(ctx, "demo")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"FROM-A", "FROM-B"}, local.Keys())

	plain, err := testCipher(t).DecryptBytes(readRemoteFile(t, remote, "main", "licenses/demo.json"))
	require.NoError(t, err)
	remoteColl, err := filelicense.Decode(plain)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"FROM-A", "FROM-B"}, remoteColl.Keys())

	fromA, ok := remoteColl.Find("FROM-A")
	require.True(t, ok)
	assert.True(t, fromA.Activated, "merge must keep activation")
}

func TestService_ClearSurvivesConflict(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := newBareRemote(t)

	a := newTestNode(t, testConfig(remote))
	b := newTestNode(t, testConfig(remote))
	b.manager.OnClear(b.svc.NotifyClear)

	a.record(t, "demo", "OLD-1")
	_, err := a.svc.Push(ctx)
	require.NoError(t, err)
	_, err = b.svc.Pull(ctx)
	require.NoError(t, err)

	// The remote moves on while b clears its copy.
	a.record(t, "demo", "NEW-A")
	_, err = a.svc.Push(ctx)
	require.NoError(t, err)

	require.NoError(t, b.manager.ClearAll(ctx, "demo"))
	b.record(t, "demo", "AFTER-CLEAR")

	result, err := b.svc.Push(ctx)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.NotEmpty(t, result.Commit, "the clear must reach the remote")

	local, err := b.store.Load(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"AFTER-CLEAR"}, local.Keys())

	plain, err := testCipher(t).DecryptBytes(readRemoteFile(t, remote, "main", "licenses/demo.json"))
	require.NoError(t, err)
	remoteColl, err := filelicense.Decode(plain)
	require.NoError(t, err)
	assert.Equal(t, []string{"AFTER-CLEAR"}, remoteColl.Keys())

	_, pending := b.svc.(*serviceImpl).clearedAt("demo")
	assert.False(t, pending, "a pushed clear is forgotten")
}

func TestService_PullKeepsLocalOnlyCollections(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := newBareRemote(t)

	a := newTestNode(t, testConfig(remote))
	a.record(t, "demo", "REMOTE-1")
	pushed, err := a.svc.Push(ctx)
	require.NoError(t, err)

	b := newTestNode(t, testConfig(remote))
	b.record(t, "localonly", "UNPUSHED-1")
	before, err := b.store.ReadRaw(ctx, "localonly.json")
	require.NoError(t, err)

	result, err := b.svc.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, pushed.Commit, result.Commit)
	assert.Equal(t, []string{"demo"}, result.Synced)

	ids, err := b.store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"demo", "localonly"}, ids)

	after, err := b.store.ReadRaw(ctx, "localonly.json")
	require.NoError(t, err)
	assert.Equal(t, before, after, "collections the remote lacks are left alone")
}

func TestService_FailedPullReportsOnce(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(filepath.Join(t.TempDir(), "missing.git"))
	cfg.Retry.MaxAttempts = 2

	var (
		mu      sync.Mutex
		results []*SyncResult
	)
	n := newTestNode(t, cfg, WithObserver(func(_ context.Context, r *SyncResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	}))

	result, err := n.svc.Pull(ctx)
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Failed to pull changes", result.Message)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 1)
	assert.Same(t, result, results[0])
}

func TestService_SkipsWhenBusy(t *testing.T) {
	n := newTestNode(t, testConfig(newBareRemote(t)))
	impl := n.svc.(*serviceImpl)

	impl.cycleMu.Lock()
	result, err := n.svc.Pull(context.Background())
	impl.cycleMu.Unlock()

	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.False(t, result.Success)

	status, err := n.svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.Counts.Skipped)
	assert.Nil(t, status.LastPull)
}

func TestService_Disabled(t *testing.T) {
	cfg := testConfig("")
	cfg.Enabled = false
	n := newTestNode(t, cfg)

	result, err := n.svc.Pull(context.Background())
	assert.ErrorIs(t, err, ErrNotEnabled)
	require.NotNil(t, result)
	assert.False(t, result.Success)

	require.NoError(t, n.svc.Start(context.Background()))

	conn, err := n.svc.TestConnection(context.Background())
	require.NoError(t, err)
	assert.False(t, conn.Success)
}

func TestService_PushDisabled(t *testing.T) {
	cfg := testConfig(newBareRemote(t))
	cfg.PushEnabled = false
	n := newTestNode(t, cfg)

	_, err := n.svc.Push(context.Background())
	assert.ErrorIs(t, err, ErrPushDisabled)
}

func TestService_DispatchDeliversOneResult(t *testing.T) {
	requireGit(t)
	n := newTestNode(t, testConfig(newBareRemote(t)))
	n.record(t, "demo", "ABC-123")

	ch := n.svc.Dispatch(context.Background(), TriggerManual)
	select {
	case result := <-ch:
		require.NotNil(t, result)
		assert.True(t, result.Success)
		assert.Equal(t, DirectionPull, result.Direction)
		assert.Equal(t, TriggerManual, result.Trigger)
	case <-time.After(30 * time.Second):
		t.Fatal("no result")
	}
	_, open := <-ch
	assert.False(t, open)

	status, err := n.svc.GetStatus(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status.LastPush)
	require.NotNil(t, status.LastPull)
	assert.True(t, status.LastPush.Success)
	assert.NotEmpty(t, status.HeadCommit)
}

func TestService_MutationHookPushes(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := newBareRemote(t)

	pushed := make(chan *SyncResult, 4)
	n := newTestNode(t, testConfig(remote), WithAfterPush(func(_ context.Context, r *SyncResult) {
		pushed <- r
	}))
	n.manager.OnMutation(n.svc.NotifyMutation)

	_, err := n.manager.RecordLicense(ctx, "demo", license.Record{LicenseKey: "HOOK-1", ProductName: "Demo"})
	require.NoError(t, err)

	select {
	case r := <-pushed:
		assert.Equal(t, TriggerMutation, r.Trigger)
		assert.NotEmpty(t, r.Commit)
	case <-time.After(30 * time.Second):
		t.Fatal("mutation did not push")
	}

	require.NoError(t, n.svc.Stop())
	status, err := n.svc.GetStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.PendingPush)
}

func TestService_StartPullsAndStops(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := newBareRemote(t)

	a := newTestNode(t, testConfig(remote))
	a.record(t, "demo", "ABC-123")
	_, err := a.svc.Push(ctx)
	require.NoError(t, err)

	cfg := testConfig(remote)
	cfg.AutoSync = AutoSyncConfig{Enabled: true, OnStartup: true, Interval: 3600, Watch: true, Debounce: 20 * time.Millisecond}
	b := newTestNode(t, cfg)

	require.NoError(t, b.svc.Start(ctx))
	rec, err := b.manager.LookupLicense(ctx, "demo", "ABC-123")
	require.NoError(t, err)
	assert.Equal(t, "ABC-123", rec.LicenseKey)

	require.NoError(t, b.svc.Stop())
	require.NoError(t, b.svc.Stop())
}
