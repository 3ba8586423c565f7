package gitsync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/milalabs/licsync/internal/cmn/backoff"
	"github.com/milalabs/licsync/internal/cmn/crypto"
	"github.com/milalabs/licsync/internal/license"
	"github.com/milalabs/licsync/internal/persis/filelicense"
)

const testPassphrase = "correct horse battery staple"

// requireGit skips tests that push or fetch: go-git's file transport runs
// the git plumbing binaries.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary is required for file transport")
	}
}

func newBareRemote(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "remote.git")
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

func testConfig(remote string) *Config {
	return &Config{
		Enabled:     true,
		Repository:  remote,
		Branch:      "main",
		Path:        "licenses",
		PushEnabled: true,
		Commit: CommitConfig{
			AuthorName:  "Test User",
			AuthorEmail: "test@example.com",
		},
		Retry: backoff.Settings{
			InitialInterval: 10 * time.Millisecond,
			Factor:          1,
			MaxAttempts:     3,
		},
	}
}

func testCipher(t *testing.T) *crypto.Encryptor {
	t.Helper()
	enc, err := crypto.NewEncryptor(testPassphrase)
	require.NoError(t, err)
	return enc
}

type testNode struct {
	svc     Service
	store   *filelicense.Store
	manager *license.Manager
	dataDir string
}

func newTestNode(t *testing.T, cfg *Config, opts ...Option) *testNode {
	t.Helper()
	dataDir := t.TempDir()
	store := filelicense.New(filepath.Join(dataDir, "licenses"))
	svc := NewService(cfg, dataDir, store, testCipher(t), opts...)
	t.Cleanup(func() { _ = svc.Stop() })
	return &testNode{
		svc:     svc,
		store:   store,
		manager: license.NewManager(store, license.WithDefaultCollection("licenses")),
		dataDir: dataDir,
	}
}

func (n *testNode) record(t *testing.T, collection, key string) {
	t.Helper()
	created, err := n.manager.RecordLicense(context.Background(), collection, license.Record{
		LicenseKey:  key,
		ProductName: "Demo",
	})
	require.NoError(t, err)
	require.True(t, created)
}

// seedRemote commits files straight into the remote's branch.
func seedRemote(t *testing.T, remote, branch string, files map[string]string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))))
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: git.DefaultRemoteName, URLs: []string{remote}})
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		_, err = wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("seed", &git.CommitOptions{
		Author: &object.Signature{Name: "seed", Email: "seed@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	ref := plumbing.NewBranchReferenceName(branch)
	require.NoError(t, repo.Push(&git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(ref + ":" + ref)},
	}))
}

// readRemoteFile clones the remote and returns one file's bytes.
func readRemoteFile(t *testing.T, remote, branch, name string) []byte {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainClone(dir, false, &git.CloneOptions{
		URL:           remote,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	require.NoError(t, err)
	return data
}
