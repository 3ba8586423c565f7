package gitsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/gofrs/flock"
	gossh "golang.org/x/crypto/ssh"

	"github.com/milalabs/licsync/internal/cmn/fileutil"
	"github.com/milalabs/licsync/internal/cmn/masking"
	"github.com/milalabs/licsync/internal/logger"
	"github.com/milalabs/licsync/internal/logger/tag"
)

const (
	defaultSSHUser = "git"
	fileProtocol   = "file"
	httpProtocol   = "http"
	httpsProtocol  = "https"
	sshKeyFile     = "id_licsync"
	privateDirPerm = 0700
	privateFile    = 0600
)

// PullResult describes what a pull did to the clone.
type PullResult struct {
	AlreadyUpToDate bool
	RemoteEmpty     bool
	// Reset is true when the local branch could not fast-forward and was
	// reset to the remote tip.
	Reset  bool
	Commit string
}

// GitClient wraps a local clone of the remote repository.
type GitClient struct {
	cfg      *Config
	repoPath string
	sshDir   string
	repo     *git.Repository
	lock     *flock.Flock
	progress io.Writer
}

// GitClientOption configures a GitClient.
type GitClientOption func(*GitClient)

// WithProgress streams transfer progress to w with credentials masked.
func WithProgress(w io.Writer) GitClientOption {
	return func(c *GitClient) {
		if w == nil {
			return
		}
		c.progress = masking.NewMaskingWriter(w, masking.NewMasker(c.cfg.Auth.Token, c.cfg.Auth.SSHPassphrase))
	}
}

// NewGitClient creates a client for the clone at repoPath. Nothing touches
// the disk until Clone or Open is called.
func NewGitClient(cfg *Config, repoPath string, opts ...GitClientOption) *GitClient {
	c := &GitClient{
		cfg:      cfg,
		repoPath: repoPath,
		sshDir:   filepath.Join(filepath.Dir(repoPath), "ssh"),
		lock:     flock.New(repoPath + ".lock"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaskedURL returns the repository URL without credentials.
func (c *GitClient) MaskedURL() string {
	return masking.MaskURL(c.cfg.Repository)
}

// RepoPath returns the clone directory.
func (c *GitClient) RepoPath() string {
	return c.repoPath
}

// SyncDir returns the directory inside the clone holding collection files.
func (c *GitClient) SyncDir() string {
	if c.cfg.Path == "" {
		return c.repoPath
	}
	return filepath.Join(c.repoPath, filepath.FromSlash(c.cfg.Path))
}

// Lock takes the inter-process lock on the clone.
func (c *GitClient) Lock() error {
	if err := os.MkdirAll(filepath.Dir(c.repoPath), privateDirPerm); err != nil {
		return fmt.Errorf("failed to create sync directory: %w", err)
	}
	locked, err := c.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", c.repoPath, err)
	}
	if !locked {
		return ErrCloneLocked
	}
	return nil
}

// Unlock releases the lock taken by Lock.
func (c *GitClient) Unlock() error {
	return c.lock.Unlock()
}

// IsCloned reports whether a clone exists on disk.
func (c *GitClient) IsCloned() bool {
	_, err := os.Stat(filepath.Join(c.repoPath, git.GitDirName))
	return err == nil
}

// EnsureCloned clones the repository when absent and opens it otherwise.
func (c *GitClient) EnsureCloned(ctx context.Context) error {
	if !c.IsCloned() {
		return c.Clone(ctx)
	}
	if c.repo != nil {
		return c.refreshRemoteURL()
	}
	return c.Open()
}

// Clone clones the configured branch. An empty remote, or a remote without
// the branch, yields a fresh repository whose first commit creates it.
func (c *GitClient) Clone(ctx context.Context) error {
	auth, err := c.authMethod()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.repoPath), privateDirPerm); err != nil {
		return fmt.Errorf("failed to create sync directory: %w", err)
	}

	logger.Info(ctx, "Cloning repository", tag.Remote(c.MaskedURL()), tag.Branch(c.cfg.Branch))

	repo, err := git.PlainCloneContext(ctx, c.repoPath, false, &git.CloneOptions{
		URL:           c.cfg.Repository,
		Auth:          auth,
		ReferenceName: c.branchRef(),
		SingleBranch:  true,
		Progress:      c.progress,
	})
	if err != nil {
		_ = os.RemoveAll(c.repoPath)
		if isEmptyRemote(err) {
			logger.Info(ctx, "Remote has no commits on branch; starting a new history", tag.Branch(c.cfg.Branch))
			return c.initEmpty()
		}
		return classifyRemoteError("clone", c.MaskedURL(), err)
	}
	c.repo = repo

	// A clone of an empty remote has no HEAD commit; make sure the first
	// commit lands on the configured branch.
	if _, err := repo.Head(); errors.Is(err, plumbing.ErrReferenceNotFound) {
		head := plumbing.NewSymbolicReference(plumbing.HEAD, c.branchRef())
		if err := repo.Storer.SetReference(head); err != nil {
			return fmt.Errorf("failed to set HEAD: %w", err)
		}
	}
	return nil
}

// Open opens an existing clone and points origin at the configured URL.
func (c *GitClient) Open() error {
	repo, err := git.PlainOpen(c.repoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	c.repo = repo
	return c.refreshRemoteURL()
}

func (c *GitClient) initEmpty() error {
	repo, err := git.PlainInit(c.repoPath, false)
	if err != nil {
		return fmt.Errorf("failed to init repository: %w", err)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name:  git.DefaultRemoteName,
		URLs:  []string{c.cfg.Repository},
		Fetch: []gitconfig.RefSpec{c.fetchRefSpec()},
	}); err != nil {
		return fmt.Errorf("failed to create remote: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, c.branchRef())
	if err := repo.Storer.SetReference(head); err != nil {
		return fmt.Errorf("failed to set HEAD: %w", err)
	}
	c.repo = repo
	return nil
}

// refreshRemoteURL rewrites origin when the configured URL changed.
func (c *GitClient) refreshRemoteURL() error {
	cfg, err := c.repo.Config()
	if err != nil {
		return fmt.Errorf("failed to read repository config: %w", err)
	}
	if remote, ok := cfg.Remotes[git.DefaultRemoteName]; ok &&
		len(remote.URLs) == 1 && remote.URLs[0] == c.cfg.Repository {
		return nil
	}
	cfg.Remotes[git.DefaultRemoteName] = &gitconfig.RemoteConfig{
		Name:  git.DefaultRemoteName,
		URLs:  []string{c.cfg.Repository},
		Fetch: []gitconfig.RefSpec{c.fetchRefSpec()},
	}
	if err := c.repo.Storer.SetConfig(cfg); err != nil {
		return fmt.Errorf("failed to update remote: %w", err)
	}
	return nil
}

// Pull fast-forwards the branch. When that is impossible the local branch
// is reset to the remote tip; the clone only ever holds state re-derived
// from the record store.
func (c *GitClient) Pull(ctx context.Context) (*PullResult, error) {
	if c.repo == nil {
		return nil, ErrRepoNotCloned
	}
	auth, err := c.authMethod()
	if err != nil {
		return nil, err
	}
	wt, err := c.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	result := &PullResult{}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    git.DefaultRemoteName,
		ReferenceName: c.branchRef(),
		SingleBranch:  true,
		Auth:          auth,
		Progress:      c.progress,
	})
	switch {
	case err == nil:
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		result.AlreadyUpToDate = true
	default:
		classified := classifyRemoteError("pull", c.MaskedURL(), err)
		if IsAuth(classified) {
			return nil, classified
		}
		if !isEmptyRemote(err) {
			logger.Warn(ctx, "Pull could not fast-forward; resetting to remote",
				tag.Branch(c.cfg.Branch), tag.Error(err))
		}
		if err := c.ResetToRemote(ctx); err != nil {
			return nil, err
		}
		if _, err := c.repo.Reference(c.remoteRef(), true); err != nil {
			result.RemoteEmpty = true
			return result, nil
		}
		result.Reset = true
	}

	result.Commit, _ = c.HeadCommit()
	return result, nil
}

// ResetToRemote fetches and hard-resets the branch to the remote tip,
// dropping untracked files. An empty remote leaves the clone untouched.
func (c *GitClient) ResetToRemote(ctx context.Context) error {
	if c.repo == nil {
		return ErrRepoNotCloned
	}
	if err := c.fetch(ctx); err != nil {
		if isEmptyRemote(err) {
			return nil
		}
		return classifyRemoteError("fetch", c.MaskedURL(), err)
	}

	ref, err := c.repo.Reference(c.remoteRef(), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", c.remoteRef(), err)
	}

	// Reset moves the branch HEAD points at, so the branch must exist.
	if err := c.repo.Storer.SetReference(plumbing.NewHashReference(c.branchRef(), ref.Hash())); err != nil {
		return fmt.Errorf("failed to move %s: %w", c.branchRef(), err)
	}
	wt, err := c.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("failed to reset to %s: %w", ref.Hash(), err)
	}
	return wt.Clean(&git.CleanOptions{Dir: true})
}

// RestoreWorkingCopy discards uncommitted changes in the clone.
func (c *GitClient) RestoreWorkingCopy() error {
	if c.repo == nil {
		return nil
	}
	wt, err := c.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if head, err := c.repo.Head(); err == nil {
		if err := wt.Reset(&git.ResetOptions{Commit: head.Hash(), Mode: git.HardReset}); err != nil {
			return fmt.Errorf("failed to reset working copy: %w", err)
		}
	}
	return wt.Clean(&git.CleanOptions{Dir: true})
}

func (c *GitClient) fetch(ctx context.Context) error {
	auth, err := c.authMethod()
	if err != nil {
		return err
	}
	err = c.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{c.fetchRefSpec()},
		Auth:       auth,
		Force:      true,
		Progress:   c.progress,
	})
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// CommitAll stages every change under the sync path, deletions included,
// and commits. It returns "" when there was nothing to commit.
func (c *GitClient) CommitAll(message string) (string, error) {
	if c.repo == nil {
		return "", ErrRepoNotCloned
	}
	wt, err := c.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("failed to get status: %w", err)
	}

	prefix := c.syncPrefix()
	changed := 0
	for file, st := range status {
		if !strings.HasPrefix(file, prefix) || fileutil.IsTempFile(path.Base(file)) {
			continue
		}
		switch {
		case st.Worktree == git.Deleted:
			if _, err := wt.Remove(file); err != nil {
				return "", fmt.Errorf("failed to stage removal of %s: %w", file, err)
			}
		case st.Worktree != git.Unmodified:
			if _, err := wt.Add(file); err != nil {
				return "", fmt.Errorf("failed to stage %s: %w", file, err)
			}
		case st.Staging == git.Unmodified:
			continue
		}
		changed++
	}
	if changed == 0 {
		return "", nil
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  c.cfg.GetAuthorName(),
			Email: c.cfg.GetAuthorEmail(),
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return hash.String(), nil
}

// Push pushes the branch. A rejected push returns *RemoteConflictError;
// the client never force-pushes.
func (c *GitClient) Push(ctx context.Context) error {
	if c.repo == nil {
		return ErrRepoNotCloned
	}
	auth, err := c.authMethod()
	if err != nil {
		return err
	}
	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", c.branchRef(), c.branchRef()))
	err = c.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth,
		Progress:   c.progress,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return classifyRemoteError("push", c.MaskedURL(), err)
	}

	// Keep the tracking ref in step so Ahead reflects what the remote has.
	if head, err := c.repo.Head(); err == nil {
		_ = c.repo.Storer.SetReference(plumbing.NewHashReference(c.remoteRef(), head.Hash()))
	}
	return nil
}

// Ahead reports whether HEAD has commits the remote branch lacks.
func (c *GitClient) Ahead() (bool, error) {
	if c.repo == nil {
		return false, ErrRepoNotCloned
	}
	head, err := c.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	remote, err := c.repo.Reference(c.remoteRef(), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to resolve %s: %w", c.remoteRef(), err)
	}
	if head.Hash() == remote.Hash() {
		return false, nil
	}

	headCommit, err := c.repo.CommitObject(head.Hash())
	if err != nil {
		return false, fmt.Errorf("failed to read HEAD commit: %w", err)
	}
	remoteCommit, err := c.repo.CommitObject(remote.Hash())
	if err != nil {
		// Tracking ref points at an object we never fetched.
		return true, nil
	}
	behind, err := headCommit.IsAncestor(remoteCommit)
	if err != nil {
		return false, fmt.Errorf("failed to compare commits: %w", err)
	}
	return !behind, nil
}

// HeadCommit returns the hash HEAD points at, or "" before the first commit.
func (c *GitClient) HeadCommit() (string, error) {
	if c.repo == nil {
		return "", ErrRepoNotCloned
	}
	head, err := c.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}

// ListFiles returns the names of files in the sync directory with one of
// the given extensions, sorted.
func (c *GitClient) ListFiles(exts ...string) ([]string, error) {
	entries, err := os.ReadDir(c.SyncDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.SyncDir(), err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || fileutil.IsTempFile(e.Name()) {
			continue
		}
		ext := filepath.Ext(e.Name())
		for _, want := range exts {
			if ext == want {
				files = append(files, e.Name())
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// FilePath returns the path of a file in the sync directory.
func (c *GitClient) FilePath(name string) (string, error) {
	return safeJoinWithinBase(c.SyncDir(), name)
}

// TestConnection lists the remote refs without touching the clone.
func (c *GitClient) TestConnection(ctx context.Context) error {
	auth, err := c.authMethod()
	if err != nil {
		return err
	}
	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{c.cfg.Repository},
	})
	_, err = remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err == nil || errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return nil
	}
	return classifyRemoteError("connect to", c.MaskedURL(), err)
}

func (c *GitClient) branchRef() plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(c.cfg.Branch)
}

func (c *GitClient) remoteRef() plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(git.DefaultRemoteName, c.cfg.Branch)
}

func (c *GitClient) fetchRefSpec() gitconfig.RefSpec {
	return gitconfig.RefSpec(fmt.Sprintf("+%s:%s", c.branchRef(), c.remoteRef()))
}

// syncPrefix is the slash-separated status path prefix of the sync dir.
func (c *GitClient) syncPrefix() string {
	p := path.Clean(filepath.ToSlash(c.cfg.Path))
	if p == "." || p == "" || p == "/" {
		return ""
	}
	return strings.TrimPrefix(p, "/") + "/"
}

// authMethod builds transport auth from the structured credential. The
// protocol of the URL decides which credential applies.
func (c *GitClient) authMethod() (transport.AuthMethod, error) {
	endpoint, err := transport.NewEndpoint(c.cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("invalid repository URL %s: %w", c.MaskedURL(), err)
	}
	if endpoint.Protocol == fileProtocol || c.cfg.Auth.Type == AuthTypeNone {
		return nil, nil
	}
	if endpoint.Protocol == httpProtocol || endpoint.Protocol == httpsProtocol {
		if c.cfg.Auth.Token == "" {
			return nil, nil
		}
		username := c.cfg.Auth.Username
		if username == "" {
			username = defaultTokenUsername
		}
		return &githttp.BasicAuth{Username: username, Password: c.cfg.Auth.Token}, nil
	}
	return c.sshAuthMethod(endpoint)
}

func (c *GitClient) sshAuthMethod(endpoint *transport.Endpoint) (transport.AuthMethod, error) {
	keyPath, err := c.sshKeyPath()
	if err != nil {
		return nil, err
	}
	if keyPath == "" {
		// go-git falls back to the ssh agent.
		return nil, nil
	}
	if _, err := os.Stat(keyPath); err != nil {
		return nil, fmt.Errorf("failed to find ssh key file: %w", err)
	}

	user := endpoint.User
	if user == "" {
		user = defaultSSHUser
	}
	keys, err := ssh.NewPublicKeysFromFile(user, keyPath, c.cfg.Auth.SSHPassphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to create ssh public keys: %w", err)
	}
	callback, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	keys.HostKeyCallback = callback
	return keys, nil
}

func (c *GitClient) hostKeyCallback() (gossh.HostKeyCallback, error) {
	if c.cfg.Auth.InsecureIgnoreHostKey {
		return gossh.InsecureIgnoreHostKey(), nil //nolint:gosec // opt-in via insecureIgnoreHostKey
	}
	var files []string
	if c.cfg.Auth.KnownHostsPath != "" {
		files = append(files, c.cfg.Auth.KnownHostsPath)
	}
	callback, err := ssh.NewKnownHostsCallback(files...)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return callback, nil
}

// sshKeyPath returns the key file to use, writing an inline key to the
// private ssh directory first.
func (c *GitClient) sshKeyPath() (string, error) {
	if c.cfg.Auth.SSHKey == "" {
		return c.cfg.Auth.SSHKeyPath, nil
	}
	if err := os.MkdirAll(c.sshDir, privateDirPerm); err != nil {
		return "", fmt.Errorf("failed to create ssh directory: %w", err)
	}
	if err := os.Chmod(c.sshDir, privateDirPerm); err != nil {
		return "", fmt.Errorf("failed to restrict ssh directory: %w", err)
	}

	// Keys passed through env often carry literal \n sequences.
	key := strings.ReplaceAll(strings.TrimSpace(c.cfg.Auth.SSHKey), `\n`, "\n") + "\n"
	keyPath := filepath.Join(c.sshDir, sshKeyFile)
	if existing, err := os.ReadFile(keyPath); err == nil && string(existing) == key { //nolint:gosec // fixed path under the data dir
		return keyPath, nil
	}
	if err := fileutil.WriteFileAtomic(keyPath, []byte(key), privateFile); err != nil {
		return "", fmt.Errorf("failed to write ssh key: %w", err)
	}
	return keyPath, nil
}

func isEmptyRemote(err error) bool {
	return errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.Is(err, plumbing.ErrReferenceNotFound) ||
		errors.Is(err, git.NoMatchingRefSpecError{})
}

func safeJoinWithinBase(baseDir, relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", &InvalidPathError{Path: relativePath, Reason: "absolute paths are not allowed"}
	}

	cleanRel := filepath.Clean(relativePath)
	if cleanRel == "." || cleanRel == ".." {
		return "", &InvalidPathError{Path: relativePath, Reason: "must be a valid relative path"}
	}
	if strings.HasPrefix(cleanRel, ".."+string(filepath.Separator)) {
		return "", &InvalidPathError{Path: relativePath, Reason: "path traversal is not allowed"}
	}

	fullPath := filepath.Join(baseDir, cleanRel)
	relToBase, err := filepath.Rel(baseDir, fullPath)
	if err != nil || relToBase == ".." || strings.HasPrefix(relToBase, ".."+string(filepath.Separator)) {
		return "", &InvalidPathError{Path: relativePath, Reason: "path escapes allowed base directory"}
	}
	return fullPath, nil
}
