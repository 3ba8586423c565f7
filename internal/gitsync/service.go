package gitsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/milalabs/licsync/internal/cmn/backoff"
	"github.com/milalabs/licsync/internal/cmn/crypto"
	"github.com/milalabs/licsync/internal/cmn/fileutil"
	"github.com/milalabs/licsync/internal/license"
	"github.com/milalabs/licsync/internal/logger"
	"github.com/milalabs/licsync/internal/logger/tag"
	"github.com/milalabs/licsync/internal/persis/filelicense"
)

const (
	collectionExt = ".json"
	cloneFilePerm = 0644
	cloneDirPerm  = 0755
)

// Service defines the interface for Git sync operations.
type Service interface {
	// Pull fetches the remote, decrypts every collection and overwrites the
	// local copies.
	Pull(ctx context.Context) (*SyncResult, error)

	// Push encrypts every local collection into the clone, commits and pushes.
	Push(ctx context.Context) (*SyncResult, error)

	// Dispatch runs the cycle for trigger in the background. The channel
	// yields exactly one result and is then closed.
	Dispatch(ctx context.Context, trigger Trigger) <-chan *SyncResult

	// NotifyMutation records a local change and dispatches a push.
	NotifyMutation(ctx context.Context, collection string)

	// NotifyClear records that collection was emptied at the given time, so
	// conflict recovery does not merge the cleared records back in.
	NotifyClear(ctx context.Context, collection string, at time.Time)

	// GetStatus returns the in-memory sync state.
	GetStatus(ctx context.Context) (*SyncState, error)

	// TestConnection tests the connection to the remote repository.
	TestConnection(ctx context.Context) (*ConnectionResult, error)

	// Start runs the startup pull and starts the schedule and watcher.
	Start(ctx context.Context) error

	// Stop stops the schedule and watcher and waits for in-flight cycles.
	Stop() error
}

// RecordStore is the part of the record store the sync engine works with.
type RecordStore interface {
	Dir() string
	Snapshot(ctx context.Context) (map[string][]byte, error)
	ReadRaw(ctx context.Context, name string) ([]byte, error)
	WriteRaw(ctx context.Context, name string, data []byte) error
	Update(ctx context.Context, id string, fn func(license.Collection) (license.Collection, error)) error
}

// Cipher seals collection files before they reach the clone.
type Cipher interface {
	EncryptBytes(plaintext []byte) ([]byte, error)
	DecryptBytes(data []byte) ([]byte, error)
}

// ResultHook receives every finished result.
type ResultHook func(ctx context.Context, result *SyncResult)

// Option configures the service.
type Option func(*serviceImpl)

// WithObserver registers a hook called for every result, skipped ones
// included.
func WithObserver(hook ResultHook) Option {
	return func(s *serviceImpl) {
		s.observers = append(s.observers, hook)
	}
}

// WithAfterPush registers a hook called after a push that reached the
// remote.
func WithAfterPush(hook ResultHook) Option {
	return func(s *serviceImpl) {
		s.afterPush = append(s.afterPush, hook)
	}
}

// WithGitClientOptions passes options to the underlying GitClient.
func WithGitClientOptions(opts ...GitClientOption) Option {
	return func(s *serviceImpl) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

// serviceImpl implements the Service interface.
type serviceImpl struct {
	cfg        *Config
	dataDir    string
	store      RecordStore
	cipher     Cipher
	gitClient  *GitClient
	clientOpts []GitClientOption
	state      *stateTracker
	policy     backoff.RetryPolicy
	observers  []ResultHook
	afterPush  []ResultHook

	// cycleMu is held for the whole of a cycle; TryLock failures are skips.
	cycleMu     sync.Mutex
	mutationSeq atomic.Uint64
	inflight    sync.WaitGroup

	// clears holds unpushed admin clears by collection.
	clearMu sync.Mutex
	clears  map[string]time.Time

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	watcher *storeWatcher
}

var _ Service = (*serviceImpl)(nil)

// NewService creates a new Git sync service. The clone lives under
// <dataDir>/gitsync/repo, apart from the record store directory.
func NewService(cfg *Config, dataDir string, store RecordStore, cipher Cipher, opts ...Option) Service {
	s := &serviceImpl{
		cfg:     cfg,
		dataDir: dataDir,
		store:   store,
		cipher:  cipher,
		policy:  cfg.Retry.Policy(),
		clears:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	repoPath := filepath.Join(dataDir, "gitsync", "repo")
	s.gitClient = NewGitClient(cfg, repoPath, s.clientOpts...)
	s.state = newStateTracker(cfg, s.gitClient.MaskedURL())
	return s
}

// Pull fetches and decrypts the remote collections into the record store.
func (s *serviceImpl) Pull(ctx context.Context) (*SyncResult, error) {
	return s.pullWith(ctx, TriggerManual)
}

// Push encrypts the record store into the clone and pushes it.
func (s *serviceImpl) Push(ctx context.Context) (*SyncResult, error) {
	return s.pushWith(ctx, TriggerManual)
}

func (s *serviceImpl) pullWith(ctx context.Context, trigger Trigger) (*SyncResult, error) {
	return s.runExclusive(ctx, DirectionPull, trigger, s.validateEnabled, s.pull)
}

func (s *serviceImpl) pushWith(ctx context.Context, trigger Trigger) (*SyncResult, error) {
	return s.runExclusive(ctx, DirectionPush, trigger, s.validatePushEnabled, s.push)
}

// runExclusive runs fn as one cycle. It always returns a result; a cycle
// that finds another one in flight is reported as skipped.
func (s *serviceImpl) runExclusive(
	ctx context.Context,
	direction Direction,
	trigger Trigger,
	validate func() error,
	fn func(context.Context, *SyncResult) error,
) (*SyncResult, error) {
	result := &SyncResult{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Direction: direction,
		Trigger:   trigger,
		Timestamp: time.Now(),
	}
	ctx = logger.WithValues(ctx,
		tag.SyncID(result.ID),
		tag.Trigger(string(trigger)),
		tag.Direction(string(direction)),
	)

	if err := validate(); err != nil {
		result.Message = err.Error()
		s.finish(ctx, result, err)
		return result, err
	}

	if !s.cycleMu.TryLock() {
		result.Skipped = true
		result.Message = "another sync is in progress"
		s.finish(ctx, result, nil)
		return result, nil
	}
	defer s.cycleMu.Unlock()

	if err := s.gitClient.Lock(); err != nil {
		result.Message = "Failed to lock repository"
		s.finish(ctx, result, err)
		return result, err
	}
	defer func() {
		if err := s.gitClient.Unlock(); err != nil {
			logger.Warn(ctx, "Failed to release repository lock", tag.Error(err))
		}
	}()

	err := fn(ctx, result)
	s.state.setPhase(PhaseIdle)
	result.Success = err == nil
	s.finish(ctx, result, err)
	return result, err
}

func (s *serviceImpl) finish(ctx context.Context, result *SyncResult, err error) {
	result.Duration = time.Since(result.Timestamp)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, SyncError{Message: err.Error()})
	}
	s.state.record(result)

	switch {
	case result.Skipped:
		logger.Info(ctx, "Sync skipped", tag.Reason(result.Message))
	case result.Success:
		logger.Info(ctx, "Sync finished",
			tag.Count(len(result.Synced)),
			tag.Commit(result.Commit),
			tag.Duration(result.Duration),
		)
	default:
		logger.Error(ctx, "Sync failed", tag.Reason(result.Message), tag.Error(err), tag.Duration(result.Duration))
	}

	for _, hook := range s.observers {
		hook(ctx, result)
	}
	if result.Success && result.Direction == DirectionPush && result.Commit != "" {
		for _, hook := range s.afterPush {
			hook(ctx, result)
		}
	}
}

// pull is the pull path: clone or fast-forward, then decrypt every remote
// collection over its local copy. The remote wins.
func (s *serviceImpl) pull(ctx context.Context, result *SyncResult) error {
	s.state.setPhase(PhasePulling)

	var pullResult *PullResult
	err := backoff.Retry(ctx, func(ctx context.Context) error {
		if err := s.gitClient.EnsureCloned(ctx); err != nil {
			return err
		}
		var err error
		pullResult, err = s.gitClient.Pull(ctx)
		return err
	}, s.policy, isRetriable)
	if err != nil {
		result.Message = "Failed to pull changes"
		return err
	}
	s.state.setHead(pullResult.Commit)
	result.Commit = pullResult.Commit

	s.state.setPhase(PhaseDecrypting)
	files, err := s.gitClient.ListFiles(collectionExt)
	if err != nil {
		result.Message = "Failed to list remote collections"
		return err
	}
	for _, name := range files {
		id, ok := filelicense.CollectionFromFile(name)
		if !ok {
			logger.Debug(ctx, "Ignoring file that is not a collection", tag.File(name))
			continue
		}
		changed, err := s.importFile(ctx, name)
		if err != nil {
			var ioErr *filelicense.LocalIOError
			if errors.As(err, &ioErr) {
				result.Message = "Failed to write local collection"
				return err
			}
			logger.Warn(ctx, "Skipping unreadable remote collection", tag.Collection(id), tag.Error(err))
			result.Errors = append(result.Errors, SyncError{Collection: id, Message: err.Error()})
			continue
		}
		if changed {
			result.Synced = append(result.Synced, id)
		}
	}

	// The store now mirrors the remote; earlier clears are moot.
	s.forgetClears(nil)
	result.Message = buildPullMessage(pullResult, result.Synced)
	return nil
}

// importFile overwrites the local collection with the remote one and
// reports whether the local bytes changed.
func (s *serviceImpl) importFile(ctx context.Context, name string) (bool, error) {
	plain, err := s.readRemote(ctx, name)
	if err != nil {
		return false, err
	}
	current, err := s.store.ReadRaw(ctx, name)
	switch {
	case err == nil && bytes.Equal(current, plain):
		return false, nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return false, err
	}
	if err := s.store.WriteRaw(ctx, name, plain); err != nil {
		return false, err
	}
	return true, nil
}

// readRemote returns the plaintext of a clone file. Content that is not an
// encrypted blob is used as is, provided it parses as a collection.
func (s *serviceImpl) readRemote(ctx context.Context, name string) ([]byte, error) {
	path, err := s.gitClient.FilePath(name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path) //nolint:gosec // path is confined to the sync dir
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	plain, err := s.cipher.DecryptBytes(raw)
	if err != nil {
		if !crypto.IsNotEncrypted(err) {
			return nil, err
		}
		logger.Warn(ctx, "Remote collection is not encrypted; reading as plaintext", tag.File(name), tag.Reason(err.Error()))
		plain = raw
	}
	if _, err := filelicense.Decode(plain); err != nil {
		return nil, fmt.Errorf("remote %s is neither a readable blob nor a collection: %w", name, err)
	}
	return plain, nil
}

// push is the push path with conflict recovery: a rejected push merges
// the remote collections into the store and tries again.
func (s *serviceImpl) push(ctx context.Context, result *SyncResult) error {
	seq := s.mutationSeq.Load()
	clears := s.pendingClears()
	attempt := 0
	err := backoff.Retry(ctx, func(ctx context.Context) error {
		attempt++
		err := s.pushOnce(ctx, result)
		if !IsConflict(err) {
			return err
		}
		logger.Warn(ctx, "Push rejected; merging remote collections", tag.Attempt(attempt))
		if rerr := s.mergeRemote(ctx); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}, s.policy, isRetriable)
	if err != nil {
		if result.Message == "" {
			result.Message = "Failed to push changes"
		}
		return err
	}

	s.forgetClears(clears)
	if s.mutationSeq.Load() == seq {
		s.state.setPendingPush(false)
	}
	return nil
}

// pushOnce encrypts the store snapshot into the clone, commits and pushes.
// The clone's working copy is reset afterwards when anything failed; the
// record store itself is only read.
func (s *serviceImpl) pushOnce(ctx context.Context, result *SyncResult) (err error) {
	var snapshot map[string][]byte
	seq := s.mutationSeq.Load()
	defer func() {
		s.state.setPhase(PhaseRestoring)
		if err != nil {
			if rerr := s.gitClient.RestoreWorkingCopy(); rerr != nil {
				logger.Warn(ctx, "Failed to restore clone working copy", tag.Error(rerr))
			}
		}
		if snapshot != nil && s.mutationSeq.Load() == seq {
			s.verifyStore(ctx, snapshot)
		}
	}()

	s.state.setPhase(PhasePulling)
	if err = s.gitClient.EnsureCloned(ctx); err != nil {
		return err
	}

	s.state.setPhase(PhaseEncrypting)
	snapshot, err = s.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	written, err := s.exportSnapshot(snapshot)
	if err != nil {
		return err
	}

	commit, err := s.gitClient.CommitAll(commitMessage(written, time.Now()))
	if err != nil {
		return err
	}
	ahead, err := s.gitClient.Ahead()
	if err != nil {
		return err
	}
	if commit == "" && !ahead {
		result.Message = "Nothing to push"
		return nil
	}

	s.state.setPhase(PhasePushing)
	if err = s.gitClient.Push(ctx); err != nil {
		return err
	}

	head, _ := s.gitClient.HeadCommit()
	s.state.setHead(head)
	result.Commit = head
	result.Synced = written
	result.Message = fmt.Sprintf("Pushed %d collection(s)", len(written))
	return nil
}

// verifyStore warns when a store file no longer matches the bytes read at
// the start of the push. Nothing on the push path writes to the store.
func (s *serviceImpl) verifyStore(ctx context.Context, snapshot map[string][]byte) {
	current, err := s.store.Snapshot(ctx)
	if err != nil {
		logger.Warn(ctx, "Failed to re-read record store after push", tag.Error(err))
		return
	}
	for name, data := range snapshot {
		if !bytes.Equal(current[name], data) {
			logger.Warn(ctx, "Record store changed during push", tag.File(name))
		}
	}
}

// exportSnapshot writes an encrypted copy of every changed collection into
// the clone. Files whose decrypted content already matches are left alone
// so a fresh IV does not produce a new commit.
func (s *serviceImpl) exportSnapshot(snapshot map[string][]byte) ([]string, error) {
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := os.MkdirAll(s.gitClient.SyncDir(), cloneDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create sync directory: %w", err)
	}

	var written []string
	for _, name := range names {
		id, ok := filelicense.CollectionFromFile(name)
		if !ok {
			continue
		}
		plain := snapshot[name]
		path, err := s.gitClient.FilePath(name)
		if err != nil {
			return nil, err
		}
		if existing, err := os.ReadFile(path); err == nil { //nolint:gosec // path is confined to the sync dir
			if current, err := s.cipher.DecryptBytes(existing); err == nil && bytes.Equal(current, plain) {
				continue
			}
		}
		blob, err := s.cipher.EncryptBytes(plain)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt %s: %w", name, err)
		}
		if err := fileutil.WriteFileAtomic(path, blob, cloneFilePerm); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, id)
	}
	return written, nil
}

// mergeRemote resets the clone to the remote tip and folds every remote
// collection into the local one. Activation is kept from either side.
func (s *serviceImpl) mergeRemote(ctx context.Context) error {
	s.state.setPhase(PhasePulling)
	if err := s.gitClient.ResetToRemote(ctx); err != nil {
		return err
	}
	s.state.setPhase(PhaseDecrypting)

	files, err := s.gitClient.ListFiles(collectionExt)
	if err != nil {
		return err
	}
	for _, name := range files {
		id, ok := filelicense.CollectionFromFile(name)
		if !ok {
			continue
		}
		plain, err := s.readRemote(ctx, name)
		if err != nil {
			logger.Warn(ctx, "Skipping unreadable remote collection during merge", tag.Collection(id), tag.Error(err))
			continue
		}
		remote, err := filelicense.Decode(plain)
		if err != nil {
			continue
		}
		if clearedAt, ok := s.clearedAt(id); ok {
			dropped := len(remote)
			remote = remote.IssuedAfter(clearedAt)
			logger.Info(ctx, "Dropping remote records covered by a local clear",
				tag.Collection(id), tag.Count(dropped-len(remote)))
		}
		if err := s.store.Update(ctx, id, func(local license.Collection) (license.Collection, error) {
			return local.Merge(remote), nil
		}); err != nil {
			return err
		}
		logger.Info(ctx, "Merged remote collection", tag.Collection(id), tag.Count(len(remote)))
	}
	return nil
}

// Dispatch runs the cycle for trigger on its own goroutine. The caller's
// cancellation does not abort it.
func (s *serviceImpl) Dispatch(ctx context.Context, trigger Trigger) <-chan *SyncResult {
	out := make(chan *SyncResult, 1)
	ctx = context.WithoutCancel(ctx)
	s.inflight.Go(func() {
		defer close(out)
		out <- s.runTrigger(ctx, trigger)
	})
	return out
}

// runTrigger maps a trigger onto pull and push. Timer passes push first
// when local changes are pending and skip the pull if that push failed, so
// an authoritative pull never overwrites unpushed writes.
func (s *serviceImpl) runTrigger(ctx context.Context, trigger Trigger) *SyncResult {
	switch trigger {
	case TriggerMutation:
		result, _ := s.pushWith(ctx, trigger)
		return result

	case TriggerTimer, TriggerManual:
		if s.cfg.PushEnabled && (trigger == TriggerManual || s.state.pendingPush()) {
			result, err := s.pushWith(ctx, trigger)
			if err != nil || result.Skipped {
				return result
			}
		}
		result, _ := s.pullWith(ctx, trigger)
		return result

	default:
		result, _ := s.pullWith(ctx, trigger)
		return result
	}
}

// NotifyMutation marks local state as unpushed and dispatches a push.
// It has the shape of a license.MutationHook.
func (s *serviceImpl) NotifyMutation(ctx context.Context, collection string) {
	if !s.cfg.IsValid() || !s.cfg.PushEnabled {
		return
	}
	s.mutationSeq.Add(1)
	s.state.setPendingPush(true)
	logger.Debug(ctx, "Collection changed; dispatching push", tag.Collection(collection))
	s.Dispatch(ctx, TriggerMutation)
}

// NotifyClear remembers the clear until a push carries it to the remote.
// Call it before NotifyMutation. It has the shape of a license.ClearHook.
func (s *serviceImpl) NotifyClear(ctx context.Context, collection string, at time.Time) {
	s.clearMu.Lock()
	defer s.clearMu.Unlock()
	if prev, ok := s.clears[collection]; !ok || at.After(prev) {
		s.clears[collection] = at
	}
	logger.Debug(ctx, "Collection clear recorded", tag.Collection(collection))
}

func (s *serviceImpl) clearedAt(collection string) (time.Time, bool) {
	s.clearMu.Lock()
	defer s.clearMu.Unlock()
	at, ok := s.clears[collection]
	return at, ok
}

func (s *serviceImpl) pendingClears() map[string]time.Time {
	s.clearMu.Lock()
	defer s.clearMu.Unlock()
	return maps.Clone(s.clears)
}

// forgetClears drops the clears in pushed that were not superseded since.
// A nil map drops all of them.
func (s *serviceImpl) forgetClears(pushed map[string]time.Time) {
	s.clearMu.Lock()
	defer s.clearMu.Unlock()
	if pushed == nil {
		clear(s.clears)
		return
	}
	for id, at := range pushed {
		if s.clears[id].Equal(at) {
			delete(s.clears, id)
		}
	}
}

// GetStatus returns the overall sync status.
func (s *serviceImpl) GetStatus(_ context.Context) (*SyncState, error) {
	state := s.state.snapshot()
	return &state, nil
}

// TestConnection tests the connection to the remote repository.
func (s *serviceImpl) TestConnection(ctx context.Context) (*ConnectionResult, error) {
	if !s.cfg.Enabled {
		return &ConnectionResult{
			Success: false,
			Error:   "Git sync is not enabled",
		}, nil
	}

	if !s.cfg.IsValid() {
		return &ConnectionResult{
			Success: false,
			Error:   "Git sync configuration is invalid",
		}, nil
	}

	err := s.gitClient.TestConnection(ctx)
	if err != nil {
		return &ConnectionResult{
			Success: false,
			Error:   err.Error(),
		}, nil
	}

	return &ConnectionResult{
		Success: true,
		Message: "Connection successful",
	}, nil
}

// Start pulls once when configured to, then schedules timer passes and
// watches the store directory.
func (s *serviceImpl) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	if !s.cfg.IsValid() {
		return ErrNotConfigured
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	// The startup pull completes before the caller starts serving.
	if s.cfg.AutoSync.OnStartup {
		<-s.Dispatch(ctx, TriggerStartup)
	}

	if spec := s.cfg.CronSpec(); spec != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(spec, func() {
			<-s.Dispatch(ctx, TriggerTimer)
		}); err != nil {
			return fmt.Errorf("invalid sync schedule %q: %w", spec, err)
		}
		scheduler.Start()
		logger.Info(ctx, "Sync schedule started", tag.Reason(spec))

		s.mu.Lock()
		s.cron = scheduler
		s.mu.Unlock()
	}

	if s.cfg.AutoSync.Watch && s.cfg.PushEnabled {
		watcher, err := newStoreWatcher(s.store.Dir(), s.cfg.AutoSync.Debounce, func(names []string) {
			var ids []string
			for _, name := range names {
				if id, ok := filelicense.CollectionFromFile(name); ok {
					ids = append(ids, id)
				}
			}
			if len(ids) > 0 {
				s.NotifyMutation(ctx, strings.Join(ids, ","))
			}
		})
		if err != nil {
			logger.Warn(ctx, "Store watcher disabled", tag.Dir(s.store.Dir()), tag.Error(err))
		} else {
			watcher.Start(ctx)
			s.mu.Lock()
			s.watcher = watcher
			s.mu.Unlock()
		}
	}

	return nil
}

// Stop stops the auto-sync background workers and waits for in-flight
// cycles to finish.
func (s *serviceImpl) Stop() error {
	s.mu.Lock()
	s.running = false
	scheduler, watcher := s.cron, s.watcher
	s.cron, s.watcher = nil, nil
	s.mu.Unlock()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	var err error
	if watcher != nil {
		err = watcher.Close()
	}
	s.inflight.Wait()
	return err
}

func (s *serviceImpl) validateEnabled() error {
	if !s.cfg.Enabled {
		return ErrNotEnabled
	}
	if !s.cfg.IsValid() {
		return ErrNotConfigured
	}
	return nil
}

func (s *serviceImpl) validatePushEnabled() error {
	if err := s.validateEnabled(); err != nil {
		return err
	}
	if !s.cfg.PushEnabled {
		return ErrPushDisabled
	}
	return nil
}

func isRetriable(err error) bool {
	var (
		ioErr   *filelicense.LocalIOError
		pathErr *InvalidPathError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrCloneLocked):
		return false
	case errors.As(err, &ioErr), errors.As(err, &pathErr):
		return false
	}
	return true
}

func commitMessage(collections []string, now time.Time) string {
	return fmt.Sprintf("Sync %d license collection(s) at %s", len(collections), now.UTC().Format(time.RFC3339))
}

func buildPullMessage(pr *PullResult, synced []string) string {
	switch {
	case pr.RemoteEmpty:
		return "Remote has no collections yet"
	case len(synced) == 0:
		return "Local collections already match the remote"
	default:
		return fmt.Sprintf("Restored %d collection(s) from the remote", len(synced))
	}
}
