// Package backup mirrors the record store into an S3-compatible bucket.
// Objects are always encrypted; downloads accept plaintext objects written
// by older deployments.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/milalabs/licsync/internal/cmn/config"
	"github.com/milalabs/licsync/internal/cmn/crypto"
	"github.com/milalabs/licsync/internal/logger"
	"github.com/milalabs/licsync/internal/logger/tag"
	"github.com/milalabs/licsync/internal/persis/filelicense"
)

const defaultConcurrency = 4

// RecordStore is the part of the record store the channel reads and writes.
type RecordStore interface {
	Snapshot(ctx context.Context) (map[string][]byte, error)
	WriteRaw(ctx context.Context, name string, data []byte) error
}

// Cipher seals objects before upload.
type Cipher interface {
	EncryptBytes(plaintext []byte) ([]byte, error)
	DecryptBytes(data []byte) ([]byte, error)
}

// Operation names a transfer direction.
type Operation string

const (
	OpUpload   Operation = "upload"
	OpDownload Operation = "download"
)

// Result describes one transfer pass.
type Result struct {
	Operation Operation     `json:"operation"`
	Success   bool          `json:"success"`
	Bucket    string        `json:"bucket"`
	Prefix    string        `json:"prefix,omitempty"`
	Files     []string      `json:"files"`
	Errors    []string      `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Channel copies collection files to and from the bucket.
type Channel struct {
	cfg     config.BackupConfig
	store   RecordStore
	cipher  Cipher
	objects objectStore
	hooks   []func(*Result)

	wg sync.WaitGroup
}

// New creates a Channel backed by minio-go.
func New(cfg config.BackupConfig, store RecordStore, cipher Cipher) (*Channel, error) {
	if !cfg.Enabled {
		return nil, ErrNotEnabled
	}
	if cfg.Bucket == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint and bucket are required", ErrConfig)
	}
	objects, err := newMinioStore(cfg)
	if err != nil {
		return nil, err
	}
	return newChannel(cfg, store, cipher, objects), nil
}

func newChannel(cfg config.BackupConfig, store RecordStore, cipher Cipher, objects objectStore) *Channel {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Channel{cfg: cfg, store: store, cipher: cipher, objects: objects}
}

// OnResult registers a hook called with every finished transfer. It is not
// safe to call concurrently with transfers.
func (c *Channel) OnResult(hook func(*Result)) {
	c.hooks = append(c.hooks, hook)
}

func (c *Channel) key(name string) string {
	return path.Join(strings.Trim(c.cfg.Prefix, "/"), name)
}

func (c *Channel) newResult(op Operation) *Result {
	return &Result{Operation: op, Bucket: c.cfg.Bucket, Prefix: c.cfg.Prefix}
}

// UploadAll encrypts every store file and puts it at <prefix>/<file>.
func (c *Channel) UploadAll(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := c.newResult(OpUpload)
	ctx = logger.WithValues(ctx, tag.Bucket(c.cfg.Bucket))

	snapshot, err := c.store.Snapshot(ctx)
	if err != nil {
		return c.done(ctx, result, start, err)
	}
	names := sortedNames(snapshot)

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.cfg.Concurrency)
	for _, name := range names {
		eg.Go(func() error {
			blob, err := c.cipher.EncryptBytes(snapshot[name])
			if err != nil {
				return fmt.Errorf("failed to encrypt %s: %w", name, err)
			}
			key := c.key(name)
			if err := c.objects.Put(ctx, key, blob); err != nil {
				return err
			}
			logger.Debug(ctx, "Uploaded backup object", tag.Key(key))
			mu.Lock()
			result.Files = append(result.Files, name)
			mu.Unlock()
			return nil
		})
	}
	err = eg.Wait()
	sort.Strings(result.Files)
	return c.done(ctx, result, start, err)
}

// DownloadAll writes every <prefix>/*.json object into the store. A bucket
// that does not exist yet holds nothing to restore.
func (c *Channel) DownloadAll(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := c.newResult(OpDownload)
	ctx = logger.WithValues(ctx, tag.Bucket(c.cfg.Bucket))

	dir := strings.Trim(c.cfg.Prefix, "/")
	prefix := dir + "/"
	if dir == "" {
		dir, prefix = ".", ""
	}
	keys, err := c.objects.List(ctx, prefix)
	if errors.Is(err, errNoSuchBucket) {
		logger.Info(ctx, "Backup bucket does not exist yet; nothing to restore")
		return c.done(ctx, result, start, nil)
	}
	if err != nil {
		return c.done(ctx, result, start, err)
	}

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.cfg.Concurrency)
	for _, key := range keys {
		name := path.Base(key)
		if path.Dir(key) != dir {
			continue
		}
		if _, ok := filelicense.CollectionFromFile(name); !ok {
			continue
		}
		eg.Go(func() error {
			plain, err := c.fetch(ctx, key)
			if err != nil {
				logger.Warn(ctx, "Skipping unreadable backup object", tag.Key(key), tag.Error(err))
				mu.Lock()
				result.Errors = append(result.Errors, err.Error())
				mu.Unlock()
				return nil
			}
			if err := c.store.WriteRaw(ctx, name, plain); err != nil {
				return err
			}
			mu.Lock()
			result.Files = append(result.Files, name)
			mu.Unlock()
			return nil
		})
	}
	err = eg.Wait()
	sort.Strings(result.Files)
	return c.done(ctx, result, start, err)
}

func (c *Channel) fetch(ctx context.Context, key string) ([]byte, error) {
	data, err := c.objects.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	plain, err := c.cipher.DecryptBytes(data)
	if err != nil {
		if !crypto.IsNotEncrypted(err) {
			return nil, fmt.Errorf("failed to decrypt %s: %w", key, err)
		}
		plain = data
	}
	if _, err := filelicense.Decode(plain); err != nil {
		return nil, fmt.Errorf("object %s is not a collection: %w", key, err)
	}
	return plain, nil
}

func (c *Channel) done(ctx context.Context, result *Result, start time.Time, err error) (*Result, error) {
	result.Duration = time.Since(start)
	result.Success = err == nil
	defer func() {
		for _, hook := range c.hooks {
			hook(result)
		}
	}()
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		logger.Error(ctx, "Backup failed", tag.Reason(string(result.Operation)), tag.Error(err))
		return result, err
	}
	logger.Info(ctx, "Backup finished",
		tag.Reason(string(result.Operation)),
		tag.Count(len(result.Files)),
		tag.Duration(result.Duration),
	)
	return result, nil
}

// Dispatch runs op in the background. The channel yields one result and is
// then closed; failures are reported there and never returned to callers.
func (c *Channel) Dispatch(ctx context.Context, op Operation) <-chan *Result {
	out := make(chan *Result, 1)
	ctx = context.WithoutCancel(ctx)
	c.wg.Go(func() {
		defer close(out)
		var result *Result
		switch op {
		case OpDownload:
			result, _ = c.DownloadAll(ctx)
		default:
			result, _ = c.UploadAll(ctx)
		}
		out <- result
	})
	return out
}

// Wait blocks until dispatched transfers finish.
func (c *Channel) Wait() {
	c.wg.Wait()
}

func sortedNames(snapshot map[string][]byte) []string {
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
