package filelicense

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/milalabs/licsync/internal/cmn/fileutil"
	"github.com/milalabs/licsync/internal/license"
	"github.com/milalabs/licsync/internal/logger"
	"github.com/milalabs/licsync/internal/logger/tag"
)

const (
	fileExt  = ".json"
	dirPerm  = 0700
	filePerm = 0600
)

// LocalIOError reports a filesystem failure in the store directory.
type LocalIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error { return e.Err }

var _ license.Store = (*Store)(nil)

// Store keeps one JSON file per collection in a directory.
type Store struct {
	dir    string
	layout string
	cache  *fileutil.Cache[license.Collection]
	mu     sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithLayout sets the shape used when writing. Both shapes are read.
func WithLayout(layout string) Option {
	return func(s *Store) {
		s.layout = layout
	}
}

// WithFileCache caches parsed collections.
func WithFileCache(cache *fileutil.Cache[license.Collection]) Option {
	return func(s *Store) {
		s.cache = cache
	}
}

// New creates a new file-based store at the given directory.
func New(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, layout: LayoutMap}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// FileName returns the file name for a collection id.
func FileName(id string) string {
	return id + fileExt
}

// CollectionFromFile returns the collection id of a store file name.
func CollectionFromFile(name string) (string, bool) {
	if !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	id := strings.TrimSuffix(filepath.Base(name), fileExt)
	return id, license.ValidCollectionID(id)
}

func (s *Store) path(id string) (string, error) {
	if !license.ValidCollectionID(id) {
		return "", fmt.Errorf("%w: %q", license.ErrInvalidCollection, id)
	}
	return filepath.Join(s.dir, FileName(id)), nil
}

// Load returns the collection. A missing file is an empty collection; an
// unparsable file is logged and also read as empty.
func (s *Store) Load(ctx context.Context, id string) (license.Collection, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, _, err := s.load(ctx, path)
	return coll, err
}

// load reports parse failures through the second return so Update can keep
// the unreadable file aside before replacing it.
func (s *Store) load(ctx context.Context, path string) (license.Collection, bool, error) {
	read := func() (license.Collection, error) {
		data, err := os.ReadFile(path) //nolint:gosec // path is built from a validated id
		if err != nil {
			return nil, err
		}
		return Decode(data)
	}

	var (
		coll license.Collection
		err  error
	)
	if s.cache != nil {
		coll, err = s.cache.LoadLatest(path, read)
	} else {
		coll, err = read()
	}

	switch {
	case err == nil:
		return clone(coll), false, nil
	case errors.Is(err, os.ErrNotExist):
		return license.Collection{}, false, nil
	case isReadError(err):
		return nil, false, &LocalIOError{Op: "read", Path: path, Err: err}
	default:
		logger.Warn(ctx, "Unreadable collection file treated as empty", tag.File(path), tag.Error(err))
		return license.Collection{}, true, nil
	}
}

// Save replaces the collection file.
func (s *Store) Save(ctx context.Context, id string, coll license.Collection) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(ctx, path, coll)
}

func (s *Store) save(_ context.Context, path string, coll license.Collection) error {
	data, err := Encode(coll, s.layout)
	if err != nil {
		return err
	}
	return s.writeFile(path, data)
}

// Update runs fn on the current collection and saves the result, holding
// the store lock for the whole read-modify-write.
func (s *Store) Update(ctx context.Context, id string, fn func(license.Collection) (license.Collection, error)) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, corrupt, err := s.load(ctx, path)
	if err != nil {
		return err
	}
	next, err := fn(coll)
	if err != nil {
		return err
	}
	if corrupt {
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if err := os.Rename(path, aside); err != nil {
			return &LocalIOError{Op: "move aside", Path: path, Err: err}
		}
		logger.Warn(ctx, "Moved unreadable collection file aside", tag.File(aside))
	}
	return s.save(ctx, path, next)
}

// Clear writes an empty collection.
func (s *Store) Clear(ctx context.Context, id string) error {
	return s.Save(ctx, id, license.Collection{})
}

// List returns the ids of all collection files, sorted.
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names, err := s.fileNames()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, _ := CollectionFromFile(name)
		ids = append(ids, id)
	}
	return ids, nil
}

// ReadRaw returns the bytes of a store file.
func (s *Store) ReadRaw(_ context.Context, name string) ([]byte, error) {
	path, err := s.rawPath(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path) //nolint:gosec // path is built from a validated id
	if err != nil {
		return nil, &LocalIOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// WriteRaw replaces a store file with data as-is.
func (s *Store) WriteRaw(_ context.Context, name string, data []byte) error {
	path, err := s.rawPath(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeFile(path, data)
}

// Snapshot returns the bytes of every collection file keyed by file name.
func (s *Store) Snapshot(_ context.Context) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names, err := s.fileNames()
	if err != nil {
		return nil, err
	}
	snap := make(map[string][]byte, len(names))
	for _, name := range names {
		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path) //nolint:gosec // name comes from the store directory listing
		if err != nil {
			return nil, &LocalIOError{Op: "read", Path: path, Err: err}
		}
		snap[name] = data
	}
	return snap, nil
}

func (s *Store) rawPath(name string) (string, error) {
	id, ok := CollectionFromFile(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", license.ErrInvalidCollection, name)
	}
	return s.path(id)
}

func (s *Store) writeFile(path string, data []byte) error {
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return &LocalIOError{Op: "create directory", Path: s.dir, Err: err}
	}
	if err := fileutil.WriteFileAtomic(path, data, filePerm); err != nil {
		return &LocalIOError{Op: "write", Path: path, Err: err}
	}
	if s.cache != nil {
		s.cache.Invalidate(path)
	}
	return nil
}

func (s *Store) fileNames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &LocalIOError{Op: "list", Path: s.dir, Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || fileutil.IsTempFile(e.Name()) {
			continue
		}
		if _, ok := CollectionFromFile(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func isReadError(err error) bool {
	var pathErr *os.PathError
	return errors.As(err, &pathErr)
}

func clone(coll license.Collection) license.Collection {
	out := make(license.Collection, len(coll))
	copy(out, coll)
	return out
}
