package backup

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milalabs/licsync/internal/cmn/config"
	"github.com/milalabs/licsync/internal/cmn/crypto"
	"github.com/milalabs/licsync/internal/license"
	"github.com/milalabs/licsync/internal/persis/filelicense"
)

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	missing bool
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) Put(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeObjects) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, ErrDownloadFailed
	}
	return data, nil
}

func (f *fakeObjects) List(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing {
		return nil, errNoSuchBucket
	}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func setup(t *testing.T, objects objectStore) (*Channel, *filelicense.Store, *license.Manager) {
	t.Helper()
	enc, err := crypto.NewEncryptor("backup passphrase")
	require.NoError(t, err)
	store := filelicense.New(filepath.Join(t.TempDir(), "licenses"))
	cfg := config.BackupConfig{Enabled: true, Bucket: "licsync", Prefix: "/prod/", Concurrency: 2}
	return newChannel(cfg, store, enc, objects), store, license.NewManager(store)
}

func TestChannel_UploadIsEncrypted(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	ch, _, manager := setup(t, objects)

	_, err := manager.RecordLicense(ctx, "licenses", license.Record{LicenseKey: "ABC-123", ProductName: "Demo"})
	require.NoError(t, err)
	_, err = manager.RecordLicense(ctx, "extra", license.Record{LicenseKey: "XYZ-789"})
	require.NoError(t, err)

	result, err := ch.UploadAll(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"extra.json", "licenses.json"}, result.Files)

	require.Len(t, objects.objects, 2)
	for key, data := range objects.objects {
		assert.True(t, strings.HasPrefix(key, "prod/"), key)
		assert.NotContains(t, string(data), "ABC-123")
		_, err := crypto.ParseBlob(string(data))
		assert.NoError(t, err)
	}
}

func TestChannel_RoundTrip(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	src, _, manager := setup(t, objects)

	_, err := manager.RecordLicense(ctx, "licenses", license.Record{LicenseKey: "ABC-123", ProductName: "Demo"})
	require.NoError(t, err)
	_, err = src.UploadAll(ctx)
	require.NoError(t, err)

	dst, store, _ := setup(t, objects)
	// Same passphrase, different store.
	result, err := dst.DownloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"licenses.json"}, result.Files)

	coll, err := store.Load(ctx, "licenses")
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC-123"}, coll.Keys())
}

func TestChannel_DownloadAcceptsPlaintext(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	objects.objects["prod/legacy.json"] = []byte(`{"count":1,"licenses":{"OLD-1":{"product_id":"p1"}}}`)
	objects.objects["prod/garbage.json"] = []byte("not a collection")
	objects.objects["prod/notes.txt"] = []byte("ignored")
	objects.objects["prod/nested/other.json"] = []byte("[]")

	ch, store, _ := setup(t, objects)
	result, err := ch.DownloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy.json"}, result.Files)
	assert.Len(t, result.Errors, 1)

	coll, err := store.Load(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, []string{"OLD-1"}, coll.Keys())
}

func TestChannel_MissingBucket(t *testing.T) {
	objects := newFakeObjects()
	objects.missing = true
	ch, _, _ := setup(t, objects)

	result, err := ch.DownloadAll(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Files)
}

func TestChannel_DispatchReportsFailure(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	objects.putErr = errors.New("bucket is read-only")
	ch, _, manager := setup(t, objects)
	_, err := manager.RecordLicense(ctx, "licenses", license.Record{LicenseKey: "ABC-123"})
	require.NoError(t, err)

	result := <-ch.Dispatch(ctx, OpUpload)
	ch.Wait()
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, strings.Join(result.Errors, ";"), "read-only")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(config.BackupConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrNotEnabled)

	_, err = New(config.BackupConfig{Enabled: true, Bucket: "b"}, nil, nil)
	assert.ErrorIs(t, err, ErrConfig)

	ch, err := New(config.BackupConfig{Enabled: true, Endpoint: "localhost:9000", Bucket: "b"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultConcurrency, ch.cfg.Concurrency)
}

func TestChannel_OnResult(t *testing.T) {
	ch, _, _ := setup(t, newFakeObjects())
	var got []*Result
	ch.OnResult(func(r *Result) { got = append(got, r) })

	result, err := ch.UploadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Same(t, result, got[0])
}
