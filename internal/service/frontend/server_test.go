package frontend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milalabs/licsync/internal/backup"
	"github.com/milalabs/licsync/internal/cmn/config"
	"github.com/milalabs/licsync/internal/gitsync"
	"github.com/milalabs/licsync/internal/license"
	"github.com/milalabs/licsync/internal/persis/filelicense"
)

const (
	testAdminKey = "admin-secret"
	testSecret   = "payhip-secret"
)

type fakeSyncer struct {
	result *gitsync.SyncResult
	calls  []gitsync.Trigger
}

func (f *fakeSyncer) Dispatch(_ context.Context, trigger gitsync.Trigger) <-chan *gitsync.SyncResult {
	f.calls = append(f.calls, trigger)
	ch := make(chan *gitsync.SyncResult, 1)
	ch <- f.result
	close(ch)
	return ch
}

func (f *fakeSyncer) GetStatus(context.Context) (*gitsync.SyncState, error) {
	return &gitsync.SyncState{Enabled: true, Branch: "main", Phase: gitsync.PhaseIdle}, nil
}

type fakeBackuper struct{}

func (fakeBackuper) Dispatch(_ context.Context, op backup.Operation) <-chan *backup.Result {
	ch := make(chan *backup.Result, 1)
	ch <- &backup.Result{Operation: op, Success: true, Files: []string{"licenses.json"}}
	close(ch)
	return ch
}

type testServer struct {
	*httptest.Server
	manager *license.Manager
	syncer  *fakeSyncer
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	store := filelicense.New(filepath.Join(t.TempDir(), "licenses"))
	manager := license.NewManager(store)
	syncer := &fakeSyncer{result: &gitsync.SyncResult{Direction: gitsync.DirectionPull, Success: true}}

	opts = append([]Option{WithSyncer(syncer), WithRegistry(prometheus.NewRegistry())}, opts...)
	srv := NewServer(config.Server{AdminKey: testAdminKey, WebhookSecret: testSecret}, manager, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, manager: manager, syncer: syncer}
}

func (ts *testServer) do(t *testing.T, method, path, body string, header http.Header) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp.StatusCode, out
}

func signedWebhook(key, productID string) string {
	payload := fmt.Sprintf(`{"email":"buyer@example.com","items":[{"license_key":%q,"product_id":%q,"product_name":"Demo"}]}`, key, productID)
	sig := sign(testSecret, []byte(payload))
	return strings.TrimSuffix(payload, "}") + fmt.Sprintf(`,"signature":%q}`, sig)
}

func adminHeader() http.Header {
	return http.Header{"X-Admin-Key": []string{testAdminKey}}
}

func TestServer_LicenseLifecycle(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/webhook/payhip", signedWebhook("ABC-123", "p1"), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = ts.do(t, http.MethodPost, "/validate_license", `{"Licensekey":"ABC-123"}`, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	lic := body["license"].(map[string]any)
	assert.Equal(t, "p1", lic["product_id"])
	assert.Equal(t, "buyer@example.com", lic["buyer_email"])
	assert.Equal(t, false, lic["activated"])

	status, body = ts.do(t, http.MethodPost, "/validate_license", `{"license_key":"ABC-123","activate":true}`, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["license"].(map[string]any)["activated"])

	status, body = ts.do(t, http.MethodGet, "/admin/licenses", "", adminHeader())
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])
	assert.Contains(t, body["licenses"], "ABC-123")

	status, _ = ts.do(t, http.MethodPost, "/admin/clear?key="+testAdminKey, "", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = ts.do(t, http.MethodPost, "/validate_license", `{"Licensekey":"ABC-123"}`, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Invalid license", body["message"])
}

func TestServer_WebhookRejections(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		header http.Header
		status int
	}{
		{
			name:   "missing signature",
			body:   `{"items":[{"license_key":"K","product_id":"p"}]}`,
			status: http.StatusForbidden,
		},
		{
			name:   "tampered payload",
			body:   strings.Replace(signedWebhook("K-1", "p1"), "K-1", "K-2", 1),
			status: http.StatusForbidden,
		},
		{
			name:   "missing product",
			body:   signedWebhook("K-1", ""),
			status: http.StatusBadRequest,
		},
		{
			name:   "header signature",
			body:   `{"email":"x@example.com","items":[{"license_key":"K-3","product_id":"p3"}]}`,
			header: http.Header{signatureHeader: []string{sign(testSecret, []byte(`{"email":"x@example.com","items":[{"license_key":"K-3","product_id":"p3"}]}`))}},
			status: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := ts.do(t, http.MethodPost, "/webhook/payhip", tt.body, tt.header)
			assert.Equal(t, tt.status, status)
		})
	}

	_, err := ts.manager.LookupLicense(context.Background(), "", "K-2")
	assert.ErrorIs(t, err, license.ErrNotFound)
}

func TestServer_ValidateMissingKey(t *testing.T) {
	ts := newTestServer(t)
	status, body := ts.do(t, http.MethodPost, "/validate_license", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing licenseKey", body["message"])
}

func TestServer_AdminAuth(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, http.MethodGet, "/admin/licenses", "", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ts.do(t, http.MethodGet, "/admin/licenses?key=wrong", "", nil)
	assert.Equal(t, http.StatusForbidden, status)

	closed := NewServer(config.Server{}, ts.manager)
	rec := httptest.NewRecorder()
	closed.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/licenses?key=", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_SyncRoutes(t *testing.T) {
	ts := newTestServer(t, WithBackuper(fakeBackuper{}))

	status, body := ts.do(t, http.MethodPost, "/admin/sync", "", adminHeader())
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []gitsync.Trigger{gitsync.TriggerManual}, ts.syncer.calls)

	status, body = ts.do(t, http.MethodGet, "/admin/sync/status", "", adminHeader())
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "main", body["branch"])

	status, body = ts.do(t, http.MethodPost, "/admin/backup", "", adminHeader())
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "upload", body["operation"])
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status, _ = ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
}
