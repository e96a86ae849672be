package api

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobtt/pkg/btt"
	"github.com/marmos91/dittobtt/pkg/metrics"
	"github.com/marmos91/dittobtt/pkg/store/memory"
)

func newDevice(t *testing.T) *btt.BTT {
	t.Helper()
	dev, err := btt.New(memory.New(16<<20), btt.Options{UUID: uuid.New(), LBASize: 4096, NFree: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func TestRouter_Routes(t *testing.T) {
	h := NewRouter(APIConfig{}, newDevice(t), false)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/device", http.StatusOK},
		{http.MethodGet, "/api/v1/sectors/0", http.StatusOK},
		{http.MethodPost, "/api/v1/check", http.StatusOK},
		{http.MethodDelete, "/api/v1/sectors/0", http.StatusMethodNotAllowed},
		{http.MethodGet, "/metrics", http.StatusNotFound},
		{http.MethodGet, "/", http.StatusTemporaryRedirect},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRouter_NoDeviceServesHealthOnly(t *testing.T) {
	h := NewRouter(APIConfig{}, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/device", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	metrics.InitRegistry()
	dev := newDevice(t)
	h := NewRouter(APIConfig{}, dev, true)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sectors/0", bytes.NewReader(make([]byte, 4096)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIsHealthPath(t *testing.T) {
	assert.True(t, isHealthPath("/health"))
	assert.True(t, isHealthPath("/health/ready"))
	assert.False(t, isHealthPath("/healthz"))
	assert.False(t, isHealthPath("/api/v1/device"))
}

func TestServer_StartStop(t *testing.T) {
	srv := NewServer(APIConfig{}, newDevice(t), false)
	assert.Equal(t, 8080, srv.Port())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "dittobtt")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}

	// A second Stop is a no-op.
	assert.NoError(t, srv.Stop(context.Background()))
}
