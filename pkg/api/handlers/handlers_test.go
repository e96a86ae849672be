package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobtt/pkg/btt"
	"github.com/marmos91/dittobtt/pkg/store/memory"
)

const testLBASize = 4096

func newTestDevice(t *testing.T) *btt.BTT {
	t.Helper()
	dev, err := btt.New(memory.New(16<<20), btt.Options{
		UUID:    uuid.New(),
		LBASize: testLBASize,
		NFree:   4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func newFormattedDevice(t *testing.T) *btt.BTT {
	t.Helper()
	dev := newTestDevice(t)
	require.NoError(t, dev.Format(context.Background()))
	return dev
}

func newReadOnlyDevice(t *testing.T) *btt.BTT {
	t.Helper()
	dev, err := btt.New(memory.New(16<<20), btt.Options{
		UUID:     uuid.New(),
		LBASize:  testLBASize,
		NFree:    4,
		ReadOnly: true,
	})
	require.NoError(t, err)
	return dev
}

// route mounts the sector and device handlers the way the API router does.
func route(dev Device, maxSectors int) http.Handler {
	r := chi.NewRouter()
	sh := NewSectorHandler(dev, maxSectors)
	dh := NewDeviceHandler(dev)
	r.Get("/sectors/{sector}", sh.Read)
	r.Put("/sectors/{sector}", sh.Write)
	r.Get("/device", dh.Get)
	r.Post("/check", dh.Check)
	return r
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) Problem {
	t.Helper()
	assert.Equal(t, ContentTypeProblemJSON, w.Header().Get("Content-Type"))
	var p Problem
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	return p
}

func TestSectorWriteThenRead(t *testing.T) {
	h := route(newTestDevice(t), 8)

	payload := bytes.Repeat([]byte{0xAB}, 2*testLBASize)
	w := do(t, h, http.MethodPut, "/sectors/5", payload)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/sectors/5?count=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ContentTypeOctetStream, w.Header().Get("Content-Type"))
	assert.Equal(t, payload, w.Body.Bytes())
}

func TestSectorReadUnformattedReturnsZeros(t *testing.T) {
	h := route(newTestDevice(t), 8)

	w := do(t, h, http.MethodGet, "/sectors/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, make([]byte, testLBASize), w.Body.Bytes())
}

func TestSectorRequestValidation(t *testing.T) {
	dev := newTestDevice(t)
	h := route(dev, 4)
	last := dev.NumLBA() - 1

	tests := []struct {
		name   string
		method string
		target string
		body   []byte
		status int
		errno  string
	}{
		{"bad sector", http.MethodGet, "/sectors/abc", nil, http.StatusBadRequest, ""},
		{"zero count", http.MethodGet, "/sectors/0?count=0", nil, http.StatusBadRequest, ""},
		{"count over limit", http.MethodGet, "/sectors/0?count=5", nil, http.StatusBadRequest, ""},
		{"read past end", http.MethodGet, fmt.Sprintf("/sectors/%d?count=2", last), nil, http.StatusRequestedRangeNotSatisfiable, "EIO"},
		{"short body", http.MethodPut, "/sectors/0", make([]byte, 100), http.StatusBadRequest, ""},
		{"empty body", http.MethodPut, "/sectors/0", nil, http.StatusBadRequest, ""},
		{"body over limit", http.MethodPut, "/sectors/0", make([]byte, 5*testLBASize), http.StatusRequestEntityTooLarge, ""},
		{"write past end", http.MethodPut, fmt.Sprintf("/sectors/%d", dev.NumLBA()), make([]byte, testLBASize), http.StatusRequestedRangeNotSatisfiable, "EIO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code)
			p := decodeProblem(t, w)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.errno, p.Errno)
		})
	}
}

func TestSectorWriteReadOnly(t *testing.T) {
	h := route(newReadOnlyDevice(t), 8)

	w := do(t, h, http.MethodPut, "/sectors/0", make([]byte, testLBASize))
	assert.Equal(t, http.StatusForbidden, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, "EROFS", p.Errno)
}

func TestDeviceInfo(t *testing.T) {
	dev := newFormattedDevice(t)
	h := route(dev, 8)

	w := do(t, h, http.MethodGet, "/device", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var info btt.Info
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.Equal(t, dev.UUID().String(), info.UUID)
	assert.Equal(t, "ready", info.State)
	assert.Equal(t, dev.NumLBA(), info.NumLBA)
	assert.Len(t, info.Arenas, 1)
}

func TestDeviceCheck(t *testing.T) {
	dev := newFormattedDevice(t)
	require.NoError(t, dev.Write(context.Background(), 1, make([]byte, testLBASize)))
	h := route(dev, 8)

	w := do(t, h, http.MethodPost, "/check", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report btt.CheckReport
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.ArenasChecked)
}

// failingDevice reports a media error on every I/O.
type failingDevice struct {
	*btt.BTT
	err error
}

func (d failingDevice) Read(context.Context, uint64, []byte) error  { return d.err }
func (d failingDevice) Write(context.Context, uint64, []byte) error { return d.err }
func (d failingDevice) Check(context.Context) (*btt.CheckReport, error) {
	return nil, d.err
}

func TestDeviceErrorMapping(t *testing.T) {
	base := newTestDevice(t)

	tests := []struct {
		name   string
		err    error
		status int
		errno  string
	}{
		{"corrupted", fmt.Errorf("arena 0: %w", btt.ErrCorrupted), http.StatusInternalServerError, "EIO"},
		{"map error", btt.ErrMapError, http.StatusInternalServerError, "EIO"},
		{"closed", btt.ErrClosed, http.StatusServiceUnavailable, "EIO"},
		{"invalid", btt.ErrInvalidArgument, http.StatusBadRequest, "EINVAL"},
		{"no memory", btt.ErrNoMemory, http.StatusInternalServerError, "ENOMEM"},
		{"media", errors.New("disk on fire"), http.StatusInternalServerError, "EIO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := route(failingDevice{BTT: base, err: tt.err}, 8)

			w := do(t, h, http.MethodGet, "/sectors/0", nil)
			assert.Equal(t, tt.status, w.Code)
			p := decodeProblem(t, w)
			assert.Equal(t, tt.errno, p.Errno)

			w = do(t, h, http.MethodPost, "/check", nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
