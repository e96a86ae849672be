package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/marmos91/dittobtt/internal/telemetry"
	"github.com/marmos91/dittobtt/pkg/bufpool"
)

// ContentTypeOctetStream is the Content-Type of raw sector payloads.
const ContentTypeOctetStream = "application/octet-stream"

// SectorHandler exposes raw sector reads and writes.
type SectorHandler struct {
	dev        Device
	maxSectors int
}

// NewSectorHandler creates a sector handler that accepts at most
// maxSectors sectors per request.
func NewSectorHandler(dev Device, maxSectors int) *SectorHandler {
	if maxSectors < 1 {
		maxSectors = 1
	}
	return &SectorHandler{dev: dev, maxSectors: maxSectors}
}

// Read handles GET /api/v1/sectors/{sector}?count=N.
func (h *SectorHandler) Read(w http.ResponseWriter, r *http.Request) {
	sector, err := parseSector(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	count, err := parseCount(r, h.maxSectors)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	telemetry.SetAttributes(r.Context(), telemetry.Sector(sector), telemetry.Count(count))

	buf := bufpool.Get(count * int(h.dev.LBASize()))
	defer bufpool.Put(buf)
	if err := h.dev.Read(r.Context(), sector, buf); err != nil {
		deviceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", ContentTypeOctetStream)
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf)
}

// Write handles PUT /api/v1/sectors/{sector}. The body length must be a
// whole number of sectors; the sector count is derived from it.
func (h *SectorHandler) Write(w http.ResponseWriter, r *http.Request) {
	sector, err := parseSector(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	lbaSize := int(h.dev.LBASize())
	limit := int64(h.maxSectors) * int64(lbaSize)

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		BadRequest(w, "failed to read request body")
		return
	}
	if int64(len(body)) > limit {
		RequestEntityTooLarge(w, fmt.Sprintf("body exceeds limit of %d sectors", h.maxSectors))
		return
	}
	if len(body) == 0 || len(body)%lbaSize != 0 {
		BadRequest(w, fmt.Sprintf("body of %d bytes is not a non-empty multiple of %d", len(body), lbaSize))
		return
	}

	telemetry.SetAttributes(r.Context(), telemetry.Sector(sector), telemetry.Count(len(body)/lbaSize))

	if err := h.dev.Write(r.Context(), sector, body); err != nil {
		deviceError(w, r, err)
		return
	}
	WriteNoContent(w)
}
