package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// parseSector reads the {sector} URL parameter.
func parseSector(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "sector")
	sector, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sector %q", raw)
	}
	return sector, nil
}

// parseCount reads the optional ?count= query parameter, defaulting to 1.
func parseCount(r *http.Request, limit int) (int, error) {
	raw := r.URL.Query().Get("count")
	if raw == "" {
		return 1, nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count < 1 {
		return 0, fmt.Errorf("invalid count %q", raw)
	}
	if count > limit {
		return 0, fmt.Errorf("count %d exceeds limit of %d sectors", count, limit)
	}
	return count, nil
}
