package config

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/marmos91/dittobtt/pkg/btt"
	"github.com/marmos91/dittobtt/pkg/metrics"
)

// ErrNoDeviceUUID is returned by Options when no UUID is configured.
var ErrNoDeviceUUID = errors.New("device uuid is not configured (run \"dittobtt config init\" or set DITTOBTT_DEVICE_UUID)")

// Options converts the device section into btt.Options. m may be nil.
func (c DeviceConfig) Options(m metrics.BTTMetrics) (btt.Options, error) {
	if c.UUID == "" {
		return btt.Options{}, ErrNoDeviceUUID
	}
	id, err := uuid.Parse(c.UUID)
	if err != nil {
		return btt.Options{}, fmt.Errorf("invalid device uuid %q: %w", c.UUID, err)
	}

	return btt.Options{
		UUID:     id,
		LBASize:  c.LBASize,
		MaxLanes: c.Lanes,
		NFree:    c.NFree,
		ReadOnly: c.ReadOnly,
		Metrics:  m,
	}, nil
}

// NewDeviceUUID returns a fresh random device UUID.
func NewDeviceUUID() string {
	return uuid.NewString()
}
