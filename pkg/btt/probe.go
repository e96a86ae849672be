package btt

import (
	"fmt"

	"github.com/marmos91/dittobtt/pkg/store"
)

// Probe looks for a BTT info block at the start of st without knowing its
// UUID. A block is accepted when it carries the signature and its checksum
// verifies. Callers use the returned UUID and lba size to attach with New.
func Probe(st store.Store) (*Superblock, error) {
	if st.Size() < InfoSize {
		return nil, ErrNotFound
	}

	sb, err := readInfo(st, 0)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	if !sb.HasSignature() || !sb.ChecksumValid() {
		return nil, ErrNotFound
	}
	return sb, nil
}
