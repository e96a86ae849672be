package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestVersion is the manifest format written by Export.
const ManifestVersion = 1

// Manifest describes one snapshot.
type Manifest struct {
	Version   int       `yaml:"version"`
	CreatedAt time.Time `yaml:"created_at"`

	// UUID is the device UUID read from the first info block, if the
	// extent was formatted.
	UUID string `yaml:"uuid,omitempty"`

	// Size is the extent size in bytes.
	Size uint64 `yaml:"size"`

	// PartSize is the size of every part but possibly the last.
	PartSize uint64 `yaml:"part_size"`

	Parts []Part `yaml:"parts"`
}

// Part is one slice of the extent.
type Part struct {
	Index  int    `yaml:"index"`
	Offset uint64 `yaml:"offset"`
	Length uint64 `yaml:"length"`

	// Zero marks a part that was all zeros and has no object.
	Zero bool `yaml:"zero,omitempty"`

	Key    string `yaml:"key,omitempty"`
	SHA256 string `yaml:"sha256,omitempty"`
}

// UploadedParts returns the number of parts that have an object.
func (m *Manifest) UploadedParts() int {
	n := 0
	for _, p := range m.Parts {
		if !p.Zero {
			n++
		}
	}
	return n
}

func (m *Manifest) encode() ([]byte, error) {
	return yaml.Marshal(m)
}

func decodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// validate checks that parts tile [0, Size) in order.
func (m *Manifest) validate() error {
	if m.Version != ManifestVersion {
		return fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	if m.PartSize == 0 {
		return fmt.Errorf("manifest part size is zero")
	}

	var off uint64
	for i, p := range m.Parts {
		if p.Index != i || p.Offset != off {
			return fmt.Errorf("manifest part %d out of order (index %d, offset %d)", i, p.Index, p.Offset)
		}
		if p.Length == 0 || p.Length > m.PartSize {
			return fmt.Errorf("manifest part %d has length %d", i, p.Length)
		}
		if !p.Zero && (p.Key == "" || p.SHA256 == "") {
			return fmt.Errorf("manifest part %d has no object", i)
		}
		off += p.Length
	}
	if off != m.Size {
		return fmt.Errorf("manifest parts cover %d bytes, extent is %d", off, m.Size)
	}
	return nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
