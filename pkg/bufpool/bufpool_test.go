package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClasses(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{"zero", 0, DefaultSectorSize},
		{"512 byte sector", 512, DefaultSectorSize},
		{"exact sector", DefaultSectorSize, DefaultSectorSize},
		{"two sectors", 2 * DefaultSectorSize, DefaultRequestSize},
		{"full request", DefaultRequestSize, DefaultRequestSize},
		{"part", DefaultRequestSize + 1, DefaultPartSize},
		{"oversized", DefaultPartSize + 1, DefaultPartSize + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.size)
			defer Put(buf)

			assert.Len(t, buf, tt.size)
			assert.Equal(t, tt.wantCap, cap(buf))
		})
	}
}

func TestGetZeroed(t *testing.T) {
	buf := Get(DefaultSectorSize)
	for i := range buf {
		buf[i] = 0xAB
	}
	Put(buf)

	got := GetZeroed(100)
	defer Put(got)
	assert.Equal(t, make([]byte, 100), got)
}

func TestPutIgnoresForeignBuffers(t *testing.T) {
	assert.NotPanics(t, func() {
		Put(nil)
		Put([]byte{})
		Put(make([]byte, 3000))
		Put(make([]byte, DefaultPartSize+1))
	})
}

func TestPutRestoresFullLength(t *testing.T) {
	p := NewPool(&Config{SectorSize: 1024})
	buf := p.Get(10)
	require.Len(t, buf, 10)
	p.Put(buf)

	again := p.Get(1024)
	assert.Len(t, again, 1024)
	assert.Equal(t, 1024, cap(again))
}

func TestCustomPool(t *testing.T) {
	p := NewPool(&Config{SectorSize: 512, RequestSize: 2048})

	assert.Equal(t, 512, cap(p.Get(100)))
	assert.Equal(t, 2048, cap(p.Get(1000)))
	assert.Equal(t, DefaultPartSize, cap(p.Get(4096)), "zero PartSize keeps the default")
}

func TestConcurrentGetPut(t *testing.T) {
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(fill byte) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				buf := Get(DefaultSectorSize)
				for j := range buf {
					buf[j] = fill
				}
				for j := range buf {
					if buf[j] != fill {
						t.Errorf("buffer shared between goroutines")
						Put(buf)
						return
					}
				}
				Put(buf)
			}
		}(byte(g))
	}
	wg.Wait()
}
