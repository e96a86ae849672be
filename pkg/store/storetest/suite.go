// Package storetest holds a conformance suite shared by every Store backend
// and a couple of wrappers used to inject faults and observe I/O in tests.
package storetest

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/marmos91/dittobtt/pkg/store"
)

// StoreFactory creates a fresh Store of exactly size bytes for each test.
type StoreFactory func(t *testing.T, size uint64) store.Store

// RunConformanceSuite runs the backend-independent tests against factory.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("ZeroFilled", func(t *testing.T) { testZeroFilled(t, factory) })
	t.Run("WriteRead", func(t *testing.T) { testWriteRead(t, factory) })
	t.Run("UnalignedSpan", func(t *testing.T) { testUnalignedSpan(t, factory) })
	t.Run("OutOfRange", func(t *testing.T) { testOutOfRange(t, factory) })
	t.Run("ConcurrentDisjoint", func(t *testing.T) { testConcurrentDisjoint(t, factory) })
	t.Run("ConcurrentSubPage", func(t *testing.T) { testConcurrentSubPage(t, factory) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, factory) })
}

const suiteSize = 64 * 1024

func testZeroFilled(t *testing.T, factory StoreFactory) {
	s := factory(t, suiteSize)
	if got := s.Size(); got != suiteSize {
		t.Fatalf("Size() = %d, want %d", got, suiteSize)
	}

	buf := bytes.Repeat([]byte{0xAA}, 512)
	if err := s.ReadAt(buf, 8192); err != nil {
		t.Fatalf("ReadAt() failed: %v", err)
	}
	if !bytes.Equal(buf, make([]byte, 512)) {
		t.Fatalf("fresh store returned non-zero bytes")
	}
}

func testWriteRead(t *testing.T, factory StoreFactory) {
	s := factory(t, suiteSize)

	want := bytes.Repeat([]byte("btt!"), 1024)
	if err := s.WriteAt(want, 4096); err != nil {
		t.Fatalf("WriteAt() failed: %v", err)
	}
	if err := s.Sync(); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	got := make([]byte, len(want))
	if err := s.ReadAt(got, 4096); err != nil {
		t.Fatalf("ReadAt() failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read back different bytes")
	}
}

func testUnalignedSpan(t *testing.T, factory StoreFactory) {
	s := factory(t, suiteSize)

	// Straddles a 4 KiB boundary and leaves neighbours untouched.
	want := []byte("0123456789abcdef")
	if err := s.WriteAt(want, 4096-7); err != nil {
		t.Fatalf("WriteAt() failed: %v", err)
	}

	got := make([]byte, len(want)+2)
	if err := s.ReadAt(got, 4096-8); err != nil {
		t.Fatalf("ReadAt() failed: %v", err)
	}
	if got[0] != 0 || got[len(got)-1] != 0 || !bytes.Equal(got[1:len(got)-1], want) {
		t.Fatalf("unaligned round trip mismatch: %q", got)
	}
}

func testOutOfRange(t *testing.T, factory StoreFactory) {
	s := factory(t, suiteSize)

	if err := s.ReadAt(make([]byte, 16), suiteSize-8); !errors.Is(err, store.ErrOutOfRange) {
		t.Fatalf("ReadAt past end: got %v, want ErrOutOfRange", err)
	}
	if err := s.WriteAt(make([]byte, 16), suiteSize); !errors.Is(err, store.ErrOutOfRange) {
		t.Fatalf("WriteAt past end: got %v, want ErrOutOfRange", err)
	}
}

func testConcurrentDisjoint(t *testing.T, factory StoreFactory) {
	s := factory(t, suiteSize)

	const workers = 8
	const chunk = suiteSize / workers

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.WriteAt(bytes.Repeat([]byte{byte(i + 1)}, chunk), uint64(i*chunk))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent WriteAt failed: %v", err)
		}
	}

	got := make([]byte, chunk)
	for i := range workers {
		if err := s.ReadAt(got, uint64(i*chunk)); err != nil {
			t.Fatalf("ReadAt() failed: %v", err)
		}
		if !bytes.Equal(got, bytes.Repeat([]byte{byte(i + 1)}, chunk)) {
			t.Fatalf("chunk %d corrupted", i)
		}
	}
}

// testConcurrentSubPage mirrors the BTT's access pattern: many small writes
// to distinct bytes of the same page (map entries, log slots) racing with
// writes that straddle a page boundary.
func testConcurrentSubPage(t *testing.T, factory StoreFactory) {
	s := factory(t, suiteSize)

	const (
		entries   = 64
		straddles = 4
		rounds    = 16
	)
	entryOff := func(i int) uint64 { return 4096 + uint64(i)*4 }
	straddleOff := func(j int) uint64 { return uint64(2+j)*4096 - 4 }

	var wg sync.WaitGroup
	errs := make(chan error, (entries+straddles)*rounds)
	for i := range entries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for r := range rounds {
				errs <- s.WriteAt([]byte{byte(i), byte(r), 0xEE, byte(i)}, entryOff(i))
			}
		}(i)
	}
	for j := range straddles {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			for range rounds {
				errs <- s.WriteAt(bytes.Repeat([]byte{byte(0xC0 + j)}, 8), straddleOff(j))
			}
		}(j)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent sub-page WriteAt failed: %v", err)
		}
	}

	got := make([]byte, 4)
	for i := range entries {
		if err := s.ReadAt(got, entryOff(i)); err != nil {
			t.Fatalf("ReadAt() failed: %v", err)
		}
		want := []byte{byte(i), byte(rounds - 1), 0xEE, byte(i)}
		if !bytes.Equal(got, want) {
			t.Fatalf("entry %d = %x, want %x", i, got, want)
		}
	}
	got = make([]byte, 8)
	for j := range straddles {
		if err := s.ReadAt(got, straddleOff(j)); err != nil {
			t.Fatalf("ReadAt() failed: %v", err)
		}
		if !bytes.Equal(got, bytes.Repeat([]byte{byte(0xC0 + j)}, 8)) {
			t.Fatalf("straddling write %d = %x", j, got)
		}
	}
}

func testClosed(t *testing.T, factory StoreFactory) {
	s := factory(t, suiteSize)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := s.ReadAt(make([]byte, 8), 0); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("ReadAt after Close: got %v, want ErrClosed", err)
	}
	if err := s.WriteAt(make([]byte, 8), 0); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("WriteAt after Close: got %v, want ErrClosed", err)
	}
}
