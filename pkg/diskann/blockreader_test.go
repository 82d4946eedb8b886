package diskann

import (
	"os"
	"testing"
)

func tempFileWithSectors(t *testing.T, nSectors int) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "blockreader-*.dat")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	buf := make([]byte, nSectors*sectorLen)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	if _, err := f.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return f
}

func TestFileBlockReaderSubmitBatchRoundTrip(t *testing.T) {
	f := tempFileWithSectors(t, 4)
	defer f.Close()
	r := NewFileBlockReader(f)

	want := make([]byte, 4*sectorLen)
	f.ReadAt(want, 0)

	bufs := make([][]byte, 4)
	reqs := make([]BlockRequest, 4)
	for i := range reqs {
		bufs[i] = make([]byte, sectorLen)
		reqs[i] = BlockRequest{Offset: int64(i * sectorLen), Length: sectorLen, Buf: bufs[i]}
	}
	if err := r.SubmitBatch(reqs); err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	for i, buf := range bufs {
		for j, b := range buf {
			if b != want[i*sectorLen+j] {
				t.Fatalf("mismatch at sector %d byte %d: got %d want %d", i, j, b, want[i*sectorLen+j])
			}
		}
	}
}

func TestFileBlockReaderTransientFaultIsRetryable(t *testing.T) {
	f := tempFileWithSectors(t, 1)
	defer f.Close()
	r := NewFileBlockReader(f)
	r.InjectTransientFault(0)

	buf := make([]byte, sectorLen)
	err := r.SubmitBatch([]BlockRequest{{Offset: 0, Length: sectorLen, Buf: buf}})
	if err == nil {
		t.Fatalf("expected a transient error on first read")
	}
	var retryable *RetryableIOError
	if !asRetryable(err, &retryable) {
		t.Fatalf("expected RetryableIOError, got %T: %v", err, err)
	}

	// Second attempt at the same offset succeeds: the fault fires once.
	if err := r.SubmitBatch([]BlockRequest{{Offset: 0, Length: sectorLen, Buf: buf}}); err != nil {
		t.Fatalf("expected second attempt to succeed, got %v", err)
	}
}

func asRetryable(err error, target **RetryableIOError) bool {
	if re, ok := err.(*RetryableIOError); ok {
		*target = re
		return true
	}
	return false
}

func TestFileBlockReaderRegisterDeregisterBalance(t *testing.T) {
	f := tempFileWithSectors(t, 1)
	defer f.Close()
	r := NewFileBlockReader(f)

	if err := r.RegisterThread(); err != nil {
		t.Fatalf("RegisterThread: %v", err)
	}
	if err := r.DeregisterThread(); err != nil {
		t.Fatalf("DeregisterThread: %v", err)
	}
	if err := r.DeregisterThread(); err == nil {
		t.Fatalf("expected error deregistering without a matching register")
	}
}

func TestFileBlockReaderEmptyBatch(t *testing.T) {
	f := tempFileWithSectors(t, 1)
	defer f.Close()
	r := NewFileBlockReader(f)
	if err := r.SubmitBatch(nil); err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}
}
