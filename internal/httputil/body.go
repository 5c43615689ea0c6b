package httputil

import "io"

// BoundedReader reads at most limit+1 bytes from r, so the caller can tell
// "read exactly limit bytes" apart from "body exceeded limit" without
// buffering more than necessary: a body exactly at the configured limit
// is accepted, one byte over is rejected.
type BoundedReader struct {
	r       io.Reader
	limit   int64
	read    int64
	Exceeded bool
}

// NewBoundedReader wraps r with a cap of limit bytes (limit <= 0 disables
// the cap).
func NewBoundedReader(r io.Reader, limit int64) *BoundedReader {
	return &BoundedReader{r: r, limit: limit}
}

func (b *BoundedReader) Read(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.r.Read(p)
	}
	if b.read > b.limit {
		b.Exceeded = true
		return 0, io.ErrUnexpectedEOF
	}
	if remaining := b.limit + 1 - b.read; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := b.r.Read(p)
	b.read += int64(n)
	if b.read > b.limit {
		b.Exceeded = true
	}
	return n, err
}

// ReadAllBounded reads r fully, returning the bytes read and whether the
// limit (if any) was exceeded. On exceed, the returned slice holds at
// least limit+1 bytes' worth of data read before detection.
func ReadAllBounded(r io.Reader, limit int64) ([]byte, bool, error) {
	br := NewBoundedReader(r, limit)
	data, err := io.ReadAll(br)
	if br.Exceeded {
		return data, true, nil
	}
	if err != nil {
		return data, false, err
	}
	return data, false, nil
}
