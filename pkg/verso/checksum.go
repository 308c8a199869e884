package verso

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// ChecksumAlgorithm names the digest used for content addressing. One
// algorithm is used everywhere: the same value is the blob-store key and the
// dedup equality test, so it must never differ between layers.
const ChecksumAlgorithm = "sha256"

// Digest returns the hex checksum of b.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DigestReader wraps a reader and computes the content checksum and size
// while the stream is consumed. Blob stores use it to stage an upload and
// learn its address in a single pass.
type DigestReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewDigestReader returns a DigestReader over r.
func NewDigestReader(r io.Reader) *DigestReader {
	return &DigestReader{r: r, h: sha256.New()}
}

func (d *DigestReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.h.Write(p[:n])
		d.n += int64(n)
	}
	return n, err
}

// Checksum returns the hex digest of the bytes read so far.
func (d *DigestReader) Checksum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Size returns the number of bytes read so far.
func (d *DigestReader) Size() int64 {
	return d.n
}
