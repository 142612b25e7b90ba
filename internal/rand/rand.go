// Package rand generates the random identifiers the client needs: request
// IDs for the commit channel and fresh document IDs for AddDoc.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

const (
	bytesInUint64 = 8
	charset       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789" // reduced base64

	// DocumentIDLength is the length of generated document IDs. 62^20 makes
	// collisions between independently generated IDs negligible.
	DocumentIDLength = 20
)

var charsetLen = len(charset)

var defaultRandBytes = newRandBytes()

func newRandBytes() *randBytes {
	seed := make([]byte, bytesInUint64*2)

	if _, err := cryptorand.Read(seed); err != nil {
		panic("unreachable")
	}

	return &randBytes{
		//nolint:gosec // no security required
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(seed[:8]),
			binary.LittleEndian.Uint64(seed[8:]),
		)),
	}
}

type randBytes struct {
	mut sync.Mutex
	rng *rand.Rand
}

func (rb *randBytes) read(buf []byte) {
	rb.mut.Lock()
	defer rb.mut.Unlock()

	for i := range buf {
		buf[i] = byte(rb.rng.Uint64())
	}
}

// String returns a random string of the given length drawn from the reduced
// base64 charset. The distribution is not perfectly uniform, which is
// acceptable here because the IDs are not security-critical.
func String(length int) string {
	buf := make([]byte, length)
	defaultRandBytes.read(buf)

	for i, b := range buf {
		buf[i] = charset[int(b)%charsetLen]
	}

	return string(buf)
}

// DocumentID returns a fresh document ID.
func DocumentID() string {
	return String(DocumentIDLength)
}
