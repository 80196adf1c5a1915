package refiner

import (
	"crypto/rand"
	"encoding/binary"
)

// SeedSource produces a seed when the request does not supply one.
// The orchestrator takes it as an injected dependency so tests can swap in
// a deterministic source.
type SeedSource func() int64

// RandomSeed derives a seed from two bytes of OS entropy, giving the same
// 0..65535 range the service has always used for derived seeds. Explicit
// request seeds are not range-restricted.
func RandomSeed() int64 {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unheard of; a fixed seed
		// beats failing the request.
		return 42
	}
	return int64(binary.BigEndian.Uint16(buf[:]))
}
