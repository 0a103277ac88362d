package artifact

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
)

// Identity is the ID and creation time minted for one artifact.
type Identity struct {
	ID        string
	CreatedAt time.Time
}

// IdentitySource mints artifact identities. Implementations must never
// return the same ID twice.
type IdentitySource interface {
	Mint() (Identity, error)
}

// Minter builds IDs from a clock reading, a monotonic counter
// and random bytes, so rapid or concurrent calls within one clock tick still
// yield distinct IDs.
type Minter struct {
	clock   func() time.Time
	entropy io.Reader
	seq     atomic.Uint64
}

// NewMinter returns a Minter. A nil clock means time.Now and a nil entropy
// source means crypto/rand.
func NewMinter(clock func() time.Time, entropy io.Reader) *Minter {
	if clock == nil {
		clock = time.Now
	}
	if entropy == nil {
		entropy = rand.Reader
	}
	return &Minter{clock: clock, entropy: entropy}
}

const idTimeLayout = "20060102T150405.000000000Z"

// Mint returns a new identity of the form
// batch_<utc timestamp>_<counter>_<8 hex chars>.
func (m *Minter) Mint() (Identity, error) {
	now := m.clock().UTC()
	seq := m.seq.Add(1)

	var buf [4]byte
	if _, err := io.ReadFull(m.entropy, buf[:]); err != nil {
		return Identity{}, eris.Wrap(err, "artifact: read entropy")
	}

	id := fmt.Sprintf("batch_%s_%06d_%s", now.Format(idTimeLayout), seq, hex.EncodeToString(buf[:]))
	return Identity{ID: id, CreatedAt: now}, nil
}
