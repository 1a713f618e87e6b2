package ids

import (
	"io"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Source produces ULIDs from an explicit clock reading and entropy stream,
// so that the same seed yields the same identifiers. Not safe for
// concurrent use.
type Source struct {
	entropy io.Reader
}

// NewSource returns a Source seeded with seed.
func NewSource(seed int64) *Source {
	return &Source{entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(seed)), 0)}
}

// At returns the ULID for t.
func (s *Source) At(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

// Reference returns a REF-XXXXXXX style transaction reference. The suffix is
// taken from the random part of the ULID so references stay distinct even
// when t repeats.
func (s *Source) Reference(t time.Time) string {
	id := s.At(t)
	return "REF-" + strings.ToUpper(id[len(id)-7:])
}
