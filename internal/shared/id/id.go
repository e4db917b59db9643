// Package id provides identifier generation for poolkeeper.
//
// Two kinds of identifiers exist:
//   - ClientID: a random UUID naming one browser profile. It is minted on the
//     first port connection, handed back in a cookie, and scopes that
//     client's preferences.
//   - WorkerID: a prefixed ULID naming one worker instantiation, so log lines
//     from successive workers sort in creation order.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ClientID identifies one browser profile.
type ClientID string

// WorkerID identifies one worker instantiation.
type WorkerID string

// WorkerPrefix prefixes every WorkerID.
const WorkerPrefix = "wkr"

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a ULID generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewWorkerID generates a new worker ID.
func NewWorkerID() WorkerID {
	return WorkerID(Default().GenerateWithPrefix(WorkerPrefix))
}

// NewClientID generates a new client ID.
func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

// ParseClientID validates s as a client ID. Only canonical lowercase UUIDs
// are accepted so that a cookie cannot smuggle a storage key prefix.
func ParseClientID(s string) (ClientID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid client id: %w", err)
	}
	if parsed.String() != strings.TrimSpace(s) {
		return "", fmt.Errorf("invalid client id: %q is not canonical", s)
	}
	return ClientID(parsed.String()), nil
}

func (id ClientID) String() string { return string(id) }
func (id WorkerID) String() string { return string(id) }

// WorkerTime extracts the creation time from a WorkerID.
func WorkerTime(id WorkerID) (time.Time, error) {
	raw, ok := strings.CutPrefix(string(id), WorkerPrefix+"_")
	if !ok {
		return time.Time{}, fmt.Errorf("invalid worker id %q", id)
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid worker id %q: %w", id, err)
	}
	return ulid.Time(parsed.Time()), nil
}
