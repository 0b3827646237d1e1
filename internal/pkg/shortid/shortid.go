package shortid

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// MinLength and MaxLength bound the length of generated ids
	MinLength = 5
	MaxLength = 8

	// maxAttempts bounds collision retries before the time-based fallback
	maxAttempts = 50

	// cacheHighWater caps the in-use set. Above it the whole set is cleared:
	// an intentional memory/uniqueness tradeoff that keeps the generator at
	// O(1) memory at the cost of a small id-reuse probability.
	cacheHighWater = 10000
)

var (
	idPattern    = regexp.MustCompile(`^[a-zA-Z0-9]{5,8}$`)
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
)

// Generator produces short, human-shareable file identifiers and tracks
// which ones are currently issued.
type Generator struct {
	mu   sync.Mutex
	used map[string]struct{}
}

// Stats describes the state of the in-use id set
type Stats struct {
	TotalUsed          int         `json:"totalUsed"`
	LengthDistribution map[int]int `json:"lengthDistribution"`
}

// New creates a Generator with an empty in-use set
func New() *Generator {
	return &Generator{
		used: make(map[string]struct{}),
	}
}

// Generate returns a unique alphanumeric id of the requested length.
// Lengths outside [MinLength, MaxLength] (including 0) pick a random length
// in that range. Ids never start with a digit.
//
// The id is derived from a v4 UUID rendered as hex and truncated. After
// maxAttempts collisions the generator falls back to a time-based encoding
// that is accepted unconditionally, trading uniqueness risk for availability.
func (g *Generator) Generate(length int) string {
	idLength := length
	if idLength < MinLength || idLength > MaxLength {
		idLength = MinLength + rand.IntN(MaxLength-MinLength+1)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		hexID := strings.ReplaceAll(uuid.New().String(), "-", "")
		id := ensureLetterFirst(hexID[:idLength])

		if _, taken := g.used[id]; !taken {
			g.add(id)
			return id
		}
	}

	// Fallback: monotonic clock in base36 plus a random suffix
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	suffix := string(lowerLetters[rand.IntN(26)]) + strconv.FormatInt(int64(rand.IntN(36)), 36)
	id := ts + suffix
	if len(id) > idLength {
		id = id[:idLength]
	}
	for len(id) < idLength {
		id += "x"
	}
	if id[0] >= '0' && id[0] <= '9' {
		id = "f" + id[1:]
	}

	g.add(id)
	return id
}

// IsValid reports whether id has the short-id shape: 5-8 alphanumeric
// characters. It says nothing about whether the id exists.
func IsValid(id string) bool {
	return idPattern.MatchString(id)
}

// Release removes an id from the in-use set
func (g *Generator) Release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.used, id)
}

// Stats returns counters describing the in-use set
func (g *Generator) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	dist := make(map[int]int)
	for id := range g.used {
		dist[len(id)]++
	}
	return Stats{
		TotalUsed:          len(g.used),
		LengthDistribution: dist,
	}
}

// add records an id and clears the whole set past the high-water mark
func (g *Generator) add(id string) {
	g.used[id] = struct{}{}
	if len(g.used) > cacheHighWater {
		g.used = make(map[string]struct{})
	}
}

// ensureLetterFirst replaces a leading digit with a random lowercase letter
func ensureLetterFirst(id string) string {
	if id[0] >= '0' && id[0] <= '9' {
		return string(lowerLetters[rand.IntN(26)]) + id[1:]
	}
	return id
}
