package shortid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateShape(t *testing.T) {
	g := New()

	for i := 0; i < 1000; i++ {
		id := g.Generate(0)
		require.GreaterOrEqual(t, len(id), MinLength)
		require.LessOrEqual(t, len(id), MaxLength)
		require.True(t, IsValid(id), "generated id %q must be valid", id)

		first := id[0]
		require.False(t, first >= '0' && first <= '9', "id %q must not start with a digit", id)
	}
}

func TestGenerateExplicitLength(t *testing.T) {
	g := New()

	for length := MinLength; length <= MaxLength; length++ {
		id := g.Generate(length)
		assert.Len(t, id, length)
	}

	// Out-of-range hints fall back to a random in-range length
	for _, length := range []int{-1, 1, 4, 9, 100} {
		id := g.Generate(length)
		assert.GreaterOrEqual(t, len(id), MinLength)
		assert.LessOrEqual(t, len(id), MaxLength)
	}
}

func TestGenerateUnique(t *testing.T) {
	g := New()
	seen := make(map[string]struct{})

	for i := 0; i < 5000; i++ {
		id := g.Generate(8)
		_, dup := seen[id]
		require.False(t, dup, "id %q issued twice", id)
		seen[id] = struct{}{}
	}
}

func TestGenerateConcurrent(t *testing.T) {
	g := New()

	var mu sync.Mutex
	seen := make(map[string]struct{})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := g.Generate(8)
				mu.Lock()
				_, dup := seen[id]
				seen[id] = struct{}{}
				mu.Unlock()
				assert.False(t, dup, "id %q issued twice", id)
			}
		}()
	}
	wg.Wait()
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"abcde", true},
		{"Abc12", true},
		{"abcdefgh", true},
		{"12345", true}, // shape check only; digit-first is a generator rule
		{"abcd", false},
		{"abcdefghi", false},
		{"", false},
		{"abc-e", false},
		{"abc e", false},
		{"abcd?", false},
		{"абвгд", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValid(tt.id))
		})
	}
}

func TestRelease(t *testing.T) {
	g := New()

	id := g.Generate(6)
	assert.Equal(t, 1, g.Stats().TotalUsed)

	g.Release(id)
	assert.Equal(t, 0, g.Stats().TotalUsed)

	// Releasing an unknown id is a no-op
	g.Release("zzzzz")
	assert.Equal(t, 0, g.Stats().TotalUsed)
}

func TestStatsDistribution(t *testing.T) {
	g := New()

	for i := 0; i < 10; i++ {
		g.Generate(5)
	}
	for i := 0; i < 3; i++ {
		g.Generate(8)
	}

	stats := g.Stats()
	assert.Equal(t, 13, stats.TotalUsed)
	assert.Equal(t, 10, stats.LengthDistribution[5])
	assert.Equal(t, 3, stats.LengthDistribution[8])
}

func TestHighWaterClear(t *testing.T) {
	g := New()

	for i := 0; i < cacheHighWater+1; i++ {
		g.Generate(8)
	}

	// Crossing the high-water mark wipes the whole set
	assert.Equal(t, 0, g.Stats().TotalUsed)

	// The generator keeps working afterwards
	id := g.Generate(8)
	assert.True(t, IsValid(id))
	assert.Equal(t, 1, g.Stats().TotalUsed)
}
