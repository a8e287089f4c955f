package ring_test

import (
	"math/rand"
	"testing"

	"github.com/hraban/kennyfs/internal/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	b := ring.New(16)
	n, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, b.Used())
	assert.Equal(t, 11, b.Free())

	got, err := b.Read(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got[:5]))
	assert.Equal(t, byte(0), got[5], "extraction pads a trailing NUL")
	assert.Equal(t, 0, b.Used())
}

func TestWriteFullIsAllOrNothing(t *testing.T) {
	b := ring.New(4)
	_, err := b.Write([]byte("abcde"))
	assert.ErrorIs(t, err, ring.ErrFull)
	assert.Equal(t, 0, b.Used(), "a rejected write must not partially land")
}

func TestReadNotEnough(t *testing.T) {
	b := ring.New(8)
	_, _ = b.Write([]byte("ab"))
	_, err := b.Read(3)
	assert.ErrorIs(t, err, ring.ErrNotEnough)
	assert.Equal(t, 2, b.Used(), "a failed read must not consume anything")
}

func TestWraparound(t *testing.T) {
	b := ring.New(8)
	_, _ = b.Write([]byte("123456"))
	_, _ = b.Read(4) // head now at 4, used=2 ("56")
	_, err := b.Write([]byte("abcdef"))
	require.NoError(t, err) // wraps: free space was 6

	got, err := b.Read(8)
	require.NoError(t, err)
	assert.Equal(t, "56abcdef", string(got[:8]))
}

func TestPeekContiguousNoWrap(t *testing.T) {
	b := ring.New(8)
	_, _ = b.Write([]byte("abcd"))
	scratch := make([]byte, 8)
	view := b.Peek(scratch)
	assert.Equal(t, "abcd", string(view))
}

func TestPeekWrapsIntoScratch(t *testing.T) {
	b := ring.New(8)
	_, _ = b.Write([]byte("123456"))
	_, _ = b.Read(5) // head=5, used=1 ("6")
	_, _ = b.Write([]byte("ABCDEF"))
	// used = 7, spanning from index 5 wrapping to 3 (8-5=3 bytes, then 4 more)
	scratch := make([]byte, 8)
	view := b.Peek(scratch)
	assert.Equal(t, "6ABCDEF", string(view))
}

func TestAdvanceConsumesWithoutCopy(t *testing.T) {
	b := ring.New(8)
	_, _ = b.Write([]byte("abcdef"))
	b.Advance(3)
	assert.Equal(t, 3, b.Used())
	got, err := b.Read(3)
	require.NoError(t, err)
	assert.Equal(t, "def", string(got[:3]))
}

// TestRingInvariants performs a randomized sequence of writes/reads and
// checks 0 <= used <= capacity after each step.
// Buffer itself panics on violation, so a clean run is the assertion.
func TestRingInvariants(t *testing.T) {
	const capacity = 32
	b := ring.New(capacity)
	rng := rand.New(rand.NewSource(1))
	written := 0

	for i := 0; i < 2000; i++ {
		if rng.Intn(2) == 0 && b.Free() > 0 {
			n := rng.Intn(b.Free() + 1)
			p := make([]byte, n)
			_, err := b.Write(p)
			require.NoError(t, err)
			written += n
		} else if b.Used() > 0 {
			n := rng.Intn(b.Used() + 1)
			_, err := b.Read(n)
			require.NoError(t, err)
		}
		require.GreaterOrEqual(t, b.Used(), 0)
		require.LessOrEqual(t, b.Used(), capacity)
	}
}
