package sessionid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCounter_WrapsAt32Bits verifies wraparound without looping four
// billion times: seed the atomic one below its maximum and confirm
// Next() lands on 0 then 1.
func TestCounter_WrapsAt32Bits(t *testing.T) {
	t.Parallel()

	counter := New()
	counter.next.Store(math.MaxUint32 - 1)

	require.Equal(t, uint32(math.MaxUint32), counter.Next())
	require.Equal(t, uint32(0), counter.Next())
	require.Equal(t, uint32(1), counter.Next())
}
