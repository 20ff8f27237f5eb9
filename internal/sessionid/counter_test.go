package sessionid_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/usecallmanagernz/daemons/internal/sessionid"
)

func TestCounter_Monotonic(t *testing.T) {
	t.Parallel()

	counter := sessionid.New()

	require.Equal(t, uint32(1), counter.Next())
	require.Equal(t, uint32(2), counter.Next())
	require.Equal(t, uint32(3), counter.Next())
}

func TestCounter_ConcurrentUnique(t *testing.T) {
	t.Parallel()

	counter := sessionid.New()

	const workers = 50

	seen := make(chan uint32, workers)

	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			seen <- counter.Next()
		}()
	}

	wg.Wait()
	close(seen)

	ids := make(map[uint32]bool)
	for id := range seen {
		require.False(t, ids[id], "session id %d issued twice", id)
		ids[id] = true
	}

	require.Len(t, ids, workers)
}
