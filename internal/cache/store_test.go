package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCompute_CachesValue(t *testing.T) {
	s := NewStore()
	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	v, err := GetOrCompute(s, CategoryMetrics, "A", false, compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = GetOrCompute(s, CategoryMetrics, "A", false, compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestGetOrCompute_ForceRefreshRecomputes(t *testing.T) {
	s := NewStore()
	n := 0
	compute := func() (int, error) {
		n++
		return n, nil
	}

	_, err := GetOrCompute(s, CategoryMetrics, "A", false, compute)
	require.NoError(t, err)
	v, err := GetOrCompute(s, CategoryMetrics, "A", true, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	// the refreshed value replaces the old one
	v, err = GetOrCompute(s, CategoryMetrics, "A", false, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestGetOrCompute_FailureNotCached(t *testing.T) {
	s := NewStore()
	boom := errors.New("boom")

	_, err := GetOrCompute(s, CategorySeries, "X", false, func() (string, error) {
		return "", boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len(CategorySeries))

	v, err := GetOrCompute(s, CategorySeries, "X", false, func() (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestGetOrCompute_CategoriesAreIndependent(t *testing.T) {
	s := NewStore()
	_, _ = GetOrCompute(s, CategorySeries, "A", false, func() (int, error) { return 1, nil })
	v, err := GetOrCompute(s, CategoryFinancials, "A", false, func() (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestGetOrCompute_OverlappingCallersShareOneCompute(t *testing.T) {
	s := NewStore()
	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = GetOrCompute(s, CategorySeries, Key("A", "2024-01-01", "2024-06-30"), false, func() (int, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return 7, nil
			})
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClear(t *testing.T) {
	s := NewStore()
	_, _ = GetOrCompute(s, CategorySeries, "A", false, func() (int, error) { return 1, nil })
	_, _ = GetOrCompute(s, CategoryMetrics, "A", false, func() (int, error) { return 1, nil })

	s.Clear(CategorySeries)
	assert.Equal(t, 0, s.Len(CategorySeries))
	assert.Equal(t, 1, s.Len(CategoryMetrics))

	s.Clear()
	assert.Equal(t, 0, s.Len(CategoryMetrics))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "A|2024-01-01|2024-02-01", Key("A", "2024-01-01", "2024-02-01"))
}
