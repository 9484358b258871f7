package sequence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memorySequenceRepo struct {
	mu       sync.Mutex
	counters map[string]int64
	prefixes map[string]string
}

func newMemorySequenceRepo() *memorySequenceRepo {
	return &memorySequenceRepo{
		counters: map[string]int64{NameEstimate: 1000, NameInvoice: 1000},
		prefixes: map[string]string{NameEstimate: "EST-", NameInvoice: "INV-"},
	}
}

func (r *memorySequenceRepo) Next(ctx context.Context, name string) (Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.counters[name]; !ok {
		return Allocation{}, fmt.Errorf("sequence %q: %w", name, ErrMissing)
	}
	r.counters[name]++
	return Allocation{Prefix: r.prefixes[name], Width: 4, Value: r.counters[name]}, nil
}

func TestNextFormatsNumber(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemorySequenceRepo())

	number, err := svc.Next(ctx, NameInvoice)
	require.NoError(t, err)
	require.Equal(t, "INV-1001", number)

	number, err = svc.Next(ctx, NameInvoice)
	require.NoError(t, err)
	require.Equal(t, "INV-1002", number)
}

func TestNextFailsClosedOnMissingSequence(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemorySequenceRepo())

	_, err := svc.Next(ctx, "receipt")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMissing)
}

func TestNextSequencesAreIndependent(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemorySequenceRepo())

	est, err := svc.Next(ctx, NameEstimate)
	require.NoError(t, err)
	inv, err := svc.Next(ctx, NameInvoice)
	require.NoError(t, err)
	require.Equal(t, "EST-1001", est)
	require.Equal(t, "INV-1001", inv)
}

func TestNextConcurrentCallersGetDistinctContiguousValues(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySequenceRepo()
	svc := NewService(repo)

	const n = 64
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			number, err := svc.Next(ctx, NameInvoice)
			require.NoError(t, err)
			results[i] = number
		}(i)
	}
	wg.Wait()

	sort.Strings(results)
	seen := make(map[string]bool, n)
	for _, number := range results {
		require.False(t, seen[number], "duplicate number %s", number)
		seen[number] = true
	}
	// Contiguous block starting right after the seed value.
	for i := 0; i < n; i++ {
		require.Equal(t, fmt.Sprintf("INV-%04d", 1001+i), results[i])
	}
}

func TestAllocationFormatPadsToWidth(t *testing.T) {
	a := Allocation{Prefix: "EST-", Width: 4, Value: 7}
	require.Equal(t, "EST-0007", a.Format())

	wide := Allocation{Prefix: "INV-", Width: 4, Value: 123456}
	require.Equal(t, "INV-123456", wide.Format())
}
