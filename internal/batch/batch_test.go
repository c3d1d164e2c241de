package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("u%02d", i)
	}
	return out
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{"empty", 0, 10, []int{}},
		{"exact", 10, 10, []int{10}},
		{"twenty three", 23, 10, []int{10, 10, 3}},
		{"one", 1, 10, []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Chunk(ids(tt.n), tt.size)
			got := make([]int, len(chunks))
			for i, c := range chunks {
				got[i] = len(c)
			}
			assert.Equal(t, tt.sizes, got)
		})
	}
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Dedupe([]string{"a", "b", "", "a", "c", "b"}))
}

type timed struct {
	ID   string
	Time string
}

func TestQuerySorted_TwentyThreeIdsThreeQueries(t *testing.T) {
	var calls [][]string
	fn := func(ctx context.Context, chunk []string) ([]timed, error) {
		calls = append(calls, chunk)
		out := make([]timed, len(chunk))
		for i, id := range chunk {
			// Later ids carry later times so each chunk is internally ascending.
			out[i] = timed{ID: "p-" + id, Time: "2024-01-01T00:00:" + id[1:] + ".000Z"}
		}
		return out, nil
	}

	got, err := QuerySorted(context.Background(), ids(23), 10, fn, func(a, b timed) bool {
		return a.Time > b.Time
	})
	require.NoError(t, err)

	require.Len(t, calls, 3)
	assert.Len(t, calls[0], 10)
	assert.Len(t, calls[1], 10)
	assert.Len(t, calls[2], 3)

	require.Len(t, got, 23)
	assert.Equal(t, "p-u22", got[0].ID)
	assert.Equal(t, "p-u00", got[22].ID)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Time, got[i].Time)
	}
}

func TestQuery_NoIdsNoQueries(t *testing.T) {
	called := false
	got, err := Query(context.Background(), nil, 10, func(ctx context.Context, chunk []string) ([]int, error) {
		called = true
		return nil, nil
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, called)
}

func TestQuery_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Query(context.Background(), ids(25), 10, func(ctx context.Context, chunk []string) ([]int, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return []int{len(chunk)}, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}
