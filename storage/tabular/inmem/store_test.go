package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	rows, err := s.ReadRange(ctx, "b", "S!A:C")
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, s.AppendRows(ctx, "b", "S!A:C", [][]string{{"h1", "h2", "h3"}, {"a", "b", "c"}}))
	require.NoError(t, s.AppendRows(ctx, "b", "S!A:C", [][]string{{"d", "e", "f"}}))
	require.NoError(t, s.WriteRange(ctx, "b", "S!A2:C2", [][]string{{"x", "", "z"}}))

	rows, err = s.ReadRange(ctx, "b", "S!A:C")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"h1", "h2", "h3"}, {"x", "", "z"}, {"d", "e", "f"}}, rows)

	rows, err = s.ReadRange(ctx, "b", "S!B3:C3")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"e", "f"}}, rows)

	_, err = s.ReadRange(ctx, "other", "S!A:C")
	require.NoError(t, err, "stores are created on first use")

	assert.Error(t, s.WriteRange(ctx, "b", "S!A2:C2", [][]string{{"1"}, {"2"}}), "rows must fit in the range")
	assert.Error(t, s.AppendRows(ctx, "b", "nope", nil))

	reads, writes, appends := s.Calls()
	assert.Equal(t, 4, reads)
	assert.Equal(t, 1, writes)
	assert.Equal(t, 2, appends)
}

func TestStore_readDelayHonorsContext(t *testing.T) {
	s := NewStore()
	s.SetReadDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.ReadRange(ctx, "b", "S!A:C")
	assert.Equal(t, context.DeadlineExceeded, err)
}
