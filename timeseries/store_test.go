package timeseries

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreTests exercises the Store contract shared by every implementation.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("unknown series", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetTimeseries(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.GetData(ctx, "missing", time.Time{})
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.EndDate(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.AppendData(ctx, "missing", NewFrame()), ErrNotFound)
	})

	t.Run("add and list", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.AddTimeseries(ctx, &Timeseries{ID: "b", Name: "B", StationID: "s1", TimeStep: "10min"}))
		require.NoError(t, store.AddTimeseries(ctx, &Timeseries{ID: "a", Name: "A", StationID: "s1"}))
		assert.ErrorIs(t, store.AddTimeseries(ctx, &Timeseries{ID: "a"}), ErrAlreadyExists)

		items, err := store.ListTimeseries(ctx)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "a", items[0].ID)
		assert.Equal(t, "10min", items[1].TimeStep)

		ts, err := store.GetTimeseries(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, "s1", ts.StationID)
	})

	t.Run("append and read", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.AddTimeseries(ctx, &Timeseries{ID: "src"}))

		end, err := store.EndDate(ctx, "src")
		require.NoError(t, err)
		assert.True(t, end.IsZero())

		first := NewFrame(
			Record{Timestamp: at(0), Value: 1.5},
			NullRecord(at(10), "RANGE"),
		)
		require.NoError(t, store.AppendData(ctx, "src", first))

		end, err = store.EndDate(ctx, "src")
		require.NoError(t, err)
		assert.Equal(t, at(10), end)

		err = store.AppendData(ctx, "src", NewFrame(Record{Timestamp: at(10), Value: 2}))
		assert.ErrorIs(t, err, ErrAppendNotAfterEnd)

		require.NoError(t, store.AppendData(ctx, "src", NewFrame()))
		require.NoError(t, store.AppendData(ctx, "src", NewFrame(Record{Timestamp: at(20), Value: 3, Flags: "SUSPECT TEMPORAL"})))

		frame, err := store.GetData(ctx, "src", time.Time{})
		require.NoError(t, err)
		require.Equal(t, 3, frame.Len())
		assert.Equal(t, 1.5, frame.Records[0].Value)
		assert.True(t, frame.Records[1].IsNull())
		assert.Equal(t, "RANGE", frame.Records[1].Flags)
		assert.Equal(t, "SUSPECT TEMPORAL", frame.Records[2].Flags)

		frame, err = store.GetData(ctx, "src", at(10))
		require.NoError(t, err)
		assert.Equal(t, 2, frame.Len())
		assert.Equal(t, at(10), frame.StartDate())
	})

	t.Run("rejected append stores nothing", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.AddTimeseries(ctx, &Timeseries{ID: "src"}))

		bad := NewFrame(Record{Timestamp: at(10), Value: 1}, Record{Timestamp: at(5), Value: 2})
		assert.ErrorIs(t, store.AppendData(ctx, "src", bad), ErrInvalidFrame)

		frame, err := store.GetData(ctx, "src", time.Time{})
		require.NoError(t, err)
		assert.True(t, frame.IsEmpty())
	})

	t.Run("sub-second timestamps are rejected", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.AddTimeseries(ctx, &Timeseries{ID: "src"}))
		require.NoError(t, store.AppendData(ctx, "src", NewFrame(Record{Timestamp: at(0), Value: 1})))

		late := NewFrame(Record{Timestamp: at(0).Add(500 * time.Millisecond), Value: 2})
		assert.ErrorIs(t, store.AppendData(ctx, "src", late), ErrInvalidFrame)

		end, err := store.EndDate(ctx, "src")
		require.NoError(t, err)
		assert.Equal(t, at(0), end)
	})
}
