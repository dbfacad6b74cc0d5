package docstore

import (
	"context"
	"testing"
	"time"

	"statharvest/internal/components/chrono"
	"statharvest/internal/components/telemetry"
	configlibsql "statharvest/lib/configutil/libsql"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (Store, *chrono.Fake) {
	clock := chrono.NewFake(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := Open(ctx, configlibsql.Struct{File: ":memory:"}, telemetry.NewRecorder(), clock)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, clock
}

type post struct {
	Title string `json:"title"`
	Tags  []any  `json:"tags"`
	Meta  struct {
		Views int `json:"views"`
	} `json:"meta"`
}

func TestStore(t *testing.T) {
	store, clock := openTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := post{Title: "first", Tags: []any{"scb", 1.0}}
	first.Meta.Views = 3
	firstId, err := store.Insert(ctx, "posts", first)
	require.NoError(t, err)
	require.NotEmpty(t, firstId)

	require.NoError(t, clock.Sleep(ctx, time.Minute))
	secondId, err := store.Insert(ctx, "posts", map[string]any{"title": "second"})
	require.NoError(t, err)
	require.NotEqual(t, firstId, secondId)

	require.NoError(t, clock.Sleep(ctx, time.Minute))
	_, err = store.Insert(ctx, "runs", map[string]any{"group": "AM0211E"})
	require.NoError(t, err)

	{
		doc, err := store.Get(ctx, firstId)
		require.NoError(t, err)
		require.Equal(t, "posts", doc.Collection)
		require.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), doc.CreatedAt.UTC())

		var decoded post
		require.NoError(t, store.Decode(doc, &decoded))
		require.Equal(t, first, decoded)
	}
	{
		docs, err := store.List(ctx, "posts", 0)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		require.Equal(t, secondId, docs[0].ID)
		require.Equal(t, firstId, docs[1].ID)
	}
	{
		docs, err := store.List(ctx, "", 2)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		require.Equal(t, "runs", docs[0].Collection)
	}
	{
		count, err := store.Count(ctx, "")
		require.NoError(t, err)
		require.Equal(t, int64(3), count)
	}
}

func TestStoreNotFound(t *testing.T) {
	store, _ := openTestStore(t)
	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreInsertRejects(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.Insert(context.Background(), "", map[string]any{})
	require.Error(t, err)

	_, err = store.Insert(context.Background(), "posts", make(chan int))
	require.Error(t, err)
}
