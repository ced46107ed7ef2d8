package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexkey/lexkey/client"
	"github.com/lexkey/lexkey/internal/server/db"
	"github.com/lexkey/lexkey/internal/server/httpapi"
	"github.com/lexkey/lexkey/internal/server/notify"
	"github.com/lexkey/lexkey/internal/server/service"
	"github.com/lexkey/lexkey/internal/server/store"
)

func newTestClient(t *testing.T) *client.Client {
	t.Helper()
	sqlDB, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(sqlDB))

	events := notify.New()
	t.Cleanup(events.Close)
	svc := service.New(sqlDB, store.New(sqlDB), events, 32)

	mux := http.NewServeMux()
	httpapi.New(svc, events, nil).Register(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return client.New(ts.URL)
}

func TestClientRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	list, err := c.CreateList(ctx, "todo", "Todo")
	require.NoError(t, err)
	assert.Equal(t, "todo", list.Slug)

	a, err := c.InsertItem(ctx, "todo", "a", client.Placement{Kind: "last"})
	require.NoError(t, err)
	b, err := c.InsertItem(ctx, "todo", "b", client.Placement{Kind: "last"})
	require.NoError(t, err)

	mid, err := c.InsertItem(ctx, "todo", "mid", client.Placement{
		Kind: "between", Anchor: a.ID, AnchorB: b.ID,
	})
	require.NoError(t, err)
	assert.Greater(t, mid.Position, a.Position)
	assert.Less(t, mid.Position, b.Position)

	items, err := c.Items(ctx, "todo")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "mid", items[1].Payload)

	moved, err := c.MoveItem(ctx, b.ID, client.Placement{Kind: "first"})
	require.NoError(t, err)
	assert.Less(t, moved.Position, a.Position)

	require.NoError(t, c.DeleteItem(ctx, mid.ID))
	require.NoError(t, c.DeleteList(ctx, "todo"))

	lists, err := c.Lists(ctx)
	require.NoError(t, err)
	assert.Empty(t, lists)
}

func TestClientMid(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	mid, err := c.Mid(ctx, "aaa", "aaz")
	require.NoError(t, err)
	assert.Equal(t, "aan", mid)

	mid, err = c.Mid(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "n", mid)

	_, err = c.Mid(ctx, "z", "a")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestClientCompact(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.CreateList(ctx, "todo", "")
	require.NoError(t, err)
	_, err = c.InsertItem(ctx, "todo", "a", client.Placement{Kind: "last"})
	require.NoError(t, err)

	n, err := c.Compact(ctx, "todo", false)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = c.Compact(ctx, "todo", true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClientNoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found: list \"x\""}`))
	}))
	defer ts.Close()

	c := client.New(ts.URL)
	_, err := c.GetList(context.Background(), "x")

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, apiErr.Message, "not found")
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestClientRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"lists":[]}`))
	}))
	defer ts.Close()

	c := client.New(ts.URL)
	lists, err := c.Lists(context.Background())
	require.NoError(t, err)
	assert.Empty(t, lists)
	assert.Equal(t, int32(3), calls.Load())
}
