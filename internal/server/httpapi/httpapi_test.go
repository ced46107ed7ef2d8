package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexkey/lexkey/internal/server/db"
	"github.com/lexkey/lexkey/internal/server/httpapi"
	"github.com/lexkey/lexkey/internal/server/notify"
	"github.com/lexkey/lexkey/internal/server/service"
	"github.com/lexkey/lexkey/internal/server/store"
)

type item struct {
	ID       string `json:"id"`
	ListID   string `json:"list_id"`
	Payload  string `json:"payload"`
	Position string `json:"position"`
}

func newTestServer(t *testing.T) *httptest.Server {
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
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func TestListLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/lists", map[string]string{"slug": "todo", "title": "Todo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/lists/todo", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Slug  string `json:"slug"`
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, "todo", list.Slug)
	assert.Equal(t, "Todo", list.Title)

	// Duplicate slug conflicts.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/lists", map[string]string{"slug": "todo"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/lists", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lists struct {
		Lists []json.RawMessage `json:"lists"`
	}
	require.NoError(t, json.Unmarshal(body, &lists))
	assert.Len(t, lists.Lists, 1)

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/lists/todo", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/lists/todo", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestItemPlacements(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/lists", map[string]string{"slug": "todo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	insert := func(payload string, place map[string]string) item {
		t.Helper()
		req := map[string]any{"payload": payload}
		if place != nil {
			req["place"] = place
		}
		resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/lists/todo/items", req)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
		var it item
		require.NoError(t, json.Unmarshal(body, &it))
		return it
	}

	a := insert("a", nil) // defaults to last
	b := insert("b", map[string]string{"kind": "last"})
	c := insert("c", map[string]string{"kind": "first"})
	m := insert("m", map[string]string{"kind": "between", "anchor": a.ID, "anchor_b": b.ID})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/lists/todo/items", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Items []item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	require.Len(t, listing.Items, 4)
	order := []string{}
	for _, it := range listing.Items {
		order = append(order, it.Payload)
	}
	assert.Equal(t, []string{"c", "a", "m", "b"}, order)

	// Move b before a.
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/v1/items/"+b.ID+"/move",
		map[string]any{"place": map[string]string{"kind": "before", "anchor": a.ID}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var moved item
	require.NoError(t, json.Unmarshal(body, &moved))
	assert.Less(t, moved.Position, a.Position)
	assert.Greater(t, moved.Position, c.Position)

	// Delete m.
	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/items/"+m.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/items/"+m.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Bad placement kind.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/lists/todo/items",
		map[string]any{"payload": "x", "place": map[string]string{"kind": "sideways"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompactEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/lists", map[string]string{"slug": "todo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/lists/todo/items", map[string]any{"payload": "a"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Keys are short; unforced compaction is a no-op.
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/lists/todo/compact", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Compacted int `json:"compacted"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Zero(t, result.Compacted)

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/v1/lists/todo/compact?force=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 1, result.Compacted)
}

func TestRankMid(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		low, high string
		want      string
	}{
		{"", "i", "e"},
		{"", "b", "an"},
		{"", "", "n"},
		{"aaa", "aaz", "aan"},
		{"abcde", "abchi", "abcf"},
	}
	for _, tt := range tests {
		resp, body := doJSON(t, http.MethodGet,
			fmt.Sprintf("%s/v1/rank/mid?low=%s&high=%s", ts.URL, tt.low, tt.high), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var result struct {
			Mid string `json:"mid"`
		}
		require.NoError(t, json.Unmarshal(body, &result))
		assert.Equal(t, tt.want, result.Mid, "mid(%q, %q)", tt.low, tt.high)
	}

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/rank/mid?low=A1&high=b", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/rank/mid?low=z&high=a", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// No key fits below a bound made of trailing 'a's; the endpoint must
	// refuse rather than return a key that sorts above high.
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/rank/mid?low=&high=a", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/rank/mid?low=b&high=baa", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWatchStreamsEvents(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + ts.URL[len("http"):] + "/ws/watch?list=todo"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{"lexkey.watch.v1"},
	})
	require.NoError(t, err)
	defer func() { _ = conn.CloseNow() }()

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/lists", map[string]string{"slug": "todo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/lists", map[string]string{"slug": "ignored"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/lists/todo/items", map[string]any{"payload": "a"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var ev notify.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, notify.EventListCreated, ev.Type)
	assert.Equal(t, "todo", ev.ListSlug)

	// The "ignored" list's event is filtered out; the next frame is the
	// item insert on todo.
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, notify.EventItemInserted, ev.Type)
	assert.Equal(t, "todo", ev.ListSlug)
	assert.NotEmpty(t, ev.Position)
}
