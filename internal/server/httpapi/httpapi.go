// Package httpapi exposes the list service over a JSON HTTP API.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lexkey/lexkey/internal/server/notify"
	"github.com/lexkey/lexkey/internal/server/service"
	"github.com/lexkey/lexkey/internal/server/store"
	"github.com/lexkey/lexkey/rank"
)

// API serves the JSON endpoints.
type API struct {
	svc        *service.Service
	events     *notify.Broadcaster
	shutdownCh <-chan struct{}
}

// New creates the API.
func New(svc *service.Service, events *notify.Broadcaster, shutdownCh <-chan struct{}) *API {
	return &API{svc: svc, events: events, shutdownCh: shutdownCh}
}

// Register adds all API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/lists", a.createList)
	mux.HandleFunc("GET /v1/lists", a.listLists)
	mux.HandleFunc("GET /v1/lists/{slug}", a.getList)
	mux.HandleFunc("DELETE /v1/lists/{slug}", a.deleteList)
	mux.HandleFunc("POST /v1/lists/{slug}/items", a.insertItem)
	mux.HandleFunc("GET /v1/lists/{slug}/items", a.listItems)
	mux.HandleFunc("POST /v1/lists/{slug}/compact", a.compactList)
	mux.HandleFunc("GET /v1/items/{id}", a.getItem)
	mux.HandleFunc("POST /v1/items/{id}/move", a.moveItem)
	mux.HandleFunc("DELETE /v1/items/{id}", a.deleteItem)
	mux.HandleFunc("GET /v1/rank/mid", a.rankMid)
	mux.HandleFunc("GET /healthz", a.healthz)
	mux.Handle("GET /ws/watch", a.watchHandler())
}

// listJSON is the wire shape of a list.
type listJSON struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// itemJSON is the wire shape of an item.
type itemJSON struct {
	ID        string `json:"id"`
	ListID    string `json:"list_id"`
	Payload   string `json:"payload"`
	Position  string `json:"position"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// placementJSON is the wire shape of a placement.
type placementJSON struct {
	Kind    string `json:"kind"`
	Anchor  string `json:"anchor,omitempty"`
	AnchorB string `json:"anchor_b,omitempty"`
}

func toListJSON(l store.List) listJSON {
	return listJSON{ID: l.ID, Slug: l.Slug, Title: l.Title, CreatedAt: l.CreatedAt}
}

func toItemJSON(it store.Item) itemJSON {
	return itemJSON{
		ID: it.ID, ListID: it.ListID, Payload: it.Payload,
		Position: it.Position, CreatedAt: it.CreatedAt, UpdatedAt: it.UpdatedAt,
	}
}

func (p placementJSON) toPlacement() service.Placement {
	return service.Placement{Kind: p.Kind, Anchor: p.Anchor, AnchorB: p.AnchorB}
}

func (a *API) createList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slug  string `json:"slug"`
		Title string `json:"title"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	list, err := a.svc.CreateList(r.Context(), req.Slug, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListJSON(list))
}

func (a *API) listLists(w http.ResponseWriter, r *http.Request) {
	lists, err := a.svc.Lists(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]listJSON, len(lists))
	for i, l := range lists {
		out[i] = toListJSON(l)
	}
	writeJSON(w, http.StatusOK, map[string]any{"lists": out})
}

func (a *API) getList(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.GetList(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListJSON(list))
}

func (a *API) deleteList(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteList(r.Context(), r.PathValue("slug")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) insertItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload string        `json:"payload"`
		Place   placementJSON `json:"place"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Place.Kind == "" {
		req.Place.Kind = service.PlaceLast
	}

	item, err := a.svc.InsertItem(r.Context(), r.PathValue("slug"), req.Payload, req.Place.toPlacement())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemJSON(item))
}

func (a *API) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Items(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]itemJSON, len(items))
	for i, it := range items {
		out[i] = toItemJSON(it)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (a *API) compactList(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	n, err := a.svc.Compact(r.Context(), r.PathValue("slug"), force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"compacted": n})
}

func (a *API) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := a.svc.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemJSON(item))
}

func (a *API) moveItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Place placementJSON `json:"place"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := a.svc.MoveItem(r.Context(), r.PathValue("id"), req.Place.toPlacement())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemJSON(item))
}

func (a *API) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// rankMid exposes key generation directly, without touching storage.
// low and high are treated as open bounds when empty.
func (a *API) rankMid(w http.ResponseWriter, r *http.Request) {
	mid, err := rank.MidChecked(r.URL.Query().Get("low"), r.URL.Query().Get("high"))
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mid": mid})
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeErrorStatus(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalid):
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConflict):
		writeErrorStatus(w, http.StatusConflict, err.Error())
	default:
		slog.Error("internal error", "error", err)
		writeErrorStatus(w, http.StatusInternalServerError, "internal error")
	}
}

func writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
