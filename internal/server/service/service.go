// Package service implements the key-ordered list operations: inserting,
// moving and deleting items whose order is carried entirely by rank keys,
// so neighbors never get renumbered.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lexkey/lexkey/internal/metrics"
	"github.com/lexkey/lexkey/internal/server/id"
	"github.com/lexkey/lexkey/internal/server/notify"
	"github.com/lexkey/lexkey/internal/server/store"
	"github.com/lexkey/lexkey/internal/server/validate"
	"github.com/lexkey/lexkey/rank"
)

// Error categories mapped to HTTP status codes at the API boundary.
var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid argument")
	ErrConflict = errors.New("conflict")
)

// Placement describes where a new or moved item goes within its list.
type Placement struct {
	Kind    string // "first", "last", "before", "after", "between"
	Anchor  string // item ID for before/after, lower item ID for between
	AnchorB string // upper item ID for between
}

// Placement kinds.
const (
	PlaceFirst   = "first"
	PlaceLast    = "last"
	PlaceBefore  = "before"
	PlaceAfter   = "after"
	PlaceBetween = "between"
)

// insertRetries bounds the re-resolve loop when a concurrent writer takes
// the computed position first.
const insertRetries = 3

// Service wires the store, the rank generator and the event broadcaster.
type Service struct {
	db               *sql.DB
	queries          *store.Queries
	events           *notify.Broadcaster
	compactThreshold int
}

// New creates a Service. compactThreshold is the position-key length above
// which Compact rekeys a list.
func New(sqlDB *sql.DB, q *store.Queries, events *notify.Broadcaster, compactThreshold int) *Service {
	return &Service{db: sqlDB, queries: q, events: events, compactThreshold: compactThreshold}
}

// CreateList creates a new empty list.
func (s *Service) CreateList(ctx context.Context, slug, title string) (store.List, error) {
	cleaned, err := validate.Slug(slug)
	if err != nil {
		return store.List{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if title == "" {
		title = cleaned
	}

	listID := id.Generate()
	if err := s.queries.CreateList(ctx, store.CreateListParams{ID: listID, Slug: cleaned, Title: title}); err != nil {
		if isUniqueViolation(err) {
			return store.List{}, fmt.Errorf("%w: list %q already exists", ErrConflict, cleaned)
		}
		return store.List{}, fmt.Errorf("create list: %w", err)
	}

	list, err := s.queries.GetListByID(ctx, listID)
	if err != nil {
		return store.List{}, fmt.Errorf("load created list: %w", err)
	}

	s.events.Publish(notify.Event{Type: notify.EventListCreated, ListSlug: cleaned})
	return list, nil
}

// GetList returns the list with the given slug.
func (s *Service) GetList(ctx context.Context, slug string) (store.List, error) {
	list, err := s.queries.GetListBySlug(ctx, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return store.List{}, fmt.Errorf("%w: list %q", ErrNotFound, slug)
	}
	if err != nil {
		return store.List{}, fmt.Errorf("get list: %w", err)
	}
	return list, nil
}

// Lists returns all lists ordered by slug.
func (s *Service) Lists(ctx context.Context) ([]store.List, error) {
	return s.queries.ListLists(ctx)
}

// DeleteList removes a list and all its items.
func (s *Service) DeleteList(ctx context.Context, slug string) error {
	list, err := s.GetList(ctx, slug)
	if err != nil {
		return err
	}
	if err := s.queries.DeleteList(ctx, list.ID); err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	s.events.Publish(notify.Event{Type: notify.EventListDeleted, ListSlug: slug})
	return nil
}

// Items returns the list's items in key order.
func (s *Service) Items(ctx context.Context, slug string) ([]store.Item, error) {
	list, err := s.GetList(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.queries.ListItemsByList(ctx, list.ID)
}

// GetItem returns a single item by ID.
func (s *Service) GetItem(ctx context.Context, itemID string) (store.Item, error) {
	item, err := s.queries.GetItem(ctx, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Item{}, fmt.Errorf("%w: item %q", ErrNotFound, itemID)
	}
	if err != nil {
		return store.Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// InsertItem adds an item to the list at the given placement. Only the new
// item gets a key; no existing item is touched.
func (s *Service) InsertItem(ctx context.Context, slug, payload string, place Placement) (store.Item, error) {
	list, err := s.GetList(ctx, slug)
	if err != nil {
		return store.Item{}, err
	}

	itemID := id.Generate()
	var lastErr error
	for attempt := 0; attempt < insertRetries; attempt++ {
		low, high, err := s.resolvePlacement(ctx, list.ID, "", place)
		if err != nil {
			return store.Item{}, err
		}

		position := rank.Mid(low, high)
		err = s.queries.CreateItem(ctx, store.CreateItemParams{
			ID: itemID, ListID: list.ID, Payload: payload, Position: position,
		})
		if err == nil {
			metrics.RecordKey(place.Kind, position)
			s.events.Publish(notify.Event{
				Type: notify.EventItemInserted, ListSlug: slug, ItemID: itemID, Position: position,
			})
			return s.GetItem(ctx, itemID)
		}
		if !isUniqueViolation(err) {
			return store.Item{}, fmt.Errorf("insert item: %w", err)
		}
		// A concurrent insert took this position; re-read the neighbors.
		lastErr = err
		slog.Debug("position taken, retrying insert", "list", slug, "position", position, "attempt", attempt+1)
	}
	return store.Item{}, fmt.Errorf("%w: could not place item after %d attempts: %v", ErrConflict, insertRetries, lastErr)
}

// MoveItem reassigns an item's key to place it elsewhere in its list. The
// payload and identity are unchanged and no other item moves.
func (s *Service) MoveItem(ctx context.Context, itemID string, place Placement) (store.Item, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return store.Item{}, err
	}
	list, err := s.queries.GetListByID(ctx, item.ListID)
	if err != nil {
		return store.Item{}, fmt.Errorf("get list: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < insertRetries; attempt++ {
		low, high, err := s.resolvePlacement(ctx, item.ListID, itemID, place)
		if err != nil {
			return store.Item{}, err
		}
		// The item's own key turning up as a bound means it already sits in
		// the requested slot.
		if item.Position == low || item.Position == high {
			return item, nil
		}

		position := rank.Mid(low, high)
		err = s.queries.UpdateItemPosition(ctx, store.UpdateItemPositionParams{ID: itemID, Position: position})
		if err == nil {
			metrics.RecordKey(place.Kind, position)
			s.events.Publish(notify.Event{
				Type: notify.EventItemMoved, ListSlug: list.Slug, ItemID: itemID, Position: position,
			})
			return s.GetItem(ctx, itemID)
		}
		if !isUniqueViolation(err) {
			return store.Item{}, fmt.Errorf("move item: %w", err)
		}
		lastErr = err
		slog.Debug("position taken, retrying move", "item", itemID, "position", position, "attempt", attempt+1)
	}
	return store.Item{}, fmt.Errorf("%w: could not place item after %d attempts: %v", ErrConflict, insertRetries, lastErr)
}

// DeleteItem removes an item.
func (s *Service) DeleteItem(ctx context.Context, itemID string) error {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	list, err := s.queries.GetListByID(ctx, item.ListID)
	if err != nil {
		return fmt.Errorf("get list: %w", err)
	}
	if err := s.queries.DeleteItem(ctx, itemID); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	s.events.Publish(notify.Event{Type: notify.EventItemDeleted, ListSlug: list.Slug, ItemID: itemID})
	return nil
}

// Compact reissues short evenly spaced keys for every item in the list,
// preserving order, in one transaction. Unless force is set it only runs
// when the longest key exceeds the configured threshold. Returns the
// number of items rekeyed (0 when skipped).
func (s *Service) Compact(ctx context.Context, slug string, force bool) (int, error) {
	list, err := s.GetList(ctx, slug)
	if err != nil {
		return 0, err
	}

	if !force {
		maxLen, err := s.queries.MaxPositionLength(ctx, list.ID)
		if err != nil {
			return 0, fmt.Errorf("max position length: %w", err)
		}
		if maxLen <= int64(s.compactThreshold) {
			return 0, nil
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin compact: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := s.queries.WithTx(tx)
	items, err := q.ListItemsByList(ctx, list.ID)
	if err != nil {
		return 0, fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	// Two passes: park every row on a placeholder outside the alphabet
	// first, so the new keys can never collide with old ones under the
	// (list_id, position) unique index.
	for _, item := range items {
		if err := q.UpdateItemPosition(ctx, store.UpdateItemPositionParams{ID: item.ID, Position: "#" + item.ID}); err != nil {
			return 0, fmt.Errorf("park item %s: %w", item.ID, err)
		}
	}

	keys := rank.Spaced(len(items))
	for i, item := range items {
		if err := q.UpdateItemPosition(ctx, store.UpdateItemPositionParams{ID: item.ID, Position: keys[i]}); err != nil {
			return 0, fmt.Errorf("rekey item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit compact: %w", err)
	}

	metrics.CompactionsTotal.Inc()
	s.events.Publish(notify.Event{Type: notify.EventListCompacted, ListSlug: slug})
	slog.Info("compacted list", "list", slug, "items", len(items))
	return len(items), nil
}

// resolvePlacement turns a Placement into the (low, high) neighbor keys
// the new key must fall between; "" is an open bound. moveID is the item
// being moved (empty for inserts) and may not be its own anchor.
func (s *Service) resolvePlacement(ctx context.Context, listID, moveID string, place Placement) (low, high string, err error) {
	anchorItem := func(anchorID string) (store.Item, error) {
		if anchorID == "" {
			return store.Item{}, fmt.Errorf("%w: placement %q requires an anchor item", ErrInvalid, place.Kind)
		}
		if anchorID == moveID {
			return store.Item{}, fmt.Errorf("%w: item cannot anchor its own move", ErrInvalid)
		}
		item, err := s.GetItem(ctx, anchorID)
		if err != nil {
			return store.Item{}, err
		}
		if item.ListID != listID {
			return store.Item{}, fmt.Errorf("%w: anchor %q belongs to another list", ErrInvalid, anchorID)
		}
		return item, nil
	}

	switch place.Kind {
	case PlaceFirst:
		high, err = s.queries.FirstPosition(ctx, listID)
		if err != nil {
			return "", "", fmt.Errorf("first position: %w", err)
		}
		return "", high, nil

	case PlaceLast:
		low, err = s.queries.LastPosition(ctx, listID)
		if err != nil {
			return "", "", fmt.Errorf("last position: %w", err)
		}
		return low, "", nil

	case PlaceBefore:
		anchor, err := anchorItem(place.Anchor)
		if err != nil {
			return "", "", err
		}
		low, err = s.queries.PrevPosition(ctx, listID, anchor.Position)
		if err != nil {
			return "", "", fmt.Errorf("prev position: %w", err)
		}
		return low, anchor.Position, nil

	case PlaceAfter:
		anchor, err := anchorItem(place.Anchor)
		if err != nil {
			return "", "", err
		}
		high, err = s.queries.NextPosition(ctx, listID, anchor.Position)
		if err != nil {
			return "", "", fmt.Errorf("next position: %w", err)
		}
		return anchor.Position, high, nil

	case PlaceBetween:
		lower, err := anchorItem(place.Anchor)
		if err != nil {
			return "", "", err
		}
		upper, err := anchorItem(place.AnchorB)
		if err != nil {
			return "", "", err
		}
		if lower.Position >= upper.Position {
			return "", "", fmt.Errorf("%w: anchors are not in order", ErrInvalid)
		}
		// Insert directly after the lower anchor; its successor may sit
		// closer than the upper anchor.
		high, err = s.queries.NextPosition(ctx, listID, lower.Position)
		if err != nil {
			return "", "", fmt.Errorf("next position: %w", err)
		}
		return lower.Position, high, nil

	default:
		return "", "", fmt.Errorf("%w: unknown placement %q", ErrInvalid, place.Kind)
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
