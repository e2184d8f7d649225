// Package client orchestrates view, create, update and close operations
// against the Trello API and keeps the friendly ID cache in step with them.
//
// Every operation follows the same shape: resolve friendly IDs through the
// cache, issue one request, and on success refresh the affected level from
// the server. Mutations never patch the cache directly; the follow-up view
// is the only writer of cached entries.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/adlio/trello"

	"iroha/backend"
	"iroha/internal/cache"
	"iroha/internal/hierarchy"
	"iroha/internal/ratelimit"
	"iroha/internal/utils"
)

// Row is one displayed entity: its friendly ID, name and (cards only) description.
type Row struct {
	ID   string
	Name string
	Desc string
}

// statsSource is implemented by Exchangers that track rate limit replies.
type statsSource interface {
	Stats() *ratelimit.Stats
}

// Client issues requests over an Exchanger and maintains the cache. Calls must
// not overlap.
type Client struct {
	ex    backend.Exchanger
	store cache.Store
}

// New creates a Client.
func New(ex backend.Exchanger, store cache.Store) *Client {
	return &Client{ex: ex, store: store}
}

// Store returns the cache the client maintains.
func (c *Client) Store() cache.Store {
	return c.store
}

// Cached returns the rows of level as of its last refresh, without a request.
// Descriptions are not cached, so Desc is always empty.
func (c *Client) Cached(level hierarchy.Level) ([]Row, error) {
	entries, err := c.store.Entries(level)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = Row{ID: e.ID, Name: e.Item.Name}
	}
	return rows, nil
}

// Close closes the exchanger and the cache.
func (c *Client) Close() error {
	exErr := c.ex.Close()
	storeErr := c.store.Close()
	if exErr != nil {
		return exErr
	}
	return storeErr
}

// do runs one exchange and turns a non-2xx reply into a *utils.RemoteError.
func (c *Client) do(ctx context.Context, method, target string) (*backend.Response, error) {
	resp, err := c.ex.Exchange(ctx, method, target)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		utils.Debugf("%s %s rejected: %d %s", method, target, resp.StatusCode, resp.Reason)
		remoteErr := &utils.RemoteError{
			StatusCode: resp.StatusCode,
			Reason:     resp.Reason,
			Body:       string(resp.Body),
			RetryAfter: ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if src, ok := c.ex.(statsSource); ok {
				return nil, utils.WrapWithSuggestion(remoteErr, src.Stats().Suggestion())
			}
		}
		return nil, remoteErr
	}
	return resp, nil
}

// resolve looks up id in the mapping for its level.
func (c *Client) resolve(id hierarchy.ID) (cache.Item, error) {
	return c.store.Lookup(id.Level(), id.String())
}

func expectLevel(id hierarchy.ID, want hierarchy.Level) error {
	if id.Level() != want {
		return fmt.Errorf("expected a %s ID, got %s ID %q", want, id.Level(), id.String())
	}
	return nil
}

// refresh fetches a collection and replaces level in the cache with it.
// Minted IDs are children of parent; boards have the zero ID as parent.
func (c *Client) refresh(ctx context.Context, level hierarchy.Level, parent hierarchy.ID, target string) ([]Row, error) {
	resp, err := c.do(ctx, http.MethodGet, target)
	if err != nil {
		return nil, err
	}

	if resp.Empty() {
		if err := c.store.Clear(level); err != nil {
			return nil, err
		}
		return nil, utils.ErrEmptyResponse
	}

	items, err := decodeCollection(level, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", level.Plural(), err)
	}

	rows := make([]Row, len(items))
	entries := make([]cache.Entry, len(items))
	for i, it := range items {
		id := strconv.Itoa(i)
		if !parent.IsZero() {
			id = parent.Child(i).String()
		}
		rows[i] = Row{ID: id, Name: it.Name, Desc: it.Desc}
		entries[i] = cache.Entry{ID: id, Item: cache.Item{RemoteID: it.ID, Name: it.Name}}
	}
	if err := c.store.Replace(level, entries); err != nil {
		return nil, err
	}
	utils.Debugf("Cached %d %s", len(entries), level.Plural())
	return rows, nil
}

// remoteItem is the subset of a board, list or card the client uses.
type remoteItem struct {
	ID   string
	Name string
	Desc string
}

func decodeCollection(level hierarchy.Level, body []byte) ([]remoteItem, error) {
	var items []remoteItem
	switch level {
	case hierarchy.LevelBoard:
		var boards []trello.Board
		if err := json.Unmarshal(body, &boards); err != nil {
			return nil, err
		}
		for _, b := range boards {
			items = append(items, remoteItem{ID: b.ID, Name: b.Name})
		}
	case hierarchy.LevelList:
		var lists []trello.List
		if err := json.Unmarshal(body, &lists); err != nil {
			return nil, err
		}
		for _, l := range lists {
			items = append(items, remoteItem{ID: l.ID, Name: l.Name})
		}
	case hierarchy.LevelCard:
		var cards []trello.Card
		if err := json.Unmarshal(body, &cards); err != nil {
			return nil, err
		}
		for _, cd := range cards {
			items = append(items, remoteItem{ID: cd.ID, Name: cd.Name, Desc: cd.Desc})
		}
	default:
		return nil, fmt.Errorf("unknown level: %s", level)
	}
	return items, nil
}

// =============================================================================
// View
// =============================================================================

// ViewBoards refreshes the boards mapping with the member's open boards.
func (c *Client) ViewBoards(ctx context.Context) ([]Row, error) {
	return c.refresh(ctx, hierarchy.LevelBoard, hierarchy.ID{}, boardsPath())
}

// ViewLists refreshes the lists mapping with the lists of board. A board
// missing from the cache aborts without touching it.
func (c *Client) ViewLists(ctx context.Context, board hierarchy.ID) ([]Row, error) {
	if err := expectLevel(board, hierarchy.LevelBoard); err != nil {
		return nil, err
	}
	item, err := c.resolve(board)
	if err != nil {
		return nil, err
	}
	return c.refresh(ctx, hierarchy.LevelList, board, listsPath(item.RemoteID))
}

// ViewCards refreshes the cards mapping with the cards of list.
func (c *Client) ViewCards(ctx context.Context, list hierarchy.ID) ([]Row, error) {
	if err := expectLevel(list, hierarchy.LevelList); err != nil {
		return nil, err
	}
	item, err := c.resolve(list)
	if err != nil {
		return nil, err
	}
	return c.refresh(ctx, hierarchy.LevelCard, list, cardsPath(item.RemoteID))
}

// View refreshes the level below id, or the boards when id is zero.
// A card ID is not viewable as a collection; use CardDetail.
func (c *Client) View(ctx context.Context, id hierarchy.ID) ([]Row, error) {
	if id.IsZero() {
		return c.ViewBoards(ctx)
	}
	switch id.Level() {
	case hierarchy.LevelBoard:
		return c.ViewLists(ctx, id)
	case hierarchy.LevelList:
		return c.ViewCards(ctx, id)
	}
	return nil, fmt.Errorf("cannot list the children of a %s", id.Level())
}

// viewScope re-issues the view that contains id.
func (c *Client) viewScope(ctx context.Context, id hierarchy.ID) ([]Row, error) {
	parent, ok := id.Parent()
	if !ok {
		return c.ViewBoards(ctx)
	}
	return c.View(ctx, parent)
}

// CardDetail fetches the full name and description of a card. The cache is not changed.
func (c *Client) CardDetail(ctx context.Context, card hierarchy.ID) (Row, error) {
	if err := expectLevel(card, hierarchy.LevelCard); err != nil {
		return Row{}, err
	}
	item, err := c.resolve(card)
	if err != nil {
		return Row{}, err
	}
	resp, err := c.do(ctx, http.MethodGet, cardDetailPath(item.RemoteID))
	if err != nil {
		return Row{}, err
	}
	if resp.Empty() {
		return Row{}, utils.ErrEmptyResponse
	}
	var detail trello.Card
	if err := json.Unmarshal(resp.Body, &detail); err != nil {
		return Row{}, fmt.Errorf("failed to decode card: %w", err)
	}
	return Row{ID: card.String(), Name: detail.Name, Desc: detail.Desc}, nil
}

// =============================================================================
// Create
// =============================================================================

// CreateBoard creates a board without default lists, then refreshes the boards.
func (c *Client) CreateBoard(ctx context.Context, name string) ([]Row, error) {
	if err := utils.ValidateName(name); err != nil {
		return nil, err
	}
	if _, err := c.do(ctx, http.MethodPost, createBoardPath(name)); err != nil {
		return nil, err
	}
	utils.Debugf("Created board %q", name)
	return c.ViewBoards(ctx)
}

// CreateList creates a list on board, then refreshes the board's lists.
func (c *Client) CreateList(ctx context.Context, board hierarchy.ID, name string) ([]Row, error) {
	if err := expectLevel(board, hierarchy.LevelBoard); err != nil {
		return nil, err
	}
	if err := utils.ValidateName(name); err != nil {
		return nil, err
	}
	item, err := c.resolve(board)
	if err != nil {
		return nil, err
	}
	if _, err := c.do(ctx, http.MethodPost, createListPath(item.RemoteID, name)); err != nil {
		return nil, err
	}
	utils.Debugf("Created list %q on board %s", name, board)
	return c.ViewLists(ctx, board)
}

// CreateCard creates a card in list, then refreshes the list's cards.
func (c *Client) CreateCard(ctx context.Context, list hierarchy.ID, name string) ([]Row, error) {
	if err := expectLevel(list, hierarchy.LevelList); err != nil {
		return nil, err
	}
	if err := utils.ValidateName(name); err != nil {
		return nil, err
	}
	item, err := c.resolve(list)
	if err != nil {
		return nil, err
	}
	if _, err := c.do(ctx, http.MethodPost, createCardPath(item.RemoteID, name)); err != nil {
		return nil, err
	}
	utils.Debugf("Created card %q in list %s", name, list)
	return c.ViewCards(ctx, list)
}

// Create creates a board (zero parent), a list (board parent) or a card (list parent).
func (c *Client) Create(ctx context.Context, parent hierarchy.ID, name string) ([]Row, error) {
	if parent.IsZero() {
		return c.CreateBoard(ctx, name)
	}
	switch parent.Level() {
	case hierarchy.LevelBoard:
		return c.CreateList(ctx, parent, name)
	case hierarchy.LevelList:
		return c.CreateCard(ctx, parent, name)
	}
	return nil, fmt.Errorf("cannot create anything inside a %s", parent.Level())
}

// =============================================================================
// Update
// =============================================================================

// update resolves id, applies args and refreshes the view that contains id.
func (c *Client) update(ctx context.Context, id hierarchy.ID, args trello.Arguments) ([]Row, error) {
	item, err := c.resolve(id)
	if err != nil {
		return nil, err
	}
	if _, err := c.do(ctx, http.MethodPut, updatePath(id.Level(), item.RemoteID, args)); err != nil {
		return nil, err
	}
	utils.Debugf("Updated %s %s", id.Level(), id)
	return c.viewScope(ctx, id)
}

// UpdateBoard renames a board.
func (c *Client) UpdateBoard(ctx context.Context, board hierarchy.ID, name string) ([]Row, error) {
	if err := expectLevel(board, hierarchy.LevelBoard); err != nil {
		return nil, err
	}
	if err := utils.ValidateName(name); err != nil {
		return nil, err
	}
	return c.update(ctx, board, trello.Arguments{"name": name})
}

// UpdateList renames a list.
func (c *Client) UpdateList(ctx context.Context, list hierarchy.ID, name string) ([]Row, error) {
	if err := expectLevel(list, hierarchy.LevelList); err != nil {
		return nil, err
	}
	if err := utils.ValidateName(name); err != nil {
		return nil, err
	}
	return c.update(ctx, list, trello.Arguments{"name": name})
}

// UpdateCard sets the name and description of a card.
func (c *Client) UpdateCard(ctx context.Context, card hierarchy.ID, name, desc string) ([]Row, error) {
	if err := expectLevel(card, hierarchy.LevelCard); err != nil {
		return nil, err
	}
	if err := utils.ValidateName(name); err != nil {
		return nil, err
	}
	if err := utils.ValidateDescription(desc); err != nil {
		return nil, err
	}
	return c.update(ctx, card, trello.Arguments{"name": name, "desc": desc})
}

// =============================================================================
// Close
// =============================================================================

// CloseItem archives the board, list or card id, then refreshes the view that
// contained it. Closed entities drop out of the refreshed view and IDs are
// re-minted, so id may afterwards name a different entity or none at all.
func (c *Client) CloseItem(ctx context.Context, id hierarchy.ID) ([]Row, error) {
	item, err := c.resolve(id)
	if err != nil {
		return nil, err
	}
	if _, err := c.do(ctx, http.MethodPut, closePath(id.Level(), item.RemoteID)); err != nil {
		return nil, err
	}
	utils.Debugf("Closed %s %s", id.Level(), id)
	return c.viewScope(ctx, id)
}
