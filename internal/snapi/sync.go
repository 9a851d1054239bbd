package snapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/agentworkforce/notefs/internal/notefs"
)

const maxSyncPages = 1000

type syncRequest struct {
	Items       []RemoteItem `json:"items"`
	SyncToken   string       `json:"sync_token,omitempty"`
	CursorToken string       `json:"cursor_token,omitempty"`
	API         string       `json:"api"`
}

type syncConflict struct {
	Type        string      `json:"type"`
	ServerItem  *RemoteItem `json:"server_item"`
	UnsavedItem *RemoteItem `json:"unsaved_item"`
}

type syncResponse struct {
	RetrievedItems []RemoteItem   `json:"retrieved_items"`
	SavedItems     []RemoteItem   `json:"saved_items"`
	Conflicts      []syncConflict `json:"conflicts"`
	SyncToken      string         `json:"sync_token"`
	CursorToken    string         `json:"cursor_token"`
}

// Sync uploads items and pages through the server's changes since the last
// sync token. Items go out on the first page only. The token only advances
// once every page has arrived, so a failed call is retried from the start.
func (c *Client) Sync(ctx context.Context, items []notefs.Item) (notefs.SyncResult, error) {
	encoded := make([]RemoteItem, 0, len(items))
	for _, item := range items {
		raw, err := c.codec.Encode(item)
		if err != nil {
			return notefs.SyncResult{}, err
		}
		encoded = append(encoded, raw)
	}

	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	var result notefs.SyncResult
	token := c.syncToken
	req := syncRequest{
		Items:     encoded,
		SyncToken: token,
		API:       APIVersion,
	}
	for page := 0; ; page++ {
		if page >= maxSyncPages {
			return notefs.SyncResult{}, fmt.Errorf("sync: more than %d pages", maxSyncPages)
		}
		var resp syncResponse
		if err := c.doJSON(ctx, http.MethodPost, "/items/sync", req, &resp); err != nil {
			return notefs.SyncResult{}, err
		}
		if resp.SyncToken == "" {
			return notefs.SyncResult{}, fmt.Errorf("sync: invalid response without sync_token")
		}
		c.collect(&result, resp)
		token = resp.SyncToken
		if resp.CursorToken == "" {
			break
		}
		req = syncRequest{
			Items:       []RemoteItem{},
			SyncToken:   token,
			CursorToken: resp.CursorToken,
			API:         APIVersion,
		}
	}
	c.syncToken = token
	return result, nil
}

func (c *Client) collect(result *notefs.SyncResult, resp syncResponse) {
	for _, raw := range resp.RetrievedItems {
		if !allowedKind(raw.ContentType) {
			continue
		}
		if item, ok := c.decode(raw, "retrieved"); ok {
			result.ResponseItems = append(result.ResponseItems, item)
		}
	}
	for _, raw := range resp.SavedItems {
		if item, ok := c.decode(raw, "saved"); ok {
			result.SavedItems = append(result.SavedItems, item)
		}
	}
	for _, conflict := range resp.Conflicts {
		if conflict.Type != "sync_conflict" || conflict.ServerItem == nil {
			continue
		}
		if item, ok := c.decode(*conflict.ServerItem, "conflict"); ok {
			result.Conflicts = append(result.Conflicts, item)
		}
	}
}

func (c *Client) decode(raw RemoteItem, category string) (notefs.Item, bool) {
	item, err := c.codec.Decode(raw)
	if err != nil {
		c.logf("skipping %s item %s: %v", category, raw.UUID, err)
		return notefs.Item{}, false
	}
	return item, true
}

// ResetSync forgets the sync token so the next call downloads everything.
func (c *Client) ResetSync() {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	c.syncToken = ""
}

func allowedKind(contentType string) bool {
	switch notefs.Kind(contentType) {
	case notefs.KindNote, notefs.KindTag:
		return true
	}
	return false
}
