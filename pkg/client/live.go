package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/lgessler/ali/pkg/pattern"
	"github.com/lgessler/ali/pkg/store"
)

// SearchResponse carries the outcome of a pattern search: the overall
// result label and the per-sentence matches.
type SearchResponse struct {
	Result  string          `json:"result"`
	Matches []pattern.Match `json:"matches"`
}

// SearchSentences runs a highlighted-span pattern search over the stored
// collection.
func (c *Client) SearchSentences(ctx context.Context, req pattern.Request) (*SearchResponse, error) {
	q := url.Values{}
	q.Set("q", req.Text)
	q.Set("begin", strconv.Itoa(req.Begin))
	q.Set("end", strconv.Itoa(req.End))
	q.Set("mode", string(req.Mode))
	q.Set("fuzzy", strconv.FormatBool(req.Fuzzy))

	resp, err := c.doRequest(ctx, http.MethodGet, "/api/sentences/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}

	var result SearchResponse
	if err := decodeResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return &result, nil
}

// SubscribeSentences opens a websocket subscription to the sentences
// publication. Every change to the collection arrives on the returned
// channel until the context is canceled, stop is called, or the server
// closes the feed. The publication requires no authentication.
func (c *Client) SubscribeSentences(ctx context.Context) (<-chan store.Change, func(), error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/sentences/live"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial live publication: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	events := make(chan store.Change)
	done := make(chan struct{})

	go func() {
		defer close(events)
		for {
			var change store.Change
			if err := conn.ReadJSON(&change); err != nil {
				return
			}
			select {
			case events <- change:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			conn.Close()
		})
	}

	return events, stop, nil
}
