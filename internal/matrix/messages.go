package matrix

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
)

// messagesPage is one /messages response, with events in chronological
// order.
type messagesPage struct {
	events []gjson.Result
	end    string
}

// messages fetches up to limit events older than from. mautrix does not
// expose the raw event JSON, which the event cache stores, so the request is
// made directly.
func (c *Client) messages(ctx context.Context, roomID, from string, limit int) (*messagesPage, error) {
	qs := url.Values{}
	qs.Set("dir", "b")
	qs.Set("limit", strconv.Itoa(limit))
	if from != "" {
		qs.Set("from", from)
	}
	u := c.opts.Homeserver + "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/messages?" + qs.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("messages: NewRequest failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.AccessToken)
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messages: request failed: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("messages: reading body: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("messages: HTTP %d %s", res.StatusCode, gjson.GetBytes(body, "errcode").Str)
	}
	parsed := gjson.ParseBytes(body)
	chunk := parsed.Get("chunk").Array()
	page := &messagesPage{end: parsed.Get("end").Str, events: make([]gjson.Result, len(chunk))}
	for i, ev := range chunk {
		page.events[len(chunk)-1-i] = ev
	}
	return page, nil
}
