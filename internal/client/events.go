package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/sitewalk/sitewalk/internal/annotation"
)

// Subscribe opens the change stream of a floorplan. Events are delivered on
// the returned channel until ctx is cancelled or the connection drops; the
// channel is then closed.
func (c *Client) Subscribe(ctx context.Context, floorplanID string) (<-chan annotation.ChangeEvent, error) {
	wsURL := c.baseURL + fpPath(floorplanID) + "/events"
	wsURL = "ws" + strings.TrimPrefix(wsURL, "http")

	header := http.Header{}
	if c.userID != "" {
		header.Set("X-User-ID", c.userID)
		header.Set("X-User-Name", c.userName)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}

	out := make(chan annotation.ChangeEvent, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		case <-done:
		}
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer close(done)
		for {
			var ev annotation.ChangeEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Warn("event stream closed",
						slog.String("floorplan_id", floorplanID),
						slog.Any("error", err),
					)
				}
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
