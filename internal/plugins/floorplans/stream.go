package floorplans

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

// Events streams change notifications for one floorplan over a websocket.
// Each message is a JSON annotation.ChangeEvent. Clients only read; the
// stream ends when either side closes.
// GET /floorplans/:id/events
func (h *Handler) Events(c echo.Context) error {
	fpID := c.Param("id")
	if _, err := h.floorplans.GetFloorplan(c.Request().Context(), fpID); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := h.events.Subscribe(ctx, fpID)
	if err != nil {
		slog.Warn("event subscription failed", slog.String("floorplan_id", fpID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "change stream unavailable")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the error response.
		return nil
	}
	defer conn.Close()

	// Reader: handles pongs and notices when the client goes away.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	slog.Debug("event stream opened", slog.String("floorplan_id", fpID), slog.String("remote_ip", c.RealIP()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(streamWriteWait))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return nil
			}
		}
	}
}
