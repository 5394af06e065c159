package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/tracklab/relay/internal/events"
	"github.com/tracklab/relay/internal/logger"
)

// DefaultHeartbeat is the interval between ping frames on an otherwise idle
// stream. It lets observers distinguish "alive, no job activity" from a
// silently dead connection.
const DefaultHeartbeat = 15 * time.Second

// StreamHandler serves the server-sent-events propagation channel. Each
// connection gets its own bus subscription; no state is shared between
// observer connections beyond the bus itself.
type StreamHandler struct {
	bus       *events.Bus
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler instance
func NewStreamHandler(bus *events.Bus, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{bus: bus, heartbeat: heartbeat}
}

// Events streams bus updates to one observer until the connection drops
func (h *StreamHandler) Events(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set(fiber.HeaderTransferEncoding, "chunked")

	ch, cancel := h.bus.Subscribe()

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case update, ok := <-ch:
				if !ok {
					return
				}
				if err := writeEvent(w, string(update.Type), update); err != nil {
					logger.Debugf("Observer disconnected: %v", err)
					return
				}
			case <-ticker.C:
				ping := events.JobUpdate{Type: events.EventPing, UpdatedAt: time.Now().UTC()}
				if err := writeEvent(w, string(events.EventPing), ping); err != nil {
					logger.Debugf("Observer disconnected on heartbeat: %v", err)
					return
				}
			}
		}
	}))

	return nil
}

// writeEvent frames one update as an SSE message and flushes it. A flush
// error is the only signal that the observer went away.
func writeEvent(w *bufio.Writer, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
