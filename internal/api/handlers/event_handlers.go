package handlers

import (
	"fmt"
	"net/http"

	"trailmap-go/internal/sse"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// EventHandler streamt Server-Sent Events an verbundene Clients
type EventHandler struct {
	hub *sse.Hub
}

// NewEventHandler erstellt einen neuen EventHandler
func NewEventHandler(hub *sse.Hub) *EventHandler {
	return &EventHandler{hub: hub}
}

// StreamEvents behandelt GET /api/events. Die Verbindung bleibt offen, bis
// der Client sie schließt; Ingest- und Reconcile-Ereignisse werden als
// SSE-Nachrichten durchgereicht.
func (h *EventHandler) StreamEvents(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	client := make(sse.Client, 10)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	// Initiales Kommentar-Event, damit Proxies die Verbindung aufbauen
	fmt.Fprintf(c.Writer, ": connected\n\n")
	flusher.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case message, ok := <-client:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", message)
			flusher.Flush()
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return
		}
	}
}
