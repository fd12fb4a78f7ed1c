package sse

import (
	"encoding/json"
	"sync"
	"time"

	"trailmap-go/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// Client repräsentiert einen einzelnen verbundenen SSE-Client
type Client chan []byte

// Hub verwaltet die Menge der aktiven Clients und sendet Broadcasts an sie.
// Lesende Oberflächen (Karte, Wartung) erfahren so ohne Polling von neuen
// Ingest-Batches und Reconcile-Läufen.
type Hub struct {
	// Registrierte Clients
	clients map[Client]bool

	// Eingehende Nachrichten von der Anwendung
	broadcast chan []byte

	// Registrierungsanfragen von Clients
	register chan Client

	// Abmeldeanfragen von Clients
	unregister chan Client

	mu sync.Mutex
}

// IngestEventData ist die SSE-Nachricht über einen abgeschlossenen Ingest-Batch
type IngestEventData struct {
	Type     string    `json:"type"` // "ingest"
	Source   string    `json:"source"`
	Accepted int       `json:"accepted"`
	Rejected int       `json:"rejected"`
	At       time.Time `json:"at"`
}

// ReconcileEventData ist die SSE-Nachricht über einen Reconcile-Lauf
type ReconcileEventData struct {
	Type    string                  `json:"type"` // "reconcile"
	Summary models.ReconcileSummary `json:"summary"`
	At      time.Time               `json:"at"`
}

// NewHub erstellt eine neue Hub-Instanz
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 100),
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
	}
}

// Run startet die Verarbeitungsschleife des Hubs.
// Dies sollte in einer separaten Goroutine ausgeführt werden.
func (h *Hub) Run() {
	log.Info("SSE Hub started and running")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Infof("SSE client registered. Total clients: %d", clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Infof("SSE client unregistered. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			log.Debugf("Broadcasting message to %d SSE clients", len(h.clients))

			for client := range h.clients {
				select {
				case client <- message:
				default:
					// Client-Kanal ist voll oder geschlossen
					log.Warn("SSE client channel full or closed, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register registriert einen neuen Client am Hub
func (h *Hub) Register(client Client) {
	h.register <- client
}

// Unregister meldet einen Client vom Hub ab
func (h *Hub) Unregister(client Client) {
	h.unregister <- client
}

// Broadcast sendet eine Nachricht an alle registrierten Clients
func (h *Hub) Broadcast(message []byte) {
	// Blockieren vermeiden, wenn der Broadcast-Kanal voll ist
	select {
	case h.broadcast <- message:
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

// BroadcastIngestReport meldet einen abgeschlossenen Ingest-Batch
func (h *Hub) BroadcastIngestReport(report *models.IngestReport) {
	data := IngestEventData{
		Type:     "ingest",
		Source:   report.Source,
		Accepted: report.Accepted,
		Rejected: len(report.Rejected),
		At:       time.Now().UTC(),
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Errorf("Failed to marshal ingest event for SSE: %v", err)
		return
	}
	h.Broadcast(jsonData)
}

// BroadcastReconcile meldet das Ergebnis eines Reconcile-Laufs
func (h *Hub) BroadcastReconcile(summary models.ReconcileSummary) {
	data := ReconcileEventData{
		Type:    "reconcile",
		Summary: summary,
		At:      time.Now().UTC(),
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Errorf("Failed to marshal reconcile event for SSE: %v", err)
		return
	}
	h.Broadcast(jsonData)
}
