package server

import (
	"encoding/json"
	"net/http"

	"series-observer/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// subscribeCommand is sent by websocket clients. An empty session list
// subscribes to every session.
type subscribeCommand struct {
	Command  string   `json:"command"`
	Sessions []string `json:"sessions"`
}

type subscription struct {
	client   *Client
	sessions []string
}

// Outgoing control messages.
type snapshotMessage struct {
	Type     string                `json:"type"`
	Sessions []models.MSessionInfo `json:"sessions"`
}

type subscribedMessage struct {
	Type     string   `json:"type"`
	Sessions []string `json:"sessions"`
}

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop. It alone touches s.clients and the
// clients' subscription sets.
func (s *ObserverServer) handleWebsockets() {
	for {
		select {
		case <-s.done:
			for client := range s.clients {
				s.dropClient(client)
			}
			return

		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.setConnected(len(s.clients))

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				s.dropClient(client)
			}

		case sub := <-s.subscribe:
			if _, ok := s.clients[sub.client]; !ok {
				continue
			}
			sub.client.sessions = make(map[string]struct{}, len(sub.sessions))
			for _, id := range sub.sessions {
				sub.client.sessions[id] = struct{}{}
			}
			s.deliver(sub.client, subscribedMessage{Type: "subscribed", Sessions: sub.sessions})

		case event := <-s.broadcast:
			for client := range s.clients {
				if client.wants(event.Session.ID) {
					s.deliver(client, event)
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------

// deliver queues a message; a client whose buffer is full is dropped so one
// slow consumer never blocks the hub.
func (s *ObserverServer) deliver(client *Client, message interface{}) {
	select {
	case client.send <- message:
	default:
		s.Logger.Warning("Websocket client too slow, disconnecting")
		s.dropClient(client)
	}
}

func (s *ObserverServer) dropClient(client *Client) {
	delete(s.clients, client)
	close(client.send)
	s.setConnected(len(s.clients))
}

func (s *ObserverServer) setConnected(n int) {
	s.stateMutex.Lock()
	s.connected = n
	s.stateMutex.Unlock()
	if s.Metrics != nil {
		s.Metrics.WebsocketClients.Set(float64(n))
	}
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// Broadcast queues a session event for subscribed clients.
func (s *ObserverServer) Broadcast(event models.MSessionEvent) {
	select {
	case s.broadcast <- event:
	case <-s.done:
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *ObserverServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan interface{}, 256),
	}

	// The snapshot goes first, before any event can be queued.
	sessions, err := s.Store.List(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to list sessions for websocket snapshot: %v", err)
		sessions = []models.MSessionInfo{}
	}
	client.send <- snapshotMessage{Type: "snapshot", Sessions: sessions}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

func (s *ObserverServer) HandleClientMessage(client *Client, message []byte) {
	var cmd subscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}
	if cmd.Sessions == nil {
		cmd.Sessions = []string{}
	}

	select {
	case s.subscribe <- subscription{client: client, sessions: cmd.Sessions}:
	case <-s.done:
	}
}
