// internal/websocket/hub.go
package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	gwebsocket "github.com/gorilla/websocket"

	"smart-home-gateway/internal/alerting"
	"smart-home-gateway/internal/data"
)

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard runs on a different origin (Next.js dev server).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Notifier bridges the alerting hub onto /notifications/ws. Each connection
// gets the buffered notifications as an "init" message on join, then live
// "notification" messages in publish order.
type Notifier struct {
	alerts *alerting.Hub
}

func NewNotifier(alerts *alerting.Hub) *Notifier {
	return &Notifier{alerts: alerts}
}

// Wire format expected by the dashboard's notification bell.
type notification struct {
	ID        string         `json:"id"`
	Type      data.AlertKind `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	Read      bool           `json:"read"`
}

type initMessage struct {
	Type          string         `json:"type"`
	Notifications []notification `json:"notifications"`
}

type eventMessage struct {
	Type         string       `json:"type"`
	Notification notification `json:"notification"`
}

type clientCommand struct {
	Type string `json:"type"`
}

func fromEvent(e data.AlertEvent) notification {
	return notification{
		ID:        e.ID,
		Type:      e.Kind,
		Message:   e.Message,
		Data:      e.Data(),
		CreatedAt: e.CreatedAt,
		Read:      e.Read,
	}
}

// HandleWS upgrades the connection and wires it to a fresh alert
// subscription. The subscription is released as soon as the client
// disconnects.
func (n *Notifier) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	snapshot, sub := n.alerts.Subscribe()
	client := NewClient(conn)
	client.OnMessage = func(raw []byte) {
		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return
		}
		switch cmd.Type {
		case "mark_all_read":
			n.alerts.MarkAllRead()
		case "clear_all":
			n.alerts.ClearAll()
		}
	}

	notifications := make([]notification, len(snapshot))
	for i, e := range snapshot {
		notifications[i] = fromEvent(e)
	}
	init, err := json.Marshal(initMessage{Type: "init", Notifications: notifications})
	if err != nil {
		log.Printf("Error marshalling init message: %v", err)
		sub.Close()
		conn.Close()
		return
	}
	client.Send <- init

	go client.WritePump()
	go client.ReadPump()
	go n.pump(client, sub)

	log.Printf("Notification client connected: %s", conn.RemoteAddr())
}

// pump forwards live alert events to one client until it disconnects.
func (n *Notifier) pump(client *Client, sub *alerting.Subscriber) {
	defer sub.Close()
	for {
		select {
		case <-client.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				client.Close()
				return
			}
			msg, err := json.Marshal(eventMessage{Type: "notification", Notification: fromEvent(e)})
			if err != nil {
				log.Printf("Error marshalling notification: %v", err)
				continue
			}
			select {
			case client.Send <- msg:
			case <-client.Done():
				return
			}
		}
	}
}
