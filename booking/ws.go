package booking

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins — adjust for production if needed
		return true
	},
}

var (
	subscribers = make(map[string][]*websocket.Conn)
	mu          sync.Mutex
)

// HandleAvailabilityWS streams slot availability changes for one
// counselor to connected clients.
func HandleAvailabilityWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	counselorID := ps.ByName("counselorId")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "WebSocket upgrade failed", http.StatusBadRequest)
		return
	}

	mu.Lock()
	subscribers[counselorID] = append(subscribers[counselorID], conn)
	mu.Unlock()

	for {
		// This keeps the connection alive until the client disconnects
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}

	// Clean up on disconnect
	mu.Lock()
	conns := subscribers[counselorID]
	newList := make([]*websocket.Conn, 0, len(conns))
	for _, c := range conns {
		if c != conn {
			newList = append(newList, c)
		}
	}
	subscribers[counselorID] = newList
	mu.Unlock()

	conn.Close()
}

// BroadcastSlotUpdate pushes a slot status change to everyone watching
// the counselor's calendar.
func BroadcastSlotUpdate(counselorID, slotID, status string) {
	msg, err := json.Marshal(map[string]interface{}{
		"type":   "slot_update",
		"slotId": slotID,
		"status": status,
		"at":     time.Now().UTC(),
	})
	if err != nil {
		return
	}
	broadcast(counselorID, msg)
}

func broadcast(key string, val []byte) {
	mu.Lock()
	defer mu.Unlock()

	conns := subscribers[key]
	newList := conns[:0]

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, val); err == nil {
			newList = append(newList, conn)
		} else {
			conn.Close()
		}
	}

	subscribers[key] = newList
}
