package main

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

const defaultSessionID = "default_session"

// ========== Chat WebSocket ==========

// handleChat answers each inbound text frame with exactly one reply frame.
// Failures are reported in-band and the connection stays open.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	log.Printf("Chat session %s connected from %s", sessionID, r.RemoteAddr)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Chat session %s read error: %v", sessionID, err)
			}
			log.Printf("Chat session %s disconnected", sessionID)
			return
		}

		reply, err := s.relay.Handle(r.Context(), sessionID, string(msg))
		if err != nil {
			log.Printf("Chat session %s: %v", sessionID, err)
			reply = "Sorry, an error occurred with the chatbot: " + err.Error()
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			log.Printf("Chat session %s write error: %v", sessionID, err)
			return
		}
	}
}

// ========== Sessions ==========

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.Sessions(r.Context())
	if err != nil {
		jsonErr(w, "Failed to list sessions: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	jsonResp(w, map[string]interface{}{"sessions": ids})
}
