package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/partykit/rounds-backend/internal/event"
	"github.com/partykit/rounds-backend/internal/hub"
	"github.com/partykit/rounds-backend/internal/roster"
	"github.com/partykit/rounds-backend/internal/session"
	"github.com/partykit/rounds-backend/pkg/types"
)

// Handler joins a websocket client to a room as a participant/observer.
// The outbound side drains the session's notification channel; the
// inbound side parses ClientMessages into session requests.
func Handler(h *hub.Hub, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
		s := <-reply
		if s == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := randID(8)
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "player-" + clientID[:4]
		}

		out := make(chan event.Notification, 16)
		s.Inbox() <- session.Join{ClientID: clientID, Name: name, Outbox: out}
		defer func() { s.Inbox() <- session.Leave{ClientID: clientID} }()

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for n := range out {
				payload, err := json.Marshal(n)
				if err != nil {
					log.Error().Err(err).Str("event", string(n.Type)).Msg("marshal notification")
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		for {
			ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"Error","error":"bad json"}`))
				continue
			}

			msg, ok := toSessionMsg(clientID, cm)
			if !ok {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"Error","error":"unknown type"}`))
				continue
			}
			s.Inbox() <- msg
		}
	}
}

func toSessionMsg(clientID string, m types.ClientMessage) (session.Msg, bool) {
	switch m.Type {
	case "RequestPush":
		return session.RequestPush{ClientID: clientID}, true
	case "UpdatePosition":
		return session.UpdatePosition{ClientID: clientID, Pos: roster.Vec3{X: m.X, Y: m.Y, Z: m.Z}}, true
	case "Sit":
		return session.Sit{ClientID: clientID, SeatID: m.SeatID}, true
	case "Stand":
		return session.Stand{ClientID: clientID}, true
	case "ReportDeath":
		return session.ReportDeath{ClientID: clientID}, true
	case "ReportRespawn":
		return session.ReportRespawn{ClientID: clientID}, true
	default:
		return nil, false
	}
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
