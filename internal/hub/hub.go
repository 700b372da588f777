// Package hub owns the room registry: one actor goroutine mapping room
// codes to running sessions.
package hub

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/partykit/rounds-backend/internal/session"
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Code  string
	Opts  session.Options
	Reply chan *session.Session
}

type GetRoom struct {
	Code  string
	Reply chan *session.Session
}

type EnsureRoom struct {
	Code  string
	Opts  session.Options // only used if creation happens
	Reply chan *session.Session
}

type RemoveRoom struct {
	Code string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*session.Session
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

func NewHub(parent context.Context, log zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*session.Session),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if s := h.rooms[msg.Code]; s != nil {
					msg.Reply <- s
					break
				}
				s := session.New(h.ctx, msg.Opts)
				h.rooms[msg.Code] = s
				h.log.Info().Str("code", msg.Code).Str("mode", string(s.Mode())).Msg("room created")
				msg.Reply <- s

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // may be nil

			case EnsureRoom:
				if s := h.rooms[msg.Code]; s != nil {
					msg.Reply <- s
					break
				}
				s := session.New(h.ctx, msg.Opts)
				h.rooms[msg.Code] = s
				msg.Reply <- s

			case RemoveRoom:
				if s := h.rooms[msg.Code]; s != nil {
					s.Inbox() <- session.Shutdown{}
					delete(h.rooms, msg.Code)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for code, s := range h.rooms {
		s.Inbox() <- session.Shutdown{}
		delete(h.rooms, code)
	}
	h.cancel()
}
