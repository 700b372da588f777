package types

// Client -> Server, over the /ws connection. Actor identity is implicit
// from the connection; no message carries a sender id.
//
// RequestPush: {}
//
// UpdatePosition:
//   x, y, z: number (arena-space character position)
//
// Sit:
//   seat_id: number
//
// Stand: {}
//
// ReportDeath: {}    character died (fall, damage)
// ReportRespawn: {}  character was replaced

type ClientMessage struct {
	Type   string  `json:"type"`
	SeatID int     `json:"seat_id,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Z      float64 `json:"z,omitempty"`
}

// Server -> Client: a stream of tagged notifications. Continuous values
// (remaining round time, remaining countdown) are NOT streamed; clients
// re-derive them locally as deadline - now against the shared clock.
//
// Lobby:                 message, min_players
// RoundStarting:         start_time, participant_count
// RoundStarted:          round_id, end_time, seat_count
// RoundTick:             end_time, alive_count   (rate-limited heartbeat)
// RoundEnded:            round_id
// Hazard:                key, name, description
// SeatTrapped:           position {x,y,z}
// PushActivated:         name (actor)
// PushFeedback:          status in Success|Cooldown|NoTargets|Inactive|NoCharacter, value (seconds)
// ParticipantEliminated: name
// ParticipantLeft:       name
// Winner:                name ("" = no winner)
// CountdownStarted:      name, duration, deadline
// CountdownReset:        name
// CountdownEvent:        name, key, description
// Error:                 error

type CreateRoomRequest struct {
	Mode string `json:"mode"` // "chairs" | "death_date"
}

type CreateRoomResponse struct {
	Code string `json:"code"`
	Mode string `json:"mode"`
}
