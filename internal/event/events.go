package event

import (
	"time"

	"github.com/partykit/rounds-backend/internal/roster"
)

// Type tags an outbound notification.
type Type string

const (
	TypeLobby                  Type = "Lobby"
	TypeRoundStarting          Type = "RoundStarting"
	TypeRoundStarted           Type = "RoundStarted"
	TypeRoundTick              Type = "RoundTick"
	TypeRoundEnded             Type = "RoundEnded"
	TypeHazard                 Type = "Hazard"
	TypeSeatTrapped            Type = "SeatTrapped"
	TypePushActivated          Type = "PushActivated"
	TypePushFeedback           Type = "PushFeedback"
	TypeParticipantEliminated  Type = "ParticipantEliminated"
	TypeParticipantLeft        Type = "ParticipantLeft"
	TypeWinner                 Type = "Winner"
	TypeCountdownStarted       Type = "CountdownStarted"
	TypeCountdownReset         Type = "CountdownReset"
	TypeCountdownEvent         Type = "CountdownEvent"
)

// PushStatus is the typed outcome of a push attempt.
type PushStatus string

const (
	PushSuccess     PushStatus = "Success"
	PushCooldown    PushStatus = "Cooldown"
	PushNoTargets   PushStatus = "NoTargets"
	PushInactive    PushStatus = "Inactive"
	PushNoCharacter PushStatus = "NoCharacter"
)

// Notification is the tagged union sent from the authority to observers.
// Only the fields relevant to the Type are populated; the rest marshal
// away under omitempty.
type Notification struct {
	Type Type `json:"type"`

	Message    string `json:"message,omitempty"`
	MinPlayers int    `json:"min_players,omitempty"`

	RoundID          int        `json:"round_id,omitempty"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	ParticipantCount int        `json:"participant_count,omitempty"`
	SeatCount        int        `json:"seat_count,omitempty"`
	AliveCount       int        `json:"alive_count,omitempty"`

	Key         string `json:"key,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	Position *roster.Vec3 `json:"position,omitempty"`

	Status PushStatus `json:"status,omitempty"`
	// Seconds: refreshed cooldown on Success, remaining cooldown on
	// Cooldown, penalty on NoTargets.
	Value float64 `json:"value,omitempty"`

	// Death-date countdown fields.
	Duration float64    `json:"duration,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Lobby builds the idle-phase notice shown while waiting for players.
func Lobby(message string, minPlayers int) Notification {
	return Notification{Type: TypeLobby, Message: message, MinPlayers: minPlayers}
}

func RoundStarting(startTime time.Time, participants int) Notification {
	return Notification{Type: TypeRoundStarting, StartTime: &startTime, ParticipantCount: participants}
}

func RoundStarted(roundID int, endTime time.Time, seatCount int) Notification {
	return Notification{Type: TypeRoundStarted, RoundID: roundID, EndTime: &endTime, SeatCount: seatCount}
}

func RoundTick(endTime time.Time, aliveCount int) Notification {
	return Notification{Type: TypeRoundTick, EndTime: &endTime, AliveCount: aliveCount}
}

func RoundEnded(roundID int) Notification {
	return Notification{Type: TypeRoundEnded, RoundID: roundID}
}

func Hazard(key, name, description string) Notification {
	return Notification{Type: TypeHazard, Key: key, Name: name, Description: description}
}

func SeatTrapped(pos roster.Vec3) Notification {
	return Notification{Type: TypeSeatTrapped, Position: &pos}
}

func PushActivated(actorName string) Notification {
	return Notification{Type: TypePushActivated, Name: actorName}
}

func PushFeedback(status PushStatus, value float64) Notification {
	return Notification{Type: TypePushFeedback, Status: status, Value: value}
}

func ParticipantEliminated(name string) Notification {
	return Notification{Type: TypeParticipantEliminated, Name: name}
}

func ParticipantLeft(name string) Notification {
	return Notification{Type: TypeParticipantLeft, Name: name}
}

// Winner carries the surviving participant's name, or "" for no winner.
func Winner(name string) Notification {
	return Notification{Type: TypeWinner, Name: name}
}

func CountdownStarted(name string, duration time.Duration, deadline time.Time) Notification {
	return Notification{Type: TypeCountdownStarted, Name: name, Duration: duration.Seconds(), Deadline: &deadline}
}

func CountdownReset(name string) Notification {
	return Notification{Type: TypeCountdownReset, Name: name}
}

func CountdownEvent(name, key, description string) Notification {
	return Notification{Type: TypeCountdownEvent, Name: name, Key: key, Description: description}
}
