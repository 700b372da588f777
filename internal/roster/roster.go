package roster

import "time"

// ID identifies one participant for the lifetime of their connection.
type ID string

// Vec3 is an arena-space position. The authority never simulates physics;
// positions are reported by the presentation layer and used only for
// range checks and effect coordinates.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Participant is one player's authoritative state. It is owned by the
// session loop; nothing outside the loop (or the countdown supervisors,
// which re-validate via tokens) mutates it.
type Participant struct {
	ID   ID
	Name string

	Alive        bool
	HasCharacter bool
	Pos          Vec3

	// cooldownEndsAt for the push action; zero means never pushed.
	CooldownUntil time.Time

	// Replicated scalar read by the presentation layer (death-date mode).
	DeathDeadline *time.Time
}

// Roster is the explicit participant registry. Insertion happens on join,
// removal on leave; iteration order is join order.
type Roster struct {
	order []ID
	byID  map[ID]*Participant
}

func New() *Roster {
	return &Roster{byID: make(map[ID]*Participant)}
}

// Add inserts a participant. An existing entry with the same ID keeps its
// state; only the name is refreshed.
func (r *Roster) Add(id ID, name string) *Participant {
	if p, ok := r.byID[id]; ok {
		p.Name = name
		return p
	}
	p := &Participant{ID: id, Name: name, HasCharacter: true}
	r.byID[id] = p
	r.order = append(r.order, id)
	return p
}

func (r *Roster) Remove(id ID) {
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Roster) Get(id ID) (*Participant, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r *Roster) Len() int { return len(r.order) }

// All returns participants in join order.
func (r *Roster) All() []*Participant {
	out := make([]*Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Alive returns the alive participants in join order.
func (r *Roster) Alive() []*Participant {
	out := make([]*Participant, 0, len(r.order))
	for _, id := range r.order {
		if p := r.byID[id]; p.Alive {
			out = append(out, p)
		}
	}
	return out
}

func (r *Roster) AliveCount() int {
	n := 0
	for _, p := range r.byID {
		if p.Alive {
			n++
		}
	}
	return n
}
