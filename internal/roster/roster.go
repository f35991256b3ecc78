package roster

import (
	"time"

	"pollroom/pkg/types"
)

// Roster tracks registered participants and their per-poll answer state.
// It is not safe for concurrent use; the session lock owns it.
type Roster struct {
	participants map[string]*types.Participant // connID -> participant
	names        map[string]string             // folded name -> connID
	order        []string                      // join order for stable listings
}

// New creates an empty roster
func New() *Roster {
	return &Roster{
		participants: make(map[string]*types.Participant),
		names:        make(map[string]string),
	}
}

// Add registers a participant under connID. The name must already be
// normalized; uniqueness is checked case-insensitively.
func (r *Roster) Add(connID, name string, joinedAt time.Time) (types.Participant, error) {
	if _, exists := r.participants[connID]; exists {
		return types.Participant{}, types.NewError(types.KindValidation, "Already joined")
	}

	key := types.NameKey(name)
	if _, taken := r.names[key]; taken {
		return types.Participant{}, types.ErrNameConflict
	}

	p := &types.Participant{
		ID:       connID,
		Name:     name,
		JoinedAt: joinedAt,
	}
	r.participants[connID] = p
	r.names[key] = connID
	r.order = append(r.order, connID)

	return *p, nil
}

// Get returns a copy of the participant registered under connID
func (r *Roster) Get(connID string) (types.Participant, bool) {
	p, ok := r.participants[connID]
	if !ok {
		return types.Participant{}, false
	}
	return *p, true
}

// Remove deletes a participant and returns what was removed.
// Removing an unknown ID is a no-op.
func (r *Roster) Remove(connID string) (types.Participant, bool) {
	p, ok := r.participants[connID]
	if !ok {
		return types.Participant{}, false
	}

	delete(r.participants, connID)
	delete(r.names, types.NameKey(p.Name))
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return *p, true
}

// Len returns the number of registered participants
func (r *Roster) Len() int {
	return len(r.participants)
}

// IDs returns participant connection IDs in join order
func (r *Roster) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// List returns copies of all participants in join order
func (r *Roster) List() []types.Participant {
	list := make([]types.Participant, 0, len(r.order))
	for _, id := range r.order {
		list = append(list, *r.participants[id])
	}
	return list
}

// MarkAnswered records a participant's answer. The check and the mutation
// happen together so an answer can never be recorded twice.
func (r *Roster) MarkAnswered(connID string, option int) error {
	p, ok := r.participants[connID]
	if !ok {
		return types.ErrNotFound
	}
	if p.HasAnswered {
		return types.ErrAlreadyAnswered
	}

	selected := option
	p.HasAnswered = true
	p.SelectedOption = &selected
	return nil
}

// AnsweredCount returns how many participants answered the current poll
func (r *Roster) AnsweredCount() int {
	count := 0
	for _, p := range r.participants {
		if p.HasAnswered {
			count++
		}
	}
	return count
}

// AllAnswered reports whether every participant has answered.
// An empty roster has nobody left to wait for, so it reports true.
func (r *Roster) AllAnswered() bool {
	for _, p := range r.participants {
		if !p.HasAnswered {
			return false
		}
	}
	return true
}

// ResetAnswers clears every participant's answer state
func (r *Roster) ResetAnswers() {
	for _, p := range r.participants {
		p.HasAnswered = false
		p.SelectedOption = nil
	}
}
