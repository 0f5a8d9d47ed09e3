package domain

// Participant is the public view of a user inside a room.
// No transport or lifecycle logic here.
type Participant struct {
	ID        UserID `json:"id"`
	FirstName string `json:"firstName"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(user *User) Participant {
	return Participant{ID: user.ID, FirstName: user.FirstName}
}
