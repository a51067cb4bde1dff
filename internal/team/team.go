package team

import (
	"errors"
	"time"
)

const (
	MinMembers = 2
	MaxMembers = 5
)

var (
	ErrNotFound     = errors.New("team not found")
	ErrNameTaken    = errors.New("team name already taken")
	ErrMemberTaken  = errors.New("player already belongs to a team")
	ErrRosterSize   = errors.New("team must have between 2 and 5 members")
	ErrDuplicateID  = errors.New("duplicate member in roster")
	ErrInvalidInput = errors.New("invalid team input")
)

// Team holds the roster in creation order. Name lookups are
// case-insensitive; membership is mirrored onto each player document.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MemberIDs []int64   `json:"member_ids"`
	CreatorID int64     `json:"creator_id"`
	LogoRef   string    `json:"logo_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *Team) HasMember(id int64) bool {
	for _, m := range t.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}
