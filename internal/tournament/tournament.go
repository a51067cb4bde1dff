package tournament

import (
	"errors"
	"time"
)

const (
	MinTeams = 2
	MaxTeams = 128
)

const (
	StatusUpcoming     = "upcoming"
	StatusRegistration = "registration"
	StatusOngoing      = "ongoing"
	StatusCompleted    = "completed"
	StatusCancelled    = "cancelled"
)

const (
	BracketSingleElimination = "single_elimination"
	BracketGroupStage        = "group_stage"
)

var (
	ErrNotFound       = errors.New("tournament not found")
	ErrInvalidInput   = errors.New("invalid tournament input")
	ErrBadMode        = errors.New("mode must be 1v1, 2v2 or 3v3")
	ErrBadBracket     = errors.New("bracket must be single_elimination or group_stage")
	ErrCapacityBounds = errors.New("capacity out of bounds")
	ErrNotRegistering = errors.New("registration is not open")
	ErrFull           = errors.New("tournament is at capacity")
	ErrAlreadyEntered = errors.New("team already registered")
	ErrNotEnoughTeams = errors.New("not enough registered teams")
	ErrBadTransition  = errors.New("status can only move forward")
)

// Entry is one registered team with its bracket seed.
type Entry struct {
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
	Seed     int    `json:"seed"`
}

// Pairing is one slot in the bracket. An empty TeamB is a bye.
type Pairing struct {
	TeamA    string `json:"team_a,omitempty"`
	TeamB    string `json:"team_b,omitempty"`
	WinnerID string `json:"winner_id,omitempty"`
}

// Round is one bracket round (or one group in a group stage).
type Round struct {
	Label    string    `json:"label"`
	Pairings []Pairing `json:"pairings"`
}

type Tournament struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Mode        string    `json:"mode"`
	BracketType string    `json:"bracket_type"`
	Capacity    int       `json:"capacity"`
	Entries     []Entry   `json:"entries,omitempty"`
	Status      string    `json:"status"`
	Rounds      []Round   `json:"rounds,omitempty"`
	CreatorID   int64     `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
}

func (t *Tournament) HasEntry(teamID string) bool {
	for _, e := range t.Entries {
		if e.TeamID == teamID {
			return true
		}
	}
	return false
}

func ValidMode(mode string) bool {
	switch mode {
	case "1v1", "2v2", "3v3":
		return true
	}
	return false
}

func ValidBracket(b string) bool {
	return b == BracketSingleElimination || b == BracketGroupStage
}
