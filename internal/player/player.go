package player

import (
	"errors"
	"time"
)

const (
	// MaxTrophies is the realistic ladder ceiling; writes beyond it are
	// rejected up front and deltas are clamped to it.
	MaxTrophies = 50000
)

var (
	ErrNotFound     = errors.New("player not found")
	ErrTrophyRange  = errors.New("trophies out of range")
	ErrInvalidInput = errors.New("invalid player input")
)

// Player is one registered community member. TeamID is a weak reference
// maintained by the team registry; empty means no team.
type Player struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Trophies    int    `json:"trophies"`
	MainBrawler string `json:"main_brawler,omitempty"`
	Country     string `json:"country,omitempty"`

	Wins          int `json:"wins"`
	Defeats       int `json:"defeats"`
	MatchesPlayed int `json:"matches_played"`

	TeamID   string `json:"team_id,omitempty"`
	PhotoRef string `json:"photo_ref,omitempty"`

	RegisteredAt time.Time `json:"registered_at"`
	LastActive   time.Time `json:"last_active"`
}

// StatDelta is one atomic adjustment to a player's counters. Trophies are
// clamped to [0, MaxTrophies]; the other counters never go below zero.
type StatDelta struct {
	Trophies      int
	Wins          int
	Defeats       int
	MatchesPlayed int
}

func clampTrophies(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxTrophies {
		return MaxTrophies
	}
	return v
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
