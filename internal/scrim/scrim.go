package scrim

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	StatusRequested          = "requested"
	StatusConfirming         = "confirming"
	StatusScheduled          = "scheduled"
	StatusAwaitingLinks      = "awaiting_links"
	StatusInProgress         = "in_progress"
	StatusAwaitingScore      = "awaiting_score"
	StatusCollectingEvidence = "collecting_evidence"
	StatusSettled            = "settled"
	StatusCancelled          = "cancelled"
)

var (
	ErrNotFound     = errors.New("scrim not found")
	ErrNotMember    = errors.New("not a member of either roster")
	ErrBadState     = errors.New("action not valid in current state")
	ErrBadClock     = errors.New("time must look like HH:MM")
	ErrBadScore     = errors.New("score must look like A-B")
	ErrSelfOpponent = errors.New("a team cannot scrim itself")
)

// Session is one scrim negotiation between two teams. Rosters are
// snapshotted at request time so later team edits cannot shrink the
// confirmation quorum out from under a running negotiation.
type Session struct {
	ID            string    `json:"id"`
	CreatorID     int64     `json:"creator_id"`
	TeamAID       string    `json:"team_a_id"`
	TeamAName     string    `json:"team_a_name"`
	TeamBID       string    `json:"team_b_id"`
	TeamBName     string    `json:"team_b_name"`
	RosterA       []int64   `json:"roster_a"`
	RosterB       []int64   `json:"roster_b"`
	ScheduledAt   time.Time `json:"scheduled_at,omitempty"`
	ConfirmedIDs  []int64   `json:"confirmed_ids,omitempty"`
	Status        string    `json:"status"`
	GameroomLink  string    `json:"gameroom_link,omitempty"`
	SpectatorLink string    `json:"spectator_link,omitempty"`
	ScoreA        int       `json:"score_a"`
	ScoreB        int       `json:"score_b"`
	ReporterID    int64     `json:"reporter_id,omitempty"`
	Evidence      []string  `json:"evidence,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	SettledAt     time.Time `json:"settled_at,omitempty"`
}

// RosterUnion is the full confirmation quorum: every member of both teams.
func (s *Session) RosterUnion() []int64 {
	out := make([]int64, 0, len(s.RosterA)+len(s.RosterB))
	out = append(out, s.RosterA...)
	out = append(out, s.RosterB...)
	return out
}

func (s *Session) InRoster(id int64) bool {
	for _, m := range s.RosterUnion() {
		if m == id {
			return true
		}
	}
	return false
}

func (s *Session) HasConfirmed(id int64) bool {
	for _, m := range s.ConfirmedIDs {
		if m == id {
			return true
		}
	}
	return false
}

// AllConfirmed reports whether the confirmed set covers the roster union.
func (s *Session) AllConfirmed() bool {
	for _, m := range s.RosterUnion() {
		if !s.HasConfirmed(m) {
			return false
		}
	}
	return true
}

// Winner returns the winning roster (1 for A, 2 for B, 0 for a tie).
func (s *Session) Winner() int {
	switch {
	case s.ScoreA > s.ScoreB:
		return 1
	case s.ScoreB > s.ScoreA:
		return 2
	}
	return 0
}

// ParseClock reads a local wall-clock "HH:MM". A time already behind now is
// taken to mean the next calendar day, never the past.
func ParseClock(input string, now time.Time) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(input), ":")
	if len(parts) != 2 {
		return time.Time{}, ErrBadClock
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return time.Time{}, ErrBadClock
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return time.Time{}, ErrBadClock
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

// ParseScore reads "A-B". Malformed input is an error so the caller can
// re-prompt; it never silently scores 0-0.
func ParseScore(input string) (a, b int, err error) {
	parts := strings.Split(strings.TrimSpace(input), "-")
	if len(parts) != 2 {
		return 0, 0, ErrBadScore
	}
	a, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || a < 0 {
		return 0, 0, ErrBadScore
	}
	b, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || b < 0 {
		return 0, 0, ErrBadScore
	}
	return a, b, nil
}

func scrimKey(id string) string { return "scrim:" + id }
func idxActive() string         { return "scrims:active" }

func fmtID(nano int64, seq uint64) string { return fmt.Sprintf("sc-%d-%d", nano, seq) }
