package ranked

import (
	"errors"
	"time"
)

const (
	StatusSearching = "searching"
	StatusReady     = "ready"
	StatusFinished  = "finished"
	StatusExpired   = "expired"
)

const (
	ResultWin  = "win"
	ResultLose = "lose"
)

var (
	ErrSearchInProgress  = errors.New("search already in progress")
	ErrNoLongerAvailable = errors.New("no longer available")
	ErrNotFound          = errors.New("match not found")
	ErrNotParticipant    = errors.New("not a participant of this match")
	ErrSelfClaim         = errors.New("cannot claim your own search")
	ErrInvalidResult     = errors.New("result must be win or lose")
	ErrNotReady          = errors.New("match is not in a reportable state")
)

// Match is a ranked 1v1/2v2/3v3 search-and-settle session. Reports and
// Evidence are keyed by participant id; settlement requires both reports and
// both evidence refs, and the flip to finished happens exactly once.
type Match struct {
	ID           string           `json:"id"`
	Mode         string           `json:"mode"`
	CreatorID    int64            `json:"creator_id"`
	CreatorName  string           `json:"creator_name"`
	OpponentID   int64            `json:"opponent_id,omitempty"`
	OpponentName string           `json:"opponent_name,omitempty"`
	Status       string           `json:"status"`
	Reports      map[int64]string `json:"reports,omitempty"`
	Evidence     map[int64]string `json:"evidence,omitempty"`
	WinnerID     int64            `json:"winner_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	ExpiresAt    time.Time        `json:"expires_at"`
	FinishedAt   time.Time        `json:"finished_at,omitempty"`
}

func (m *Match) IsParticipant(id int64) bool {
	return id == m.CreatorID || (m.OpponentID != 0 && id == m.OpponentID)
}

// settleable reports whether both participants have reported and both have
// attached evidence.
func (m *Match) settleable() bool {
	if m.OpponentID == 0 {
		return false
	}
	for _, id := range []int64{m.CreatorID, m.OpponentID} {
		if _, ok := m.Reports[id]; !ok {
			return false
		}
		if _, ok := m.Evidence[id]; !ok {
			return false
		}
	}
	return true
}
