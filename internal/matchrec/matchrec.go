package matchrec

import (
	"context"
	"time"
)

// RankedRecord is the durable row written once a ranked 1v1 settles.
type RankedRecord struct {
	MatchID    string
	Mode       string
	PlayerA    int64
	PlayerAStr string
	PlayerB    int64
	PlayerBStr string
	WinnerID   int64
	Evidence   []string
	StartedAt  time.Time
	EndedAt    time.Time
}

// ScrimRecord is the durable row written once a team scrim settles.
type ScrimRecord struct {
	ScrimID    string
	TeamA      string
	TeamAName  string
	TeamB      string
	TeamBName  string
	ScoreA     int
	ScoreB     int
	RoomLinks  []string
	Evidence   []string
	PlayedAt   time.Time
	RecordedAt time.Time
}

// Recorder is what the session managers need from the durable store. A nil
// implementation is valid and turns recording off.
type Recorder interface {
	SaveRanked(ctx context.Context, rec *RankedRecord) error
	SaveScrim(ctx context.Context, rec *ScrimRecord) error
}
