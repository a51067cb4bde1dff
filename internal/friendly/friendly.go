package friendly

import (
	"errors"
	"time"
)

const (
	StatusProposing         = "proposing"
	StatusCollectingInvites = "collecting_invites"
	StatusWaitingForQuorum  = "waiting_for_quorum"
	StatusWaitingVoiceLink  = "waiting_voice_link"
	StatusWaitingGameLink   = "waiting_game_link"
	StatusClosed            = "closed"
)

const (
	InviteManual = "manual"
	InviteAll    = "all"
)

var (
	ErrNotFound       = errors.New("no friendly session")
	ErrSessionExists  = errors.New("friendly session already open")
	ErrAlreadyJoined  = errors.New("already joined")
	ErrRoomFull       = errors.New("room is full")
	ErrNotInvited     = errors.New("not invited to this room")
	ErrBadState       = errors.New("action not valid in current state")
	ErrUnknownHandle  = errors.New("unknown player handle")
	ErrTooManyHandles = errors.New("too many handles for this mode")
)

// Session is one friendly-match room being assembled. It is keyed by its
// creator: each player runs at most one room at a time.
type Session struct {
	CreatorID   int64     `json:"creator_id"`
	CreatorName string    `json:"creator_name"`
	Mode        string    `json:"mode"`
	Capacity    int       `json:"capacity"`
	InviteMode  string    `json:"invite_mode,omitempty"`
	InvitedIDs  []int64   `json:"invited_ids,omitempty"`
	JoinedIDs   []int64   `json:"joined_ids"`
	Status      string    `json:"status"`
	VoiceLink   string    `json:"voice_link,omitempty"`
	GameLink    string    `json:"game_link,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Session) HasJoined(id int64) bool {
	for _, j := range s.JoinedIDs {
		if j == id {
			return true
		}
	}
	return false
}

func (s *Session) IsInvited(id int64) bool {
	for _, j := range s.InvitedIDs {
		if j == id {
			return true
		}
	}
	return false
}

func (s *Session) Full() bool { return len(s.JoinedIDs) >= s.Capacity }

// CapacityFor maps a game format to its room size.
func CapacityFor(mode string) int {
	switch mode {
	case "1v1":
		return 2
	case "2v2":
		return 4
	case "3v3":
		return 6
	}
	return 0
}
