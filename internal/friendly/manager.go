package friendly

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brawlbase/scrim-bot/internal/obslog"
	"github.com/brawlbase/scrim-bot/internal/player"
)

const casRetries = 8

// Manager drives the friendly-match room workflow. Returned player slices
// are the recipients the caller should notify; delivery is the caller's
// best-effort concern and never feeds back into session state.
type Manager struct {
	rdb        *redis.Client
	players    *player.Store
	sessionTTL time.Duration
}

func NewManager(rdb *redis.Client, players *player.Store, sessionTTL time.Duration) *Manager {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Manager{rdb: rdb, players: players, sessionTTL: sessionTTL}
}

func sessionKey(creatorID int64) string { return fmt.Sprintf("friendly:%d", creatorID) }

// Create opens a room in proposing state, with the creator pre-joined.
func (m *Manager) Create(ctx context.Context, creatorID int64, mode string) (*Session, error) {
	capacity := CapacityFor(mode)
	if capacity == 0 {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	p, err := m.players.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	s := &Session{
		CreatorID:   p.ID,
		CreatorName: p.Username,
		Mode:        mode,
		Capacity:    capacity,
		JoinedIDs:   []int64{p.ID},
		Status:      StatusProposing,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(m.sessionTTL),
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	ok, err := m.rdb.SetNX(ctx, sessionKey(creatorID), raw, m.sessionTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionExists
	}
	obslog.L().Info("friendly_open", zap.Int64("creator", creatorID), zap.String("mode", mode))
	return s, nil
}

// ChooseInviteMode resolves the proposing step. For "all" the room skips
// straight to quorum collection and every other registered player is a
// notification recipient; for "manual" the creator is prompted for handles.
func (m *Manager) ChooseInviteMode(ctx context.Context, creatorID int64, inviteMode string) (*Session, []*player.Player, error) {
	if inviteMode != InviteManual && inviteMode != InviteAll {
		return nil, nil, fmt.Errorf("unknown invite mode %q", inviteMode)
	}
	s, err := m.update(ctx, creatorID, func(cur *Session) error {
		if cur.Status != StatusProposing {
			return ErrBadState
		}
		cur.InviteMode = inviteMode
		if inviteMode == InviteAll {
			cur.Status = StatusWaitingForQuorum
		} else {
			cur.Status = StatusCollectingInvites
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if inviteMode != InviteAll {
		return s, nil, nil
	}
	all, err := m.players.All(ctx)
	if err != nil {
		return nil, nil, err
	}
	recipients := make([]*player.Player, 0, len(all))
	for _, p := range all {
		if p.ID != creatorID {
			recipients = append(recipients, p)
		}
	}
	return s, recipients, nil
}

// InviteManual resolves the creator's handle list. Validation is
// all-or-nothing: one unknown handle rejects the whole list and the session
// stays in collecting_invites for a re-prompt.
func (m *Manager) InviteManual(ctx context.Context, creatorID int64, handles []string) (*Session, []*player.Player, error) {
	cur, err := m.Get(ctx, creatorID)
	if err != nil {
		return nil, nil, err
	}
	if cur.Status != StatusCollectingInvites {
		return nil, nil, ErrBadState
	}
	if len(handles) == 0 || len(handles) > cur.Capacity-1 {
		return nil, nil, ErrTooManyHandles
	}

	invitees := make([]*player.Player, 0, len(handles))
	ids := make([]int64, 0, len(handles))
	for _, h := range handles {
		p, err := m.players.ByName(ctx, h)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
		}
		if p.ID == creatorID {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
		}
		invitees = append(invitees, p)
		ids = append(ids, p.ID)
	}

	s, err := m.update(ctx, creatorID, func(cur *Session) error {
		if cur.Status != StatusCollectingInvites {
			return ErrBadState
		}
		cur.InvitedIDs = ids
		cur.Status = StatusWaitingForQuorum
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return s, invitees, nil
}

// Join adds a player to the room. Set-add-once semantics: a second join
// from the same player is rejected without touching state, and joining a
// full room loses deterministically. The returned quorum flag tells the
// caller the room just filled.
func (m *Manager) Join(ctx context.Context, creatorID, joinerID int64) (s *Session, quorum bool, err error) {
	if _, err := m.players.Get(ctx, joinerID); err != nil {
		return nil, false, err
	}
	s, err = m.update(ctx, creatorID, func(cur *Session) error {
		quorum = false
		if cur.Status != StatusWaitingForQuorum {
			return ErrBadState
		}
		if cur.HasJoined(joinerID) {
			return ErrAlreadyJoined
		}
		if cur.Full() {
			return ErrRoomFull
		}
		if cur.InviteMode == InviteManual && !cur.IsInvited(joinerID) {
			return ErrNotInvited
		}
		cur.JoinedIDs = append(cur.JoinedIDs, joinerID)
		if cur.Full() {
			cur.Status = StatusWaitingVoiceLink
			quorum = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if quorum {
		obslog.L().Info("friendly_quorum", zap.Int64("creator", creatorID), zap.Int("joined", len(s.JoinedIDs)))
	}
	return s, quorum, nil
}

// SubmitLink consumes the creator's next message as the pending link: the
// voice room first, then the game room. Closing the room deletes the
// session key, freeing the creator for a new one.
func (m *Manager) SubmitLink(ctx context.Context, creatorID int64, link string) (*Session, error) {
	s, err := m.update(ctx, creatorID, func(cur *Session) error {
		switch cur.Status {
		case StatusWaitingVoiceLink:
			cur.VoiceLink = link
			cur.Status = StatusWaitingGameLink
		case StatusWaitingGameLink:
			cur.GameLink = link
			cur.Status = StatusClosed
		default:
			return ErrBadState
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.Status == StatusClosed {
		if err := m.rdb.Del(ctx, sessionKey(creatorID)).Err(); err != nil {
			obslog.L().Warn("friendly_close", zap.Int64("creator", creatorID), zap.Error(err))
		}
	}
	return s, nil
}

func (m *Manager) Get(ctx context.Context, creatorID int64) (*Session, error) {
	raw, err := m.rdb.Get(ctx, sessionKey(creatorID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Cancel discards the creator's room without side effects.
func (m *Manager) Cancel(ctx context.Context, creatorID int64) error {
	n, err := m.rdb.Del(ctx, sessionKey(creatorID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Manager) update(ctx context.Context, creatorID int64, mutate func(*Session) error) (*Session, error) {
	key := sessionKey(creatorID)
	var out Session
	for i := 0; i < casRetries; i++ {
		err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			var cur Session
			if err := json.Unmarshal(raw, &cur); err != nil {
				return err
			}
			if err := mutate(&cur); err != nil {
				return err
			}
			next, err := json.Marshal(&cur)
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, next, redis.KeepTTL)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			out = cur
			return nil
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &out, nil
	}
	return nil, redis.TxFailedErr
}
