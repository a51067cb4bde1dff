package ranked

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brawlbase/scrim-bot/internal/matchrec"
	"github.com/brawlbase/scrim-bot/internal/obslog"
	"github.com/brawlbase/scrim-bot/internal/player"
)

const casRetries = 8

// Manager coordinates ranked search sessions: open a search, claim it,
// collect both results and both evidence refs, settle stats exactly once.
type Manager struct {
	rdb       *redis.Client
	players   *player.Store
	rec       matchrec.Recorder
	searchTTL time.Duration
	seq       uint64
}

func NewManager(rdb *redis.Client, players *player.Store, rec matchrec.Recorder, searchTTL time.Duration) *Manager {
	if searchTTL <= 0 {
		searchTTL = 30 * time.Minute
	}
	return &Manager{rdb: rdb, players: players, rec: rec, searchTTL: searchTTL}
}

func matchKey(id string) string   { return "ranked:match:" + id }
func searcherKey(id int64) string { return fmt.Sprintf("ranked:bysearcher:%d", id) }
func idxOpen() string             { return "ranked:open" }

func (m *Manager) nextID() string {
	n := atomic.AddUint64(&m.seq, 1)
	return fmt.Sprintf("rm-%d-%d", time.Now().UnixNano(), n)
}

// Find opens a new searching session for the creator. A player has at most
// one live session; the searcher marker is the allocation token.
func (m *Manager) Find(ctx context.Context, creatorID int64, mode string) (*Match, error) {
	if !ValidMode(mode) {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	p, err := m.players.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	mt := &Match{
		ID:          m.nextID(),
		Mode:        mode,
		CreatorID:   p.ID,
		CreatorName: p.Username,
		Status:      StatusSearching,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(m.searchTTL),
	}

	ok, err := m.rdb.SetNX(ctx, searcherKey(creatorID), mt.ID, m.searchTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSearchInProgress
	}

	raw, err := json.Marshal(mt)
	if err != nil {
		return nil, err
	}
	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, matchKey(mt.ID), raw, 0)
	pipe.SAdd(ctx, idxOpen(), mt.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	obslog.L().Info("ranked_search_open", zap.String("match_id", mt.ID), zap.String("mode", mode), zap.Int64("creator", creatorID))
	return mt, nil
}

// Open lists searching sessions, newest first, optionally filtered by mode.
func (m *Manager) Open(ctx context.Context, mode string) ([]*Match, error) {
	ids, err := m.rdb.SMembers(ctx, idxOpen()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Match, 0, len(ids))
	for _, id := range ids {
		mt, gerr := m.Get(ctx, id)
		if gerr != nil {
			continue
		}
		if mt.Status != StatusSearching {
			continue
		}
		if mode != "" && mt.Mode != mode {
			continue
		}
		out = append(out, mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Match, error) {
	raw, err := m.rdb.Get(ctx, matchKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var mt Match
	if err := json.Unmarshal(raw, &mt); err != nil {
		return nil, err
	}
	return &mt, nil
}

// Active resolves the live session a player is part of, via the searcher
// marker written on open and on claim.
func (m *Manager) Active(ctx context.Context, playerID int64) (*Match, error) {
	id, err := m.rdb.Get(ctx, searcherKey(playerID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.Get(ctx, id)
}

// Claim moves a searching session to ready for the claimant. The transition
// is conditional on the session still being in searching; the loser of a
// race gets ErrNoLongerAvailable, never a silent no-op.
func (m *Manager) Claim(ctx context.Context, matchID string, claimantID int64) (*Match, error) {
	claimant, err := m.players.Get(ctx, claimantID)
	if err != nil {
		return nil, err
	}
	// A claimant with a live session of their own would orphan it.
	if _, err := m.Active(ctx, claimantID); err == nil {
		return nil, ErrSearchInProgress
	} else if err != ErrNotFound {
		return nil, err
	}

	key := matchKey(matchID)
	var out Match
	for i := 0; i < casRetries; i++ {
		err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := loadMatch(ctx, tx, key)
			if err != nil {
				return err
			}
			if cur == nil {
				return ErrNotFound
			}
			if cur.Status != StatusSearching {
				return ErrNoLongerAvailable
			}
			if cur.CreatorID == claimantID {
				return ErrSelfClaim
			}
			cur.OpponentID = claimant.ID
			cur.OpponentName = claimant.Username
			cur.Status = StatusReady
			cur.ExpiresAt = time.Now().Add(m.searchTTL)

			raw, err := json.Marshal(cur)
			if err != nil {
				return err
			}
			// Both markers keep a fresh expiry so an abandoned match
			// frees its participants even without an explicit cancel.
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, raw, 0)
			pipe.SRem(ctx, idxOpen(), cur.ID)
			pipe.Set(ctx, searcherKey(claimantID), cur.ID, m.searchTTL)
			pipe.Expire(ctx, searcherKey(cur.CreatorID), m.searchTTL)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			out = *cur
			return nil
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		obslog.L().Info("ranked_claimed", zap.String("match_id", out.ID), zap.Int64("claimant", claimantID))
		return &out, nil
	}
	// CAS exhausted means someone else kept winning the key.
	return nil, ErrNoLongerAvailable
}

// Report records a participant's own outcome. Replace semantics: a
// participant may revise their report until settlement.
func (m *Manager) Report(ctx context.Context, matchID string, playerID int64, outcome string) (*Match, error) {
	if outcome != ResultWin && outcome != ResultLose {
		return nil, ErrInvalidResult
	}
	return m.update(ctx, matchID, func(cur *Match) error {
		if cur.Status != StatusReady {
			return ErrNotReady
		}
		if !cur.IsParticipant(playerID) {
			return ErrNotParticipant
		}
		if cur.Reports == nil {
			cur.Reports = make(map[int64]string, 2)
		}
		cur.Reports[playerID] = outcome
		return nil
	})
}

// SubmitEvidence attaches a participant's evidence ref. When the last
// missing piece arrives the same conditional write flips the session to
// finished, so settlement happens exactly once even under racing uploads.
func (m *Manager) SubmitEvidence(ctx context.Context, matchID string, playerID int64, photoRef string) (*Match, error) {
	var settled bool
	mt, err := m.update(ctx, matchID, func(cur *Match) error {
		settled = false
		if cur.Status != StatusReady {
			return ErrNotReady
		}
		if !cur.IsParticipant(playerID) {
			return ErrNotParticipant
		}
		if cur.Evidence == nil {
			cur.Evidence = make(map[int64]string, 2)
		}
		cur.Evidence[playerID] = photoRef
		if cur.settleable() {
			cur.Status = StatusFinished
			cur.FinishedAt = time.Now()
			cur.WinnerID = winnerOf(cur)
			settled = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settled {
		m.settle(ctx, mt)
	}
	return mt, nil
}

// settle applies the one-shot side effects of a finished match: stat deltas
// for both participants and the durable record. Only the caller whose CAS
// performed the ready->finished flip gets here.
func (m *Manager) settle(ctx context.Context, mt *Match) {
	for _, id := range []int64{mt.CreatorID, mt.OpponentID} {
		d := player.StatDelta{MatchesPlayed: 1}
		switch mt.Reports[id] {
		case ResultWin:
			d.Wins = 1
		case ResultLose:
			d.Defeats = 1
		}
		if _, err := m.players.ApplyStatDelta(ctx, id, d); err != nil {
			obslog.L().Warn("ranked_settle_stats", zap.String("match_id", mt.ID), zap.Int64("player", id), zap.Error(err))
		}
	}
	m.rdb.Del(ctx, searcherKey(mt.CreatorID), searcherKey(mt.OpponentID))

	if m.rec != nil {
		err := m.rec.SaveRanked(ctx, &matchrec.RankedRecord{
			MatchID:    mt.ID,
			Mode:       mt.Mode,
			PlayerA:    mt.CreatorID,
			PlayerAStr: mt.CreatorName,
			PlayerB:    mt.OpponentID,
			PlayerBStr: mt.OpponentName,
			WinnerID:   mt.WinnerID,
			Evidence:   []string{mt.Evidence[mt.CreatorID], mt.Evidence[mt.OpponentID]},
			StartedAt:  mt.CreatedAt,
			EndedAt:    mt.FinishedAt,
		})
		if err != nil {
			obslog.L().Warn("ranked_settle_record", zap.String("match_id", mt.ID), zap.Error(err))
		}
	}
	obslog.L().Info("ranked_settled", zap.String("match_id", mt.ID), zap.Int64("winner", mt.WinnerID))
}

// Cancel withdraws the caller's live session. An unclaimed search is simply
// closed; a claimed but unplayed match counts as abandoned, and either
// participant may walk away and free them both.
func (m *Manager) Cancel(ctx context.Context, callerID int64) error {
	mt, err := m.Active(ctx, callerID)
	if err != nil {
		return err
	}
	out, err := m.update(ctx, mt.ID, func(cur *Match) error {
		if cur.Status != StatusSearching && cur.Status != StatusReady {
			return ErrNoLongerAvailable
		}
		if !cur.IsParticipant(callerID) {
			return ErrNotParticipant
		}
		cur.Status = StatusExpired
		return nil
	})
	if err != nil {
		return err
	}
	pipe := m.rdb.TxPipeline()
	pipe.SRem(ctx, idxOpen(), out.ID)
	pipe.Del(ctx, searcherKey(out.CreatorID))
	if out.OpponentID != 0 {
		pipe.Del(ctx, searcherKey(out.OpponentID))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// update is the shared CAS loop over a match document.
func (m *Manager) update(ctx context.Context, matchID string, mutate func(*Match) error) (*Match, error) {
	key := matchKey(matchID)
	var out Match
	for i := 0; i < casRetries; i++ {
		err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := loadMatch(ctx, tx, key)
			if err != nil {
				return err
			}
			if cur == nil {
				return ErrNotFound
			}
			if err := mutate(cur); err != nil {
				return err
			}
			raw, err := json.Marshal(cur)
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, raw, 0)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			out = *cur
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

func loadMatch(ctx context.Context, tx *redis.Tx, key string) (*Match, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var mt Match
	if err := json.Unmarshal(raw, &mt); err != nil {
		return nil, err
	}
	return &mt, nil
}

// winnerOf resolves the winner from the two self-reports. Conflicting
// reports (both win, or both lose) leave the winner unset; stats then fall
// back to each participant's own claim.
func winnerOf(mt *Match) int64 {
	a, b := mt.CreatorID, mt.OpponentID
	if mt.Reports[a] == ResultWin && mt.Reports[b] == ResultLose {
		return a
	}
	if mt.Reports[b] == ResultWin && mt.Reports[a] == ResultLose {
		return b
	}
	return 0
}

// ValidMode reports whether mode is one of the playable formats.
func ValidMode(mode string) bool {
	switch mode {
	case "1v1", "2v2", "3v3":
		return true
	}
	return false
}
