package player

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brawlbase/scrim-bot/internal/obslog"
	"go.uber.org/zap"
)

const casRetries = 8

// Store is the player directory over Redis. Every mutation is a
// single-document atomic operation; counter updates go through a
// WATCH-guarded compare-and-swap so concurrent settlements never lose
// increments.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func playerKey(id int64) string  { return "player:" + strconv.FormatInt(id, 10) }
func nameKey(name string) string { return "players:name:" + strings.ToLower(strings.TrimSpace(name)) }
func idxAll() string             { return "players:all" }

// Upsert creates or refreshes the profile. Counters survive re-registration;
// identity fields and trophies are replaced. Trophy values outside
// [0, MaxTrophies] are rejected before anything is written.
func (s *Store) Upsert(ctx context.Context, p Player) (*Player, error) {
	if p.ID <= 0 || strings.TrimSpace(p.Username) == "" {
		return nil, ErrInvalidInput
	}
	if p.Trophies < 0 || p.Trophies > MaxTrophies {
		return nil, ErrTrophyRange
	}
	p.Username = strings.TrimSpace(p.Username)

	now := time.Now()
	key := playerKey(p.ID)
	var out Player
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := loadPlayer(ctx, tx, key)
		if err != nil {
			return err
		}
		next := p
		next.LastActive = now
		if cur == nil {
			next.RegisteredAt = now
		} else {
			next.RegisteredAt = cur.RegisteredAt
			next.Wins = cur.Wins
			next.Defeats = cur.Defeats
			next.MatchesPlayed = cur.MatchesPlayed
			next.TeamID = cur.TeamID
			if next.PhotoRef == "" {
				next.PhotoRef = cur.PhotoRef
			}
			if next.Country == "" {
				next.Country = cur.Country
			}
		}

		raw, err := json.Marshal(&next)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, raw, 0)
		pipe.SAdd(ctx, idxAll(), next.ID)
		if cur != nil && !strings.EqualFold(cur.Username, next.Username) {
			pipe.Del(ctx, nameKey(cur.Username))
		}
		pipe.Set(ctx, nameKey(next.Username), next.ID, 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		out = next
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("player_upsert", zap.Int64("player_id", out.ID), zap.Int("trophies", out.Trophies))
	return &out, nil
}

// Get returns the player or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Player, error) {
	raw, err := s.rdb.Get(ctx, playerKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p Player
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ByName resolves a display name, case-insensitive exact first, then unique
// prefix. Ambiguous prefixes resolve to nothing.
func (s *Store) ByName(ctx context.Context, name string) (*Player, error) {
	name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "@"))
	if name == "" {
		return nil, ErrNotFound
	}
	idStr, err := s.rdb.Get(ctx, nameKey(name)).Result()
	if err == nil {
		id, perr := strconv.ParseInt(idStr, 10, 64)
		if perr == nil {
			return s.Get(ctx, id)
		}
	} else if err != redis.Nil {
		return nil, err
	}

	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(name)
	var hit *Player
	for _, p := range all {
		if strings.HasPrefix(strings.ToLower(p.Username), lower) {
			if hit != nil {
				return nil, ErrNotFound
			}
			hit = p
		}
	}
	if hit == nil {
		return nil, ErrNotFound
	}
	return hit, nil
}

// All loads every registered player, newest registration first.
func (s *Store) All(ctx context.Context) ([]*Player, error) {
	ids, err := s.rdb.SMembers(ctx, idxAll()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Player, 0, len(ids))
	for _, idStr := range ids {
		id, perr := strconv.ParseInt(idStr, 10, 64)
		if perr != nil {
			continue
		}
		p, gerr := s.Get(ctx, id)
		if gerr != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.After(out[j].RegisteredAt) })
	return out, nil
}

// Leaderboard lists players by trophies descending. Zero-trophy players are
// excluded; minMatches additionally filters out fresh profiles when > 0.
func (s *Store) Leaderboard(ctx context.Context, limit, minMatches int) ([]*Player, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	ranked := all[:0]
	for _, p := range all {
		if p.Trophies <= 0 {
			continue
		}
		if minMatches > 0 && p.MatchesPlayed < minMatches {
			continue
		}
		ranked = append(ranked, p)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Trophies > ranked[j].Trophies })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// FindOpponent picks the most recently active player within the trophy
// tolerance window, excluding the searcher.
func (s *Store) FindOpponent(ctx context.Context, selfID int64, trophies, window int) (*Player, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var best *Player
	for _, p := range all {
		if p.ID == selfID {
			continue
		}
		if p.Trophies < trophies-window || p.Trophies > trophies+window {
			continue
		}
		if best == nil || p.LastActive.After(best.LastActive) {
			best = p
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// ApplyStatDelta adjusts counters atomically with clamping. The write is a
// CAS on the player document; on contention it retries rather than losing
// the increment.
func (s *Store) ApplyStatDelta(ctx context.Context, id int64, d StatDelta) (*Player, error) {
	key := playerKey(id)
	var out Player
	for i := 0; i < casRetries; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := loadPlayer(ctx, tx, key)
			if err != nil {
				return err
			}
			if cur == nil {
				return ErrNotFound
			}
			cur.Trophies = clampTrophies(cur.Trophies + d.Trophies)
			cur.Wins = floorZero(cur.Wins + d.Wins)
			cur.Defeats = floorZero(cur.Defeats + d.Defeats)
			cur.MatchesPlayed = floorZero(cur.MatchesPlayed + d.MatchesPlayed)
			cur.LastActive = time.Now()

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

// SetTeam writes the weak team reference; empty clears it. Used only by the
// team registry so membership stays consistent on both sides.
func (s *Store) SetTeam(ctx context.Context, id int64, teamID string) error {
	key := playerKey(id)
	for i := 0; i < casRetries; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := loadPlayer(ctx, tx, key)
			if err != nil {
				return err
			}
			if cur == nil {
				return ErrNotFound
			}
			cur.TeamID = teamID
			raw, err := json.Marshal(cur)
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, raw, 0)
			_, err = pipe.Exec(ctx)
			return err
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

// Delete removes a player and its indexes. Used by the admin ban command.
func (s *Store) Delete(ctx context.Context, id int64) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, playerKey(id))
	pipe.Del(ctx, nameKey(p.Username))
	pipe.SRem(ctx, idxAll(), id)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, idxAll()).Result()
}

func loadPlayer(ctx context.Context, tx *redis.Tx, key string) (*Player, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Player
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
