package tournament

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brawlbase/scrim-bot/internal/obslog"
	"github.com/brawlbase/scrim-bot/internal/team"
)

const casRetries = 8

type Store struct {
	rdb   *redis.Client
	teams *team.Store
}

func NewStore(rdb *redis.Client, teams *team.Store) *Store {
	return &Store{rdb: rdb, teams: teams}
}

func tournamentKey(id string) string { return "tournament:" + id }
func idxAll() string                 { return "tournaments:all" }

// Create validates the mode and bracket enums and the capacity bound, and
// opens the tournament in upcoming state.
func (s *Store) Create(ctx context.Context, name, mode, bracketType string, capacity int, creatorID int64) (*Tournament, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	if !ValidMode(mode) {
		return nil, ErrBadMode
	}
	if !ValidBracket(bracketType) {
		return nil, ErrBadBracket
	}
	if capacity < MinTeams || capacity > MaxTeams {
		return nil, ErrCapacityBounds
	}

	t := &Tournament{
		ID:          uuid.NewString(),
		Name:        name,
		Mode:        mode,
		BracketType: bracketType,
		Capacity:    capacity,
		Status:      StatusUpcoming,
		CreatorID:   creatorID,
		CreatedAt:   time.Now(),
	}
	if err := s.save(ctx, t); err != nil {
		return nil, err
	}
	obslog.L().Info("tournament_create", zap.String("tournament_id", t.ID), zap.String("name", name), zap.Int("capacity", capacity))
	return t, nil
}

// OpenRegistration moves upcoming to registration. Transitions only ever
// move forward.
func (s *Store) OpenRegistration(ctx context.Context, id string) (*Tournament, error) {
	return s.update(ctx, id, func(cur *Tournament) error {
		if cur.Status != StatusUpcoming {
			return ErrBadTransition
		}
		cur.Status = StatusRegistration
		return nil
	})
}

// Register enters a team. The capacity check rides the same conditional
// write as the roster append, so two racing registrations for the last
// slot resolve to one winner.
func (s *Store) Register(ctx context.Context, id, teamName string) (*Tournament, error) {
	tm, err := s.teams.ByName(ctx, teamName)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, id, func(cur *Tournament) error {
		if cur.Status != StatusRegistration {
			return ErrNotRegistering
		}
		if cur.HasEntry(tm.ID) {
			return ErrAlreadyEntered
		}
		if len(cur.Entries) >= cur.Capacity {
			return ErrFull
		}
		cur.Entries = append(cur.Entries, Entry{TeamID: tm.ID, TeamName: tm.Name, Seed: len(cur.Entries) + 1})
		return nil
	})
}

// Start closes registration and generates the bracket skeleton from the
// entries in registration order.
func (s *Store) Start(ctx context.Context, id string) (*Tournament, error) {
	return s.update(ctx, id, func(cur *Tournament) error {
		if cur.Status != StatusRegistration {
			return ErrBadTransition
		}
		if len(cur.Entries) < MinTeams {
			return ErrNotEnoughTeams
		}
		if cur.BracketType == BracketGroupStage {
			cur.Rounds = buildGroupStage(cur.Entries)
		} else {
			cur.Rounds = buildSingleElimination(cur.Entries)
		}
		cur.Status = StatusOngoing
		cur.StartedAt = time.Now()
		return nil
	})
}

// Complete ends an ongoing tournament.
func (s *Store) Complete(ctx context.Context, id string) (*Tournament, error) {
	return s.update(ctx, id, func(cur *Tournament) error {
		if cur.Status != StatusOngoing {
			return ErrBadTransition
		}
		cur.Status = StatusCompleted
		return nil
	})
}

// Cancel is the one backward transition; completed tournaments stay
// completed.
func (s *Store) Cancel(ctx context.Context, id string) (*Tournament, error) {
	return s.update(ctx, id, func(cur *Tournament) error {
		if cur.Status == StatusCompleted || cur.Status == StatusCancelled {
			return ErrBadTransition
		}
		cur.Status = StatusCancelled
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id string) (*Tournament, error) {
	raw, err := s.rdb.Get(ctx, tournamentKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var t Tournament
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListActive returns tournaments still in play: upcoming, registering or
// ongoing, oldest first.
func (s *Store) ListActive(ctx context.Context) ([]*Tournament, error) {
	ids, err := s.rdb.SMembers(ctx, idxAll()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Tournament, 0, len(ids))
	for _, id := range ids {
		t, gerr := s.Get(ctx, id)
		if gerr != nil {
			continue
		}
		switch t.Status {
		case StatusUpcoming, StatusRegistration, StatusOngoing:
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) save(ctx context.Context, t *Tournament) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, tournamentKey(t.ID), raw, 0)
	pipe.SAdd(ctx, idxAll(), t.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) update(ctx context.Context, id string, mutate func(*Tournament) error) (*Tournament, error) {
	key := tournamentKey(id)
	var out Tournament
	for i := 0; i < casRetries; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			var cur Tournament
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
			pipe.Set(ctx, key, next, 0)
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
