package scrim

import (
	"context"
	"encoding/json"
	"sort"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brawlbase/scrim-bot/internal/matchrec"
	"github.com/brawlbase/scrim-bot/internal/obslog"
	"github.com/brawlbase/scrim-bot/internal/player"
	"github.com/brawlbase/scrim-bot/internal/team"
)

const casRetries = 8

// Manager drives the scrim negotiation between two teams: request, time,
// strict both-roster confirmation, reminder, links, score, evidence,
// settlement. Scrim documents are durable (no TTL); settled scrims also go
// to the match recorder.
type Manager struct {
	rdb        *redis.Client
	players    *player.Store
	teams      *team.Store
	rec        matchrec.Recorder
	reminders  *Reminders
	remindLead time.Duration

	// OnRemind is invoked when a scheduled scrim reaches its reminder
	// instant; the router uses it to prompt the creator for room links.
	OnRemind func(s *Session)

	seq uint64
}

func NewManager(rdb *redis.Client, players *player.Store, teams *team.Store, rec matchrec.Recorder, reminders *Reminders, remindLead time.Duration) *Manager {
	if remindLead <= 0 {
		remindLead = 5 * time.Minute
	}
	return &Manager{rdb: rdb, players: players, teams: teams, rec: rec, reminders: reminders, remindLead: remindLead}
}

func (m *Manager) nextID() string {
	return fmtID(time.Now().UnixNano(), atomic.AddUint64(&m.seq, 1))
}

// Request opens a scrim from a team member against an opponent team
// resolved by unique case-insensitive name.
func (m *Manager) Request(ctx context.Context, initiatorID int64, opponentName string) (*Session, error) {
	own, err := m.teams.ByMember(ctx, initiatorID)
	if err != nil {
		return nil, err
	}
	opp, err := m.teams.ByName(ctx, opponentName)
	if err != nil {
		return nil, err
	}
	if opp.ID == own.ID {
		return nil, ErrSelfOpponent
	}

	s := &Session{
		ID:        m.nextID(),
		CreatorID: initiatorID,
		TeamAID:   own.ID,
		TeamAName: own.Name,
		TeamBID:   opp.ID,
		TeamBName: opp.Name,
		RosterA:   append([]int64(nil), own.MemberIDs...),
		RosterB:   append([]int64(nil), opp.MemberIDs...),
		Status:    StatusRequested,
		CreatedAt: time.Now(),
	}
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}
	obslog.L().Info("scrim_requested", zap.String("scrim_id", s.ID), zap.String("team_a", s.TeamAName), zap.String("team_b", s.TeamBName))
	return s, nil
}

// ProposeTime records the wall-clock time and opens confirmation; every
// member of both rosters must now confirm individually.
func (m *Manager) ProposeTime(ctx context.Context, scrimID string, creatorID int64, clock string, now time.Time) (*Session, error) {
	at, err := ParseClock(clock, now)
	if err != nil {
		return nil, err
	}
	return m.update(ctx, scrimID, func(cur *Session) error {
		if cur.Status != StatusRequested {
			return ErrBadState
		}
		if cur.CreatorID != creatorID {
			return ErrNotMember
		}
		cur.ScheduledAt = at
		cur.Status = StatusConfirming
		return nil
	})
}

// Confirm adds one member to the confirmed set. The session advances only
// when the set covers the full roster union — a strict quorum, not first-N.
// On the flip to scheduled the reminder is armed at (scrim time − lead).
func (m *Manager) Confirm(ctx context.Context, scrimID string, memberID int64) (s *Session, scheduled bool, err error) {
	s, err = m.update(ctx, scrimID, func(cur *Session) error {
		scheduled = false
		if cur.Status != StatusConfirming {
			return ErrBadState
		}
		if !cur.InRoster(memberID) {
			return ErrNotMember
		}
		if !cur.HasConfirmed(memberID) {
			cur.ConfirmedIDs = append(cur.ConfirmedIDs, memberID)
		}
		if cur.AllConfirmed() {
			cur.Status = StatusScheduled
			scheduled = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if scheduled && m.reminders != nil {
		sid := s.ID
		if rerr := m.reminders.Schedule(sid, s.ScheduledAt.Add(-m.remindLead), func() { m.fireReminder(sid) }); rerr != nil {
			obslog.L().Warn("scrim_remind_schedule", zap.String("scrim_id", sid), zap.Error(rerr))
		}
		obslog.L().Info("scrim_scheduled", zap.String("scrim_id", sid), zap.Time("at", s.ScheduledAt))
	}
	return s, scheduled, nil
}

// fireReminder moves a still-scheduled scrim to awaiting_links and hands it
// to the OnRemind hook. A scrim cancelled in the meantime is left alone.
func (m *Manager) fireReminder(scrimID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := m.update(ctx, scrimID, func(cur *Session) error {
		if cur.Status != StatusScheduled {
			return ErrBadState
		}
		cur.Status = StatusAwaitingLinks
		return nil
	})
	if err != nil {
		obslog.L().Warn("scrim_remind_fire", zap.String("scrim_id", scrimID), zap.Error(err))
		return
	}
	if m.OnRemind != nil {
		m.OnRemind(s)
	}
}

// SubmitLinks records the gameroom and spectator links from the creator.
// Accepted from scheduled too, so an early creator need not wait for the
// reminder.
func (m *Manager) SubmitLinks(ctx context.Context, scrimID string, creatorID int64, gameroom, spectator string) (*Session, error) {
	return m.update(ctx, scrimID, func(cur *Session) error {
		if cur.Status != StatusScheduled && cur.Status != StatusAwaitingLinks {
			return ErrBadState
		}
		if cur.CreatorID != creatorID {
			return ErrNotMember
		}
		cur.GameroomLink = gameroom
		cur.SpectatorLink = spectator
		cur.Status = StatusInProgress
		return nil
	})
}

// Finish is a roster member signalling the match has been played; the
// signaller becomes the score reporter.
func (m *Manager) Finish(ctx context.Context, scrimID string, reporterID int64) (*Session, error) {
	return m.update(ctx, scrimID, func(cur *Session) error {
		if cur.Status != StatusInProgress {
			return ErrBadState
		}
		if !cur.InRoster(reporterID) {
			return ErrNotMember
		}
		cur.ReporterID = reporterID
		cur.Status = StatusAwaitingScore
		return nil
	})
}

// SubmitScore records the reporter's "A-B" result. Malformed input errors
// out for a re-prompt and leaves the session in awaiting_score.
func (m *Manager) SubmitScore(ctx context.Context, scrimID string, reporterID int64, raw string) (*Session, error) {
	a, b, err := ParseScore(raw)
	if err != nil {
		return nil, err
	}
	return m.update(ctx, scrimID, func(cur *Session) error {
		if cur.Status != StatusAwaitingScore {
			return ErrBadState
		}
		if cur.ReporterID != reporterID {
			return ErrNotMember
		}
		cur.ScoreA = a
		cur.ScoreB = b
		cur.Status = StatusCollectingEvidence
		return nil
	})
}

// AddEvidence appends one screenshot reference; collection is open-ended
// until the reporter signals done.
func (m *Manager) AddEvidence(ctx context.Context, scrimID string, reporterID int64, photoRef string) (*Session, error) {
	return m.update(ctx, scrimID, func(cur *Session) error {
		if cur.Status != StatusCollectingEvidence {
			return ErrBadState
		}
		if cur.ReporterID != reporterID {
			return ErrNotMember
		}
		cur.Evidence = append(cur.Evidence, photoRef)
		return nil
	})
}

// Done settles the scrim: the CAS flip to settled guards the one-shot stat
// commit. Everyone on both rosters gets a match played; the winning roster
// gets wins, the losing one defeats, a tie increments neither.
func (m *Manager) Done(ctx context.Context, scrimID string, reporterID int64) (*Session, error) {
	s, err := m.update(ctx, scrimID, func(cur *Session) error {
		if cur.Status != StatusCollectingEvidence {
			return ErrBadState
		}
		if cur.ReporterID != reporterID {
			return ErrNotMember
		}
		cur.Status = StatusSettled
		cur.SettledAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.settle(ctx, s)
	return s, nil
}

func (m *Manager) settle(ctx context.Context, s *Session) {
	winner := s.Winner()
	apply := func(roster []int64, won, lost bool) {
		for _, id := range roster {
			d := player.StatDelta{MatchesPlayed: 1}
			if won {
				d.Wins = 1
			}
			if lost {
				d.Defeats = 1
			}
			if _, err := m.players.ApplyStatDelta(ctx, id, d); err != nil {
				obslog.L().Warn("scrim_settle_stats", zap.String("scrim_id", s.ID), zap.Int64("player", id), zap.Error(err))
			}
		}
	}
	apply(s.RosterA, winner == 1, winner == 2)
	apply(s.RosterB, winner == 2, winner == 1)

	if err := m.rdb.SRem(ctx, idxActive(), s.ID).Err(); err != nil {
		obslog.L().Warn("scrim_settle_index", zap.String("scrim_id", s.ID), zap.Error(err))
	}
	if m.rec != nil {
		err := m.rec.SaveScrim(ctx, &matchrec.ScrimRecord{
			ScrimID:    s.ID,
			TeamA:      s.TeamAID,
			TeamAName:  s.TeamAName,
			TeamB:      s.TeamBID,
			TeamBName:  s.TeamBName,
			ScoreA:     s.ScoreA,
			ScoreB:     s.ScoreB,
			RoomLinks:  []string{s.GameroomLink, s.SpectatorLink},
			Evidence:   append([]string(nil), s.Evidence...),
			PlayedAt:   s.ScheduledAt,
			RecordedAt: s.SettledAt,
		})
		if err != nil {
			obslog.L().Warn("scrim_settle_record", zap.String("scrim_id", s.ID), zap.Error(err))
		}
	}
	obslog.L().Info("scrim_settled", zap.String("scrim_id", s.ID), zap.Int("score_a", s.ScoreA), zap.Int("score_b", s.ScoreB))
}

// Cancel terminates an unsettled scrim and removes any pending reminder.
func (m *Manager) Cancel(ctx context.Context, scrimID string, memberID int64) (*Session, error) {
	s, err := m.update(ctx, scrimID, func(cur *Session) error {
		if cur.Status == StatusSettled || cur.Status == StatusCancelled {
			return ErrBadState
		}
		if !cur.InRoster(memberID) {
			return ErrNotMember
		}
		cur.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m.reminders != nil {
		m.reminders.Cancel(scrimID)
	}
	if err := m.rdb.SRem(ctx, idxActive(), scrimID).Err(); err != nil {
		obslog.L().Warn("scrim_cancel_index", zap.String("scrim_id", scrimID), zap.Error(err))
	}
	obslog.L().Info("scrim_cancelled", zap.String("scrim_id", scrimID), zap.Int64("by", memberID))
	return s, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := m.rdb.Get(ctx, scrimKey(id)).Bytes()
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

// ActiveForPlayer finds the unsettled scrim a player participates in; the
// router uses it to direct a member's free-text input to the right session.
func (m *Manager) ActiveForPlayer(ctx context.Context, playerID int64) (*Session, error) {
	ids, err := m.rdb.SMembers(ctx, idxActive()).Result()
	if err != nil {
		return nil, err
	}
	var matches []*Session
	for _, id := range ids {
		s, gerr := m.Get(ctx, id)
		if gerr != nil {
			continue
		}
		if s.InRoster(playerID) {
			matches = append(matches, s)
		}
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return matches[0], nil
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, scrimKey(s.ID), raw, 0)
	pipe.SAdd(ctx, idxActive(), s.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (m *Manager) update(ctx context.Context, scrimID string, mutate func(*Session) error) (*Session, error) {
	key := scrimKey(scrimID)
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
