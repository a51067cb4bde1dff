package scrim

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/brawlbase/scrim-bot/internal/matchrec"
	"github.com/brawlbase/scrim-bot/internal/player"
	"github.com/brawlbase/scrim-bot/internal/team"
)

type countingRecorder struct {
	ranked int32
	scrims int32
}

func (c *countingRecorder) SaveRanked(_ context.Context, _ *matchrec.RankedRecord) error {
	atomic.AddInt32(&c.ranked, 1)
	return nil
}

func (c *countingRecorder) SaveScrim(_ context.Context, _ *matchrec.ScrimRecord) error {
	atomic.AddInt32(&c.scrims, 1)
	return nil
}

// fixture: team Alpha {1,2} vs team Bravo {3,4}.
func newTestManager(t *testing.T) (*Manager, *player.Store, *countingRecorder) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	players := player.NewStore(rdb)
	teams := team.NewStore(rdb, players)

	ctx := context.Background()
	for id := int64(1); id <= 4; id++ {
		_, err := players.Upsert(ctx, player.Player{ID: id, Username: fmt.Sprintf("player%d", id), Trophies: 100})
		require.NoError(t, err)
	}
	_, err = teams.Create(ctx, "Alpha", 1, []int64{1, 2}, "")
	require.NoError(t, err)
	_, err = teams.Create(ctx, "Bravo", 3, []int64{3, 4}, "")
	require.NoError(t, err)

	rec := &countingRecorder{}
	return NewManager(rdb, players, teams, rec, nil, 5*time.Minute), players, rec
}

func requested(t *testing.T, m *Manager) *Session {
	t.Helper()
	s, err := m.Request(context.Background(), 1, "bravo")
	require.NoError(t, err)
	return s
}

func TestRequestGuards(t *testing.T) {
	m, ps, _ := newTestManager(t)
	ctx := context.Background()

	// Teamless initiators and unknown opponents are plain rejections.
	_, err := ps.Upsert(ctx, player.Player{ID: 9, Username: "solo", Trophies: 50})
	require.NoError(t, err)
	_, err = m.Request(ctx, 9, "Bravo")
	require.ErrorIs(t, err, team.ErrNotFound)

	_, err = m.Request(ctx, 1, "Nobody")
	require.ErrorIs(t, err, team.ErrNotFound)

	_, err = m.Request(ctx, 1, "Alpha")
	require.ErrorIs(t, err, ErrSelfOpponent)

	s := requested(t, m)
	require.Equal(t, StatusRequested, s.Status)
	require.Equal(t, []int64{1, 2}, s.RosterA)
	require.Equal(t, []int64{3, 4}, s.RosterB)
}

// Confirmation is a strict quorum over the roster union: three of four
// confirmations advance nothing.
func TestConfirmStrictQuorum(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	s := requested(t, m)

	_, err := m.ProposeTime(ctx, s.ID, 1, "18:00", time.Now())
	require.NoError(t, err)

	_, _, err = m.Confirm(ctx, s.ID, 9)
	require.ErrorIs(t, err, ErrNotMember)

	for _, id := range []int64{1, 2, 3} {
		got, scheduled, err := m.Confirm(ctx, s.ID, id)
		require.NoError(t, err)
		require.False(t, scheduled)
		require.Equal(t, StatusConfirming, got.Status)
	}

	// Re-confirming does not pad the quorum.
	got, scheduled, err := m.Confirm(ctx, s.ID, 3)
	require.NoError(t, err)
	require.False(t, scheduled)
	require.Len(t, got.ConfirmedIDs, 3)

	got, scheduled, err = m.Confirm(ctx, s.ID, 4)
	require.NoError(t, err)
	require.True(t, scheduled)
	require.Equal(t, StatusScheduled, got.Status)
}

func confirmAll(t *testing.T, m *Manager, s *Session) {
	t.Helper()
	ctx := context.Background()
	// A clock two hours out keeps the reminder safely in the future.
	clock := time.Now().Add(2 * time.Hour).Format("15:04")
	_, err := m.ProposeTime(ctx, s.ID, 1, clock, time.Now())
	require.NoError(t, err)
	for _, id := range []int64{1, 2, 3, 4} {
		_, _, err := m.Confirm(ctx, s.ID, id)
		require.NoError(t, err)
	}
}

func TestFullFlowSettlement(t *testing.T) {
	m, ps, rec := newTestManager(t)
	ctx := context.Background()
	s := requested(t, m)
	confirmAll(t, m, s)

	_, err := m.SubmitLinks(ctx, s.ID, 2, "room", "spec")
	require.ErrorIs(t, err, ErrNotMember)
	got, err := m.SubmitLinks(ctx, s.ID, 1, "room://x", "spec://y")
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, got.Status)

	got, err = m.Finish(ctx, s.ID, 3)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingScore, got.Status)
	require.Equal(t, int64(3), got.ReporterID)

	// Malformed score re-prompts; the session stays where it was.
	_, err = m.SubmitScore(ctx, s.ID, 3, "lots to none")
	require.ErrorIs(t, err, ErrBadScore)
	got, err = m.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingScore, got.Status)

	// Only the reporter may score.
	_, err = m.SubmitScore(ctx, s.ID, 1, "3-2")
	require.ErrorIs(t, err, ErrNotMember)

	got, err = m.SubmitScore(ctx, s.ID, 3, "3-2")
	require.NoError(t, err)
	require.Equal(t, StatusCollectingEvidence, got.Status)

	_, err = m.AddEvidence(ctx, s.ID, 3, "shot-1")
	require.NoError(t, err)
	got, err = m.AddEvidence(ctx, s.ID, 3, "shot-2")
	require.NoError(t, err)
	require.Len(t, got.Evidence, 2)

	got, err = m.Done(ctx, s.ID, 3)
	require.NoError(t, err)
	require.Equal(t, StatusSettled, got.Status)

	// Score 3-2: roster A wins, roster B loses, everyone played.
	for _, id := range []int64{1, 2} {
		p, err := ps.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, 1, p.Wins)
		require.Equal(t, 0, p.Defeats)
		require.Equal(t, 1, p.MatchesPlayed)
	}
	for _, id := range []int64{3, 4} {
		p, err := ps.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, 0, p.Wins)
		require.Equal(t, 1, p.Defeats)
		require.Equal(t, 1, p.MatchesPlayed)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&rec.scrims))

	// Settlement is final.
	_, err = m.Done(ctx, s.ID, 3)
	require.ErrorIs(t, err, ErrBadState)
	_, err = m.ActiveForPlayer(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

// A 2-2 tie assigns no winner; matches played still counts for all four.
func TestTieSettlement(t *testing.T) {
	m, ps, _ := newTestManager(t)
	ctx := context.Background()
	s := requested(t, m)
	confirmAll(t, m, s)

	_, err := m.SubmitLinks(ctx, s.ID, 1, "room://x", "spec://y")
	require.NoError(t, err)
	_, err = m.Finish(ctx, s.ID, 1)
	require.NoError(t, err)
	_, err = m.SubmitScore(ctx, s.ID, 1, "2-2")
	require.NoError(t, err)
	_, err = m.AddEvidence(ctx, s.ID, 1, "shot")
	require.NoError(t, err)
	_, err = m.Done(ctx, s.ID, 1)
	require.NoError(t, err)

	for id := int64(1); id <= 4; id++ {
		p, err := ps.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, 0, p.Wins)
		require.Equal(t, 0, p.Defeats)
		require.Equal(t, 1, p.MatchesPlayed)
	}
}

func TestCancelRemovesReminder(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	reminders, err := NewReminders()
	require.NoError(t, err)
	t.Cleanup(func() { _ = reminders.Shutdown() })
	m.reminders = reminders

	fired := make(chan struct{}, 1)
	m.OnRemind = func(*Session) { fired <- struct{}{} }

	s := requested(t, m)
	confirmAll(t, m, s)

	got, err := m.Cancel(ctx, s.ID, 2)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)

	select {
	case <-fired:
		t.Fatal("reminder fired after cancel")
	case <-time.After(100 * time.Millisecond):
	}

	// Cancelled scrims accept nothing further.
	_, err = m.Cancel(ctx, s.ID, 2)
	require.ErrorIs(t, err, ErrBadState)
	_, err = m.SubmitLinks(ctx, s.ID, 1, "a", "b")
	require.ErrorIs(t, err, ErrBadState)
}

// An already-past scrim time fires the reminder immediately instead of
// sleeping a negative duration.
func TestReminderImmediateWhenPast(t *testing.T) {
	reminders, err := NewReminders()
	require.NoError(t, err)
	t.Cleanup(func() { _ = reminders.Shutdown() })

	fired := make(chan struct{})
	require.NoError(t, reminders.Schedule("sc-x", time.Now().Add(-time.Minute), func() { close(fired) }))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("immediate reminder did not fire")
	}
}
