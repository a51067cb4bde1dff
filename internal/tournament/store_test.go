package tournament

import (
	"context"
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/brawlbase/scrim-bot/internal/player"
	"github.com/brawlbase/scrim-bot/internal/team"
)

// fixture: n two-player teams named team1..teamN.
func newTestStore(t *testing.T, nTeams int) *Store {
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
	for i := 1; i <= nTeams; i++ {
		a, b := int64(i*2-1), int64(i*2)
		for _, id := range []int64{a, b} {
			_, err := players.Upsert(ctx, player.Player{ID: id, Username: fmt.Sprintf("p%d", id), Trophies: 100})
			require.NoError(t, err)
		}
		_, err := teams.Create(ctx, fmt.Sprintf("team%d", i), a, []int64{a, b}, "")
		require.NoError(t, err)
	}
	return NewStore(rdb, teams)
}

func TestCreateValidation(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	_, err := s.Create(ctx, "", "3v3", BracketSingleElimination, 8, 1)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Create(ctx, "Cup", "5v5", BracketSingleElimination, 8, 1)
	require.ErrorIs(t, err, ErrBadMode)
	_, err = s.Create(ctx, "Cup", "3v3", "swiss", 8, 1)
	require.ErrorIs(t, err, ErrBadBracket)
	_, err = s.Create(ctx, "Cup", "3v3", BracketSingleElimination, 1, 1)
	require.ErrorIs(t, err, ErrCapacityBounds)
	_, err = s.Create(ctx, "Cup", "3v3", BracketSingleElimination, 200, 1)
	require.ErrorIs(t, err, ErrCapacityBounds)

	tr, err := s.Create(ctx, "Cup", "3v3", BracketSingleElimination, 8, 1)
	require.NoError(t, err)
	require.Equal(t, StatusUpcoming, tr.Status)
}

func TestRegistrationRules(t *testing.T) {
	s := newTestStore(t, 3)
	ctx := context.Background()

	tr, err := s.Create(ctx, "Cup", "2v2", BracketSingleElimination, 2, 1)
	require.NoError(t, err)

	// No entries before registration opens.
	_, err = s.Register(ctx, tr.ID, "team1")
	require.ErrorIs(t, err, ErrNotRegistering)

	_, err = s.OpenRegistration(ctx, tr.ID)
	require.NoError(t, err)

	_, err = s.Register(ctx, tr.ID, "team1")
	require.NoError(t, err)
	_, err = s.Register(ctx, tr.ID, "team1")
	require.ErrorIs(t, err, ErrAlreadyEntered)
	_, err = s.Register(ctx, tr.ID, "nobody")
	require.ErrorIs(t, err, team.ErrNotFound)

	got, err := s.Register(ctx, tr.ID, "team2")
	require.NoError(t, err)
	require.Len(t, got.Entries, 2)

	// Capacity is checked against the current roster, transactionally.
	_, err = s.Register(ctx, tr.ID, "team3")
	require.ErrorIs(t, err, ErrFull)
}

func TestStartBuildsBracket(t *testing.T) {
	s := newTestStore(t, 5)
	ctx := context.Background()

	tr, err := s.Create(ctx, "Cup", "2v2", BracketSingleElimination, 8, 1)
	require.NoError(t, err)
	_, err = s.OpenRegistration(ctx, tr.ID)
	require.NoError(t, err)

	_, err = s.Start(ctx, tr.ID)
	require.ErrorIs(t, err, ErrNotEnoughTeams)

	for i := 1; i <= 5; i++ {
		_, err = s.Register(ctx, tr.ID, fmt.Sprintf("team%d", i))
		require.NoError(t, err)
	}

	got, err := s.Start(ctx, tr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOngoing, got.Status)

	// Five entries pad to an eight-slot bracket: 4 + 2 + 1 pairings.
	require.Len(t, got.Rounds, 3)
	require.Len(t, got.Rounds[0].Pairings, 4)
	require.Len(t, got.Rounds[1].Pairings, 2)
	require.Len(t, got.Rounds[2].Pairings, 1)

	// Seeding follows registration order; byes auto-advance.
	first := got.Rounds[0]
	require.Equal(t, got.Entries[0].TeamID, first.Pairings[0].TeamA)
	require.Equal(t, got.Entries[1].TeamID, first.Pairings[0].TeamB)
	require.Equal(t, got.Entries[4].TeamID, first.Pairings[2].TeamA)
	require.Empty(t, first.Pairings[2].TeamB)
	require.Equal(t, got.Entries[4].TeamID, first.Pairings[2].WinnerID)
	require.Empty(t, first.Pairings[3].TeamA)

	// Started tournaments cannot restart.
	_, err = s.Start(ctx, tr.ID)
	require.ErrorIs(t, err, ErrBadTransition)
}

func TestGroupStageRoundRobin(t *testing.T) {
	s := newTestStore(t, 6)
	ctx := context.Background()

	tr, err := s.Create(ctx, "League", "3v3", BracketGroupStage, 8, 1)
	require.NoError(t, err)
	_, err = s.OpenRegistration(ctx, tr.ID)
	require.NoError(t, err)
	for i := 1; i <= 6; i++ {
		_, err = s.Register(ctx, tr.ID, fmt.Sprintf("team%d", i))
		require.NoError(t, err)
	}

	got, err := s.Start(ctx, tr.ID)
	require.NoError(t, err)

	// Six teams: group A of four (6 pairings), group B of two (1 pairing).
	require.Len(t, got.Rounds, 2)
	require.Equal(t, "Group A", got.Rounds[0].Label)
	require.Len(t, got.Rounds[0].Pairings, 6)
	require.Equal(t, "Group B", got.Rounds[1].Label)
	require.Len(t, got.Rounds[1].Pairings, 1)
}

func TestLifecycleAndListing(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	a, err := s.Create(ctx, "CupA", "1v1", BracketSingleElimination, 4, 1)
	require.NoError(t, err)
	b, err := s.Create(ctx, "CupB", "1v1", BracketSingleElimination, 4, 1)
	require.NoError(t, err)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	_, err = s.Cancel(ctx, b.ID)
	require.NoError(t, err)
	active, err = s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, a.ID, active[0].ID)

	// Cancelled is terminal.
	_, err = s.Cancel(ctx, b.ID)
	require.ErrorIs(t, err, ErrBadTransition)
	_, err = s.OpenRegistration(ctx, b.ID)
	require.ErrorIs(t, err, ErrBadTransition)

	_, err = s.OpenRegistration(ctx, a.ID)
	require.NoError(t, err)
	_, err = s.Register(ctx, a.ID, "team1")
	require.NoError(t, err)
	_, err = s.Register(ctx, a.ID, "team2")
	require.NoError(t, err)
	_, err = s.Start(ctx, a.ID)
	require.NoError(t, err)
	_, err = s.Complete(ctx, a.ID)
	require.NoError(t, err)

	active, err = s.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	// Completed cannot be cancelled.
	_, err = s.Cancel(ctx, a.ID)
	require.ErrorIs(t, err, ErrBadTransition)
}
