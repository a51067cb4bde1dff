package player

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	return NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestUpsertValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, Player{ID: 1, Username: "alice", Trophies: MaxTrophies + 1})
	require.ErrorIs(t, err, ErrTrophyRange)

	_, err = s.Upsert(ctx, Player{ID: 1, Username: "alice", Trophies: -1})
	require.ErrorIs(t, err, ErrTrophyRange)

	_, err = s.Upsert(ctx, Player{ID: 0, Username: "alice"})
	require.ErrorIs(t, err, ErrInvalidInput)

	p, err := s.Upsert(ctx, Player{ID: 1, Username: "alice", Trophies: 150, MainBrawler: "Shelly"})
	require.NoError(t, err)
	require.Equal(t, 150, p.Trophies)
	require.False(t, p.RegisteredAt.IsZero())
}

func TestUpsertKeepsCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, Player{ID: 7, Username: "bob", Trophies: 100, Country: "France"})
	require.NoError(t, err)
	_, err = s.ApplyStatDelta(ctx, 7, StatDelta{Wins: 3, MatchesPlayed: 5})
	require.NoError(t, err)

	// Re-register with new trophies; record must not lose its history.
	p, err := s.Upsert(ctx, Player{ID: 7, Username: "bob", Trophies: 900})
	require.NoError(t, err)
	require.Equal(t, 900, p.Trophies)
	require.Equal(t, 3, p.Wins)
	require.Equal(t, 5, p.MatchesPlayed)
	require.Equal(t, "France", p.Country)
}

func TestStatDeltaClamping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Upsert(ctx, Player{ID: 2, Username: "carol", Trophies: 30})
	require.NoError(t, err)

	for _, delta := range []int{-100, 50, -5000, MaxTrophies * 2, 1} {
		p, err := s.ApplyStatDelta(ctx, 2, StatDelta{Trophies: delta})
		require.NoError(t, err)
		require.GreaterOrEqual(t, p.Trophies, 0)
		require.LessOrEqual(t, p.Trophies, MaxTrophies)
	}

	p, err := s.Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, MaxTrophies, p.Trophies)
}

func TestByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, seed := range []Player{
		{ID: 1, Username: "Falcon", Trophies: 10},
		{ID: 2, Username: "Fawkes", Trophies: 20},
		{ID: 3, Username: "Zed", Trophies: 30},
	} {
		_, err := s.Upsert(ctx, seed)
		require.NoError(t, err)
	}

	p, err := s.ByName(ctx, "fAlCoN")
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ID)

	// unique prefix
	p, err = s.ByName(ctx, "@Ze")
	require.NoError(t, err)
	require.Equal(t, int64(3), p.ID)

	// ambiguous prefix resolves to nothing
	_, err = s.ByName(ctx, "Fa")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.ByName(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLeaderboard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, seed := range []Player{
		{ID: 1, Username: "a", Trophies: 500},
		{ID: 2, Username: "b", Trophies: 900},
		{ID: 3, Username: "c", Trophies: 0},
		{ID: 4, Username: "d", Trophies: 700},
	} {
		_, err := s.Upsert(ctx, seed)
		require.NoError(t, err)
	}
	_, err := s.ApplyStatDelta(ctx, 4, StatDelta{MatchesPlayed: 3})
	require.NoError(t, err)

	top, err := s.Leaderboard(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, top, 3) // zero-trophy player excluded
	require.Equal(t, int64(2), top[0].ID)
	require.Equal(t, int64(4), top[1].ID)
	require.Equal(t, int64(1), top[2].ID)

	vets, err := s.Leaderboard(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, vets, 1)
	require.Equal(t, int64(4), vets[0].ID)
}

func TestFindOpponentWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, seed := range []Player{
		{ID: 1, Username: "self", Trophies: 1000},
		{ID: 2, Username: "near", Trophies: 1040},
		{ID: 3, Username: "far", Trophies: 2000},
	} {
		_, err := s.Upsert(ctx, seed)
		require.NoError(t, err)
	}

	opp, err := s.FindOpponent(ctx, 1, 1000, 50)
	require.NoError(t, err)
	require.Equal(t, int64(2), opp.ID)

	_, err = s.FindOpponent(ctx, 1, 5000, 50)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Upsert(ctx, Player{ID: 9, Username: "gone", Trophies: 5})
	require.NoError(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.NoError(t, s.Delete(ctx, 9))
	_, err = s.Get(ctx, 9)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.ByName(ctx, "gone")
	require.ErrorIs(t, err, ErrNotFound)
}
