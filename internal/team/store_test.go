package team

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/brawlbase/scrim-bot/internal/player"
)

func newTestStore(t *testing.T) (*Store, *player.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	players := player.NewStore(rdb)
	return NewStore(rdb, players), players
}

func seedPlayers(t *testing.T, ps *player.Store, ids ...int64) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		_, err := ps.Upsert(ctx, player.Player{ID: id, Username: nameFor(id), Trophies: 100})
		require.NoError(t, err)
	}
}

func nameFor(id int64) string {
	return string(rune('a'+id%26)) + "player"
}

func TestCreateValidation(t *testing.T) {
	s, ps := newTestStore(t)
	ctx := context.Background()
	seedPlayers(t, ps, 1, 2, 3)

	_, err := s.Create(ctx, "", 1, []int64{1, 2}, "")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Create(ctx, "solo", 1, []int64{1}, "")
	require.ErrorIs(t, err, ErrRosterSize)

	_, err = s.Create(ctx, "dup", 1, []int64{1, 1}, "")
	require.ErrorIs(t, err, ErrDuplicateID)

	_, err = s.Create(ctx, "ghosts", 1, []int64{1, 99}, "")
	require.ErrorIs(t, err, player.ErrNotFound)

	tm, err := s.Create(ctx, "Alpha", 1, []int64{1, 2}, "")
	require.NoError(t, err)
	require.Len(t, tm.MemberIDs, 2)

	// Name conflicts are case-insensitive.
	_, err = s.Create(ctx, "alpha", 3, []int64{3}, "")
	require.ErrorIs(t, err, ErrRosterSize)
	seedPlayers(t, ps, 4)
	_, err = s.Create(ctx, "alpha", 3, []int64{3, 4}, "")
	require.ErrorIs(t, err, ErrNameTaken)
}

// A player belongs to at most one team: recruiting someone already rostered
// fails, and the failed create leaves nothing behind.
func TestMembershipIsExclusive(t *testing.T) {
	s, ps := newTestStore(t)
	ctx := context.Background()
	seedPlayers(t, ps, 1, 2, 3, 4)

	one, err := s.Create(ctx, "Alpha", 1, []int64{1, 2}, "")
	require.NoError(t, err)

	_, err = s.Create(ctx, "Bravo", 3, []int64{2, 3}, "")
	require.ErrorIs(t, err, ErrMemberTaken)

	p2, err := ps.Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, one.ID, p2.TeamID)

	// And the rejected name stays free.
	_, err = s.Create(ctx, "Bravo", 3, []int64{3, 4}, "")
	require.NoError(t, err)

	_, err = s.AddMember(ctx, one.ID, 3)
	require.ErrorIs(t, err, ErrMemberTaken)
}

func TestReplaceRosterSwap(t *testing.T) {
	s, ps := newTestStore(t)
	ctx := context.Background()
	seedPlayers(t, ps, 1, 2, 3)

	tm, err := s.Create(ctx, "Alpha", 1, []int64{1, 2}, "")
	require.NoError(t, err)

	// {A,B} -> {B,C}: A leaves, C joins, B stays.
	got, err := s.Replace(ctx, tm.ID, "Alpha", []int64{2, 3}, "")
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3}, got.MemberIDs)

	p1, err := ps.Get(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, p1.TeamID)
	for _, id := range []int64{2, 3} {
		p, gerr := ps.Get(ctx, id)
		require.NoError(t, gerr)
		require.Equal(t, tm.ID, p.TeamID)
	}
}

func TestReplaceRename(t *testing.T) {
	s, ps := newTestStore(t)
	ctx := context.Background()
	seedPlayers(t, ps, 1, 2, 3, 4)

	tm, err := s.Create(ctx, "Alpha", 1, []int64{1, 2}, "")
	require.NoError(t, err)
	_, err = s.Create(ctx, "Bravo", 3, []int64{3, 4}, "")
	require.NoError(t, err)

	_, err = s.Replace(ctx, tm.ID, "Bravo", []int64{1, 2}, "")
	require.ErrorIs(t, err, ErrNameTaken)

	got, err := s.Replace(ctx, tm.ID, "Charlie", []int64{1, 2}, "")
	require.NoError(t, err)
	require.Equal(t, "Charlie", got.Name)

	_, err = s.ByName(ctx, "alpha")
	require.ErrorIs(t, err, ErrNotFound)
	found, err := s.ByName(ctx, "CHARLIE")
	require.NoError(t, err)
	require.Equal(t, tm.ID, found.ID)
}

func TestAddRemoveMember(t *testing.T) {
	s, ps := newTestStore(t)
	ctx := context.Background()
	seedPlayers(t, ps, 1, 2, 3)

	tm, err := s.Create(ctx, "Alpha", 1, []int64{1, 2}, "")
	require.NoError(t, err)

	tm, err = s.AddMember(ctx, tm.ID, 3)
	require.NoError(t, err)
	require.True(t, tm.HasMember(3))

	// Adding an existing member is a no-op.
	tm, err = s.AddMember(ctx, tm.ID, 3)
	require.NoError(t, err)
	require.Len(t, tm.MemberIDs, 3)

	tm, err = s.RemoveMember(ctx, tm.ID, 3)
	require.NoError(t, err)
	require.False(t, tm.HasMember(3))
	p3, err := ps.Get(ctx, 3)
	require.NoError(t, err)
	require.Empty(t, p3.TeamID)

	// Cannot shrink below the minimum roster.
	_, err = s.RemoveMember(ctx, tm.ID, 2)
	require.ErrorIs(t, err, ErrRosterSize)
}

func TestByMemberAndList(t *testing.T) {
	s, ps := newTestStore(t)
	ctx := context.Background()
	seedPlayers(t, ps, 1, 2, 3, 4)

	a, err := s.Create(ctx, "Alpha", 1, []int64{1, 2}, "")
	require.NoError(t, err)
	_, err = s.Create(ctx, "Bravo", 3, []int64{3, 4}, "")
	require.NoError(t, err)

	got, err := s.ByMember(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
