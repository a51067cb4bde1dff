package friendly

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/brawlbase/scrim-bot/internal/player"
)

func newTestManager(t *testing.T) (*Manager, *player.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	players := player.NewStore(rdb)
	return NewManager(rdb, players, time.Hour), players
}

func seed(t *testing.T, ps *player.Store, id int64, name string) {
	t.Helper()
	_, err := ps.Upsert(context.Background(), player.Player{ID: id, Username: name, Trophies: 100})
	require.NoError(t, err)
}

func TestCreateAndDuplicate(t *testing.T) {
	m, ps := newTestManager(t)
	ctx := context.Background()
	seed(t, ps, 1, "alice")

	s, err := m.Create(ctx, 1, "2v2")
	require.NoError(t, err)
	require.Equal(t, 4, s.Capacity)
	require.Equal(t, StatusProposing, s.Status)
	require.Equal(t, []int64{1}, s.JoinedIDs)

	_, err = m.Create(ctx, 1, "1v1")
	require.ErrorIs(t, err, ErrSessionExists)

	_, err = m.Create(ctx, 1, "5v5")
	require.Error(t, err)
}

// One bad handle rejects the whole list: no invitations go out, the session
// stays put for a re-prompt.
func TestManualInviteAllOrNothing(t *testing.T) {
	m, ps := newTestManager(t)
	ctx := context.Background()
	seed(t, ps, 1, "alice")
	seed(t, ps, 2, "bob")
	seed(t, ps, 3, "carol")

	_, err := m.Create(ctx, 1, "3v3")
	require.NoError(t, err)
	_, _, err = m.ChooseInviteMode(ctx, 1, InviteManual)
	require.NoError(t, err)

	_, _, err = m.InviteManual(ctx, 1, []string{"bob", "nobody", "carol"})
	require.ErrorIs(t, err, ErrUnknownHandle)

	s, err := m.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, StatusCollectingInvites, s.Status)
	require.Empty(t, s.InvitedIDs)

	s, invitees, err := m.InviteManual(ctx, 1, []string{"bob", "carol"})
	require.NoError(t, err)
	require.Equal(t, StatusWaitingForQuorum, s.Status)
	require.Len(t, invitees, 2)
}

func TestInviteAllRecipients(t *testing.T) {
	m, ps := newTestManager(t)
	ctx := context.Background()
	seed(t, ps, 1, "alice")
	seed(t, ps, 2, "bob")
	seed(t, ps, 3, "carol")

	_, err := m.Create(ctx, 1, "1v1")
	require.NoError(t, err)
	s, recipients, err := m.ChooseInviteMode(ctx, 1, InviteAll)
	require.NoError(t, err)
	require.Equal(t, StatusWaitingForQuorum, s.Status)
	require.Len(t, recipients, 2)
	for _, p := range recipients {
		require.NotEqual(t, int64(1), p.ID)
	}
}

func TestJoinRules(t *testing.T) {
	m, ps := newTestManager(t)
	ctx := context.Background()
	seed(t, ps, 1, "alice")
	seed(t, ps, 2, "bob")
	seed(t, ps, 3, "carol")

	_, err := m.Create(ctx, 1, "1v1")
	require.NoError(t, err)
	_, _, err = m.ChooseInviteMode(ctx, 1, InviteAll)
	require.NoError(t, err)

	s, quorum, err := m.Join(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, quorum)
	require.Equal(t, StatusWaitingVoiceLink, s.Status)

	// No double joins, and the full room stays full.
	_, _, err = m.Join(ctx, 1, 2)
	require.ErrorIs(t, err, ErrBadState)
	_, _, err = m.Join(ctx, 1, 3)
	require.ErrorIs(t, err, ErrBadState)

	// Joining a room that was never opened is a plain rejection.
	_, _, err = m.Join(ctx, 99, 3)
	require.ErrorIs(t, err, player.ErrNotFound)
}

func TestJoinIdempotentAndFull(t *testing.T) {
	m, ps := newTestManager(t)
	ctx := context.Background()
	seed(t, ps, 1, "alice")
	for id, name := range map[int64]string{2: "bob", 3: "carol", 4: "dave", 5: "erin"} {
		seed(t, ps, id, name)
	}

	_, err := m.Create(ctx, 1, "2v2")
	require.NoError(t, err)
	_, _, err = m.ChooseInviteMode(ctx, 1, InviteAll)
	require.NoError(t, err)

	_, _, err = m.Join(ctx, 1, 2)
	require.NoError(t, err)
	_, _, err = m.Join(ctx, 1, 2)
	require.ErrorIs(t, err, ErrAlreadyJoined)

	_, quorum, err := m.Join(ctx, 1, 3)
	require.NoError(t, err)
	require.False(t, quorum)
	s, quorum, err := m.Join(ctx, 1, 4)
	require.NoError(t, err)
	require.True(t, quorum)
	require.Len(t, s.JoinedIDs, 4)

	_, _, err = m.Join(ctx, 1, 5)
	require.ErrorIs(t, err, ErrBadState)
}

func TestJoinFullAndNotInvited(t *testing.T) {
	m, ps := newTestManager(t)
	ctx := context.Background()
	seed(t, ps, 1, "alice")
	seed(t, ps, 2, "bob")
	seed(t, ps, 3, "carol")
	seed(t, ps, 4, "dave")

	_, err := m.Create(ctx, 1, "1v1")
	require.NoError(t, err)
	_, _, err = m.ChooseInviteMode(ctx, 1, InviteManual)
	require.NoError(t, err)
	_, _, err = m.InviteManual(ctx, 1, []string{"bob"})
	require.NoError(t, err)

	_, _, err = m.Join(ctx, 1, 3)
	require.ErrorIs(t, err, ErrNotInvited)

	_, quorum, err := m.Join(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, quorum)
}

func TestLinkFlow(t *testing.T) {
	m, ps := newTestManager(t)
	ctx := context.Background()
	seed(t, ps, 1, "alice")
	seed(t, ps, 2, "bob")

	_, err := m.Create(ctx, 1, "1v1")
	require.NoError(t, err)
	_, _, err = m.ChooseInviteMode(ctx, 1, InviteAll)
	require.NoError(t, err)
	_, _, err = m.Join(ctx, 1, 2)
	require.NoError(t, err)

	// Links land in order: voice room first, then game room closes it.
	s, err := m.SubmitLink(ctx, 1, "voice://room")
	require.NoError(t, err)
	require.Equal(t, StatusWaitingGameLink, s.Status)
	require.Equal(t, "voice://room", s.VoiceLink)

	s, err = m.SubmitLink(ctx, 1, "game://room")
	require.NoError(t, err)
	require.Equal(t, StatusClosed, s.Status)

	// Closed rooms are gone; the creator can open a new one.
	_, err = m.Get(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.Create(ctx, 1, "2v2")
	require.NoError(t, err)
}

func TestCancelDiscards(t *testing.T) {
	m, ps := newTestManager(t)
	ctx := context.Background()
	seed(t, ps, 1, "alice")

	require.ErrorIs(t, m.Cancel(context.Background(), 1), ErrNotFound)

	_, err := m.Create(ctx, 1, "1v1")
	require.NoError(t, err)
	require.NoError(t, m.Cancel(ctx, 1))
	_, err = m.Get(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)
}
