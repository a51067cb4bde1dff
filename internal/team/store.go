package team

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/brawlbase/scrim-bot/internal/obslog"
	"github.com/brawlbase/scrim-bot/internal/player"
	"go.uber.org/zap"
)

// Store is the team registry. It owns the Team documents and keeps the weak
// team reference on every affected Player document in step with them: a
// membership change is the team write plus two bulk player updates
// (clear removed, set current), nothing else.
type Store struct {
	rdb     *redis.Client
	players *player.Store
}

func NewStore(rdb *redis.Client, players *player.Store) *Store {
	return &Store{rdb: rdb, players: players}
}

func teamKey(id string) string { return "team:" + strings.TrimSpace(id) }
func idxTeams() string         { return "teams:all" }

func teamNameKey(name string) string {
	return "teams:name:" + strings.ToLower(strings.TrimSpace(name))
}

// Create registers a new team. Validation is all-or-nothing: if any proposed
// member already belongs to a team, or the name is taken, nothing is written.
func (s *Store) Create(ctx context.Context, name string, creatorID int64, memberIDs []int64, logoRef string) (*Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	if len(memberIDs) < MinMembers || len(memberIDs) > MaxMembers {
		return nil, ErrRosterSize
	}
	if hasDuplicate(memberIDs) {
		return nil, ErrDuplicateID
	}
	for _, id := range memberIDs {
		p, err := s.players.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.TeamID != "" {
			return nil, ErrMemberTaken
		}
	}

	t := &Team{
		ID:        uuid.NewString(),
		Name:      name,
		MemberIDs: append([]int64(nil), memberIDs...),
		CreatorID: creatorID,
		LogoRef:   logoRef,
		CreatedAt: time.Now(),
	}

	// Name uniqueness via SETNX; the holder of the name key owns the name.
	ok, err := s.rdb.SetNX(ctx, teamNameKey(name), t.ID, 0).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNameTaken
	}

	if err := s.save(ctx, t); err != nil {
		return nil, err
	}
	for _, id := range t.MemberIDs {
		if err := s.players.SetTeam(ctx, id, t.ID); err != nil {
			return nil, err
		}
	}
	obslog.L().Info("team_create", zap.String("team_id", t.ID), zap.String("name", t.Name), zap.Int("members", len(t.MemberIDs)))
	return t, nil
}

// Replace applies a rename and/or full roster swap. The membership diff is
// computed first and applied as two bulk updates: clear the reference on
// removed members, set it on the whole new roster.
func (s *Store) Replace(ctx context.Context, teamID, newName string, memberIDs []int64, logoRef string) (*Team, error) {
	t, err := s.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		newName = t.Name
	}
	if len(memberIDs) < MinMembers || len(memberIDs) > MaxMembers {
		return nil, ErrRosterSize
	}
	if hasDuplicate(memberIDs) {
		return nil, ErrDuplicateID
	}
	for _, id := range memberIDs {
		p, err := s.players.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.TeamID != "" && p.TeamID != t.ID {
			return nil, ErrMemberTaken
		}
	}

	if !strings.EqualFold(newName, t.Name) {
		ok, err := s.rdb.SetNX(ctx, teamNameKey(newName), t.ID, 0).Result()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNameTaken
		}
		if err := s.rdb.Del(ctx, teamNameKey(t.Name)).Err(); err != nil {
			return nil, err
		}
	}

	removed := diff(t.MemberIDs, memberIDs)
	t.Name = newName
	t.MemberIDs = append([]int64(nil), memberIDs...)
	if logoRef != "" {
		t.LogoRef = logoRef
	}
	if err := s.save(ctx, t); err != nil {
		return nil, err
	}

	for _, id := range removed {
		if err := s.players.SetTeam(ctx, id, ""); err != nil {
			return nil, err
		}
	}
	for _, id := range t.MemberIDs {
		if err := s.players.SetTeam(ctx, id, t.ID); err != nil {
			return nil, err
		}
	}
	obslog.L().Info("team_replace", zap.String("team_id", t.ID), zap.String("name", t.Name), zap.Int("removed", len(removed)))
	return t, nil
}

// AddMember appends one teamless player to the roster.
func (s *Store) AddMember(ctx context.Context, teamID string, id int64) (*Team, error) {
	t, err := s.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if t.HasMember(id) {
		return t, nil
	}
	if len(t.MemberIDs) >= MaxMembers {
		return nil, ErrRosterSize
	}
	p, err := s.players.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.TeamID != "" {
		return nil, ErrMemberTaken
	}
	t.MemberIDs = append(t.MemberIDs, id)
	if err := s.save(ctx, t); err != nil {
		return nil, err
	}
	if err := s.players.SetTeam(ctx, id, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// RemoveMember drops one player from the roster.
func (s *Store) RemoveMember(ctx context.Context, teamID string, id int64) (*Team, error) {
	t, err := s.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !t.HasMember(id) {
		return t, nil
	}
	if len(t.MemberIDs)-1 < MinMembers {
		return nil, ErrRosterSize
	}
	next := make([]int64, 0, len(t.MemberIDs)-1)
	for _, m := range t.MemberIDs {
		if m != id {
			next = append(next, m)
		}
	}
	t.MemberIDs = next
	if err := s.save(ctx, t); err != nil {
		return nil, err
	}
	if err := s.players.SetTeam(ctx, id, ""); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Team, error) {
	raw, err := s.rdb.Get(ctx, teamKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var t Team
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ByName resolves a unique case-insensitive team name.
func (s *Store) ByName(ctx context.Context, name string) (*Team, error) {
	id, err := s.rdb.Get(ctx, teamNameKey(name)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ByMember returns the team the player belongs to, via the weak reference.
func (s *Store) ByMember(ctx context.Context, playerID int64) (*Team, error) {
	p, err := s.players.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if p.TeamID == "" {
		return nil, ErrNotFound
	}
	return s.Get(ctx, p.TeamID)
}

// List returns all teams ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*Team, error) {
	ids, err := s.rdb.SMembers(ctx, idxTeams()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Team, 0, len(ids))
	for _, id := range ids {
		t, gerr := s.Get(ctx, id)
		if gerr != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) save(ctx context.Context, t *Team) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, teamKey(t.ID), raw, 0)
	pipe.SAdd(ctx, idxTeams(), t.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func hasDuplicate(ids []int64) bool {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

// diff returns members of old missing from cur.
func diff(old, cur []int64) []int64 {
	keep := make(map[int64]struct{}, len(cur))
	for _, id := range cur {
		keep[id] = struct{}{}
	}
	var out []int64
	for _, id := range old {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
