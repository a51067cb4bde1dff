package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/brawlbase/scrim-bot/internal/chatio"
	"github.com/brawlbase/scrim-bot/internal/team"
)

// resolveRoster maps handles to player ids, prepending the caller if they
// left themselves off the list.
func (r *router) resolveRoster(ctx context.Context, callerID int64, handles []string) ([]int64, string, error) {
	ids := []int64{callerID}
	for _, h := range handles {
		p, err := r.players.ByName(ctx, h)
		if err != nil {
			return nil, h, err
		}
		if p.ID == callerID {
			continue
		}
		ids = append(ids, p.ID)
	}
	return ids, "", nil
}

func (r *router) handleRegisterTeam(ctx context.Context, msg *chatio.Message, args []string) {
	if _, ok := r.identify(ctx, msg); !ok {
		return
	}
	if len(args) < 2 {
		r.say(ctx, msg.ChatID, "team.create_usage", map[string]any{"Prefix": r.cfg.BotPrefix})
		return
	}
	name := args[0]
	roster, badHandle, err := r.resolveRoster(ctx, msg.UserID, args[1:])
	if err != nil {
		r.say(ctx, msg.ChatID, "friendly.invite_unknown", map[string]any{"Name": badHandle})
		return
	}

	t, err := r.teams.Create(ctx, name, msg.UserID, roster, "")
	switch {
	case err == team.ErrNameTaken:
		r.say(ctx, msg.ChatID, "team.name_taken", nil)
	case err == team.ErrMemberTaken:
		r.say(ctx, msg.ChatID, "team.member_taken", map[string]any{"Name": r.takenMember(ctx, roster)})
	case err == team.ErrRosterSize || err == team.ErrDuplicateID || err == team.ErrInvalidInput:
		r.say(ctx, msg.ChatID, "team.create_usage", map[string]any{"Prefix": r.cfg.BotPrefix})
	case err != nil:
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
	default:
		r.say(ctx, msg.ChatID, "team.created", map[string]any{
			"Name":    t.Name,
			"Members": strings.Join(r.memberNames(ctx, t.MemberIDs), ", "),
		})
	}
}

// takenMember names the first proposed member already on another team, for
// the rejection message.
func (r *router) takenMember(ctx context.Context, roster []int64) string {
	for _, id := range roster {
		p, err := r.players.Get(ctx, id)
		if err != nil {
			continue
		}
		if p.TeamID != "" {
			return p.Username
		}
	}
	return "someone"
}

func (r *router) handleModifyTeam(ctx context.Context, msg *chatio.Message, args []string) {
	if _, ok := r.identify(ctx, msg); !ok {
		return
	}
	own, err := r.teams.ByMember(ctx, msg.UserID)
	if err != nil {
		r.say(ctx, msg.ChatID, "team.not_member", nil)
		return
	}
	if len(args) < 2 {
		r.say(ctx, msg.ChatID, "team.create_usage", map[string]any{"Prefix": r.cfg.BotPrefix})
		return
	}
	name := args[0]
	roster, badHandle, err := r.resolveRoster(ctx, msg.UserID, args[1:])
	if err != nil {
		r.say(ctx, msg.ChatID, "friendly.invite_unknown", map[string]any{"Name": badHandle})
		return
	}

	t, err := r.teams.Replace(ctx, own.ID, name, roster, "")
	switch {
	case err == team.ErrNameTaken:
		r.say(ctx, msg.ChatID, "team.name_taken", nil)
	case err == team.ErrMemberTaken:
		r.say(ctx, msg.ChatID, "team.member_taken", map[string]any{"Name": r.takenMember(ctx, roster)})
	case err == team.ErrRosterSize || err == team.ErrDuplicateID:
		r.say(ctx, msg.ChatID, "team.create_usage", map[string]any{"Prefix": r.cfg.BotPrefix})
	case err != nil:
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
	default:
		r.say(ctx, msg.ChatID, "team.modified", map[string]any{
			"Name":    t.Name,
			"Members": strings.Join(r.memberNames(ctx, t.MemberIDs), ", "),
		})
	}
}

func (r *router) handleProfileTeam(ctx context.Context, msg *chatio.Message) {
	if _, ok := r.identify(ctx, msg); !ok {
		return
	}
	t, err := r.teams.ByMember(ctx, msg.UserID)
	if err != nil {
		r.say(ctx, msg.ChatID, "team.not_member", nil)
		return
	}
	r.sendTeamCard(ctx, msg.ChatID, t)
}

func (r *router) handleSearchTeam(ctx context.Context, msg *chatio.Message, args []string) {
	if len(args) == 0 {
		r.say(ctx, msg.ChatID, "team.not_found", nil)
		return
	}
	t, err := r.teams.ByName(ctx, strings.Join(args, " "))
	if err != nil {
		r.say(ctx, msg.ChatID, "team.not_found", nil)
		return
	}
	r.sendTeamCard(ctx, msg.ChatID, t)
}

func (r *router) sendTeamCard(ctx context.Context, chatID int64, t *team.Team) {
	card := teamCard(t, r.memberNames(ctx, t.MemberIDs))
	if t.LogoRef != "" {
		if err := r.client.SendPhoto(ctx, chatID, t.LogoRef, card); err == nil {
			return
		}
	}
	r.sendText(ctx, chatID, card)
}

func (r *router) handleFindAllTeams(ctx context.Context, msg *chatio.Message) {
	all, err := r.teams.List(ctx)
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	if len(all) == 0 {
		r.say(ctx, msg.ChatID, "team.not_found", nil)
		return
	}
	var b strings.Builder
	b.WriteString("👥 Teams:\n")
	for _, t := range all {
		fmt.Fprintf(&b, "• %s (%d members)\n", t.Name, len(t.MemberIDs))
	}
	r.sendText(ctx, msg.ChatID, strings.TrimRight(b.String(), "\n"))
}
