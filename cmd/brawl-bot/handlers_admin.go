package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/brawlbase/scrim-bot/internal/chatio"
	"github.com/brawlbase/scrim-bot/internal/obslog"
	"github.com/brawlbase/scrim-bot/internal/tournament"
)

func (r *router) requireAdmin(ctx context.Context, msg *chatio.Message) bool {
	if r.cfg.IsAdmin(msg.UserID) {
		return true
	}
	r.say(ctx, msg.ChatID, "admin.denied", nil)
	return false
}

func (r *router) handleTournament(ctx context.Context, msg *chatio.Message, args []string) {
	if len(args) == 0 || strings.ToLower(args[0]) == "list" {
		r.listTournaments(ctx, msg)
		return
	}
	if !r.cfg.IsAdmin(msg.UserID) {
		r.say(ctx, msg.ChatID, "tournament.admin_only", nil)
		return
	}

	sub := strings.ToLower(args[0])
	rest := args[1:]
	switch sub {
	case "create":
		// tournament create <name> <mode> <bracket> <capacity>
		if len(rest) < 4 {
			r.sendText(ctx, msg.ChatID, "Usage: "+r.cfg.BotPrefix+"tournament create <name> <1v1|2v2|3v3> <single_elimination|group_stage> <capacity>")
			return
		}
		capacity, err := strconv.Atoi(rest[3])
		if err != nil {
			r.sendText(ctx, msg.ChatID, "Capacity must be a number.")
			return
		}
		t, err := r.tournaments.Create(ctx, rest[0], rest[1], rest[2], capacity, msg.UserID)
		if err != nil {
			r.sendText(ctx, msg.ChatID, "❌ "+err.Error())
			return
		}
		if _, err := r.tournaments.OpenRegistration(ctx, t.ID); err != nil {
			r.sendText(ctx, msg.ChatID, "❌ "+err.Error())
			return
		}
		r.say(ctx, msg.ChatID, "tournament.created", map[string]any{"Name": t.Name})
		r.sendText(ctx, msg.ChatID, "Tournament id: "+t.ID)
	case "register":
		if len(rest) < 2 {
			r.sendText(ctx, msg.ChatID, "Usage: "+r.cfg.BotPrefix+"tournament register <id> <team name>")
			return
		}
		t, err := r.tournaments.Register(ctx, rest[0], strings.Join(rest[1:], " "))
		switch {
		case err == tournament.ErrNotRegistering:
			r.say(ctx, msg.ChatID, "tournament.closed", nil)
		case err == tournament.ErrFull:
			r.say(ctx, msg.ChatID, "tournament.full", nil)
		case err != nil:
			r.sendText(ctx, msg.ChatID, "❌ "+err.Error())
		default:
			r.say(ctx, msg.ChatID, "tournament.registered", map[string]any{"Name": t.Name})
		}
	case "start":
		if len(rest) < 1 {
			r.sendText(ctx, msg.ChatID, "Usage: "+r.cfg.BotPrefix+"tournament start <id>")
			return
		}
		t, err := r.tournaments.Start(ctx, rest[0])
		if err != nil {
			r.sendText(ctx, msg.ChatID, "❌ "+err.Error())
			return
		}
		r.say(ctx, msg.ChatID, "tournament.started", map[string]any{
			"Name":  t.Name,
			"Teams": len(t.Entries),
		})
		r.sendText(ctx, msg.ChatID, bracketText(t))
	case "cancel":
		if len(rest) < 1 {
			r.sendText(ctx, msg.ChatID, "Usage: "+r.cfg.BotPrefix+"tournament cancel <id>")
			return
		}
		if _, err := r.tournaments.Cancel(ctx, rest[0]); err != nil {
			r.sendText(ctx, msg.ChatID, "❌ "+err.Error())
			return
		}
		r.say(ctx, msg.ChatID, "common.cancelled", nil)
	default:
		r.listTournaments(ctx, msg)
	}
}

func (r *router) listTournaments(ctx context.Context, msg *chatio.Message) {
	active, err := r.tournaments.ListActive(ctx)
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	if len(active) == 0 {
		r.say(ctx, msg.ChatID, "tournament.none_active", nil)
		return
	}
	var b strings.Builder
	b.WriteString("🏆 Tournaments:\n")
	for _, t := range active {
		fmt.Fprintf(&b, "• %s — %s, %s, %d/%d teams [%s]\n", t.Name, t.Mode, t.BracketType, len(t.Entries), t.Capacity, t.Status)
	}
	r.sendText(ctx, msg.ChatID, strings.TrimRight(b.String(), "\n"))
}

func bracketText(t *tournament.Tournament) string {
	nameOf := make(map[string]string, len(t.Entries))
	for _, e := range t.Entries {
		nameOf[e.TeamID] = e.TeamName
	}
	slot := func(id string) string {
		if id == "" {
			return "bye"
		}
		if n, ok := nameOf[id]; ok {
			return n
		}
		return id
	}
	var b strings.Builder
	for _, round := range t.Rounds {
		b.WriteString(round.Label + ":\n")
		for _, p := range round.Pairings {
			if p.TeamA == "" && p.TeamB == "" {
				b.WriteString("• —\n")
				continue
			}
			fmt.Fprintf(&b, "• %s vs %s\n", slot(p.TeamA), slot(p.TeamB))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *router) handleBan(ctx context.Context, msg *chatio.Message, args []string) {
	if !r.requireAdmin(ctx, msg) {
		return
	}
	if len(args) == 0 {
		r.say(ctx, msg.ChatID, "admin.ban_usage", map[string]any{"Prefix": r.cfg.BotPrefix})
		return
	}
	name := strings.Join(args, " ")
	p, err := r.players.ByName(ctx, name)
	if err != nil {
		r.say(ctx, msg.ChatID, "admin.ban_missing", map[string]any{"Name": name})
		return
	}
	// Pull the player out of their team before deleting the record.
	if p.TeamID != "" {
		if _, err := r.teams.RemoveMember(ctx, p.TeamID, p.ID); err != nil {
			obslog.L().Warn("ban_team_remove", zap.Int64("player", p.ID), zap.Error(err))
		}
	}
	if err := r.players.Delete(ctx, p.ID); err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	obslog.L().Info("player_banned", zap.Int64("player", p.ID), zap.Int64("by", msg.UserID))
	r.say(ctx, msg.ChatID, "admin.banned", map[string]any{"Name": p.Username})
}

func (r *router) handleBroadcast(ctx context.Context, msg *chatio.Message, args []string) {
	if !r.requireAdmin(ctx, msg) {
		return
	}
	if len(args) == 0 {
		r.say(ctx, msg.ChatID, "admin.broadcast_usage", map[string]any{"Prefix": r.cfg.BotPrefix})
		return
	}
	text := strings.Join(args, " ")
	all, err := r.players.All(ctx)
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	ids := make([]int64, 0, len(all))
	for _, p := range all {
		if p.ID != msg.UserID {
			ids = append(ids, p.ID)
		}
	}
	tally := chatio.Broadcast(ctx, r.client, ids, text)
	r.say(ctx, msg.ChatID, "admin.broadcast_done", map[string]any{
		"Sent":   tally.Sent,
		"Failed": tally.Failed,
	})
}

func (r *router) handleStats(ctx context.Context, msg *chatio.Message) {
	if !r.requireAdmin(ctx, msg) {
		return
	}
	playersN, err := r.players.Count(ctx)
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	rankedN, scrimsN, err := r.repo.Counts(ctx)
	if err != nil {
		obslog.L().Warn("stats_counts", zap.Error(err))
	}
	r.say(ctx, msg.ChatID, "admin.stats", map[string]any{
		"Players": playersN,
		"Matches": rankedN + scrimsN,
	})
}
