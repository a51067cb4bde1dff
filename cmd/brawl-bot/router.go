package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brawlbase/scrim-bot/internal/chatio"
	appcfg "github.com/brawlbase/scrim-bot/internal/config"
	"github.com/brawlbase/scrim-bot/internal/friendly"
	"github.com/brawlbase/scrim-bot/internal/matchrec"
	"github.com/brawlbase/scrim-bot/internal/msgcat"
	"github.com/brawlbase/scrim-bot/internal/obslog"
	"github.com/brawlbase/scrim-bot/internal/player"
	"github.com/brawlbase/scrim-bot/internal/ranked"
	"github.com/brawlbase/scrim-bot/internal/scrim"
	"github.com/brawlbase/scrim-bot/internal/team"
	"github.com/brawlbase/scrim-bot/internal/tournament"
)

// router turns incoming chat messages into operations on the stores and
// managers. Prefixed text is a command; bare text and photos are consumed
// by whatever session step is waiting on this user.
type router struct {
	cfg         *appcfg.AppConfig
	cat         *msgcat.Catalog
	client      *chatio.Client
	players     *player.Store
	teams       *team.Store
	friendlies  *friendly.Manager
	ranked      *ranked.Manager
	scrims      *scrim.Manager
	tournaments *tournament.Store
	repo        *matchrec.Repository
}

func (r *router) Handle(msg *chatio.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, r.cfg.BotPrefix):
		raw := strings.TrimSpace(strings.TrimPrefix(text, r.cfg.BotPrefix))
		r.dispatch(ctx, msg, raw)
	case msg.PhotoRef != "":
		r.handlePhoto(ctx, msg)
	case text != "":
		r.handleFreeText(ctx, msg, text)
	}
}

func (r *router) dispatch(ctx context.Context, msg *chatio.Message, raw string) {
	if raw == "" {
		r.sendText(ctx, msg.ChatID, r.helpText())
		return
	}
	parts := strings.Fields(raw)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help":
		r.sendText(ctx, msg.ChatID, r.helpText())
	case "start":
		r.handleStart(ctx, msg)
	case "register":
		r.handleRegister(ctx, msg, args)
	case "profile":
		r.handleProfile(ctx, msg, args)
	case "search":
		r.handleSearch(ctx, msg, args)
	case "findall":
		r.handleFindAll(ctx, msg)
	case "leaderboard":
		r.handleLeaderboard(ctx, msg)
	case "findmatch":
		r.handleFindMatch(ctx, msg, args)
	case "join":
		r.handleJoinMatch(ctx, msg, args)
	case "result":
		r.handleResult(ctx, msg, args)
	case "friendly":
		r.handleFriendly(ctx, msg, args)
	case "accept":
		r.handleAcceptFriendly(ctx, msg, args)
	case "registerteam":
		r.handleRegisterTeam(ctx, msg, args)
	case "modifyteam":
		r.handleModifyTeam(ctx, msg, args)
	case "profileteam", "myteam":
		r.handleProfileTeam(ctx, msg)
	case "searchteam":
		r.handleSearchTeam(ctx, msg, args)
	case "findallteam":
		r.handleFindAllTeams(ctx, msg)
	case "scrim":
		r.handleScrimRequest(ctx, msg, args)
	case "confirm":
		r.handleScrimConfirm(ctx, msg)
	case "finish":
		r.handleScrimFinish(ctx, msg)
	case "done":
		r.handleScrimDone(ctx, msg)
	case "cancelscrim":
		r.handleScrimCancel(ctx, msg)
	case "tournament":
		r.handleTournament(ctx, msg, args)
	case "news":
		r.handleNews(ctx, msg)
	case "ban":
		r.handleBan(ctx, msg, args)
	case "broadcast":
		r.handleBroadcast(ctx, msg, args)
	case "stats":
		r.handleStats(ctx, msg)
	case "cancel":
		r.handleCancel(ctx, msg)
	default:
		r.say(ctx, msg.ChatID, "common.unknown_command", map[string]any{"Prefix": r.cfg.BotPrefix})
	}
}

// handleFreeText feeds a bare message to the session step waiting on this
// user: the scrim time/links/score prompts first, then friendly room links.
func (r *router) handleFreeText(ctx context.Context, msg *chatio.Message, text string) {
	if s, err := r.scrims.ActiveForPlayer(ctx, msg.UserID); err == nil {
		switch {
		case s.Status == scrim.StatusRequested && s.CreatorID == msg.UserID:
			r.scrimTime(ctx, msg, s, text)
			return
		case (s.Status == scrim.StatusScheduled || s.Status == scrim.StatusAwaitingLinks) && s.CreatorID == msg.UserID:
			r.scrimLinks(ctx, msg, s, text)
			return
		case s.Status == scrim.StatusAwaitingScore && s.ReporterID == msg.UserID:
			r.scrimScore(ctx, msg, s, text)
			return
		}
	}

	if s, err := r.friendlies.Get(ctx, msg.UserID); err == nil {
		switch s.Status {
		case friendly.StatusCollectingInvites:
			r.friendlyInvites(ctx, msg, strings.Fields(text))
			return
		case friendly.StatusWaitingVoiceLink, friendly.StatusWaitingGameLink:
			r.friendlyLink(ctx, msg, text)
			return
		}
	}
	// Bare text with nothing waiting on it is ignored, like any other chat.
}

// handlePhoto routes an image to the evidence step waiting on this user.
func (r *router) handlePhoto(ctx context.Context, msg *chatio.Message) {
	if s, err := r.scrims.ActiveForPlayer(ctx, msg.UserID); err == nil {
		if s.Status == scrim.StatusCollectingEvidence && s.ReporterID == msg.UserID {
			if _, err := r.scrims.AddEvidence(ctx, s.ID, msg.UserID, msg.PhotoRef); err == nil {
				r.say(ctx, msg.ChatID, "scrim.screen_saved", map[string]any{"Prefix": r.cfg.BotPrefix})
			}
			return
		}
	}
	if mt, err := r.ranked.Active(ctx, msg.UserID); err == nil && mt.Status == ranked.StatusReady {
		r.rankedEvidence(ctx, msg, mt)
		return
	}
	// A profile photo update when nothing else is waiting for an image.
	if p, err := r.players.Get(ctx, msg.UserID); err == nil {
		p.PhotoRef = msg.PhotoRef
		if _, err := r.players.Upsert(ctx, *p); err != nil {
			obslog.L().Warn("profile_photo", zap.Int64("user", msg.UserID), zap.Error(err))
		}
	}
}

// handleCancel discards whatever ephemeral workflow the user has open.
func (r *router) handleCancel(ctx context.Context, msg *chatio.Message) {
	if err := r.friendlies.Cancel(ctx, msg.UserID); err == nil {
		r.say(ctx, msg.ChatID, "common.cancelled", nil)
		return
	}
	if err := r.ranked.Cancel(ctx, msg.UserID); err == nil {
		r.say(ctx, msg.ChatID, "common.cancelled", nil)
		return
	}
	r.say(ctx, msg.ChatID, "common.cancelled", nil)
}

func (r *router) helpText() string {
	p := r.cfg.BotPrefix
	return strings.Join([]string{
		"🏆 Brawl community bot",
		"",
		"• " + p + "register <trophies> [brawler] — create/update your profile",
		"• " + p + "profile [name] / " + p + "leaderboard / " + p + "findall",
		"• " + p + "findmatch <1v1|2v2|3v3> / " + p + "join <id> / " + p + "result win|lose",
		"• " + p + "friendly <1v1|2v2|3v3> — set up a friendly room",
		"• " + p + "registerteam <name> <members...> / " + p + "modifyteam / " + p + "myteam",
		"• " + p + "scrim <team name> — challenge a team, then " + p + "confirm",
		"• " + p + "tournament list / " + p + "news",
	}, "\n")
}

// say renders a catalog message and sends it; render failures fall back to
// the catalog's generic apology.
func (r *router) say(ctx context.Context, chatID int64, key string, data any) {
	r.sendText(ctx, chatID, r.cat.MustRender(key, data))
}

func (r *router) sendText(ctx context.Context, chatID int64, text string) {
	if err := r.client.SendText(ctx, chatID, text); err != nil {
		obslog.L().Warn("send_text", zap.Int64("chat", chatID), zap.Error(err))
	}
}

// identify loads the sender's profile, replying with a registration nudge
// when there is none.
func (r *router) identify(ctx context.Context, msg *chatio.Message) (*player.Player, bool) {
	p, err := r.players.Get(ctx, msg.UserID)
	if err == player.ErrNotFound {
		r.say(ctx, msg.ChatID, "common.not_registered", map[string]any{"Prefix": r.cfg.BotPrefix})
		return nil, false
	}
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return nil, false
	}
	return p, true
}

func (r *router) handleStart(ctx context.Context, msg *chatio.Message) {
	name := msg.Username
	if name == "" {
		name = "there"
	}
	r.say(ctx, msg.ChatID, "start.welcome", map[string]any{"Name": name})
}

func (r *router) handleRegister(ctx context.Context, msg *chatio.Message, args []string) {
	if len(args) < 1 {
		r.say(ctx, msg.ChatID, "register.usage", map[string]any{"Prefix": r.cfg.BotPrefix})
		return
	}
	trophies, err := strconv.Atoi(args[0])
	if err != nil {
		r.say(ctx, msg.ChatID, "register.usage", map[string]any{"Prefix": r.cfg.BotPrefix})
		return
	}
	var brawler, country string
	if len(args) > 1 {
		brawler = args[1]
	}
	if len(args) > 2 {
		country = strings.Join(args[2:], " ")
	}

	p, err := r.players.Upsert(ctx, player.Player{
		ID:          msg.UserID,
		Username:    msg.Username,
		Trophies:    trophies,
		MainBrawler: brawler,
		Country:     country,
	})
	switch {
	case err == player.ErrTrophyRange:
		r.say(ctx, msg.ChatID, "register.bad_trophies", map[string]any{"Max": player.MaxTrophies})
	case err != nil:
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
	default:
		r.say(ctx, msg.ChatID, "register.done", map[string]any{
			"Trophies": p.Trophies,
			"Brawler":  orDash(p.MainBrawler),
			"Prefix":   r.cfg.BotPrefix,
		})
	}
}

func (r *router) handleProfile(ctx context.Context, msg *chatio.Message, args []string) {
	var p *player.Player
	var err error
	if len(args) > 0 {
		p, err = r.players.ByName(ctx, strings.Join(args, " "))
	} else {
		p, err = r.players.Get(ctx, msg.UserID)
	}
	if err == player.ErrNotFound {
		if len(args) > 0 {
			r.say(ctx, msg.ChatID, "profile.none_found", nil)
		} else {
			r.say(ctx, msg.ChatID, "common.not_registered", map[string]any{"Prefix": r.cfg.BotPrefix})
		}
		return
	}
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	card := playerCard(p)
	if len(args) == 0 {
		card = r.cat.MustRender("profile.header", nil) + "\n" + card
	}
	if p.PhotoRef != "" {
		if err := r.client.SendPhoto(ctx, msg.ChatID, p.PhotoRef, card); err == nil {
			return
		}
	}
	r.sendText(ctx, msg.ChatID, card)
}

func (r *router) handleSearch(ctx context.Context, msg *chatio.Message, args []string) {
	if len(args) == 0 {
		r.say(ctx, msg.ChatID, "profile.none_found", nil)
		return
	}
	r.handleProfile(ctx, msg, args)
}

func (r *router) handleFindAll(ctx context.Context, msg *chatio.Message) {
	all, err := r.players.All(ctx)
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	if len(all) == 0 {
		r.say(ctx, msg.ChatID, "profile.none_found", nil)
		return
	}
	var b strings.Builder
	b.WriteString("👥 Registered players:\n")
	for _, p := range all {
		fmt.Fprintf(&b, "• %s — 🏆 %d\n", p.Username, p.Trophies)
	}
	r.sendText(ctx, msg.ChatID, strings.TrimRight(b.String(), "\n"))
}

func (r *router) handleLeaderboard(ctx context.Context, msg *chatio.Message) {
	top, err := r.players.Leaderboard(ctx, 10, 0)
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	if len(top) == 0 {
		r.say(ctx, msg.ChatID, "profile.none_found", nil)
		return
	}
	var b strings.Builder
	b.WriteString("🏆 Leaderboard:\n")
	for i, p := range top {
		fmt.Fprintf(&b, "%d. %s — %d trophies (%dW/%dL)\n", i+1, p.Username, p.Trophies, p.Wins, p.Defeats)
	}
	r.sendText(ctx, msg.ChatID, strings.TrimRight(b.String(), "\n"))
}

func playerCard(p *player.Player) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s\n", p.Username)
	fmt.Fprintf(&b, "🏆 Trophies: %d\n", p.Trophies)
	fmt.Fprintf(&b, "⭐️ Main brawler: %s\n", orDash(p.MainBrawler))
	if p.Country != "" {
		fmt.Fprintf(&b, "🌍 Country: %s\n", p.Country)
	}
	fmt.Fprintf(&b, "⚔️ Matches: %d (%dW/%dL)", p.MatchesPlayed, p.Wins, p.Defeats)
	if p.TeamID != "" {
		b.WriteString("\n👥 In a team")
	}
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}

func teamCard(t *team.Team, names []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👥 %s\n", t.Name)
	fmt.Fprintf(&b, "Members (%d): %s", len(t.MemberIDs), strings.Join(names, ", "))
	return b.String()
}

// memberNames resolves roster ids to display names, falling back to the id
// for any record that went missing.
func (r *router) memberNames(ctx context.Context, ids []int64) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		p, err := r.players.Get(ctx, id)
		if err != nil {
			names = append(names, strconv.FormatInt(id, 10))
			continue
		}
		names = append(names, p.Username)
	}
	return names
}

func (r *router) handleNews(ctx context.Context, msg *chatio.Message) {
	items, err := r.repo.ListRecent(ctx, 10)
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	if len(items) == 0 {
		r.say(ctx, msg.ChatID, "news.empty", nil)
		return
	}
	var b strings.Builder
	b.WriteString("📰 Latest results:\n")
	for _, it := range items {
		icon := "⚔️"
		if it.Kind == "scrim" {
			icon = "🛡"
		}
		fmt.Fprintf(&b, "%s %s (%s)\n", icon, it.Headline, it.At.Format("Jan 2 15:04"))
	}
	r.sendText(ctx, msg.ChatID, strings.TrimRight(b.String(), "\n"))
}
