package main

import (
	"context"
	"strings"
	"time"

	"github.com/brawlbase/scrim-bot/internal/chatio"
	"github.com/brawlbase/scrim-bot/internal/scrim"
	"github.com/brawlbase/scrim-bot/internal/team"
)

const clockLayout = "15:04"

func (r *router) handleScrimRequest(ctx context.Context, msg *chatio.Message, args []string) {
	if _, ok := r.identify(ctx, msg); !ok {
		return
	}
	if len(args) == 0 {
		r.say(ctx, msg.ChatID, "scrim.ask_opponent", nil)
		return
	}

	_, err := r.scrims.Request(ctx, msg.UserID, strings.Join(args, " "))
	switch {
	case err == team.ErrNotFound:
		// Either the caller is teamless or the opponent name resolved to
		// nothing; a teamless caller has no own-team record.
		if _, terr := r.teams.ByMember(ctx, msg.UserID); terr != nil {
			r.say(ctx, msg.ChatID, "scrim.need_team", nil)
		} else {
			r.say(ctx, msg.ChatID, "scrim.no_such_team", nil)
		}
		return
	case err == scrim.ErrSelfOpponent:
		r.say(ctx, msg.ChatID, "scrim.no_such_team", nil)
		return
	case err != nil:
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	r.say(ctx, msg.ChatID, "scrim.ask_time", nil)
}

// scrimTime consumes the creator's bare message as the proposed wall clock
// and fans the confirmation request out to both rosters.
func (r *router) scrimTime(ctx context.Context, msg *chatio.Message, s *scrim.Session, text string) {
	got, err := r.scrims.ProposeTime(ctx, s.ID, msg.UserID, text, time.Now())
	if err == scrim.ErrBadClock {
		r.say(ctx, msg.ChatID, "scrim.bad_time", nil)
		return
	}
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	data := map[string]any{
		"TeamA":  got.TeamAName,
		"TeamB":  got.TeamBName,
		"Time":   got.ScheduledAt.Format(clockLayout),
		"Prefix": r.cfg.BotPrefix,
	}
	for _, id := range got.RosterUnion() {
		r.say(ctx, id, "scrim.confirm_request", data)
	}
}

func (r *router) handleScrimConfirm(ctx context.Context, msg *chatio.Message) {
	if _, ok := r.identify(ctx, msg); !ok {
		return
	}
	s, err := r.scrims.ActiveForPlayer(ctx, msg.UserID)
	if err != nil {
		r.say(ctx, msg.ChatID, "team.not_found", nil)
		return
	}
	got, scheduled, err := r.scrims.Confirm(ctx, s.ID, msg.UserID)
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	r.say(ctx, msg.ChatID, "scrim.confirm_saved", nil)
	if !scheduled {
		return
	}
	data := map[string]any{
		"TeamA": got.TeamAName,
		"TeamB": got.TeamBName,
		"Time":  got.ScheduledAt.Format(clockLayout),
	}
	for _, id := range got.RosterUnion() {
		r.say(ctx, id, "scrim.all_confirmed", data)
	}
	r.announceOutside(ctx, got.RosterUnion(), "scrim.announce", data)
}

// scrimReminder is the OnRemind hook: prompt the creator for the room links
// shortly before the scheduled time.
func (r *router) scrimReminder(s *scrim.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	r.say(ctx, s.CreatorID, "scrim.remind_links", nil)
}

// scrimLinks consumes the creator's bare message as "<gameroom> <spectator>"
// and announces the room to both rosters.
func (r *router) scrimLinks(ctx context.Context, msg *chatio.Message, s *scrim.Session, text string) {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		r.say(ctx, msg.ChatID, "scrim.need_two_links", nil)
		return
	}
	got, err := r.scrims.SubmitLinks(ctx, s.ID, msg.UserID, parts[0], parts[1])
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	data := map[string]any{
		"Gameroom":  got.GameroomLink,
		"Spectator": got.SpectatorLink,
		"TeamA":     got.TeamAName,
		"TeamB":     got.TeamBName,
		"Time":      got.ScheduledAt.Format(clockLayout),
	}
	for _, id := range got.RosterUnion() {
		r.say(ctx, id, "scrim.room_info", data)
	}
	r.announceOutside(ctx, got.RosterUnion(), "scrim.spectate", data)
}

// announceOutside fans a rendered message out to every registered player not
// on the excluded list. Delivery is best effort.
func (r *router) announceOutside(ctx context.Context, exclude []int64, key string, data any) {
	all, err := r.players.All(ctx)
	if err != nil {
		return
	}
	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	ids := make([]int64, 0, len(all))
	for _, p := range all {
		if _, ok := skip[p.ID]; !ok {
			ids = append(ids, p.ID)
		}
	}
	chatio.Broadcast(ctx, r.client, ids, r.cat.MustRender(key, data))
}

func (r *router) handleScrimFinish(ctx context.Context, msg *chatio.Message) {
	s, err := r.scrims.ActiveForPlayer(ctx, msg.UserID)
	if err != nil {
		r.say(ctx, msg.ChatID, "team.not_found", nil)
		return
	}
	if _, err := r.scrims.Finish(ctx, s.ID, msg.UserID); err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	r.say(ctx, msg.ChatID, "scrim.ask_score", nil)
}

// scrimScore consumes the reporter's bare message as "A-B"; malformed input
// re-prompts without touching the session.
func (r *router) scrimScore(ctx context.Context, msg *chatio.Message, s *scrim.Session, text string) {
	_, err := r.scrims.SubmitScore(ctx, s.ID, msg.UserID, text)
	if err == scrim.ErrBadScore {
		r.say(ctx, msg.ChatID, "scrim.bad_score", nil)
		return
	}
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	r.say(ctx, msg.ChatID, "scrim.ask_screens", map[string]any{"Prefix": r.cfg.BotPrefix})
}

func (r *router) handleScrimDone(ctx context.Context, msg *chatio.Message) {
	s, err := r.scrims.ActiveForPlayer(ctx, msg.UserID)
	if err != nil {
		r.say(ctx, msg.ChatID, "team.not_found", nil)
		return
	}
	got, err := r.scrims.Done(ctx, s.ID, msg.UserID)
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	for _, id := range got.RosterUnion() {
		r.say(ctx, id, "scrim.settled", nil)
	}
}

func (r *router) handleScrimCancel(ctx context.Context, msg *chatio.Message) {
	s, err := r.scrims.ActiveForPlayer(ctx, msg.UserID)
	if err != nil {
		r.say(ctx, msg.ChatID, "team.not_found", nil)
		return
	}
	if _, err := r.scrims.Cancel(ctx, s.ID, msg.UserID); err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	for _, id := range s.RosterUnion() {
		r.say(ctx, id, "common.cancelled", nil)
	}
}
