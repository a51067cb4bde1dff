package main

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/brawlbase/scrim-bot/internal/chatio"
	"github.com/brawlbase/scrim-bot/internal/friendly"
	"github.com/brawlbase/scrim-bot/internal/obslog"
	"github.com/brawlbase/scrim-bot/internal/ranked"
)

func (r *router) handleFindMatch(ctx context.Context, msg *chatio.Message, args []string) {
	p, ok := r.identify(ctx, msg)
	if !ok {
		return
	}
	if len(args) == 0 || !ranked.ValidMode(args[0]) {
		r.say(ctx, msg.ChatID, "ranked.choose_mode", map[string]any{"Prefix": r.cfg.BotPrefix})
		return
	}
	mode := args[0]

	mt, err := r.ranked.Find(ctx, msg.UserID, mode)
	switch {
	case err == ranked.ErrSearchInProgress:
		r.say(ctx, msg.ChatID, "ranked.already_searching", nil)
		return
	case err != nil:
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	r.say(ctx, msg.ChatID, "ranked.searching", map[string]any{
		"Mode":   mode,
		"ID":     mt.ID,
		"Prefix": r.cfg.BotPrefix,
	})

	// With no other search open, point at the closest opponent by trophies.
	open, err := r.ranked.Open(ctx, mode)
	if err != nil || len(open) > 1 {
		return
	}
	if opp, err := r.players.FindOpponent(ctx, msg.UserID, p.Trophies, r.cfg.TrophyWindow); err == nil {
		r.say(ctx, msg.ChatID, "ranked.suggestion", map[string]any{
			"Name":     opp.Username,
			"Trophies": opp.Trophies,
		})
	}
}

func (r *router) handleJoinMatch(ctx context.Context, msg *chatio.Message, args []string) {
	if _, ok := r.identify(ctx, msg); !ok {
		return
	}
	if len(args) == 0 {
		r.listOpenMatches(ctx, msg)
		return
	}

	mt, err := r.ranked.Claim(ctx, args[0], msg.UserID)
	switch {
	case err == ranked.ErrNoLongerAvailable || err == ranked.ErrNotFound || err == ranked.ErrSelfClaim:
		r.say(ctx, msg.ChatID, "ranked.not_available", nil)
		return
	case err == ranked.ErrSearchInProgress:
		r.say(ctx, msg.ChatID, "ranked.already_searching", nil)
		return
	case err != nil:
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}

	data := map[string]any{
		"A":      mt.CreatorName,
		"B":      mt.OpponentName,
		"Mode":   mt.Mode,
		"Prefix": r.cfg.BotPrefix,
	}
	r.say(ctx, msg.ChatID, "ranked.claimed", data)
	if msg.ChatID != mt.CreatorID {
		r.say(ctx, mt.CreatorID, "ranked.claimed", data)
	}
}

func (r *router) listOpenMatches(ctx context.Context, msg *chatio.Message) {
	open, err := r.ranked.Open(ctx, "")
	if err != nil {
		r.say(ctx, msg.ChatID, "common.service_unavailable", nil)
		return
	}
	if len(open) == 0 {
		r.say(ctx, msg.ChatID, "ranked.not_available", nil)
		return
	}
	var b strings.Builder
	b.WriteString("🔎 Open searches:\n")
	for _, mt := range open {
		b.WriteString("• " + mt.CreatorName + " (" + mt.Mode + ") — " + r.cfg.BotPrefix + "join " + mt.ID + "\n")
	}
	r.sendText(ctx, msg.ChatID, strings.TrimRight(b.String(), "\n"))
}

func (r *router) handleResult(ctx context.Context, msg *chatio.Message, args []string) {
	if _, ok := r.identify(ctx, msg); !ok {
		return
	}
	if len(args) == 0 {
		r.say(ctx, msg.ChatID, "ranked.result_usage", map[string]any{"Prefix": r.cfg.BotPrefix})
		return
	}
	mt, err := r.ranked.Active(ctx, msg.UserID)
	if err != nil {
		r.say(ctx, msg.ChatID, "ranked.not_available", nil)
		return
	}
	_, err = r.ranked.Report(ctx, mt.ID, msg.UserID, strings.ToLower(args[0]))
	switch {
	case err == ranked.ErrInvalidResult:
		r.say(ctx, msg.ChatID, "ranked.result_usage", map[string]any{"Prefix": r.cfg.BotPrefix})
	case err != nil:
		r.say(ctx, msg.ChatID, "ranked.not_available", nil)
	default:
		r.say(ctx, msg.ChatID, "ranked.result_saved", nil)
	}
}

func (r *router) rankedEvidence(ctx context.Context, msg *chatio.Message, mt *ranked.Match) {
	got, err := r.ranked.SubmitEvidence(ctx, mt.ID, msg.UserID, msg.PhotoRef)
	if err != nil {
		r.say(ctx, msg.ChatID, "ranked.not_available", nil)
		return
	}
	if got.Status == ranked.StatusFinished {
		for _, id := range []int64{got.CreatorID, got.OpponentID} {
			r.say(ctx, id, "ranked.settled", nil)
		}
		return
	}
	r.say(ctx, msg.ChatID, "ranked.result_saved", nil)
}

func (r *router) handleFriendly(ctx context.Context, msg *chatio.Message, args []string) {
	if _, ok := r.identify(ctx, msg); !ok {
		return
	}
	if len(args) == 0 {
		r.say(ctx, msg.ChatID, "ranked.choose_mode", map[string]any{"Prefix": r.cfg.BotPrefix})
		return
	}

	switch strings.ToLower(args[0]) {
	case "manual":
		r.friendlyInvites(ctx, msg, args[1:])
	case "all":
		s, recipients, err := r.friendlies.ChooseInviteMode(ctx, msg.UserID, friendly.InviteAll)
		if err != nil {
			r.say(ctx, msg.ChatID, "friendly.gone", nil)
			return
		}
		ids := make([]int64, 0, len(recipients))
		for _, p := range recipients {
			ids = append(ids, p.ID)
		}
		tally := chatio.Broadcast(ctx, r.client, ids,
			r.cat.MustRender("friendly.invited", nil)+"\n"+
				s.CreatorName+" is looking for "+s.Mode+" players. Reply "+r.cfg.BotPrefix+"accept "+s.CreatorName)
		obslog.L().Info("friendly_fanout", zap.Int64("creator", msg.UserID), zap.Int("sent", tally.Sent), zap.Int("failed", tally.Failed))
		r.say(ctx, msg.ChatID, "friendly.invited", nil)
	default:
		_, err := r.friendlies.Create(ctx, msg.UserID, strings.ToLower(args[0]))
		switch {
		case err == friendly.ErrSessionExists:
			r.say(ctx, msg.ChatID, "ranked.already_searching", nil)
		case err != nil:
			r.say(ctx, msg.ChatID, "ranked.choose_mode", map[string]any{"Prefix": r.cfg.BotPrefix})
		default:
			r.say(ctx, msg.ChatID, "friendly.choose_invite", map[string]any{"Prefix": r.cfg.BotPrefix})
		}
	}
}

// friendlyInvites handles the manual handle list, both from the command
// form and from a bare follow-up message.
func (r *router) friendlyInvites(ctx context.Context, msg *chatio.Message, handles []string) {
	if s, err := r.friendlies.Get(ctx, msg.UserID); err == nil && s.Status == friendly.StatusProposing {
		if _, _, err := r.friendlies.ChooseInviteMode(ctx, msg.UserID, friendly.InviteManual); err != nil {
			r.say(ctx, msg.ChatID, "friendly.gone", nil)
			return
		}
	}
	s, invitees, err := r.friendlies.InviteManual(ctx, msg.UserID, handles)
	switch {
	case errors.Is(err, friendly.ErrUnknownHandle):
		name := strings.TrimSpace(strings.TrimPrefix(err.Error(), friendly.ErrUnknownHandle.Error()+":"))
		r.say(ctx, msg.ChatID, "friendly.invite_unknown", map[string]any{"Name": name})
		return
	case err != nil:
		r.say(ctx, msg.ChatID, "friendly.gone", nil)
		return
	}
	for _, p := range invitees {
		r.sendText(ctx, p.ID, s.CreatorName+" invited you to a "+s.Mode+" friendly. Reply "+r.cfg.BotPrefix+"accept "+s.CreatorName)
	}
	r.say(ctx, msg.ChatID, "friendly.invited", nil)
}

func (r *router) handleAcceptFriendly(ctx context.Context, msg *chatio.Message, args []string) {
	if _, ok := r.identify(ctx, msg); !ok {
		return
	}
	if len(args) == 0 {
		r.say(ctx, msg.ChatID, "friendly.gone", nil)
		return
	}
	creator, err := r.players.ByName(ctx, strings.Join(args, " "))
	if err != nil {
		r.say(ctx, msg.ChatID, "friendly.gone", nil)
		return
	}

	s, quorum, err := r.friendlies.Join(ctx, creator.ID, msg.UserID)
	switch {
	case err == friendly.ErrRoomFull || err == friendly.ErrBadState:
		r.say(ctx, msg.ChatID, "friendly.join_full", nil)
		return
	case err == friendly.ErrAlreadyJoined:
		r.say(ctx, msg.ChatID, "friendly.joined", nil)
		return
	case err != nil:
		r.say(ctx, msg.ChatID, "friendly.gone", nil)
		return
	}
	r.say(ctx, msg.ChatID, "friendly.joined", nil)
	if quorum {
		r.say(ctx, s.CreatorID, "friendly.quorum", map[string]any{
			"Names": strings.Join(r.memberNames(ctx, s.JoinedIDs), ", "),
		})
	}
}

// friendlyLink consumes the creator's next message as the pending room link
// and fans it out to everyone joined.
func (r *router) friendlyLink(ctx context.Context, msg *chatio.Message, link string) {
	s, err := r.friendlies.SubmitLink(ctx, msg.UserID, link)
	if err != nil {
		r.say(ctx, msg.ChatID, "friendly.gone", nil)
		return
	}
	key := "friendly.voice_sent"
	if s.Status == friendly.StatusClosed {
		key = "friendly.game_sent"
	}
	for _, id := range s.JoinedIDs {
		r.say(ctx, id, key, map[string]any{"Link": link})
	}
	if s.Status != friendly.StatusClosed {
		r.say(ctx, msg.ChatID, "friendly.ask_game_link", nil)
	}
}
