package chatio

import (
	"context"

	"github.com/brawlbase/scrim-bot/internal/obslog"
	"go.uber.org/zap"
)

// Sender is the narrow seam the coordinators use to reach participants.
// *Client satisfies it; tests substitute fakes.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, photoRef, caption string) error
}

// Tally reports per-recipient delivery of a broadcast.
type Tally struct {
	Sent   int
	Failed int
}

// Broadcast sends text to every recipient, best effort. Individual delivery
// failures are logged and counted, never returned: a participant with a
// blocked chat must not abort the workflow that notified them.
func Broadcast(ctx context.Context, s Sender, recipients []int64, text string) Tally {
	var t Tally
	for _, id := range recipients {
		if err := s.SendText(ctx, id, text); err != nil {
			t.Failed++
			obslog.L().Warn("broadcast_delivery_failed", zap.Int64("chat_id", id), zap.Error(err))
			continue
		}
		t.Sent++
	}
	return t
}
