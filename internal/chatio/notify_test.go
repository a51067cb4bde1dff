package chatio

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []int64
	fail map[int64]bool
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[chatID] {
		return errors.New("delivery refused")
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func (f *fakeSender) SendPhoto(_ context.Context, chatID int64, _, _ string) error {
	return f.SendText(context.Background(), chatID, "")
}

func TestBroadcastTally(t *testing.T) {
	s := &fakeSender{fail: map[int64]bool{2: true}}

	tally := Broadcast(context.Background(), s, []int64{1, 2, 3}, "hello")
	require.Equal(t, 2, tally.Sent)
	require.Equal(t, 1, tally.Failed)
	require.ElementsMatch(t, []int64{1, 3}, s.sent)
}

func TestBroadcastEmpty(t *testing.T) {
	s := &fakeSender{}
	tally := Broadcast(context.Background(), s, nil, "hello")
	require.Zero(t, tally.Sent)
	require.Zero(t, tally.Failed)
}
