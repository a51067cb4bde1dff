package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brawlbase/scrim-bot/internal/chatio"
)

func main() {
	baseURL := os.Getenv("CHAT_BASE_URL")
	wsURL := os.Getenv("CHAT_WS_URL")
	authToken := os.Getenv("CHAT_AUTH_TOKEN")

	if baseURL == "" {
		log.Fatal("CHAT_BASE_URL is required")
	}

	client := chatio.NewClient(baseURL, chatio.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := client.Health(ctx)
	if err != nil {
		log.Printf("/health error: %v", err)
	} else {
		log.Printf("/health ok: status=%s uptime=%d", health.Status, health.Uptime)
	}

	if wsURL == "" {
		log.Println("CHAT_WS_URL not set; skipping WS check")
		return
	}

	ws := chatio.NewWebSocket(wsURL, 5, time.Second)
	ws.SetAuthToken(authToken)
	ws.OnStateChange(func(state chatio.WebSocketState) {
		log.Printf("WS state: %s", state)
	})
	ws.OnMessage(func(msg *chatio.Message) {
		fmt.Printf("WS msg chat=%d user=%d text=%q\n", msg.ChatID, msg.UserID, msg.Text)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	// Observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = ws.Close(context.Background())
}
