package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	cat, err := msgcat.New(cfg.MessageOverrideDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opts)
	pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pctx).Err(); err != nil {
		pcancel()
		log.Fatalf("redis connect error: %v", err)
	}
	pcancel()

	// Durable match records are optional; without a database the bot still
	// runs, it just keeps no history.
	var repo *matchrec.Repository
	var rec matchrec.Recorder
	if cfg.DatabaseURL != "" {
		repo, err = matchrec.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("match repository init error: %v", err)
		}
		rec = repo
	}

	players := player.NewStore(rdb)
	teams := team.NewStore(rdb, players)
	friendlies := friendly.NewManager(rdb, players, cfg.SessionTTL)
	rankedMgr := ranked.NewManager(rdb, players, rec, cfg.SearchTTL)

	reminders, err := scrim.NewReminders()
	if err != nil {
		log.Fatalf("reminder scheduler init error: %v", err)
	}
	scrims := scrim.NewManager(rdb, players, teams, rec, reminders, cfg.ScrimRemindLead)

	tournaments := tournament.NewStore(rdb, teams)

	client := chatio.NewClient(cfg.ChatBaseURL)

	rt := &router{
		cfg:         cfg,
		cat:         cat,
		client:      client,
		players:     players,
		teams:       teams,
		friendlies:  friendlies,
		ranked:      rankedMgr,
		scrims:      scrims,
		tournaments: tournaments,
		repo:        repo,
	}
	scrims.OnRemind = rt.scrimReminder

	ws := chatio.NewWebSocket(cfg.ChatWSURL, 5, time.Second)
	ws.OnStateChange(func(state chatio.WebSocketState) {
		obslog.L().Info("ws_state", zap.String("state", string(state)))
	})
	ws.OnMessage(func(msg *chatio.Message) {
		if msg == nil {
			return
		}
		// Keep the WS read loop free.
		go rt.Handle(msg)
	})

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ws.Connect(cctx); err != nil {
		cancel()
		log.Fatalf("ws connect error: %v", err)
	}
	cancel()
	obslog.L().Info("bot_started", zap.String("prefix", cfg.BotPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	_ = ws.Close(context.Background())
	_ = reminders.Shutdown()
	_ = repo.Close()
	_ = rdb.Close()
	_ = obslog.L().Sync()
}
