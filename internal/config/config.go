package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ChatBaseURL string
	ChatWSURL   string

	BotPrefix string

	RedisURL    string
	DatabaseURL string

	AdminIDs []int64

	// Matchmaking
	TrophyWindow    int
	SearchTTL       time.Duration
	SessionTTL      time.Duration
	ScrimRemindLead time.Duration

	MessageOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		TrophyWindow:    50,
		SearchTTL:       30 * time.Minute,
		SessionTTL:      24 * time.Hour,
		ScrimRemindLead: 5 * time.Minute,
	}

	cfg.ChatBaseURL = strings.TrimSpace(os.Getenv("CHAT_BASE_URL"))
	cfg.ChatWSURL = strings.TrimSpace(os.Getenv("CHAT_WS_URL"))
	cfg.BotPrefix = strings.TrimSpace(os.Getenv("BOT_PREFIX"))
	if cfg.BotPrefix == "" {
		cfg.BotPrefix = "/"
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessageOverrideDir = strings.TrimSpace(os.Getenv("MESSAGE_OVERRIDE_DIR"))

	if v := strings.TrimSpace(os.Getenv("ADMIN_IDS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			s := strings.TrimSpace(p)
			if s == "" {
				continue
			}
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, errors.New("ADMIN_IDS must be a comma-separated list of numeric ids")
			}
			cfg.AdminIDs = append(cfg.AdminIDs, id)
		}
	}

	if v := strings.TrimSpace(os.Getenv("TROPHY_WINDOW")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TrophyWindow = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SEARCH_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SearchTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SessionTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("SCRIM_REMIND_LEAD")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ScrimRemindLead = d
		}
	}

	if cfg.ChatBaseURL == "" {
		return nil, errors.New("CHAT_BASE_URL is required")
	}
	if cfg.ChatWSURL == "" {
		return nil, errors.New("CHAT_WS_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// IsAdmin reports whether id is in the configured admin list.
func (c *AppConfig) IsAdmin(id int64) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}
