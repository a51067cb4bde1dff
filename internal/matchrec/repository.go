package matchrec

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveRanked upserts a settled ranked match; replays of the same match id
// overwrite rather than duplicate.
func (r *Repository) SaveRanked(ctx context.Context, rec *RankedRecord) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}
	evidenceRaw, _ := json.Marshal(rec.Evidence)
	duration := rec.EndedAt.Sub(rec.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO ranked_matches (
	    match_id, mode, player_a, player_a_name, player_b, player_b_name,
	    winner_id, evidence, started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
	  ) ON CONFLICT (match_id) DO UPDATE SET
	    mode=EXCLUDED.mode,
	    player_a=EXCLUDED.player_a,
	    player_a_name=EXCLUDED.player_a_name,
	    player_b=EXCLUDED.player_b,
	    player_b_name=EXCLUDED.player_b_name,
	    winner_id=EXCLUDED.winner_id,
	    evidence=EXCLUDED.evidence,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		rec.MatchID, rec.Mode,
		rec.PlayerA, rec.PlayerAStr,
		rec.PlayerB, rec.PlayerBStr,
		rec.WinnerID, string(evidenceRaw),
		rec.StartedAt, rec.EndedAt, duration,
	)
	return err
}

// SaveScrim upserts a settled scrim.
func (r *Repository) SaveScrim(ctx context.Context, rec *ScrimRecord) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}
	linksRaw, _ := json.Marshal(rec.RoomLinks)
	evidenceRaw, _ := json.Marshal(rec.Evidence)
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	q := `INSERT INTO scrims (
	    scrim_id, team_a, team_a_name, team_b, team_b_name,
	    score_a, score_b, room_links, evidence, played_at, recorded_at
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
	  ) ON CONFLICT (scrim_id) DO UPDATE SET
	    team_a=EXCLUDED.team_a,
	    team_a_name=EXCLUDED.team_a_name,
	    team_b=EXCLUDED.team_b,
	    team_b_name=EXCLUDED.team_b_name,
	    score_a=EXCLUDED.score_a,
	    score_b=EXCLUDED.score_b,
	    room_links=EXCLUDED.room_links,
	    evidence=EXCLUDED.evidence,
	    played_at=EXCLUDED.played_at,
	    recorded_at=EXCLUDED.recorded_at`

	_, err := r.db.ExecContext(ctx, q,
		rec.ScrimID,
		rec.TeamA, rec.TeamAName,
		rec.TeamB, rec.TeamBName,
		rec.ScoreA, rec.ScoreB,
		string(linksRaw), string(evidenceRaw),
		rec.PlayedAt, recordedAt,
	)
	return err
}

// NewsItem is one line of the recent-results digest.
type NewsItem struct {
	Kind     string // "ranked" or "scrim"
	Headline string
	At       time.Time
}

// ListRecent returns the newest settled results across both tables.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]NewsItem, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	q := `SELECT kind, headline, at FROM (
	    SELECT 'ranked' AS kind,
	           player_a_name || ' vs ' || player_b_name AS headline,
	           ended_at AS at
	      FROM ranked_matches
	    UNION ALL
	    SELECT 'scrim' AS kind,
	           team_a_name || ' ' || score_a || ':' || score_b || ' ' || team_b_name AS headline,
	           played_at AS at
	      FROM scrims
	  ) u ORDER BY at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NewsItem
	for rows.Next() {
		var it NewsItem
		if err := rows.Scan(&it.Kind, &it.Headline, &it.At); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Counts returns totals for the admin stats view.
func (r *Repository) Counts(ctx context.Context) (ranked, scrims int64, err error) {
	if r == nil || r.db == nil {
		return 0, 0, nil
	}
	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ranked_matches`).Scan(&ranked); err != nil {
		return 0, 0, err
	}
	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scrims`).Scan(&scrims); err != nil {
		return 0, 0, err
	}
	return ranked, scrims, nil
}
