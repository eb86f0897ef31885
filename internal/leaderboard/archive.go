// Package leaderboard persists final session standings. Two finalizer
// implementations are provided: a Postgres archive and an HTTP client
// for deployments where a separate results service owns the table.
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bananatrade/internal/game"
)

// Archive writes closing standings into Postgres.
type Archive struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewArchive(pool *pgxpool.Pool, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{pool: pool, log: logger}
}

func (a *Archive) EnsureSchema(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS standings (
			session_id    text        NOT NULL,
			rank          int         NOT NULL,
			player_id     text        NOT NULL,
			display_name  text        NOT NULL,
			usd_micros    bigint      NOT NULL,
			coin_units    bigint      NOT NULL,
			wealth_micros bigint      NOT NULL,
			ended_at      timestamptz NOT NULL,
			PRIMARY KEY (session_id, player_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure standings schema: %w", err)
	}
	return nil
}

// Finalize inserts one row per player. ON CONFLICT DO NOTHING keeps a
// replayed finalize from rewriting an archived result.
func (a *Archive) Finalize(ctx context.Context, rec game.FinalizeRecord) error {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, st := range rec.Standings {
		_, err := tx.Exec(ctx, `
			INSERT INTO standings
			    (session_id, rank, player_id, display_name, usd_micros, coin_units, wealth_micros, ended_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (session_id, player_id) DO NOTHING
		`, rec.SessionID, st.Rank, st.PlayerID, st.DisplayName, st.UsdMicros, st.CoinUnits, st.WealthMicros, rec.EndedAt)
		if err != nil {
			return fmt.Errorf("archive standing: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	a.log.Info("standings archived", "session_id", rec.SessionID, "players", len(rec.Standings))
	return nil
}

// Top returns the archived rows for one session, best rank first.
func (a *Archive) Top(ctx context.Context, sessionID string) ([]game.Standing, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT rank, player_id, display_name, usd_micros, coin_units, wealth_micros
		FROM standings
		WHERE session_id = $1
		ORDER BY rank
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Standing
	for rows.Next() {
		var st game.Standing
		if err := rows.Scan(&st.Rank, &st.PlayerID, &st.DisplayName, &st.UsdMicros, &st.CoinUnits, &st.WealthMicros); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
