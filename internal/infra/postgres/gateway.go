package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizroom/internal/domain"
)

// Gateway is the Postgres persistence gateway for rooms, players, answers and
// session snapshots.
type Gateway struct {
	pool *pgxpool.Pool
}

func NewGateway(pool *pgxpool.Pool) *Gateway {
	return &Gateway{pool: pool}
}

const roomColumns = `id, quiz_id, COALESCE(host_id, ''), is_active, current_question, started_at, created_at`

func scanRoom(row pgx.Row) (domain.Room, error) {
	var room domain.Room
	err := row.Scan(&room.Code, &room.QuizID, &room.HostID, &room.Active, &room.CurrentQuestion, &room.StartedAt, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, err
}

func (g *Gateway) CreateRoom(ctx context.Context, room domain.Room) error {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO rooms (id, quiz_id, host_id, is_active, created_at) VALUES ($1, $2, $3, $4, $5)`,
		room.Code, room.QuizID, room.HostID, room.Active, room.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (g *Gateway) ActiveRoomForQuiz(ctx context.Context, quizID int64) (domain.Room, error) {
	room, err := scanRoom(g.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE quiz_id = $1 AND is_active ORDER BY created_at DESC LIMIT 1`, quizID))
	if err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		return domain.Room{}, fmt.Errorf("active room: %w", err)
	}
	return room, err
}

func (g *Gateway) SetRoomHost(ctx context.Context, code, hostID string) error {
	return g.execRoom(ctx, `UPDATE rooms SET host_id = $2 WHERE id = $1`, code, hostID)
}

func (g *Gateway) RoomInfo(ctx context.Context, code string) (domain.Room, error) {
	room, err := scanRoom(g.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, code))
	if err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		return domain.Room{}, fmt.Errorf("room info: %w", err)
	}
	return room, err
}

func (g *Gateway) SetRoomActive(ctx context.Context, code string, active bool) error {
	return g.execRoom(ctx, `UPDATE rooms SET is_active = $2 WHERE id = $1`, code, active)
}

func (g *Gateway) MarkRoomStarted(ctx context.Context, code string, startedAt time.Time) error {
	return g.execRoom(ctx,
		`UPDATE rooms SET is_active = TRUE, current_question = 0, started_at = $2 WHERE id = $1`, code, startedAt)
}

func (g *Gateway) SetCurrentQuestion(ctx context.Context, code string, index int) error {
	return g.execRoom(ctx, `UPDATE rooms SET current_question = $2 WHERE id = $1`, code, index)
}

func (g *Gateway) execRoom(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := g.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

const playerColumns = `id, room_id, player_name, COALESCE(connection_id, ''), score, joined_at`

func scanPlayer(row pgx.Row) (domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.ID, &p.RoomCode, &p.Name, &p.ConnectionID, &p.Score, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return p, err
}

func (g *Gateway) PlayerByConnection(ctx context.Context, connID string) (domain.Player, error) {
	p, err := scanPlayer(g.pool.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE connection_id = $1 ORDER BY id DESC LIMIT 1`, connID))
	if err != nil && !errors.Is(err, domain.ErrPlayerNotFound) {
		return domain.Player{}, fmt.Errorf("player by connection: %w", err)
	}
	return p, err
}

// GetOrCreatePlayer reactivates a disconnected player of the room with the
// same name, or inserts a new one.
func (g *Gateway) GetOrCreatePlayer(ctx context.Context, code, name, connID string) (domain.Player, error) {
	p, err := scanPlayer(g.pool.QueryRow(ctx,
		`UPDATE players SET connection_id = $3
		 WHERE id = (
		     SELECT id FROM players
		     WHERE room_id = $1 AND player_name = $2 AND connection_id IS NULL
		     ORDER BY id LIMIT 1
		 )
		 RETURNING `+playerColumns, code, name, connID))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		return domain.Player{}, fmt.Errorf("reactivate player: %w", err)
	}

	p, err = scanPlayer(g.pool.QueryRow(ctx,
		`INSERT INTO players (room_id, player_name, connection_id) VALUES ($1, $2, $3) RETURNING `+playerColumns,
		code, name, connID))
	if err != nil {
		return domain.Player{}, fmt.Errorf("insert player: %w", err)
	}
	return p, nil
}

func (g *Gateway) UpdatePlayerConnection(ctx context.Context, connID, code, name string) (domain.Player, error) {
	p, err := scanPlayer(g.pool.QueryRow(ctx,
		`UPDATE players
		 SET room_id = COALESCE(NULLIF($2, ''), room_id),
		     player_name = COALESCE(NULLIF($3, ''), player_name)
		 WHERE connection_id = $1
		 RETURNING `+playerColumns, connID, code, name))
	if err != nil && !errors.Is(err, domain.ErrPlayerNotFound) {
		return domain.Player{}, fmt.Errorf("update player connection: %w", err)
	}
	return p, err
}

func (g *Gateway) ClearPlayerConnection(ctx context.Context, connID string) (domain.Player, error) {
	p, err := scanPlayer(g.pool.QueryRow(ctx,
		`UPDATE players SET connection_id = NULL WHERE connection_id = $1 RETURNING `+playerColumns, connID))
	if err != nil && !errors.Is(err, domain.ErrPlayerNotFound) {
		return domain.Player{}, fmt.Errorf("clear player connection: %w", err)
	}
	return p, err
}

func (g *Gateway) ListPlayers(ctx context.Context, code string, activeOnly bool) ([]domain.Player, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT `+playerColumns+` FROM players
		 WHERE room_id = $1 AND ($2 = FALSE OR connection_id IS NOT NULL)
		 ORDER BY score DESC, id ASC`, code, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	players := make([]domain.Player, 0)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (g *Gateway) AddScore(ctx context.Context, playerID int64, points int) (int, error) {
	var total int
	err := g.pool.QueryRow(ctx,
		`UPDATE players SET score = score + $2 WHERE id = $1 RETURNING score`, playerID, points).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrPlayerNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("add score: %w", err)
	}
	return total, nil
}

func (g *Gateway) RecordAnswer(ctx context.Context, a domain.Answer) error {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO answers (room_id, question_id, player_id, option_id, is_correct, time_taken, answered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.RoomCode, a.QuestionID, a.PlayerID, a.OptionID, a.Correct, a.TimeTaken, a.AnsweredAt)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (g *Gateway) SessionExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := g.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quiz_sessions WHERE room_id = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("session exists: %w", err)
	}
	return exists, nil
}

// CreateSessionSnapshot writes the session row and its leaderboard in one
// transaction. It relies on the unique room_id constraint, so a racing second
// insert reports domain.ErrSessionExists instead of a duplicate row.
func (g *Gateway) CreateSessionSnapshot(ctx context.Context, s domain.SessionSnapshot) (int64, error) {
	var id int64
	err := g.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO quiz_sessions (room_id, quiz_id, host_id, player_count, started_at, ended_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (room_id) DO NOTHING
			 RETURNING id`,
			s.RoomCode, s.QuizID, s.HostID, s.PlayerCount, s.StartedAt, s.EndedAt).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrSessionExists
		}
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return insertLeaderboard(ctx, tx, id, s.Leaderboard)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insertLeaderboard(ctx context.Context, tx pgx.Tx, sessionID int64, entries []domain.LeaderboardEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO session_leaderboards (session_id, player_id, player_name, score, rank) VALUES ($1, $2, $3, $4, $5)`,
			sessionID, e.PlayerID, e.PlayerName, e.Score, e.Rank)
	}
	results := tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert leaderboard entry: %w", err)
		}
	}
	return results.Close()
}

// SessionLeaderboard returns the persisted leaderboard of a room's session.
func (g *Gateway) SessionLeaderboard(ctx context.Context, code string) ([]domain.LeaderboardEntry, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT COALESCE(l.player_id, 0), l.player_name, l.score, l.rank
		 FROM session_leaderboards l JOIN quiz_sessions s ON s.id = l.session_id
		 WHERE s.room_id = $1 ORDER BY l.rank`, code)
	if err != nil {
		return nil, fmt.Errorf("session leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0)
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.PlayerID, &e.PlayerName, &e.Score, &e.Rank); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
