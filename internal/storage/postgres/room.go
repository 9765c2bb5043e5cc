package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Vasu1712/streamsync-backend/internal/models"
	"github.com/Vasu1712/streamsync-backend/internal/storage"
)

var _ storage.RoomStore = (*RoomStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	host          TEXT NOT NULL,
	movie         TEXT NOT NULL DEFAULT '',
	mode          TEXT NOT NULL DEFAULT 'public',
	tags          TEXT[] NOT NULL DEFAULT '{}',
	max_capacity  INTEGER NOT NULL DEFAULT 0,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	passcode_hash TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS room_participants (
	seq     BIGSERIAL,
	room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	PRIMARY KEY (room_id, user_id)
);
CREATE INDEX IF NOT EXISTS room_participants_user_idx ON room_participants (user_id);
`

const selectRoom = `
SELECT r.id, r.name, r.description, r.host, r.movie, r.mode, r.tags,
	COALESCE((SELECT array_agg(p.user_id ORDER BY p.seq) FROM room_participants p WHERE p.room_id = r.id), '{}'),
	r.max_capacity, r.is_active, r.passcode_hash, r.created_at, r.updated_at
FROM rooms r`

// RoomStore implements storage.RoomStore on PostgreSQL.
type RoomStore struct {
	db  *sql.DB
	log *zap.Logger
}

// NewRoomStore connects to dsn and creates the tables if needed.
func NewRoomStore(ctx context.Context, dsn string, log *zap.Logger) (*RoomStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Info("connected to postgres room store")
	return &RoomStore{db: db, log: log}, nil
}

// CreateRoom inserts the room and its initial participants in one
// transaction.
func (s *RoomStore) CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	r := *room
	storage.Prepare(&r, time.Now())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rooms (id, name, description, host, movie, mode, tags, max_capacity, is_active, passcode_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			r.ID, r.Name, r.Description, r.Host, r.Movie, string(r.Mode), pq.Array(r.Tags),
			r.MaxCapacity, r.IsActive, r.PasscodeHash, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert room: %w", err)
		}
		for _, userID := range r.Participants {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2) ON CONFLICT (room_id, user_id) DO NOTHING`,
				r.ID, userID); err != nil {
				return fmt.Errorf("insert participant %s: %w", userID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("room created", zap.String("room_id", r.ID), zap.String("host", r.Host))
	return s.GetRoom(ctx, r.ID)
}

// GetRoom retrieves a room by its ID.
func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	r, err := scanRoom(s.db.QueryRowContext(ctx, selectRoom+` WHERE r.id = $1`, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return r, nil
}

// DeleteRoom removes the room; participants go with it via ON DELETE CASCADE.
func (s *RoomStore) DeleteRoom(ctx context.Context, roomID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	if n == 0 {
		return storage.ErrRoomNotFound
	}
	s.log.Info("room deleted", zap.String("room_id", roomID))
	return nil
}

// UpdateRoomSettings applies the non-empty settings and bumps updated_at.
func (s *RoomStore) UpdateRoomSettings(ctx context.Context, roomID string, settings models.RoomSettings) (*models.Room, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET
			name        = COALESCE(NULLIF($2, ''), name),
			description = COALESCE(NULLIF($3, ''), description),
			mode        = COALESCE(NULLIF($4, ''), mode),
			updated_at  = NOW()
		WHERE id = $1`,
		roomID, settings.Name, settings.Description, string(settings.Mode))
	if err != nil {
		return nil, fmt.Errorf("update room %s: %w", roomID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("update room %s: %w", roomID, err)
	} else if n == 0 {
		return nil, storage.ErrRoomNotFound
	}
	return s.GetRoom(ctx, roomID)
}

// AddParticipant locks the room row so concurrent joins cannot exceed
// capacity.
func (s *RoomStore) AddParticipant(ctx context.Context, roomID, userID string) (*models.Room, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var capacity, count int
		err := tx.QueryRowContext(ctx, `SELECT max_capacity FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&capacity)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrRoomNotFound
		}
		if err != nil {
			return fmt.Errorf("lock room: %w", err)
		}

		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM room_participants WHERE room_id = $1 AND user_id = $2)`,
			roomID, userID).Scan(&exists); err != nil {
			return fmt.Errorf("check participant: %w", err)
		}
		if exists {
			return storage.ErrAlreadyParticipant
		}

		if capacity > 0 {
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM room_participants WHERE room_id = $1`, roomID).Scan(&count); err != nil {
				return fmt.Errorf("count participants: %w", err)
			}
			if count >= capacity {
				return storage.ErrRoomFull
			}
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2)`, roomID, userID); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE rooms SET updated_at = NOW() WHERE id = $1`, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetRoom(ctx, roomID)
}

// RemoveParticipant removes userID from the room.
func (s *RoomStore) RemoveParticipant(ctx context.Context, roomID, userID string) (*models.Room, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1)`, roomID).Scan(&exists); err != nil {
			return fmt.Errorf("check room: %w", err)
		}
		if !exists {
			return storage.ErrRoomNotFound
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2`, roomID, userID)
		if err != nil {
			return fmt.Errorf("delete participant: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrNotParticipant
		}
		_, err = tx.ExecContext(ctx, `UPDATE rooms SET updated_at = NOW() WHERE id = $1`, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetRoom(ctx, roomID)
}

// ListRoomsForUser retrieves every room userID hosts or has joined.
func (s *RoomStore) ListRoomsForUser(ctx context.Context, userID string) ([]*models.Room, error) {
	rows, err := s.db.QueryContext(ctx, selectRoom+`
		WHERE r.host = $1
		   OR EXISTS (SELECT 1 FROM room_participants p WHERE p.room_id = r.id AND p.user_id = $1)
		ORDER BY r.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms for %s: %w", userID, err)
	}
	defer rows.Close()

	rooms := []*models.Room{}
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

// Close closes the connection pool.
func (s *RoomStore) Close() error {
	return s.db.Close()
}

func (s *RoomStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (*models.Room, error) {
	var (
		r    models.Room
		mode string
	)
	err := row.Scan(
		&r.ID, &r.Name, &r.Description, &r.Host, &r.Movie, &mode, pq.Array(&r.Tags),
		pq.Array(&r.Participants),
		&r.MaxCapacity, &r.IsActive, &r.PasscodeHash, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Mode = models.RoomMode(mode)
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return &r, nil
}
