package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/fitroom-server/internal/fanout"
	"github.com/vovakirdan/fitroom-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite. Change notification is
// delegated to a fanout.Broker.
type SQLiteStore struct {
	db     *sql.DB
	broker fanout.Broker
	log    *zerolog.Logger
	now    func() time.Time
}

// New opens dbPath, applies the schema and returns the store.
// A nil broker gets a private fanout.Local.
func New(dbPath string, broker fanout.Broker, logger *zerolog.Logger) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, broker, logger, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, broker fanout.Broker, logger *zerolog.Logger, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" on one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if broker == nil {
		broker = fanout.NewLocal()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &SQLiteStore{
		db:     db,
		broker: broker,
		log:    logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the database connection. The broker is owned by the caller.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const roomColumns = `id, code, capacity, activity, creator_id, status, closed_reason, version,
	COALESCE(idempotency_key, ''), created_at, updated_at`

// CreateRoom inserts a new room row.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *store.Room) (*store.Room, error) {
	created := room.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	now := s.now()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	created.UpdatedAt = now
	created.Version = 1
	if created.Status == "" {
		created.Status = store.RoomStatusActive
	}

	var idempotencyKey sql.NullString
	if created.IdempotencyKey != "" {
		idempotencyKey = sql.NullString{String: created.IdempotencyKey, Valid: true}
	}

	query := `
		INSERT INTO rooms (id, code, capacity, activity, creator_id, status, closed_reason, version,
			idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		created.ID,
		created.Code,
		created.Capacity,
		created.Activity,
		created.CreatorID,
		created.Status,
		created.ClosedReason,
		created.Version,
		idempotencyKey,
		created.CreatedAt,
		created.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}

	return s.GetRoom(ctx, created.ID)
}

// GetRoom retrieves a room and its roster by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*store.Room, error) {
	return loadRoom(ctx, s.db, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
}

// FindActiveByCode retrieves the live room owning code.
func (s *SQLiteStore) FindActiveByCode(ctx context.Context, code string) (*store.Room, error) {
	return loadRoom(ctx, s.db, `SELECT `+roomColumns+` FROM rooms WHERE code = ? AND status <> 'ended'`, code)
}

// FindByIdempotencyKey retrieves the room created by creatorID with key.
func (s *SQLiteStore) FindByIdempotencyKey(ctx context.Context, creatorID, key string) (*store.Room, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	return loadRoom(ctx, s.db,
		`SELECT `+roomColumns+` FROM rooms WHERE creator_id = ? AND idempotency_key = ?`,
		creatorID, key)
}

// AppendParticipant inserts p with a single conditional INSERT so that two
// concurrent joiners can never both pass the capacity check.
func (s *SQLiteStore) AppendParticipant(ctx context.Context, roomID string, p store.Participant, maxCount int) (*store.Room, error) {
	if p.JoinedAt.IsZero() {
		p.JoinedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var listed int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_participants WHERE room_id = ? AND user_id = ?`,
		roomID, p.UserID,
	).Scan(&listed)
	if err != nil {
		return nil, fmt.Errorf("query participant: %w", err)
	}
	if listed > 0 && p.UserID != "" {
		room, loadErr := s.getRoomTx(ctx, tx, roomID)
		if loadErr != nil {
			return nil, loadErr
		}
		if !room.Status.Live() {
			return nil, store.ErrNotFound
		}
		return room, nil
	}

	query := `
		INSERT INTO room_participants (room_id, seq, user_id, display_name, score, joined_at)
		SELECT ?, COALESCE((SELECT MAX(seq) FROM room_participants WHERE room_id = ?), 0) + 1, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM rooms WHERE id = ? AND status <> 'ended')
		  AND (SELECT COUNT(*) FROM room_participants WHERE room_id = ?) < ?
		  AND (SELECT COUNT(*) FROM room_participants WHERE room_id = ?) < (SELECT capacity FROM rooms WHERE id = ?)
	`
	result, err := tx.ExecContext(ctx, query,
		roomID, roomID, p.UserID, p.DisplayName, p.Score, p.JoinedAt,
		roomID,
		roomID, maxCount,
		roomID, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert participant: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if inserted == 0 {
		room, loadErr := s.getRoomTx(ctx, tx, roomID)
		if errors.Is(loadErr, store.ErrNotFound) || (loadErr == nil && !room.Status.Live()) {
			return nil, store.ErrNotFound
		}
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, store.ErrCapacity
	}

	if err := s.bumpVersion(ctx, tx, roomID); err != nil {
		return nil, err
	}

	room, err := s.getRoomTx(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.publish(ctx, room)
	return room, nil
}

// UpdateRoom applies patch inside a transaction. ExpectedVersion is checked
// against the row read in the same transaction.
func (s *SQLiteStore) UpdateRoom(ctx context.Context, roomID string, patch store.Patch) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	room, err := s.getRoomTx(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	if err := patch.Apply(room); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE rooms
		SET status = ?, closed_reason = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, room.Status, room.ClosedReason, s.now(), roomID, room.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("update room: %w", err)
	}
	if rows, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	} else if rows == 0 {
		return nil, store.ErrVersionMismatch
	}

	if patch.ClearRoster || patch.Participants != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM room_participants WHERE room_id = ?`, roomID); err != nil {
			return nil, fmt.Errorf("clear participants: %w", err)
		}
		insert := `
			INSERT INTO room_participants (room_id, seq, user_id, display_name, score, joined_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		for i, p := range room.Participants {
			if _, err := tx.ExecContext(ctx, insert, roomID, i+1, p.UserID, p.DisplayName, p.Score, p.JoinedAt); err != nil {
				return nil, fmt.Errorf("insert participant %s: %w", p.UserID, err)
			}
		}
	}

	updated, err := s.getRoomTx(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.publish(ctx, updated)
	return updated, nil
}

// Subscribe registers fn with the broker.
func (s *SQLiteStore) Subscribe(ctx context.Context, roomID string, fn func(*store.Room)) (store.Unsubscribe, error) {
	return s.broker.Subscribe(ctx, roomID, fn)
}

func (s *SQLiteStore) bumpVersion(ctx context.Context, tx *sql.Tx, roomID string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE rooms SET version = version + 1, updated_at = ? WHERE id = ?`,
		s.now(), roomID,
	); err != nil {
		return fmt.Errorf("bump room version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) getRoomTx(ctx context.Context, tx *sql.Tx, id string) (*store.Room, error) {
	return loadRoom(ctx, tx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
}

// publish runs after commit; a broker failure leaves the row committed and
// subscribers catch up on the next mutation.
func (s *SQLiteStore) publish(ctx context.Context, room *store.Room) {
	if err := s.broker.Publish(context.WithoutCancel(ctx), room); err != nil && !errors.Is(err, fanout.ErrClosed) {
		s.log.Warn().Err(err).Str("room_id", room.ID).Int64("version", room.Version).Msg("failed to publish room update")
	}
}

func loadRoom(ctx context.Context, q querier, query string, args ...any) (*store.Room, error) {
	var room store.Room
	err := q.QueryRowContext(ctx, query, args...).Scan(
		&room.ID,
		&room.Code,
		&room.Capacity,
		&room.Activity,
		&room.CreatorID,
		&room.Status,
		&room.ClosedReason,
		&room.Version,
		&room.IdempotencyKey,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT user_id, display_name, score, joined_at
		FROM room_participants
		WHERE room_id = ?
		ORDER BY seq ASC
	`, room.ID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	room.Participants = []store.Participant{}
	for rows.Next() {
		var p store.Participant
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Score, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		room.Participants = append(room.Participants, p)
	}

	return &room, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

var _ store.Store = (*SQLiteStore)(nil)
