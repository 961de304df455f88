package sqlite

import (
	"database/sql"
	"fmt"
)

// schema keeps live room codes unique through a partial index; ended rooms
// release their code.
const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id              TEXT PRIMARY KEY,
	code            TEXT NOT NULL,
	capacity        INTEGER NOT NULL CHECK (capacity > 0),
	activity        TEXT NOT NULL,
	creator_id      TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'active',
	closed_reason   TEXT NOT NULL DEFAULT '',
	version         INTEGER NOT NULL DEFAULT 1,
	idempotency_key TEXT,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_rooms_live_code
	ON rooms(code) WHERE status <> 'ended';

CREATE UNIQUE INDEX IF NOT EXISTS idx_rooms_idempotency
	ON rooms(creator_id, idempotency_key) WHERE idempotency_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS room_participants (
	room_id      TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	user_id      TEXT NOT NULL,
	display_name TEXT NOT NULL,
	score        INTEGER NOT NULL DEFAULT 0,
	joined_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (room_id, seq),
	FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_room_participants_user
	ON room_participants(room_id, user_id);
`

// Migrate applies the schema. It is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
