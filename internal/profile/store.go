package profile

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-input/internal/logging"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// ErrNotFound is returned when a version or player has no stored row.
var ErrNotFound = errors.New("profile not found")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS phenotype_versions (
	version_id    TEXT PRIMARY KEY,
	player_id     TEXT NOT NULL,
	parent_id     TEXT,
	epoch         INTEGER NOT NULL,
	phenotype     BLOB NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS phenotype_versions_player
	ON phenotype_versions (player_id, created_at);

CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id    TEXT NOT NULL,
	player_id     TEXT,
	session_id    TEXT,
	trigger_type  TEXT NOT NULL,
	style         TEXT,
	record_json   TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active_profile (
	player_id     TEXT PRIMARY KEY,
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES phenotype_versions(version_id)
);
`

// #endregion schema

// #region types
// Version is one stored phenotype of a player.
type Version struct {
	VersionID string
	PlayerID  string
	ParentID  string
	Epoch     uint64
	CreatedAt time.Time
	Phenotype phenotype.Phenotype
	// Err is set when the stored bytes could not be restored; Phenotype
	// then holds the neutral default.
	Err error
}

// Store persists per-player phenotype versions in SQLite. It sits outside
// the real-time path: sessions load once at start and save on commit.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// #endregion types

// #region constructor
// Open opens a SQLite database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{
		db:     db,
		logger: logging.New("profile"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for the provenance writer.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region save
// Save stores p as a version of playerID and makes it the active profile.
// A phenotype without a VersionID (the neutral default at first session)
// is assigned one. Saving an already stored version only moves the
// active pointer.
func (s *Store) Save(playerID string, p phenotype.Phenotype) (phenotype.Phenotype, error) {
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("save %s: %w", playerID, err)
	}
	if p.VersionID == "" {
		p.VersionID = uuid.New().String()
	}
	created := p.CommittedAt
	if created.IsZero() {
		created = s.now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return p, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO phenotype_versions (version_id, player_id, parent_id, epoch, phenotype, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(version_id) DO NOTHING`,
		p.VersionID, playerID, nullIfEmpty(p.ParentID), int64(p.Epoch),
		phenotype.Serialize(p), created.Format(time.RFC3339Nano),
	)
	if err != nil {
		return p, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_profile (player_id, version_id) VALUES (?, ?)
		 ON CONFLICT(player_id) DO UPDATE SET version_id = excluded.version_id`,
		playerID, p.VersionID,
	)
	if err != nil {
		return p, fmt.Errorf("set active: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return p, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

// #endregion save

// #region load
// Load returns the active phenotype of playerID. A player with no stored
// profile gets the neutral default. Corrupt bytes also yield the default,
// together with an error matching phenotype.ErrCorruptPersistedState that
// callers surface as a warning.
func (s *Store) Load(playerID string) (phenotype.Phenotype, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_profile WHERE player_id = ?`, playerID).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return phenotype.Default(), nil
	}
	if err != nil {
		return phenotype.Default(), fmt.Errorf("get active %s: %w", playerID, err)
	}
	v, err := s.Version(versionID)
	if err != nil {
		return phenotype.Default(), err
	}
	if v.Err != nil {
		s.logger.Warn("stored profile corrupt, using default",
			"player_id", playerID, "version_id", versionID, "error", v.Err)
		return v.Phenotype, fmt.Errorf("load %s: %w", playerID, v.Err)
	}
	return v.Phenotype, nil
}

// Version retrieves a stored version by ID.
func (s *Store) Version(id string) (Version, error) {
	row := s.db.QueryRow(
		`SELECT version_id, player_id, parent_id, epoch, phenotype, created_at
		 FROM phenotype_versions WHERE version_id = ?`, id,
	)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, fmt.Errorf("version %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Version{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return v, nil
}

// #endregion load

// #region rollback
// Rollback makes a previous version of playerID active again.
func (s *Store) Rollback(playerID, versionID string) error {
	var owner string
	err := s.db.QueryRow(
		`SELECT player_id FROM phenotype_versions WHERE version_id = ?`, versionID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != playerID) {
		return fmt.Errorf("rollback %s to %s: %w", playerID, versionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO active_profile (player_id, version_id) VALUES (?, ?)
		 ON CONFLICT(player_id) DO UPDATE SET version_id = excluded.version_id`,
		playerID, versionID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return logging.LogDecision(s.db, logging.ProvenanceEntry{
		VersionID:   versionID,
		PlayerID:    playerID,
		TriggerType: "rollback",
		Decision:    "commit",
		Reason:      "manual rollback",
		CreatedAt:   s.now(),
	})
}

// #endregion rollback

// #region list-versions
// ListVersions returns the most recent versions of playerID, newest first.
func (s *Store) ListVersions(playerID string, limit int) ([]Version, error) {
	rows, err := s.db.Query(
		`SELECT version_id, player_id, parent_id, epoch, phenotype, created_at
		 FROM phenotype_versions WHERE player_id = ?
		 ORDER BY created_at DESC, epoch DESC LIMIT ?`, playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Players lists every player with an active profile.
func (s *Store) Players() ([]string, error) {
	rows, err := s.db.Query(`SELECT player_id FROM active_profile ORDER BY player_id`)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// #endregion list-versions

// #region helpers
type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(sc scanner) (Version, error) {
	var (
		v          Version
		parentID   sql.NullString
		epoch      int64
		blob       []byte
		createdStr string
	)
	if err := sc.Scan(&v.VersionID, &v.PlayerID, &parentID, &epoch, &blob, &createdStr); err != nil {
		return Version{}, err
	}
	if parentID.Valid {
		v.ParentID = parentID.String
	}
	v.Epoch = uint64(epoch)
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	v.Phenotype, v.Err = phenotype.RestoreOrDefault(blob)
	return v, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
