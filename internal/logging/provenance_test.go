package logging

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-input/internal/evolution"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/pattern"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE provenance_log (
		version_id   TEXT NOT NULL,
		player_id    TEXT,
		session_id   TEXT,
		trigger_type TEXT NOT NULL,
		style        TEXT,
		record_json  TEXT,
		decision     TEXT NOT NULL,
		reason       TEXT,
		created_at   TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		VersionID:   "v1",
		PlayerID:    "p1",
		SessionID:   "s1",
		TriggerType: "epoch",
		Style:       "aggressive",
		RecordJSON:  `{"frames":5000}`,
		Decision:    "commit",
		Reason:      "fields hit",
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM provenance_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var versionID, decision, style string
	db.QueryRow("SELECT version_id, decision, style FROM provenance_log").Scan(&versionID, &decision, &style)
	if versionID != "v1" {
		t.Errorf("expected version_id 'v1', got %q", versionID)
	}
	if decision != "commit" || style != "aggressive" {
		t.Errorf("unexpected decision/style %q/%q", decision, style)
	}
}

func TestLogDecision_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		VersionID:   "v2",
		TriggerType: "session_end",
		Decision:    "no_op",
	}

	before := time.Now().UTC()
	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM provenance_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogDecision_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		VersionID:   "v3",
		TriggerType: "epoch",
		Decision:    "reject",
		CreatedAt:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var playerID, sessionID, recordJSON, reason sql.NullString
	db.QueryRow("SELECT player_id, session_id, record_json, reason FROM provenance_log").Scan(
		&playerID, &sessionID, &recordJSON, &reason,
	)
	if playerID.Valid || sessionID.Valid {
		t.Error("expected NULL player/session for empty strings")
	}
	if recordJSON.Valid {
		t.Error("expected NULL record_json for empty string")
	}
	if reason.Valid {
		t.Error("expected NULL reason for empty string")
	}
}

func TestLogDecision_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	entry := ProvenanceEntry{
		VersionID:   "v4",
		TriggerType: "epoch",
		Decision:    "commit",
	}

	if err := LogDecision(db, entry); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-decision-tests

// #region epoch-record-tests
func TestEntryFromResult(t *testing.T) {
	var s pattern.Summary
	s.Frames = 5000
	s.RateMean[0] = 2.5
	s.BrakeEvents = 2
	s.BrakeOffsetMean = 0.25

	var res evolution.Result
	res.Proposal.Style = evolution.StyleAggressive
	res.Proposal.Votes = evolution.Votes{Aggressive: 3}
	res.Proposal.Delta.Fields[phenotype.SensitivityField(input.AxisSteering)] = 0.1
	res.Metrics.TraitsHit = []string{"steering_style"}
	res.Decision = evolution.Decision{Action: "commit", Reason: "ok"}
	res.After.VersionID = "v9"

	entry, err := EntryFromResult("p1", "s1", "epoch", res, s, evolution.DefaultConfig())
	if err != nil {
		t.Fatalf("EntryFromResult: %v", err)
	}
	if entry.VersionID != "v9" || entry.Decision != "commit" || entry.Style != "aggressive" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	var rec EpochRecord
	if err := json.Unmarshal([]byte(entry.RecordJSON), &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	want := map[string]float64{"sensitivity.steering": 0.1}
	if diff := cmp.Diff(want, rec.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	if rec.Frames != 5000 || rec.AggressiveVotes != 3 || rec.BrakeOffsetMean != 0.25 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Thresholds.GradualFraction != 0.10 {
		t.Fatalf("thresholds not captured: %+v", rec.Thresholds)
	}
}

// #endregion epoch-record-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
