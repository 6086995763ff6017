package profile

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/adaptive-input/internal/engine"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/logging"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
	"github.com/danielpatrickdp/adaptive-input/internal/sim"
)

// #region helpers
func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func tuned(parent phenotype.Phenotype, id string, steer float64) phenotype.Phenotype {
	p := parent.With(phenotype.SensitivityField(input.AxisSteering), steer)
	p.ParentID = parent.VersionID
	p.VersionID = id
	p.Epoch = parent.Epoch + 1
	return p
}

// #endregion helpers

// #region save-load-tests
func TestLoadUnknownPlayerIsDefault(t *testing.T) {
	s := openStore(t)
	p, err := s.Load("nobody")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(phenotype.Default(), p); diff != "" {
		t.Fatalf("expected default (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openStore(t)
	root, err := s.Save("p1", phenotype.Default())
	if err != nil {
		t.Fatalf("Save root: %v", err)
	}
	if root.VersionID == "" {
		t.Fatal("expected assigned version id")
	}

	next := tuned(root, "v2", 1.1)
	if _, err := s.Save("p1", next); err != nil {
		t.Fatalf("Save next: %v", err)
	}
	got, err := s.Load("p1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.VersionID != "v2" || got.ParentID != root.VersionID || got.Sensitivity[input.AxisSteering] != 1.1 {
		t.Fatalf("unexpected loaded phenotype %+v", got)
	}

	// saving the same version again only moves the pointer
	if _, err := s.Save("p1", next); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	versions, err := s.ListVersions("p1", 10)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	s := openStore(t)
	bad := phenotype.Default().With(phenotype.HapticField(phenotype.HapticGain), 99)
	if _, err := s.Save("p1", bad); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadCorruptFallsBackToDefault(t *testing.T) {
	s := openStore(t)
	_, err := s.db.Exec(`INSERT INTO phenotype_versions (version_id, player_id, epoch, phenotype, created_at)
		VALUES ('bad', 'p1', 3, x'deadbeef', '2026-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.db.Exec(`INSERT INTO active_profile (player_id, version_id) VALUES ('p1', 'bad')`); err != nil {
		t.Fatalf("activate: %v", err)
	}

	p, err := s.Load("p1")
	if !errors.Is(err, phenotype.ErrCorruptPersistedState) {
		t.Fatalf("expected corrupt state error, got %v", err)
	}
	if diff := cmp.Diff(phenotype.Default(), p); diff != "" {
		t.Fatalf("expected default on corruption (-want +got):\n%s", diff)
	}
}

// #endregion save-load-tests

// #region rollback-tests
func TestRollback(t *testing.T) {
	s := openStore(t)
	root, _ := s.Save("p1", phenotype.Default())
	if _, err := s.Save("p1", tuned(root, "v2", 1.1)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Save("p2", tuned(phenotype.Default(), "other", 0.9)); err != nil {
		t.Fatalf("Save p2: %v", err)
	}

	if err := s.Rollback("p1", root.VersionID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	got, _ := s.Load("p1")
	if got.VersionID != root.VersionID {
		t.Fatalf("expected %s after rollback, got %s", root.VersionID, got.VersionID)
	}

	var trigger string
	if err := s.db.QueryRow(`SELECT trigger_type FROM provenance_log WHERE player_id = 'p1'`).Scan(&trigger); err != nil || trigger != "rollback" {
		t.Fatalf("expected rollback provenance, got %q %v", trigger, err)
	}

	if err := s.Rollback("p1", "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rollback to another player's version: %v", err)
	}
	if err := s.Rollback("p1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rollback to missing version: %v", err)
	}

	players, err := s.Players()
	if err != nil {
		t.Fatalf("Players: %v", err)
	}
	if diff := cmp.Diff([]string{"p1", "p2"}, players); diff != "" {
		t.Fatalf("players mismatch (-want +got):\n%s", diff)
	}
}

// #endregion rollback-tests

// #region recorder-tests
func TestRecorderPersistsSessionEpochs(t *testing.T) {
	s := openStore(t)
	initial, err := s.Load("p1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	initial, err = s.Save("p1", initial)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	opts := engine.DefaultOptions()
	opts.EpochFrames = 5000
	opts.InlineEpochs = true
	rec := s.Recorder("p1", opts)
	opts.OnEpoch = rec.Record

	sess, err := engine.NewSession(initial, opts)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	g := sim.NewGenerator(sim.Aggressive(), 1000, 1)
	for i := 0; i < 5000; i++ {
		sess.Process(g.Next())
	}
	if _, err := sess.End(context.Background()); err != nil {
		t.Logf("end: %v", err)
	}
	if rec.Failures() != 0 {
		t.Fatalf("recorder failed %d times", rec.Failures())
	}

	loaded, err := s.Load("p1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.VersionID != sess.Store().Current().VersionID {
		t.Fatalf("active profile %s, session at %s", loaded.VersionID, sess.Store().Current().VersionID)
	}
	if loaded.ParentID == "" || loaded.Epoch == 0 {
		t.Fatalf("lineage not persisted: %+v", loaded)
	}

	rows, err := s.db.Query(`SELECT trigger_type, decision, session_id FROM provenance_log ORDER BY id`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var triggers []string
	for rows.Next() {
		var trig, decision, sid string
		if err := rows.Scan(&trig, &decision, &sid); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if sid != sess.ID() {
			t.Fatalf("session id %q, want %q", sid, sess.ID())
		}
		triggers = append(triggers, trig)
		if trig == engine.TriggerEpoch && decision != "commit" {
			t.Fatalf("first epoch decision %q, want commit", decision)
		}
	}
	if diff := cmp.Diff([]string{engine.TriggerEpoch, engine.TriggerSessionEnd}, triggers); diff != "" {
		t.Fatalf("triggers mismatch (-want +got):\n%s", diff)
	}

	var raw string
	if err := s.db.QueryRow(`SELECT record_json FROM provenance_log WHERE trigger_type = ?`, engine.TriggerEpoch).Scan(&raw); err != nil {
		t.Fatalf("record_json: %v", err)
	}
	var epochRec logging.EpochRecord
	if err := json.Unmarshal([]byte(raw), &epochRec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if epochRec.Eval == nil || !epochRec.Eval.Passed {
		t.Fatalf("commit eval = %+v, want a passing result", epochRec.Eval)
	}
	if rec.EvalFailures() != 0 {
		t.Fatalf("eval failures = %d", rec.EvalFailures())
	}
}

// #endregion recorder-tests
