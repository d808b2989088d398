package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshot_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS atoms (
	seq INTEGER PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	subtype TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	outgoing TEXT NOT NULL DEFAULT '[]',
	strength REAL NOT NULL CHECK(strength BETWEEN 0.0 AND 1.0),
	confidence REAL NOT NULL CHECK(confidence BETWEEN 0.0 AND 1.0),
	sti REAL,
	lti REAL
);
CREATE TABLE IF NOT EXISTS inference_steps (
	seq INTEGER PRIMARY KEY,
	rule TEXT NOT NULL,
	premises TEXT NOT NULL,
	conclusion_id TEXT NOT NULL,
	tv_in TEXT,
	strength REAL NOT NULL,
	confidence REAL NOT NULL,
	notes TEXT NOT NULL DEFAULT '[]',
	rule_instance TEXT NOT NULL DEFAULT '',
	run_id TEXT NOT NULL DEFAULT '',
	invalidated INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_steps_conclusion ON inference_steps(conclusion_id);
`

// SQLiteSnapshotter persists snapshots into a local SQLite database.
type SQLiteSnapshotter struct {
	db *sql.DB
}

var _ domain.Snapshotter = (*SQLiteSnapshotter)(nil)

func OpenSQLiteSnapshotter(ctx context.Context, path string) (*SQLiteSnapshotter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply sqlite schema")
	}
	return &SQLiteSnapshotter{db: db}, nil
}

func (s *SQLiteSnapshotter) Close() error {
	return s.db.Close()
}

// Save replaces the stored snapshot in one transaction.
func (s *SQLiteSnapshotter) Save(ctx context.Context, snap *domain.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	for _, q := range []string{`DELETE FROM atoms`, `DELETE FROM inference_steps`, `DELETE FROM snapshot_meta`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "clear snapshot")
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshot_meta (key, value) VALUES ('version', ?), ('saved_at', ?)`,
		snap.Version, snap.SavedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return errors.Wrap(err, "write snapshot meta")
	}

	atomStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO atoms (seq, id, kind, subtype, name, outgoing, strength, confidence, sti, lti)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare atom insert")
	}
	defer atomStmt.Close()
	for i, a := range snap.Atoms {
		row, err := encodeAtom(a)
		if err != nil {
			return err
		}
		if _, err := atomStmt.ExecContext(ctx, i+1, string(a.ID), string(a.Kind), a.Subtype, a.Name, row.outgoing,
			a.TV.S, a.TV.C, row.sti, row.lti); err != nil {
			return errors.Wrapf(err, "insert atom %s", a.ID)
		}
	}

	stepStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO inference_steps (seq, rule, premises, conclusion_id, tv_in, strength, confidence, notes, rule_instance, run_id, invalidated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare step insert")
	}
	defer stepStmt.Close()
	for _, st := range snap.Steps {
		row, err := encodeStep(st)
		if err != nil {
			return err
		}
		if _, err := stepStmt.ExecContext(ctx, st.Seq, string(st.Rule), row.premises, string(st.Conclusion.ID), row.tvIn,
			st.TVOut.S, st.TVOut.C, row.notes, st.RuleInstance, st.RunID, st.Invalidated,
			st.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return errors.Wrapf(err, "insert step %d", st.Seq)
		}
	}

	return errors.Wrap(tx.Commit(), "commit snapshot")
}

func (s *SQLiteSnapshotter) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM snapshot_meta`)
	if err != nil {
		return nil, errors.Wrap(err, "read snapshot meta")
	}
	found := false
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, err
		}
		found = true
		switch k {
		case "version":
			snap.Version = v
		case "saved_at":
			snap.SavedAt, _ = time.Parse(time.RFC3339Nano, v)
		}
	}
	rows.Close()
	if !found {
		return nil, errors.Wrap(ErrNotFound, "sqlite snapshot")
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, kind, subtype, name, outgoing, strength, confidence, sti, lti FROM atoms ORDER BY seq`)
	if err != nil {
		return nil, errors.Wrap(err, "read atoms")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a        domain.Atom
			outgoing string
			sti, lti sql.NullFloat64
		)
		if err := rows.Scan(&a.ID, &a.Kind, &a.Subtype, &a.Name, &outgoing, &a.TV.S, &a.TV.C, &sti, &lti); err != nil {
			return nil, errors.Wrap(err, "scan atom")
		}
		if err := decodeAtom(&a, []byte(outgoing), nullable(sti), nullable(lti)); err != nil {
			return nil, err
		}
		snap.Atoms = append(snap.Atoms, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	steps, err := s.db.QueryContext(ctx,
		`SELECT seq, rule, premises, conclusion_id, tv_in, strength, confidence, notes, rule_instance, run_id, invalidated, created_at
		 FROM inference_steps ORDER BY seq`)
	if err != nil {
		return nil, errors.Wrap(err, "read steps")
	}
	defer steps.Close()
	for steps.Next() {
		var (
			st              domain.InferenceStep
			premises, notes string
			tvIn            sql.NullString
			createdAt       string
		)
		if err := steps.Scan(&st.Seq, &st.Rule, &premises, &st.Conclusion.ID, &tvIn, &st.TVOut.S, &st.TVOut.C,
			&notes, &st.RuleInstance, &st.RunID, &st.Invalidated, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan step")
		}
		var in []byte
		if tvIn.Valid {
			in = []byte(tvIn.String)
		}
		if err := decodeStep(&st, []byte(premises), in, []byte(notes)); err != nil {
			return nil, err
		}
		st.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		snap.Steps = append(snap.Steps, &st)
	}
	return snap, steps.Err()
}

type atomRow struct {
	outgoing string
	sti, lti sql.NullFloat64
}

func encodeAtom(a *domain.Atom) (atomRow, error) {
	out := a.Outgoing
	if out == nil {
		out = []domain.ID{}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return atomRow{}, errors.Wrapf(err, "encode outgoing of %s", a.ID)
	}
	row := atomRow{outgoing: string(data)}
	if a.AV != nil {
		row.sti = sql.NullFloat64{Float64: a.AV.STI, Valid: true}
		row.lti = sql.NullFloat64{Float64: a.AV.LTI, Valid: true}
	}
	return row, nil
}

func decodeAtom(a *domain.Atom, outgoing []byte, sti, lti *float64) error {
	if err := json.Unmarshal(outgoing, &a.Outgoing); err != nil {
		return errors.Wrapf(err, "decode outgoing of %s", a.ID)
	}
	if len(a.Outgoing) == 0 {
		a.Outgoing = nil
	}
	if sti != nil || lti != nil {
		av := domain.AttentionValue{}
		if sti != nil {
			av.STI = *sti
		}
		if lti != nil {
			av.LTI = *lti
		}
		a.AV = &av
	}
	return nil
}

type stepRow struct {
	premises string
	tvIn     sql.NullString
	notes    string
}

func encodeStep(st *domain.InferenceStep) (stepRow, error) {
	premises, err := json.Marshal(st.Premises)
	if err != nil {
		return stepRow{}, errors.Wrapf(err, "encode premises of step %d", st.Seq)
	}
	notes := st.Notes
	if notes == nil {
		notes = []string{}
	}
	notesData, err := json.Marshal(notes)
	if err != nil {
		return stepRow{}, errors.Wrapf(err, "encode notes of step %d", st.Seq)
	}
	row := stepRow{premises: string(premises), notes: string(notesData)}
	if st.TVIn != nil {
		in, err := json.Marshal(st.TVIn)
		if err != nil {
			return stepRow{}, err
		}
		row.tvIn = sql.NullString{String: string(in), Valid: true}
	}
	return row, nil
}

func decodeStep(st *domain.InferenceStep, premises, tvIn, notes []byte) error {
	if err := json.Unmarshal(premises, &st.Premises); err != nil {
		return errors.Wrapf(err, "decode premises of step %d", st.Seq)
	}
	if err := json.Unmarshal(notes, &st.Notes); err != nil {
		return errors.Wrapf(err, "decode notes of step %d", st.Seq)
	}
	if len(st.Notes) == 0 {
		st.Notes = nil
	}
	if len(tvIn) > 0 {
		var tv domain.TruthValue
		if err := json.Unmarshal(tvIn, &tv); err != nil {
			return errors.Wrapf(err, "decode tv_in of step %d", st.Seq)
		}
		st.TVIn = &tv
	}
	return nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
