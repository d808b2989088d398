package store

import (
	"context"
	"strings"
	"time"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS atomspace_snapshots (
	id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	version TEXT NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS atomspace_atoms (
	seq BIGINT PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	subtype TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	outgoing TEXT[] NOT NULL DEFAULT '{}',
	strength DOUBLE PRECISION NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	sti DOUBLE PRECISION,
	lti DOUBLE PRECISION
);
CREATE TABLE IF NOT EXISTS atomspace_steps (
	seq BIGINT PRIMARY KEY,
	rule TEXT NOT NULL,
	premises JSONB NOT NULL,
	conclusion_id TEXT NOT NULL,
	tv_in JSONB,
	strength DOUBLE PRECISION NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	notes JSONB NOT NULL DEFAULT '[]',
	rule_instance TEXT NOT NULL DEFAULT '',
	run_id TEXT NOT NULL DEFAULT '',
	invalidated BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_atomspace_steps_conclusion ON atomspace_steps (conclusion_id);
`

type PostgresSnapshotter struct {
	db *pgxpool.Pool
}

var _ domain.Snapshotter = (*PostgresSnapshotter)(nil)

func NewPostgresSnapshotter(db *pgxpool.Pool) *PostgresSnapshotter {
	return &PostgresSnapshotter{db: db}
}

// EnsureSchema creates the snapshot tables if they are missing.
func (s *PostgresSnapshotter) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, postgresSchema)
	return errors.Wrap(err, "apply postgres schema")
}

func (s *PostgresSnapshotter) Save(ctx context.Context, snap *domain.Snapshot) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `TRUNCATE atomspace_atoms, atomspace_steps`); err != nil {
		return errors.Wrap(err, "clear snapshot")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO atomspace_snapshots (id, version, saved_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, saved_at = EXCLUDED.saved_at`,
		snap.Version, snap.SavedAt,
	); err != nil {
		return errors.Wrap(err, "write snapshot header")
	}

	rows := make([][]any, len(snap.Atoms))
	for i, a := range snap.Atoms {
		outgoing := make([]string, len(a.Outgoing))
		for j, id := range a.Outgoing {
			outgoing[j] = string(id)
		}
		var sti, lti *float64
		if a.AV != nil {
			sti, lti = &a.AV.STI, &a.AV.LTI
		}
		rows[i] = []any{int64(i + 1), string(a.ID), string(a.Kind), a.Subtype, a.Name, outgoing, a.TV.S, a.TV.C, sti, lti}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"atomspace_atoms"},
		[]string{"seq", "id", "kind", "subtype", "name", "outgoing", "strength", "confidence", "sti", "lti"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return errors.Wrap(err, "copy atoms")
	}

	batch := &pgx.Batch{}
	for _, st := range snap.Steps {
		row, err := encodeStep(st)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO atomspace_steps (seq, rule, premises, conclusion_id, tv_in, strength, confidence, notes, rule_instance, run_id, invalidated, created_at)
			 VALUES ($1, $2, $3::jsonb, $4, $5::jsonb, $6, $7, $8::jsonb, $9, $10, $11, $12)`,
			st.Seq, string(st.Rule), row.premises, string(st.Conclusion.ID), row.tvIn,
			st.TVOut.S, st.TVOut.C, row.notes, st.RuleInstance, st.RunID, st.Invalidated, st.CreatedAt,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "insert steps")
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresSnapshotter) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}
	err := s.db.QueryRow(ctx,
		`SELECT version, saved_at FROM atomspace_snapshots WHERE id = 1`,
	).Scan(&snap.Version, &snap.SavedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, kind, subtype, name, outgoing, strength, confidence, sti, lti
		 FROM atomspace_atoms ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a        domain.Atom
			id, kind string
			outgoing []string
			sti, lti *float64
		)
		if err := rows.Scan(&id, &kind, &a.Subtype, &a.Name, &outgoing, &a.TV.S, &a.TV.C, &sti, &lti); err != nil {
			return nil, err
		}
		a.ID, a.Kind = domain.ID(id), domain.Kind(kind)
		for _, o := range outgoing {
			a.Outgoing = append(a.Outgoing, domain.ID(o))
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
		snap.Atoms = append(snap.Atoms, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	steps, err := s.db.Query(ctx,
		`SELECT seq, rule, premises::text, conclusion_id, tv_in::text, strength, confidence, notes::text,
		        rule_instance, run_id, invalidated, created_at
		 FROM atomspace_steps ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer steps.Close()

	for steps.Next() {
		var (
			st               domain.InferenceStep
			rule, conclusion string
			premises, notes  string
			tvIn             *string
			createdAt        time.Time
		)
		if err := steps.Scan(&st.Seq, &rule, &premises, &conclusion, &tvIn, &st.TVOut.S, &st.TVOut.C,
			&notes, &st.RuleInstance, &st.RunID, &st.Invalidated, &createdAt); err != nil {
			return nil, err
		}
		st.Rule = domain.RuleName(rule)
		st.Conclusion.ID = domain.ID(conclusion)
		st.CreatedAt = createdAt
		var in []byte
		if tvIn != nil && !strings.EqualFold(*tvIn, "null") {
			in = []byte(*tvIn)
		}
		if err := decodeStep(&st, []byte(premises), in, []byte(notes)); err != nil {
			return nil, err
		}
		snap.Steps = append(snap.Steps, &st)
	}
	return snap, steps.Err()
}
