package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"curio/internal/archive/models"
	"curio/pkg/domain"
	dErrors "curio/pkg/domain-errors"
	platformtx "curio/pkg/platform/tx"
	"curio/pkg/requestcontext"
)

// Postgres is the durable registry twin. Every mutation runs in a single
// transaction that locks the archive row, re-derives authorization from the
// stored owner and grant table, and applies the change, so concurrent callers
// observe each operation as atomic. The id counter lives in a single-row
// table locked FOR UPDATE, which keeps it monotonic, gap-free, and always
// ≥ max(id)+1.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed registry.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS archives (
	id             BIGINT PRIMARY KEY,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	content        TEXT NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	location       TEXT NOT NULL DEFAULT '',
	year           INTEGER NOT NULL DEFAULT 0,
	owner_identity TEXT NOT NULL,
	visibility     TEXT NOT NULL,
	tags           TEXT[] NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_archives_owner ON archives (owner_identity);
CREATE INDEX IF NOT EXISTS idx_archives_category ON archives (category);

CREATE TABLE IF NOT EXISTS archive_grants (
	archive_id BIGINT NOT NULL REFERENCES archives (id) ON DELETE CASCADE,
	grantee    TEXT NOT NULL,
	caps       SMALLINT NOT NULL,
	PRIMARY KEY (archive_id, grantee)
);

CREATE TABLE IF NOT EXISTS archive_counter (
	single  BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (single),
	next_id BIGINT NOT NULL
);

INSERT INTO archive_counter (single, next_id) VALUES (TRUE, 1)
ON CONFLICT (single) DO NOTHING;
`

// EnsureSchema creates the registry tables when they do not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure registry schema: %w", err)
	}
	return nil
}

func (s *Postgres) Create(ctx context.Context, owner domain.Identity, draft models.ArchiveDraft) (domain.ArchiveID, error) {
	now := requestcontext.Now(ctx)

	// Validate before touching the counter so rejected drafts consume no id.
	probe, err := models.NewArchive(1, owner, draft, now)
	if err != nil {
		return 0, err
	}

	var id domain.ArchiveID
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var next uint64
		if err := tx.QueryRowContext(ctx,
			`SELECT next_id FROM archive_counter FOR UPDATE`).Scan(&next); err != nil {
			return fmt.Errorf("lock id counter: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE archive_counter SET next_id = next_id + 1`); err != nil {
			return fmt.Errorf("advance id counter: %w", err)
		}

		a := probe
		a.ID = domain.ArchiveID(next)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO archives (id, title, description, content, category, location, year,
				owner_identity, visibility, tags, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			int64(a.ID), a.Title, a.Description, a.Content.String(), a.Category, a.Location,
			a.Year, a.Owner.String(), string(a.Visibility), pq.Array(a.Tags), a.CreatedAt, a.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert archive: %w", err)
		}
		id = a.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Postgres) Get(ctx context.Context, caller domain.Identity, id domain.ArchiveID) (*models.Archive, error) {
	a, err := s.loadArchive(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	granted, err := s.loadGrant(ctx, s.db, id, caller)
	if err != nil {
		return nil, err
	}
	if !a.CapabilitiesFor(caller, granted).Has(domain.CapabilityView) {
		return nil, errForbidden("view")
	}
	return a, nil
}

func (s *Postgres) Update(ctx context.Context, caller domain.Identity, id domain.ArchiveID, patch models.ArchivePatch) (*models.Archive, error) {
	now := requestcontext.Now(ctx)
	var updated *models.Archive
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := s.loadArchive(ctx, tx, id, true)
		if err != nil {
			return err
		}
		granted, err := s.loadGrant(ctx, tx, id, caller)
		if err != nil {
			return err
		}
		if !a.CapabilitiesFor(caller, granted).Has(domain.CapabilityEdit) {
			return errForbidden("edit")
		}
		if err := patch.Validate(); err != nil {
			return err
		}
		patch.Apply(a, now)

		if _, err := tx.ExecContext(ctx, `
			UPDATE archives
			SET title = $2, description = $3, category = $4, location = $5,
				year = $6, visibility = $7, tags = $8, updated_at = $9
			WHERE id = $1`,
			int64(a.ID), a.Title, a.Description, a.Category, a.Location,
			a.Year, string(a.Visibility), pq.Array(a.Tags), a.UpdatedAt,
		); err != nil {
			return fmt.Errorf("update archive: %w", err)
		}
		// The row is still locked here, so the caller sees exactly the state
		// their patch produced even without View.
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Postgres) Delete(ctx context.Context, caller domain.Identity, id domain.ArchiveID) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := s.loadArchive(ctx, tx, id, true)
		if err != nil {
			return err
		}
		granted, err := s.loadGrant(ctx, tx, id, caller)
		if err != nil {
			return err
		}
		if !a.CapabilitiesFor(caller, granted).Has(domain.CapabilityDelete) {
			return errForbidden("delete")
		}
		// grants cascade with the archive row
		if _, err := tx.ExecContext(ctx, `DELETE FROM archives WHERE id = $1`, int64(id)); err != nil {
			return fmt.Errorf("delete archive: %w", err)
		}
		return nil
	})
}

func (s *Postgres) Grant(ctx context.Context, caller domain.Identity, id domain.ArchiveID, grantee domain.Identity, caps domain.CapabilitySet) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := s.loadArchive(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if caller != a.Owner {
			return errForbidden("grant access to")
		}
		if grantee.IsZero() {
			return dErrors.New(dErrors.CodeInvalidInput, "grantee identity is required")
		}
		if grantee == a.Owner {
			return dErrors.New(dErrors.CodeInvalidInput, "owner already holds all capabilities")
		}
		if !caps.Valid() {
			return dErrors.New(dErrors.CodeInvalidInput, "capability set contains unknown capabilities")
		}

		if caps.IsEmpty() {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM archive_grants WHERE archive_id = $1 AND grantee = $2`,
				int64(id), grantee.String())
			if err != nil {
				return fmt.Errorf("normalize empty grant: %w", err)
			}
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO archive_grants (archive_id, grantee, caps) VALUES ($1, $2, $3)
			ON CONFLICT (archive_id, grantee) DO UPDATE SET caps = EXCLUDED.caps`,
			int64(id), grantee.String(), int16(caps),
		); err != nil {
			return fmt.Errorf("upsert grant: %w", err)
		}
		return nil
	})
}

func (s *Postgres) Revoke(ctx context.Context, caller domain.Identity, id domain.ArchiveID, grantee domain.Identity) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := s.loadArchive(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if caller != a.Owner {
			return errForbidden("revoke access to")
		}
		// idempotent: deleting an absent grant is a success
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM archive_grants WHERE archive_id = $1 AND grantee = $2`,
			int64(id), grantee.String()); err != nil {
			return fmt.Errorf("delete grant: %w", err)
		}
		return nil
	})
}

func (s *Postgres) Grants(ctx context.Context, caller domain.Identity, id domain.ArchiveID) (map[domain.Identity]domain.CapabilitySet, error) {
	a, err := s.loadArchive(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	if caller != a.Owner {
		return nil, errForbidden("list grants for")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT grantee, caps FROM archive_grants WHERE archive_id = $1`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Identity]domain.CapabilitySet)
	for rows.Next() {
		var grantee string
		var caps int16
		if err := rows.Scan(&grantee, &caps); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		out[domain.Identity(grantee)] = domain.CapabilitySet(caps)
	}
	return out, rows.Err()
}

func (s *Postgres) ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.ArchiveID, error) {
	return s.listIDs(ctx,
		`SELECT id FROM archives WHERE owner_identity = $1 ORDER BY id`, owner.String())
}

func (s *Postgres) ListByCategory(ctx context.Context, category string) ([]domain.ArchiveID, error) {
	return s.listIDs(ctx,
		`SELECT id FROM archives WHERE category = $1 ORDER BY id`, category)
}

func (s *Postgres) Search(ctx context.Context, caller domain.Identity, query string, category *string) ([]*models.Archive, error) {
	// Visibility and substring matching reuse the same domain predicates as
	// the in-memory registry; the database narrows by category only.
	q := `SELECT id, title, description, content, category, location, year,
			owner_identity, visibility, tags, created_at, updated_at
		FROM archives`
	args := []any{}
	if category != nil {
		q += ` WHERE category = $1`
		args = append(args, *category)
	}

	// Drain the result set before issuing grant lookups so a single
	// connection never waits on a second one from the pool.
	candidates, err := s.queryArchives(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search archives: %w", err)
	}

	var out []*models.Archive
	for _, a := range candidates {
		if !searchMatch(a, query, category) {
			continue
		}
		granted, err := s.loadGrant(ctx, s.db, a.ID, caller)
		if err != nil {
			return nil, err
		}
		if !a.CapabilitiesFor(caller, granted).Has(domain.CapabilityView) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// All returns every archive ordered by id, ignoring visibility. Operator
// surface only.
func (s *Postgres) All(ctx context.Context) ([]*models.Archive, error) {
	out, err := s.queryArchives(ctx, `SELECT id, title, description, content, category, location, year,
			owner_identity, visibility, tags, created_at, updated_at
		FROM archives ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list all archives: %w", err)
	}
	return out, nil
}

func (s *Postgres) queryArchives(ctx context.Context, query string, args ...any) ([]*models.Archive, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Archive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Postgres) Total(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archives`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count archives: %w", err)
	}
	return n, nil
}

// querier covers *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) loadArchive(ctx context.Context, q querier, id domain.ArchiveID, forUpdate bool) (*models.Archive, error) {
	query := `SELECT id, title, description, content, category, location, year,
			owner_identity, visibility, tags, created_at, updated_at
		FROM archives WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	a, err := scanArchive(q.QueryRowContext(ctx, query, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load archive: %w", err)
	}
	return a, nil
}

func (s *Postgres) loadGrant(ctx context.Context, q querier, id domain.ArchiveID, grantee domain.Identity) (domain.CapabilitySet, error) {
	var caps int16
	err := q.QueryRowContext(ctx,
		`SELECT caps FROM archive_grants WHERE archive_id = $1 AND grantee = $2`,
		int64(id), grantee.String()).Scan(&caps)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load grant: %w", err)
	}
	return domain.CapabilitySet(caps), nil
}

func (s *Postgres) listIDs(ctx context.Context, query string, arg any) ([]domain.ArchiveID, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list archive ids: %w", err)
	}
	defer rows.Close()

	ids := make([]domain.ArchiveID, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan archive id: %w", err)
		}
		ids = append(ids, domain.ArchiveID(id))
	}
	return ids, rows.Err()
}

// inTx runs fn inside a transaction. An ambient transaction carried in the
// context is joined instead of opening a nested one; its lifecycle belongs
// to whoever started it.
func (s *Postgres) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if ambient, ok := platformtx.From(ctx); ok {
		return fn(ambient)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArchive(row rowScanner) (*models.Archive, error) {
	var (
		a          models.Archive
		id         int64
		content    string
		owner      string
		visibility string
		tags       pq.StringArray
	)
	err := row.Scan(&id, &a.Title, &a.Description, &content, &a.Category, &a.Location,
		&a.Year, &owner, &visibility, &tags, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ID = domain.ArchiveID(id)
	a.Content = domain.ContentLocator(content)
	a.Owner = domain.Identity(owner)
	a.Visibility = models.Visibility(visibility)
	if len(tags) > 0 {
		a.Tags = []string(tags)
	}
	return &a, nil
}
