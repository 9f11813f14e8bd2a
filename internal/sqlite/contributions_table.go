// This file implements contribution reads and writes against the
// contributions table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/vault/pkg/types"
)

const contributionColumns = `id, share_token, parent_contribution_id, lineage_root_id, image_prompt,
    image_filename, image_description, survey_question_1, survey_question_2, survey_question_3,
    survey_answer_1, survey_answer_2, survey_answer_3, contributor_user_agent, latitude, longitude,
    created_at`

const insertContribution = `INSERT INTO contributions (
    share_token, parent_contribution_id, image_prompt, image_filename, image_description,
    survey_question_1, survey_question_2, survey_question_3,
    survey_answer_1, survey_answer_2, survey_answer_3,
    contributor_user_agent, latitude, longitude, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

var errNilContribution = errors.New("nil contribution")

// Create persists nc and assigns its lineage root inside one transaction:
// the row is inserted with a NULL root, then updated to its own ID (roots)
// or to nc.LineageRootID (children). Readers never observe the NULL root.
//
// A child whose parent is missing, or whose declared root differs from the
// parent's root, fails with ErrIntegrity and leaves no row behind.
func (b *Backend) Create(ctx context.Context, nc *types.NewContribution) (*types.Contribution, error) {
	if nc == nil {
		return nil, errNilContribution
	}
	if err := nc.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning create transaction: %w", err)
	}
	defer tx.Rollback()

	if nc.ParentID != nil {
		if err := checkParent(ctx, tx, *nc.ParentID, *nc.LineageRootID); err != nil {
			return nil, err
		}
	}

	args := []any{
		nc.ShareToken,
		nullInt64(nc.ParentID),
		nullString(nc.Prompt),
		nc.ImageRef,
		nc.Description,
		nullString(nc.Questions.Q1),
		nullString(nc.Questions.Q2),
		nullString(nc.Questions.Q3),
		nc.Answers.A1,
		nc.Answers.A2,
		nc.Answers.A3,
		nc.ContributorAgent,
		nil,
		nil,
		time.Now().UTC().Format(time.RFC3339Nano),
	}
	if nc.Location != nil {
		args[12] = nc.Location.Latitude
		args[13] = nc.Location.Longitude
	}

	res, err := tx.ExecContext(ctx, insertContribution, args...)
	if err != nil {
		return nil, fmt.Errorf("inserting contribution: %w", classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading new contribution id: %w", err)
	}

	rootID := id
	if nc.LineageRootID != nil {
		rootID = *nc.LineageRootID
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE contributions SET lineage_root_id = ? WHERE id = ?", rootID, id); err != nil {
		return nil, fmt.Errorf("setting lineage root of %d: %w", id, classify(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing contribution: %w", classify(err))
	}

	b.log.Debug("contribution created", "id", id, "lineage_root_id", rootID)
	return b.getByID(ctx, b.db, id)
}

func checkParent(ctx context.Context, tx *sql.Tx, parentID, rootID int64) error {
	var parentRoot sql.NullInt64
	err := tx.QueryRowContext(ctx,
		"SELECT lineage_root_id FROM contributions WHERE id = ?", parentID).Scan(&parentRoot)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !parentRoot.Valid) {
		return fmt.Errorf("%w: parent %d does not exist", types.ErrIntegrity, parentID)
	}
	if err != nil {
		return fmt.Errorf("checking parent %d: %w", parentID, err)
	}
	if parentRoot.Int64 != rootID {
		return fmt.Errorf("%w: parent %d belongs to lineage %d, not %d",
			types.ErrIntegrity, parentID, parentRoot.Int64, rootID)
	}
	return nil
}

// GetByToken returns the committed contribution with the given share token.
func (b *Backend) GetByToken(ctx context.Context, token string) (*types.Contribution, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}
	if token == "" {
		return nil, types.ErrNotFound
	}

	row := b.db.QueryRowContext(ctx,
		"SELECT "+contributionColumns+" FROM contributions WHERE share_token = ? AND lineage_root_id IS NOT NULL",
		token)
	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading contribution by token: %w", err)
	}
	return c, nil
}

// GetByID returns the committed contribution with the given ID.
func (b *Backend) GetByID(ctx context.Context, id int64) (*types.Contribution, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}
	return b.getByID(ctx, b.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// getByID reads one row without taking the lock; callers hold it.
func (b *Backend) getByID(ctx context.Context, q querier, id int64) (*types.Contribution, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+contributionColumns+" FROM contributions WHERE id = ? AND lineage_root_id IS NOT NULL",
		id)
	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading contribution %d: %w", id, err)
	}
	return c, nil
}

// LatestWithLocation returns up to limit located contributions, newest first.
// A non-positive limit returns all of them.
func (b *Backend) LatestWithLocation(ctx context.Context, limit int) ([]*types.Contribution, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := b.db.QueryContext(ctx,
		"SELECT "+contributionColumns+` FROM contributions
    WHERE lineage_root_id IS NOT NULL AND latitude IS NOT NULL AND longitude IS NOT NULL
    ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying located contributions: %w", err)
	}
	defer rows.Close()

	var out []*types.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning located contribution: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of committed contributions.
func (b *Backend) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return 0, types.ErrBackendDetached
	}
	var n int
	err := b.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM contributions WHERE lineage_root_id IS NOT NULL").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting contributions: %w", err)
	}
	return n, nil
}

// SweepPending deletes rows left with a NULL lineage root and returns their
// image references so the caller can release the files.
func (b *Backend) SweepPending(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning sweep transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT image_filename FROM contributions WHERE lineage_root_id IS NULL")
	if err != nil {
		return nil, fmt.Errorf("querying pending contributions: %w", err)
	}
	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning pending contribution: %w", err)
		}
		refs = append(refs, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM contributions WHERE lineage_root_id IS NULL"); err != nil {
		return nil, fmt.Errorf("deleting pending contributions: %w", classify(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing sweep: %w", classify(err))
	}

	b.log.Info("swept pending contributions", "count", len(refs))
	return refs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContribution(row rowScanner) (*types.Contribution, error) {
	var (
		c            types.Contribution
		parent, root sql.NullInt64
		prompt       sql.NullString
		q1, q2, q3   sql.NullString
		desc, agent  sql.NullString
		a1, a2, a3   sql.NullString
		lat, lon     sql.NullFloat64
		createdAt    string
	)
	err := row.Scan(
		&c.ID, &c.ShareToken, &parent, &root, &prompt,
		&c.ImageRef, &desc, &q1, &q2, &q3,
		&a1, &a2, &a3, &agent, &lat, &lon,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if parent.Valid {
		p := parent.Int64
		c.ParentID = &p
	}
	c.LineageRootID = root.Int64
	c.Prompt = stringPtr(prompt)
	c.Description = desc.String
	c.Questions = types.Questions{Q1: stringPtr(q1), Q2: stringPtr(q2), Q3: stringPtr(q3)}
	c.Answers = types.Answers{A1: a1.String, A2: a2.String, A3: a3.String}
	c.ContributorAgent = agent.String
	if lat.Valid && lon.Valid {
		c.Location = &types.Location{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	return &c, nil
}

// classify maps SQLite constraint failures onto the package sentinels.
func classify(err error) error {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return duplicate(err)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %v", types.ErrIntegrity, err)
	case sqlite3.SQLITE_CONSTRAINT:
		msg := se.Error()
		switch {
		case strings.Contains(msg, "UNIQUE"):
			return duplicate(err)
		case strings.Contains(msg, "FOREIGN KEY"):
			return fmt.Errorf("%w: %v", types.ErrIntegrity, err)
		}
	}
	return err
}

// duplicate names the column of a uniqueness failure. Image collisions also
// carry ErrDuplicateImage.
func duplicate(err error) error {
	if strings.Contains(err.Error(), "contributions.image_filename") {
		return fmt.Errorf("%w: %w", types.ErrDuplicate, types.ErrDuplicateImage)
	}
	return fmt.Errorf("%w: %v", types.ErrDuplicate, err)
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
