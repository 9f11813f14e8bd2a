// This file implements contribution export to, and import from, JSONL files.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/vault/pkg/types"
)

// ErrStoreNotEmpty is returned by Import when the contributions table
// already holds rows.
var ErrStoreNotEmpty = errors.New("store already contains contributions")

// Export writes every committed contribution to path as JSONL, ordered by
// ID, and returns the number of records written. The file is replaced
// atomically.
func (b *Backend) Export(ctx context.Context, path string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return 0, types.ErrBackendDetached
	}

	rows, err := b.db.QueryContext(ctx,
		"SELECT "+contributionColumns+" FROM contributions WHERE lineage_root_id IS NOT NULL ORDER BY id")
	if err != nil {
		return 0, fmt.Errorf("querying contributions: %w", err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return 0, fmt.Errorf("scanning contribution: %w", err)
		}
		data, err := json.Marshal(toJSON(c))
		if err != nil {
			return 0, fmt.Errorf("encoding contribution %d: %w", c.ID, err)
		}
		records = append(records, data)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if err := writeJSONL(path, records); err != nil {
		return 0, err
	}
	b.log.Info("exported contributions", "path", path, "count", len(records))
	return len(records), nil
}

// Import loads a JSONL export into an empty store. Malformed lines and
// records missing required fields are skipped; unknown fields are ignored.
// Loading is transactional: foreign keys are checked at commit, so a file
// whose parents or roots do not resolve loads nothing and returns
// ErrIntegrity.
func (b *Backend) Import(ctx context.Context, path string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return 0, types.ErrBackendDetached
	}

	records, err := readJSONL(path)
	if err != nil {
		return 0, err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM contributions").Scan(&existing); err != nil {
		return 0, fmt.Errorf("counting contributions: %w", err)
	}
	if existing > 0 {
		return 0, ErrStoreNotEmpty
	}

	if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
		return 0, fmt.Errorf("deferring foreign keys: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO contributions ("+contributionColumns+
		") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("preparing import: %w", err)
	}
	defer stmt.Close()

	loaded := 0
	for _, raw := range records {
		var r contributionJSON
		if err := json.Unmarshal(raw, &r); err != nil || !r.valid() {
			b.log.Warn("skipping invalid import record", "record", string(raw))
			continue
		}
		_, err := stmt.ExecContext(ctx,
			r.ID, r.ShareToken, r.ParentContributionID, r.LineageRootID, r.ImagePrompt,
			r.ImageFilename, r.ImageDescription, r.SurveyQuestion1, r.SurveyQuestion2, r.SurveyQuestion3,
			r.SurveyAnswer1, r.SurveyAnswer2, r.SurveyAnswer3, r.ContributorUserAgent, r.Latitude, r.Longitude,
			r.CreatedAt,
		)
		if err != nil {
			err = classify(err)
			if errors.Is(err, types.ErrDuplicate) {
				b.log.Warn("skipping duplicate import record", "id", r.ID, "share_token", r.ShareToken)
				continue
			}
			return 0, fmt.Errorf("importing contribution %d: %w", r.ID, err)
		}
		loaded++
	}

	if err := checkLineageLinks(ctx, tx); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", classify(err))
	}
	b.log.Info("imported contributions", "path", path, "count", loaded)
	return loaded, nil
}

// linkChecks each count rows that break lineage linkage: a child on a
// different lineage than its parent, or a root reference that is not a root.
var linkChecks = []string{
	`SELECT COUNT(*) FROM contributions c JOIN contributions p ON c.parent_contribution_id = p.id
    WHERE c.lineage_root_id != p.lineage_root_id`,
	`SELECT COUNT(*) FROM contributions c JOIN contributions r ON c.lineage_root_id = r.id
    WHERE r.parent_contribution_id IS NOT NULL OR r.lineage_root_id != r.id`,
}

func checkLineageLinks(ctx context.Context, tx *sql.Tx) error {
	for _, q := range linkChecks {
		var bad int
		if err := tx.QueryRowContext(ctx, q).Scan(&bad); err != nil {
			return fmt.Errorf("checking lineage links: %w", err)
		}
		if bad > 0 {
			return fmt.Errorf("%w: %d imported contributions have inconsistent lineage links", types.ErrIntegrity, bad)
		}
	}
	return nil
}

func toJSON(c *types.Contribution) contributionJSON {
	r := contributionJSON{
		ID:                   c.ID,
		ShareToken:           c.ShareToken,
		ParentContributionID: c.ParentID,
		LineageRootID:        c.LineageRootID,
		ImagePrompt:          c.Prompt,
		ImageFilename:        c.ImageRef,
		ImageDescription:     c.Description,
		SurveyQuestion1:      c.Questions.Q1,
		SurveyQuestion2:      c.Questions.Q2,
		SurveyQuestion3:      c.Questions.Q3,
		SurveyAnswer1:        c.Answers.A1,
		SurveyAnswer2:        c.Answers.A2,
		SurveyAnswer3:        c.Answers.A3,
		ContributorUserAgent: c.ContributorAgent,
		CreatedAt:            c.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if c.Location != nil {
		lat, lon := c.Location.Latitude, c.Location.Longitude
		r.Latitude, r.Longitude = &lat, &lon
	}
	return r
}
