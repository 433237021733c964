package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fidde/otelstore/pkg/models"
)

// identityCache memoizes resolved identity rows for one batch-store
// call, so repeated descriptions in a batch cost one round-trip.
type identityCache struct {
	resources map[string]int64
	scopes    map[string]int64
}

func newIdentityCache() *identityCache {
	return &identityCache{
		resources: make(map[string]int64),
		scopes:    make(map[string]int64),
	}
}

// resolveResource returns the durable row id for a resource
// description, creating the row if absent. Dedup relies on the
// UNIQUE(hash) constraint: a lost insert race falls through to a
// re-read instead of surfacing the constraint violation.
func (s *Store) resolveResource(ctx context.Context, tx *sql.Tx, cache *identityCache, res *models.Resource) (int64, error) {
	if res == nil {
		res = models.UnknownResource()
	}
	hash, err := res.Hash()
	if err != nil {
		return 0, err
	}
	if id, ok := cache.resources[hash]; ok {
		return id, nil
	}

	attrs, err := models.EncodeAttributes(res.Attributes)
	if err != nil {
		return 0, err
	}

	id, err := getOrCreate(ctx, tx, hash,
		`SELECT id FROM resources WHERE hash = ?`,
		`INSERT INTO resources (hash, schema_url, attributes) VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		res.SchemaURL, attrs)
	if err != nil {
		return 0, fmt.Errorf("resolving resource: %w", err)
	}

	cache.resources[hash] = id
	return id, nil
}

// resolveScope is the scope counterpart of resolveResource.
func (s *Store) resolveScope(ctx context.Context, tx *sql.Tx, cache *identityCache, sc *models.Scope) (int64, error) {
	if sc == nil {
		sc = models.UnknownScope()
	}
	hash, err := sc.Hash()
	if err != nil {
		return 0, err
	}
	if id, ok := cache.scopes[hash]; ok {
		return id, nil
	}

	attrs, err := models.EncodeAttributes(sc.Attributes)
	if err != nil {
		return 0, err
	}

	id, err := getOrCreate(ctx, tx, hash,
		`SELECT id FROM instrumentation_scopes WHERE hash = ?`,
		`INSERT INTO instrumentation_scopes (hash, name, version, schema_url, attributes)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT(hash) DO NOTHING`,
		sc.Name, sc.Version, sc.SchemaURL, attrs)
	if err != nil {
		return 0, fmt.Errorf("resolving scope: %w", err)
	}

	cache.scopes[hash] = id
	return id, nil
}

// getOrCreate looks a row up by hash, inserting it when absent. The
// insert ignores conflicts, so when a concurrent writer created the
// row first the follow-up lookup finds the winner's row.
func getOrCreate(ctx context.Context, tx *sql.Tx, hash, selectSQL, insertSQL string, insertArgs ...any) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, selectSQL, hash).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("identity lookup: %w", err)
	}

	args := append([]any{hash}, insertArgs...)
	res, err := tx.ExecContext(ctx, insertSQL, args...)
	if err != nil {
		return 0, fmt.Errorf("identity insert: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		if id, err := res.LastInsertId(); err == nil {
			return id, nil
		}
	}

	// Insert was a no-op: a concurrent writer won the race. Re-read.
	if err := tx.QueryRowContext(ctx, selectSQL, hash).Scan(&id); err != nil {
		return 0, fmt.Errorf("identity re-read after conflict: %w", err)
	}
	return id, nil
}
