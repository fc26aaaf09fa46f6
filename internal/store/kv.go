package store

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// KVRepo stores opaque values by key. It satisfies persist.KV.
type KVRepo struct {
	drv *entsql.Driver
}

func (r *KVRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query, args := builder().
		Select("value").
		From(entsql.Table("kv")).
		Where(entsql.EQ("key", key)).
		Limit(1).
		Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, false, fmt.Errorf("query kv: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, rows.Err()
	}
	var value []byte
	if err := rows.Scan(&value); err != nil {
		return nil, false, fmt.Errorf("scan kv: %w", err)
	}
	return value, true, nil
}

func (r *KVRepo) Put(ctx context.Context, key string, value []byte) error {
	query, args := builder().
		Insert("kv").
		Columns("key", "value", "updated_at").
		Values(key, value, time.Now().UnixMilli()).
		OnConflict(
			entsql.ConflictColumns("key"),
			entsql.ResolveWithNewValues(),
		).
		Query()

	if err := exec(ctx, r.drv, query, args); err != nil {
		return fmt.Errorf("put kv: %w", err)
	}
	return nil
}

func (r *KVRepo) Delete(ctx context.Context, key string) error {
	query, args := builder().
		Delete("kv").
		Where(entsql.EQ("key", key)).
		Query()

	if err := exec(ctx, r.drv, query, args); err != nil {
		return fmt.Errorf("delete kv: %w", err)
	}
	return nil
}
