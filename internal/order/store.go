package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Store persists orders. Save is an upsert. SaveIf writes only while the
// stored order is still in status from and otherwise fails with
// ErrInvalidState, so two callers cannot both leave the same state.
type Store interface {
	Save(ctx context.Context, o *Order) error
	SaveIf(ctx context.Context, o *Order, from Status) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByVendor(ctx context.Context, vendorID string) ([]*Order, error)
	Close() error
}

const defaultStorePrefix = "dotprice:"

// RedisStore keeps each order as a JSON string and indexes orders per
// vendor in a sorted set scored by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultStorePrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) orderKey(id string) string      { return r.prefix + "order:" + id }
func (r *RedisStore) vendorKey(vendor string) string { return r.prefix + "vendor_orders:" + vendor }

func (r *RedisStore) Save(ctx context.Context, o *Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	pipe := r.client.TxPipeline()
	r.write(ctx, pipe, o, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save order failed: %w", err)
	}
	return nil
}

func (r *RedisStore) write(ctx context.Context, pipe redis.Pipeliner, o *Order, data []byte) {
	pipe.Set(ctx, r.orderKey(o.ID), data, 0)
	pipe.ZAdd(ctx, r.vendorKey(o.VendorID), redis.Z{
		Score:  float64(o.CreatedAt.UnixNano()),
		Member: o.ID,
	})
}

// SaveIf watches the order key, so a write by anyone else between the
// status check and EXEC aborts the transaction.
func (r *RedisStore) SaveIf(ctx context.Context, o *Order, from Status) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	key := r.orderKey(o.ID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("redis get order failed: %w", err)
		}
		var stored struct {
			Status Status `json:"status"`
		}
		if err := json.Unmarshal(cur, &stored); err != nil {
			return fmt.Errorf("unmarshal order %s: %w", o.ID, err)
		}
		if stored.Status != from {
			return fmt.Errorf("%w: order %s is %s, not %s", ErrInvalidState, o.ID, stored.Status, from)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			r.write(ctx, pipe, o, data)
			return nil
		})
		return err
	}, key)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: order %s changed concurrently", ErrInvalidState, o.ID)
	case err != nil && !errors.Is(err, ErrInvalidState) && !errors.Is(err, ErrOrderNotFound):
		return fmt.Errorf("redis save order failed: %w", err)
	}
	return err
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Order, error) {
	data, err := r.client.Get(ctx, r.orderKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get order failed: %w", err)
	}
	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order %s: %w", id, err)
	}
	return &o, nil
}

func (r *RedisStore) ListByVendor(ctx context.Context, vendorID string) ([]*Order, error) {
	ids, err := r.client.ZRevRange(ctx, r.vendorKey(vendorID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list orders failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.orderKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list orders failed: %w", err)
	}
	orders := make([]*Order, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // index entry without a body
		}
		var o Order
		if err := json.Unmarshal([]byte(s), &o); err != nil {
			return nil, fmt.Errorf("unmarshal order %s: %w", ids[i], err)
		}
		orders = append(orders, &o)
	}
	return orders, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

const postgresSchema = `CREATE TABLE IF NOT EXISTS domain_orders (
	id         TEXT PRIMARY KEY,
	vendor_id  TEXT NOT NULL,
	domain     TEXT NOT NULL,
	status     TEXT NOT NULL,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS domain_orders_vendor_idx ON domain_orders (vendor_id, created_at DESC);`

// PostgresStore keeps the whole order in a JSONB column next to the
// columns it is queried by.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects with lib/pq and creates the table if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)

	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create domain_orders: %w", err)
	}
	return nil
}

func (p *PostgresStore) Save(ctx context.Context, o *Order) error {
	body, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	const q = `INSERT INTO domain_orders (id, vendor_id, domain, status, body, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7)
	           ON CONFLICT (id) DO UPDATE
	           SET status = EXCLUDED.status, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
	_, err = p.db.ExecContext(ctx, q, o.ID, o.VendorID, o.Domain, string(o.Status), body, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return fmt.Errorf("save order %s: %s: %w", o.ID, pqErr.Code.Name(), err)
		}
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

func (p *PostgresStore) SaveIf(ctx context.Context, o *Order, from Status) error {
	body, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	const q = `UPDATE domain_orders SET status = $2, body = $3, updated_at = $4
	           WHERE id = $1 AND status = $5`
	res, err := p.db.ExecContext(ctx, q, o.ID, string(o.Status), body, o.UpdatedAt, string(from))
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	if n == 0 {
		if _, err := p.Get(ctx, o.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: order %s is no longer %s", ErrInvalidState, o.ID, from)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	var body []byte
	err := p.db.QueryRowContext(ctx, `SELECT body FROM domain_orders WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	var o Order
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order %s: %w", id, err)
	}
	return &o, nil
}

func (p *PostgresStore) ListByVendor(ctx context.Context, vendorID string) ([]*Order, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT body FROM domain_orders WHERE vendor_id = $1 ORDER BY created_at DESC`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("query orders by vendor: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		var o Order
		if err := json.Unmarshal(body, &o); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
