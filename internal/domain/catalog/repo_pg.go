package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medicore/hms/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cols = `id, name, category, unit_price, active, created_at, updated_at`

func scan(row pgx.Row) (*Service, error) {
	var s Service
	err := row.Scan(&s.ID, &s.Name, &s.Category, &s.UnitPrice, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Create(ctx context.Context, s *Service) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO service_catalog (id, name, category, unit_price, active)
		VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.Name, s.Category, s.UnitPrice, s.Active)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM service_catalog WHERE id = $1`, id))
}

func (r *repoPG) FindByNameCategory(ctx context.Context, name, category string) (*Service, error) {
	return scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM service_catalog WHERE name = $1 AND category = $2 AND active`, name, category))
}

func (r *repoPG) Update(ctx context.Context, s *Service) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE service_catalog SET name=$2, category=$3, unit_price=$4, active=$5, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.Name, s.Category, s.UnitPrice, s.Active)
	return err
}

func (r *repoPG) List(ctx context.Context, category string, limit, offset int) ([]*Service, int, error) {
	c := r.conn(ctx)
	where := ""
	args := []interface{}{}
	if category != "" {
		where = `WHERE category = $1`
		args = append(args, category)
	}
	var total int
	if err := c.QueryRow(ctx, `SELECT COUNT(*) FROM service_catalog `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + cols + ` FROM service_catalog ` + where + ` ORDER BY category, name`
	if category != "" {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	rows, err := c.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Service
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}
