package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/fjod/go_pos/pos-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Repository is the sqlite backed catalog. It implements API.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) List(ctx context.Context, tenantSlug string) (*domain.Listing, error) {
	categories, err := r.listCategories(ctx, tenantSlug)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, name, code, unit_price, image_ref, category_id, active
		FROM products
		WHERE tenant_slug = ?
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, tenantSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return &domain.Listing{Products: products, Categories: categories}, nil
}

func (r *Repository) Get(ctx context.Context, tenantSlug string, id int64) (*domain.Product, error) {
	query := `
		SELECT id, name, code, unit_price, image_ref, category_id, active
		FROM products
		WHERE tenant_slug = ? AND id = ?
	`
	p, err := scanProduct(r.db.QueryRowContext(ctx, query, tenantSlug, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Save upserts the listing of one tenant in a single transaction.
func (r *Repository) Save(ctx context.Context, tenantSlug string, listing *domain.Listing) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range listing.Categories {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, tenant_slug, name, active)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name, active = excluded.active
		`, c.ID, tenantSlug, c.Name, c.Active)
		if err != nil {
			return fmt.Errorf("failed to save category %d: %w", c.ID, err)
		}
	}

	for _, p := range listing.Products {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, tenant_slug, name, code, unit_price, image_ref, category_id, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name,
				code = excluded.code,
				unit_price = excluded.unit_price,
				image_ref = excluded.image_ref,
				category_id = excluded.category_id,
				active = excluded.active
		`, p.ID, tenantSlug, p.Name, p.Code, p.UnitPrice.String(), p.ImageRef, p.CategoryID, p.Active)
		if err != nil {
			return fmt.Errorf("failed to save product %d: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) listCategories(ctx context.Context, tenantSlug string) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, active FROM categories WHERE tenant_slug = ? ORDER BY id
	`, tenantSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Active); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return categories, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.UnitPrice, &p.ImageRef, &p.CategoryID, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	return p, nil
}
