package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/port"
)

type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// SQLAdapter implements port.DatabaseRepository on MySQL or PostgreSQL.
// Queries are written with '?' placeholders and rebound for PostgreSQL.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
}

var _ port.DatabaseRepository = (*SQLAdapter)(nil)

func NewSQLAdapter(db *sql.DB, dialect Dialect) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: dialect}
}

// OpenSQL opens and pings a pooled connection for the dialect's driver.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	dsn, err := normalizeDSN(dialect, dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, nil
}

// normalizeDSN forces DATETIME columns to scan into time.Time on MySQL.
func normalizeDSN(dialect Dialect, dsn string) (string, error) {
	if dialect != DialectMySQL {
		return dsn, nil
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func (a *SQLAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *SQLAdapter) Close() error {
	return a.db.Close()
}

func (a *SQLAdapter) rebind(query string) string {
	if a.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func isMissingParent(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1452
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return false
}

func (a *SQLAdapter) CreateSpace(ctx context.Context, space domain.Space) error {
	_, err := a.db.ExecContext(ctx, a.rebind(`
		INSERT INTO spaces (id, name, owner_id, owner_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		space.ID, space.Name, space.OwnerID, space.OwnerName, space.CreatedAt, space.UpdatedAt,
	)
	if isDuplicate(err) {
		return port.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert space: %w", err)
	}
	return nil
}

const spaceColumns = `id, name, owner_id, owner_name, created_at, updated_at`

func scanSpace(row interface{ Scan(...any) error }) (domain.Space, error) {
	var s domain.Space
	err := row.Scan(&s.ID, &s.Name, &s.OwnerID, &s.OwnerName, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (a *SQLAdapter) GetSpace(ctx context.Context, spaceID string) (*domain.Space, error) {
	s, err := scanSpace(a.db.QueryRowContext(ctx, a.rebind(`
		SELECT `+spaceColumns+` FROM spaces WHERE id = ?`), spaceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query space: %w", err)
	}
	return &s, nil
}

func (a *SQLAdapter) ListSpaces(ctx context.Context, ownerID string) ([]domain.Space, error) {
	rows, err := a.db.QueryContext(ctx, a.rebind(`
		SELECT `+spaceColumns+` FROM spaces
		WHERE owner_id = ?
		ORDER BY created_at DESC, id ASC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("query spaces: %w", err)
	}
	defer rows.Close()

	spaces := make([]domain.Space, 0)
	for rows.Next() {
		s, err := scanSpace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		spaces = append(spaces, s)
	}
	return spaces, rows.Err()
}

func (a *SQLAdapter) CountSpaces(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, a.rebind(`SELECT COUNT(*) FROM spaces WHERE owner_id = ?`), ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count spaces: %w", err)
	}
	return n, nil
}

func (a *SQLAdapter) UpdateSpace(ctx context.Context, space domain.Space) error {
	result, err := a.db.ExecContext(ctx, a.rebind(`
		UPDATE spaces SET name = ?, updated_at = ? WHERE id = ?`),
		space.Name, space.UpdatedAt, space.ID,
	)
	if isDuplicate(err) {
		return port.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update space: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrNotFound
	}
	return nil
}

func (a *SQLAdapter) DeleteSpace(ctx context.Context, spaceID string) (int, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, a.rebind(`
		DELETE FROM stock_adjustments
		WHERE product_id IN (SELECT id FROM products WHERE space_id = ?)`), spaceID)
	if err != nil {
		return 0, fmt.Errorf("delete adjustments: %w", err)
	}

	result, err := tx.ExecContext(ctx, a.rebind(`DELETE FROM products WHERE space_id = ?`), spaceID)
	if err != nil {
		return 0, fmt.Errorf("delete products: %w", err)
	}
	removed, _ := result.RowsAffected()

	result, err = tx.ExecContext(ctx, a.rebind(`DELETE FROM spaces WHERE id = ?`), spaceID)
	if err != nil {
		return 0, fmt.Errorf("delete space: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return 0, port.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(removed), nil
}

func (a *SQLAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	_, err := a.db.ExecContext(ctx, a.rebind(`
		INSERT INTO products (id, space_id, name, price, current_stock, minimum_quantity,
			maximum_quantity, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		product.ID, product.SpaceID, product.Name, product.Price, product.CurrentStock,
		product.MinimumQuantity, product.MaximumQuantity, product.Version,
		product.CreatedAt, product.UpdatedAt,
	)
	switch {
	case isMissingParent(err):
		return port.ErrNotFound
	case isDuplicate(err):
		return port.ErrDuplicate
	case err != nil:
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

const productColumns = `id, space_id, name, price, current_stock, minimum_quantity,
	maximum_quantity, version, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SpaceID, &p.Name, &p.Price, &p.CurrentStock, &p.MinimumQuantity,
		&p.MaximumQuantity, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (a *SQLAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	p, err := scanProduct(a.db.QueryRowContext(ctx, a.rebind(`
		SELECT `+productColumns+` FROM products WHERE id = ?`), productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (a *SQLAdapter) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := a.db.QueryContext(ctx, a.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (a *SQLAdapter) ListProducts(ctx context.Context, spaceID string) ([]domain.Product, error) {
	return a.queryProducts(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE space_id = ?
		ORDER BY created_at DESC, id ASC`, spaceID)
}

func (a *SQLAdapter) ListProductsByOwner(ctx context.Context, ownerID string) ([]domain.Product, error) {
	return a.queryProducts(ctx, `
		SELECT p.id, p.space_id, p.name, p.price, p.current_stock, p.minimum_quantity,
			p.maximum_quantity, p.version, p.created_at, p.updated_at
		FROM products p JOIN spaces s ON s.id = p.space_id
		WHERE s.owner_id = ?
		ORDER BY p.created_at DESC, p.id ASC`, ownerID)
}

func (a *SQLAdapter) CountProducts(ctx context.Context, spaceID string) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, a.rebind(`SELECT COUNT(*) FROM products WHERE space_id = ?`), spaceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

func (a *SQLAdapter) UpdateProduct(ctx context.Context, product domain.Product) error {
	result, err := a.db.ExecContext(ctx, a.rebind(`
		UPDATE products
		SET name = ?, price = ?, minimum_quantity = ?, maximum_quantity = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`),
		product.Name, product.Price, product.MinimumQuantity, product.MaximumQuantity,
		product.UpdatedAt, product.ID, product.Version,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrOptimisticLock
	}
	return nil
}

func (a *SQLAdapter) DeleteProduct(ctx context.Context, productID string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, a.rebind(`DELETE FROM stock_adjustments WHERE product_id = ?`), productID); err != nil {
		return fmt.Errorf("delete adjustments: %w", err)
	}

	result, err := tx.ExecContext(ctx, a.rebind(`DELETE FROM products WHERE id = ?`), productID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrNotFound
	}

	return tx.Commit()
}

func (a *SQLAdapter) ApplyAdjustment(ctx context.Context, product domain.Product, adj domain.StockAdjustment) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, a.rebind(`
		UPDATE products
		SET current_stock = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`),
		product.CurrentStock, product.UpdatedAt, product.ID, product.Version,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrOptimisticLock
	}

	_, err = tx.ExecContext(ctx, a.rebind(`
		INSERT INTO stock_adjustments (id, product_id, space_id, owner_id, direction, quantity,
			previous_stock, resulting_stock, request_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		adj.ID, adj.ProductID, adj.SpaceID, adj.OwnerID, adj.Direction, adj.Quantity,
		adj.PreviousStock, adj.ResultingStock, adj.RequestID, adj.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}

	return tx.Commit()
}

func (a *SQLAdapter) ListAdjustments(ctx context.Context, productID string, limit int) ([]domain.StockAdjustment, error) {
	query := `
		SELECT id, product_id, space_id, owner_id, direction, quantity,
			previous_stock, resulting_stock, request_id, created_at
		FROM stock_adjustments
		WHERE product_id = ?
		ORDER BY seq DESC`
	args := []any{productID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, a.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query adjustments: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StockAdjustment, 0)
	for rows.Next() {
		var adj domain.StockAdjustment
		if err := rows.Scan(&adj.ID, &adj.ProductID, &adj.SpaceID, &adj.OwnerID, &adj.Direction,
			&adj.Quantity, &adj.PreviousStock, &adj.ResultingStock, &adj.RequestID, &adj.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		out = append(out, adj)
	}
	return out, rows.Err()
}

func (a *SQLAdapter) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}

	_, err = a.db.ExecContext(ctx, a.rebind(`
		INSERT INTO audit_logs (id, owner_id, entity_type, entity_id, operation, details,
			related_entity_type, related_entity_id, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.OwnerID, entry.EntityType, entry.EntityID, entry.Operation, string(details),
		entry.RelatedEntityType, entry.RelatedEntityID, entry.IPAddress, entry.UserAgent, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (a *SQLAdapter) ListAudit(ctx context.Context, ownerID string, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT id, owner_id, entity_type, entity_id, operation, details,
			related_entity_type, related_entity_id, ip_address, user_agent, created_at
		FROM audit_logs
		WHERE owner_id = ?`)
	args := []any{ownerID}
	if filter.EntityType != "" {
		b.WriteString(` AND entity_type = ?`)
		args = append(args, filter.EntityType)
	}
	if filter.Operation != "" {
		b.WriteString(` AND operation = ?`)
		args = append(args, filter.Operation)
	}
	if filter.EntityID != "" {
		b.WriteString(` AND entity_id = ?`)
		args = append(args, filter.EntityID)
	}
	if !filter.Since.IsZero() {
		b.WriteString(` AND created_at >= ?`)
		args = append(args, filter.Since)
	}
	b.WriteString(` ORDER BY seq DESC`)
	if filter.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	rows, err := a.db.QueryContext(ctx, a.rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			e       domain.AuditEntry
			details string
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.EntityType, &e.EntityID, &e.Operation, &details,
			&e.RelatedEntityType, &e.RelatedEntityID, &e.IPAddress, &e.UserAgent, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if details != "" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
