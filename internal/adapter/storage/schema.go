package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS spaces (
		id          VARCHAR(36)  NOT NULL PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		owner_id    VARCHAR(255) NOT NULL,
		owner_name  VARCHAR(255) NOT NULL DEFAULT '',
		created_at  DATETIME(6)  NOT NULL,
		updated_at  DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_spaces_owner_name (owner_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id               VARCHAR(36)    NOT NULL PRIMARY KEY,
		space_id         VARCHAR(36)    NOT NULL,
		name             VARCHAR(255)   NOT NULL,
		price            DECIMAL(14, 4) NOT NULL,
		current_stock    INT            NOT NULL,
		minimum_quantity INT            NOT NULL,
		maximum_quantity INT            NOT NULL,
		version          INT            NOT NULL DEFAULT 1,
		created_at       DATETIME(6)    NOT NULL,
		updated_at       DATETIME(6)    NOT NULL,
		KEY idx_products_space (space_id),
		CONSTRAINT fk_products_space FOREIGN KEY (space_id) REFERENCES spaces (id)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_adjustments (
		seq             BIGINT      NOT NULL AUTO_INCREMENT PRIMARY KEY,
		id              VARCHAR(36) NOT NULL UNIQUE,
		product_id      VARCHAR(36) NOT NULL,
		space_id        VARCHAR(36) NOT NULL,
		owner_id        VARCHAR(255) NOT NULL,
		direction       VARCHAR(16) NOT NULL,
		quantity        INT         NOT NULL,
		previous_stock  INT         NOT NULL,
		resulting_stock INT         NOT NULL,
		request_id      VARCHAR(255) NOT NULL DEFAULT '',
		created_at      DATETIME(6) NOT NULL,
		KEY idx_adjustments_product (product_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		seq                 BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
		id                  VARCHAR(36)  NOT NULL UNIQUE,
		owner_id            VARCHAR(255) NOT NULL,
		entity_type         VARCHAR(16)  NOT NULL,
		entity_id           VARCHAR(36)  NOT NULL,
		operation           VARCHAR(16)  NOT NULL,
		details             TEXT         NOT NULL,
		related_entity_type VARCHAR(16)  NOT NULL DEFAULT '',
		related_entity_id   VARCHAR(36)  NOT NULL DEFAULT '',
		ip_address          VARCHAR(64)  NOT NULL DEFAULT '',
		user_agent          VARCHAR(512) NOT NULL DEFAULT '',
		created_at          DATETIME(6)  NOT NULL,
		KEY idx_audit_owner (owner_id, seq)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS spaces (
		id          VARCHAR(36)  PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		owner_id    VARCHAR(255) NOT NULL,
		owner_name  VARCHAR(255) NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ  NOT NULL,
		updated_at  TIMESTAMPTZ  NOT NULL,
		CONSTRAINT uq_spaces_owner_name UNIQUE (owner_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id               VARCHAR(36)    PRIMARY KEY,
		space_id         VARCHAR(36)    NOT NULL REFERENCES spaces (id),
		name             VARCHAR(255)   NOT NULL,
		price            NUMERIC(14, 4) NOT NULL,
		current_stock    INTEGER        NOT NULL,
		minimum_quantity INTEGER        NOT NULL,
		maximum_quantity INTEGER        NOT NULL,
		version          INTEGER        NOT NULL DEFAULT 1,
		created_at       TIMESTAMPTZ    NOT NULL,
		updated_at       TIMESTAMPTZ    NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_space ON products (space_id)`,
	`CREATE TABLE IF NOT EXISTS stock_adjustments (
		seq             BIGSERIAL    PRIMARY KEY,
		id              VARCHAR(36)  NOT NULL UNIQUE,
		product_id      VARCHAR(36)  NOT NULL,
		space_id        VARCHAR(36)  NOT NULL,
		owner_id        VARCHAR(255) NOT NULL,
		direction       VARCHAR(16)  NOT NULL,
		quantity        INTEGER      NOT NULL,
		previous_stock  INTEGER      NOT NULL,
		resulting_stock INTEGER      NOT NULL,
		request_id      VARCHAR(255) NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ  NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_adjustments_product ON stock_adjustments (product_id, seq)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		seq                 BIGSERIAL    PRIMARY KEY,
		id                  VARCHAR(36)  NOT NULL UNIQUE,
		owner_id            VARCHAR(255) NOT NULL,
		entity_type         VARCHAR(16)  NOT NULL,
		entity_id           VARCHAR(36)  NOT NULL,
		operation           VARCHAR(16)  NOT NULL,
		details             TEXT         NOT NULL,
		related_entity_type VARCHAR(16)  NOT NULL DEFAULT '',
		related_entity_id   VARCHAR(36)  NOT NULL DEFAULT '',
		ip_address          VARCHAR(64)  NOT NULL DEFAULT '',
		user_agent          VARCHAR(512) NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ  NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_owner ON audit_logs (owner_id, seq)`,
}

// Migrate creates the tables the SQL adapter expects. It is safe to run twice.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	var stmts []string
	switch dialect {
	case DialectMySQL:
		stmts = mysqlSchema
	case DialectPostgres:
		stmts = postgresSchema
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
