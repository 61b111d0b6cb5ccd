package postgres

import (
	"context"

	"github.com/pkg/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS resources (
		id                    UUID PRIMARY KEY,
		type                  VARCHAR(50)  NOT NULL,
		country_code          CHAR(2)      NOT NULL,
		street_address        VARCHAR(255) NOT NULL,
		city                  VARCHAR(100) NOT NULL,
		postal_code           VARCHAR(20)  NOT NULL,
		location_country_code CHAR(2)      NOT NULL,
		created_at            TIMESTAMPTZ  NOT NULL,
		updated_at            TIMESTAMPTZ  NOT NULL,
		version               BIGINT       NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_resources_country_code ON resources (country_code)`,
	`CREATE INDEX IF NOT EXISTS idx_resources_type ON resources (type)`,
	`CREATE INDEX IF NOT EXISTS idx_resources_created_at ON resources (created_at)`,
	`CREATE TABLE IF NOT EXISTS characteristics (
		id          UUID PRIMARY KEY,
		resource_id UUID         NOT NULL REFERENCES resources (id) ON DELETE CASCADE,
		code        VARCHAR(5)   NOT NULL,
		type        VARCHAR(50)  NOT NULL,
		value       VARCHAR(255) NOT NULL,
		position    INTEGER      NOT NULL DEFAULT 0,
		CONSTRAINT uk_resource_code_type UNIQUE (resource_id, code, type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_characteristics_resource_id ON characteristics (resource_id)`,
}

// Migrate creates the schema if it does not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}
