package database

import (
	"context"
	"fmt"
)

// ChangeChannel is the NOTIFY channel the documents trigger publishes the
// changed collection path on.
const ChangeChannel = "docstore_changes"

const documentsMigration = `
CREATE TABLE IF NOT EXISTS documents (
    collection text NOT NULL,
    id text NOT NULL,
    data jsonb NOT NULL,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS documents_data_idx
ON documents USING GIN (data jsonb_path_ops);

CREATE OR REPLACE FUNCTION documents_notify() RETURNS trigger AS $$
BEGIN
    IF TG_OP = 'DELETE' THEN
        PERFORM pg_notify('` + ChangeChannel + `', OLD.collection);
    ELSE
        PERFORM pg_notify('` + ChangeChannel + `', NEW.collection);
    END IF;
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS documents_notify ON documents;

CREATE TRIGGER documents_notify
AFTER INSERT OR UPDATE OR DELETE ON documents
FOR EACH ROW EXECUTE FUNCTION documents_notify();
`

const accountsMigration = `
CREATE TABLE IF NOT EXISTS auth_accounts (
    id text PRIMARY KEY,
    email text NOT NULL,
    password_hash text NOT NULL,
    display_name text NOT NULL DEFAULT '',
    photo_url text NOT NULL DEFAULT '',
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS auth_accounts_email_lower_unique
ON auth_accounts (LOWER(email));
`

// Migrate creates the document table and the identity provider tables.
func (c *Connection) Migrate(ctx context.Context, withDocuments bool) error {
	if withDocuments {
		if _, err := c.DB.ExecContext(ctx, documentsMigration); err != nil {
			return fmt.Errorf("failed to migrate documents: %w", err)
		}
	}
	if _, err := c.DB.ExecContext(ctx, accountsMigration); err != nil {
		return fmt.Errorf("failed to migrate auth accounts: %w", err)
	}
	return nil
}
