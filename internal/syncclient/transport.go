package syncclient

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// FixtureTransport is a MySQL-backed stand-in for the real sync
// protocol's wire transport (out of scope per §1): it stores realm
// snapshots as opaque blobs keyed by realm path and version, enough to
// exercise ResetController's DownloadFresh/Upload against a real
// driver and connection lifecycle. Grounded on the teacher's
// apply.Applier.Connect/Close pair.
type FixtureTransport struct {
	db *sql.DB
}

// Connect opens and pings a MySQL connection, mirroring
// Applier.Connect's open-then-ping-then-store pattern.
func Connect(ctx context.Context, dsn string) (*FixtureTransport, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("syncclient: open connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("syncclient: ping failed: %w; close also failed: %w", err, closeErr)
		}
		return nil, fmt.Errorf("syncclient: ping failed: %w", err)
	}
	return &FixtureTransport{db: db}, nil
}

func (t *FixtureTransport) Close() error {
	if t.db == nil {
		return nil
	}
	return t.db.Close()
}

// EnsureSchema creates the fixture table if absent. A real deployment
// would run this via a migration; here it is inlined since the
// fixture's only purpose is exercising the reset state machine against
// a real connection.
func (t *FixtureTransport) EnsureSchema(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sync_fixture_snapshots (
			realm_path VARCHAR(255) NOT NULL,
			version    BIGINT NOT NULL,
			payload    LONGBLOB NOT NULL,
			PRIMARY KEY (realm_path, version)
		)`)
	if err != nil {
		return fmt.Errorf("syncclient: ensure schema: %w", err)
	}
	return nil
}

// FetchLatest returns the highest-versioned payload stored for path,
// for use as a ResetController Fetcher.
func (t *FixtureTransport) FetchLatest(ctx context.Context, path string) (version uint64, payload []byte, err error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT version, payload FROM sync_fixture_snapshots
		WHERE realm_path = ? ORDER BY version DESC LIMIT 1`, path)
	if scanErr := row.Scan(&version, &payload); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return 0, nil, fmt.Errorf("syncclient: no fixture snapshot for %s: %w", path, scanErr)
		}
		return 0, nil, fmt.Errorf("syncclient: fetch latest: %w", scanErr)
	}
	return version, payload, nil
}

// Upload stores payload as the next version for path, for use as a
// ResetController Uploader.
func (t *FixtureTransport) Upload(ctx context.Context, path string, version uint64, payload []byte) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO sync_fixture_snapshots (realm_path, version, payload) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE payload = VALUES(payload)`, path, version, payload)
	if err != nil {
		return fmt.Errorf("syncclient: upload: %w", err)
	}
	return nil
}
