package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE mappings (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL,
				pairs TEXT NOT NULL DEFAULT '[]',
				unset TEXT NOT NULL DEFAULT '[]',
				"cast" TEXT NOT NULL DEFAULT '[]',
				pass_through BOOLEAN NOT NULL DEFAULT FALSE
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE synchronizations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL,
				source_ref TEXT NOT NULL,
				source_type TEXT NOT NULL,
				target_ref TEXT NOT NULL,
				target_type TEXT NOT NULL,
				register_ref TEXT,
				schema_ref TEXT,
				source_target_mapping_id INTEGER REFERENCES mappings(id),
				target_source_mapping_id INTEGER REFERENCES mappings(id),
				condition TEXT NOT NULL DEFAULT '',
				current_page INTEGER NOT NULL DEFAULT 0,
				source_last_changed TIMESTAMPTZ,
				source_last_checked TIMESTAMPTZ,
				source_last_synced TIMESTAMPTZ,
				target_last_changed TIMESTAMPTZ,
				target_last_checked TIMESTAMPTZ,
				target_last_synced TIMESTAMPTZ,
				version INTEGER NOT NULL DEFAULT 0
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		// Event routing looks synchronizations up by source object type.
		_, err = db.Exec(`CREATE INDEX ix_synchronizations_register_schema ON synchronizations(register_ref, schema_ref)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE rules (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				synchronization_id INTEGER NOT NULL REFERENCES synchronizations(id) ON DELETE CASCADE,
				name TEXT NOT NULL DEFAULT '',
				timing TEXT NOT NULL,
				type TEXT NOT NULL,
				condition TEXT NOT NULL DEFAULT '',
				configuration TEXT NOT NULL DEFAULT '{}',
				rule_order INTEGER NOT NULL DEFAULT 0
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX ix_rules_synchronization_id ON rules(synchronization_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE synchronization_contracts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				synchronization_id INTEGER NOT NULL REFERENCES synchronizations(id) ON DELETE CASCADE,
				origin_id TEXT NOT NULL,
				origin_hash TEXT NOT NULL DEFAULT '',
				source_last_changed TIMESTAMPTZ,
				source_last_checked TIMESTAMPTZ,
				source_last_synced TIMESTAMPTZ,
				target_id TEXT,
				target_hash TEXT NOT NULL DEFAULT '',
				target_last_changed TIMESTAMPTZ,
				target_last_checked TIMESTAMPTZ,
				target_last_synced TIMESTAMPTZ,
				target_last_action TEXT
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		// The uniqueness invariant: at most one live contract per
		// (synchronization, origin) pair.
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_contracts_sync_origin ON synchronization_contracts(synchronization_id, origin_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX ix_contracts_target_id ON synchronization_contracts(target_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE synchronization_logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				synchronization_id INTEGER NOT NULL REFERENCES synchronizations(id) ON DELETE CASCADE,
				run_id TEXT NOT NULL,
				result TEXT NOT NULL DEFAULT '{}',
				execution_time_ms INTEGER NOT NULL DEFAULT 0,
				test BOOLEAN NOT NULL DEFAULT FALSE,
				force BOOLEAN NOT NULL DEFAULT FALSE,
				expires TIMESTAMPTZ NOT NULL,
				size INTEGER NOT NULL DEFAULT 0
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX ix_sync_logs_expires ON synchronization_logs(expires)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE synchronization_contract_logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				synchronization_contract_id INTEGER NOT NULL,
				synchronization_log_id INTEGER REFERENCES synchronization_logs(id) ON DELETE CASCADE,
				source_snapshot TEXT NOT NULL DEFAULT '',
				target_snapshot TEXT NOT NULL DEFAULT '',
				target_result TEXT NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				test BOOLEAN NOT NULL DEFAULT FALSE,
				force BOOLEAN NOT NULL DEFAULT FALSE,
				expires TIMESTAMPTZ NOT NULL,
				size INTEGER NOT NULL DEFAULT 0
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX ix_contract_logs_log_id ON synchronization_contract_logs(synchronization_log_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX ix_contract_logs_expires ON synchronization_contract_logs(expires)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE jobs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				type TEXT NOT NULL,
				status TEXT NOT NULL,
				data TEXT NOT NULL DEFAULT '{}',
				process_id TEXT,
				synchronization_log_id INTEGER REFERENCES synchronization_logs(id)
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX ix_jobs_status_created_at ON jobs(status, created_at)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE object_locks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				synchronization_id INTEGER NOT NULL,
				origin_id TEXT NOT NULL,
				owner TEXT NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE UNIQUE INDEX ux_object_locks_sync_origin ON object_locks(synchronization_id, origin_id)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{
			"object_locks",
			"jobs",
			"synchronization_contract_logs",
			"synchronization_logs",
			"synchronization_contracts",
			"rules",
			"synchronizations",
			"mappings",
		} {
			_, err := db.Exec("DROP TABLE IF EXISTS " + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
