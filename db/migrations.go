package db

import (
	"database/sql"
	"log"
)

const (
	sqlCreateActorsTable = `CREATE TABLE IF NOT EXISTS actors (
		id TEXT NOT NULL PRIMARY KEY,
		type TEXT NOT NULL,
		profile_id TEXT,
		preferred_name TEXT,
		summary TEXT,
		inbox_uri TEXT,
		outbox_uri TEXT,
		public_key_pem TEXT,
		icon_url TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_fetched_at TIMESTAMP
	)`

	sqlCreateActorsIndices = `
		CREATE INDEX IF NOT EXISTS idx_actors_profile_id ON actors(profile_id);
	`

	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows (
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		object_id TEXT NOT NULL,
		accepted TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateFollowsIndices = `
		CREATE INDEX IF NOT EXISTS idx_follows_actor_id ON follows(actor_id);
		CREATE INDEX IF NOT EXISTS idx_follows_object_id ON follows(object_id);
		CREATE INDEX IF NOT EXISTS idx_follows_accepted ON follows(accepted);
	`

	sqlCreateActionsTable = `CREATE TABLE IF NOT EXISTS actions (
		id TEXT NOT NULL PRIMARY KEY,
		actor_kind TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		verb TEXT NOT NULL,
		object_kind TEXT,
		object_id TEXT,
		target_kind TEXT,
		target_id TEXT,
		public INTEGER DEFAULT 0,
		raw_json TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActionsIndices = `
		CREATE INDEX IF NOT EXISTS idx_actions_actor_id ON actions(actor_id);
		CREATE INDEX IF NOT EXISTS idx_actions_verb ON actions(verb);
		CREATE INDEX IF NOT EXISTS idx_actions_created_at ON actions(created_at DESC);
	`

	sqlCreateNotesTable = `CREATE TABLE IF NOT EXISTS notes (
		id TEXT NOT NULL PRIMARY KEY,
		remote_id TEXT,
		attributed_to TEXT NOT NULL,
		content TEXT,
		public INTEGER DEFAULT 1,
		sensitive INTEGER DEFAULT 0,
		published TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated TIMESTAMP
	)`

	sqlCreateNotesIndices = `
		CREATE INDEX IF NOT EXISTS idx_notes_attributed_to ON notes(attributed_to);
		CREATE INDEX IF NOT EXISTS idx_notes_remote_id ON notes(remote_id);
		CREATE INDEX IF NOT EXISTS idx_notes_published ON notes(published DESC);
	`

	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		inbox_uri TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_next_retry ON delivery_queue(next_retry_at);
	`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if err := db.createTableIfNotExists(tx, sqlCreateProfilesTable, "profiles"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateActorsTable, "actors"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateFollowsTable, "follows"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateActionsTable, "actions"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateNotesTable, "notes"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateDeliveryQueueTable, "delivery_queue"); err != nil {
			return err
		}

		if _, err := tx.Exec(sqlCreateActorsIndices); err != nil {
			log.Printf("Warning: Failed to create actors indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateFollowsIndices); err != nil {
			log.Printf("Warning: Failed to create follows indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateActionsIndices); err != nil {
			log.Printf("Warning: Failed to create actions indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateNotesIndices); err != nil {
			log.Printf("Warning: Failed to create notes indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateDeliveryQueueIndices); err != nil {
			log.Printf("Warning: Failed to create delivery_queue indices: %v", err)
		}

		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.Exec(createSQL)
	if err != nil {
		log.Printf("Error creating table %s: %v", tableName, err)
		return err
	}
	log.Printf("Table %s created or already exists", tableName)
	return nil
}
