package db

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pramari/federation/domain"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
)

const (
	//Profiles
	sqlCreateProfilesTable = `CREATE TABLE IF NOT EXISTS profiles(
                        id uuid NOT NULL PRIMARY KEY,
                        slug varchar(100) UNIQUE NOT NULL,
                        public_key_pem text NOT NULL,
                        private_key_pem text NOT NULL,
                        consent int default 0,
                        created_at timestamp default current_timestamp
                        )`
	sqlInsertProfile       = `INSERT INTO profiles(id, slug, public_key_pem, private_key_pem, consent, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectProfileById   = `SELECT id, slug, public_key_pem, private_key_pem, consent, created_at FROM profiles WHERE id = ?`
	sqlSelectProfileBySlug = `SELECT id, slug, public_key_pem, private_key_pem, consent, created_at FROM profiles WHERE slug = ?`
	sqlUpdateProfileConsent = `UPDATE profiles SET consent = ? WHERE id = ?`
)

func (db *DB) CreateProfile(profile *domain.Profile) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertProfile,
			profile.Id.String(),
			profile.Slug,
			profile.PublicKeyPem,
			profile.PrivateKeyPem,
			profile.Consent,
			profile.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadProfileById(id uuid.UUID) (error, *domain.Profile) {
	row := db.db.QueryRow(sqlSelectProfileById, id.String())
	return scanProfile(row)
}

func (db *DB) ReadProfileBySlug(slug string) (error, *domain.Profile) {
	row := db.db.QueryRow(sqlSelectProfileBySlug, slug)
	return scanProfile(row)
}

func (db *DB) UpdateProfileConsent(id uuid.UUID, consent bool) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateProfileConsent, consent, id.String())
		return err
	})
}

func scanProfile(row *sql.Row) (error, *domain.Profile) {
	var profile domain.Profile
	var idStr string
	err := row.Scan(&idStr, &profile.Slug, &profile.PublicKeyPem, &profile.PrivateKeyPem, &profile.Consent, &profile.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	profile.Id, _ = uuid.Parse(idStr)
	return nil, &profile
}

func GetDB() *DB {
	dbOnce.Do(func() {
		var err error
		dbInstance, err = Open("federation.db")
		if err != nil {
			panic(err)
		}
	})

	return dbInstance
}

// Open opens a database at the given DSN and runs migrations.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Configure connection pool for concurrent access. An in-memory
	// database exists per connection, so it must not be pooled.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)

	}

	// Try to enable WAL2 mode, fall back to WAL if not supported
	var journalMode string
	err = db.QueryRow("PRAGMA journal_mode=WAL2").Scan(&journalMode)
	if err != nil || journalMode == "delete" {
		err = db.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
		if err != nil {
			log.Printf("Warning: Failed to enable WAL mode: %v", err)
		} else {
			log.Printf("Database journal mode: %s (WAL2 not supported, using WAL)", journalMode)
		}
	} else {
		log.Printf("Database journal mode: %s", journalMode)
	}

	// Optimize PRAGMAs for concurrent federation workload
	db.Exec("PRAGMA synchronous = NORMAL")
	db.Exec("PRAGMA cache_size = -64000")
	db.Exec("PRAGMA temp_store = MEMORY")
	db.Exec("PRAGMA busy_timeout = 5000")
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA auto_vacuum = INCREMENTAL")

	instance := &DB{db: db}
	if err := instance.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	return instance, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.db.Close()
}

// WithTransaction runs f inside one transaction, so a handler can
// compose several writes into a unit that commits or rolls back
// together.
func (db *DB) WithTransaction(f func(tx *sql.Tx) error) error {
	return db.wrapTransaction(f)
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	defer tx.Rollback()
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			log.Printf("error in transaction: %s", err)
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}
