package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pramari/federation/domain"
)

// Actor queries. The IRI is the primary key so local and remote actors
// live in the same table.
const (
	sqlInsertActor = `INSERT INTO actors(id, type, profile_id, preferred_name, summary, inbox_uri, outbox_uri, public_key_pem, icon_url, created_at, last_fetched_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectActorById        = `SELECT id, type, profile_id, preferred_name, summary, inbox_uri, outbox_uri, public_key_pem, icon_url, created_at, last_fetched_at FROM actors WHERE id = ?`
	sqlSelectActorByProfileId = `SELECT id, type, profile_id, preferred_name, summary, inbox_uri, outbox_uri, public_key_pem, icon_url, created_at, last_fetched_at FROM actors WHERE profile_id = ?`
	sqlUpdateRemoteActor      = `UPDATE actors SET type = ?, preferred_name = ?, summary = ?, inbox_uri = ?, outbox_uri = ?, public_key_pem = ?, icon_url = ?, last_fetched_at = ? WHERE id = ?`
)

func (db *DB) CreateActor(actor *domain.Actor) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var profileId interface{}
		if actor.ProfileId != nil {
			profileId = actor.ProfileId.String()
		}
		_, err := tx.Exec(sqlInsertActor,
			actor.Id,
			string(actor.Type),
			profileId,
			actor.PreferredName,
			actor.Summary,
			actor.InboxURI,
			actor.OutboxURI,
			actor.PublicKeyPem,
			actor.IconURL,
			actor.CreatedAt,
			actor.LastFetchedAt,
		)
		return err
	})
}

// UpsertRemoteActor inserts a remote actor row or refreshes the cached
// fields if the IRI already exists.
func (db *DB) UpsertRemoteActor(actor *domain.Actor) error {
	err, existing := db.ReadActorById(actor.Id)
	if err == sql.ErrNoRows || existing == nil {
		now := time.Now()
		if actor.LastFetchedAt == nil {
			actor.LastFetchedAt = &now
		}
		if actor.CreatedAt.IsZero() {
			actor.CreatedAt = now
		}
		return db.CreateActor(actor)
	}
	if err != nil {
		return err
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		now := time.Now()
		_, err := tx.Exec(sqlUpdateRemoteActor,
			string(actor.Type),
			actor.PreferredName,
			actor.Summary,
			actor.InboxURI,
			actor.OutboxURI,
			actor.PublicKeyPem,
			actor.IconURL,
			now,
			actor.Id,
		)
		return err
	})
}

func (db *DB) ReadActorById(id string) (error, *domain.Actor) {
	row := db.db.QueryRow(sqlSelectActorById, id)
	return scanActor(row)
}

func (db *DB) ReadActorByProfileId(profileId uuid.UUID) (error, *domain.Actor) {
	row := db.db.QueryRow(sqlSelectActorByProfileId, profileId.String())
	return scanActor(row)
}

func scanActor(row *sql.Row) (error, *domain.Actor) {
	var actor domain.Actor
	var actorType string
	var profileIdStr sql.NullString
	var lastFetched sql.NullTime
	err := row.Scan(
		&actor.Id,
		&actorType,
		&profileIdStr,
		&actor.PreferredName,
		&actor.Summary,
		&actor.InboxURI,
		&actor.OutboxURI,
		&actor.PublicKeyPem,
		&actor.IconURL,
		&actor.CreatedAt,
		&lastFetched,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	actor.Type = domain.ActorType(actorType)
	if profileIdStr.Valid {
		parsed, perr := uuid.Parse(profileIdStr.String)
		if perr == nil {
			actor.ProfileId = &parsed
		}
	}
	if lastFetched.Valid {
		actor.LastFetchedAt = &lastFetched.Time
	}
	return nil, &actor
}
