package db

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/pramari/federation/domain"
)

// Action queries. Actions are the append-only audit log of processed activities.
const (
	sqlInsertAction = `INSERT INTO actions(id, actor_kind, actor_id, verb, object_kind, object_id, target_kind, target_id, public, raw_json, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectActionsByActor = `SELECT id, actor_kind, actor_id, verb, object_kind, object_id, target_kind, target_id, public, raw_json, created_at FROM actions WHERE actor_id = ? ORDER BY created_at DESC LIMIT ?`
	sqlSelectActionsByVerb  = `SELECT id, actor_kind, actor_id, verb, object_kind, object_id, target_kind, target_id, public, raw_json, created_at FROM actions WHERE verb = ? ORDER BY created_at DESC LIMIT ?`
)

func (db *DB) CreateAction(action *domain.Action) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		objectKind, objectId := refColumns(action.Object)
		targetKind, targetId := refColumns(action.Target)
		_, err := tx.Exec(sqlInsertAction,
			action.Id.String(),
			string(action.Actor.Kind),
			action.Actor.ID,
			action.Verb,
			objectKind,
			objectId,
			targetKind,
			targetId,
			action.Public,
			action.RawJSON,
			action.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadActionsByActor(actorId string, limit int) (error, *[]domain.Action) {
	return db.queryActions(sqlSelectActionsByActor, actorId, limit)
}

func (db *DB) ReadActionsByVerb(verb string, limit int) (error, *[]domain.Action) {
	return db.queryActions(sqlSelectActionsByVerb, verb, limit)
}

func (db *DB) queryActions(query string, arg string, limit int) (error, *[]domain.Action) {
	rows, err := db.db.Query(query, arg, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var actions []domain.Action
	for rows.Next() {
		var action domain.Action
		var idStr, actorKind string
		var objectKind, objectId, targetKind, targetId sql.NullString
		if err := rows.Scan(&idStr, &actorKind, &action.Actor.ID, &action.Verb, &objectKind, &objectId, &targetKind, &targetId, &action.Public, &action.RawJSON, &action.CreatedAt); err != nil {
			return err, &actions
		}
		action.Id, _ = uuid.Parse(idStr)
		action.Actor.Kind = domain.EntityKind(actorKind)
		action.Object = refFromColumns(objectKind, objectId)
		action.Target = refFromColumns(targetKind, targetId)
		actions = append(actions, action)
	}
	if err = rows.Err(); err != nil {
		return err, &actions
	}
	return nil, &actions
}

func refColumns(ref *domain.EntityRef) (interface{}, interface{}) {
	if ref == nil {
		return nil, nil
	}
	return string(ref.Kind), ref.ID
}

func refFromColumns(kind, id sql.NullString) *domain.EntityRef {
	if !kind.Valid {
		return nil
	}
	return &domain.EntityRef{Kind: domain.EntityKind(kind.String), ID: id.String}
}
