package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pramari/federation/domain"
)

// Follow queries
const (
	sqlInsertFollow = `INSERT INTO follows(id, actor_id, object_id, accepted, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectFollowByPair         = `SELECT id, actor_id, object_id, accepted, created_at, updated_at FROM follows WHERE actor_id = ? AND object_id = ? ORDER BY created_at ASC`
	sqlSelectAcceptedFollowByPair = `SELECT id, actor_id, object_id, accepted, created_at, updated_at FROM follows WHERE actor_id = ? AND object_id = ? AND accepted IS NOT NULL LIMIT 1`
	sqlAcceptFollow               = `UPDATE follows SET accepted = ?, updated_at = ? WHERE id = ?`
	sqlDeletePendingFollows       = `DELETE FROM follows WHERE actor_id = ? AND object_id = ? AND accepted IS NULL AND id != ?`
	sqlDeleteFollowByAcceptedId   = `DELETE FROM follows WHERE accepted = ?`
	sqlSelectFollowersOf          = `SELECT id, actor_id, object_id, accepted, created_at, updated_at FROM follows WHERE object_id = ? AND accepted IS NOT NULL ORDER BY created_at DESC`
	sqlSelectFollowingOf          = `SELECT id, actor_id, object_id, accepted, created_at, updated_at FROM follows WHERE actor_id = ? AND accepted IS NOT NULL ORDER BY created_at DESC`
)

func (db *DB) CreateFollow(follow *domain.Follow) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return CreateFollowTx(tx, follow)
	})
}

// CreateFollowTx inserts a follow edge inside the caller's transaction.
func CreateFollowTx(tx *sql.Tx, follow *domain.Follow) error {
	_, err := tx.Exec(sqlInsertFollow,
		follow.Id.String(),
		follow.ActorId,
		follow.ObjectId,
		follow.Accepted,
		follow.CreatedAt,
		follow.UpdatedAt,
	)
	return err
}

// AcceptFollow marks the edge accepted with the Accept activity IRI and
// prunes any duplicate pending edges for the same pair, so at most one
// accepted edge exists per actor/object pair.
func (db *DB) AcceptFollow(followId uuid.UUID, actorId, objectId, acceptId string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return AcceptFollowTx(tx, followId, actorId, objectId, acceptId)
	})
}

// AcceptFollowTx is AcceptFollow inside the caller's transaction.
func AcceptFollowTx(tx *sql.Tx, followId uuid.UUID, actorId, objectId, acceptId string) error {
	_, err := tx.Exec(sqlAcceptFollow, acceptId, time.Now(), followId.String())
	if err != nil {
		return err
	}
	_, err = tx.Exec(sqlDeletePendingFollows, actorId, objectId, followId.String())
	return err
}

// ReadFollowByPair returns the oldest edge for the pair, pending or accepted.
func (db *DB) ReadFollowByPair(actorId, objectId string) (error, *domain.Follow) {
	row := db.db.QueryRow(sqlSelectFollowByPair, actorId, objectId)
	return scanFollow(row)
}

func (db *DB) ReadAcceptedFollowByPair(actorId, objectId string) (error, *domain.Follow) {
	row := db.db.QueryRow(sqlSelectAcceptedFollowByPair, actorId, objectId)
	return scanFollow(row)
}

// DeleteFollowByAcceptedId removes the edge whose Accept IRI matches and
// reports how many rows were deleted.
func (db *DB) DeleteFollowByAcceptedId(acceptId string) (int64, error) {
	var affected int64
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteFollowByAcceptedId, acceptId)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func (db *DB) ReadFollowersOf(objectId string) (error, *[]domain.Follow) {
	return db.queryFollows(sqlSelectFollowersOf, objectId)
}

func (db *DB) ReadFollowingOf(actorId string) (error, *[]domain.Follow) {
	return db.queryFollows(sqlSelectFollowingOf, actorId)
}

func (db *DB) queryFollows(query string, arg string) (error, *[]domain.Follow) {
	rows, err := db.db.Query(query, arg)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var follows []domain.Follow
	for rows.Next() {
		var follow domain.Follow
		var idStr string
		var accepted sql.NullString
		if err := rows.Scan(&idStr, &follow.ActorId, &follow.ObjectId, &accepted, &follow.CreatedAt, &follow.UpdatedAt); err != nil {
			return err, &follows
		}
		follow.Id, _ = uuid.Parse(idStr)
		if accepted.Valid {
			follow.Accepted = &accepted.String
		}
		follows = append(follows, follow)
	}
	if err = rows.Err(); err != nil {
		return err, &follows
	}
	return nil, &follows
}

func scanFollow(row *sql.Row) (error, *domain.Follow) {
	var follow domain.Follow
	var idStr string
	var accepted sql.NullString
	err := row.Scan(&idStr, &follow.ActorId, &follow.ObjectId, &accepted, &follow.CreatedAt, &follow.UpdatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	follow.Id, _ = uuid.Parse(idStr)
	if accepted.Valid {
		follow.Accepted = &accepted.String
	}
	return nil, &follow
}
