package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pramari/federation/domain"
)

// Note queries
const (
	sqlInsertNote = `INSERT INTO notes(id, remote_id, attributed_to, content, public, sensitive, published) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectNoteById       = `SELECT id, remote_id, attributed_to, content, public, sensitive, published, updated FROM notes WHERE id = ?`
	sqlSelectNoteByRemoteId = `SELECT id, remote_id, attributed_to, content, public, sensitive, published, updated FROM notes WHERE remote_id = ?`
	sqlSelectNotesByActor   = `SELECT id, remote_id, attributed_to, content, public, sensitive, published, updated FROM notes WHERE attributed_to = ? ORDER BY published DESC`
	sqlSelectRecentNotes    = `SELECT id, remote_id, attributed_to, content, public, sensitive, published, updated FROM notes WHERE public = 1 ORDER BY published DESC LIMIT ?`
	sqlUpdateNoteContent    = `UPDATE notes SET content = ?, updated = ? WHERE id = ?`
	sqlDeleteNoteByRemoteId = `DELETE FROM notes WHERE remote_id = ?`
)

func (db *DB) CreateNote(note *domain.Note) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertNote,
			note.Id.String(),
			note.RemoteId,
			note.AttributedTo,
			note.Content,
			note.Public,
			note.Sensitive,
			note.Published,
		)
		return err
	})
}

func (db *DB) ReadNoteById(id uuid.UUID) (error, *domain.Note) {
	row := db.db.QueryRow(sqlSelectNoteById, id.String())
	return scanNote(row)
}

func (db *DB) ReadNoteByRemoteId(remoteId string) (error, *domain.Note) {
	row := db.db.QueryRow(sqlSelectNoteByRemoteId, remoteId)
	return scanNote(row)
}

func (db *DB) ReadNotesByActor(actorId string) (error, *[]domain.Note) {
	rows, err := db.db.Query(sqlSelectNotesByActor, actorId)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		var note domain.Note
		var idStr string
		var updated sql.NullTime
		if err := rows.Scan(&idStr, &note.RemoteId, &note.AttributedTo, &note.Content, &note.Public, &note.Sensitive, &note.Published, &updated); err != nil {
			return err, &notes
		}
		note.Id, _ = uuid.Parse(idStr)
		if updated.Valid {
			note.Updated = &updated.Time
		}
		notes = append(notes, note)
	}
	if err = rows.Err(); err != nil {
		return err, &notes
	}
	return nil, &notes
}

// ReadRecentNotes returns the newest public notes across all actors.
func (db *DB) ReadRecentNotes(limit int) (error, *[]domain.Note) {
	rows, err := db.db.Query(sqlSelectRecentNotes, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		var note domain.Note
		var idStr string
		var updated sql.NullTime
		if err := rows.Scan(&idStr, &note.RemoteId, &note.AttributedTo, &note.Content, &note.Public, &note.Sensitive, &note.Published, &updated); err != nil {
			return err, &notes
		}
		note.Id, _ = uuid.Parse(idStr)
		if updated.Valid {
			note.Updated = &updated.Time
		}
		notes = append(notes, note)
	}
	if err = rows.Err(); err != nil {
		return err, &notes
	}
	return nil, &notes
}

func (db *DB) UpdateNoteContent(id uuid.UUID, content string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateNoteContent, content, time.Now(), id.String())
		return err
	})
}

// DeleteNoteByRemoteId removes a federated note by its source IRI and reports
// how many rows were deleted.
func (db *DB) DeleteNoteByRemoteId(remoteId string) (int64, error) {
	var affected int64
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteNoteByRemoteId, remoteId)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func scanNote(row *sql.Row) (error, *domain.Note) {
	var note domain.Note
	var idStr string
	var updated sql.NullTime
	err := row.Scan(&idStr, &note.RemoteId, &note.AttributedTo, &note.Content, &note.Public, &note.Sensitive, &note.Published, &updated)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	note.Id, _ = uuid.Parse(idStr)
	if updated.Valid {
		note.Updated = &updated.Time
	}
	return nil, &note
}
