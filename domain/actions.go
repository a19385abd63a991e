package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityKind discriminates what an EntityRef points at.
type EntityKind string

const (
	ActorEntity EntityKind = "actor"
	NoteEntity  EntityKind = "note"
)

// EntityRef is a typed reference to a stored entity.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

func (r EntityRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// Action is an append-only audit record of a processed activity.
type Action struct {
	Id        uuid.UUID
	Actor     EntityRef
	Verb      string // follow, undo, create, accept, delete, like, Unknown:<type>
	Object    *EntityRef
	Target    *EntityRef
	Public    bool
	RawJSON   string
	CreatedAt time.Time
}
