package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Note struct {
	Id           uuid.UUID
	RemoteId     string // source IRI for federated notes, empty for local ones
	AttributedTo string // IRI of the authoring actor
	Content      string
	Public       bool
	Sensitive    bool
	Published    time.Time
	Updated      *time.Time // nil if never edited
}

func (note *Note) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tAttributedTo: %s \n\tContent: %s \n\tPublished: %s)", note.Id, note.AttributedTo, note.Content, note.Published)
}
