package domain

import (
	"time"

	"github.com/google/uuid"
)

// Follow represents a follow edge between two actors. Actors are referenced
// by IRI so local and remote actors are handled uniformly.
type Follow struct {
	Id        uuid.UUID
	ActorId   string  // the follower
	ObjectId  string  // the followed actor
	Accepted  *string // IRI of the Accept activity, nil while pending
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAccepted reports whether the edge has been accepted by the followed side.
func (f *Follow) IsAccepted() bool {
	return f.Accepted != nil && *f.Accepted != ""
}

// DeliveryQueueItem is a pending outbound activity delivery.
type DeliveryQueueItem struct {
	Id           uuid.UUID
	InboxURI     string
	ActivityJSON string
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}
