package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorType is the ActivityStreams actor type.
type ActorType string

const (
	ApplicationType  ActorType = "Application"
	GroupType        ActorType = "Group"
	OrganizationType ActorType = "Organization"
	PersonType       ActorType = "Person"
	ServiceType      ActorType = "Service"
)

// ValidActorType reports whether t is one of the five ActivityStreams actor types.
func ValidActorType(t ActorType) bool {
	switch t {
	case ApplicationType, GroupType, OrganizationType, PersonType, ServiceType:
		return true
	}
	return false
}

// Profile is a local user. Each profile owns exactly one local actor.
type Profile struct {
	Id            uuid.UUID
	Slug          string
	PublicKeyPem  string
	PrivateKeyPem string
	Consent       bool
	CreatedAt     time.Time
}

// Actor is a row in the actor graph. Local actors carry a ProfileId;
// remote actors are shadow rows cached from fetched documents.
type Actor struct {
	Id            string // canonical IRI, always the primary handle
	Type          ActorType
	ProfileId     *uuid.UUID // nil for remote actors
	PreferredName string
	Summary       string
	InboxURI      string
	OutboxURI     string
	PublicKeyPem  string
	IconURL       string
	CreatedAt     time.Time
	LastFetchedAt *time.Time // nil for local actors
}

// IsLocal reports whether the actor belongs to a profile on this server.
func (a *Actor) IsLocal() bool {
	return a.ProfileId != nil
}

func (a *Actor) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tType: %s \n\tPreferredName: %s \n\tLocal: %t", a.Id, a.Type, a.PreferredName, a.IsLocal())
}
