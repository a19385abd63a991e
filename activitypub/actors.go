package activitypub

import (
	"fmt"
	"time"

	"github.com/pramari/federation/db"
	"github.com/pramari/federation/domain"
	"github.com/pramari/federation/util"
)

// ActorID derives the canonical IRI of a local actor.
func ActorID(conf *util.AppConfig, slug string) string {
	return fmt.Sprintf("https://%s/@%s", conf.Conf.SslDomain, slug)
}

// KeyID derives the key id published in the local actor document.
func KeyID(conf *util.AppConfig, slug string) string {
	return ActorID(conf, slug) + "#main-key"
}

// CreateActorForProfile creates the Person actor row owned by a local
// profile.
func CreateActorForProfile(database *db.DB, conf *util.AppConfig, profile *domain.Profile) (*domain.Actor, error) {
	actor := &domain.Actor{
		Id:            ActorID(conf, profile.Slug),
		Type:          domain.PersonType,
		ProfileId:     &profile.Id,
		PreferredName: profile.Slug,
		PublicKeyPem:  profile.PublicKeyPem,
		CreatedAt:     time.Now(),
	}
	actor.InboxURI = actor.Id + "/inbox"
	actor.OutboxURI = actor.Id + "/outbox"

	if err := database.CreateActor(actor); err != nil {
		return nil, fmt.Errorf("failed to create actor for %s: %w", profile.Slug, err)
	}
	return actor, nil
}

// Collection URL derivations. They are defined for local actors only;
// remote actors carry their own URIs in the cached document.

func InboxURL(actor *domain.Actor) (string, error) {
	return collectionURL(actor, "inbox")
}

func OutboxURL(actor *domain.Actor) (string, error) {
	return collectionURL(actor, "outbox")
}

func FollowersURL(actor *domain.Actor) (string, error) {
	return collectionURL(actor, "followers")
}

func FollowingURL(actor *domain.Actor) (string, error) {
	return collectionURL(actor, "following")
}

func LikedURL(actor *domain.Actor) (string, error) {
	return collectionURL(actor, "liked")
}

func collectionURL(actor *domain.Actor, suffix string) (string, error) {
	if !actor.IsLocal() {
		return "", ErrRemoteActor
	}
	return actor.Id + "/" + suffix, nil
}
