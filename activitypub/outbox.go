package activitypub

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pramari/federation/db"
	"github.com/pramari/federation/domain"
	"github.com/pramari/federation/util"
)

// ActivityID mints the IRI of a locally-created activity.
func ActivityID(conf *util.AppConfig) string {
	return fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
}

// NoteID derives the canonical IRI of a local note.
func NoteID(conf *util.AppConfig, note *domain.Note) string {
	return fmt.Sprintf("https://%s/notes/%s", conf.Conf.SslDomain, note.Id.String())
}

// SendActivity signs an activity with the sender's key and POSTs it to a
// remote inbox. The target inbox gets the same URL validation as a
// fetch, since it comes from a remote-controlled actor document.
func SendActivity(resolver *Resolver, activityJSON []byte, inboxURI string, privateKeyPem string, keyID string) error {
	if !resolver.IsURLValid(inboxURI) {
		return fmt.Errorf("%w: inbox %s", ErrInvalidURL, inboxURI)
	}

	privateKey, err := ParsePrivateKey(privateKeyPem)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, inboxURI, bytes.NewReader(activityJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	if err := SignRequest(req, activityJSON, privateKey, keyID); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := resolver.DeliveryClient().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	log.Printf("Outbox: Delivered to %s (status: %d)", inboxURI, resp.StatusCode)
	return nil
}

// SendAccept queues an Accept for a Follow activity inside the caller's
// transaction and returns the minted Accept id so it can be recorded on
// the edge in the same unit.
func SendAccept(tx *sql.Tx, conf *util.AppConfig, localActor *domain.Actor, remoteInbox string, followID string, followActor string) (string, error) {
	acceptID := ActivityID(conf)

	accept := map[string]interface{}{
		"@context": ActivityStreamsContext,
		"id":       acceptID,
		"type":     "Accept",
		"actor":    localActor.Id,
		"object": map[string]interface{}{
			"id":     followID,
			"type":   "Follow",
			"actor":  followActor,
			"object": localActor.Id,
		},
	}

	if err := enqueueTx(tx, remoteInbox, accept); err != nil {
		return "", err
	}
	return acceptID, nil
}

// SendFollow stores a pending follow edge and queues the Follow activity.
func SendFollow(database *db.DB, conf *util.AppConfig, localActor *domain.Actor, resolver *Resolver, remoteActorURI string) error {
	remoteActor, err := resolver.GetOrFetch(remoteActorURI)
	if err != nil {
		return fmt.Errorf("failed to fetch remote actor: %w", err)
	}

	follow := map[string]interface{}{
		"@context": ActivityStreamsContext,
		"id":       ActivityID(conf),
		"type":     "Follow",
		"actor":    localActor.Id,
		"object":   remoteActorURI,
	}

	followRecord := &domain.Follow{
		Id:        uuid.New(),
		ActorId:   localActor.Id,
		ObjectId:  remoteActorURI,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	return database.WithTransaction(func(tx *sql.Tx) error {
		if err := db.CreateFollowTx(tx, followRecord); err != nil {
			return fmt.Errorf("failed to store follow: %w", err)
		}
		return enqueueTx(tx, remoteActor.InboxURI, follow)
	})
}

// SendCreate queues a Create activity for a local note to every
// accepted follower's inbox.
func SendCreate(database *db.DB, conf *util.AppConfig, localActor *domain.Actor, note *domain.Note) error {
	noteURI := NoteID(conf, note)
	followersURI := localActor.Id + "/followers"

	object := map[string]interface{}{
		"id":           noteURI,
		"type":         "Note",
		"attributedTo": localActor.Id,
		"content":      note.Content,
		"published":    note.Published.Format(time.RFC3339),
		"to":           []string{PublicCollection},
		"cc":           []string{followersURI},
	}
	if note.Sensitive {
		object["sensitive"] = true
	}

	create := map[string]interface{}{
		"@context":  ActivityStreamsContext,
		"id":        ActivityID(conf),
		"type":      "Create",
		"actor":     localActor.Id,
		"published": note.Published.Format(time.RFC3339),
		"to":        []string{PublicCollection},
		"cc":        []string{followersURI},
		"object":    object,
	}

	err, followers := database.ReadFollowersOf(localActor.Id)
	if err != nil {
		log.Printf("Outbox: Failed to get followers: %v", err)
		return nil
	}
	if followers == nil || len(*followers) == 0 {
		log.Printf("Outbox: No followers to deliver to")
		return nil
	}

	for _, follower := range *followers {
		err, remoteActor := database.ReadActorById(follower.ActorId)
		if err != nil || remoteActor == nil || remoteActor.InboxURI == "" {
			log.Printf("Outbox: No inbox known for follower %s", follower.ActorId)
			continue
		}
		if err := enqueue(database, remoteActor.InboxURI, create); err != nil {
			log.Printf("Outbox: Failed to queue delivery to %s: %v", remoteActor.InboxURI, err)
		}
	}

	log.Printf("Outbox: Queued Create for note %s to %d followers", note.Id, len(*followers))
	return nil
}

func enqueue(database *db.DB, inboxURI string, activity map[string]interface{}) error {
	return database.WithTransaction(func(tx *sql.Tx) error {
		return enqueueTx(tx, inboxURI, activity)
	})
}

func enqueueTx(tx *sql.Tx, inboxURI string, activity map[string]interface{}) error {
	activityJSON, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	item := &domain.DeliveryQueueItem{
		Id:           uuid.New(),
		InboxURI:     inboxURI,
		ActivityJSON: string(activityJSON),
		Attempts:     0,
		NextRetryAt:  time.Now(),
		CreatedAt:    time.Now(),
	}
	return db.EnqueueDeliveryTx(tx, item)
}
