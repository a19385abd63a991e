package web

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pramari/federation/activitypub"
	"github.com/pramari/federation/db"
	"github.com/pramari/federation/domain"
	"github.com/pramari/federation/util"
)

// GetActor builds the ActivityPub actor document for a local slug.
func GetActor(database *db.DB, conf *util.AppConfig, slug string) (error, string) {
	err, profile := database.ReadProfileBySlug(slug)
	if err != nil {
		return err, "{}"
	}

	err, actor := database.ReadActorByProfileId(profile.Id)
	if err != nil {
		return err, "{}"
	}

	inbox, err := activitypub.InboxURL(actor)
	if err != nil {
		return err, "{}"
	}
	outbox, _ := activitypub.OutboxURL(actor)
	followers, _ := activitypub.FollowersURL(actor)
	following, _ := activitypub.FollowingURL(actor)
	liked, _ := activitypub.LikedURL(actor)

	name := actor.PreferredName
	if name == "" {
		name = profile.Slug
	}

	doc := map[string]interface{}{
		"@context": []string{
			activitypub.ActivityStreamsContext,
			activitypub.SecurityContext,
		},
		"id":                        actor.Id,
		"type":                      string(actor.Type),
		"preferredUsername":         profile.Slug,
		"name":                      name,
		"summary":                   actor.Summary,
		"inbox":                     inbox,
		"outbox":                    outbox,
		"followers":                 followers,
		"following":                 following,
		"liked":                     liked,
		"url":                       actor.Id,
		"manuallyApprovesFollowers": false,
		"discoverable":              true,
		"endpoints": map[string]interface{}{
			"sharedInbox": fmt.Sprintf("https://%s/inbox", conf.Conf.SslDomain),
		},
		"publicKey": map[string]interface{}{
			"id":           actor.Id + "#main-key",
			"owner":        actor.Id,
			"publicKeyPem": actor.PublicKeyPem,
		},
	}

	if actor.IconURL != "" {
		doc["icon"] = map[string]interface{}{
			"type": "Image",
			"url":  actor.IconURL,
		}
	}

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// GetNoteObject serves a local note as an ActivityPub Note.
func GetNoteObject(database *db.DB, conf *util.AppConfig, noteId uuid.UUID) (error, string) {
	err, note := database.ReadNoteById(noteId)
	if err != nil {
		return err, "{}"
	}

	doc := noteDocument(conf, note)
	doc["@context"] = activitypub.ActivityStreamsContext

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// noteDocument renders a stored note without a context, for embedding.
func noteDocument(conf *util.AppConfig, note *domain.Note) map[string]interface{} {
	noteURI := note.RemoteId
	if noteURI == "" {
		noteURI = activitypub.NoteID(conf, note)
	}

	doc := map[string]interface{}{
		"id":           noteURI,
		"type":         "Note",
		"attributedTo": note.AttributedTo,
		"content":      note.Content,
		"published":    note.Published.Format(time.RFC3339),
		"to":           []string{activitypub.PublicCollection},
		"cc":           []string{note.AttributedTo + "/followers"},
	}
	if note.Updated != nil {
		doc["updated"] = note.Updated.Format(time.RFC3339)
	}
	if note.Sensitive {
		doc["sensitive"] = true
	}
	return doc
}
