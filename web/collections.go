package web

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/pramari/federation/activitypub"
	"github.com/pramari/federation/db"
	"github.com/pramari/federation/domain"
	"github.com/pramari/federation/util"
)

const collectionPageSize = 20

// GetFollowerCollection lists the actors with an accepted edge towards
// the local actor.
func GetFollowerCollection(database *db.DB, conf *util.AppConfig, slug string) (error, string) {
	return followCollection(database, conf, slug, activitypub.FollowersURL, func(actorId string) (error, *[]domain.Follow) {
		return database.ReadFollowersOf(actorId)
	}, func(follow domain.Follow) string {
		return follow.ActorId
	})
}

// GetFollowingCollection lists the actors the local actor follows with
// an accepted edge.
func GetFollowingCollection(database *db.DB, conf *util.AppConfig, slug string) (error, string) {
	return followCollection(database, conf, slug, activitypub.FollowingURL, func(actorId string) (error, *[]domain.Follow) {
		return database.ReadFollowingOf(actorId)
	}, func(follow domain.Follow) string {
		return follow.ObjectId
	})
}

func followCollection(database *db.DB, conf *util.AppConfig, slug string,
	collectionIRI func(*domain.Actor) (string, error),
	readEdges func(string) (error, *[]domain.Follow),
	pick func(domain.Follow) string) (error, string) {

	err, actor := localActorBySlug(database, slug)
	if err != nil {
		return err, "{}"
	}

	iri, err := collectionIRI(actor)
	if err != nil {
		return err, "{}"
	}

	err, edges := readEdges(actor.Id)
	if err != nil {
		log.Printf("Collections: Failed to read edges for %s: %v", slug, err)
		return err, "{}"
	}

	items := make([]interface{}, 0, len(*edges))
	for _, edge := range *edges {
		items = append(items, pick(edge))
	}

	return marshalCollection(iri, items)
}

// GetLikedCollection is always empty; likes are recorded in the audit
// trail but not collected.
func GetLikedCollection(database *db.DB, conf *util.AppConfig, slug string) (error, string) {
	err, actor := localActorBySlug(database, slug)
	if err != nil {
		return err, "{}"
	}

	iri, err := activitypub.LikedURL(actor)
	if err != nil {
		return err, "{}"
	}
	return marshalCollection(iri, []interface{}{})
}

// GetOutbox returns the OrderedCollection of a local actor's public
// posts: the bare collection when page is 0, otherwise one page of
// Create activities.
func GetOutbox(database *db.DB, conf *util.AppConfig, slug string, page int) (error, string) {
	err, actor := localActorBySlug(database, slug)
	if err != nil {
		return err, "{}"
	}

	outboxURL, err := activitypub.OutboxURL(actor)
	if err != nil {
		return err, "{}"
	}

	err, notes := database.ReadNotesByActor(actor.Id)
	if err != nil {
		log.Printf("Outbox: Failed to read notes for %s: %v", slug, err)
		return err, "{}"
	}

	public := make([]domain.Note, 0, len(*notes))
	for _, note := range *notes {
		if note.Public {
			public = append(public, note)
		}
	}

	if page == 0 {
		collection := map[string]interface{}{
			"@context":   activitypub.ActivityStreamsContext,
			"id":         outboxURL,
			"type":       "OrderedCollection",
			"totalItems": len(public),
			"first":      outboxURL + "?page=1",
		}
		jsonBytes, err := json.Marshal(collection)
		if err != nil {
			return err, "{}"
		}
		return nil, string(jsonBytes)
	}

	offset := (page - 1) * collectionPageSize
	if offset > len(public) {
		offset = len(public)
	}
	end := offset + collectionPageSize
	if end > len(public) {
		end = len(public)
	}

	collectionPage := map[string]interface{}{
		"@context":     activitypub.ActivityStreamsContext,
		"id":           outboxURL + "?page=" + strconv.Itoa(page),
		"type":         "OrderedCollectionPage",
		"partOf":       outboxURL,
		"orderedItems": makeCreateActivities(conf, actor, public[offset:end]),
	}
	if end < len(public) {
		collectionPage["next"] = outboxURL + "?page=" + strconv.Itoa(page+1)
	}
	if page > 1 {
		collectionPage["prev"] = outboxURL + "?page=" + strconv.Itoa(page-1)
	}

	jsonBytes, err := json.Marshal(collectionPage)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// makeCreateActivities wraps notes in Create activities for the outbox.
func makeCreateActivities(conf *util.AppConfig, actor *domain.Actor, notes []domain.Note) []interface{} {
	activities := make([]interface{}, 0, len(notes))
	for _, note := range notes {
		noteObj := noteDocument(conf, &note)

		activities = append(activities, map[string]interface{}{
			"id":        activitypub.NoteID(conf, &note) + "/activity",
			"type":      "Create",
			"actor":     actor.Id,
			"published": note.Published.Format(time.RFC3339),
			"to":        []string{activitypub.PublicCollection},
			"cc":        []string{actor.Id + "/followers"},
			"object":    noteObj,
		})
	}
	return activities
}

// ParsePageParam reads a non-negative page query parameter, 0 meaning
// the bare collection.
func ParsePageParam(pageStr string) int {
	if pageStr == "" {
		return 0
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 0 {
		return 0
	}
	return page
}

func marshalCollection(iri string, items []interface{}) (error, string) {
	collection := map[string]interface{}{
		"@context":     activitypub.ActivityStreamsContext,
		"id":           iri,
		"type":         "OrderedCollection",
		"totalItems":   len(items),
		"orderedItems": items,
	}
	jsonBytes, err := json.Marshal(collection)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// localActorBySlug resolves a profile slug to its actor row.
func localActorBySlug(database *db.DB, slug string) (error, *domain.Actor) {
	err, profile := database.ReadProfileBySlug(slug)
	if err != nil {
		return err, nil
	}
	return database.ReadActorByProfileId(profile.Id)
}
