package activitypub

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pramari/federation/db"
	"github.com/pramari/federation/domain"
	"github.com/pramari/federation/util"
)

// InboxHandler processes inbound ActivityPub activities addressed to a
// local actor. A request moves through received, parsed, authenticated
// and dispatched stages; any failure before dispatch rejects it with a
// 400 and a JSON error body.
type InboxHandler struct {
	DB       *db.DB
	Conf     *util.AppConfig
	Checker  *SignatureChecker
	Resolver *Resolver
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// HandlePost processes one activity POSTed to the slug's inbox.
func (h *InboxHandler) HandlePost(w http.ResponseWriter, r *http.Request, body []byte, slug string) {
	err, profile := h.DB.ReadProfileBySlug(slug)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "no such inbox"})
		return
	}

	err, localActor := h.DB.ReadActorByProfileId(profile.Id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "no such inbox"})
		return
	}

	if !utf8.Valid(body) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": ErrParseUTF8.Error()})
		return
	}

	activity, err := NewActivityObject(body)
	if err != nil {
		log.Printf("Inbox: Failed to parse activity: %v", err)
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	if activity.Type == "" || activity.Actor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": ErrInvalidActivity.Error()})
		return
	}

	log.Printf("Inbox: Received %s from %s", activity.Type, activity.Actor)

	// parse and verification failures share one message so a probing
	// sender learns nothing about which check failed
	result := h.Checker.Validate(r, body)
	if !result.OK {
		log.Printf("Inbox: Signature verification failed for %s", activity.Actor)
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Invalid Signature"})
		return
	}

	switch activity.TypeLower() {
	case "follow":
		if err := h.handleFollow(activity, localActor, string(body)); err != nil {
			log.Printf("Inbox: Failed to handle Follow: %v", err)
			writeJSON(w, followErrorStatus(err), map[string]interface{}{"error": "failed to process Follow"})
			return
		}
	case "undo":
		status, resp := h.handleUndo(activity, string(body))
		if resp != nil {
			writeJSON(w, status, resp)
			return
		}
	case "create":
		if err := h.handleCreate(activity, string(body)); err != nil {
			log.Printf("Inbox: Failed to handle Create: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "failed to process Create"})
			return
		}
	case "accept":
		status, resp := h.handleAccept(activity, string(body))
		if resp != nil {
			writeJSON(w, status, resp)
			return
		}
	case "delete":
		h.audit(activity, "delete", nil, string(body))
	case "like":
		noteRef := h.noteRef(activity.ObjectID())
		h.audit(activity, "like", noteRef, string(body))
	default:
		h.audit(activity, "Unknown:"+activity.TypeLower(), nil, string(body))
		log.Printf("Inbox: Unsupported activity type: %s", activity.Type)
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unsupported activity type"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": fmt.Sprintf("success: %s %s %s", activity.Actor, activity.TypeLower(), activity.ObjectID()),
	})
}

// followErrorStatus distinguishes the sender's fault from ours: a
// failed fetch of their actor is a client error, a persistence failure
// is a server error.
func followErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrObjectGone), errors.Is(err, ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrFetch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// HandleGet answers an owner's check of their own inbox. Anyone who
// cannot prove ownership with their own key gets a 404, not a 403.
func (h *InboxHandler) HandleGet(w http.ResponseWriter, r *http.Request, slug string) {
	err, profile := h.DB.ReadProfileBySlug(slug)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "not found"})
		return
	}

	err, localActor := h.DB.ReadActorByProfileId(profile.Id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "not found"})
		return
	}

	result := h.Checker.Validate(r, nil)
	owner := strings.SplitN(result.KeyID, "#", 2)[0]
	if !result.OK || owner != localActor.Id {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": fmt.Sprintf("%s/inbox ok", localActor.Id),
	})
}

// handleFollow accepts an inbound follow: the remote actor gets a shadow
// row, the edge is recorded as accepted and the Accept is queued. A
// repeated Follow over an already-accepted edge re-sends the recorded
// Accept instead of creating a second edge.
func (h *InboxHandler) handleFollow(activity *ActivityObject, localActor *domain.Actor, raw string) error {
	remoteActor, err := h.Resolver.GetOrFetch(activity.Actor)
	if err != nil {
		return fmt.Errorf("failed to resolve actor %s: %w", activity.Actor, err)
	}

	targetRef := &domain.EntityRef{Kind: domain.ActorEntity, ID: localActor.Id}
	h.audit(activity, "follow", targetRef, raw)

	err, existing := h.DB.ReadAcceptedFollowByPair(remoteActor.Id, localActor.Id)
	if err == nil && existing != nil {
		log.Printf("Inbox: Repeated follow from %s, re-sending Accept", remoteActor.Id)
		return h.resendAccept(localActor, remoteActor, activity.ID, *existing.Accepted)
	}
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	follow := &domain.Follow{
		Id:        uuid.New(),
		ActorId:   remoteActor.Id,
		ObjectId:  localActor.Id,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	// edge, queued Accept and the recorded Accept IRI commit together,
	// so a failure leaves no partial state for the remote's retry to
	// trip over
	err = h.DB.WithTransaction(func(tx *sql.Tx) error {
		if err := db.CreateFollowTx(tx, follow); err != nil {
			return fmt.Errorf("failed to create follow: %w", err)
		}
		acceptID, err := SendAccept(tx, h.Conf, localActor, remoteActor.InboxURI, activity.ID, remoteActor.Id)
		if err != nil {
			return fmt.Errorf("failed to queue Accept: %w", err)
		}
		return db.AcceptFollowTx(tx, follow.Id, remoteActor.Id, localActor.Id, acceptID)
	})
	if err != nil {
		return err
	}

	log.Printf("Inbox: Accepted follow from %s", remoteActor.Id)
	return nil
}

// resendAccept rebuilds the Accept recorded on an accepted edge and
// queues it again.
func (h *InboxHandler) resendAccept(localActor, remoteActor *domain.Actor, followID, acceptID string) error {
	accept := map[string]interface{}{
		"@context": ActivityStreamsContext,
		"id":       acceptID,
		"type":     "Accept",
		"actor":    localActor.Id,
		"object": map[string]interface{}{
			"id":     followID,
			"type":   "Follow",
			"actor":  remoteActor.Id,
			"object": localActor.Id,
		},
	}
	return enqueue(h.DB, remoteActor.InboxURI, accept)
}

// handleUndo removes a follow edge by the Accept IRI recorded on it.
// Returns a response map; nil means the caller sends the generic success.
func (h *InboxHandler) handleUndo(activity *ActivityObject, raw string) (int, map[string]interface{}) {
	if activity.ID == "" || activity.Object == nil {
		return http.StatusBadRequest, map[string]interface{}{"error": ErrInvalidActivity.Error()}
	}

	objectID := activity.ObjectID()
	if objectID == "" {
		return http.StatusBadRequest, map[string]interface{}{"error": ErrInvalidActivity.Error()}
	}

	if nested := activity.NestedObject(); nested != nil && nested.Type != "" && nested.TypeLower() != "follow" {
		h.audit(activity, "undo", nil, raw)
		return http.StatusOK, map[string]interface{}{"status": "unsupported undo"}
	}

	h.audit(activity, "undo", nil, raw)

	affected, err := h.DB.DeleteFollowByAcceptedId(objectID)
	if err != nil {
		log.Printf("Inbox: Failed to delete follow: %v", err)
		return http.StatusInternalServerError, map[string]interface{}{"error": "failed to process Undo"}
	}
	if affected == 0 {
		log.Printf("Inbox: Undo for unknown follow %s", objectID)
		return http.StatusOK, map[string]interface{}{"status": "follow not found"}
	}

	log.Printf("Inbox: Removed follow %s", objectID)
	return 0, nil
}

// handleCreate persists the nested Note, idempotent on its source IRI.
func (h *InboxHandler) handleCreate(activity *ActivityObject, raw string) error {
	nested := activity.NestedObject()
	if nested != nil && nested.TypeLower() == "note" && nested.ID != "" {
		err, existing := h.DB.ReadNoteByRemoteId(nested.ID)
		if err == nil && existing != nil {
			log.Printf("Inbox: Note %s already exists, skipping", nested.ID)
			h.audit(activity, "create", &domain.EntityRef{Kind: domain.NoteEntity, ID: existing.Id.String()}, raw)
			return nil
		}

		attributedTo := nested.AttributedTo
		if attributedTo == "" {
			attributedTo = activity.Actor
		}

		note := &domain.Note{
			Id:           uuid.New(),
			RemoteId:     nested.ID,
			AttributedTo: attributedTo,
			Content:      nested.Content,
			Public:       isPublic(nested),
			Sensitive:    nested.Extra["sensitive"] == true,
			Published:    time.Now(),
		}
		if published, err := time.Parse(time.RFC3339, nested.Published); err == nil {
			note.Published = published
		}

		if err := h.DB.CreateNote(note); err != nil {
			return fmt.Errorf("failed to store note: %w", err)
		}
		log.Printf("Inbox: Stored note %s from %s", nested.ID, attributedTo)

		h.audit(activity, "create", &domain.EntityRef{Kind: domain.NoteEntity, ID: note.Id.String()}, raw)
		return nil
	}

	// non-Note objects are audited but not persisted
	h.audit(activity, "create", nil, raw)
	return nil
}

// handleAccept confirms an outbound follow: the pending edge matching
// the accepting pair gets the Accept IRI recorded on it.
func (h *InboxHandler) handleAccept(activity *ActivityObject, raw string) (int, map[string]interface{}) {
	h.audit(activity, "accept", nil, raw)

	nested := activity.NestedObject()
	if nested == nil || nested.TypeLower() != "follow" {
		return http.StatusOK, map[string]interface{}{"status": "unsupported accept"}
	}

	followActor := nested.Actor
	followObject := nested.ObjectID()
	if followObject == "" {
		followObject = activity.Actor
	}

	err, pending := h.DB.ReadFollowByPair(followActor, followObject)
	if err != nil || pending == nil {
		log.Printf("Inbox: Accept for unknown follow %s -> %s", followActor, followObject)
		return http.StatusOK, map[string]interface{}{"status": "follow not found"}
	}

	if pending.IsAccepted() {
		return 0, nil
	}

	if err := h.DB.AcceptFollow(pending.Id, followActor, followObject, activity.ID); err != nil {
		log.Printf("Inbox: Failed to accept follow: %v", err)
		return http.StatusInternalServerError, map[string]interface{}{"error": "failed to process Accept"}
	}

	log.Printf("Inbox: Follow %s -> %s was accepted by %s", followActor, followObject, activity.Actor)
	return 0, nil
}

// audit appends an Action record; audit failures are logged, never fatal.
func (h *InboxHandler) audit(activity *ActivityObject, verb string, target *domain.EntityRef, raw string) {
	action := &domain.Action{
		Id:        uuid.New(),
		Actor:     domain.EntityRef{Kind: domain.ActorEntity, ID: activity.Actor},
		Verb:      verb,
		Target:    target,
		Public:    true,
		RawJSON:   raw,
		CreatedAt: time.Now(),
	}
	if err := h.DB.CreateAction(action); err != nil {
		log.Printf("Inbox: Failed to record action: %v", err)
	}
}

// noteRef resolves a note IRI to a stored note reference, nil when the
// note is unknown.
func (h *InboxHandler) noteRef(remoteId string) *domain.EntityRef {
	if remoteId == "" {
		return nil
	}
	err, note := h.DB.ReadNoteByRemoteId(remoteId)
	if err != nil || note == nil {
		return nil
	}
	return &domain.EntityRef{Kind: domain.NoteEntity, ID: note.Id.String()}
}
