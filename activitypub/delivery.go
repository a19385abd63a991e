package activitypub

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/pramari/federation/db"
	"github.com/pramari/federation/domain"
	"github.com/pramari/federation/util"
)

var backoffMinutes = []int{1, 5, 15, 60, 240, 1440}

const maxDeliveryAttempts = 10

// StartDeliveryWorker starts a background worker that drains the
// delivery queue. The returned stop function shuts it down.
func StartDeliveryWorker(database *db.DB, conf *util.AppConfig, resolver *Resolver) func() {
	log.Println("Starting delivery worker...")

	ticker := time.NewTicker(10 * time.Second)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				processDeliveryQueue(database, conf, resolver)
			case <-done:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}

// processDeliveryQueue delivers due items, backing off on failure.
func processDeliveryQueue(database *db.DB, conf *util.AppConfig, resolver *Resolver) {
	err, items := database.ReadPendingDeliveries(50)
	if err != nil {
		log.Printf("DeliveryWorker: Failed to read queue: %v", err)
		return
	}

	if items == nil || len(*items) == 0 {
		return
	}

	log.Printf("DeliveryWorker: Processing %d pending deliveries", len(*items))

	for _, item := range *items {
		if err := deliverItem(database, conf, resolver, &item); err != nil {
			item.Attempts++
			backoff := backoffMinutes[min(item.Attempts-1, len(backoffMinutes)-1)]
			item.NextRetryAt = time.Now().Add(time.Duration(backoff) * time.Minute)

			if item.Attempts >= maxDeliveryAttempts {
				log.Printf("DeliveryWorker: Giving up on delivery to %s after %d attempts", item.InboxURI, item.Attempts)
				database.DeleteDelivery(item.Id)
			} else {
				log.Printf("DeliveryWorker: Delivery to %s failed (attempt %d), retry in %dm: %v",
					item.InboxURI, item.Attempts, backoff, err)
				database.UpdateDeliveryAttempt(item.Id, item.Attempts, item.NextRetryAt)
			}
		} else {
			log.Printf("DeliveryWorker: Successfully delivered to %s", item.InboxURI)
			database.DeleteDelivery(item.Id)
		}
	}
}

// deliverItem signs an enqueued activity with its local author's key and
// POSTs it.
func deliverItem(database *db.DB, conf *util.AppConfig, resolver *Resolver, item *domain.DeliveryQueueItem) error {
	var activity struct {
		Actor string `json:"actor"`
	}
	if err := json.Unmarshal([]byte(item.ActivityJSON), &activity); err != nil {
		return fmt.Errorf("failed to parse activity JSON: %w", err)
	}
	if activity.Actor == "" {
		return fmt.Errorf("activity missing actor field")
	}

	slug, err := SlugFromActorIRI(activity.Actor)
	if err != nil {
		return err
	}

	err, profile := database.ReadProfileBySlug(slug)
	if err != nil {
		return fmt.Errorf("failed to get local profile %s: %w", slug, err)
	}

	keyID := KeyID(conf, slug)
	return SendActivity(resolver, []byte(item.ActivityJSON), item.InboxURI, profile.PrivateKeyPem, keyID)
}

// SlugFromActorIRI extracts the local handle from an actor IRI of the
// form https://domain/@slug.
func SlugFromActorIRI(iri string) (string, error) {
	parsed, err := url.Parse(iri)
	if err != nil {
		return "", fmt.Errorf("invalid actor IRI: %w", err)
	}
	segment := strings.TrimPrefix(parsed.Path, "/")
	if !strings.HasPrefix(segment, "@") || len(segment) < 2 || strings.Contains(segment, "/") {
		return "", fmt.Errorf("not a local actor IRI: %s", iri)
	}
	return segment[1:], nil
}
