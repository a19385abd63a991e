package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pramari/federation/db"
	"github.com/pramari/federation/domain"
	"github.com/pramari/federation/util"
)

const (
	actorCacheSize = 256
	actorCacheTTL  = time.Hour
	maxResponseLen  = 1024 * 1024
	fetchTimeout    = 10 * time.Second
	deliveryTimeout = 30 * time.Second
)

// Resolver fetches remote actor documents, validating target URLs
// against SSRF and caching results in a bounded LRU.
type Resolver struct {
	DB        *db.DB
	BlockList *BlockList
	Insecure  bool
	cache     *expirable.LRU[string, *domain.Actor]
	client    *http.Client
}

// NewResolver builds a resolver. blockList may be nil.
func NewResolver(database *db.DB, blockList *BlockList, insecure bool) *Resolver {
	r := &Resolver{
		DB:        database,
		BlockList: blockList,
		Insecure:  insecure,
		cache:     expirable.NewLRU[string, *domain.Actor](actorCacheSize, nil, actorCacheTTL),
	}
	r.client = &http.Client{
		Timeout:       fetchTimeout,
		CheckRedirect: r.checkRedirect,
	}
	return r
}

func (r *Resolver) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 5 {
		return fmt.Errorf("too many redirects")
	}
	if !r.IsURLValid(req.URL.String()) {
		return fmt.Errorf("redirect to invalid url: %s", req.URL)
	}
	return nil
}

// DeliveryClient returns an HTTP client for outbound deliveries. It
// shares the resolver's redirect validation with a longer timeout for
// slow remote inboxes.
func (r *Resolver) DeliveryClient() *http.Client {
	return &http.Client{
		Timeout:       deliveryTimeout,
		CheckRedirect: r.checkRedirect,
	}
}

// IsURLValid reports whether a URL is safe to fetch: http(s) scheme, a
// hostname that is not localhost, not a .onion address, not blocked,
// and not resolving to a loopback, private or link-local address. The
// Insecure flag skips the hostname checks for local development.
func (r *Resolver) IsURLValid(rawurl string) bool {
	parsed, err := url.Parse(rawurl)
	if err != nil {
		return false
	}

	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return false
	}

	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return false
	}

	if r.Insecure {
		return true
	}

	if hostname == "localhost" || strings.HasSuffix(hostname, ".onion") {
		return false
	}

	if r.BlockList != nil && r.BlockList.Contains(hostname) {
		return false
	}

	if ip := net.ParseIP(hostname); ip != nil {
		return isPublicIP(ip)
	}

	ips, err := net.LookupIP(hostname)
	if err != nil || len(ips) == 0 {
		return false
	}
	for _, ip := range ips {
		if !isPublicIP(ip) {
			return false
		}
	}

	return true
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified())
}

// actorDocument is the minimal view of a fetched actor.
type actorDocument struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Summary           string `json:"summary"`
	Inbox             string `json:"inbox"`
	Outbox            string `json:"outbox"`
	Icon              struct {
		URL string `json:"url"`
	} `json:"icon"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// FetchActor fetches a remote actor document by IRI and stores the
// shadow Actor row.
func (r *Resolver) FetchActor(id string) (*domain.Actor, error) {
	if !r.IsURLValid(id) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, id)
	}

	req, err := http.NewRequest(http.MethodGet, id, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: %s", ErrObjectGone, id)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrObjectUnavailable, id)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetch, id, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAnObject, id)
	}
	if _, ok := decoded.(map[string]interface{}); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAnObject, id)
	}

	var doc actorDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAnObject, id)
	}

	if doc.ID == "" || doc.Inbox == "" || doc.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("%w: actor %s is missing required fields", ErrFetch, id)
	}

	// the inbox comes from the remote document, so it gets the same
	// validation as the fetch target before anything is POSTed to it
	if !r.IsURLValid(doc.Inbox) {
		return nil, fmt.Errorf("%w: actor %s inbox %s", ErrInvalidURL, id, doc.Inbox)
	}

	// a document claiming an id on another host is not trusted
	requested, _ := url.Parse(id)
	fetched, err := url.Parse(doc.ID)
	if err != nil || requested == nil || fetched.Host != requested.Host {
		return nil, fmt.Errorf("%w: actor id %s does not match %s", ErrFetch, doc.ID, id)
	}

	actorType := domain.ActorType(doc.Type)
	if !domain.ValidActorType(actorType) {
		actorType = domain.PersonType
	}

	now := time.Now()
	actor := &domain.Actor{
		Id:            doc.ID,
		Type:          actorType,
		PreferredName: doc.PreferredUsername,
		Summary:       doc.Summary,
		InboxURI:      doc.Inbox,
		OutboxURI:     doc.Outbox,
		PublicKeyPem:  doc.PublicKey.PublicKeyPem,
		IconURL:       doc.Icon.URL,
		CreatedAt:     now,
		LastFetchedAt: &now,
	}

	if r.DB != nil {
		if err := r.DB.UpsertRemoteActor(actor); err != nil {
			return nil, fmt.Errorf("failed to store actor %s: %w", doc.ID, err)
		}
	}

	return actor, nil
}

// GetOrFetch returns the actor from the LRU cache or fetches it.
func (r *Resolver) GetOrFetch(id string) (*domain.Actor, error) {
	if cached, ok := r.cache.Get(id); ok {
		return cached, nil
	}

	actor, err := r.FetchActor(id)
	if err != nil {
		return nil, err
	}

	r.cache.Add(id, actor)
	return actor, nil
}

// PublicKeyPem implements KeyResolver for the signature checker.
func (r *Resolver) PublicKeyPem(iri string) (string, error) {
	actor, err := r.GetOrFetch(iri)
	if err != nil {
		return "", err
	}
	return actor.PublicKeyPem, nil
}
