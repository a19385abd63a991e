package web

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pramari/federation/activitypub"
	"github.com/pramari/federation/db"
	"github.com/pramari/federation/domain"
	"github.com/pramari/federation/util"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	server *Server
	router *gin.Engine
	db     *db.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	conf := &util.AppConfig{}
	conf.Conf.Host = "127.0.0.1"
	conf.Conf.HttpPort = 8000
	conf.Conf.SslDomain = "example.com"
	conf.Conf.InsecureFetch = true

	resolver := activitypub.NewResolver(database, nil, true)
	s := &Server{
		DB:   database,
		Conf: conf,
		Inbox: &activitypub.InboxHandler{
			DB:       database,
			Conf:     conf,
			Checker:  &activitypub.SignatureChecker{DB: database, Resolver: resolver},
			Resolver: resolver,
		},
	}
	return &testServer{server: s, router: s.Router(), db: database}
}

func (ts *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) createProfile(t *testing.T, slug string) (*domain.Profile, *domain.Actor) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	pubBytes, _ := x509.MarshalPKIXPublicKey(&key.PublicKey)

	profile := &domain.Profile{
		Id:   uuid.New(),
		Slug: slug,
		PublicKeyPem: string(pem.EncodeToMemory(&pem.Block{
			Type: "PUBLIC KEY", Bytes: pubBytes,
		})),
		PrivateKeyPem: string(pem.EncodeToMemory(&pem.Block{
			Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key),
		})),
		Consent:   true,
		CreatedAt: time.Now(),
	}
	if err := ts.db.CreateProfile(profile); err != nil {
		t.Fatalf("Failed to create profile: %v", err)
	}
	actor, err := activitypub.CreateActorForProfile(ts.db, ts.server.Conf, profile)
	if err != nil {
		t.Fatalf("Failed to create actor: %v", err)
	}
	return profile, actor
}

func (ts *testServer) createNote(t *testing.T, actor *domain.Actor, content string, public bool) *domain.Note {
	t.Helper()
	note := &domain.Note{
		Id:           uuid.New(),
		AttributedTo: actor.Id,
		Content:      content,
		Public:       public,
		Published:    time.Now(),
	}
	if err := ts.db.CreateNote(note); err != nil {
		t.Fatalf("Failed to create note: %v", err)
	}
	return note
}

func TestWebfingerEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createProfile(t, "alice")

	w := ts.get(t, "/.well-known/webfinger?resource=acct:alice@example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var jrd WebFingerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &jrd); err != nil {
		t.Fatalf("Failed to decode JRD: %v", err)
	}
	if jrd.Subject != "acct:alice@example.com" {
		t.Errorf("Expected subject acct:alice@example.com, got %s", jrd.Subject)
	}

	var self string
	for _, link := range jrd.Links {
		if link.Rel == "self" && link.Type == "application/activity+json" {
			self = link.Href
		}
	}
	if self != "https://example.com/@alice" {
		t.Errorf("Expected self link https://example.com/@alice, got %s", self)
	}
	if len(jrd.Aliases) != 1 || jrd.Aliases[0] != "https://example.com/@alice" {
		t.Errorf("Expected actor IRI alias, got %v", jrd.Aliases)
	}
}

func TestWebfingerErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.createProfile(t, "alice")

	cases := []struct {
		name     string
		resource string
		code     int
	}{
		{"missing resource", "", 400},
		{"no acct prefix", "alice@example.com", 400},
		{"foreign domain", "acct:alice@other.example", 400},
		{"unknown user", "acct:nobody@example.com", 404},
	}

	for _, c := range cases {
		w := ts.get(t, "/.well-known/webfinger?resource="+c.resource)
		if w.Code != c.code {
			t.Errorf("%s: expected %d, got %d", c.name, c.code, w.Code)
		}
	}
}

func TestParseWebfingerResource(t *testing.T) {
	conf := &util.AppConfig{}
	conf.Conf.SslDomain = "example.com"

	slug, err := ParseWebfingerResource("acct:alice@example.com", conf)
	if err != nil || slug != "alice" {
		t.Errorf("Expected alice, got %s / %v", slug, err)
	}

	// bare local name without a domain is accepted
	slug, err = ParseWebfingerResource("acct:alice", conf)
	if err != nil || slug != "alice" {
		t.Errorf("Expected alice, got %s / %v", slug, err)
	}

	for _, bad := range []string{"", "acct:", "acct:@example.com", "acct:alice@evil.example", "alice@example.com"} {
		if _, err := ParseWebfingerResource(bad, conf); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestActorDocument(t *testing.T) {
	ts := newTestServer(t)
	profile, actor := ts.createProfile(t, "alice")

	w := ts.get(t, "/@alice")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode actor document: %v", err)
	}

	if doc["id"] != actor.Id {
		t.Errorf("Expected id %s, got %v", actor.Id, doc["id"])
	}
	if doc["type"] != "Person" {
		t.Errorf("Expected type Person, got %v", doc["type"])
	}
	if doc["preferredUsername"] != "alice" {
		t.Errorf("Expected preferredUsername alice, got %v", doc["preferredUsername"])
	}
	if doc["inbox"] != actor.Id+"/inbox" {
		t.Errorf("Expected inbox %s/inbox, got %v", actor.Id, doc["inbox"])
	}
	if doc["liked"] != actor.Id+"/liked" {
		t.Errorf("Expected liked collection, got %v", doc["liked"])
	}

	publicKey, ok := doc["publicKey"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected publicKey object")
	}
	if publicKey["id"] != actor.Id+"#main-key" {
		t.Errorf("Expected key id %s#main-key, got %v", actor.Id, publicKey["id"])
	}
	if publicKey["owner"] != actor.Id {
		t.Errorf("Expected key owner %s, got %v", actor.Id, publicKey["owner"])
	}
	if publicKey["publicKeyPem"] != profile.PublicKeyPem {
		t.Error("Expected the profile's public key in the document")
	}

	endpoints, ok := doc["endpoints"].(map[string]interface{})
	if !ok || endpoints["sharedInbox"] != "https://example.com/inbox" {
		t.Errorf("Expected sharedInbox endpoint, got %v", doc["endpoints"])
	}
}

func TestActorDocumentNotFound(t *testing.T) {
	ts := newTestServer(t)

	if w := ts.get(t, "/@nobody"); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown actor, got %d", w.Code)
	}
	if w := ts.get(t, "/alice"); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for handle without @, got %d", w.Code)
	}
}

func TestNoteEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_, actor := ts.createProfile(t, "alice")
	note := ts.createNote(t, actor, "hello world", true)

	w := ts.get(t, "/notes/"+note.Id.String())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode note: %v", err)
	}
	if doc["type"] != "Note" {
		t.Errorf("Expected type Note, got %v", doc["type"])
	}
	if doc["content"] != "hello world" {
		t.Errorf("Expected content, got %v", doc["content"])
	}
	if doc["attributedTo"] != actor.Id {
		t.Errorf("Expected attribution %s, got %v", actor.Id, doc["attributedTo"])
	}

	if w := ts.get(t, "/notes/not-a-uuid"); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for invalid note id, got %d", w.Code)
	}
	if w := ts.get(t, "/notes/"+uuid.New().String()); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown note, got %d", w.Code)
	}
}

func TestSharedInboxAddressing(t *testing.T) {
	ts := newTestServer(t)
	_, alice := ts.createProfile(t, "alice")

	cases := []struct {
		name     string
		activity map[string]interface{}
		want     string
	}{
		{
			name:     "addressed in to",
			activity: map[string]interface{}{"to": []interface{}{alice.Id}},
			want:     "alice",
		},
		{
			name:     "followers collection in cc",
			activity: map[string]interface{}{"cc": []interface{}{alice.Id + "/followers"}},
			want:     "alice",
		},
		{
			name:     "follow object",
			activity: map[string]interface{}{"object": alice.Id},
			want:     "alice",
		},
		{
			name:     "foreign target",
			activity: map[string]interface{}{"to": []interface{}{"https://other.example/@bob"}},
			want:     "",
		},
		{
			name:     "no addressing",
			activity: map[string]interface{}{"type": "Create"},
			want:     "",
		},
	}

	for _, c := range cases {
		if got := ts.server.addressedSlug(c.activity); got != c.want {
			t.Errorf("%s: expected %q, got %q", c.name, c.want, got)
		}
	}
}

func TestSharedInboxRoutesToFollower(t *testing.T) {
	ts := newTestServer(t)
	_, alice := ts.createProfile(t, "alice")
	remote := "https://remote.example/users/bob"

	follow := &domain.Follow{
		Id:        uuid.New(),
		ActorId:   alice.Id,
		ObjectId:  remote,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := ts.db.CreateFollow(follow); err != nil {
		t.Fatalf("CreateFollow failed: %v", err)
	}
	if err := ts.db.AcceptFollow(follow.Id, alice.Id, remote, remote+"/accepts/1"); err != nil {
		t.Fatalf("AcceptFollow failed: %v", err)
	}

	activity := map[string]interface{}{
		"type":  "Create",
		"actor": remote,
		"to":    []interface{}{"https://www.w3.org/ns/activitystreams#Public"},
	}
	if got := ts.server.addressedSlug(activity); got != "alice" {
		t.Errorf("Expected routing to follower alice, got %q", got)
	}
}
