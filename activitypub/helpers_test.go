package activitypub

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pramari/federation/db"
	"github.com/pramari/federation/domain"
	"github.com/pramari/federation/util"
)

func privateKeyToPem(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

func publicKeyToPem(key *rsa.PublicKey) string {
	bytes, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		panic(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: bytes,
	}))
}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func testConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.Host = "127.0.0.1"
	conf.Conf.HttpPort = 8000
	conf.Conf.SslDomain = "example.com"
	conf.Conf.InsecureFetch = true
	return conf
}

// createLocalProfile stores a profile plus its actor row using a fresh
// test key.
func createLocalProfile(t *testing.T, database *db.DB, conf *util.AppConfig, slug string, key *rsa.PrivateKey) (*domain.Profile, *domain.Actor) {
	t.Helper()
	profile := &domain.Profile{
		Id:            uuid.New(),
		Slug:          slug,
		PublicKeyPem:  publicKeyToPem(&key.PublicKey),
		PrivateKeyPem: privateKeyToPem(key),
		Consent:       true,
		CreatedAt:     time.Now(),
	}
	if err := database.CreateProfile(profile); err != nil {
		t.Fatalf("Failed to create profile: %v", err)
	}
	actor, err := CreateActorForProfile(database, conf, profile)
	if err != nil {
		t.Fatalf("Failed to create actor: %v", err)
	}
	return profile, actor
}

// fakeRemote serves a remote actor document over httptest and keeps the
// actor's key for signing requests as that actor.
type fakeRemote struct {
	server *httptest.Server
	key    *rsa.PrivateKey
	iri    string
	inbox  [][]byte
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()
	remote := &fakeRemote{key: testKey(t)}

	mux := http.NewServeMux()
	mux.HandleFunc("/@bob", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":                remote.iri,
			"type":              "Person",
			"preferredUsername": "bob",
			"inbox":             remote.iri + "/inbox",
			"outbox":            remote.iri + "/outbox",
			"publicKey": map[string]interface{}{
				"id":           remote.iri + "#main-key",
				"owner":        remote.iri,
				"publicKeyPem": publicKeyToPem(&remote.key.PublicKey),
			},
		})
	})
	mux.HandleFunc("/@bob/inbox", func(w http.ResponseWriter, r *http.Request) {
		body := new(bytes.Buffer)
		body.ReadFrom(r.Body)
		remote.inbox = append(remote.inbox, body.Bytes())
		w.WriteHeader(http.StatusAccepted)
	})

	remote.server = httptest.NewServer(mux)
	remote.iri = remote.server.URL + "/@bob"
	t.Cleanup(remote.server.Close)
	return remote
}

// signedRequest builds an inbox POST signed with the given key.
func signedRequest(t *testing.T, target, keyID string, key *rsa.PrivateKey, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/activity+json")
	if err := SignRequest(req, body, key, keyID); err != nil {
		t.Fatalf("Failed to sign request: %v", err)
	}
	return req
}
