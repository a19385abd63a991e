package activitypub

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pramari/federation/db"
)

const (
	minKeyBits = 2048
	maxKeyBits = 8192
)

// requiredSignedHeaders is the minimum coverage a signature must claim.
// Without (request-target) and host nothing binds the signature to this
// inbox, and an unsigned Date could be refreshed to replay a capture.
var requiredSignedHeaders = []string{"(request-target)", "host", "date"}

// VerificationResult is the outcome of a signature check. KeyID carries
// the signing key of a verified request so callers can attribute it.
type VerificationResult struct {
	OK    bool
	KeyID string
}

// KeyResolver resolves a key owner IRI to its public key PEM.
type KeyResolver interface {
	PublicKeyPem(iri string) (string, error)
}

// SignatureChecker validates inbound HTTP signatures. Failures are
// reported as an unverified result, never as an error or panic.
type SignatureChecker struct {
	DB       *db.DB
	Resolver KeyResolver
	MaxAge   time.Duration
}

// Validate checks the signature on an inbound request against the body
// already read from it.
func (c *SignatureChecker) Validate(r *http.Request, body []byte) VerificationResult {
	header := r.Header.Get("Signature")
	if header == "" {
		return VerificationResult{}
	}

	sig, err := ParseSignatureHeader(header)
	if err != nil {
		log.Printf("Verify: %v", err)
		return VerificationResult{}
	}

	for _, h := range requiredSignedHeaders {
		if !signedHeader(sig.Headers, h) {
			log.Printf("Verify: signature does not cover %s", h)
			return VerificationResult{}
		}
	}

	if !c.fresh(r) {
		return VerificationResult{}
	}

	if len(body) > 0 && !c.digestMatches(r, sig, body) {
		return VerificationResult{}
	}

	signingString, err := SigningStringFromRequest(r, sig.Headers)
	if err != nil {
		log.Printf("Verify: %v", err)
		return VerificationResult{}
	}

	key, err := c.resolveKey(sig.KeyID)
	if err != nil {
		log.Printf("Verify: failed to resolve key %s: %v", sig.KeyID, err)
		return VerificationResult{}
	}

	bits := key.N.BitLen()
	if bits < minKeyBits || bits > maxKeyBits {
		log.Printf("Verify: invalid key size: %d", bits)
		return VerificationResult{}
	}

	if err := VerifySignature(signingString, sig.Signature, key); err != nil {
		log.Printf("Verify: signature mismatch for %s", sig.KeyID)
		return VerificationResult{}
	}

	return VerificationResult{OK: true, KeyID: sig.KeyID}
}

// fresh checks that the Date header parses and is within MaxAge.
func (c *SignatureChecker) fresh(r *http.Request) bool {
	date := r.Header.Get("Date")
	if date == "" {
		log.Printf("Verify: date is unspecified")
		return false
	}
	t, err := time.Parse(http.TimeFormat, date)
	if err != nil {
		log.Printf("Verify: unparseable date: %s", date)
		return false
	}
	maxAge := c.MaxAge
	if maxAge == 0 {
		maxAge = 300 * time.Second
	}
	skew := time.Since(t)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxAge {
		log.Printf("Verify: date is too old: %s", date)
		return false
	}
	return true
}

func signedHeader(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}

func (c *SignatureChecker) digestMatches(r *http.Request, sig *SignatureHeader, body []byte) bool {
	if !signedHeader(sig.Headers, "digest") {
		log.Printf("Verify: digest is not signed")
		return false
	}

	digest := r.Header.Get("Digest")
	if !strings.HasPrefix(digest, "SHA-256=") || len(digest) == len("SHA-256=") {
		log.Printf("Verify: invalid digest: %s", digest)
		return false
	}
	rawDigest, err := base64.StdEncoding.DecodeString(digest[len("SHA-256="):])
	if err != nil || len(rawDigest) != sha256.Size {
		log.Printf("Verify: undecodable digest: %s", digest)
		return false
	}

	hash := sha256.Sum256(body)
	if !bytes.Equal(hash[:], rawDigest) {
		log.Printf("Verify: digest mismatch")
		return false
	}
	return true
}

// resolveKey strips the key fragment from keyId, prefers the stored key
// of an already-known actor and falls back to the resolver.
func (c *SignatureChecker) resolveKey(keyID string) (*rsa.PublicKey, error) {
	ownerIRI := strings.SplitN(keyID, "#", 2)[0]

	if c.DB != nil {
		err, actor := c.DB.ReadActorById(ownerIRI)
		if err == nil && actor != nil && actor.PublicKeyPem != "" {
			return ParsePublicKey(actor.PublicKeyPem)
		}
	}

	if c.Resolver == nil {
		return nil, ErrObjectNotFound
	}
	pemString, err := c.Resolver.PublicKeyPem(ownerIRI)
	if err != nil {
		return nil, err
	}
	return ParsePublicKey(pemString)
}
