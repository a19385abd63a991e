package activitypub

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/textproto"
	"regexp"
	"strings"
	"time"
)

// draft-cavage HTTP Signatures, rsa-sha256 only.

const AlgorithmRsaSha256 = "rsa-sha256"

// SignatureHeader is the parsed form of a Signature header.
type SignatureHeader struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature []byte
}

var signatureAttrRegex = regexp.MustCompile(`\b([^"=\s,]+)="([^"]*)"`)

// BuildSigningString assembles the canonical signing string for the given
// header names in the given order. `(request-target)` expands to the
// lower-cased method and path; every other name is looked up through the
// value function. Unknown pseudo-headers and missing headers error.
func BuildSigningString(method, path string, headers []string, value func(string) string) (string, error) {
	var b strings.Builder

	for i, h := range headers {
		switch h {
		case "(request-target)":
			b.WriteString("(request-target): ")
			b.WriteString(strings.ToLower(method))
			b.WriteByte(' ')
			b.WriteString(path)

		default:
			if len(h) == 0 || h[0] == '(' {
				return "", fmt.Errorf("%w: unsupported header: %s", ErrMalformedSignature, h)
			}
			v := value(h)
			if v == "" {
				return "", fmt.Errorf("%w: unspecified header: %s", ErrMalformedSignature, h)
			}
			b.WriteString(strings.ToLower(h))
			b.WriteString(": ")
			b.WriteString(strings.TrimSpace(v))
		}

		if i < len(headers)-1 {
			b.WriteByte('\n')
		}
	}

	return b.String(), nil
}

// SigningStringFromRequest rebuilds the signing string for a request,
// pulling header values from the request itself.
func SigningStringFromRequest(r *http.Request, headers []string) (string, error) {
	return BuildSigningString(r.Method, r.URL.Path, headers, func(h string) string {
		if strings.EqualFold(h, "host") {
			if v := r.Header.Get("Host"); v != "" {
				return v
			}
			return r.Host
		}
		values := r.Header[textproto.CanonicalMIMEHeaderKey(h)]
		return strings.Join(values, ", ")
	})
}

// Sign signs the signing string with RSA-SHA256 and returns the base64
// encoded signature.
func Sign(signingString string, key *rsa.PrivateKey) (string, error) {
	hash := sha256.Sum256([]byte(signingString))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifySignature checks an RSA-SHA256 signature over the signing string.
func VerifySignature(signingString string, signature []byte, key *rsa.PublicKey) error {
	hash := sha256.Sum256([]byte(signingString))
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, hash[:], signature)
}

// BuildSignatureHeader renders the Signature header value.
func BuildSignatureHeader(keyID, algorithm string, headers []string, signature string) string {
	return fmt.Sprintf(`keyId="%s",algorithm="%s",headers="%s",signature="%s"`,
		keyID, algorithm, strings.Join(headers, " "), signature)
}

// ParseSignatureHeader is the exact inverse of BuildSignatureHeader.
// A missing or duplicated key, an empty value, an undecodable signature,
// or an algorithm other than rsa-sha256 is malformed.
func ParseSignatureHeader(header string) (*SignatureHeader, error) {
	var keyID, algorithm, headers, signature string
	for _, m := range signatureAttrRegex.FindAllStringSubmatch(header, -1) {
		switch m[1] {
		case "keyId":
			if keyID != "" {
				return nil, fmt.Errorf("%w: more than one keyId", ErrMalformedSignature)
			}
			keyID = m[2]
		case "algorithm":
			if algorithm != "" {
				return nil, fmt.Errorf("%w: more than one algorithm", ErrMalformedSignature)
			}
			algorithm = m[2]
		case "headers":
			if headers != "" {
				return nil, fmt.Errorf("%w: more than one headers", ErrMalformedSignature)
			}
			headers = m[2]
		case "signature":
			if signature != "" {
				return nil, fmt.Errorf("%w: more than one signature", ErrMalformedSignature)
			}
			signature = m[2]
		default:
			return nil, fmt.Errorf("%w: unsupported attribute: %s", ErrMalformedSignature, m[1])
		}
	}

	if keyID == "" || algorithm == "" || headers == "" || signature == "" {
		return nil, fmt.Errorf("%w: %s", ErrMalformedSignature, header)
	}

	if algorithm != AlgorithmRsaSha256 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}

	rawSignature, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable signature: %v", ErrMalformedSignature, err)
	}

	headerList := strings.Fields(strings.ToLower(headers))
	if len(headerList) == 0 {
		return nil, fmt.Errorf("%w: empty headers list", ErrMalformedSignature)
	}
	seen := make(map[string]bool, len(headerList))
	for _, h := range headerList {
		if seen[h] {
			return nil, fmt.Errorf("%w: duplicate header: %s", ErrMalformedSignature, h)
		}
		seen[h] = true
	}

	return &SignatureHeader{
		KeyID:     keyID,
		Algorithm: algorithm,
		Headers:   headerList,
		Signature: rawSignature,
	}, nil
}

// Digest computes the Digest header value for a request body.
func Digest(body []byte) string {
	hash := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
}

// SignRequest signs an outgoing HTTP request with the given private key.
// keyId format: "https://example.com/@alice#main-key"
func SignRequest(req *http.Request, body []byte, privateKey *rsa.PrivateKey, keyID string) error {
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.URL.Host)
	}

	headers := []string{"(request-target)", "host", "date"}
	if req.Method == http.MethodPost {
		req.Header.Set("Digest", Digest(body))
		headers = append(headers, "content-type", "digest")
	}

	signingString, err := SigningStringFromRequest(req, headers)
	if err != nil {
		return err
	}

	signature, err := Sign(signingString, privateKey)
	if err != nil {
		return err
	}

	req.Header.Set("Signature", BuildSignatureHeader(keyID, AlgorithmRsaSha256, headers, signature))
	return nil
}

// ParsePrivateKey converts a PEM string to *rsa.PrivateKey
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return privateKey, nil
	}

	parsed, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err2 != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return rsaKey, nil
}

// ParsePublicKey converts a PEM string to *rsa.PublicKey, accepting both
// PKIX and PKCS1 encodings since remote servers publish either.
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err == nil {
		rsaPubKey, ok := pubKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA public key")
		}
		return rsaPubKey, nil
	}

	rsaPubKey, err2 := x509.ParsePKCS1PublicKey(block.Bytes)
	if err2 != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return rsaPubKey, nil
}
