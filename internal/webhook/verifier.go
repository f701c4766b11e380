// Package webhook verifies inbound trigger requests against one of several
// provider-specific HMAC schemes, or Basic-Auth/API-Key.8.
package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"net/http"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Algo names the supported HMAC digest algorithms.
type Algo string

const (
	AlgoSHA1    Algo = "sha1"
	AlgoSHA256  Algo = "sha256"
	AlgoSHA512  Algo = "sha512"
	AlgoSHA3256 Algo = "sha3-256"
)

func newHash(a Algo) (func() hash.Hash, error) {
	switch a {
	case AlgoSHA1:
		return sha1.New, nil
	case AlgoSHA256, "":
		return sha256.New, nil
	case AlgoSHA512:
		return sha512.New, nil
	case AlgoSHA3256:
		return sha3.New256, nil
	default:
		return nil, fmt.Errorf("unsupported hmac algorithm %q", a)
	}
}

// Encoding names how the raw digest is rendered before comparison.
type Encoding string

const (
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
)

// VerifyError distinguishes a bad signature (401) from a malformed request
// (400).8's failure mapping.
type VerifyError struct {
	StatusCode int
	Message    string
}

func (e *VerifyError) Error() string { return e.Message }

func invalidSignature() *VerifyError {
	return &VerifyError{StatusCode: http.StatusUnauthorized, Message: "invalid signature"}
}

func badRequest(msg string) *VerifyError {
	return &VerifyError{StatusCode: http.StatusBadRequest, Message: msg}
}

// Challenge is a canned HTTP response a provider wants returned instead of
// running verification (Twitch url-verification, Zoom endpoint-validation).
type Challenge struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Request is the inbound data Verify inspects: full raw body, full
// header map (keys in canonical form, as net/http stores them, and read
// through Header.Get), and the configured secret.
type Request struct {
	Headers http.Header
	Body    []byte
	Secret  string
}

// hmacSpec is what build_hmac_input returns: the exact bytes to sign, the
// header carrying the expected signature, an optional literal prefix, and
// the algo/encoding to use.
type hmacSpec struct {
	SignedPayload    []byte
	SignatureHeader  string
	Prefix           string
	Algo             Algo
	Encoding         Encoding
	ExpectedOverride string  // set when the header needs parsing (Stripe/TikTok "k=v,k=v")
}

// Provider is one webhook signature scheme.
type Provider interface {
	// HandleChallenge returns a non-nil Challenge when the request is a
	// provider handshake that must be answered instead of verified.
	HandleChallenge(req Request) (*Challenge, error)
	// BuildHMACInput computes the signed payload and expected signature
	// for req.
	BuildHMACInput(req Request) (*hmacSpec, error)
}

// Verify runs the full pipeline for name: challenge short-circuit, then
// constant-time HMAC comparison.
func Verify(name string, req Request) (*Challenge, error) {
	p, ok := Providers[name]
	if !ok {
		return nil, badRequest(fmt.Sprintf("unknown webhook provider %q", name))
	}

	if challenge, err := p.HandleChallenge(req); err != nil {
		return nil, err
	} else if challenge != nil {
		return challenge, nil
	}

	spec, err := p.BuildHMACInput(req)
	if err != nil {
		return nil, err
	}

	hashFn, err := newHash(spec.Algo)
	if err != nil {
		return nil, badRequest(err.Error())
	}
	mac := hmac.New(hashFn, []byte(req.Secret))
	mac.Write(spec.SignedPayload)
	digest := mac.Sum(nil)

	var encoded string
	switch spec.Encoding {
	case EncodingBase64:
		encoded = base64.StdEncoding.EncodeToString(digest)
	default:
		encoded = hex.EncodeToString(digest)
	}
	expected := spec.Prefix + encoded

	got := spec.ExpectedOverride
	if got == "" {
		got = req.Headers.Get(spec.SignatureHeader)
	}
	if got == "" {
		return nil, badRequest(fmt.Sprintf("missing %s header", spec.SignatureHeader))
	}

	if !constantTimeEqual(expected, got) {
		return nil, invalidSignature()
	}
	return nil, nil
}

// constantTimeEqual compares two strings without short-circuiting on the
// first differing byte (P7).
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still run a constant-time compare against a same-length decoy so
		// callers never observe a length-dependent timing signal.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// decodeJSONField extracts a single string field from a raw JSON body
// without requiring callers to know the full schema.
func decodeJSONField(body []byte, field string) (string, bool) {
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return "", false
	}
	v, ok := m[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// parseKV parses a "k1=v1,k2=v2" header value (Stripe/TikTok signature
// headers) into a map.
func parseKV(header string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 {
			out[kv[0]] = kv[1]
		}
	}
	return out
}
