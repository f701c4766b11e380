package webhook

import (
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
)

// Providers is the registry of built-in webhook schemes, keyed by the
// trigger's configured provider name.
var Providers = map[string]Provider{
	"github": githubProvider{},
	"slack":  slackProvider{},
	"stripe": stripeProvider{},
	"tiktok": tiktokProvider{},
	"twitch": twitchProvider{},
	"zoom":   zoomProvider{},
}

// RegisterCustom installs a "custom" provider configured with the caller's
// own algo/encoding/header/prefix.
func RegisterCustom(name string, cfg CustomConfig) {
	Providers[name] = customProvider{cfg: cfg}
}

type noChallenge struct{}

func (noChallenge) HandleChallenge(Request) (*Challenge, error) { return nil, nil }

// --- GitHub ---------------------------------------------------------------

type githubProvider struct{ noChallenge }

func (githubProvider) BuildHMACInput(req Request) (*hmacSpec, error) {
	return &hmacSpec{
		SignedPayload:   req.Body,
		SignatureHeader: "X-Hub-Signature-256",
		Prefix:          "sha256=",
		Algo:            AlgoSHA256,
		Encoding:        EncodingHex,
	}, nil
}

// --- Slack ------------------------------------------------------------------

type slackProvider struct{ noChallenge }

func (slackProvider) BuildHMACInput(req Request) (*hmacSpec, error) {
	ts := req.Headers.Get("X-Slack-Request-Timestamp")
	if ts == "" {
		return nil, badRequest("missing X-Slack-Request-Timestamp header")
	}
	payload := "v0:" + ts + ":" + string(req.Body)
	return &hmacSpec{
		SignedPayload:   []byte(payload),
		SignatureHeader: "X-Slack-Signature",
		Prefix:          "v0=",
		Algo:            AlgoSHA256,
		Encoding:        EncodingHex,
	}, nil
}

// --- Stripe -----------------------------------------------------------------

type stripeProvider struct{ noChallenge }

func (stripeProvider) BuildHMACInput(req Request) (*hmacSpec, error) {
	header := req.Headers.Get("STRIPE-SIGNATURE")
	if header == "" {
		return nil, badRequest("missing STRIPE-SIGNATURE header")
	}
	kv := parseKV(header)
	t, ok := kv["t"]
	if !ok {
		return nil, badRequest("STRIPE-SIGNATURE missing t=")
	}
	v1, ok := kv["v1"]
	if !ok {
		return nil, badRequest("STRIPE-SIGNATURE missing v1=")
	}
	payload := t + "." + string(req.Body)
	return &hmacSpec{
		SignedPayload:    []byte(payload),
		Algo:             AlgoSHA256,
		Encoding:         EncodingHex,
		ExpectedOverride: v1,
	}, nil
}

// --- TikTok -----------------------------------------------------------------

type tiktokProvider struct{ noChallenge }

func (tiktokProvider) BuildHMACInput(req Request) (*hmacSpec, error) {
	header := req.Headers.Get("TikTok-Signature")
	if header == "" {
		return nil, badRequest("missing TikTok-Signature header")
	}
	kv := parseKV(header)
	t, ok := kv["t"]
	if !ok {
		return nil, badRequest("TikTok-Signature missing t=")
	}
	s, ok := kv["s"]
	if !ok {
		return nil, badRequest("TikTok-Signature missing s=")
	}
	payload := t + "." + string(req.Body)
	return &hmacSpec{
		SignedPayload:    []byte(payload),
		Algo:             AlgoSHA256,
		Encoding:         EncodingHex,
		ExpectedOverride: s,
	}, nil
}

// --- Twitch -----------------------------------------------------------------

type twitchProvider struct{}

func (twitchProvider) HandleChallenge(req Request) (*Challenge, error) {
	if req.Headers.Get("Twitch-Eventsub-Message-Type") != "webhook_callback_verification" {
		return nil, nil
	}
	challenge, ok := decodeJSONField(req.Body, "challenge")
	if !ok {
		return nil, badRequest("twitch verification body missing challenge field")
	}
	return &Challenge{StatusCode: http.StatusOK, ContentType: "text/plain", Body: []byte(challenge)}, nil
}

func (twitchProvider) BuildHMACInput(req Request) (*hmacSpec, error) {
	id := req.Headers.Get("Twitch-Eventsub-Message-Id")
	ts := req.Headers.Get("Twitch-Eventsub-Message-Timestamp")
	if id == "" || ts == "" {
		return nil, badRequest("missing Twitch-Eventsub-Message-Id/Timestamp header")
	}
	payload := id + ts + string(req.Body)
	return &hmacSpec{
		SignedPayload:   []byte(payload),
		SignatureHeader: "Twitch-Eventsub-Message-Signature",
		Prefix:          "sha256=",
		Algo:            AlgoSHA256,
		Encoding:        EncodingHex,
	}, nil
}

// --- Zoom -------------------------------------------------------------------

type zoomProvider struct{}

func (zoomProvider) HandleChallenge(req Request) (*Challenge, error) {
	event, ok := decodeJSONField(req.Body, "event")
	if !ok || event != "endpoint.url_validation" {
		return nil, nil
	}
	plainToken, ok := decodeJSONField(payloadField(req.Body), "plainToken")
	if !ok {
		return nil, badRequest("zoom url_validation body missing payload.plainToken")
	}

	encrypted, err := hmacHex(req.Secret, plainToken)
	if err != nil {
		return nil, err
	}

	body, _ := json.Marshal(map[string]string{
		"plainToken":     plainToken,
		"encryptedToken": encrypted,
	})
	return &Challenge{StatusCode: http.StatusOK, ContentType: "application/json", Body: body}, nil
}

func (zoomProvider) BuildHMACInput(req Request) (*hmacSpec, error) {
	ts := req.Headers.Get("x-zm-request-timestamp")
	if ts == "" {
		return nil, badRequest("missing x-zm-request-timestamp header")
	}
	payload := "v0:" + ts + ":" + string(req.Body)
	return &hmacSpec{
		SignedPayload:   []byte(payload),
		SignatureHeader: "x-zm-signature",
		Prefix:          "v0=",
		Algo:            AlgoSHA256,
		Encoding:        EncodingHex,
	}, nil
}

func payloadField(body []byte) []byte {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return body
	}
	if p, ok := m["payload"]; ok {
		return p
	}
	return body
}

func hmacHex(secret, msg string) (string, error) {
	hashFn, err := newHash(AlgoSHA256)
	if err != nil {
		return "", err
	}
	h := hmac.New(hashFn, []byte(secret))
	h.Write([]byte(msg))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// --- Custom -----------------------------------------------------------------

// CustomConfig configures the "custom" webhook provider with a
// caller-supplied scheme.
type CustomConfig struct {
	Header   string
	Prefix   string
	Algo     Algo
	Encoding Encoding
}

type customProvider struct {
	cfg CustomConfig
}

func (customProvider) HandleChallenge(Request) (*Challenge, error) { return nil, nil }

func (c customProvider) BuildHMACInput(req Request) (*hmacSpec, error) {
	if c.cfg.Header == "" {
		return nil, fmt.Errorf("custom provider missing configured header")
	}
	return &hmacSpec{
		SignedPayload:   req.Body,
		SignatureHeader: c.cfg.Header,
		Prefix:          c.cfg.Prefix,
		Algo:            c.cfg.Algo,
		Encoding:        c.cfg.Encoding,
	}, nil
}
