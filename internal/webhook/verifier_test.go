package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestGitHubWebhook_HappyPathAndBitFlip(t *testing.T) {
	secret := "s"
	body := `{"action":"opened"}`
	sig := sign(secret, body)

	req := Request{
		Headers: http.Header{"X-Hub-Signature-256": []string{"sha256=" + sig}},
		Body:    []byte(body),
		Secret:  secret,
	}
	_, err := Verify("github", req)
	require.NoError(t, err)

	flipped := flipHexChar(sig)
	req.Headers.Set("X-Hub-Signature-256", "sha256="+flipped)
	_, err = Verify("github", req)
	require.Error(t, err)
	ve, ok := err.(*VerifyError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, ve.StatusCode)
}

func flipHexChar(s string) string {
	b := []byte(s)
	if b[0] == 'a' {
		b[0] = 'b'
	} else {
		b[0] = 'a'
	}
	return string(b)
}

func TestSlackWebhook_SignedPayloadFormula(t *testing.T) {
	secret := "shh"
	body := `{"type":"event_callback"}`
	ts := "1700000000"
	payload := "v0:" + ts + ":" + body
	sig := sign(secret, payload)

	req := Request{
		Headers: http.Header{
			"X-Slack-Request-Timestamp": []string{ts},
			"X-Slack-Signature":         []string{"v0=" + sig},
		},
		Body:   []byte(body),
		Secret: secret,
	}
	_, err := Verify("slack", req)
	require.NoError(t, err)
}

func TestStripeWebhook_ParsesKVHeader(t *testing.T) {
	secret := "whsec"
	body := `{"id":"evt_1"}`
	ts := "1700000000"
	payload := ts + "." + body
	v1 := sign(secret, payload)

	req := Request{
		Headers: http.Header{"Stripe-Signature": []string{"t=" + ts + ",v1=" + v1}},
		Body:    []byte(body),
		Secret:  secret,
	}
	_, err := Verify("stripe", req)
	require.NoError(t, err)
}

func TestTwitchWebhook_ChallengeResponse(t *testing.T) {
	req := Request{
		Headers: http.Header{"Twitch-Eventsub-Message-Type": []string{"webhook_callback_verification"}},
		Body:    []byte(`{"challenge":"abc123"}`),
	}
	challenge, err := Verify("twitch", req)
	require.NoError(t, err)
	require.NotNil(t, challenge)
	require.Equal(t, "abc123", string(challenge.Body))
}

func TestZoomWebhook_EndpointValidation(t *testing.T) {
	secret := "zoomsecret"
	req := Request{
		Body:   []byte(`{"event":"endpoint.url_validation","payload":{"plainToken":"tok123"}}`),
		Secret: secret,
	}
	challenge, err := Verify("zoom", req)
	require.NoError(t, err)
	require.NotNil(t, challenge)
	require.Contains(t, string(challenge.Body), "tok123")
	require.Contains(t, string(challenge.Body), "encryptedToken")
}

func TestBasicAuth_MissingAndMalformedHeader(t *testing.T) {
	auth := BasicAuth{Username: "admin", Password: "secret"}

	err := auth.Check(Request{Headers: http.Header{}})
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, err.(*VerifyError).StatusCode)

	err = auth.Check(Request{Headers: http.Header{"Authorization": []string{"Bearer xyz"}}})
	require.Error(t, err)
	require.Equal(t, http.StatusBadRequest, err.(*VerifyError).StatusCode)
}

func TestAPIKey_ConstantTimeReject(t *testing.T) {
	key := APIKey{Header: "X-Api-Key", Secret: "correct-secret"}
	err := key.Check(Request{Headers: http.Header{"X-Api-Key": []string{"wrong-secret"}}})
	require.Error(t, err)
}
