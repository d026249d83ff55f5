package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func signPayload(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"type":"customer.subscription.updated"}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)

	header := signPayload(payload, secret, now.Unix())
	if !verifyWebhookSignatureAt(payload, header, secret, now) {
		t.Fatal("expected valid signature to verify")
	}
}

func TestVerifyWebhookSignatureRejects(t *testing.T) {
	payload := []byte(`{"type":"customer.created"}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)
	valid := signPayload(payload, secret, now.Unix())

	tests := []struct {
		name    string
		payload []byte
		header  string
		secret  string
		now     time.Time
	}{
		{name: "empty header", payload: payload, header: "", secret: secret, now: now},
		{name: "empty secret", payload: payload, header: valid, secret: "", now: now},
		{name: "wrong secret", payload: payload, header: valid, secret: "whsec_other", now: now},
		{name: "tampered payload", payload: []byte(`{}`), header: valid, secret: secret, now: now},
		{name: "expired timestamp", payload: payload, header: valid, secret: secret, now: now.Add(DefaultSignatureTolerance + time.Minute)},
		{name: "garbage header", payload: payload, header: "t=abc,v1=zzz", secret: secret, now: now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if verifyWebhookSignatureAt(tt.payload, tt.header, tt.secret, tt.now) {
				t.Fatal("expected signature verification to fail")
			}
		})
	}
}
