package webhook

import (
	"strings"
	"testing"
)

// Deterministic test key; never used outside tests.
const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignVerify_RoundTrip(t *testing.T) {
	message := []byte(`{"escrow_address":"0x1111111111111111111111111111111111111111","chain_id":137,"event_type":"escrow_created"}`)

	signature, err := Sign(message, testKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !strings.HasPrefix(signature, "0x") {
		t.Errorf("signature %q missing 0x prefix", signature)
	}

	address, err := SignerAddress(testKey)
	if err != nil {
		t.Fatalf("SignerAddress: %v", err)
	}
	if !Verify(message, signature, address) {
		t.Error("Verify rejected a valid signature")
	}
}

func TestVerify_WrongSigner(t *testing.T) {
	message := []byte(`{"event_type":"escrow_created"}`)
	signature, err := Sign(message, testKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if Verify(message, signature, "0x0000000000000000000000000000000000000001") {
		t.Error("Verify accepted a signature from another key")
	}
}

func TestVerify_TamperedMessage(t *testing.T) {
	message := []byte(`{"event_type":"escrow_created"}`)
	signature, err := Sign(message, testKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	address, err := SignerAddress(testKey)
	if err != nil {
		t.Fatalf("SignerAddress: %v", err)
	}

	if Verify([]byte(`{"event_type":"escrow_canceled"}`), signature, address) {
		t.Error("Verify accepted a signature over a different message")
	}
}

func TestVerify_Garbage(t *testing.T) {
	if Verify([]byte("msg"), "not-hex", "0x0000000000000000000000000000000000000001") {
		t.Error("Verify accepted a malformed signature")
	}
	if Verify([]byte("msg"), "0xdead", "0x0000000000000000000000000000000000000001") {
		t.Error("Verify accepted a truncated signature")
	}
}

func TestSign_BadKey(t *testing.T) {
	if _, err := Sign([]byte("msg"), "zzzz"); err == nil {
		t.Error("Sign accepted a malformed private key")
	}
}
