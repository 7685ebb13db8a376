package crypto

import (
	"testing"
)

func FuzzSignVerifyDetached(f *testing.F) {
	// Add seed corpus
	f.Add([]byte{})                    // Empty payload
	f.Add([]byte("hello"))             // Simple payload
	f.Add([]byte("settlement result")) // Longer payload
	f.Add(make([]byte, 1000))          // Large payload

	f.Fuzz(func(t *testing.T, data []byte) {
		// Generate a key pair
		pubKey, privKey, err := GenerateKeyPair()
		if err != nil {
			t.Fatalf("failed to generate key pair: %v", err)
		}

		// Sign
		signature, err := Sign(privKey, data)
		if err != nil {
			t.Fatalf("signing failed: %v", err)
		}

		// Invariant 1: Signature has correct length (Ed25519 = 64 bytes)
		if len(signature) != 64 {
			t.Errorf("signature wrong length: got %d, want 64", len(signature))
		}

		// Invariant 2: Signature verifies with correct public key
		ok, err := VerifyDetached(data, signature, pubKey)
		if err != nil {
			t.Fatalf("verification errored: %v", err)
		}
		if !ok {
			t.Error("signature verification failed with correct key")
		}

		// Invariant 3: Signature fails with wrong public key
		wrongPubKey, _, _ := GenerateKeyPair()
		ok, err = VerifyDetached(data, signature, wrongPubKey)
		if err != nil {
			t.Fatalf("verification errored: %v", err)
		}
		if ok {
			t.Error("signature should not verify with wrong public key")
		}

		// Invariant 4: Modified payload fails verification
		if len(data) > 0 {
			modifiedData := make([]byte, len(data))
			copy(modifiedData, data)
			modifiedData[0] ^= 0xFF
			ok, _ = VerifyDetached(modifiedData, signature, pubKey)
			if ok {
				t.Error("signature should not verify with modified payload")
			}
		}

		// Invariant 5: Modified signature fails verification
		modifiedSig := NewSignature(signature)
		modifiedSig[0] ^= 0x01
		ok, _ = VerifyDetached(data, modifiedSig, pubKey)
		if ok {
			t.Error("modified signature should not verify")
		}
	})
}

func TestVerifyDetachedKeyMaterial(t *testing.T) {
	pubKey, privKey, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}

	msg := []byte("payload")
	signature, err := Sign(privKey, msg)
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	// Truncated public key is a key material error, not a failed verification.
	if _, err := VerifyDetached(msg, signature, pubKey[:16]); err != ErrInvalidKeyMaterial {
		t.Errorf("short public key: got %v, want ErrInvalidKeyMaterial", err)
	}

	// Truncated signature likewise.
	if _, err := VerifyDetached(msg, signature[:32], pubKey); err != ErrInvalidKeyMaterial {
		t.Errorf("short signature: got %v, want ErrInvalidKeyMaterial", err)
	}

	// A well-formed but unrelated signature returns false without error.
	otherSig := make(Signature, 64)
	ok, err := VerifyDetached(msg, otherSig, pubKey)
	if err != nil {
		t.Fatalf("verification errored: %v", err)
	}
	if ok {
		t.Error("zero signature should not verify")
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	pubKey, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}

	parsed, err := NewPublicKeyFromString(pubKey.String())
	if err != nil {
		t.Fatalf("failed to parse hex key: %v", err)
	}
	if !pubKey.Equal(parsed) {
		t.Error("hex round trip changed the key")
	}
}
