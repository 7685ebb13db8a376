package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/crypto"
)

func TestParseCallbackFrame_ShortBuffers(t *testing.T) {
	for _, n := range []int{0, 1, 2, 6, 70, 134, 165} {
		buf := make([]byte, n)
		_, err := ParseCallbackFrame(buf)
		assert.ErrorIs(t, err, ErrMalformedFrame, "length %d", n)
	}
}

func TestParseCallbackFrame_HeaderFields(t *testing.T) {
	pubKey, privKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	payload := []byte("result bytes")
	sig, err := crypto.Sign(privKey, payload)
	require.NoError(t, err)

	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint16(buf[0:], 7)
	binary.LittleEndian.PutUint32(buf[2:], uint32(KindSealedBid))
	_, err = rand.Read(buf[6:70]) // transaction signature, informational
	require.NoError(t, err)
	copy(buf[70:134], sig.Bytes())
	copy(buf[134:166], pubKey.Bytes())
	copy(buf[166:], payload)

	cb, err := ParseCallbackFrame(buf)
	require.NoError(t, err)

	assert.Equal(t, uint16(7), cb.MempoolID)
	assert.Equal(t, KindSealedBid, cb.Kind)
	assert.Equal(t, buf[6:70], cb.TransactionSignature[:])
	assert.Equal(t, sig.Bytes(), cb.DataSignature.Bytes())
	assert.True(t, pubKey.Equal(cb.SignerPublicKey))
	assert.Equal(t, payload, cb.Payload)

	ok, err := crypto.VerifyDetached(cb.Payload, cb.DataSignature, cb.SignerPublicKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseCallbackFrame_PayloadExact(t *testing.T) {
	// Header-only frame has an empty payload.
	buf := make([]byte, HeaderSize)
	cb, err := ParseCallbackFrame(buf)
	require.NoError(t, err)
	assert.Empty(t, cb.Payload)

	// Every payload byte past the header comes through untouched.
	buf = make([]byte, HeaderSize+257)
	for i := HeaderSize; i < len(buf); i++ {
		buf[i] = byte(i % 251)
	}
	cb, err = ParseCallbackFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, buf[HeaderSize:], cb.Payload)
}

func TestEncodeCallbackFrame_RoundTrip(t *testing.T) {
	pubKey, privKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	payload := make([]byte, 48)
	_, err = rand.Read(payload)
	require.NoError(t, err)

	sig, err := crypto.Sign(privKey, payload)
	require.NoError(t, err)

	orig := &SettlementCallback{
		MempoolID:       42,
		Kind:            KindDutchAuction,
		DataSignature:   sig,
		SignerPublicKey: pubKey,
		Payload:         payload,
	}
	_, err = rand.Read(orig.TransactionSignature[:])
	require.NoError(t, err)

	parsed, err := ParseCallbackFrame(EncodeCallbackFrame(orig))
	require.NoError(t, err)
	assert.Equal(t, orig.MempoolID, parsed.MempoolID)
	assert.Equal(t, orig.Kind, parsed.Kind)
	assert.Equal(t, orig.TransactionSignature, parsed.TransactionSignature)
	assert.Equal(t, orig.DataSignature.Bytes(), parsed.DataSignature.Bytes())
	assert.Equal(t, orig.Payload, parsed.Payload)
}

func FuzzParseCallbackFrame(f *testing.F) {
	f.Add([]byte{})
	f.Add(make([]byte, HeaderSize-1))
	f.Add(make([]byte, HeaderSize))
	f.Add(make([]byte, HeaderSize+33))

	f.Fuzz(func(t *testing.T, buf []byte) {
		cb, err := ParseCallbackFrame(buf)
		if len(buf) < HeaderSize {
			if err != ErrMalformedFrame {
				t.Errorf("short buffer (%d bytes): got %v, want ErrMalformedFrame", len(buf), err)
			}
			return
		}

		if err != nil {
			t.Fatalf("valid-length buffer failed: %v", err)
		}
		if len(cb.Payload) != len(buf)-HeaderSize {
			t.Errorf("payload length %d, want %d", len(cb.Payload), len(buf)-HeaderSize)
		}
		for i, b := range cb.Payload {
			if b != buf[HeaderSize+i] {
				t.Fatalf("payload byte %d differs from input", i)
			}
		}
	})
}
