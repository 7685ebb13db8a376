package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// EnvelopeNonceSize is the nonce length used by the envelope cipher.
const EnvelopeNonceSize = 16

// envelopePlaintextSize is the serialized width of a single encrypted value.
// The MPC engine operates on 32-byte ciphertext elements.
const envelopePlaintextSize = 32

// envelopeHKDFInfo domain-separates the envelope key derivation from other
// uses of the same shared secret.
var envelopeHKDFInfo = []byte("shadow-protocol-envelope-v1")

// Envelope holds a single integer value encrypted for the MPC engine.
//
// The ephemeral public key and nonce travel with the ciphertext; the
// ephemeral private key is used once for key agreement and discarded.
type Envelope struct {
	Ciphertext         []byte
	Nonce              [EnvelopeNonceSize]byte
	EphemeralPublicKey [32]byte
}

// Seal encrypts a single unsigned integer for the MPC engine identified by
// enginePublicKey (an X25519 public key).
//
// A fresh X25519 key pair is generated per call; the shared secret is
// derived with HKDF-SHA256 and keys AES-256-CTR, with a random 16-byte
// nonce as the counter IV. Returns ErrInvalidKeyMaterial if the engine key
// is not exactly 32 bytes or is the all-zero identity element.
func Seal(value uint64, enginePublicKey []byte) (*Envelope, error) {
	var nonce [EnvelopeNonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return SealWithNonce(value, enginePublicKey, nonce)
}

// SealWithNonce is Seal with a caller-supplied nonce. Nonces must not be
// reused with the same engine key.
func SealWithNonce(value uint64, enginePublicKey []byte, nonce [EnvelopeNonceSize]byte) (*Envelope, error) {
	if err := checkEngineKey(enginePublicKey); err != nil {
		return nil, err
	}

	var ephemeralPriv [32]byte
	if _, err := rand.Read(ephemeralPriv[:]); err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	ephemeralPub, err := curve25519.X25519(ephemeralPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive ephemeral public key: %w", err)
	}

	stream, err := envelopeStream(ephemeralPriv[:], enginePublicKey, nonce)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, envelopePlaintextSize)
	binary.LittleEndian.PutUint64(plaintext, value)

	env := &Envelope{
		Ciphertext: make([]byte, envelopePlaintextSize),
		Nonce:      nonce,
	}
	copy(env.EphemeralPublicKey[:], ephemeralPub)
	stream.XORKeyStream(env.Ciphertext, plaintext)

	return env, nil
}

// Open decrypts an envelope using the engine's private key.
//
// Production settlement never calls this: result decryption is the MPC
// engine's job. It exists so tests can verify the round trip and so local
// tooling can inspect its own envelopes.
func Open(env *Envelope, enginePrivateKey []byte) (uint64, error) {
	if len(enginePrivateKey) != curve25519.ScalarSize {
		return 0, ErrInvalidKeyMaterial
	}
	if len(env.Ciphertext) != envelopePlaintextSize {
		return 0, fmt.Errorf("ciphertext is %d bytes, want %d", len(env.Ciphertext), envelopePlaintextSize)
	}

	stream, err := envelopeStream(enginePrivateKey, env.EphemeralPublicKey[:], env.Nonce)
	if err != nil {
		return 0, err
	}

	plaintext := make([]byte, envelopePlaintextSize)
	stream.XORKeyStream(plaintext, env.Ciphertext)

	return binary.LittleEndian.Uint64(plaintext), nil
}

// envelopeStream derives the shared secret and returns the CTR stream for
// one envelope. Both sides of the exchange arrive here with their own
// private key and the peer's public key.
func envelopeStream(privateKey, peerPublicKey []byte, nonce [EnvelopeNonceSize]byte) (cipher.Stream, error) {
	sharedPoint, err := curve25519.X25519(privateKey, peerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKeyMaterial, err)
	}

	kdf := hkdf.New(sha256.New, sharedPoint, nil, envelopeHKDFInfo)
	key := make([]byte, 32)
	if _, err := kdf.Read(key); err != nil {
		return nil, fmt.Errorf("derive envelope key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	return cipher.NewCTR(block, nonce[:]), nil
}

func checkEngineKey(enginePublicKey []byte) error {
	if len(enginePublicKey) != curve25519.PointSize {
		return ErrInvalidKeyMaterial
	}
	allZero := true
	for _, b := range enginePublicKey {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return ErrInvalidKeyMaterial
	}
	return nil
}

// GenerateEngineKeyPair generates an X25519 key pair. Used by tests and by
// deployments standing in for the MPC engine's published exchange key.
func GenerateEngineKeyPair() (publicKey, privateKey [32]byte, err error) {
	if _, err = rand.Read(privateKey[:]); err != nil {
		return
	}
	pub, derr := curve25519.X25519(privateKey[:], curve25519.Basepoint)
	if derr != nil {
		err = derr
		return
	}
	copy(publicKey[:], pub)
	return
}
