// Package keywrap implements the record encryption and per-recipient key
// wrapping used between patient and doctor devices. Nothing here runs on the
// server; the ledger only ever stores digests of the artifacts produced here.
package keywrap

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const (
	// KeySize is the length of a record key (AES-256).
	KeySize = 32

	bundleVersion  = 1
	wrappedVersion = 1
)

var (
	ErrInvalidKey        = errors.New("keywrap: invalid key")
	ErrInvalidArtifact   = errors.New("keywrap: malformed artifact")
	ErrWrongRecipient    = errors.New("keywrap: artifact wrapped for another recipient")
	ErrDecrypt           = errors.New("keywrap: authentication failed")
	ErrIntegrityMismatch = errors.New("keywrap: integrity hash mismatch")
)

// KeyPair is an identity key pair. The hex form of Public is the identity's
// ledger address.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair draws a fresh X25519 key pair from r (crypto/rand when nil).
func GenerateKeyPair(r io.Reader) (KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	pub, priv, err := box.GenerateKey(r)
	if err != nil {
		return KeyPair{}, fmt.Errorf("keywrap: generate key pair: %w", err)
	}
	return KeyPair{Public: *pub, Private: *priv}, nil
}

// Address returns the lowercase hex public key.
func (kp KeyPair) Address() string { return hex.EncodeToString(kp.Public[:]) }

// PrivateHex returns the lowercase hex private key.
func (kp KeyPair) PrivateHex() string { return hex.EncodeToString(kp.Private[:]) }

// ParsePublicKey decodes an address into a public key.
func ParsePublicKey(addr string) ([32]byte, error) {
	return parse32(addr)
}

// ParseKeyPair rebuilds a key pair from its hex private key.
func ParseKeyPair(privateHex string) (KeyPair, error) {
	priv, err := parse32(privateHex)
	if err != nil {
		return KeyPair{}, err
	}
	var kp KeyPair
	kp.Private = priv
	pub, err := publicFromPrivate(&priv)
	if err != nil {
		return KeyPair{}, err
	}
	kp.Public = pub
	return kp, nil
}

func publicFromPrivate(priv *[32]byte) ([32]byte, error) {
	var pub [32]byte
	b, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, ErrInvalidKey
	}
	copy(pub[:], b)
	return pub, nil
}

func parse32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(out) {
		return out, ErrInvalidKey
	}
	copy(out[:], b)
	return out, nil
}

// NewRecordKey returns a fresh random record key.
func NewRecordKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("keywrap: generate record key: %w", err)
	}
	return key, nil
}

// IntegrityHash is the hex sha256 of the plaintext, independent of any key.
func IntegrityHash(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity compares plaintext against an integrity hash.
func VerifyIntegrity(plaintext []byte, want string) error {
	if IntegrityHash(plaintext) != want {
		return ErrIntegrityMismatch
	}
	return nil
}

// Bundle is the stored ciphertext artifact. The nonce travels with the
// ciphertext and is fresh for every encryption.
type Bundle struct {
	Version    int    `json:"v"`
	Alg        string `json:"alg"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ct"`
}

// Encrypt seals plaintext under key and returns the encoded bundle.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("keywrap: generate nonce: %w", err)
	}
	return json.Marshal(Bundle{
		Version:    bundleVersion,
		Alg:        "AES-256-GCM",
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	})
}

// Decrypt opens an encoded bundle produced by Encrypt.
func Decrypt(key, encoded []byte) ([]byte, error) {
	var b Bundle
	if err := json.Unmarshal(encoded, &b); err != nil || b.Version != bundleVersion {
		return nil, ErrInvalidArtifact
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(b.Nonce) != gcm.NonceSize() {
		return nil, ErrInvalidArtifact
	}
	plaintext, err := gcm.Open(nil, b.Nonce, b.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keywrap: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keywrap: create gcm: %w", err)
	}
	return gcm, nil
}

// WrappedKey is a record key sealed for exactly one recipient.
type WrappedKey struct {
	Version   int    `json:"v"`
	Recipient string `json:"recipient"`
	Sealed    []byte `json:"sealed"`
}

// Wrap seals key for the identity at recipient and returns the encoded artifact.
// Sealing is randomized, so wrapping the same key twice yields distinct artifacts.
func Wrap(key []byte, recipient string) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	pub, err := ParsePublicKey(recipient)
	if err != nil {
		return nil, err
	}
	sealed, err := box.SealAnonymous(nil, key, &pub, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keywrap: seal: %w", err)
	}
	return json.Marshal(WrappedKey{Version: wrappedVersion, Recipient: hex.EncodeToString(pub[:]), Sealed: sealed})
}

// Unwrap opens an artifact produced by Wrap with the recipient's key pair.
func Unwrap(encoded []byte, kp KeyPair) ([]byte, error) {
	var w WrappedKey
	if err := json.Unmarshal(encoded, &w); err != nil || w.Version != wrappedVersion {
		return nil, ErrInvalidArtifact
	}
	if w.Recipient != kp.Address() {
		return nil, ErrWrongRecipient
	}
	key, ok := box.OpenAnonymous(nil, w.Sealed, &kp.Public, &kp.Private)
	if !ok || len(key) != KeySize {
		return nil, ErrDecrypt
	}
	return key, nil
}

// Rewrap unwraps an owner artifact and wraps the same key for recipient.
func Rewrap(ownerArtifact []byte, owner KeyPair, recipient string) ([]byte, error) {
	key, err := Unwrap(ownerArtifact, owner)
	if err != nil {
		return nil, err
	}
	return Wrap(key, recipient)
}
