// Package sharing drives the record-sharing protocol from an identity's own
// device: sealing new records, re-wrapping keys for doctors on grant and
// opening records received through a grant.
package sharing

import (
	"context"
	"errors"
	"fmt"

	"carevault.org/internal/contentstore"
	"carevault.org/internal/keywrap"
	"carevault.org/internal/ledger"
)

// ErrNoAccess is returned by OpenGranted when the ledger holds no usable key for the caller.
var ErrNoAccess = errors.New("sharing: no active access")

// Sealed carries the digests produced by sealing one record.
type Sealed struct {
	PayloadDigest  ledger.Digest
	OwnerKeyDigest ledger.Digest
	IntegrityHash  ledger.Digest
}

// Record builds the AddRecord input for owner.
func (s Sealed) Record(owner ledger.Address, typ ledger.RecordType, description string) ledger.NewRecord {
	return ledger.NewRecord{
		Owner:          owner,
		PayloadDigest:  s.PayloadDigest,
		OwnerKeyDigest: s.OwnerKeyDigest,
		Type:           typ,
		IntegrityHash:  s.IntegrityHash,
		Description:    description,
	}
}

// KeySource is the read side of the ledger a doctor's device needs.
type KeySource interface {
	GetEncryptedKeyDigest(caller ledger.Address, id ledger.RecordID) (ledger.Digest, error)
	GetRecord(id ledger.RecordID) (ledger.Record, error)
}

// Device holds one identity's key pair and its view of the content store.
type Device struct {
	keys  keywrap.KeyPair
	store contentstore.Store
}

// NewDevice binds a key pair to a content store.
func NewDevice(keys keywrap.KeyPair, store contentstore.Store) *Device {
	return &Device{keys: keys, store: store}
}

// Address is the ledger identity of the device owner.
func (d *Device) Address() ledger.Address { return ledger.Address(d.keys.Address()) }

// Seal encrypts plaintext under a fresh record key, uploads the bundle and the
// key wrapped for the device owner, and returns the resulting digests.
func (d *Device) Seal(ctx context.Context, plaintext []byte) (Sealed, error) {
	key, err := keywrap.NewRecordKey()
	if err != nil {
		return Sealed{}, err
	}
	bundle, err := keywrap.Encrypt(key, plaintext)
	if err != nil {
		return Sealed{}, err
	}
	payload, err := d.store.Put(ctx, bundle)
	if err != nil {
		return Sealed{}, fmt.Errorf("sharing: upload payload: %w", err)
	}
	wrapped, err := keywrap.Wrap(key, d.keys.Address())
	if err != nil {
		return Sealed{}, err
	}
	ownerKey, err := d.store.Put(ctx, wrapped)
	if err != nil {
		return Sealed{}, fmt.Errorf("sharing: upload owner key: %w", err)
	}
	return Sealed{
		PayloadDigest:  ledger.Digest(payload),
		OwnerKeyDigest: ledger.Digest(ownerKey),
		IntegrityHash:  ledger.Digest(keywrap.IntegrityHash(plaintext)),
	}, nil
}

// RewrapFor re-wraps the record key behind ownerKey for doctor and returns
// the digest to pass to GrantAccess.
func (d *Device) RewrapFor(ctx context.Context, ownerKey ledger.Digest, doctor ledger.Address) (ledger.Digest, error) {
	artifact, err := d.store.Get(ctx, string(ownerKey))
	if err != nil {
		return "", fmt.Errorf("sharing: fetch owner key: %w", err)
	}
	rewrapped, err := keywrap.Rewrap(artifact, d.keys, string(doctor))
	if err != nil {
		return "", err
	}
	digest, err := d.store.Put(ctx, rewrapped)
	if err != nil {
		return "", fmt.Errorf("sharing: upload wrapped key: %w", err)
	}
	return ledger.Digest(digest), nil
}

// Open decrypts rec with the key artifact at keyDigest and checks the
// plaintext against the record's integrity hash.
func (d *Device) Open(ctx context.Context, rec ledger.Record, keyDigest ledger.Digest) ([]byte, error) {
	artifact, err := d.store.Get(ctx, string(keyDigest))
	if err != nil {
		return nil, fmt.Errorf("sharing: fetch wrapped key: %w", err)
	}
	key, err := keywrap.Unwrap(artifact, d.keys)
	if err != nil {
		return nil, err
	}
	bundle, err := d.store.Get(ctx, string(rec.PayloadDigest))
	if err != nil {
		return nil, fmt.Errorf("sharing: fetch payload: %w", err)
	}
	plaintext, err := keywrap.Decrypt(key, bundle)
	if err != nil {
		return nil, err
	}
	if err := keywrap.VerifyIntegrity(plaintext, string(rec.IntegrityHash)); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// OpenOwn decrypts one of the device owner's records.
func (d *Device) OpenOwn(ctx context.Context, rec ledger.Record) ([]byte, error) {
	return d.Open(ctx, rec, rec.OwnerKeyDigest)
}

// OpenGranted looks up the key wrapped for this device and opens record id.
func (d *Device) OpenGranted(ctx context.Context, src KeySource, id ledger.RecordID) ([]byte, error) {
	keyDigest, err := src.GetEncryptedKeyDigest(d.Address(), id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoAccess, err)
	}
	rec, err := src.GetRecord(id)
	if err != nil {
		return nil, err
	}
	return d.Open(ctx, rec, keyDigest)
}
