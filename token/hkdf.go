// Package token derives the deterministic-token key, the shard-assignment
// PRP key, and the per-shard payload-AEAD keys from a single caller-supplied
// master secret.
package token

import (
	"crypto/sha256"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const keySize = 32

// info labels used for HKDF domain separation. Each label produces an
// independent key even though all keys trace back to the same secret.
const (
	infoTokenKey   = "seal/token/v1"
	infoShardPRP   = "seal/shard-prp/v1"
	infoShardAEAD  = "seal/shard-aead/v1/"
)

// Deriver hands out independent, purpose-bound keys from one master secret.
// It holds no mutable state and is safe for concurrent use.
type Deriver struct {
	secret []byte
}

// NewDeriver validates the master secret and returns a Deriver.
// secret must be at least 32 bytes of high-entropy material; the caller owns
// its lifecycle (Deriver keeps only a copy).
func NewDeriver(secret []byte) (*Deriver, error) {
	if len(secret) < keySize {
		return nil, errors.Errorf("token: master secret must be >= %d bytes, got %d", keySize, len(secret))
	}
	cp := make([]byte, len(secret))
	copy(cp, secret)
	return &Deriver{secret: cp}, nil
}

// expand derives a keySize-byte key bound to info.
func (d *Deriver) expand(info string) []byte {
	r := hkdf.New(sha256.New, d.secret, nil, []byte(info))
	out := make([]byte, keySize)
	if _, err := io.ReadFull(r, out); err != nil {
		// hkdf.Expand only fails when the requested output exceeds its
		// entropy ceiling (255*hash size here); keySize is tiny by
		// comparison, so this is unreachable in practice.
		panic("token: hkdf expand failed: " + err.Error())
	}
	return out
}

// TokenKey returns the key used for deterministic field/value tokens.
func (d *Deriver) TokenKey() []byte {
	return d.expand(infoTokenKey)
}

// ShardPRPKey returns the key used for the record-id-to-shard PRP.
func (d *Deriver) ShardPRPKey() []byte {
	return d.expand(infoShardPRP)
}

// ShardAEADKey returns the payload-encryption key for the given shard id.
// Each shard gets an independent key so that AAD collisions across shards
// (shard-local block ids can repeat) never share a key.
func (d *Deriver) ShardAEADKey(shardID int) []byte {
	return d.expand(infoShardAEAD + strconv.Itoa(shardID))
}
