package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// Token computes the deterministic, equality-preserving token for a
// field/value pair: Token(key, f, v) == Token(key, f, v') iff v == v'.
//
// This replaces the hash-as-AES-key ECB construction from the reference
// Python prototype (deterministic_encrypt in the original source) with a
// keyed HMAC, which spec.md explicitly sanctions as the standard substitute
// ("an implementer MAY substitute ... an HMAC-based deterministic MAC with a
// single static key"). HMAC gives the same equality semantics without the
// original construction's plaintext-derived-key weakness.
func Token(key []byte, field, value string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(field))
	mac.Write([]byte{0}) // separator: prevents ("ab","c") colliding with ("a","bc")
	mac.Write([]byte(value))
	return mac.Sum(nil)
}

// ShardOf computes the shard assignment for recordID under the given PRP
// key, yielding a value in [0, shardCount). It is stable across repeated
// calls with the same key and recordID within a process lifetime, per
// spec.md §4.2.
func ShardOf(key []byte, recordID int64, shardCount int) int {
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], uint64(recordID))

	mac := hmac.New(sha256.New, key)
	mac.Write(idBytes[:])
	digest := mac.Sum(nil)

	n := binary.BigEndian.Uint64(digest[:8])
	return int(n % uint64(shardCount))
}
