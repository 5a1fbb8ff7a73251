package testkit

import (
	"crypto/ed25519"
	"math/rand"
	"time"

	"github.com/agenthands/dascustody/pkg/nodeid"
	"github.com/agenthands/dascustody/pkg/peerid"
	"github.com/agenthands/dascustody/pkg/pubkey"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// RNG provides a deterministic random number generator.
// If seed is 0, it uses the current time.
func RNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// RandomBytes generates a slice of random bytes of the given length.
func RandomBytes(r *rand.Rand, length int) []byte {
	b := make([]byte, length)
	for i := range b {
		b[i] = byte(r.Intn(256))
	}
	return b
}

// RandomNodeID returns a uniformly distributed node id.
func RandomNodeID(r *rand.Rand) nodeid.ID {
	var raw [nodeid.Size]byte
	copy(raw[:], RandomBytes(r, nodeid.Size))
	return nodeid.FromRaw(raw)
}

// Secp256k1Key derives a secp256k1 key pair from r.
func Secp256k1Key(r *rand.Rand) *secp256k1.PrivateKey {
	return secp256k1.PrivKeyFromBytes(RandomBytes(r, 32))
}

// Ed25519Key derives an Ed25519 key pair from r.
func Ed25519Key(r *rand.Rand) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(RandomBytes(r, ed25519.SeedSize))
}

// Peer is a generated peer identity.
type Peer struct {
	ID  peerid.ID
	Key pubkey.PublicKey
}

// RandomPeer generates a peer with a secp256k1 or Ed25519 key, alternating on
// the parity of the next random number.
func RandomPeer(r *rand.Rand) Peer {
	var pk pubkey.PublicKey
	if r.Intn(2) == 0 {
		pk = pubkey.FromSecp256k1(Secp256k1Key(r).PubKey())
	} else {
		// a freshly derived key is always the right size
		pk, _ = pubkey.FromEd25519(Ed25519Key(r).Public().(ed25519.PublicKey))
	}
	id, err := peerid.FromPublicKey(pk)
	if err != nil {
		panic(err)
	}
	return Peer{ID: id, Key: pk}
}
