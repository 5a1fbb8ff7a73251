// Package resolver derives node identifiers from peer public keys.
//
// The node id of a peer is the Keccak-256 hash of its key: the 64-byte X‖Y
// coordinates for secp256k1 keys, the raw 32 bytes for Ed25519 keys.
package resolver

import (
	"crypto/ed25519"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/nodeid"
	"github.com/agenthands/dascustody/pkg/peerid"
	"github.com/agenthands/dascustody/pkg/pubkey"
	"github.com/cockroachdb/errors"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

// Resolver maps public keys and peer ids to node ids.
type Resolver interface {
	NodeID(pk pubkey.PublicKey) (nodeid.ID, error)
	NodeIDFromPeer(id peerid.ID) (nodeid.ID, error)
}

type resolver struct{}

// NewResolver returns a new Resolver implementation.
func NewResolver() Resolver {
	return &resolver{}
}

func (r *resolver) NodeID(pk pubkey.PublicKey) (nodeid.ID, error) {
	switch pk.Type {
	case pubkey.Secp256k1:
		pub, err := secp256k1.ParsePubKey(pk.Data)
		if err != nil {
			return nodeid.ID{}, errors.Wrapf(core.ErrDecode, "invalid secp256k1 public key: %v", err)
		}
		// drop the 0x04 format tag
		return keccak(pub.SerializeUncompressed()[1:])
	case pubkey.Ed25519:
		if len(pk.Data) != ed25519.PublicKeySize {
			return nodeid.ID{}, errors.Wrapf(core.ErrDecode, "ed25519 public key must be %d bytes, got %d",
				ed25519.PublicKeySize, len(pk.Data))
		}
		return keccak(pk.Data)
	default:
		return nodeid.ID{}, errors.Wrapf(core.ErrUnsupportedKeyType, "%s keys have no node id", pk.Type)
	}
}

func (r *resolver) NodeIDFromPeer(id peerid.ID) (nodeid.ID, error) {
	pk, err := id.ExtractPublicKey()
	if err != nil {
		return nodeid.ID{}, err
	}
	nid, err := r.NodeID(pk)
	if err != nil {
		return nodeid.ID{}, errors.Wrapf(err, "peer %s", id)
	}
	return nid, nil
}

func keccak(b []byte) (nodeid.ID, error) {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return nodeid.FromDigest(h)
}
