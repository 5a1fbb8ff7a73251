// Package peerid decodes the textual peer identity used by the surrounding
// network stack into the public-key record it carries.
package peerid

import (
	"strings"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/pubkey"
	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multihash"
)

// MaxInlineKeyLength is the largest marshalled key record that is embedded
// in the peer id instead of being hashed.
const MaxInlineKeyLength = 42

// ID is the binary multihash of a peer identity.
type ID string

// Decode parses the base58btc form ("16Uiu2...", "12D3Koo...", "Qm...") or the
// CIDv1 form with the libp2p-key codec.
func Decode(s string) (ID, error) {
	if strings.HasPrefix(s, "Qm") || strings.HasPrefix(s, "1") {
		b, err := base58.Decode(s)
		if err != nil {
			return "", errors.Wrapf(core.ErrParse, "unable to parse peer id %q: %v", s, err)
		}
		return FromBytes(b)
	}

	c, err := cid.Decode(s)
	if err != nil {
		return "", errors.Wrapf(core.ErrParse, "unable to parse peer id %q: %v", s, err)
	}
	if c.Type() != cid.Libp2pKey {
		return "", errors.Wrapf(core.ErrParse, "unable to parse peer id %q: codec 0x%x is not libp2p-key", s, c.Type())
	}
	return FromBytes(c.Hash())
}

// FromBytes validates a binary peer id.
func FromBytes(b []byte) (ID, error) {
	if _, err := multihash.Cast(b); err != nil {
		return "", errors.Wrapf(core.ErrParse, "peer id is not a valid multihash: %v", err)
	}
	return ID(b), nil
}

// FromPublicKey derives the peer id of a key record.
func FromPublicKey(pk pubkey.PublicKey) (ID, error) {
	b := pubkey.Marshal(pk)
	code := uint64(multihash.SHA2_256)
	if len(b) <= MaxInlineKeyLength {
		code = multihash.IDENTITY
	}
	mh, err := multihash.Sum(b, code, -1)
	if err != nil {
		return "", errors.Wrapf(core.ErrInvalidInput, "failed to compute peer id multihash: %v", err)
	}
	return ID(mh), nil
}

// ExtractPublicKey returns the record embedded in an identity multihash.
// Peer ids that hash their key do not carry it.
func (id ID) ExtractPublicKey() (pubkey.PublicKey, error) {
	decoded, err := multihash.Decode([]byte(id))
	if err != nil {
		return pubkey.PublicKey{}, errors.Wrapf(core.ErrDecode, "peer id %s: %v", id, err)
	}
	if decoded.Code != multihash.IDENTITY {
		return pubkey.PublicKey{}, errors.Wrapf(core.ErrDecode, "peer id %s does not embed its public key (multihash %s)",
			id, decoded.Name)
	}
	pk, err := pubkey.Unmarshal(decoded.Digest)
	if err != nil {
		return pubkey.PublicKey{}, errors.Wrapf(err, "peer id %s", id)
	}
	return pk, nil
}

// Bytes returns the binary form.
func (id ID) Bytes() []byte {
	return []byte(id)
}

// String returns the base58btc form.
func (id ID) String() string {
	return base58.Encode([]byte(id))
}

// CID returns the CIDv1 form with the libp2p-key codec.
func (id ID) CID() cid.Cid {
	return cid.NewCidV1(cid.Libp2pKey, multihash.Multihash(id))
}
