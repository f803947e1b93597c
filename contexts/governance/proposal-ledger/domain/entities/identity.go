package entities

import (
	"strings"

	domainerrors "govledger/contexts/governance/proposal-ledger/domain/errors"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// IdentitySize is the byte length of a public-key identity.
const IdentitySize = 32

// ProposalSeed prefixes the seeds a proposal handle is derived from.
const ProposalSeed = "proposal"

// Identity is a 32-byte public key. It identifies authors, voters, subjects
// and proposal records alike, and renders as base58.
type Identity [IdentitySize]byte

func ParseIdentity(raw string) (Identity, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Identity{}, domainerrors.ErrInvalidIdentity
	}
	decoded, err := base58.Decode(value)
	if err != nil || len(decoded) != IdentitySize {
		return Identity{}, domainerrors.ErrInvalidIdentity
	}
	var id Identity
	copy(id[:], decoded)
	return id, nil
}

func (id Identity) String() string {
	return base58.Encode(id[:])
}

func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// DeriveHandle returns the record handle for a proposal. The handle is a
// blake2b-256 digest over ("proposal", author, title), so one author cannot
// open two proposals with the same title.
func DeriveHandle(author Identity, title string) Identity {
	hasher, _ := blake2b.New256(nil)
	hasher.Write([]byte(ProposalSeed))
	hasher.Write(author[:])
	hasher.Write([]byte(title))
	var handle Identity
	copy(handle[:], hasher.Sum(nil))
	return handle
}
