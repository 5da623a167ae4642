package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces bid signatures for a single key against a fixed domain.
// Used by the bidsign CLI and the test suite; the engine itself only recovers.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	domain  *Domain
}

func NewSigner(privateKeyHex string, domain *Domain) (*Signer, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}

	publicKey, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}

	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(*publicKey),
		domain:  domain,
	}, nil
}

func FromKey(key *ecdsa.PrivateKey, domain *Domain) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		domain:  domain,
	}
}

// SignBid signs the EIP-712 digest of the bid.
// Returns the 65-byte [R || S || V] signature with V in {27, 28}.
func (s *Signer) SignBid(bid *Bid) ([]byte, error) {
	signature, err := crypto.Sign(s.domain.HashBid(bid), s.key)
	if err != nil {
		return nil, err
	}
	// crypto.Sign yields V as 0/1; wallets conventionally ship 27/28.
	if signature[64] < 27 {
		signature[64] += 27
	}
	return signature, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}
