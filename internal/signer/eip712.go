package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// Constants for EIP-712
const (
	EIP712DomainName    = "SWAPGATE"
	EIP712DomainVersion = "1"
)

var (
	// EIP712DomainTypeHash is the keccak256 hash of the EIP712Domain type definition
	// "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	EIP712DomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	// BidTypeHash is the keccak256 hash of the Bid type definition
	BidTypeHash = crypto.Keccak256Hash([]byte("Bid(uint256 offerId,uint256 nonce,address signerWallet,uint256 sellAmount,uint256 buyAmount,address referrer)"))
)

// Bid is the typed tuple a taker signs against an offer. The signature is
// carried separately; only these six fields enter the hash.
type Bid struct {
	OfferID      uint64
	Nonce        uint64
	SignerWallet common.Address
	SellAmount   *big.Int
	BuyAmount    *big.Int
	Referrer     common.Address
}

// Domain binds signatures to one engine deployment: protocol name/version,
// chain id, and the engine's verifying address. Signatures from another
// chain or another engine instance never recover against it.
type Domain struct {
	chainID           *big.Int
	verifyingContract common.Address
	separator         common.Hash
}

// NewDomain pre-calculates the domain separator, mirroring
// keccak256(abi.encode(typeHash, keccak256(name), keccak256(version), chainId, verifyingContract))
func NewDomain(chainID int64, verifyingContract common.Address) *Domain {
	nameHash := crypto.Keccak256Hash([]byte(EIP712DomainName))
	versionHash := crypto.Keccak256Hash([]byte(EIP712DomainVersion))

	// Manual ABI encode, all fields are 32 bytes
	data := make([]byte, 32*5)
	copy(data[0:32], EIP712DomainTypeHash.Bytes())
	copy(data[32:64], nameHash.Bytes())
	copy(data[64:96], versionHash.Bytes())
	copy(data[96:128], math.U256Bytes(big.NewInt(chainID)))
	copy(data[128+12:160], verifyingContract.Bytes())

	return &Domain{
		chainID:           big.NewInt(chainID),
		verifyingContract: verifyingContract,
		separator:         crypto.Keccak256Hash(data),
	}
}

func (d *Domain) ChainID() *big.Int {
	return new(big.Int).Set(d.chainID)
}

func (d *Domain) VerifyingContract() common.Address {
	return d.verifyingContract
}

func (d *Domain) Separator() common.Hash {
	return d.separator
}

// HashBid computes the final signable digest:
// keccak256("\x19\x01" || domainSeparator || hashStruct(bid))
func (d *Domain) HashBid(bid *Bid) []byte {
	return crypto.Keccak256([]byte{0x19, 0x01}, d.separator.Bytes(), hashBid(bid))
}

// RecoverSigner recovers the identity that signed the bid. A malformed or
// unrecoverable signature yields the zero address, never an error; callers
// must treat the zero address as "invalid signature".
func (d *Domain) RecoverSigner(bid *Bid, signature []byte) common.Address {
	if len(signature) != 65 {
		return common.Address{}
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	// Normalize V to 0/1 for recovery.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}
	}
	pub, err := crypto.SigToPub(d.HashBid(bid), sig)
	if err != nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(*pub)
}

// hashBid calculates hashStruct(bid)
// keccak256(abi.encode(typeHash, offerId, nonce, signerWallet, sellAmount, buyAmount, referrer))
func hashBid(bid *Bid) []byte {
	// 6 fields + typeHash = 7 items * 32 bytes
	data := make([]byte, 32*7)

	copy(data[0:32], BidTypeHash.Bytes())
	copy(data[32:64], math.U256Bytes(new(big.Int).SetUint64(bid.OfferID)))
	copy(data[64:96], math.U256Bytes(new(big.Int).SetUint64(bid.Nonce)))
	copy(data[96+12:128], bid.SignerWallet.Bytes())
	if bid.SellAmount != nil {
		copy(data[128:160], math.U256Bytes(new(big.Int).Set(bid.SellAmount)))
	}
	if bid.BuyAmount != nil {
		copy(data[160:192], math.U256Bytes(new(big.Int).Set(bid.BuyAmount)))
	}
	copy(data[192+12:224], bid.Referrer.Bytes())

	return crypto.Keccak256(data)
}
