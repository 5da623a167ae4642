// bidsign signs a bid against a swapgate deployment and prints the JSON
// payload a relayer submits to /v1/offers/:id/settle.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/swapgate/swapgate/internal/signer"
)

func main() {
	var (
		keyHex   = flag.String("key", "", "signer private key (hex)")
		chainID  = flag.Int64("chain-id", 1, "chain id of the deployment")
		contract = flag.String("contract", "", "engine verifying contract address")
		offerID  = flag.Uint64("offer-id", 0, "target offer id")
		nonce    = flag.Uint64("nonce", 0, "one-time nonce for this signer")
		sell     = flag.String("sell", "", "sell amount in bidding-asset base units")
		buy      = flag.String("buy", "", "buy amount in offered-asset base units")
		referrer = flag.String("referrer", "", "optional referrer address")
	)
	flag.Parse()

	if *keyHex == "" || *contract == "" || *offerID == 0 || *sell == "" || *buy == "" {
		flag.Usage()
		os.Exit(2)
	}
	if !common.IsHexAddress(*contract) {
		log.Fatalf("invalid contract address: %s", *contract)
	}

	sellAmount, ok := new(big.Int).SetString(*sell, 10)
	if !ok {
		log.Fatalf("invalid sell amount: %s", *sell)
	}
	buyAmount, ok := new(big.Int).SetString(*buy, 10)
	if !ok {
		log.Fatalf("invalid buy amount: %s", *buy)
	}
	var referrerAddr common.Address
	if *referrer != "" {
		if !common.IsHexAddress(*referrer) {
			log.Fatalf("invalid referrer address: %s", *referrer)
		}
		referrerAddr = common.HexToAddress(*referrer)
	}

	domain := signer.NewDomain(*chainID, common.HexToAddress(*contract))
	s, err := signer.NewSigner(*keyHex, domain)
	if err != nil {
		log.Fatalf("failed to init signer: %v", err)
	}

	bid := &signer.Bid{
		OfferID:      *offerID,
		Nonce:        *nonce,
		SignerWallet: s.Address(),
		SellAmount:   sellAmount,
		BuyAmount:    buyAmount,
		Referrer:     referrerAddr,
	}
	sig, err := s.SignBid(bid)
	if err != nil {
		log.Fatalf("failed to sign bid: %v", err)
	}

	payload := map[string]any{
		"nonce":         bid.Nonce,
		"signer_wallet": bid.SignerWallet.Hex(),
		"sell_amount":   bid.SellAmount.String(),
		"buy_amount":    bid.BuyAmount.String(),
		"signature":     hexutil.Encode(sig),
	}
	if referrerAddr != (common.Address{}) {
		payload["referrer"] = referrerAddr.Hex()
	}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal payload: %v", err)
	}
	fmt.Println(string(out))
}
