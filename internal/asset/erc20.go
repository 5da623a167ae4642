package asset

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// ERC20 adapts on-chain tokens to the Service interface. Reads go through
// eth_call; TransferFrom submits a transaction signed with the operator key
// and waits for it to mine. The chain itself is the unit of atomicity, so
// Begin hands back a pass-through Tx that cannot roll back mined transfers.
type ERC20 struct {
	rpcURL      string
	operatorKey *ecdsa.PrivateKey
	operator    common.Address
	chainID     *big.Int
	timeout     time.Duration

	mu       sync.Mutex
	client   *ethclient.Client
	parsed   abi.ABI
	decimals map[common.Address]uint8
}

func NewERC20(rpcURL string, operatorKeyHex string, chainID int64) (*ERC20, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(operatorKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}
	return &ERC20{
		rpcURL:      strings.TrimSpace(rpcURL),
		operatorKey: key,
		operator:    crypto.PubkeyToAddress(key.PublicKey),
		chainID:     big.NewInt(chainID),
		timeout:     30 * time.Second,
		parsed:      parsed,
		decimals:    make(map[common.Address]uint8),
	}, nil
}

func (e *ERC20) Operator() common.Address {
	return e.operator
}

func (e *ERC20) Decimals(ctx context.Context, asset common.Address) (uint8, error) {
	e.mu.Lock()
	if d, ok := e.decimals[asset]; ok {
		e.mu.Unlock()
		return d, nil
	}
	e.mu.Unlock()

	out, err := e.call(ctx, asset, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) < 32 {
		return 0, fmt.Errorf("malformed decimals response")
	}
	d := uint8(new(big.Int).SetBytes(out).Uint64())

	e.mu.Lock()
	e.decimals[asset] = d
	e.mu.Unlock()
	return d, nil
}

func (e *ERC20) BalanceOf(ctx context.Context, asset, owner common.Address) (*big.Int, error) {
	out, err := e.call(ctx, asset, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(out), nil
}

func (e *ERC20) Allowance(ctx context.Context, asset, owner, spender common.Address) (*big.Int, error) {
	out, err := e.call(ctx, asset, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(out), nil
}

func (e *ERC20) TransferFrom(ctx context.Context, asset, owner, to common.Address, amount *big.Int) error {
	client, err := e.getClient(ctx)
	if err != nil {
		return err
	}
	data, err := e.parsed.Pack("transferFrom", owner, to, amount)
	if err != nil {
		return fmt.Errorf("failed to pack transferFrom: %w", err)
	}

	nonce, err := client.PendingNonceAt(ctx, e.operator)
	if err != nil {
		return fmt.Errorf("failed to fetch operator nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, asset, big.NewInt(0), 120000, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), e.operatorKey)
	if err != nil {
		return fmt.Errorf("failed to sign transfer: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("failed to send transfer: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, client, signed)
	if err != nil {
		return fmt.Errorf("transfer not mined: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transfer reverted: tx %s", signed.Hash().Hex())
	}
	return nil
}

// Begin returns a Tx that executes transfers immediately. Once a transfer
// has mined, Rollback reports the partial state instead of hiding it.
func (e *ERC20) Begin(_ context.Context) (Tx, error) {
	return &erc20Tx{svc: e}, nil
}

type erc20Tx struct {
	svc       *ERC20
	transfers int
}

func (tx *erc20Tx) Decimals(ctx context.Context, asset common.Address) (uint8, error) {
	return tx.svc.Decimals(ctx, asset)
}

func (tx *erc20Tx) BalanceOf(ctx context.Context, asset, owner common.Address) (*big.Int, error) {
	return tx.svc.BalanceOf(ctx, asset, owner)
}

func (tx *erc20Tx) Allowance(ctx context.Context, asset, owner, spender common.Address) (*big.Int, error) {
	return tx.svc.Allowance(ctx, asset, owner, spender)
}

func (tx *erc20Tx) TransferFrom(ctx context.Context, asset, owner, to common.Address, amount *big.Int) error {
	if err := tx.svc.TransferFrom(ctx, asset, owner, to, amount); err != nil {
		return err
	}
	tx.transfers++
	return nil
}

func (tx *erc20Tx) Commit() error {
	return nil
}

func (tx *erc20Tx) Rollback() error {
	if tx.transfers > 0 {
		return fmt.Errorf("cannot roll back %d mined transfers", tx.transfers)
	}
	return nil
}

func (e *ERC20) call(ctx context.Context, asset common.Address, method string, args ...interface{}) ([]byte, error) {
	client, err := e.getClient(ctx)
	if err != nil {
		return nil, err
	}
	data, err := e.parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{
		To:   &asset,
		Data: data,
	}
	out, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("rpc call failed: %w", err)
	}
	return out, nil
}

func (e *ERC20) getClient(ctx context.Context) (*ethclient.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return e.client, nil
	}
	if e.rpcURL == "" {
		return nil, fmt.Errorf("rpc url not configured")
	}
	client, err := ethclient.DialContext(ctx, e.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rpc: %w", err)
	}
	e.client = client
	return e.client, nil
}
