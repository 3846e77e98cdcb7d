// Package chain calls the MusicNFT contract over an Ethereum JSON-RPC endpoint.
// Transactions are sent with eth_sendTransaction, so the node signs with an
// account it manages for the configured sender.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrNotConfigured   = errors.New("chain client not configured")
	ErrTxReverted      = errors.New("transaction reverted")
	ErrReceiptTimeout  = errors.New("timed out waiting for receipt")
	ErrTokenIDNotFound = errors.New("mint receipt carried no TransferSingle event")
)

// MintResult identifies a freshly minted token.
type MintResult struct {
	TokenID *big.Int
	TxHash  string
}

// Client is a JSON-RPC client bound to one contract and one sender.
type Client struct {
	rpc        *rpc.Client
	eth        *ethclient.Client
	contract   common.Address
	from       common.Address
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[any]
	pollEvery  time.Duration
	waitFor    time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 30s-timeout HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithReceiptPolling sets how often and how long receipts are polled.
func WithReceiptPolling(every, timeout time.Duration) Option {
	return func(c *Client) {
		c.pollEvery = every
		c.waitFor = timeout
	}
}

// NewClient validates the contract and sender addresses and returns a Client.
// No request is made until the first call.
func NewClient(rpcURL, contract, from string, opts ...Option) (*Client, error) {
	if rpcURL == "" {
		return nil, ErrNotConfigured
	}
	contractAddr, err := ParseAddress(contract)
	if err != nil {
		return nil, fmt.Errorf("contract: %w", err)
	}
	fromAddr, err := ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}

	c := &Client{
		contract:   contractAddr,
		from:       fromAddr,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		pollEvery:  2 * time.Second,
		waitFor:    2 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}

	rc, err := rpc.DialOptions(context.Background(), rpcURL, rpc.WithHTTPClient(c.httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	c.rpc = rc
	c.eth = ethclient.NewClient(rc)

	c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "chain-rpc",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Node-side errors (reverts, bad params, pending receipts) mean the endpoint is healthy.
		IsSuccessful: func(err error) bool {
			var rpcErr rpc.Error
			return err == nil ||
				errors.As(err, &rpcErr) ||
				errors.Is(err, ethereum.NotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return c, nil
}

// From returns the sender address in lower-case hex.
func (c *Client) From() string { return hexAddress(c.from) }

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.rpc.Close() }

func guarded[T any](c *Client, fn func() (T, error)) (T, error) {
	out, err := c.breaker.Execute(func() (any, error) { return fn() })
	v, _ := out.(T)
	return v, err
}

type txArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *hexutil.Big   `json:"value,omitempty"`
}

func (c *Client) sendTransaction(ctx context.Context, data []byte, value *big.Int) (common.Hash, error) {
	args := txArgs{From: c.from, To: c.contract, Data: data}
	if value != nil && value.Sign() > 0 {
		args.Value = (*hexutil.Big)(value)
	}

	return guarded(c, func() (common.Hash, error) {
		var hash common.Hash
		if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
			return common.Hash{}, err
		}
		return hash, nil
	})
}

// WaitReceipt polls until txHash is mined. A reverted transaction returns
// the receipt together with ErrTxReverted.
func (c *Client) WaitReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.waitFor)
	defer cancel()

	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		receipt, err := guarded(c, func() (*types.Receipt, error) {
			return c.eth.TransactionReceipt(ctx, hash)
		})
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s", ErrTxReverted, txHash)
			}
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil:
			return nil, err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, txHash)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SendMint submits a mint of amount copies of a token pointing at tokenURI,
// listed at priceWei per copy, and returns the transaction hash without
// waiting for it to be mined.
func (c *Client) SendMint(ctx context.Context, to, tokenURI string, amount, priceWei *big.Int) (string, error) {
	recipient, err := ParseAddress(to)
	if err != nil {
		return "", fmt.Errorf("recipient: %w", err)
	}
	data, err := contractABI.Pack(mintMethod, recipient, tokenURI, amount, priceWei)
	if err != nil {
		return "", fmt.Errorf("encode mint: %w", err)
	}

	hash, err := c.sendTransaction(ctx, data, nil)
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	log.Info().Str("tx", hash.Hex()).Str("to", to).Msg("mint transaction sent")
	return hash.Hex(), nil
}

// MintResultOf waits for a mint transaction and reads the id it minted.
func (c *Client) MintResultOf(ctx context.Context, txHash string) (MintResult, error) {
	receipt, err := c.WaitReceipt(ctx, txHash)
	if err != nil {
		return MintResult{TxHash: txHash}, fmt.Errorf("mint: %w", err)
	}
	id, err := c.mintedTokenID(receipt)
	if err != nil {
		return MintResult{TxHash: txHash}, err
	}
	return MintResult{TokenID: id, TxHash: txHash}, nil
}

// mintedTokenID reads the id from the contract's TransferSingle event,
// whose data holds (id, value).
func (c *Client) mintedTokenID(r *types.Receipt) (*big.Int, error) {
	topic := TransferSingleTopic()
	for _, l := range r.Logs {
		if len(l.Topics) == 0 || l.Topics[0] != topic || l.Address != c.contract {
			continue
		}
		values, err := contractABI.Unpack(transferSingle, l.Data)
		if err != nil || len(values) == 0 {
			continue
		}
		if id, ok := values[0].(*big.Int); ok {
			return id, nil
		}
	}
	return nil, ErrTokenIDNotFound
}

// BuyMusic purchases one copy of tokenID, paying valueWei, and waits for the receipt.
func (c *Client) BuyMusic(ctx context.Context, tokenID, valueWei *big.Int) (string, error) {
	data, err := contractABI.Pack(buyMethod, tokenID)
	if err != nil {
		return "", fmt.Errorf("token id %v: %w", tokenID, err)
	}

	hash, err := c.sendTransaction(ctx, data, valueWei)
	if err != nil {
		return "", fmt.Errorf("buy %s: %w", tokenID, err)
	}
	if _, err := c.WaitReceipt(ctx, hash.Hex()); err != nil {
		return hash.Hex(), fmt.Errorf("buy %s: %w", tokenID, err)
	}
	log.Info().Str("tx", hash.Hex()).Str("token_id", tokenID.String()).Msg("purchase confirmed")
	return hash.Hex(), nil
}

func hexAddress(a common.Address) string {
	return hexutil.Encode(a.Bytes())
}
