// Package checkout drives a cart through confirmation and on-chain purchase.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"mintflip/internal/cart"
	"mintflip/internal/price"
	"mintflip/internal/track"
)

// State is a step of the checkout flow.
type State int

const (
	StateCart State = iota
	StateConfirmation
	StateSuccess
)

func (s State) String() string {
	switch s {
	case StateCart:
		return "cart"
	case StateConfirmation:
		return "confirmation"
	case StateSuccess:
		return "success"
	}
	return "unknown"
}

var (
	ErrWalletDisconnected = errors.New("please connect your wallet to checkout")
	ErrEmptyCart          = errors.New("your cart is empty")
	ErrInvalidTransition  = errors.New("invalid checkout transition")
)

// Purchaser buys one copy of a token.
type Purchaser interface {
	BuyMusic(ctx context.Context, tokenID, valueWei *big.Int) (string, error)
}

// Receipt records one purchased unit.
type Receipt struct {
	TrackID int64       `json:"trackId"`
	TokenID int64       `json:"tokenId"`
	Title   string      `json:"title"`
	Price   price.Price `json:"price"`
	TxHash  string      `json:"txHash"`
}

// PartialPurchaseError reports a checkout that stopped part way. Completed
// units have already been paid for and were removed from the cart.
type PartialPurchaseError struct {
	Completed []Receipt
	Failed    track.Track
	Err       error
}

func (e *PartialPurchaseError) Error() string {
	return fmt.Sprintf("purchase of %q failed after %d completed: %v", e.Failed.Title, len(e.Completed), e.Err)
}

func (e *PartialPurchaseError) Unwrap() error { return e.Err }

// Flow is the cart → confirmation → success state machine.
type Flow struct {
	mu        sync.Mutex
	ledger    *cart.Ledger
	purchaser Purchaser
	feeBps    int64
	state     State
	receipts  []Receipt
}

// Option customises a Flow.
type Option func(*Flow)

// WithFeeBps sets the service fee shown in the summary.
func WithFeeBps(bps int64) Option {
	return func(f *Flow) { f.feeBps = bps }
}

// New returns a flow in the cart state.
func New(ledger *cart.Ledger, purchaser Purchaser, opts ...Option) *Flow {
	f := &Flow{ledger: ledger, purchaser: purchaser, feeBps: cart.DefaultFeeBps}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current step.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Summary prices the cart with the service fee.
func (f *Flow) Summary() cart.Summary {
	return f.ledger.Totals(f.feeBps)
}

// Receipts returns the purchases of the last successful checkout.
func (f *Flow) Receipts() []Receipt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Receipt(nil), f.receipts...)
}

// Begin moves from cart to confirmation once a wallet is connected and
// the cart holds at least one item.
func (f *Flow) Begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateCart {
		return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, f.state)
	}
	if f.ledger.Address() == "" {
		return ErrWalletDisconnected
	}
	if f.ledger.ItemCount() == 0 {
		return ErrEmptyCart
	}
	f.state = StateConfirmation
	return nil
}

// Back returns from confirmation to the cart.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateConfirmation {
		return fmt.Errorf("%w: back from %s", ErrInvalidTransition, f.state)
	}
	f.state = StateCart
	return nil
}

// Reset starts a new checkout after a success.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateCart
	f.receipts = nil
}

// Confirm purchases every unit in the cart, one transaction per unit, in
// cart order. On success the cart is cleared and the flow moves to success.
// On failure the flow stays in confirmation and a *PartialPurchaseError
// lists what was bought.
func (f *Flow) Confirm(ctx context.Context) ([]Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateConfirmation {
		return nil, fmt.Errorf("%w: confirm from %s", ErrInvalidTransition, f.state)
	}
	if f.ledger.Address() == "" {
		return nil, ErrWalletDisconnected
	}

	items := f.ledger.Items()
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	var receipts []Receipt
	for _, item := range items {
		for unit := 0; unit < item.Quantity; unit++ {
			r, err := f.buy(ctx, item.Track)
			if err != nil {
				f.dropPurchased(ctx, receipts)
				log.Error().Err(err).Int64("track_id", item.Track.ID).Int("completed", len(receipts)).Msg("checkout stopped")
				return receipts, &PartialPurchaseError{Completed: receipts, Failed: item.Track, Err: err}
			}
			receipts = append(receipts, r)
		}
	}

	if err := f.ledger.ClearCart(ctx); err != nil {
		log.Warn().Err(err).Msg("clear cart after checkout failed")
	}
	f.state = StateSuccess
	f.receipts = receipts
	log.Info().Str("wallet", f.ledger.Address()).Int("units", len(receipts)).Msg("checkout complete")
	return receipts, nil
}

func (f *Flow) buy(ctx context.Context, t track.Track) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	wei, err := t.Price.Wei()
	if err != nil {
		return Receipt{}, err
	}
	tokenID := t.PurchaseID()
	hash, err := f.purchaser.BuyMusic(ctx, big.NewInt(tokenID), wei)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{TrackID: t.ID, TokenID: tokenID, Title: t.Title, Price: t.Price, TxHash: hash}, nil
}

// dropPurchased removes paid units from the cart so a retry only buys the rest.
func (f *Flow) dropPurchased(ctx context.Context, receipts []Receipt) {
	bought := make(map[int64]int)
	for _, r := range receipts {
		bought[r.TrackID]++
	}
	for _, item := range f.ledger.Items() {
		n := bought[item.Track.ID]
		if n == 0 {
			continue
		}
		if err := f.ledger.UpdateQuantity(ctx, item.Track.ID, item.Quantity-n); err != nil {
			log.Warn().Err(err).Int64("track_id", item.Track.ID).Msg("update cart after partial checkout failed")
		}
	}
}

// Describe renders a one-line outcome for a checkout error.
func Describe(err error) string {
	var partial *PartialPurchaseError
	if errors.As(err, &partial) {
		titles := make([]string, 0, len(partial.Completed))
		for _, r := range partial.Completed {
			titles = append(titles, r.Title)
		}
		if len(titles) == 0 {
			return fmt.Sprintf("purchase failed: %v", partial.Err)
		}
		return fmt.Sprintf("purchased %s before failing: %v", strings.Join(titles, ", "), partial.Err)
	}
	return err.Error()
}
