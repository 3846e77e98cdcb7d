// Package cart implements the per-wallet shopping cart ledger.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"mintflip/internal/price"
	"mintflip/internal/track"
)

// DefaultPrefix namespaces storage keys, e.g. "mintflip_cart_0xabc".
const DefaultPrefix = "mintflip"

// DefaultFeeBps is the marketplace service fee (2.5%).
const DefaultFeeBps = 250

// ErrPersist wraps storage failures; the in-memory cart is still updated.
var ErrPersist = errors.New("persist cart")

// LineItem is one track in the cart with its quantity (always >= 1).
type LineItem struct {
	Track    track.Track `json:"track"`
	Quantity int         `json:"quantity"`
}

// Summary is the priced view of a cart.
type Summary struct {
	Subtotal price.Price `json:"subtotal"`
	Fee      price.Price `json:"fee"`
	Total    price.Price `json:"total"`
	Items    int         `json:"items"`
}

// Ledger holds the cart of the currently connected wallet.
// It is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	storage Storage
	prefix  string
	unit    string
	address string
	items   []LineItem
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithPrefix sets the storage key prefix.
func WithPrefix(prefix string) Option {
	return func(l *Ledger) { l.prefix = prefix }
}

// WithUnit sets the currency unit totals are computed in.
func WithUnit(unit string) Option {
	return func(l *Ledger) { l.unit = unit }
}

// New builds an empty ledger with no wallet connected.
func New(storage Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage: storage,
		prefix:  DefaultPrefix,
		unit:    price.DefaultUnit,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Address returns the wallet the ledger is scoped to, or "" when disconnected.
func (l *Ledger) Address() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.address
}

// SwitchWallet reloads the cart stored for address. An empty address
// disconnects: the in-memory cart is cleared and storage is left untouched.
func (l *Ledger) SwitchWallet(ctx context.Context, address string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.address = address
	l.items = nil
	if address == "" {
		return
	}

	data, err := l.storage.Get(ctx, Key(l.prefix, address))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Str("wallet", address).Msg("load cart failed, starting empty")
		}
		return
	}

	items, err := decodeItems(data)
	if err != nil {
		log.Warn().Err(err).Str("wallet", address).Msg("stored cart is malformed, starting empty")
		return
	}
	l.items = items
}

// AddToCart inserts track with quantity 1 or increments its existing line.
func (l *Ledger) AddToCart(ctx context.Context, t track.Track) error {
	if err := t.Validate(); err != nil {
		log.Error().Err(err).Str("title", t.Title).Msg("rejecting cart item")
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if idx := l.indexOf(t.ID); idx >= 0 {
		l.items[idx].Quantity++
	} else {
		l.items = append(l.items, LineItem{Track: t, Quantity: 1})
	}
	return l.persist(ctx)
}

// RemoveFromCart deletes the line for trackID; absent ids are ignored.
func (l *Ledger) RemoveFromCart(ctx context.Context, trackID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remove(ctx, trackID)
}

// UpdateQuantity sets the quantity of trackID; values below 1 remove the line.
func (l *Ledger) UpdateQuantity(ctx context.Context, trackID int64, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if quantity < 1 {
		return l.remove(ctx, trackID)
	}
	idx := l.indexOf(trackID)
	if idx < 0 {
		return nil
	}
	l.items[idx].Quantity = quantity
	return l.persist(ctx)
}

// ClearCart empties the cart.
func (l *Ledger) ClearCart(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
	return l.persist(ctx)
}

// Items returns a copy of the current line items in insertion order.
func (l *Ledger) Items() []LineItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LineItem(nil), l.items...)
}

// ItemCount is the sum of all quantities.
func (l *Ledger) ItemCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, item := range l.items {
		n += item.Quantity
	}
	return n
}

// Subtotal sums price × quantity over all lines priced in the ledger unit.
func (l *Ledger) Subtotal() price.Price {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subtotal()
}

// Totals prices the cart including a service fee expressed in basis points.
func (l *Ledger) Totals(feeBps int64) Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	sub := l.subtotal()
	fee := sub.Fee(feeBps)
	total, _ := sub.Add(fee)

	n := 0
	for _, item := range l.items {
		n += item.Quantity
	}
	return Summary{Subtotal: sub, Fee: fee, Total: total, Items: n}
}

func (l *Ledger) subtotal() price.Price {
	sum := price.Zero(l.unit)
	for _, item := range l.items {
		line := item.Track.Price.Mul(item.Quantity)
		next, err := sum.Add(line)
		if err != nil {
			log.Warn().Err(err).Int64("track_id", item.Track.ID).Msg("skipping line in subtotal")
			continue
		}
		sum = next
	}
	return sum
}

func (l *Ledger) remove(ctx context.Context, trackID int64) error {
	idx := l.indexOf(trackID)
	if idx < 0 {
		return nil
	}
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	return l.persist(ctx)
}

func (l *Ledger) indexOf(trackID int64) int {
	for i, item := range l.items {
		if item.Track.ID == trackID {
			return i
		}
	}
	return -1
}

// persist writes the full cart under the wallet key; empty carts delete the key.
// Without a connected wallet the cart lives in memory only.
func (l *Ledger) persist(ctx context.Context) error {
	if l.address == "" {
		return nil
	}
	key := Key(l.prefix, l.address)

	if len(l.items) == 0 {
		if err := l.storage.Delete(ctx, key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("delete cart failed")
			return fmt.Errorf("%w: %v", ErrPersist, err)
		}
		return nil
	}

	data, err := json.Marshal(l.items)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersist, err)
	}
	if err := l.storage.Set(ctx, key, data); err != nil {
		log.Error().Err(err).Str("key", key).Msg("save cart failed")
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// storedTrack shadows Price so one malformed price does not discard the cart.
type storedTrack struct {
	track.Track
	Price json.RawMessage `json:"price"`
}

type storedItem struct {
	Track    storedTrack `json:"track"`
	Quantity int         `json:"quantity"`
}

func decodeItems(data []byte) ([]LineItem, error) {
	var stored []storedItem
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}

	var items []LineItem
	index := make(map[int64]int)
	for _, s := range stored {
		t := s.Track.Track
		if t.Validate() != nil || s.Quantity < 1 {
			continue
		}

		var p price.Price
		if len(s.Track.Price) > 0 {
			if err := json.Unmarshal(s.Track.Price, &p); err != nil {
				log.Warn().Err(err).Int64("track_id", t.ID).Msg("stored price unreadable, counting as zero")
				p = price.Zero("")
			}
		}
		t.Price = p

		if i, ok := index[t.ID]; ok {
			items[i].Quantity += s.Quantity
			continue
		}
		index[t.ID] = len(items)
		items = append(items, LineItem{Track: t, Quantity: s.Quantity})
	}
	return items, nil
}
