package checkout

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintflip/internal/cart"
	"mintflip/internal/price"
	"mintflip/internal/track"
)

type purchase struct {
	tokenID int64
	wei     string
}

type fakePurchaser struct {
	calls   []purchase
	failAt  int
	failErr error
}

func (f *fakePurchaser) BuyMusic(_ context.Context, tokenID, valueWei *big.Int) (string, error) {
	f.calls = append(f.calls, purchase{tokenID: tokenID.Int64(), wei: valueWei.String()})
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return "", f.failErr
	}
	return "0xtx", nil
}

func tokenTrack(id, tokenID int64, p string) track.Track {
	tid := tokenID
	return track.Track{ID: id, TokenID: &tid, Title: "Track", Price: price.MustParse(p)}
}

func filledLedger(t *testing.T, wallet string) *cart.Ledger {
	t.Helper()
	ctx := context.Background()
	l := cart.New(cart.NewMemoryStorage())
	l.SwitchWallet(ctx, wallet)
	require.NoError(t, l.AddToCart(ctx, tokenTrack(1, 101, "0.05 ETH")))
	require.NoError(t, l.AddToCart(ctx, tokenTrack(1, 101, "0.05 ETH")))
	require.NoError(t, l.AddToCart(ctx, tokenTrack(2, 102, "0.10 ETH")))
	return l
}

func TestBeginRequiresWallet(t *testing.T) {
	l := cart.New(cart.NewMemoryStorage())
	require.NoError(t, l.AddToCart(context.Background(), tokenTrack(1, 101, "0.05 ETH")))

	f := New(l, &fakePurchaser{})
	err := f.Begin()
	assert.True(t, errors.Is(err, ErrWalletDisconnected))
	assert.Equal(t, StateCart, f.State())
}

func TestBeginRequiresItems(t *testing.T) {
	l := cart.New(cart.NewMemoryStorage())
	l.SwitchWallet(context.Background(), "0xabc")

	f := New(l, &fakePurchaser{})
	assert.True(t, errors.Is(f.Begin(), ErrEmptyCart))
	assert.Equal(t, StateCart, f.State())
}

func TestConfirmBuysEachUnitInOrder(t *testing.T) {
	l := filledLedger(t, "0xabc")
	buyer := &fakePurchaser{}
	f := New(l, buyer)

	require.NoError(t, f.Begin())
	receipts, err := f.Confirm(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []purchase{
		{101, "50000000000000000"},
		{101, "50000000000000000"},
		{102, "100000000000000000"},
	}, buyer.calls)
	assert.Len(t, receipts, 3)
	assert.Equal(t, StateSuccess, f.State())
	assert.Equal(t, 0, l.ItemCount())
	assert.Len(t, f.Receipts(), 3)

	f.Reset()
	assert.Equal(t, StateCart, f.State())
	assert.Empty(t, f.Receipts())
}

func TestConfirmFallsBackToRowID(t *testing.T) {
	ctx := context.Background()
	l := cart.New(cart.NewMemoryStorage())
	l.SwitchWallet(ctx, "0xabc")
	require.NoError(t, l.AddToCart(ctx, track.Track{ID: 9, Title: "x", Price: price.MustParse("0.01 ETH")}))

	buyer := &fakePurchaser{}
	f := New(l, buyer)
	require.NoError(t, f.Begin())
	_, err := f.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), buyer.calls[0].tokenID)
}

func TestConfirmPartialFailure(t *testing.T) {
	l := filledLedger(t, "0xabc")
	buyer := &fakePurchaser{failAt: 2, failErr: errors.New("user rejected")}
	f := New(l, buyer)

	require.NoError(t, f.Begin())
	receipts, err := f.Confirm(context.Background())

	var partial *PartialPurchaseError
	require.True(t, errors.As(err, &partial))
	assert.Len(t, partial.Completed, 1)
	assert.Len(t, receipts, 1)
	assert.Equal(t, int64(1), partial.Failed.ID)
	assert.Equal(t, StateConfirmation, f.State())

	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, 2, l.ItemCount())
	assert.Contains(t, Describe(err), "user rejected")

	buyer.failAt = 0
	_, err = f.Confirm(context.Background())
	require.NoError(t, err)
	assert.Len(t, buyer.calls, 4)
}

func TestBackAndInvalidTransitions(t *testing.T) {
	f := New(filledLedger(t, "0xabc"), &fakePurchaser{})

	assert.True(t, errors.Is(f.Back(), ErrInvalidTransition))
	_, err := f.Confirm(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	require.NoError(t, f.Begin())
	require.NoError(t, f.Back())
	assert.Equal(t, StateCart, f.State())
}

func TestSummaryIncludesFee(t *testing.T) {
	f := New(filledLedger(t, "0xabc"), &fakePurchaser{})
	s := f.Summary()
	assert.Equal(t, "0.2", s.Subtotal.Decimal())
	assert.Equal(t, "0.005", s.Fee.Decimal())
	assert.Equal(t, "0.205", s.Total.Decimal())
}
