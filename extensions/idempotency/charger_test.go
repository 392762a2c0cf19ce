package idempotency

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocelon/openpay"
)

// countingStarter records how many charges actually reach the wrapped flow.
type countingStarter struct {
	calls atomic.Int64
	err   error
}

func (s *countingStarter) StartCharge(ctx context.Context, receiverWallet, amountMinor string) (*openpay.IncomingPayment, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &openpay.IncomingPayment{ID: uniqueID(n), WalletAddress: receiverWallet}, nil
}

func uniqueID(n int64) string {
	return "ip-" + strconv.FormatInt(n, 10)
}

func TestChargerDeduplicatesByKey(t *testing.T) {
	inner := &countingStarter{}
	charger := Wrap(inner)

	first, err := charger.StartCharge(context.Background(), "order-1", "https://wallet.example/merchant", "1000")
	require.NoError(t, err)

	second, err := charger.StartCharge(context.Background(), "order-1", "https://wallet.example/merchant", "1000")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int64(1), inner.calls.Load())
}

func TestChargerDistinctKeysCreateDistinctCharges(t *testing.T) {
	inner := &countingStarter{}
	charger := Wrap(inner)

	first, err := charger.StartCharge(context.Background(), "order-1", "https://wallet.example/merchant", "1000")
	require.NoError(t, err)

	second, err := charger.StartCharge(context.Background(), "order-2", "https://wallet.example/merchant", "1000")
	require.NoError(t, err)

	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, int64(2), inner.calls.Load())
}

func TestChargerEmptyKeyBypassesStore(t *testing.T) {
	inner := &countingStarter{}
	charger := Wrap(inner)

	_, err := charger.StartCharge(context.Background(), "", "https://wallet.example/merchant", "1000")
	require.NoError(t, err)
	_, err = charger.StartCharge(context.Background(), "", "https://wallet.example/merchant", "1000")
	require.NoError(t, err)

	require.Equal(t, int64(2), inner.calls.Load())
}

func TestChargerFailureIsNotCached(t *testing.T) {
	inner := &countingStarter{err: errors.New("resource server unreachable")}
	charger := Wrap(inner)

	_, err := charger.StartCharge(context.Background(), "order-1", "https://wallet.example/merchant", "1000")
	require.Error(t, err)

	// The retry with the same key should reach the inner flow again.
	inner.err = nil
	payment, err := charger.StartCharge(context.Background(), "order-1", "https://wallet.example/merchant", "1000")
	require.NoError(t, err)
	require.NotNil(t, payment)
	require.Equal(t, int64(2), inner.calls.Load())
}

func TestChargerConcurrentSameKey(t *testing.T) {
	inner := &countingStarter{}
	charger := Wrap(inner)

	const workers = 8
	results := make([]*openpay.IncomingPayment, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = charger.StartCharge(context.Background(), "order-1", "https://wallet.example/merchant", "1000")
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(1), inner.calls.Load())
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0].ID, results[i].ID)
	}
}

func TestChargerInnerExposesWrappedStarter(t *testing.T) {
	inner := &countingStarter{}
	charger := Wrap(inner)
	require.Same(t, inner, charger.Inner())
}

func TestWrapWithCustomStore(t *testing.T) {
	inner := &countingStarter{}
	store := NewInMemoryStore(0) // zero TTL: results expire immediately
	charger := Wrap(inner, WithStore(store))

	_, err := charger.StartCharge(context.Background(), "order-1", "https://wallet.example/merchant", "1000")
	require.NoError(t, err)
	_, err = charger.StartCharge(context.Background(), "order-1", "https://wallet.example/merchant", "1000")
	require.NoError(t, err)

	require.Equal(t, int64(2), inner.calls.Load())
}
