package balance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contract = common.HexToAddress("0x2222222222222222222222222222222222222222")

type fakeSource struct {
	mu     sync.Mutex
	amount uint64
	block  uint64
	err    error
	calls  int
}

func (f *fakeSource) BalanceAt(context.Context, common.Address) (*uint256.Int, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, 0, f.err
	}
	f.block++
	return uint256.NewInt(f.amount), f.block, nil
}

func (f *fakeSource) set(amount uint64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amount = amount
	f.err = err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestTracker(source *fakeSource) (*Tracker, *clock) {
	c := &clock{t: time.Unix(1700000000, 0)}
	tracker := NewTracker(source, "ETH", 18, 5*time.Second, nil)
	tracker.now = c.now
	return tracker, c
}

func TestRead_CachesWithinTTL(t *testing.T) {
	source := &fakeSource{amount: 5}
	tracker, c := newTestTracker(source)

	res := tracker.Read(context.Background(), contract)
	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, uint64(5), res.Balance.Amount.Uint64())
	assert.Equal(t, "0.000000000000000005 ETH", res.Balance.Formatted())

	source.set(7, nil)
	c.t = c.t.Add(time.Second)
	res = tracker.Read(context.Background(), contract)
	assert.Equal(t, uint64(5), res.Balance.Amount.Uint64())
	assert.Equal(t, 1, source.calls)

	c.t = c.t.Add(5 * time.Second)
	res = tracker.Read(context.Background(), contract)
	assert.Equal(t, uint64(7), res.Balance.Amount.Uint64())
	assert.Equal(t, 2, source.calls)
}

func TestRead_ZeroContractPending(t *testing.T) {
	source := &fakeSource{}
	tracker, _ := newTestTracker(source)

	assert.Equal(t, models.StatusPending, tracker.Read(context.Background(), common.Address{}).Status)
	assert.Zero(t, source.calls)
}

func TestRead_ErrorWithoutPreviousValue(t *testing.T) {
	source := &fakeSource{err: models.ErrTransientRemote}
	tracker, _ := newTestTracker(source)

	res := tracker.Read(context.Background(), contract)
	assert.Equal(t, models.StatusError, res.Status)
	assert.ErrorIs(t, res.Err, models.ErrTransientRemote)
}

func TestRefresh_RetainsPreviousValueOnFailure(t *testing.T) {
	source := &fakeSource{amount: 5}
	tracker, _ := newTestTracker(source)

	b, err := tracker.Refresh(context.Background(), contract)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), b.Amount.Uint64())

	source.set(0, errors.New("node down"))
	b, err = tracker.Refresh(context.Background(), contract)
	assert.Error(t, err)
	assert.Equal(t, uint64(5), b.Amount.Uint64())

	peek := tracker.Peek(contract)
	assert.Equal(t, models.StatusSuccess, peek.Status)
	assert.True(t, peek.Stale)
	assert.Equal(t, uint64(5), peek.Balance.Amount.Uint64())

	source.set(0, nil)
	b, err = tracker.Refresh(context.Background(), contract)
	require.NoError(t, err)
	assert.True(t, b.Amount.IsZero())
	assert.False(t, tracker.Peek(contract).Stale)
}

func TestRefresh_BypassesCache(t *testing.T) {
	source := &fakeSource{amount: 5}
	tracker, _ := newTestTracker(source)

	tracker.Read(context.Background(), contract)
	source.set(0, nil)
	b, err := tracker.Refresh(context.Background(), contract)
	require.NoError(t, err)
	assert.True(t, b.Amount.IsZero())
	assert.Equal(t, 2, source.calls)

	_, err = tracker.Refresh(context.Background(), common.Address{})
	assert.ErrorIs(t, err, ErrNoContract)
}

func TestPeekAndInvalidate(t *testing.T) {
	source := &fakeSource{amount: 9}
	tracker, _ := newTestTracker(source)

	assert.Equal(t, models.StatusPending, tracker.Peek(contract).Status)
	tracker.Invalidate(contract)

	tracker.Read(context.Background(), contract)
	tracker.Invalidate(contract)
	assert.True(t, tracker.Peek(contract).Stale)

	tracker.Read(context.Background(), contract)
	assert.Equal(t, 2, source.calls)
	assert.False(t, tracker.Peek(contract).Stale)
}

func TestContractsAreIndependent(t *testing.T) {
	source := &fakeSource{amount: 1}
	tracker, _ := newTestTracker(source)
	other := common.HexToAddress("0x3333333333333333333333333333333333333333")

	tracker.Read(context.Background(), contract)
	assert.Equal(t, models.StatusPending, tracker.Peek(other).Status)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Read(context.Background(), other)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, source.calls)
}
