package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tipflow-ledger/internal/ledger"
	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice     = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob       = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
	aliceLedg = common.HexToAddress("0xa11ce0000000000000000000000000000000c0de")
)

type fakeDirectory struct {
	mu       sync.Mutex
	records  map[common.Address]models.CreatorRecord
	byName   map[string]models.CreatorRecord
	failures []error
	calls    atomic.Int32
	gate     map[common.Address]chan struct{}
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		records: map[common.Address]models.CreatorRecord{},
		byName:  map[string]models.CreatorRecord{},
		gate:    map[common.Address]chan struct{}{},
	}
}

func (f *fakeDirectory) register(r models.CreatorRecord) {
	f.records[r.OwnerAddress] = r
	f.byName[r.Username] = r
}

func (f *fakeDirectory) CreatorInfoByAddress(ctx context.Context, owner common.Address) (models.CreatorRecord, error) {
	f.calls.Add(1)

	f.mu.Lock()
	gate := f.gate[owner]
	var err error
	if len(f.failures) > 0 {
		err, f.failures = f.failures[0], f.failures[1:]
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.CreatorRecord{}, ctx.Err()
		}
	}
	if err != nil {
		return models.CreatorRecord{}, err
	}
	// the factory returns an empty record for unknown owners
	return f.records[owner], nil
}

func (f *fakeDirectory) CreatorInfoByUsername(_ context.Context, username string) (models.CreatorRecord, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return models.CreatorRecord{}, err
	}
	return f.byName[username], nil
}

func aliceRecord() models.CreatorRecord {
	return models.CreatorRecord{Username: "alice", OwnerAddress: alice, ContractAddress: aliceLedg}
}

func TestResolveByAddress(t *testing.T) {
	transient := fmt.Errorf("%w: eth_call: timeout", models.ErrTransientRemote)
	noData := fmt.Errorf("creatorInfoByAddress: %w", ledger.ErrNoData)

	tests := []struct {
		name      string
		owner     common.Address
		failures  []error
		want      models.ResultStatus
		wantCalls int32
	}{
		{"zero address is pending", common.Address{}, nil, models.StatusPending, 0},
		{"registered creator", alice, nil, models.StatusSuccess, 1},
		{"unregistered address", bob, nil, models.StatusNotFound, 1},
		{"no data is not found and not retried", alice, []error{noData}, models.StatusNotFound, 1},
		{"transient failure recovers", alice, []error{transient}, models.StatusSuccess, 2},
		{"retries exhausted", alice, []error{transient, transient, transient}, models.StatusError, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newFakeDirectory()
			dir.register(aliceRecord())
			dir.failures = tt.failures

			r := New(dir, 2, time.Millisecond, nil)
			res := r.ResolveByAddress(context.Background(), tt.owner)

			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.wantCalls, dir.calls.Load())
			if tt.want == models.StatusSuccess {
				assert.Equal(t, aliceRecord(), res.Record)
			}
			if tt.want == models.StatusError {
				assert.ErrorIs(t, res.Err, models.ErrTransientRemote)
				assert.NotEmpty(t, res.Detail())
			}
			if tt.want == models.StatusNotFound {
				assert.ErrorIs(t, res.Err, models.ErrNotFound)
			}
		})
	}
}

func TestResolveByUsername(t *testing.T) {
	dir := newFakeDirectory()
	dir.register(aliceRecord())
	r := New(dir, 2, time.Millisecond, nil)

	assert.Equal(t, models.StatusPending, r.ResolveByUsername(context.Background(), "  ").Status)
	assert.Equal(t, int32(0), dir.calls.Load())

	res := r.ResolveByUsername(context.Background(), "alice")
	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, aliceLedg, res.Record.ContractAddress)

	assert.Equal(t, models.StatusNotFound, r.ResolveByUsername(context.Background(), "nobody").Status)

	dir.failures = []error{errors.New("boom"), errors.New("boom")}
	calls := dir.calls.Load()
	res = r.ResolveByUsername(context.Background(), "alice")
	assert.Equal(t, models.StatusError, res.Status)
	assert.Equal(t, calls+1, dir.calls.Load(), "username lookups are not retried")
}

func TestActiveCreator_DiscardsStaleResult(t *testing.T) {
	dir := newFakeDirectory()
	dir.register(aliceRecord())
	dir.register(models.CreatorRecord{Username: "bob", OwnerAddress: bob, ContractAddress: common.HexToAddress("0xb0b")})
	slow := make(chan struct{})
	dir.gate[alice] = slow

	var notified []common.Address
	var mu sync.Mutex
	active := NewActiveCreator(New(dir, 0, time.Millisecond, nil), OnChange(func(owner common.Address, _ Result) {
		mu.Lock()
		notified = append(notified, owner)
		mu.Unlock()
	}))

	first := active.SetAddress(context.Background(), alice)
	second := active.SetAddress(context.Background(), bob)
	assert.Greater(t, second, first)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := active.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "bob", res.Record.Username)

	// release the superseded lookup; it was cancelled and must not win
	close(slow)
	time.Sleep(20 * time.Millisecond)

	owner, current := active.Current()
	assert.Equal(t, bob, owner)
	assert.Equal(t, "bob", current.Record.Username)

	mu.Lock()
	assert.Equal(t, []common.Address{bob}, notified)
	mu.Unlock()
}

func TestActiveCreator_CachesResolvedIdentity(t *testing.T) {
	dir := newFakeDirectory()
	dir.register(aliceRecord())
	active := NewActiveCreator(New(dir, 0, time.Millisecond, nil))

	_, res := active.Current()
	assert.Equal(t, models.StatusPending, res.Status)

	gen := active.SetAddress(context.Background(), alice)
	res, err := active.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.StatusSuccess, res.Status)

	assert.Equal(t, gen, active.SetAddress(context.Background(), alice))
	assert.Equal(t, int32(1), dir.calls.Load())
	assert.Equal(t, gen, active.Generation())
}

func TestActiveCreator_WaitHonorsContext(t *testing.T) {
	dir := newFakeDirectory()
	dir.gate[alice] = make(chan struct{})
	active := NewActiveCreator(New(dir, 0, time.Millisecond, nil))
	active.SetAddress(context.Background(), alice)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := active.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, res := active.Current()
	assert.Equal(t, models.StatusPending, res.Status)
}
