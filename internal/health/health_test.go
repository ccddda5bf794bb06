package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tipflow-ledger/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHead struct {
	head atomic.Uint64
	err  error
}

func (f *fakeHead) BlockNumber(context.Context) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.head.Load(), nil
}

func (f *fakeHead) GetChainName() models.ChainName { return models.BaseSepolia }

func newChecker() *Checker {
	logger := zerolog.Nop()
	return NewChecker(&logger)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLiveness(t *testing.T) {
	rec := get(t, newChecker().Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReadiness(t *testing.T) {
	checker := newChecker()
	h := checker.Handler()

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code)

	source := &fakeHead{}
	source.head.Store(42)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	checker.Watch(ctx, source, time.Hour)

	require.Eventually(t, func() bool {
		checker.mu.RLock()
		defer checker.mu.RUnlock()
		return len(checker.statuses) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code, "not ready until SetReady")

	checker.SetReady(true)
	rec := get(t, h, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string                  `json:"status"`
		Chains map[string]*ChainStatus `json:"chains"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Ready", body.Status)
	assert.Equal(t, uint64(42), body.Chains["BaseSepolia"].LastBlock)
}

func TestWatch_ErrorKeepsPreviousStatus(t *testing.T) {
	checker := newChecker()
	checker.update("BaseSepolia", 7)

	checker.check(context.Background(), &fakeHead{err: errors.New("down")})

	checker.mu.RLock()
	defer checker.mu.RUnlock()
	assert.Equal(t, uint64(7), checker.statuses["BaseSepolia"].LastBlock)
}
