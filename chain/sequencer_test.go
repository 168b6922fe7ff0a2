package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) signedNoop(t *testing.T, account *PrivateKeyAccount, nonce uint64) *types.Transaction {
	t.Helper()
	parsed := e.backend.parsed[KindFungibleToken]
	data, err := parsed.Pack("approve", testExecutorAddr, big.NewInt(1))
	require.NoError(t, err)
	tx := types.NewTransaction(nonce, testCurrencyAddr, big.NewInt(0), 500000, big.NewInt(1), data)
	signed, err := account.SignTx(tx, big.NewInt(31337))
	require.NoError(t, err)
	return signed
}

func TestSequencerAssignsSequentialNonces(t *testing.T) {
	env := newTestEnv(t)
	seq := NewSequencer(env.backend)
	ctx := context.Background()

	for want := uint64(0); want < 3; want++ {
		tx, err := seq.Broadcast(ctx, env.account.Address(), func(nonce uint64) (*types.Transaction, error) {
			require.Equal(t, want, nonce)
			return env.signedNoop(t, env.account, nonce), nil
		})
		require.NoError(t, err)
		require.Equal(t, want, tx.Nonce())
	}
}

func TestSequencerConcurrentBroadcastsNeverCollide(t *testing.T) {
	defer leaktest.Check(t)()

	env := newTestEnv(t)
	seq := NewSequencer(env.backend)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := seq.Broadcast(ctx, env.account.Address(), func(nonce uint64) (*types.Transaction, error) {
				return env.signedNoop(t, env.account, nonce), nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := env.backend.noncesSeen(env.account.Address())
	require.Len(t, seen, workers)
	unique := make(map[uint64]struct{}, len(seen))
	for _, n := range seen {
		unique[n] = struct{}{}
	}
	require.Len(t, unique, workers, "no two broadcasts may claim the same nonce")
}

func TestSequencerIndependentAccounts(t *testing.T) {
	env := newTestEnv(t)
	seq := NewSequencer(env.backend)
	ctx := context.Background()
	other := env.newTestAccount(t, 2)

	_, err := seq.Broadcast(ctx, env.account.Address(), func(nonce uint64) (*types.Transaction, error) {
		return env.signedNoop(t, env.account, nonce), nil
	})
	require.NoError(t, err)

	tx, err := seq.Broadcast(ctx, other.Address(), func(nonce uint64) (*types.Transaction, error) {
		return env.signedNoop(t, other, nonce), nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0), tx.Nonce(), "accounts sequence independently")
}

func TestSequencerResyncsAfterSendFailure(t *testing.T) {
	env := newTestEnv(t)
	seq := NewSequencer(env.backend)
	ctx := context.Background()
	addr := env.account.Address()

	env.backend.failNextSends(errors.New("connection refused"))
	_, err := seq.Broadcast(ctx, addr, func(nonce uint64) (*types.Transaction, error) {
		return env.signedNoop(t, env.account, nonce), nil
	})
	require.Error(t, err)
	before := env.backend.pendingNonceHits

	// The failed broadcast dropped the cache; the next one consults the
	// node again and succeeds with the still-unused nonce.
	tx, err := seq.Broadcast(ctx, addr, func(nonce uint64) (*types.Transaction, error) {
		return env.signedNoop(t, env.account, nonce), nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0), tx.Nonce())
	require.Greater(t, env.backend.pendingNonceHits, before)
}

func TestSequencerBuildErrorKeepsNonce(t *testing.T) {
	env := newTestEnv(t)
	seq := NewSequencer(env.backend)
	ctx := context.Background()
	addr := env.account.Address()

	_, err := seq.Broadcast(ctx, addr, func(nonce uint64) (*types.Transaction, error) {
		return nil, errors.New("signer unavailable")
	})
	require.Error(t, err)

	tx, err := seq.Broadcast(ctx, addr, func(nonce uint64) (*types.Transaction, error) {
		return env.signedNoop(t, env.account, nonce), nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0), tx.Nonce(), "a build failure must not burn a nonce")
}
