package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario: cancelling a hash the book has never seen fails fast and
// broadcasts nothing.
func TestCancelUnknownHash(t *testing.T) {
	env := newTestEnv(t)

	err := env.canceller.Cancel(context.Background(), env.account, offerHashNeverSubmitted())

	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	require.Contains(t, cancelErr.Reason, "not found")
	require.Empty(t, env.backend.writes(), "no transaction may be broadcast for an unknown hash")
}

func TestCancelOpenOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.backend.setTokenBalance(testCurrencyAddr, env.account.Address(), big.NewInt(1000))

	intent, hash := env.mustBuild(t, offerFields(1))
	_, err := env.submitter.Submit(ctx, env.account, intent)
	require.NoError(t, err)

	require.NoError(t, env.canceller.Cancel(ctx, env.account, hash))
	require.Equal(t, uint8(StateCancelled), env.backend.state(hash))

	status, err := env.resolver.Status(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, status)
}

func TestCancelAlreadyFinalized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.backend.setTokenBalance(testCurrencyAddr, env.account.Address(), big.NewInt(1000))

	intent, hash := env.mustBuild(t, offerFields(1))
	_, err := env.submitter.Submit(ctx, env.account, intent)
	require.NoError(t, err)
	env.backend.setState(hash, uint8(StateFilled))
	broadcastsBefore := len(env.backend.writes())

	err = env.canceller.Cancel(ctx, env.account, hash)
	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	require.Contains(t, cancelErr.Reason, "executed")
	require.Len(t, env.backend.writes(), broadcastsBefore)
}

func TestCancelRevertSurfacesReason(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.backend.setTokenBalance(testCurrencyAddr, env.account.Address(), big.NewInt(1000))

	intent, hash := env.mustBuild(t, offerFields(1))
	_, err := env.submitter.Submit(ctx, env.account, intent)
	require.NoError(t, err)

	// The pre-read saw an open order, but on-chain authorization stays
	// authoritative: the book still rejects the cancel.
	env.backend.revertMethod("cancelOrder", "not order maker")

	err = env.canceller.Cancel(ctx, env.account, hash)
	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	require.Contains(t, cancelErr.Reason, "not order maker")
	require.Equal(t, hash, cancelErr.OrderHash)
}

func TestCancelExpiredOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.backend.setTokenBalance(testCurrencyAddr, env.account.Address(), big.NewInt(1000))

	intent, hash := env.mustBuild(t, offerFields(1))
	_, err := env.submitter.Submit(ctx, env.account, intent)
	require.NoError(t, err)
	env.backend.setState(hash, uint8(StateExpired))

	err = env.canceller.Cancel(ctx, env.account, hash)
	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	require.Contains(t, cancelErr.Reason, "expired")
}

func TestCancelCollectionOffer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.backend.setTokenBalance(testCurrencyAddr, env.account.Address(), big.NewInt(1000))

	fields := offerFields(1)
	fields.Kind = OrderKindCollectionOffer
	fields.TokenID = nil
	intent, hash := env.mustBuild(t, fields)
	_, err := env.submitter.Submit(ctx, env.account, intent)
	require.NoError(t, err)

	require.NoError(t, env.canceller.CancelCollectionOffer(ctx, env.account, hash))
	require.Equal(t, uint8(StateCancelled), env.backend.state(hash))
}

func TestCancelCollectionOfferRejectsOtherKinds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.backend.setTokenBalance(testCurrencyAddr, env.account.Address(), big.NewInt(1000))

	intent, hash := env.mustBuild(t, offerFields(1))
	_, err := env.submitter.Submit(ctx, env.account, intent)
	require.NoError(t, err)
	broadcastsBefore := len(env.backend.writes())

	err = env.canceller.CancelCollectionOffer(ctx, env.account, hash)
	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	require.Contains(t, cancelErr.Reason, "collection_offer")
	require.Len(t, env.backend.writes(), broadcastsBefore, "kind mismatch must not broadcast")

	// The order itself is untouched and still cancellable the ordinary way.
	require.NoError(t, env.canceller.Cancel(ctx, env.account, hash))
}
