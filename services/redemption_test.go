package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merch-loyalty-system/models"
)

func seedBalance(t *testing.T, f *fixture, userID string, points int64) {
	t.Helper()
	ctx := context.Background()
	_, err := f.profiles.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	if points > 0 {
		_, err = f.awarder.Award(ctx, userID, models.EventAdjustment, points, "adjustment:seed-"+userID, nil)
		require.NoError(t, err)
	}
}

func TestRedeemHappyPath(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedBalance(t, f, "u1", 300)

	code, balance, err := f.redemption.Redeem(ctx, "u1", 250, "req-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
	assert.Equal(t, int64(500), code.ValueCents)
	assert.Equal(t, models.DiscountFixed, code.Type)
	assert.Equal(t, 1, code.MaxUses)
	assert.Equal(t, int64(250), code.PointsSpent)
	assert.Len(t, code.Code, 12)
	assert.WithinDuration(t, time.Now().Add(720*time.Hour), code.ValidUntil, time.Minute)

	sum, _ := f.ledger.SumForUser(ctx, "u1")
	assert.Equal(t, int64(50), sum)
}

func TestRedeemInvalidAmount(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedBalance(t, f, "u1", 1000)

	_, _, err := f.redemption.Redeem(ctx, "u1", 123, "req-1")
	assert.ErrorIs(t, err, ErrInvalidRedemptionAmount)

	// Rejected before any write: balance untouched, no ledger entry, no code.
	assert.Equal(t, int64(1000), f.mustBalance(ctx, "u1"))
	assert.Equal(t, 1, f.ledger.countForUser("u1"))
	_, err = f.discounts.ByRequestID(ctx, "u1:req-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeemRequestIDScopedPerUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedBalance(t, f, "alice", 300)
	seedBalance(t, f, "bob", 300)

	aliceCode, _, err := f.redemption.Redeem(ctx, "alice", 250, "req-shared")
	require.NoError(t, err)
	assert.Equal(t, "alice", aliceCode.UserID)

	// The same request id from a different caller is an independent
	// redemption, never a replay of someone else's code.
	bobCode, bobBalance, err := f.redemption.Redeem(ctx, "bob", 250, "req-shared")
	require.NoError(t, err)
	assert.Equal(t, "bob", bobCode.UserID)
	assert.NotEqual(t, aliceCode.Code, bobCode.Code)
	assert.Equal(t, int64(50), bobBalance, "bob pays for his own redemption")
	assert.Equal(t, int64(50), f.mustBalance(ctx, "alice"))

	// Each caller's replay still returns their own original code.
	replayed, aliceBalance, err := f.redemption.Redeem(ctx, "alice", 250, "req-shared")
	require.NoError(t, err)
	assert.Equal(t, aliceCode.Code, replayed.Code)
	assert.Equal(t, int64(50), aliceBalance)
}

func TestRedeemInsufficientBalance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedBalance(t, f, "u1", 200)

	_, _, err := f.redemption.Redeem(ctx, "u1", 250, "req-1")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(200), f.mustBalance(ctx, "u1"))

	// The failed attempt must not burn the request id.
	code, balance, err := f.redemption.Redeem(ctx, "u1", 100, "req-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
	assert.Equal(t, int64(200), code.ValueCents)
}

func TestRedeemReplayReturnsSameCode(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedBalance(t, f, "u1", 500)

	first, _, err := f.redemption.Redeem(ctx, "u1", 100, "req-1")
	require.NoError(t, err)

	second, balance, err := f.redemption.Redeem(ctx, "u1", 100, "req-1")
	require.NoError(t, err)
	assert.Equal(t, first.Code, second.Code, "replay must return the original code")
	assert.Equal(t, int64(400), balance, "replay must not decrement again")
	assert.Equal(t, 2, f.ledger.countForUser("u1"), "seed entry plus one redemption")
}

func TestRedeemCompensatesWhenMintFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedBalance(t, f, "u1", 300)

	f.discounts.failCreate = errors.New("db down")
	_, _, err := f.redemption.Redeem(ctx, "u1", 250, "req-1")
	assert.ErrorIs(t, err, ErrRedemptionFailed)

	// Balance restored via a reversing entry, never a silent fixup.
	assert.Equal(t, int64(300), f.mustBalance(ctx, "u1"))
	sum, _ := f.ledger.SumForUser(ctx, "u1")
	assert.Equal(t, int64(300), sum)
	assert.Equal(t, 3, f.ledger.countForUser("u1"), "seed, decrement, reversal")

	// That request id is spent; a fresh one succeeds.
	f.discounts.failCreate = nil
	_, _, err = f.redemption.Redeem(ctx, "u1", 250, "req-1")
	assert.ErrorIs(t, err, ErrRedemptionFailed)

	code, balance, err := f.redemption.Redeem(ctx, "u1", 250, "req-2")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
	assert.NotEmpty(t, code.Code)
}

func TestConcurrentRedeemsSingleWinner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedBalance(t, f, "u1", 250)

	// Distinct request ids racing for a balance that covers only one.
	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		reqID := "req-" + string(rune('a'+i))
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _, err := f.redemption.Redeem(ctx, "u1", 250, id)
			results <- err
		}(reqID)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 1, wins, "only one redemption can afford the balance")
	assert.Equal(t, int64(0), f.mustBalance(ctx, "u1"))

	sum, _ := f.ledger.SumForUser(ctx, "u1")
	assert.Equal(t, int64(0), sum)
}

func TestRedemptionOptionsSorted(t *testing.T) {
	f := newFixture()
	opts := f.redemption.Options()
	require.Len(t, opts, 3)
	assert.Equal(t, int64(100), opts[0].Points)
	assert.Equal(t, int64(250), opts[1].Points)
	assert.Equal(t, int64(500), opts[2].Points)
	assert.Equal(t, int64(1200), opts[2].ValueCents)
}

func TestPurgeExpiredKeepsUsedCodes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedBalance(t, f, "u1", 500)

	expired, _, err := f.redemption.Redeem(ctx, "u1", 100, "req-old")
	require.NoError(t, err)
	used, _, err := f.redemption.Redeem(ctx, "u1", 100, "req-used")
	require.NoError(t, err)

	f.discounts.mu.Lock()
	f.discounts.byCode[expired.Code].ValidUntil = time.Now().Add(-time.Hour)
	f.discounts.byCode[used.Code].ValidUntil = time.Now().Add(-time.Hour)
	f.discounts.byCode[used.Code].Uses = 1
	f.discounts.mu.Unlock()

	purged, err := f.redemption.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = f.discounts.ByRequestID(ctx, "u1:req-old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.discounts.ByRequestID(ctx, "u1:req-used")
	assert.NoError(t, err)
}
