package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const leaderboardKey = "loyalty:leaderboard"

// Leaderboard mirrors balances into a Redis sorted set for the account
// page. Strictly best-effort: a miss or a Redis outage never fails the
// mutation that triggered the write, and the set can be rebuilt from the
// profiles table at any time.
type Leaderboard struct {
	rdb    *redis.Client
	size   int
	logger *zap.Logger
}

func NewLeaderboard(rdb *redis.Client, size int, logger *zap.Logger) *Leaderboard {
	return &Leaderboard{rdb: rdb, size: size, logger: logger}
}

// Record sets the user's score to their new balance.
func (l *Leaderboard) Record(ctx context.Context, userID string, balance int64) {
	if l.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := l.rdb.ZAdd(ctx, leaderboardKey, redis.Z{
		Score:  float64(balance),
		Member: userID,
	}).Err(); err != nil {
		l.logger.Warn("leaderboard update failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// LeaderboardEntry is one row of the top list.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
	Rank   int    `json:"rank"`
}

// Top returns the highest balances, best first.
func (l *Leaderboard) Top(ctx context.Context) ([]LeaderboardEntry, error) {
	if l.rdb == nil {
		return nil, nil
	}
	zs, err := l.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(l.size)-1).Result()
	if err != nil {
		l.logger.Warn("leaderboard read failed", zap.Error(err))
		return nil, ErrStoreUnavailable
	}
	entries := make([]LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		userID, _ := z.Member.(string)
		entries = append(entries, LeaderboardEntry{
			UserID: userID,
			Points: int64(z.Score),
			Rank:   i + 1,
		})
	}
	return entries, nil
}
