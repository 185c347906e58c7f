package community

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelens/internal/cache"
	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
	"tradelens/internal/notify"
	"tradelens/internal/pnl"
	"tradelens/internal/store"
)

type recordingNotifier struct {
	sent []notify.Notification
}

func (r *recordingNotifier) Send(_ context.Context, _ store.DataStore, n notify.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

type fixture struct {
	svc      *Service
	store    *store.SQLStore
	cache    *cache.MemoryStore
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ds, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "community.db"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	ctx := context.Background()
	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := ds.UpsertUser(ctx, &models.User{ID: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}

	f := &fixture{store: ds, cache: cache.NewMemoryStore(), notifier: &recordingNotifier{}}
	f.svc = NewService(ds, f.cache, time.Minute, f.notifier, zerolog.Nop())

	_, err = f.svc.SaveProfile(ctx, "u1", ProfileInput{Username: "Alice", IsPublic: true})
	require.NoError(t, err)
	_, err = f.svc.SaveProfile(ctx, "u2", ProfileInput{Username: "bob_fx", IsPublic: true})
	require.NoError(t, err)
	_, err = f.svc.SaveProfile(ctx, "u3", ProfileInput{Username: "carol", IsPublic: false})
	require.NoError(t, err)
	return f
}

// closedTrade books a closed trade directly through the store.
func (f *fixture) closedTrade(t *testing.T, userID string, exitPrice string, shared bool) *models.Trade {
	t.Helper()
	ctx := context.Background()
	entry := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	trade := &models.Trade{
		UserID:             userID,
		Instrument:         "MSFT",
		MarketType:         models.MarketStocks,
		Action:             models.ActionBuy,
		Quantity:           decimal.NewFromInt(10),
		EntryPrice:         decimal.NewFromInt(100),
		EntryTime:          entry,
		ContractMultiplier: decimal.NewFromInt(1),
		Status:             models.TradeClosed,
		IsShared:           shared,
	}
	require.NoError(t, f.store.CreateTrade(ctx, trade))
	exit := models.PartialExit{TradeID: trade.ID, Quantity: trade.Quantity, ExitPrice: decimal.RequireFromString(exitPrice), ExitTime: entry.Add(time.Hour)}
	require.NoError(t, f.store.AddExit(ctx, &exit))
	m, err := pnl.Compute(*trade, []models.PartialExit{exit}, entry.Add(2*time.Hour))
	require.NoError(t, err)
	require.NoError(t, f.store.SaveMetrics(ctx, &m))
	return trade
}

func TestValidateUsername(t *testing.T) {
	for _, ok := range []string{"abc", "trader_42", "a23456789012345678901234567890"} {
		assert.NoError(t, ValidateUsername(ok), ok)
	}
	for _, bad := range []string{"ab", "Alice", "has space", "dash-name", "a234567890123456789012345678901"} {
		assert.ErrorIs(t, ValidateUsername(bad), apperrors.ErrInputValidation, bad)
	}
}

func TestSaveProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)

	_, err = f.svc.SaveProfile(ctx, "u2", ProfileInput{Username: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)

	_, err = f.svc.SaveProfile(ctx, "u2", ProfileInput{Username: "x"})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestProfileStatsRefreshedAfterInvalidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.closedTrade(t, "u1", "110", true)
	// Cached profile still shows no trades until the cache entry goes away.
	p, err := f.svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.TotalTrades)

	require.NoError(t, cache.Invalidate(ctx, f.cache, cache.ProfileKey("u1")))
	p, err = f.svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.TotalTrades)
	assert.True(t, p.NetPnL.Equal(decimal.NewFromInt(100)))
	assert.True(t, p.WinRate.Equal(decimal.NewFromInt(100)))
	assert.Nil(t, p.ProfitFactor)
}

func TestRefreshPublicProfiles(t *testing.T) {
	f := newFixture(t)
	f.closedTrade(t, "u1", "110", true)
	f.closedTrade(t, "u2", "90", true)
	f.closedTrade(t, "u3", "120", true)

	n, err := f.svc.RefreshPublicProfiles(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	bob, err := f.store.GetProfile(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, bob.TotalTrades)
	assert.True(t, bob.NetPnL.Equal(decimal.NewFromInt(-100)))

	carol, err := f.store.GetProfile(context.Background(), "u3")
	require.NoError(t, err)
	assert.Equal(t, 0, carol.TotalTrades, "private profiles are refreshed on demand only")
}

func TestFollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Follow(ctx, "u2", "alice"))
	require.NoError(t, f.svc.Follow(ctx, "u2", "ALICE"))
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, models.NotifyNewFollower, f.notifier.sent[0].Type)
	assert.Equal(t, "u1", f.notifier.sent[0].UserID)

	view, err := f.svc.ProfileByUsername(ctx, "u2", "alice")
	require.NoError(t, err)
	assert.True(t, view.IsFollowing)
	assert.Equal(t, 1, view.Followers)

	assert.ErrorIs(t, f.svc.Follow(ctx, "u1", "alice"), apperrors.ErrInputValidation)
	assert.ErrorIs(t, f.svc.Follow(ctx, "u1", "carol"), apperrors.ErrNotFound)
	assert.ErrorIs(t, f.svc.Follow(ctx, "u1", "nobody"), apperrors.ErrNotFound)

	require.NoError(t, f.svc.Unfollow(ctx, "u2", "alice"))
	view, err = f.svc.ProfileByUsername(ctx, "u2", "alice")
	require.NoError(t, err)
	assert.False(t, view.IsFollowing)
	assert.Equal(t, 0, view.Followers)
}

func TestPrivateProfileVisibleToOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ProfileByUsername(ctx, "u1", "carol")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	view, err := f.svc.ProfileByUsername(ctx, "u3", "carol")
	require.NoError(t, err)
	assert.True(t, view.IsOwn)
}

func TestLikes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shared := f.closedTrade(t, "u1", "110", true)
	private := f.closedTrade(t, "u1", "110", false)
	hidden := f.closedTrade(t, "u3", "110", true)

	res, err := f.svc.LikeTrade(ctx, "u2", shared.ID)
	require.NoError(t, err)
	assert.Equal(t, &LikeResult{Liked: true, Likes: 1}, res)

	res, err = f.svc.LikeTrade(ctx, "u2", shared.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Likes)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, models.NotifyTradeLiked, f.notifier.sent[0].Type)
	assert.Contains(t, f.notifier.sent[0].Message, "@bob_fx")

	_, err = f.svc.LikeTrade(ctx, "u1", shared.ID)
	require.NoError(t, err)
	assert.Len(t, f.notifier.sent, 1, "own likes do not notify")

	_, err = f.svc.LikeTrade(ctx, "u2", private.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.svc.LikeTrade(ctx, "u2", hidden.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	res, err = f.svc.UnlikeTrade(ctx, "u2", shared.ID)
	require.NoError(t, err)
	assert.Equal(t, &LikeResult{Liked: false, Likes: 1}, res)
}

func TestFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.closedTrade(t, "u1", "110", true)
	f.closedTrade(t, "u1", "110", false)
	f.closedTrade(t, "u3", "110", true)
	b := f.closedTrade(t, "u2", "95", true)

	_, err := f.svc.LikeTrade(ctx, "u2", a.ID)
	require.NoError(t, err)

	items, err := f.svc.Feed(ctx, "u2", FeedQuery{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	ids := []string{items[0].Trade.ID, items[1].Trade.ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
	for _, it := range items {
		if it.Trade.ID == a.ID {
			assert.Equal(t, 1, it.Likes)
			assert.True(t, it.LikedByViewer)
			assert.Equal(t, "alice", it.Author.Username)
		}
	}

	require.NoError(t, f.svc.Follow(ctx, "u2", "alice"))
	items, err = f.svc.Feed(ctx, "u2", FeedQuery{FollowingOnly: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, a.ID, items[0].Trade.ID)

	items, err = f.svc.TraderTrades(ctx, "u1", "bob_fx", FeedQuery{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, b.ID, items[0].Trade.ID)

	_, err = f.svc.TraderTrades(ctx, "u1", "carol", FeedQuery{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
