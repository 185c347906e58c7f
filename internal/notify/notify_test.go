package notify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelens/internal/config"
	apperrors "tradelens/internal/errors"
	"tradelens/internal/mailer"
	"tradelens/internal/models"
	"tradelens/internal/store"
)

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "notify.db"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLevelAllows(t *testing.T) {
	assert.True(t, LevelAll.Allows(models.NotifyTradeLiked))
	assert.False(t, LevelOff.Allows(models.NotifyPaymentSuccess))
	assert.True(t, LevelImportant.Allows(models.NotifyPaymentSuccess))
	assert.False(t, LevelImportant.Allows(models.NotifyNewFollower))
}

func TestMultiNotifierChannels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mn := NewMultiNotifier(config.NotifyConfig{InApp: "all", Email: "important"}, mailer.NewQueue(s), zerolog.Nop())

	user := &models.User{ID: "u1", Email: "ada@example.com", DisplayName: "Ada"}
	require.NoError(t, mn.Send(ctx, s, Welcome(user, nil)))
	require.NoError(t, mn.Send(ctx, s, NewFollower("u1", &models.TraderProfile{UserID: "u2", Username: "bob"})))

	inbox, err := s.ListNotifications(ctx, store.NotificationFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, inbox, 2)

	emails, err := s.ListEmails(ctx, store.EmailFilter{})
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, mailer.TemplateWelcome, emails[0].Template)
	assert.Equal(t, "Ada", emails[0].Params["name"])
	assert.Equal(t, "Welcome to TradeLens, Ada", emails[0].Subject)
}

func TestEmailChannelSkipsWithoutRecipient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mn := NewMultiNotifier(config.NotifyConfig{InApp: "off", Email: "all"}, mailer.NewQueue(s), zerolog.Nop())

	require.NoError(t, mn.Send(ctx, s, Welcome(&models.User{ID: "u1"}, nil)))
	emails, err := s.ListEmails(ctx, store.EmailFilter{})
	require.NoError(t, err)
	assert.Empty(t, emails)

	n, err := s.CountUnreadNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNotificationJoinsTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mn := NewMultiNotifier(config.NotifyConfig{InApp: "all", Email: "all"}, mailer.NewQueue(s), zerolog.Nop())

	boom := errors.New("rollback")
	err := s.WithTx(ctx, func(tx store.DataStore) error {
		require.NoError(t, mn.Send(ctx, tx, Welcome(&models.User{ID: "u1", Email: "a@b.co"}, nil)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := s.CountUnreadNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingChannel struct{}

func (failingChannel) Name() string { return "broken" }
func (failingChannel) Send(context.Context, store.DataStore, Notification) error {
	return errors.New("down")
}

func TestMultiNotifierCollectsErrors(t *testing.T) {
	mn := &MultiNotifier{logger: zerolog.Nop()}
	mn.AddChannel(failingChannel{}, LevelAll)
	err := mn.Send(context.Background(), nil, Notification{Type: models.NotifyTradeLiked})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: down")
}

func TestMessageBuilders(t *testing.T) {
	trade := &models.Trade{ID: "t1", UserID: "u1", Instrument: "AAPL", Action: models.ActionBuy}
	m := &models.TradeMetrics{NetPnL: decimal.NewFromInt(148), PercentGain: decimal.RequireFromString("14.8"), Result: models.ResultWin}
	n := TradeClosed(trade, m)
	assert.Equal(t, models.NotifyTradeClosed, n.Type)
	assert.Contains(t, n.Message, "+148.00")
	assert.Equal(t, "win", n.Data["result"])

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	sub := &models.Subscription{UserID: "u1", CurrentPeriodEnd: now.Add(72 * time.Hour)}
	exp := SubscriptionExpiring(&models.User{ID: "u1", Email: "a@b.co"}, sub, "Pro Monthly", now)
	assert.Equal(t, "3", exp.Data["days_left"])
	require.NotNil(t, exp.Recipient)

	liked := TradeLiked(trade, nil)
	assert.Contains(t, liked.Message, "Someone liked")
}

func TestInbox(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mn := NewMultiNotifier(config.NotifyConfig{InApp: "all", Email: "off"}, nil, zerolog.Nop())
	trade := &models.Trade{ID: "t1", UserID: "u1", Instrument: "AAPL"}
	for i := 0; i < 3; i++ {
		require.NoError(t, mn.Send(ctx, s, TradeLiked(trade, nil)))
	}

	inbox := NewInbox(s)
	page, err := inbox.List(ctx, "u1", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, 3, page.Unread)

	require.NoError(t, inbox.MarkRead(ctx, "u1", page.Items[0].ID))
	assert.ErrorIs(t, inbox.MarkRead(ctx, "u2", page.Items[1].ID), apperrors.ErrNotFound)

	page, err = inbox.List(ctx, "u1", true, 10, 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Unread)

	n, err := inbox.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, inbox.Delete(ctx, "u1", page.Items[0].ID))
	count, err := inbox.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}
