package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelens/internal/config"
	apperrors "tradelens/internal/errors"
	"tradelens/internal/mailer"
	"tradelens/internal/metrics"
	"tradelens/internal/models"
	"tradelens/internal/notify"
	"tradelens/internal/store"
)

const fakeProviderName = "fakepay"

// fakeProvider accepts webhooks signed with "X-Fake-Sig: ok" whose body is a
// JSON fakeEvent.
type fakeProvider struct {
	orders   []OrderRequest
	captures []string
	failNext error
}

type fakeEvent struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Approved  bool   `json:"approved"`
	Ignored   bool   `json:"ignored"`
}

func (f *fakeProvider) Name() string { return fakeProviderName }

func (f *fakeProvider) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	f.orders = append(f.orders, req)
	return &Order{ProviderOrderID: "ORD-" + req.PaymentID, CheckoutURL: "https://pay.test/" + req.PaymentID}, nil
}

func (f *fakeProvider) CaptureOrder(_ context.Context, orderID string) (*PaymentUpdate, error) {
	f.captures = append(f.captures, orderID)
	return &PaymentUpdate{ProviderOrderID: orderID, ProviderPaymentID: "CAP-" + orderID, Status: models.PaymentCompleted}, nil
}

func (f *fakeProvider) ParseWebhook(_ context.Context, headers http.Header, body []byte) (*PaymentUpdate, error) {
	if headers.Get("X-Fake-Sig") != "ok" {
		return nil, apperrors.ErrInvalidSignature
	}
	var ev fakeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	return &PaymentUpdate{
		PaymentID:       ev.PaymentID,
		ProviderOrderID: ev.OrderID,
		Status:          models.PaymentStatus(ev.Status),
		NeedsCapture:    ev.Approved,
		Ignored:         ev.Ignored,
		Raw:             string(body),
	}, nil
}

type serviceFixture struct {
	svc      *Service
	store    *store.SQLStore
	provider *fakeProvider
	now      time.Time
	user     *models.User
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ds, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "billing.db"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	ctx := context.Background()
	user := &models.User{ID: "u1", Email: "ada@example.com", DisplayName: "Ada"}
	_, err = ds.UpsertUser(ctx, user)
	require.NoError(t, err)

	f := &serviceFixture{
		store:    ds,
		provider: &fakeProvider{},
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		user:     user,
	}
	notifier := notify.NewMultiNotifier(config.NotifyConfig{InApp: "all", Email: "important"}, mailer.NewQueue(ds), zerolog.Nop())
	plans := []models.Plan{
		testPlan,
		{ID: "pro_yearly", Name: "Pro Yearly", Price: decimal.RequireFromString("190.00"), Currency: "USD", DurationDays: 365},
	}
	f.svc = NewService(ds, []Provider{f.provider}, plans, Options{
		ReturnURL:    "https://app.test/ok",
		CancelURL:    "https://app.test/cancel",
		PublicURL:    "https://api.test/",
		TrialDays:    7,
		ReminderDays: 3,
	}, notifier, zerolog.Nop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *serviceFixture) webhook(t *testing.T, ev fakeEvent) (*models.Payment, error) {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	h := http.Header{}
	h.Set("X-Fake-Sig", "ok")
	return f.svc.HandleWebhook(context.Background(), fakeProviderName, h, body)
}

func (f *serviceFixture) notifications(t *testing.T, typ models.NotificationType) int {
	t.Helper()
	list, err := f.store.ListNotifications(context.Background(), store.NotificationFilter{UserID: f.user.ID})
	require.NoError(t, err)
	n := 0
	for _, item := range list {
		if item.Type == typ {
			n++
		}
	}
	return n
}

func TestPlansFromConfig(t *testing.T) {
	plans, err := PlansFromConfig([]config.PlanConfig{{ID: "pro", Name: "Pro", Price: "9.50", Currency: "usd", DurationDays: 30}})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "USD", plans[0].Currency)
	assert.True(t, plans[0].Price.Equal(decimal.RequireFromString("9.5")))

	_, err = PlansFromConfig([]config.PlanConfig{{ID: "bad", Price: "nine"}})
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func TestCheckoutCreatesPendingPayment(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	res, err := f.svc.Checkout(ctx, f.user, "pro_monthly", fakeProviderName)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, res.Payment.Status)
	assert.Equal(t, "ORD-"+res.Payment.ID, res.Order.ProviderOrderID)

	require.Len(t, f.provider.orders, 1)
	req := f.provider.orders[0]
	assert.Equal(t, res.Payment.ID, req.PaymentID)
	assert.Equal(t, "https://api.test/webhooks/fakepay", req.NotifyURL)
	assert.Equal(t, "ada@example.com", req.Email)

	stored, err := f.store.GetPayment(ctx, res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.ProviderOrderID, stored.ProviderOrderID)
	assert.True(t, stored.Amount.Equal(testPlan.Price))
}

func TestCheckoutValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, f.user, "platinum", fakeProviderName)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.Checkout(ctx, f.user, "pro_monthly", ProviderPayPal)
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestCheckoutProviderFailureMarksPaymentFailed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.provider.failNext = apperrors.NewProviderError(fakeProviderName, 503, "", "down", nil)

	_, err := f.svc.Checkout(ctx, f.user, "pro_monthly", fakeProviderName)
	require.Error(t, err)

	payments, err := f.svc.ListPayments(ctx, models.PaymentFilter{UserID: f.user.ID})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentFailed, payments[0].Status)
}

func TestWebhookActivatesOnce(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	res, err := f.svc.Checkout(ctx, f.user, "pro_monthly", fakeProviderName)
	require.NoError(t, err)

	ev := fakeEvent{PaymentID: res.Payment.ID, Status: string(models.PaymentCompleted)}
	payment, err := f.webhook(t, ev)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, payment.Status)

	sub, err := f.store.GetSubscription(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, "pro_monthly", sub.PlanID)
	assert.WithinDuration(t, f.now.AddDate(0, 0, 30), sub.CurrentPeriodEnd, time.Second)

	// A replayed webhook changes nothing.
	_, err = f.webhook(t, ev)
	require.NoError(t, err)
	again, err := f.store.GetSubscription(ctx, f.user.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, sub.CurrentPeriodEnd, again.CurrentPeriodEnd, time.Second)
	assert.Equal(t, 1, f.notifications(t, models.NotifyPaymentSuccess))

	emails, err := f.store.ListEmails(ctx, store.EmailFilter{})
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, mailer.TemplatePaymentSuccess, emails[0].Template)
}

func TestWebhookByProviderOrderID(t *testing.T) {
	f := newServiceFixture(t)
	res, err := f.svc.Checkout(context.Background(), f.user, "pro_monthly", fakeProviderName)
	require.NoError(t, err)

	payment, err := f.webhook(t, fakeEvent{OrderID: res.Order.ProviderOrderID, Status: string(models.PaymentCompleted)})
	require.NoError(t, err)
	assert.Equal(t, res.Payment.ID, payment.ID)
	assert.Equal(t, models.PaymentCompleted, payment.Status)
}

func TestWebhookStateMachine(t *testing.T) {
	f := newServiceFixture(t)
	res, err := f.svc.Checkout(context.Background(), f.user, "pro_monthly", fakeProviderName)
	require.NoError(t, err)
	id := res.Payment.ID

	p, err := f.webhook(t, fakeEvent{PaymentID: id, Status: string(models.PaymentFailed)})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, p.Status)
	assert.Equal(t, 1, f.notifications(t, models.NotifyPaymentFailed))

	p, err = f.webhook(t, fakeEvent{PaymentID: id, Status: string(models.PaymentCompleted)})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, p.Status)

	// A late failure does not undo a completed payment.
	p, err = f.webhook(t, fakeEvent{PaymentID: id, Status: string(models.PaymentFailed)})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, p.Status)

	p, err = f.webhook(t, fakeEvent{PaymentID: id, Status: string(models.PaymentRefunded)})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, p.Status)
}

func webhookCount(t *testing.T, result string) float64 {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	re := regexp.MustCompile(`tradelens_billing_webhooks_total\{provider="` + fakeProviderName + `",result="` + result + `"\} (\S+)`)
	m := re.FindStringSubmatch(rec.Body.String())
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	require.NoError(t, err)
	return n
}

func TestWebhookReplaysCountAsDuplicates(t *testing.T) {
	f := newServiceFixture(t)
	res, err := f.svc.Checkout(context.Background(), f.user, "pro_monthly", fakeProviderName)
	require.NoError(t, err)
	applied, duplicate := webhookCount(t, "applied"), webhookCount(t, "duplicate")

	ev := fakeEvent{PaymentID: res.Payment.ID, Status: string(models.PaymentCompleted)}
	_, err = f.webhook(t, ev)
	require.NoError(t, err)
	_, err = f.webhook(t, ev)
	require.NoError(t, err)
	// Not an allowed transition from completed.
	_, err = f.webhook(t, fakeEvent{PaymentID: res.Payment.ID, Status: string(models.PaymentFailed)})
	require.NoError(t, err)

	assert.Equal(t, applied+1, webhookCount(t, "applied"))
	assert.Equal(t, duplicate+2, webhookCount(t, "duplicate"))
}

func TestRefundRevokesPurchasedPeriod(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.svc.Checkout(ctx, f.user, "pro_monthly", fakeProviderName)
	require.NoError(t, err)
	_, err = f.webhook(t, fakeEvent{PaymentID: first.Payment.ID, Status: string(models.PaymentCompleted)})
	require.NoError(t, err)
	second, err := f.svc.Checkout(ctx, f.user, "pro_monthly", fakeProviderName)
	require.NoError(t, err)
	_, err = f.webhook(t, fakeEvent{PaymentID: second.Payment.ID, Status: string(models.PaymentCompleted)})
	require.NoError(t, err)

	sub, err := f.store.GetSubscription(ctx, f.user.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, f.now.AddDate(0, 0, 60), sub.CurrentPeriodEnd, time.Second)

	_, err = f.webhook(t, fakeEvent{PaymentID: second.Payment.ID, Status: string(models.PaymentRefunded)})
	require.NoError(t, err)
	sub, err = f.store.GetSubscription(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.WithinDuration(t, f.now.AddDate(0, 0, 30), sub.CurrentPeriodEnd, time.Second)

	f.now = f.now.AddDate(0, 0, 10)
	_, err = f.webhook(t, fakeEvent{PaymentID: first.Payment.ID, Status: string(models.PaymentRefunded)})
	require.NoError(t, err)
	sub, err = f.store.GetSubscription(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionExpired, sub.Status)
	assert.WithinDuration(t, f.now, sub.CurrentPeriodEnd, time.Second)

	access, err := f.svc.Access(ctx, f.user.ID)
	require.NoError(t, err)
	assert.False(t, access.Active)
}

func TestWebhookRejectedAndIgnored(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.HandleWebhook(context.Background(), fakeProviderName, http.Header{}, []byte(`{}`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	p, err := f.webhook(t, fakeEvent{Ignored: true})
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = f.webhook(t, fakeEvent{PaymentID: "missing", Status: string(models.PaymentCompleted)})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestApprovedWebhookCaptures(t *testing.T) {
	f := newServiceFixture(t)
	res, err := f.svc.Checkout(context.Background(), f.user, "pro_monthly", fakeProviderName)
	require.NoError(t, err)

	ev := fakeEvent{PaymentID: res.Payment.ID, OrderID: res.Order.ProviderOrderID, Status: string(models.PaymentPending), Approved: true}
	p, err := f.webhook(t, ev)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, p.Status)
	assert.Equal(t, "CAP-"+res.Order.ProviderOrderID, p.ProviderPaymentID)

	_, err = f.webhook(t, ev)
	require.NoError(t, err)
	assert.Len(t, f.provider.captures, 1, "already completed payments are not captured again")
}

func TestActivationExtendsRunningPeriod(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	trial, err := f.svc.StartTrial(ctx, nil, f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, trial)
	assert.Equal(t, models.SubscriptionTrialing, trial.Status)
	assert.WithinDuration(t, f.now.AddDate(0, 0, 7), trial.CurrentPeriodEnd, time.Second)

	res, err := f.svc.Checkout(ctx, f.user, "pro_monthly", fakeProviderName)
	require.NoError(t, err)
	_, err = f.webhook(t, fakeEvent{PaymentID: res.Payment.ID, Status: string(models.PaymentCompleted)})
	require.NoError(t, err)

	sub, err := f.store.GetSubscription(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.WithinDuration(t, f.now.AddDate(0, 0, 37), sub.CurrentPeriodEnd, time.Second)
}

func TestActivationAfterExpiryStartsFresh(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartTrial(ctx, nil, f.user.ID)
	require.NoError(t, err)
	f.now = f.now.AddDate(0, 0, 10)

	sub, err := f.svc.Grant(ctx, f.user.ID, "pro_monthly")
	require.NoError(t, err)
	assert.Equal(t, ProviderManual, sub.Provider)
	assert.WithinDuration(t, f.now, sub.CurrentPeriodStart, time.Second)
	assert.WithinDuration(t, f.now.AddDate(0, 0, 30), sub.CurrentPeriodEnd, time.Second)
}

func TestStartTrialKeepsExisting(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, f.user.ID, "pro_yearly")
	require.NoError(t, err)

	sub, err := f.svc.StartTrial(ctx, nil, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "pro_yearly", sub.PlanID)

	f.svc.opts.TrialDays = 0
	none, err := f.svc.StartTrial(ctx, nil, "u2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGrantUnknownUser(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Grant(context.Background(), "ghost", "pro_monthly")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAccessAndCancel(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	access, err := f.svc.Access(ctx, f.user.ID)
	require.NoError(t, err)
	assert.False(t, access.Active)
	assert.Len(t, access.Plans, 2)

	_, err = f.svc.Cancel(ctx, f.user.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.Grant(ctx, f.user.ID, "pro_monthly")
	require.NoError(t, err)

	sub, err := f.svc.Cancel(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, sub.CancelAtPeriodEnd)

	access, err = f.svc.Access(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, access.Active, "cancelled subscriptions run until the period end")

	f.now = f.now.AddDate(0, 0, 31)
	access, err = f.svc.Access(ctx, f.user.ID)
	require.NoError(t, err)
	assert.False(t, access.Active)
}

func TestSweepRemindsOnceAndExpires(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartTrial(ctx, nil, f.user.ID)
	require.NoError(t, err)

	res, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res, "trial ends outside the reminder window")

	f.now = f.now.AddDate(0, 0, 5)
	res, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Reminded: 1}, res)

	res, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
	assert.Equal(t, 1, f.notifications(t, models.NotifySubscriptionExpires))

	f.now = f.now.AddDate(0, 0, 3)
	res, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Expired: 1}, res)

	sub, err := f.store.GetSubscription(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionExpired, sub.Status)
	assert.Equal(t, 1, f.notifications(t, models.NotifySubscriptionExpired))

	res, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
}

func TestSweepCancelledSubscription(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, f.user.ID, "pro_monthly")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.user.ID)
	require.NoError(t, err)

	f.now = f.now.AddDate(0, 0, 28)
	res, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res, "no reminder for subscriptions set to cancel")

	f.now = f.now.AddDate(0, 0, 3)
	res, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Expired: 1}, res)

	sub, err := f.store.GetSubscription(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, sub.Status)
}

func TestCaptureIsPayPalOnly(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	res, err := f.svc.Checkout(ctx, f.user, "pro_monthly", fakeProviderName)
	require.NoError(t, err)

	// Capture is PayPal only.
	_, err = f.svc.Capture(ctx, f.user.ID, res.Order.ProviderOrderID)
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}
