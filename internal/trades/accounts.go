package trades

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"tradelens/internal/analytics"
	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
	"tradelens/internal/store"
)

// AccountInput creates or edits an account.
type AccountInput struct {
	Name            string          `json:"name"`
	Broker          string          `json:"broker"`
	Currency        string          `json:"currency"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
}

func (in AccountInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperrors.NewValidationError("name", in.Name, "is required")
	}
	if in.StartingBalance.IsNegative() {
		return apperrors.NewValidationError("starting_balance", in.StartingBalance.String(), "must not be negative")
	}
	if c := strings.TrimSpace(in.Currency); c != "" && len(c) != 3 {
		return apperrors.NewValidationError("currency", in.Currency, "must be a 3-letter code")
	}
	return nil
}

func (in AccountInput) currency() string {
	c := strings.ToUpper(strings.TrimSpace(in.Currency))
	if c == "" {
		return "USD"
	}
	return c
}

// CreateAccount adds an account for userID.
func (s *Service) CreateAccount(ctx context.Context, userID string, in AccountInput) (*models.Account, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	a := &models.Account{
		UserID:          userID,
		Name:            strings.TrimSpace(in.Name),
		Broker:          strings.TrimSpace(in.Broker),
		Currency:        in.currency(),
		StartingBalance: in.StartingBalance,
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateAccount replaces the editable fields of an account.
func (s *Service) UpdateAccount(ctx context.Context, userID, id string, in AccountInput) (*models.Account, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	a, err := s.store.GetAccount(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	a.Name = strings.TrimSpace(in.Name)
	a.Broker = strings.TrimSpace(in.Broker)
	a.Currency = in.currency()
	a.StartingBalance = in.StartingBalance
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}
	s.invalidateAccount(ctx, userID, id)
	return a, nil
}

// DeleteAccount removes an account. Its trades are kept without an account.
func (s *Service) DeleteAccount(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteAccount(ctx, userID, id); err != nil {
		return err
	}
	s.invalidateAccount(ctx, userID, id)
	return nil
}

// ListAccounts returns the user's accounts with their current balances.
func (s *Service) ListAccounts(ctx context.Context, userID string) ([]models.AccountWithBalance, error) {
	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return []models.AccountWithBalance{}, nil
	}
	trades, err := s.store.ListTradesWithMetrics(ctx, models.TradeFilter{UserID: userID})
	if err != nil {
		return nil, err
	}

	out := make([]models.AccountWithBalance, len(accounts))
	for i, a := range accounts {
		out[i] = models.AccountWithBalance{Account: a, Balance: analytics.AccountBalance(a, trades)}
	}
	return out, nil
}

// StrategyInput creates or edits a strategy.
type StrategyInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateStrategy adds a strategy for userID.
func (s *Service) CreateStrategy(ctx context.Context, userID string, in StrategyInput) (*models.Strategy, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperrors.NewValidationError("name", in.Name, "is required")
	}
	st := &models.Strategy{UserID: userID, Name: strings.TrimSpace(in.Name), Description: in.Description}
	if err := s.store.CreateStrategy(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// UpdateStrategy replaces the name and description of a strategy.
func (s *Service) UpdateStrategy(ctx context.Context, userID, id string, in StrategyInput) (*models.Strategy, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperrors.NewValidationError("name", in.Name, "is required")
	}
	st, err := s.store.GetStrategy(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	st.Name = strings.TrimSpace(in.Name)
	st.Description = in.Description
	if err := s.store.UpdateStrategy(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// DeleteStrategy removes a strategy. Its trades are kept unassigned.
func (s *Service) DeleteStrategy(ctx context.Context, userID, id string) error {
	return s.store.DeleteStrategy(ctx, userID, id)
}

// ListStrategies returns the user's strategies.
func (s *Service) ListStrategies(ctx context.Context, userID string) ([]models.Strategy, error) {
	return s.store.ListStrategies(ctx, userID)
}

func strategyLabels(ctx context.Context, ds store.DataStore, userID string) (map[string]string, error) {
	list, err := ds.ListStrategies(ctx, userID)
	if err != nil {
		return nil, err
	}
	labels := make(map[string]string, len(list))
	for _, st := range list {
		labels[st.ID] = st.Name
	}
	return labels, nil
}
