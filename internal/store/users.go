package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tradelens/internal/models"
)

// ============================================================================
// Users & Roles
// ============================================================================

// UpsertUser inserts the user if it does not exist, otherwise refreshes email
// and display name. created reports whether a new row was inserted.
func (s *SQLStore) UpsertUser(ctx context.Context, user *models.User) (bool, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = utcNow()
	}

	res, err := s.exec(ctx, `
		INSERT INTO users (id, email, display_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, user.ID, user.Email, user.DisplayName, user.CreatedAt.UTC())
	if err != nil {
		return false, dbError("user", user.ID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	var sets []string
	var args []interface{}
	if user.Email != "" {
		sets = append(sets, "email = ?")
		args = append(args, user.Email)
	}
	if user.DisplayName != "" {
		sets = append(sets, "display_name = ?")
		args = append(args, user.DisplayName)
	}
	if len(sets) == 0 {
		return false, nil
	}

	args = append(args, user.ID)
	if _, err := s.exec(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		return false, dbError("user", user.ID, err)
	}
	return false, nil
}

// GetUser retrieves a user by id.
func (s *SQLStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.get(ctx, &u, "SELECT id, email, display_name, created_at FROM users WHERE id = ?", id); err != nil {
		return nil, dbError("user", id, err)
	}
	return &u, nil
}

// GrantRole grants a role to a user. Granting an existing role is a no-op.
func (s *SQLStore) GrantRole(ctx context.Context, userID string, role models.Role) error {
	_, err := s.exec(ctx, `
		INSERT INTO user_roles (user_id, role, created_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, role) DO NOTHING
	`, userID, role, utcNow())
	return dbError("user_role", userID, err)
}

// RevokeRole removes a role from a user.
func (s *SQLStore) RevokeRole(ctx context.Context, userID string, role models.Role) error {
	return s.execOne(ctx, "user_role", fmt.Sprintf("%s/%s", userID, role),
		"DELETE FROM user_roles WHERE user_id = ? AND role = ?", userID, role)
}

// ListRoles returns the roles granted to a user.
func (s *SQLStore) ListRoles(ctx context.Context, userID string) ([]models.Role, error) {
	var roles []models.Role
	if err := s.selectRows(ctx, &roles, "SELECT role FROM user_roles WHERE user_id = ? ORDER BY role", userID); err != nil {
		return nil, dbError("user_role", userID, err)
	}
	return roles, nil
}

// ListRoleGrants returns every role grant.
func (s *SQLStore) ListRoleGrants(ctx context.Context) ([]models.UserRole, error) {
	var grants []models.UserRole
	if err := s.selectRows(ctx, &grants, "SELECT user_id, role, created_at FROM user_roles ORDER BY user_id, role"); err != nil {
		return nil, dbError("user_role", "", err)
	}
	return grants, nil
}

// ============================================================================
// Accounts & Strategies
// ============================================================================

// CreateAccount inserts a new account.
func (s *SQLStore) CreateAccount(ctx context.Context, a *models.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utcNow()
	}
	_, err := s.exec(ctx, `
		INSERT INTO accounts (id, user_id, name, broker, currency, starting_balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.Name, a.Broker, a.Currency, a.StartingBalance, a.CreatedAt.UTC())
	return dbError("account", a.ID, err)
}

// UpdateAccount updates an account owned by a.UserID.
func (s *SQLStore) UpdateAccount(ctx context.Context, a *models.Account) error {
	return s.execOne(ctx, "account", a.ID, `
		UPDATE accounts SET name = ?, broker = ?, currency = ?, starting_balance = ?
		WHERE id = ? AND user_id = ?
	`, a.Name, a.Broker, a.Currency, a.StartingBalance, a.ID, a.UserID)
}

// DeleteAccount deletes an account. Trades booked against it are kept unassigned.
func (s *SQLStore) DeleteAccount(ctx context.Context, userID, id string) error {
	if _, err := s.exec(ctx, "UPDATE trades SET account_id = NULL WHERE account_id = ? AND user_id = ?", id, userID); err != nil {
		return dbError("account", id, err)
	}
	return s.execOne(ctx, "account", id, "DELETE FROM accounts WHERE id = ? AND user_id = ?", id, userID)
}

// GetAccount retrieves an account.
func (s *SQLStore) GetAccount(ctx context.Context, userID, id string) (*models.Account, error) {
	var a models.Account
	err := s.get(ctx, &a, `
		SELECT id, user_id, name, broker, currency, starting_balance, created_at
		FROM accounts WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		return nil, dbError("account", id, err)
	}
	return &a, nil
}

// ListAccounts returns the accounts of a user.
func (s *SQLStore) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	accounts := []models.Account{}
	err := s.selectRows(ctx, &accounts, `
		SELECT id, user_id, name, broker, currency, starting_balance, created_at
		FROM accounts WHERE user_id = ? ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, dbError("account", "", err)
	}
	return accounts, nil
}

// CreateStrategy inserts a new strategy.
func (s *SQLStore) CreateStrategy(ctx context.Context, st *models.Strategy) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = utcNow()
	}
	_, err := s.exec(ctx, `
		INSERT INTO strategies (id, user_id, name, description, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, st.ID, st.UserID, st.Name, st.Description, st.CreatedAt.UTC())
	return dbError("strategy", st.ID, err)
}

// UpdateStrategy updates a strategy owned by st.UserID.
func (s *SQLStore) UpdateStrategy(ctx context.Context, st *models.Strategy) error {
	return s.execOne(ctx, "strategy", st.ID,
		"UPDATE strategies SET name = ?, description = ? WHERE id = ? AND user_id = ?",
		st.Name, st.Description, st.ID, st.UserID)
}

// DeleteStrategy deletes a strategy. Trades using it are kept unassigned.
func (s *SQLStore) DeleteStrategy(ctx context.Context, userID, id string) error {
	if _, err := s.exec(ctx, "UPDATE trades SET strategy_id = NULL WHERE strategy_id = ? AND user_id = ?", id, userID); err != nil {
		return dbError("strategy", id, err)
	}
	return s.execOne(ctx, "strategy", id, "DELETE FROM strategies WHERE id = ? AND user_id = ?", id, userID)
}

// GetStrategy retrieves a strategy.
func (s *SQLStore) GetStrategy(ctx context.Context, userID, id string) (*models.Strategy, error) {
	var st models.Strategy
	err := s.get(ctx, &st, `
		SELECT id, user_id, name, description, created_at
		FROM strategies WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		return nil, dbError("strategy", id, err)
	}
	return &st, nil
}

// ListStrategies returns the strategies of a user.
func (s *SQLStore) ListStrategies(ctx context.Context, userID string) ([]models.Strategy, error) {
	strategies := []models.Strategy{}
	err := s.selectRows(ctx, &strategies, `
		SELECT id, user_id, name, description, created_at
		FROM strategies WHERE user_id = ? ORDER BY name
	`, userID)
	if err != nil {
		return nil, dbError("strategy", "", err)
	}
	return strategies, nil
}
