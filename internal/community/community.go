// Package community implements trader profiles, follows, likes and the feed of
// shared trades.
package community

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradelens/internal/analytics"
	"tradelens/internal/cache"
	apperrors "tradelens/internal/errors"
	"tradelens/internal/logging"
	"tradelens/internal/models"
	"tradelens/internal/notify"
	"tradelens/internal/performance"
	"tradelens/internal/store"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

// Service implements the community operations.
type Service struct {
	store    store.DataStore
	cache    cache.Store
	cacheTTL time.Duration
	notifier notify.Notifier
	logger   zerolog.Logger
}

// NewService creates a community service. c may be nil to disable caching.
func NewService(ds store.DataStore, c cache.Store, cacheTTL time.Duration, notifier notify.Notifier, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	return &Service{
		store:    ds,
		cache:    c,
		cacheTTL: cacheTTL,
		notifier: notifier,
		logger:   logging.WithOperation(logger, "community"),
	}
}

// ValidateUsername checks the username rules: 3 to 30 of [a-z0-9_].
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return apperrors.NewValidationError("username", username, "must be 3-30 characters of a-z, 0-9 and _")
	}
	return nil
}

// ProfileInput creates or edits the caller's profile.
type ProfileInput struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	IsPublic    bool   `json:"is_public"`
}

// SaveProfile creates or updates the profile of userID. Usernames are unique.
func (s *Service) SaveProfile(ctx context.Context, userID string, in ProfileInput) (*models.TraderProfile, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if len(in.Bio) > 500 {
		return nil, apperrors.NewValidationError("bio", len(in.Bio), "must be at most 500 characters")
	}

	p := &models.TraderProfile{
		UserID:      userID,
		Username:    username,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Bio:         strings.TrimSpace(in.Bio),
		IsPublic:    in.IsPublic,
	}
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return nil, err
	}
	s.drop(ctx, userID)
	return s.RefreshProfileStats(ctx, userID)
}

// Profile returns the caller's own profile.
func (s *Service) Profile(ctx context.Context, userID string) (*models.TraderProfile, error) {
	return s.cachedProfile(ctx, userID)
}

// ProfileView is a trader profile as seen by another user.
type ProfileView struct {
	*models.TraderProfile
	IsFollowing bool `json:"is_following"`
	IsOwn       bool `json:"is_own"`
}

// ProfileByUsername returns a public profile, or the viewer's own profile.
func (s *Service) ProfileByUsername(ctx context.Context, viewerID, username string) (*ProfileView, error) {
	p, err := s.store.GetProfileByUsername(ctx, strings.ToLower(username))
	if err != nil {
		return nil, err
	}
	own := p.UserID == viewerID
	if !p.IsPublic && !own {
		return nil, apperrors.NotFound("trader_profile", username)
	}

	p, err = s.cachedProfile(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	view := &ProfileView{TraderProfile: p, IsOwn: own}
	if !own && viewerID != "" {
		if view.IsFollowing, err = s.store.IsFollowing(ctx, viewerID, p.UserID); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// cachedProfile returns the profile with fresh statistics, recomputing them on
// a cache miss.
func (s *Service) cachedProfile(ctx context.Context, userID string) (*models.TraderProfile, error) {
	if s.cache != nil {
		var p models.TraderProfile
		if ok, err := cache.GetJSON(ctx, s.cache, cache.ProfileKey(userID), &p); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("Profile cache read failed")
		} else if ok {
			return &p, nil
		}
	}
	return s.RefreshProfileStats(ctx, userID)
}

// RefreshProfileStats recomputes the statistics of a profile from the user's
// trades and caches the result.
func (s *Service) RefreshProfileStats(ctx context.Context, userID string) (*models.TraderProfile, error) {
	trades, err := s.store.ListTradesWithMetrics(ctx, models.TradeFilter{UserID: userID})
	if err != nil {
		return nil, err
	}
	sum := analytics.Summarize(trades, decimal.Zero)

	stats := store.ProfileStats{
		TotalTrades:  sum.TotalTrades,
		WinRate:      sum.WinRate,
		NetPnL:       sum.NetPnL,
		ProfitFactor: sum.ProfitFactor,
	}
	if err := s.store.UpdateProfileStats(ctx, userID, stats); err != nil {
		return nil, err
	}

	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, cache.ProfileKey(userID), p, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("Profile cache write failed")
		}
	}
	return p, nil
}

// RefreshPublicProfiles refreshes the statistics of every public profile with
// up to workers concurrent refreshes. It returns the number refreshed.
func (s *Service) RefreshPublicProfiles(ctx context.Context, workers int) (int, error) {
	ids, err := s.store.ListPublicProfileIDs(ctx)
	if err != nil {
		return 0, err
	}

	results := make([]error, len(ids))
	idx := make([]int, len(ids))
	for i := range idx {
		idx[i] = i
	}
	performance.ForEach(ctx, workers, idx, func(ctx context.Context, i int) {
		_, results[i] = s.RefreshProfileStats(ctx, ids[i])
	})

	refreshed := 0
	for i, err := range results {
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", ids[i]).Msg("Profile refresh failed")
			continue
		}
		refreshed++
	}
	if err := ctx.Err(); err != nil {
		return refreshed, err
	}
	return refreshed, nil
}

func (s *Service) drop(ctx context.Context, userIDs ...string) {
	if s.cache == nil {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = cache.ProfileKey(id)
	}
	if err := cache.Invalidate(ctx, s.cache, keys...); err != nil {
		s.logger.Warn().Err(err).Strs("keys", keys).Msg("Cache invalidation failed")
	}
}
