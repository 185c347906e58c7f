package store

import (
	"context"
	"strings"

	"tradelens/internal/models"
)

var profileColumns = []string{
	"user_id", "username", "display_name", "bio", "is_public", "total_trades", "win_rate",
	"net_pnl", "profit_factor", "followers", "following", "updated_at",
}

// ============================================================================
// Trader profiles
// ============================================================================

// UpsertProfile creates or updates the editable fields of a profile. Statistics
// are maintained by UpdateProfileStats.
func (s *SQLStore) UpsertProfile(ctx context.Context, p *models.TraderProfile) error {
	p.UpdatedAt = utcNow()
	_, err := s.exec(ctx, `
		INSERT INTO trader_profiles (user_id, username, display_name, bio, is_public, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			bio = excluded.bio,
			is_public = excluded.is_public,
			updated_at = excluded.updated_at
	`, p.UserID, p.Username, p.DisplayName, p.Bio, p.IsPublic, p.UpdatedAt)
	return dbError("trader_profile", p.Username, err)
}

// GetProfile retrieves the profile of a user.
func (s *SQLStore) GetProfile(ctx context.Context, userID string) (*models.TraderProfile, error) {
	var p models.TraderProfile
	if err := s.get(ctx, &p, "SELECT "+strings.Join(profileColumns, ", ")+" FROM trader_profiles WHERE user_id = ?", userID); err != nil {
		return nil, dbError("trader_profile", userID, err)
	}
	return &p, nil
}

// GetProfileByUsername retrieves a profile by username.
func (s *SQLStore) GetProfileByUsername(ctx context.Context, username string) (*models.TraderProfile, error) {
	var p models.TraderProfile
	if err := s.get(ctx, &p, "SELECT "+strings.Join(profileColumns, ", ")+" FROM trader_profiles WHERE username = ?", strings.ToLower(username)); err != nil {
		return nil, dbError("trader_profile", username, err)
	}
	return &p, nil
}

// UpdateProfileStats stores recomputed statistics on a profile.
func (s *SQLStore) UpdateProfileStats(ctx context.Context, userID string, st ProfileStats) error {
	return s.execOne(ctx, "trader_profile", userID, `
		UPDATE trader_profiles SET total_trades = ?, win_rate = ?, net_pnl = ?, profit_factor = ?, updated_at = ?
		WHERE user_id = ?
	`, st.TotalTrades, st.WinRate, st.NetPnL, st.ProfitFactor, utcNow(), userID)
}

// ListPublicProfileIDs returns the user ids of all public profiles.
func (s *SQLStore) ListPublicProfileIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.selectRows(ctx, &ids, "SELECT user_id FROM trader_profiles WHERE is_public = ? ORDER BY user_id", true); err != nil {
		return nil, dbError("trader_profile", "", err)
	}
	return ids, nil
}

// ============================================================================
// Follows
// ============================================================================

// Follow records that followerID follows followeeID. It reports false if the
// relation already existed.
func (s *SQLStore) Follow(ctx context.Context, followerID, followeeID string) (bool, error) {
	res, err := s.exec(ctx, `
		INSERT INTO follows (follower_id, followee_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (follower_id, followee_id) DO NOTHING
	`, followerID, followeeID, utcNow())
	if err != nil {
		return false, dbError("follow", followeeID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	return true, s.refreshFollowCounts(ctx, followerID, followeeID)
}

// Unfollow removes a follow relation. It reports false if none existed.
func (s *SQLStore) Unfollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	res, err := s.exec(ctx, "DELETE FROM follows WHERE follower_id = ? AND followee_id = ?", followerID, followeeID)
	if err != nil {
		return false, dbError("follow", followeeID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	return true, s.refreshFollowCounts(ctx, followerID, followeeID)
}

func (s *SQLStore) refreshFollowCounts(ctx context.Context, userIDs ...string) error {
	for _, id := range userIDs {
		_, err := s.exec(ctx, `
			UPDATE trader_profiles SET
				followers = (SELECT COUNT(*) FROM follows WHERE followee_id = ?),
				following = (SELECT COUNT(*) FROM follows WHERE follower_id = ?)
			WHERE user_id = ?
		`, id, id, id)
		if err != nil {
			return dbError("trader_profile", id, err)
		}
	}
	return nil
}

// IsFollowing reports whether followerID follows followeeID.
func (s *SQLStore) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var n int
	if err := s.get(ctx, &n, "SELECT COUNT(*) FROM follows WHERE follower_id = ? AND followee_id = ?", followerID, followeeID); err != nil {
		return false, dbError("follow", followeeID, err)
	}
	return n > 0, nil
}

// CountFollows returns the follower and following counts of a user.
func (s *SQLStore) CountFollows(ctx context.Context, userID string) (int, int, error) {
	var counts struct {
		Followers int `db:"followers"`
		Following int `db:"following"`
	}
	err := s.get(ctx, &counts, `
		SELECT
			(SELECT COUNT(*) FROM follows WHERE followee_id = ?) AS followers,
			(SELECT COUNT(*) FROM follows WHERE follower_id = ?) AS following
	`, userID, userID)
	if err != nil {
		return 0, 0, dbError("follow", userID, err)
	}
	return counts.Followers, counts.Following, nil
}

// ============================================================================
// Likes & feed
// ============================================================================

// LikeTrade records a like. It reports false if the user already liked the trade.
func (s *SQLStore) LikeTrade(ctx context.Context, userID, tradeID string) (bool, error) {
	res, err := s.exec(ctx, `
		INSERT INTO trade_likes (user_id, trade_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, trade_id) DO NOTHING
	`, userID, tradeID, utcNow())
	if err != nil {
		return false, dbError("trade_like", tradeID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UnlikeTrade removes a like. It reports false if there was none.
func (s *SQLStore) UnlikeTrade(ctx context.Context, userID, tradeID string) (bool, error) {
	res, err := s.exec(ctx, "DELETE FROM trade_likes WHERE user_id = ? AND trade_id = ?", userID, tradeID)
	if err != nil {
		return false, dbError("trade_like", tradeID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CountLikes returns the number of likes of a trade.
func (s *SQLStore) CountLikes(ctx context.Context, tradeID string) (int, error) {
	var n int
	if err := s.get(ctx, &n, "SELECT COUNT(*) FROM trade_likes WHERE trade_id = ?", tradeID); err != nil {
		return 0, dbError("trade_like", tradeID, err)
	}
	return n, nil
}

// ListFeed returns shared trades of public profiles, newest first.
func (s *SQLStore) ListFeed(ctx context.Context, f FeedFilter) ([]models.FeedItem, error) {
	query := "SELECT " + prefixed("t", "trade", tradeColumns) +
		", " + prefixed("m", "metrics", metricsColumns) +
		", " + prefixed("p", "author", profileColumns) + `,
		(SELECT COUNT(*) FROM trade_likes l WHERE l.trade_id = t.id) AS likes,
		EXISTS (SELECT 1 FROM trade_likes v WHERE v.trade_id = t.id AND v.user_id = ?) AS liked_by_viewer
		FROM trades t
		JOIN trade_metrics m ON m.trade_id = t.id
		JOIN trader_profiles p ON p.user_id = t.user_id
		WHERE t.is_shared = ? AND p.is_public = ?`
	args := []interface{}{f.ViewerID, true, true}

	if f.FollowingOnly {
		query += " AND t.user_id IN (SELECT followee_id FROM follows WHERE follower_id = ?)"
		args = append(args, f.ViewerID)
	}
	if f.AuthorID != "" {
		query += " AND t.user_id = ?"
		args = append(args, f.AuthorID)
	}

	query += " ORDER BY t.created_at DESC, t.id"
	query, args = paginate(query, args, f.Limit, f.Offset)

	items := []models.FeedItem{}
	if err := s.selectRows(ctx, &items, query, args...); err != nil {
		return nil, dbError("feed", "", err)
	}
	return items, nil
}
