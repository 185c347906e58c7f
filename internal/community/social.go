package community

import (
	"context"
	"strings"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
	"tradelens/internal/notify"
	"tradelens/internal/store"
)

// DefaultFeedLimit is the page size used when none is given.
const DefaultFeedLimit = 20

// publicTarget resolves username to a public profile other than the caller's.
func (s *Service) publicTarget(ctx context.Context, callerID, username string) (*models.TraderProfile, error) {
	target, err := s.store.GetProfileByUsername(ctx, strings.ToLower(username))
	if err != nil {
		return nil, err
	}
	if target.UserID == callerID {
		return nil, apperrors.NewValidationError("username", username, "cannot follow yourself")
	}
	if !target.IsPublic {
		return nil, apperrors.NotFound("trader_profile", username)
	}
	return target, nil
}

// Follow makes followerID follow the trader with username. The followed trader
// is notified the first time.
func (s *Service) Follow(ctx context.Context, followerID, username string) error {
	target, err := s.publicTarget(ctx, followerID, username)
	if err != nil {
		return err
	}
	follower, err := s.store.GetProfile(ctx, followerID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NewValidationError("profile", followerID, "create a profile before following traders")
		}
		return err
	}

	err = s.store.WithTx(ctx, func(tx store.DataStore) error {
		created, err := tx.Follow(ctx, followerID, target.UserID)
		if err != nil || !created {
			return err
		}
		return s.notifier.Send(ctx, tx, notify.NewFollower(target.UserID, follower))
	})
	if err != nil {
		return err
	}
	s.drop(ctx, followerID, target.UserID)
	return nil
}

// Unfollow removes the follow relation, if any.
func (s *Service) Unfollow(ctx context.Context, followerID, username string) error {
	target, err := s.store.GetProfileByUsername(ctx, strings.ToLower(username))
	if err != nil {
		return err
	}
	if _, err := s.store.Unfollow(ctx, followerID, target.UserID); err != nil {
		return err
	}
	s.drop(ctx, followerID, target.UserID)
	return nil
}

// LikeResult reports the like state of a trade after a like or unlike.
type LikeResult struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

// sharedTrade returns a trade that is shared by a public profile.
func (s *Service) sharedTrade(ctx context.Context, ds store.DataStore, tradeID string) (*models.Trade, error) {
	trade, err := ds.GetSharedTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	author, err := ds.GetProfile(ctx, trade.UserID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("trade", tradeID)
		}
		return nil, err
	}
	if !author.IsPublic {
		return nil, apperrors.NotFound("trade", tradeID)
	}
	return trade, nil
}

// LikeTrade likes a shared trade. Liking twice is a no-op; the author is
// notified once and never for their own likes.
func (s *Service) LikeTrade(ctx context.Context, userID, tradeID string) (*LikeResult, error) {
	res := &LikeResult{Liked: true}
	err := s.store.WithTx(ctx, func(tx store.DataStore) error {
		trade, err := s.sharedTrade(ctx, tx, tradeID)
		if err != nil {
			return err
		}
		created, err := tx.LikeTrade(ctx, userID, tradeID)
		if err != nil {
			return err
		}
		if res.Likes, err = tx.CountLikes(ctx, tradeID); err != nil {
			return err
		}
		if !created || trade.UserID == userID {
			return nil
		}

		liker, err := tx.GetProfile(ctx, userID)
		if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return s.notifier.Send(ctx, tx, notify.TradeLiked(trade, liker))
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// UnlikeTrade removes a like. Unliking a trade that is not liked is a no-op.
func (s *Service) UnlikeTrade(ctx context.Context, userID, tradeID string) (*LikeResult, error) {
	if _, err := s.sharedTrade(ctx, s.store, tradeID); err != nil {
		return nil, err
	}
	if _, err := s.store.UnlikeTrade(ctx, userID, tradeID); err != nil {
		return nil, err
	}
	likes, err := s.store.CountLikes(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	return &LikeResult{Liked: false, Likes: likes}, nil
}

// FeedQuery pages through the feed.
type FeedQuery struct {
	FollowingOnly bool
	Limit         int
	Offset        int
}

func (q FeedQuery) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return DefaultFeedLimit
	}
	return q.Limit
}

// Feed returns shared trades of public profiles, newest first.
func (s *Service) Feed(ctx context.Context, viewerID string, q FeedQuery) ([]models.FeedItem, error) {
	return s.store.ListFeed(ctx, store.FeedFilter{
		ViewerID:      viewerID,
		FollowingOnly: q.FollowingOnly,
		Limit:         q.limit(),
		Offset:        q.Offset,
	})
}

// TraderTrades returns the shared trades of one public trader.
func (s *Service) TraderTrades(ctx context.Context, viewerID, username string, q FeedQuery) ([]models.FeedItem, error) {
	p, err := s.store.GetProfileByUsername(ctx, strings.ToLower(username))
	if err != nil {
		return nil, err
	}
	if !p.IsPublic && p.UserID != viewerID {
		return nil, apperrors.NotFound("trader_profile", username)
	}
	return s.store.ListFeed(ctx, store.FeedFilter{
		ViewerID: viewerID,
		AuthorID: p.UserID,
		Limit:    q.limit(),
		Offset:   q.Offset,
	})
}
