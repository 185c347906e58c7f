package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tradelens/internal/community"
)

func feedQuery(c *gin.Context) community.FeedQuery {
	return community.FeedQuery{
		FollowingOnly: boolQuery(c, "following"),
		Limit:         intQuery(c, "limit", 0),
		Offset:        intQuery(c, "offset", 0),
	}
}

func (s *Server) getProfile(c *gin.Context) {
	p, err := s.deps.Community.Profile(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func (s *Server) saveProfile(c *gin.Context) {
	var in community.ProfileInput
	if !bind(c, &in) {
		return
	}
	p, err := s.deps.Community.SaveProfile(c.Request.Context(), userID(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func (s *Server) trader(c *gin.Context) {
	view, err := s.deps.Community.ProfileByUsername(c.Request.Context(), userID(c), c.Param("username"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, view)
}

func (s *Server) traderTrades(c *gin.Context) {
	list, err := s.deps.Community.TraderTrades(c.Request.Context(), userID(c), c.Param("username"), feedQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	items(c, list)
}

func (s *Server) follow(c *gin.Context) {
	if err := s.deps.Community.Follow(c.Request.Context(), userID(c), c.Param("username")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) unfollow(c *gin.Context) {
	if err := s.deps.Community.Unfollow(c.Request.Context(), userID(c), c.Param("username")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) feed(c *gin.Context) {
	list, err := s.deps.Community.Feed(c.Request.Context(), userID(c), feedQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	items(c, list)
}

func (s *Server) likeTrade(c *gin.Context) {
	res, err := s.deps.Community.LikeTrade(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (s *Server) unlikeTrade(c *gin.Context) {
	res, err := s.deps.Community.UnlikeTrade(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}
