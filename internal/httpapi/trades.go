package httpapi

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradelens/internal/analytics"
	"tradelens/internal/csvio"
	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
	"tradelens/internal/trades"
)

// tradeFilter reads the common trade listing query parameters.
func tradeFilter(c *gin.Context) (models.TradeFilter, error) {
	f := models.TradeFilter{
		AccountID:  c.Query("account_id"),
		StrategyID: c.Query("strategy_id"),
		Instrument: strings.ToUpper(strings.TrimSpace(c.Query("instrument"))),
		Status:     models.TradeStatus(c.Query("status")),
		Tag:        strings.ToLower(strings.TrimSpace(c.Query("tag"))),
		Limit:      intQuery(c, "limit", 0),
		Offset:     intQuery(c, "offset", 0),
	}
	var err error
	if f.From, err = timeQuery(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = timeQuery(c, "to"); err != nil {
		return f, err
	}
	return f, nil
}

func (s *Server) listTrades(c *gin.Context) {
	f, err := tradeFilter(c)
	if err != nil {
		fail(c, err)
		return
	}
	list, err := s.deps.Trades.ListTrades(c.Request.Context(), userID(c), f)
	if err != nil {
		fail(c, err)
		return
	}
	items(c, list)
}

func (s *Server) createTrade(c *gin.Context) {
	var in trades.TradeInput
	if !bind(c, &in) {
		return
	}
	t, err := s.deps.Trades.CreateTrade(c.Request.Context(), userID(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, t)
}

func (s *Server) getTrade(c *gin.Context) {
	t, err := s.deps.Trades.GetTrade(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, t)
}

func (s *Server) updateTrade(c *gin.Context) {
	var patch trades.TradePatch
	if !bind(c, &patch) {
		return
	}
	t, err := s.deps.Trades.UpdateTrade(c.Request.Context(), userID(c), c.Param("id"), patch)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, t)
}

func (s *Server) deleteTrade(c *gin.Context) {
	if err := s.deps.Trades.DeleteTrade(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addExit(c *gin.Context) {
	var in trades.ExitInput
	if !bind(c, &in) {
		return
	}
	t, err := s.deps.Trades.AddPartialExit(c.Request.Context(), userID(c), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, t)
}

func (s *Server) updateExit(c *gin.Context) {
	var in trades.ExitInput
	if !bind(c, &in) {
		return
	}
	t, err := s.deps.Trades.UpdatePartialExit(c.Request.Context(), userID(c), c.Param("id"), c.Param("exitId"), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, t)
}

func (s *Server) deleteExit(c *gin.Context) {
	t, err := s.deps.Trades.DeletePartialExit(c.Request.Context(), userID(c), c.Param("id"), c.Param("exitId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, t)
}

func (s *Server) closeTrade(c *gin.Context) {
	var in trades.CloseInput
	if !bind(c, &in) {
		return
	}
	t, err := s.deps.Trades.CloseTrade(c.Request.Context(), userID(c), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, t)
}

func (s *Server) exportTrades(c *gin.Context) {
	f, err := tradeFilter(c)
	if err != nil {
		fail(c, err)
		return
	}
	var buf bytes.Buffer
	if _, err := csvio.Export(c.Request.Context(), &buf, s.deps.Trades, userID(c), f); err != nil {
		fail(c, err)
		return
	}
	name := "trades-" + time.Now().UTC().Format("20060102") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// importTrades accepts a multipart "file" field or a raw text/csv body.
func (s *Server) importTrades(c *gin.Context) {
	mapping, err := csvio.ParseMapping(c.Query("mapping"))
	if err != nil {
		fail(c, err)
		return
	}

	body := c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			fail(c, apperrors.NewValidationError("file", "", "multipart field file is required"))
			return
		}
		f, err := fh.Open()
		if err != nil {
			fail(c, err)
			return
		}
		defer f.Close()
		body = f
	}

	res, err := csvio.Import(c.Request.Context(), body, s.deps.Trades, userID(c), mapping)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (s *Server) listAccounts(c *gin.Context) {
	list, err := s.deps.Trades.ListAccounts(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	items(c, list)
}

func (s *Server) createAccount(c *gin.Context) {
	var in trades.AccountInput
	if !bind(c, &in) {
		return
	}
	a, err := s.deps.Trades.CreateAccount(c.Request.Context(), userID(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, a)
}

func (s *Server) updateAccount(c *gin.Context) {
	var in trades.AccountInput
	if !bind(c, &in) {
		return
	}
	a, err := s.deps.Trades.UpdateAccount(c.Request.Context(), userID(c), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, a)
}

func (s *Server) deleteAccount(c *gin.Context) {
	if err := s.deps.Trades.DeleteAccount(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listStrategies(c *gin.Context) {
	list, err := s.deps.Trades.ListStrategies(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	items(c, list)
}

func (s *Server) createStrategy(c *gin.Context) {
	var in trades.StrategyInput
	if !bind(c, &in) {
		return
	}
	st, err := s.deps.Trades.CreateStrategy(c.Request.Context(), userID(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, st)
}

func (s *Server) updateStrategy(c *gin.Context) {
	var in trades.StrategyInput
	if !bind(c, &in) {
		return
	}
	st, err := s.deps.Trades.UpdateStrategy(c.Request.Context(), userID(c), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, st)
}

func (s *Server) deleteStrategy(c *gin.Context) {
	if err := s.deps.Trades.DeleteStrategy(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) summary(c *gin.Context) {
	sum, err := s.deps.Trades.Summary(c.Request.Context(), userID(c), c.Query("account_id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sum)
}

func (s *Server) breakdown(c *gin.Context) {
	key, err := analytics.ParseBreakdownKey(c.DefaultQuery("group_by", string(analytics.ByStrategy)))
	if err != nil {
		fail(c, err)
		return
	}
	f, err := tradeFilter(c)
	if err != nil {
		fail(c, err)
		return
	}
	groups, err := s.deps.Trades.Breakdown(c.Request.Context(), userID(c), key, f)
	if err != nil {
		fail(c, err)
		return
	}
	items(c, groups)
}

func (s *Server) daily(c *gin.Context) {
	loc := time.UTC
	if tz := c.Query("tz"); tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			fail(c, apperrors.NewValidationError("tz", tz, "unknown time zone"))
			return
		}
	}
	f, err := tradeFilter(c)
	if err != nil {
		fail(c, err)
		return
	}
	days, err := s.deps.Trades.Daily(c.Request.Context(), userID(c), loc, f)
	if err != nil {
		fail(c, err)
		return
	}
	items(c, days)
}

func (s *Server) equity(c *gin.Context) {
	points, err := s.deps.Trades.Equity(c.Request.Context(), userID(c), c.Query("account_id"))
	if err != nil {
		fail(c, err)
		return
	}
	items(c, points)
}
