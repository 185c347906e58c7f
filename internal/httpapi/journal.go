package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/journal"
	"tradelens/internal/store"
)

func (s *Server) listJournal(c *gin.Context) {
	list, err := s.deps.Journal.ListEntries(c.Request.Context(), userID(c), store.JournalFilter{
		From:   c.Query("from"),
		To:     c.Query("to"),
		Tag:    c.Query("tag"),
		Limit:  intQuery(c, "limit", 0),
		Offset: intQuery(c, "offset", 0),
	})
	if err != nil {
		fail(c, err)
		return
	}
	items(c, list)
}

func (s *Server) saveJournal(c *gin.Context) {
	var in journal.EntryInput
	if !bind(c, &in) {
		return
	}
	e, err := s.deps.Journal.SaveEntry(c.Request.Context(), userID(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, e)
}

func (s *Server) getJournal(c *gin.Context) {
	e, err := s.deps.Journal.GetEntry(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, e)
}

func (s *Server) journalByDate(c *gin.Context) {
	e, err := s.deps.Journal.GetEntryByDate(c.Request.Context(), userID(c), c.Param("date"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, e)
}

func (s *Server) deleteJournal(c *gin.Context) {
	if err := s.deps.Journal.DeleteEntry(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// uploadJournalImage stores the multipart field "image" on an entry.
func (s *Server) uploadJournalImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, apperrors.NewValidationError("image", "", "multipart field image is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	img, err := s.deps.Journal.UploadImage(c.Request.Context(), userID(c), c.Param("id"), fh.Header.Get("Content-Type"), f)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, img)
}

func (s *Server) deleteJournalImage(c *gin.Context) {
	if err := s.deps.Journal.DeleteImage(c.Request.Context(), userID(c), c.Param("imageId")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listNotifications(c *gin.Context) {
	page, err := s.deps.Inbox.List(c.Request.Context(), userID(c), boolQuery(c, "unread"), intQuery(c, "limit", 0), intQuery(c, "offset", 0))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, page)
}

func (s *Server) unreadCount(c *gin.Context) {
	n, err := s.deps.Inbox.UnreadCount(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"unread": n})
}

func (s *Server) markRead(c *gin.Context) {
	if err := s.deps.Inbox.MarkRead(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) markAllRead(c *gin.Context) {
	n, err := s.deps.Inbox.MarkAllRead(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"updated": n})
}

func (s *Server) deleteNotification(c *gin.Context) {
	if err := s.deps.Inbox.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
