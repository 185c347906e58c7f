// Package journal manages daily journal entries and their images.
package journal

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/logging"
	"tradelens/internal/models"
	"tradelens/internal/store"
)

// DateLayout is the format of journal dates.
const DateLayout = "2006-01-02"

// DefaultMaxImageBytes is used when no limit is configured.
const DefaultMaxImageBytes = 5 << 20

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Service implements the journal operations.
type Service struct {
	store    store.DataStore
	images   ImageStore
	maxBytes int64
	logger   zerolog.Logger
}

// NewService creates a journal service.
func NewService(ds store.DataStore, images ImageStore, maxBytes int64, logger zerolog.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &Service{
		store:    ds,
		images:   images,
		maxBytes: maxBytes,
		logger:   logging.WithOperation(logger, "journal"),
	}
}

// EntryInput creates or replaces the entry of a date.
type EntryInput struct {
	Date    string   `json:"date"`
	Content string   `json:"content"`
	Mood    string   `json:"mood"`
	Tags    []string `json:"tags"`
}

// SaveEntry writes the entry of in.Date, updating it when it already exists.
func (s *Service) SaveEntry(ctx context.Context, userID string, in EntryInput) (*models.JournalEntry, error) {
	if _, err := time.Parse(DateLayout, in.Date); err != nil {
		return nil, apperrors.NewValidationError("date", in.Date, "must be YYYY-MM-DD")
	}
	if len(in.Mood) > 32 {
		return nil, apperrors.NewValidationError("mood", in.Mood, "must be at most 32 characters")
	}

	tags := models.StringList{}
	for _, t := range in.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" && !tags.Contains(t) {
			tags = append(tags, t)
		}
	}

	e := &models.JournalEntry{
		UserID:  userID,
		Date:    in.Date,
		Content: in.Content,
		Mood:    strings.TrimSpace(in.Mood),
		Tags:    tags,
	}
	if err := s.store.SaveJournalEntry(ctx, e); err != nil {
		return nil, err
	}
	return s.withImages(ctx, e)
}

// GetEntry returns an entry with its images.
func (s *Service) GetEntry(ctx context.Context, userID, id string) (*models.JournalEntry, error) {
	e, err := s.store.GetJournalEntry(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.withImages(ctx, e)
}

// GetEntryByDate returns the entry of a date.
func (s *Service) GetEntryByDate(ctx context.Context, userID, date string) (*models.JournalEntry, error) {
	e, err := s.store.GetJournalEntryByDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	return s.withImages(ctx, e)
}

func (s *Service) withImages(ctx context.Context, e *models.JournalEntry) (*models.JournalEntry, error) {
	images, err := s.store.ListJournalImages(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	e.Images = images
	return e, nil
}

// ListEntries returns the user's entries, newest date first.
func (s *Service) ListEntries(ctx context.Context, userID string, filter store.JournalFilter) ([]models.JournalEntry, error) {
	filter.UserID = userID
	return s.store.ListJournalEntries(ctx, filter)
}

// DeleteEntry removes an entry and the files of its images.
func (s *Service) DeleteEntry(ctx context.Context, userID, id string) error {
	if _, err := s.store.GetJournalEntry(ctx, userID, id); err != nil {
		return err
	}
	images, err := s.store.ListJournalImages(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteJournalEntry(ctx, userID, id); err != nil {
		return err
	}
	for _, img := range images {
		if err := s.images.Delete(ctx, img.Path); err != nil {
			s.logger.Warn().Err(err).Str("path", img.Path).Msg("Failed to delete image file")
		}
	}
	return nil
}

// UploadImage stores an image for an entry. The content type is sniffed from
// the data; declared is only used when sniffing is inconclusive.
func (s *Service) UploadImage(ctx context.Context, userID, entryID, declared string, r io.Reader) (*models.JournalImage, error) {
	if _, err := s.store.GetJournalEntry(ctx, userID, entryID); err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, apperrors.Wrap(err, "reading upload")
	}
	if len(head) == 0 {
		return nil, apperrors.NewValidationError("file", "", "is empty")
	}
	contentType := http.DetectContentType(head)
	if contentType == "application/octet-stream" && declared != "" {
		contentType = declared
	}
	contentType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	ext, ok := imageExtensions[contentType]
	if !ok {
		return nil, apperrors.NewValidationError("content_type", contentType, "must be png, jpeg, webp or gif")
	}

	img := &models.JournalImage{
		ID:          uuid.NewString(),
		JournalID:   entryID,
		UserID:      userID,
		ContentType: contentType,
	}
	img.Path = userID + "/" + entryID + "/" + img.ID + ext
	img.URL = s.images.URL(img.Path)

	limited := &maxReader{r: br, remaining: s.maxBytes}
	n, err := s.images.Put(ctx, img.Path, limited)
	if limited.exceeded {
		_ = s.images.Delete(ctx, img.Path)
		return nil, apperrors.NewValidationError("file", "", "exceeds the size limit")
	}
	if err != nil {
		return nil, err
	}
	img.Size = n

	if err := s.store.AddJournalImage(ctx, img); err != nil {
		_ = s.images.Delete(ctx, img.Path)
		return nil, err
	}
	s.logger.Debug().Str("image_id", img.ID).Int64("size", n).Str("content_type", contentType).Msg("Journal image stored")
	return img, nil
}

// DeleteImage removes an image row and its file.
func (s *Service) DeleteImage(ctx context.Context, userID, id string) error {
	img, err := s.store.GetJournalImage(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteJournalImage(ctx, userID, id); err != nil {
		return err
	}
	return s.images.Delete(ctx, img.Path)
}

// maxReader fails once more than remaining bytes are read.
type maxReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

var errTooLarge = apperrors.New("upload too large")

func (m *maxReader) Read(p []byte) (int, error) {
	if m.remaining < 0 {
		m.exceeded = true
		return 0, errTooLarge
	}
	if int64(len(p)) > m.remaining+1 {
		p = p[:m.remaining+1]
	}
	n, err := m.r.Read(p)
	m.remaining -= int64(n)
	if m.remaining < 0 {
		m.exceeded = true
		return n, errTooLarge
	}
	return n, err
}
