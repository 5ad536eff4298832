package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/ingestion"
	"github.com/poiesic/lexsync/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type documentResponse struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	FileName      string         `json:"file_name"`
	FilePath      string         `json:"file_path"`
	FileType      string         `json:"file_type"`
	Status        core.Status    `json:"status"`
	PIIStatus     core.PIIStatus `json:"pii_status"`
	Summary       *string        `json:"summary"`
	ExtractedText *string        `json:"extracted_text,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	OwnerID       string         `json:"owner_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func toResponse(rec *core.DocumentRecord, withText bool) documentResponse {
	resp := documentResponse{
		ID:        rec.ID,
		Title:     rec.Title,
		FileName:  rec.FileName,
		FilePath:  rec.FilePath,
		FileType:  rec.FileType,
		Status:    rec.Status,
		PIIStatus: rec.PIIStatus,
		Summary:   rec.Summary,
		Metadata:  rec.Metadata,
		OwnerID:   rec.OwnerID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if withText {
		resp.ExtractedText = rec.ExtractedText
	}
	return resp
}

type hitResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	FileName   string    `json:"file_name"`
	FileType   string    `json:"file_type"`
	Court      string    `json:"court,omitempty"`
	DateFiled  time.Time `json:"date_filed,omitzero"`
	Score      float64   `json:"score"`
	Highlights []string  `json:"highlights"`
}

type searchResponse struct {
	Hits     []hitResponse  `json:"hits"`
	Total    int            `json:"total"`
	Facets   storage.Facets `json:"facets"`
	Degraded bool           `json:"degraded,omitempty"`
}

func (s *Server) upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	if fh.Size > s.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if int64(len(data)) > s.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document too large"})
		return
	}

	rec, err := s.ingestor.IngestUpload(c.Request.Context(), ingestion.Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
		Title:       c.PostForm("title"),
		OwnerID:     c.PostForm("owner_id"),
	})
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, toResponse(rec, false))
	case errors.Is(err, ingestion.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrEmptyFileName), errors.Is(err, ingestion.ErrEmptyDocument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ingestion.ErrPersistence):
		s.log(c).Error("upload not persisted", "file", fh.Filename, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "document could not be stored, retry later"})
	default:
		s.log(c).Error("upload failed", "file", fh.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
	}
}

func (s *Server) getDocument(c *gin.Context) {
	rec, err := s.metadata.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	if err != nil {
		s.log(c).Error("reading document", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metadata store unavailable"})
		return
	}
	c.JSON(http.StatusOK, toResponse(rec, c.Query("include_text") == "true"))
}

func (s *Server) listDocuments(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	limit = min(limit, maxListLimit)

	var recs []*core.DocumentRecord
	if status := core.Status(c.Query("status")); status != "" {
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		recs, err = s.metadata.ListByStatus(c.Request.Context(), status)
		if err == nil {
			recs = page(recs, offset, limit)
		}
	} else {
		recs, err = s.metadata.List(c.Request.Context(), offset, limit)
	}
	if err != nil {
		s.log(c).Error("listing documents", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metadata store unavailable"})
		return
	}
	out := make([]documentResponse, len(recs))
	for i, rec := range recs {
		out[i] = toResponse(rec, false)
	}
	c.JSON(http.StatusOK, gin.H{"documents": out, "count": len(out)})
}

// page applies offset and limit to an already loaded listing.
func page(recs []*core.DocumentRecord, offset, limit int) []*core.DocumentRecord {
	if offset >= len(recs) {
		return nil
	}
	return recs[offset:min(offset+limit, len(recs))]
}

func (s *Server) search(c *gin.Context) {
	q := storage.Query{
		Text:  c.Query("q"),
		Court: c.Query("court"),
	}
	if ft := c.QueryArray("file_type"); len(ft) > 0 {
		q.FileTypes = ft
	}
	var err error
	if q.Size, err = queryInt(c, "size", storage.DefaultSearchSize); err != nil || q.Size < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid size"})
		return
	}
	if q.FiledAfter, err = queryDate(c, "filed_after"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filed_after must be YYYY-MM-DD"})
		return
	}
	if q.FiledBefore, err = queryDate(c, "filed_before"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filed_before must be YYYY-MM-DD"})
		return
	}

	res, err := s.index.Search(c.Request.Context(), q)
	if err != nil {
		s.log(c).Warn("search degraded", "error", err)
		c.JSON(http.StatusOK, searchResponse{Hits: []hitResponse{}, Degraded: true})
		return
	}
	out := searchResponse{Hits: make([]hitResponse, len(res.Hits)), Total: res.Total, Facets: res.Facets}
	for i, h := range res.Hits {
		out.Hits[i] = hitResponse{
			ID:         h.ID,
			Title:      h.Title,
			FileName:   h.FileName,
			FileType:   h.FileType,
			Court:      h.Court,
			DateFiled:  h.DateFiled,
			Score:      h.Score,
			Highlights: h.Highlights,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) suggest(c *gin.Context) {
	suggestions, err := s.index.Suggest(c.Request.Context(), c.Query("prefix"), suggestLimit)
	if err != nil {
		s.log(c).Warn("suggest degraded", "error", err)
		suggestions = nil
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (s *Server) sync(c *gin.Context) {
	if s.reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciliation not configured"})
		return
	}
	run := s.reconciler.Run
	if c.Query("dry_run") == "true" {
		run = s.reconciler.DryRun
	}
	report, err := run(c.Request.Context())
	if err != nil {
		s.log(c).Error("reconciliation failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func queryDate(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, raw)
}
