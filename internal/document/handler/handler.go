package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/evault/evault/internal/apperr"
	"github.com/evault/evault/internal/document"
	"github.com/evault/evault/internal/document/service"
	"github.com/evault/evault/pkg/logger"
	"github.com/evault/evault/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// multipartOverhead is allowed on top of the file limit for form fields and
// part headers.
const multipartOverhead = 1 << 20

// Options configures the document routes.
type Options struct {
	// MaxUploadBytes must match the service's limit.
	MaxUploadBytes int64
}

type handler struct {
	svc       service.Service
	maxUpload int64
	log       *logger.Logger
}

// RegisterDocumentRoutes mounts the document API on rg. Authentication is
// expected to run before these handlers.
func RegisterDocumentRoutes(rg gin.IRouter, svc service.Service, opts Options) {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = service.DefaultConfig().MaxUploadBytes
	}
	h := &handler{svc: svc, maxUpload: opts.MaxUploadBytes, log: logger.Named("http.documents")}

	g := rg.Group("/api/documents")
	g.POST("/upload", h.upload)
	g.GET("", h.list)
	g.GET("/search", h.search)
	g.GET("/download/:id", h.download)
	g.POST("/verify/:id", h.verify)
	g.POST("/share", h.share)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.updateMetadata)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/version", h.replaceContent)
	g.GET("/:id/versions", h.versions)
	g.GET("/:id/comments", h.comments)
	g.POST("/:id/comments", h.addComment)
}

// fail writes err as {"error": message}. Server-side failures are logged and
// reported with a generic message.
func (h *handler) fail(c *gin.Context, err error, fallback string) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": apperr.PublicMessage(err, fallback)})
}

func (h *handler) upload(c *gin.Context) {
	file, err := h.readFile(c)
	if err != nil {
		h.fail(c, err, "Error uploading document")
		return
	}
	in := service.UploadInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Category:    c.PostForm("category"),
		Tags:        splitTags(c.PostFormArray("tags")),
		File:        file,
	}
	if raw := strings.TrimSpace(c.PostForm("expiryDate")); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			h.fail(c, apperr.Validation("expiryDate: invalid date"), "")
			return
		}
		in.ExpiryDate = &t
	}
	d, err := h.svc.Upload(c.Request.Context(), middleware.PrincipalFrom(c), in)
	if err != nil {
		h.fail(c, err, "Error uploading document")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Document uploaded successfully", "document": d})
}

// readFile reads the "file" part, bounded by the configured upload limit.
func (h *handler) readFile(c *gin.Context) (service.FileInput, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return service.FileInput{}, apperr.Validation(fmt.Sprintf("file exceeds the %d byte limit", h.maxUpload))
		}
		return service.FileInput{}, apperr.Validation("file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return service.FileInput{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	// one byte past the limit is enough for the service to reject it
	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return service.FileInput{}, fmt.Errorf("read upload: %w", err)
	}
	return service.FileInput{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}

func (h *handler) list(c *gin.Context) {
	docs, err := h.svc.List(c.Request.Context(), middleware.PrincipalFrom(c))
	if err != nil {
		h.fail(c, err, "Error fetching documents")
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *handler) search(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		h.fail(c, err, "")
		return
	}
	docs, err := h.svc.Search(c.Request.Context(), middleware.PrincipalFrom(c), f)
	if err != nil {
		h.fail(c, err, "Error searching documents")
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *handler) get(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Error fetching document")
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) download(c *gin.Context) {
	d, rc, err := h.svc.Download(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Error downloading document")
		return
	}
	defer rc.Close()
	name := d.FileName
	if name == "" {
		name = d.Title
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	contentType := d.FileType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	// length unknown: the blob may no longer match FileSize
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}

func (h *handler) verify(c *gin.Context) {
	res, err := h.svc.Verify(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Error verifying document")
		return
	}
	msg := "Document verification failed"
	if res.Verified {
		msg = "Document is authentic"
	}
	c.JSON(http.StatusOK, gin.H{"verified": res.Verified, "status": res.Document.Status, "message": msg})
}

func (h *handler) share(c *gin.Context) {
	var req struct {
		DocumentID string `json:"documentId"`
		UserID     string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("invalid request body"), "")
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" || strings.TrimSpace(req.UserID) == "" {
		h.fail(c, apperr.Validation("documentId and userId are required"), "")
		return
	}
	d, err := h.svc.Share(c.Request.Context(), middleware.PrincipalFrom(c), req.DocumentID, req.UserID)
	if err != nil {
		h.fail(c, err, "Error sharing document")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document shared successfully", "sharedWith": d.SharedWith})
}

func (h *handler) updateMetadata(c *gin.Context) {
	var in service.MetadataInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, apperr.Validation("invalid request body"), "")
		return
	}
	d, err := h.svc.UpdateMetadata(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"), in)
	if err != nil {
		h.fail(c, err, "Error updating document")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document updated successfully", "document": d})
}

func (h *handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id")); err != nil {
		h.fail(c, err, "Error deleting document")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully"})
}

func (h *handler) replaceContent(c *gin.Context) {
	file, err := h.readFile(c)
	if err != nil {
		h.fail(c, err, "Error updating version")
		return
	}
	d, err := h.svc.ReplaceContent(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"), file)
	if err != nil {
		h.fail(c, err, "Error updating version")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Version updated successfully", "document": d})
}

func (h *handler) versions(c *gin.Context) {
	vs, err := h.svc.Versions(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Error fetching versions")
		return
	}
	c.JSON(http.StatusOK, vs)
}

func (h *handler) comments(c *gin.Context) {
	cs, err := h.svc.Comments(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Error fetching comments")
		return
	}
	c.JSON(http.StatusOK, cs)
}

func (h *handler) addComment(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("invalid request body"), "")
		return
	}
	cm, err := h.svc.Comment(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"), req.Content)
	if err != nil {
		h.fail(c, err, "Error adding comment")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Comment added successfully", "comment": cm})
}

// parseFilter reads the search query string. Unknown category or status
// values are rejected rather than ignored.
func parseFilter(c *gin.Context) (document.Filter, error) {
	f := document.Filter{SearchTerm: c.Query("searchTerm")}
	if v := strings.TrimSpace(c.Query("category")); v != "" && !strings.EqualFold(v, "all") {
		cat, err := document.ParseCategory(v)
		if err != nil {
			return f, apperr.Validation("category: unknown value")
		}
		f.Category = &cat
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" && !strings.EqualFold(v, "all") {
		st, err := document.ParseStatus(v)
		if err != nil {
			return f, apperr.Validation("status: unknown value")
		}
		f.Status = &st
	}
	if v := c.Query("tags"); v != "" {
		f.Tags = splitTags([]string{v})
	}
	if v := strings.TrimSpace(c.Query("startDate")); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, apperr.Validation("startDate: invalid date")
		}
		f.StartDate = &t
	}
	if v := strings.TrimSpace(c.Query("endDate")); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, apperr.Validation("endDate: invalid date")
		}
		if dateOnly(v, t) {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		f.EndDate = &t
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return f, apperr.Validation("endDate must not be before startDate")
	}
	return f, nil
}

// parseDate accepts the formats dateparse understands and unix seconds or
// milliseconds. Times without a zone are UTC.
func parseDate(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) >= 10 {
		if len(s) >= 13 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func dateOnly(raw string, t time.Time) bool {
	if strings.Contains(raw, ":") {
		return false
	}
	h, m, sec := t.Clock()
	return h == 0 && m == 0 && sec == 0 && t.Nanosecond() == 0
}

// splitTags accepts repeated values and comma separated lists.
func splitTags(values []string) []string {
	var out []string
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}
