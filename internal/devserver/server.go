// Package devserver is a self-contained backend for local development. It
// serves the same HTTP contract as the production research service on top
// of an in-memory index.
package devserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"studio/internal/index"
)

const (
	maxUploadBytes = 64 << 20
	uploadSource   = "PDF Upload"
)

// Extractor returns the plain text of a PDF document.
type Extractor func(data []byte) (string, error)

// Server exposes an index over HTTP.
type Server struct {
	idx     *index.Index
	extract Extractor
	log     *zap.Logger
}

// New returns a server over idx. A nil extract reads PDFs with ledongthuc/pdf.
func New(idx *index.Index, extract Extractor, log *zap.Logger) *Server {
	if extract == nil {
		extract = ExtractText
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{idx: idx, extract: extract, log: log}
}

// Handler builds the gin engine with the /api adapter routes and the legacy
// routes they wrap.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.MaxMultipartMemory = maxUploadBytes
	r.Use(gin.Recovery(), s.requestLog(), cors(), gzip.Gzip(gzip.DefaultCompression))

	api := r.Group("/api")
	api.POST("/upload", s.upload)
	api.POST("/chat", s.chat)
	api.GET("/library", s.library)
	api.GET("/analytics", s.analytics)

	r.POST("/ingest/pdf", s.ingest)
	r.POST("/chat/", s.legacyChat)
	r.GET("/papers/", s.papers)
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	return r
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dev server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info("dev server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("request_id", c.GetHeader("X-Request-Id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// fail writes the {"detail": ...} error body clients read.
func fail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// ExtractText concatenates the text of every page. Malformed documents that
// make the parser panic are reported as errors.
func ExtractText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	return string(b), nil
}

// ingestFile validates and indexes the uploaded "file" field. On failure it
// has already written the error response.
func (s *Server) ingestFile(c *gin.Context) (index.Paper, string, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusUnprocessableEntity, "file is required")
		return index.Paper{}, "", false
	}
	name := filepath.Base(fh.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		fail(c, http.StatusBadRequest, "Only PDF files are supported")
		return index.Paper{}, "", false
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "failed to open file")
		return index.Paper{}, "", false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		fail(c, http.StatusBadRequest, "failed to read file")
		return index.Paper{}, "", false
	}
	if !mimetype.Detect(data).Is("application/pdf") {
		fail(c, http.StatusBadRequest, "Only PDF files are supported")
		return index.Paper{}, "", false
	}

	text, err := s.extract(data)
	if err != nil {
		s.log.Warn("pdf text extraction failed", zap.String("file", name), zap.Error(err))
		text = ""
	}
	paper, err := s.idx.Add(name, uploadSource, text)
	if errors.Is(err, index.ErrNoText) {
		fail(c, http.StatusBadRequest, "No extractable text found in PDF")
		return index.Paper{}, "", false
	}
	if err != nil {
		s.log.Error("indexing failed", zap.String("file", name), zap.Error(err))
		fail(c, http.StatusInternalServerError, "indexing failed")
		return index.Paper{}, "", false
	}
	s.log.Info("paper ingested", zap.Int("paper_id", paper.ID), zap.String("file", name), zap.Int("chunks", paper.Chunks))
	return paper, name, true
}
