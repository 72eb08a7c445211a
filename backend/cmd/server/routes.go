package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"reqgraph/backend/internal/document"
	"reqgraph/backend/internal/engine"
	"reqgraph/backend/internal/source"
	"reqgraph/backend/internal/triples"
	apperrors "reqgraph/backend/pkg/errors"
)

// maxBodyBytes caps uploaded models and documents.
const maxBodyBytes = 32 << 20

type server struct {
	engine   *engine.Engine
	ingestor *engine.Ingestor
	opener   *source.Opener
	log      *zap.Logger

	// ingestRoot confines the local paths callers may name; empty allows
	// only s3 URIs.
	ingestRoot string
}

type questionRequest struct {
	Question string `json:"question" binding:"required"`
}

type documentRequest struct {
	URI     string `json:"uri"`
	Source  string `json:"source"`
	Text    string `json:"text"`
	Extract bool   `json:"extract"`
}

func newRouter(s *server) *gin.Engine {
	router := gin.New()
	router.Use(otelgin.Middleware("reqgraph"))
	router.Use(ginLogger(s.log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		api.POST("/query", s.query)
		api.POST("/retrieve", s.retrieve)
		api.GET("/stats", s.stats)

		ingest := api.Group("/ingest")
		ingest.POST("/triples", s.ingestTriples)
		ingest.POST("/model", s.ingestModel)
		ingest.POST("/documents", s.ingestDocument)
	}
	return router
}

func (s *server) query(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := s.engine.Answer(c.Request.Context(), req.Question)
	if err != nil {
		s.fail(c, "Failed to answer question", err)
		return
	}
	c.Header("X-Request-ID", answer.RequestID)
	c.JSON(http.StatusOK, answer)
}

func (s *server) retrieve(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := s.engine.Retrieve(c.Request.Context(), req.Question)
	if err != nil {
		s.fail(c, "Failed to retrieve evidence", err)
		return
	}
	c.Header("X-Request-ID", r.RequestID)
	c.JSON(http.StatusOK, r)
}

func (s *server) stats(c *gin.Context) {
	st, passages, err := s.engine.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, "Failed to read stats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"nodes":         st.Nodes,
		"relationships": st.Relationships,
		"passages":      passages,
	})
}

func (s *server) ingestTriples(c *gin.Context) {
	ts, err := triples.Decode(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := s.ingestor.IngestTriples(c.Request.Context(), ts)
	if err != nil {
		s.fail(c, "Failed to ingest triples", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ingestModel takes the model from the request body, or from ?uri= when the
// model lives in a bucket or under the ingest root.
func (s *server) ingestModel(c *gin.Context) {
	ctx := c.Request.Context()
	uri := c.Query("uri")
	name := c.DefaultQuery("source", "upload")

	var data []byte
	var err error
	if uri != "" {
		name = uri
		data, err = s.readInput(ctx, uri)
	} else {
		data, err = io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := s.ingestor.IngestModel(ctx, name, data)
	if err != nil {
		s.fail(c, "Failed to ingest model", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *server) ingestDocument(c *gin.Context) {
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc, err := s.loadDocument(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := s.ingestor.IngestDocument(c.Request.Context(), doc, req.Extract)
	if err != nil {
		s.fail(c, "Failed to ingest document", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *server) loadDocument(ctx context.Context, req documentRequest) (*document.Document, error) {
	switch {
	case req.URI != "":
		data, err := s.readInput(ctx, req.URI)
		if err != nil {
			return nil, err
		}
		name := req.Source
		if name == "" {
			name = source.Name(req.URI)
		}
		return document.Load(name, data)
	case strings.TrimSpace(req.Text) != "":
		name := req.Source
		if name == "" {
			name = "upload"
		}
		return document.Load(name, []byte(req.Text))
	default:
		return nil, errors.New("either uri or text is required")
	}
}

// readInput reads a caller-named input after confining it to s3 or the
// ingest root.
func (s *server) readInput(ctx context.Context, uri string) ([]byte, error) {
	p, err := source.Confine(s.ingestRoot, uri)
	if err != nil {
		s.log.Warn("Refused ingest input", zap.String("uri", uri), zap.Error(err))
		return nil, err
	}
	return s.opener.ReadFile(ctx, p)
}

// fail logs err and writes the status matching its kind.
func (s *server) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(msg, zap.Error(err))
	} else {
		s.log.Warn(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case apperrors.IsErrorType(err, apperrors.ErrorTypeParse),
		apperrors.IsErrorType(err, apperrors.ErrorTypeValidation):
		return http.StatusBadRequest
	case apperrors.IsErrorType(err, apperrors.ErrorTypeStoreUnavailable):
		return http.StatusServiceUnavailable
	case apperrors.IsErrorType(err, apperrors.ErrorTypeLLM):
		return http.StatusBadGateway
	case apperrors.IsErrorType(err, apperrors.ErrorTypeContext):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
