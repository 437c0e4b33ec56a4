package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/hvaudit/internal/core"
	"github.com/agenthands/hvaudit/internal/core/audit"
)

type Server struct {
	Auditor *core.Auditor
	Logger  *zap.Logger
}

func NewServer(a *core.Auditor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Auditor: a, Logger: logger}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", s.Health)

	v1 := r.Group("/v1")
	v1.POST("/classify", s.Classify)
	v1.POST("/resolve", s.Resolve)
	v1.POST("/blind", s.Blind)

	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.Logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
		)
	}
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type ClassifyRequest struct {
	Label string `json:"label" binding:"required"`
}

func (s *Server) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	kind, rule := s.Auditor.Classify(req.Label)
	c.JSON(http.StatusOK, gin.H{"label": req.Label, "kind": kind, "rule": rule})
}

type ResolveRequest struct {
	Reference    string `json:"reference"`
	CandidateOne string `json:"candidate_one"`
	CandidateTwo string `json:"candidate_two"`
}

func (s *Server) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	res, err := s.Auditor.Resolve(req.Reference, req.CandidateOne, req.CandidateTwo)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// BlindRequest runs the blind stage against files the server can read.
type BlindRequest struct {
	core.BlindInput
	NonStrict bool `json:"non_strict"`
}

func (s *Server) Blind(c *gin.Context) {
	var req BlindRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PrimaryMap == "" || req.Comparisons == "" || req.OutDir == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "primary_map, comparisons and out_dir are required"})
		return
	}
	policy := audit.StopAtFirst
	if req.NonStrict {
		policy = audit.CollectAll
	}
	report, err := s.Auditor.Blind(c.Request.Context(), req.BlindInput, policy)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// fail maps audit failures to 422 and everything else to 500.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if audit.IsAny(err) {
		status = http.StatusUnprocessableEntity
	}
	body := gin.H{"error": err.Error()}
	var multi *audit.MultiError
	if errors.As(err, &multi) {
		msgs := make([]string, len(multi.Errs))
		for i, e := range multi.Errs {
			msgs[i] = e.Error()
		}
		body["errors"] = msgs
	}
	s.Logger.Warn("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	c.JSON(status, body)
}
