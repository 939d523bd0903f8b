package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/collab/internal/access"
	"github.com/gogotex/gogotex/backend/collab/internal/collab"
	"github.com/gogotex/gogotex/backend/collab/internal/compile"
	"github.com/gogotex/gogotex/backend/collab/internal/document"
	"github.com/gogotex/gogotex/backend/collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab/pkg/middleware"
)

// Service is the set of document operations the HTTP layer calls.
type Service interface {
	CreateDocument(ctx context.Context, title, password string) (*document.Document, error)
	DocumentInfo(ctx context.Context, id string) (*collab.Info, error)
	IssueTicket(ctx context.Context, id, credential string) (string, time.Duration, error)
	ChangeCredential(ctx context.Context, id, current, next string) error
	RequireAccess(ctx context.Context, id, ticket string) error
	ListVersions(ctx context.Context, id string, limit int) ([]*document.Version, error)
	GetVersion(ctx context.Context, versionID string) (*document.Version, error)
	GetJob(ctx context.Context, jobID string) (*compile.Job, error)
}

func RegisterDocumentRoutes(r gin.IRouter, svc Service) {
	r.POST("/api/documents", func(c *gin.Context) {
		var req struct {
			Title    string `json:"title"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d, err := svc.CreateDocument(c.Request.Context(), req.Title, req.Password)
		if err != nil {
			logger.Errorf("handler: create document: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create document"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"documentId": d.ID, "title": d.Title})
	})

	r.GET("/api/documents/:id", func(c *gin.Context) {
		info, err := svc.DocumentInfo(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	})

	r.POST("/api/documents/:id/join", func(c *gin.Context) {
		var req struct {
			Password string `json:"password"`
		}
		// an empty body is a join without password
		_ = c.ShouldBindJSON(&req)
		ticket, ttl, err := svc.IssueTicket(c.Request.Context(), c.Param("id"), req.Password)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ticket": ticket, "expiresIn": int(ttl.Seconds())})
	})

	r.PUT("/api/documents/:id/password", func(c *gin.Context) {
		var req struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.ChangeCredential(c.Request.Context(), c.Param("id"), req.CurrentPassword, req.NewPassword); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/api/documents/:id/versions", middleware.TicketAuth(svc, "id"), func(c *gin.Context) {
		limit := collab.DefaultVersionLimit
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		list, err := svc.ListVersions(c.Request.Context(), c.Param("id"), limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.GET("/api/versions/:versionId", func(c *gin.Context) {
		token, err := middleware.BearerToken(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		v, err := svc.GetVersion(c.Request.Context(), c.Param("versionId"))
		if err != nil {
			writeError(c, err)
			return
		}
		if err := svc.RequireAccess(c.Request.Context(), v.DocumentID, token); err != nil {
			middleware.AbortWithAccessError(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	})

	// the job carries the artifact URL, so it follows the document's ticket rule
	r.GET("/api/compile/:jobId", func(c *gin.Context) {
		token, err := middleware.BearerToken(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		job, err := svc.GetJob(c.Request.Context(), c.Param("jobId"))
		if err != nil {
			writeError(c, err)
			return
		}
		if err := svc.RequireAccess(c.Request.Context(), job.DocumentID, token); err != nil {
			middleware.AbortWithAccessError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, document.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
	case errors.Is(err, document.ErrVersionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Version not found"})
	case errors.Is(err, compile.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Compile job not found"})
	case errors.Is(err, access.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
	default:
		logger.Errorf("handler: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
