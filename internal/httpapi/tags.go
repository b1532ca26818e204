package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ex-augmenter/pkg/augmenter"

	"github.com/gin-gonic/gin"
)

// updateTagSummary refreshes one tag summary, synchronously when the caller
// asks to wait and on a tracked goroutine otherwise.
func (s *Server) updateTagSummary(c *gin.Context) {
	documentID := strings.TrimSpace(c.Param("documentId"))
	if documentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid tag documentId"})
		return
	}

	ctx := c.Request.Context()
	if _, err := s.tags.FindTag(ctx, documentID); err != nil {
		if errors.Is(err, augmenter.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tag not found"})
			return
		}
		s.logger.Error("tag summary lookup failed", "document_id", documentID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if waitRequested(c.Query("wait")) {
		tag, err := s.summaries.UpdateTagSummary(ctx, documentID)
		if err != nil {
			s.logger.Error("tag summary update failed", "document_id", documentID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"data": tag,
			"meta": gin.H{"status": "done"},
		})
		return
	}

	queued := s.schedule("tag summary "+documentID, s.cfg.SummaryTimeout, func(ctx context.Context) error {
		if _, err := s.summaries.UpdateTagSummary(ctx, documentID); err != nil {
			return fmt.Errorf("update tag summary %s: %w", documentID, err)
		}
		return nil
	})
	if !queued {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server is shutting down"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"data": gin.H{"documentId": documentID, "status": "queued"},
	})
}

func waitRequested(raw string) bool {
	return raw == "true" || raw == "1"
}
