package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ex-augmenter/internal/store/strapi"
	"ex-augmenter/pkg/augmenter"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var webhookKinds = map[string]augmenter.EventKind{
	"entry.create":    augmenter.EventKindEntryCreated,
	"entry.update":    augmenter.EventKindEntryUpdated,
	"entry.publish":   augmenter.EventKindEntryPublished,
	"entry.unpublish": augmenter.EventKindEntryUnpublished,
	"entry.delete":    augmenter.EventKindEntryDeleted,
}

type webhookPayload struct {
	Event     string          `json:"event"`
	CreatedAt string          `json:"createdAt"`
	Model     string          `json:"model"`
	UID       string          `json:"uid"`
	Entry     json.RawMessage `json:"entry"`
}

func (p webhookPayload) contentType() augmenter.ContentType {
	if p.UID != "" {
		return augmenter.ContentType(p.UID)
	}
	if p.Model == "" {
		return ""
	}

	return augmenter.ContentType("api::" + p.Model + "." + p.Model)
}

// receiveWebhook turns one platform webhook into a lifecycle event.
func (s *Server) receiveWebhook(c *gin.Context) {
	sink := s.currentSink()
	if sink == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ingress is not running"})
		return
	}

	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return
	}

	kind, known := webhookKinds[payload.Event]
	if !known {
		ignored(c, "unsupported event")
		return
	}
	contentType := payload.contentType()
	if !contentType.IsAPI() {
		ignored(c, "unsupported model")
		return
	}

	entry, err := strapi.DecodeEntry(contentType, payload.Entry)
	if err != nil {
		s.logger.Warn("webhook entry rejected", "event", payload.Event, "content_type", contentType, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook entry"})
		return
	}

	event := &augmenter.Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		OccurredAt: s.occurredAt(payload.CreatedAt),
		Source:     s.name,
		Entry:      entry,
	}

	ctx := c.Request.Context()
	echoed := false
	if s.echo != nil {
		opts, ok := s.echo.ConsumeEcho(contentType, entry.DocumentID)
		if ok && opts.SuppressEvents {
			ignored(c, "suppressed")
			return
		}
		if ok {
			echoed = true
			event.Context = opts.Context
		}
	}
	if !echoed && s.replayer != nil {
		if err := s.replayer.replay(ctx, event); err != nil {
			s.logger.Error("write hook replay failed",
				"event_id", event.ID,
				"content_type", contentType,
				"document_id", entry.DocumentID,
				"error", err,
			)
		}
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()
	if err := sink.Publish(publishCtx, event); err != nil {
		s.logger.Error("webhook publish failed", "event_id", event.ID, "kind", event.Kind, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, augmenter.ErrEventDropped) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"data": gin.H{"id": event.ID, "status": "accepted"},
	})
}

func (s *Server) occurredAt(raw string) time.Time {
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed
	}

	return s.clock()
}

func ignored(c *gin.Context, reason string) {
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{"status": "ignored", "reason": reason},
	})
}
