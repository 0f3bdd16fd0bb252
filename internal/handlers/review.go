package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

type ReviewHandler struct {
	db        *gorm.DB
	reviews   *services.ReviewService
	processor *services.ReviewProcessor
	queue     services.TaskQueue
}

func NewReviewHandler(db *gorm.DB, reviews *services.ReviewService, processor *services.ReviewProcessor, queue services.TaskQueue) *ReviewHandler {
	return &ReviewHandler{
		db:        db,
		reviews:   reviews,
		processor: processor,
		queue:     queue,
	}
}

func (h *ReviewHandler) List(c *gin.Context) {
	var req services.ReviewListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	page, err := h.reviews.List(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, page)
}

func (h *ReviewHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "review")
	if !ok {
		return
	}

	detail, err := h.reviews.Get(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

// Update handles PATCH /api/reviews/:id.
func (h *ReviewHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "review")
	if !ok {
		return
	}

	var req services.UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	review, err := h.reviews.Update(id, &req, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, review)
}

func (h *ReviewHandler) Publish(c *gin.Context) {
	id, ok := parseID(c, "review")
	if !ok {
		return
	}

	var req services.PublishRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	brand, ok := activeBrand(c, h.db)
	if !ok {
		return
	}

	review, err := h.reviews.Publish(c.Request.Context(), id, brand, &req, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, review)
}

// Process handles POST /api/reviews/:id/process. Validation failures are
// answered as JSON; once the run starts, progress is streamed as SSE frames.
// A completed run ends with [DONE]; an aborted one ends at its error frame.
func (h *ReviewHandler) Process(c *gin.Context) {
	id, ok := parseID(c, "review")
	if !ok {
		return
	}

	run, err := h.processor.Prepare(id, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	log := logger.Review("handler", id)
	setSSEHeaders(c)
	c.Status(http.StatusOK)

	events := h.processor.Run(c.Request.Context(), run)
	clientGone, aborted := false, false
	for event := range events {
		aborted = event.Status == services.StepError
		if clientGone {
			continue
		}
		if err := writeSSE(c.Writer, event); err != nil {
			log.Warn().Err(err).Msg("Client left the progress stream")
			clientGone = true
			continue
		}
		c.Writer.Flush()
	}
	if clientGone || aborted {
		return
	}
	if _, err := io.WriteString(c.Writer, "data: [DONE]\n\n"); err == nil {
		c.Writer.Flush()
	}
}

// ProcessNew queues every review still in status new.
func (h *ReviewHandler) ProcessNew(c *gin.Context) {
	queued, err := h.reviews.QueueNew(h.queue, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"queued": queued,
		"async":  h.queue.IsAsync(),
	})
}
