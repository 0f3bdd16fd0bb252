package services

import (
	"sync"

	"github.com/huangang/reviewbuddy/backend/internal/models"
)

const (
	EventTypeReview = "review"
	EventTypeImport = "import"
)

// ImportProgress reports where a review import stands.
type ImportProgress struct {
	Stage    string `json:"stage"` // started, completed, failed
	Source   string `json:"source"`
	Trigger  string `json:"trigger,omitempty"`
	Fetched  int    `json:"fetched,omitempty"`
	New      int    `json:"new,omitempty"`
	Updated  int    `json:"updated,omitempty"`
	Error    string `json:"error,omitempty"`
	Location string `json:"location,omitempty"`
}

// ReviewEvent is a real-time dashboard event: either a review changed state
// or an import made progress.
type ReviewEvent struct {
	Type       string              `json:"type"`
	ID         uint                `json:"id,omitempty"`
	Status     models.ReviewStatus `json:"status,omitempty"`
	Decision   *models.Decision    `json:"decision,omitempty"`
	Confidence int                 `json:"confidence,omitempty"`
	Error      string              `json:"error,omitempty"`
	Import     *ImportProgress     `json:"import,omitempty"`
}

// SSEHub manages SSE client connections and event broadcasting
type SSEHub struct {
	clients map[string]chan ReviewEvent
	mu      sync.RWMutex
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]chan ReviewEvent),
	}
}

// Subscribe registers a new client and returns a channel for receiving events
func (h *SSEHub) Subscribe(clientID string) <-chan ReviewEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan ReviewEvent, 100)
	h.clients[clientID] = ch
	return ch
}

func (h *SSEHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish broadcasts an event to all connected clients
func (h *SSEHub) Publish(event ReviewEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		// Non-blocking send - drop event if client buffer is full
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var globalSSEHub *SSEHub
var sseHubOnce sync.Once

// GetSSEHub returns the global SSE hub singleton
func GetSSEHub() *SSEHub {
	sseHubOnce.Do(func() {
		globalSSEHub = NewSSEHub()
	})
	return globalSSEHub
}

// PublishReviewEvent announces the current state of a review.
func PublishReviewEvent(review *models.Review, errMsg string) {
	GetSSEHub().Publish(ReviewEvent{
		Type:       EventTypeReview,
		ID:         review.ID,
		Status:     review.Status,
		Decision:   review.Decision,
		Confidence: review.ConfidenceScore,
		Error:      errMsg,
	})
}

func PublishImportEvent(progress ImportProgress) {
	GetSSEHub().Publish(ReviewEvent{Type: EventTypeImport, Import: &progress})
}
