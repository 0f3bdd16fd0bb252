package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/huangang/reviewbuddy/backend/internal/config"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
)

const (
	TaskTypeReview = "review:process"
)

// Task triggers.
const (
	TriggerImport    = "import"
	TriggerManual    = "manual"
	TriggerScheduler = "scheduler"
)

// uniqueWindow keeps a review from being queued twice while a run is pending.
const uniqueWindow = 10 * time.Minute

// ReviewTask asks for one review to be run through the processing pipeline.
type ReviewTask struct {
	ReviewID uint   `json:"review_id"`
	Trigger  string `json:"trigger"`
	UserID   *uint  `json:"user_id,omitempty"`
}

// TaskQueue defines the interface for review task processing
type TaskQueue interface {
	// Enqueue adds a task to the queue
	Enqueue(task *ReviewTask) error
	// IsAsync returns true if queue processes tasks asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

// Global task queue instance
var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue initializes the global task queue based on config
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Infof("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
				globalTaskQueue = NewSyncQueue()
			} else {
				logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalTaskQueue = queue
			}
		} else {
			logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
			globalTaskQueue = NewSyncQueue()
		}
	})
	return globalTaskQueue
}

// GetTaskQueue returns the global task queue instance
func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	// Test connection by pinging Redis
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	// Try to get queue info to verify connection
	_, err := inspector.Queues()
	if err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

// Enqueue adds a review task to the async queue. Runs are not retried:
// a second run would count the review twice in the day's health.
func (q *AsyncQueue) Enqueue(task *ReviewTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeReview, payload)
	info, err := q.client.Enqueue(t,
		asynq.Queue("default"),
		asynq.MaxRetry(0),
		asynq.Unique(uniqueWindow),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		logger.Infof("[AsyncQueue] Review %d already queued, skipping", task.ReviewID)
		return nil
	}
	if err != nil {
		return err
	}

	logger.Infof("[AsyncQueue] Task enqueued: id=%s, queue=%s, review=%d", info.ID, info.Queue, task.ReviewID)
	return nil
}

// IsAsync returns true for async queue
func (q *AsyncQueue) IsAsync() bool {
	return true
}

// Close closes the async queue client
func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue implements TaskQueue with synchronous processing (no Redis)
type SyncQueue struct {
	processor func(context.Context, *ReviewTask) error
}

// NewSyncQueue creates a new synchronous queue
func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// SetProcessor sets the function to process tasks synchronously
func (q *SyncQueue) SetProcessor(processor func(context.Context, *ReviewTask) error) {
	q.processor = processor
}

// Enqueue processes the task immediately in the current goroutine
func (q *SyncQueue) Enqueue(task *ReviewTask) error {
	if q.processor == nil {
		logger.Infof("[SyncQueue] Warning: no processor set, task will be dropped")
		return nil
	}

	// Process in a goroutine to not block the request
	go func() {
		ctx := context.Background()
		if err := q.processor(ctx, task); err != nil {
			logger.Warnf("[SyncQueue] Review %d processing failed: %v", task.ReviewID, err)
		}
	}()

	return nil
}

// IsAsync returns false for sync queue
func (q *SyncQueue) IsAsync() bool {
	return false
}

// Close is a no-op for sync queue
func (q *SyncQueue) Close() error {
	return nil
}
