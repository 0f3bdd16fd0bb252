package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestTaskTypeReview_Constant(t *testing.T) {
	if TaskTypeReview != "review:process" {
		t.Errorf("TaskTypeReview = %q, expected %q", TaskTypeReview, "review:process")
	}
}

func TestReviewTask_JSON(t *testing.T) {
	userID := uint(3)
	task := ReviewTask{ReviewID: 42, Trigger: TriggerManual, UserID: &userID}

	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"review_id":42,"trigger":"manual","user_id":3}`
	if string(data) != want {
		t.Errorf("payload = %s, expected %s", data, want)
	}

	data, _ = json.Marshal(ReviewTask{ReviewID: 1, Trigger: TriggerImport})
	if string(data) != `{"review_id":1,"trigger":"import"}` {
		t.Errorf("user_id should be omitted when nil, got %s", data)
	}
}

func TestSyncQueue_New(t *testing.T) {
	queue := NewSyncQueue()
	if queue == nil {
		t.Error("NewSyncQueue should not return nil")
	}
}

func TestSyncQueue_IsAsync(t *testing.T) {
	queue := NewSyncQueue()
	if queue.IsAsync() {
		t.Error("SyncQueue.IsAsync() should return false")
	}
}

func TestSyncQueue_Close(t *testing.T) {
	queue := NewSyncQueue()
	err := queue.Close()
	if err != nil {
		t.Errorf("SyncQueue.Close() should return nil, got %v", err)
	}
}

func TestSyncQueue_EnqueueWithoutProcessor(t *testing.T) {
	queue := NewSyncQueue()
	task := &ReviewTask{ReviewID: 1, Trigger: TriggerImport}

	err := queue.Enqueue(task)
	if err != nil {
		t.Errorf("Enqueue without processor should not error, got %v", err)
	}
}

func TestSyncQueue_SetProcessor(t *testing.T) {
	queue := NewSyncQueue()

	queue.SetProcessor(func(ctx context.Context, task *ReviewTask) error {
		return nil
	})

	if queue.processor == nil {
		t.Error("processor should be set")
	}
}

func TestSyncQueue_EnqueueRunsProcessor(t *testing.T) {
	queue := NewSyncQueue()
	got := make(chan uint, 1)
	queue.SetProcessor(func(ctx context.Context, task *ReviewTask) error {
		got <- task.ReviewID
		return nil
	})

	if err := queue.Enqueue(&ReviewTask{ReviewID: 9, Trigger: TriggerScheduler}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case id := <-got:
		if id != 9 {
			t.Errorf("processed review %d, expected 9", id)
		}
	case <-time.After(time.Second):
		t.Fatal("processor was not called")
	}
}

func TestAsyncQueue_IsAsync(t *testing.T) {
	queue := &AsyncQueue{}
	if !queue.IsAsync() {
		t.Error("AsyncQueue.IsAsync() should return true")
	}
}
