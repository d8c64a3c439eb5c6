package adapter

import (
	"context"
	"sync"

	"carecall-monitor/internal/models"
)

// recordingHandler 测试用事件收集器
type recordingHandler struct {
	mu      sync.Mutex
	raises  []models.CallEvent
	cancels []cancelRecord
}

type cancelRecord struct {
	roomOrKey string
	eventID   string
}

func (h *recordingHandler) HandleRaise(_ context.Context, event models.CallEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.raises = append(h.raises, event)
}

func (h *recordingHandler) HandleCancel(_ context.Context, roomOrKey, eventID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancels = append(h.cancels, cancelRecord{roomOrKey: roomOrKey, eventID: eventID})
}

func (h *recordingHandler) raiseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.raises)
}

func (h *recordingHandler) cancelCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cancels)
}

func (h *recordingHandler) lastRaise() models.CallEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.raises[len(h.raises)-1]
}

func (h *recordingHandler) lastCancel() cancelRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancels[len(h.cancels)-1]
}
