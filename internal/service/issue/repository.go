package issue

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
)

// ErrIssueNotFound is returned when no issue carries the requested id.
var ErrIssueNotFound = errors.New("issue not found")

// Repository persists submitted issue records.
type Repository interface {
	// Create assigns an id to record, stores it and returns the stored copy.
	Create(ctx context.Context, record issue.Record) (issue.Record, error)
	Get(ctx context.Context, id string) (issue.Record, error)
	// List returns issues newest first; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]issue.Record, error)
}

// MemoryRepository keeps issues in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]issue.Record
}

// NewMemoryRepository 创建内存版问题仓库。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]issue.Record)}
}

func (r *MemoryRepository) Create(ctx context.Context, record issue.Record) (issue.Record, error) {
	if err := ctx.Err(); err != nil {
		return issue.Record{}, err
	}

	record.ID = uuid.NewString()
	record.SuggestedActions = append([]string{}, record.SuggestedActions...)

	r.mu.Lock()
	r.records[record.ID] = record
	r.mu.Unlock()
	return record, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (issue.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return issue.Record{}, ErrIssueNotFound
	}
	record.SuggestedActions = append([]string{}, record.SuggestedActions...)
	return record, nil
}

func (r *MemoryRepository) List(ctx context.Context, limit int) ([]issue.Record, error) {
	r.mu.RLock()
	records := make([]issue.Record, 0, len(r.records))
	for _, record := range r.records {
		record.SuggestedActions = append([]string{}, record.SuggestedActions...)
		records = append(records, record)
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
