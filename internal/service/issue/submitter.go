package issue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
)

// ErrSubmission marks every failure to hand a record to the issue store.
var ErrSubmission = errors.New("issue submission failed")

// Submitter sends a composed record to the issue store exactly once and
// returns what the store persisted.
type Submitter interface {
	Submit(ctx context.Context, record issue.Record) (issue.Record, error)
}

// HTTPSubmitter posts records to a remote `<endpoint>/issues` resource.
type HTTPSubmitter struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSubmitter creates a REST submitter. client may be nil.
func NewHTTPSubmitter(endpoint string, client *http.Client) *HTTPSubmitter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPSubmitter{
		endpoint: strings.TrimRight(endpoint, "/") + "/issues",
		client:   client,
	}
}

// Submit implements Submitter. Any non-2xx response is a failure.
func (s *HTTPSubmitter) Submit(ctx context.Context, record issue.Record) (issue.Record, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return issue.Record{}, fmt.Errorf("%w: encode record: %w", ErrSubmission, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return issue.Record{}, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return issue.Record{}, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return issue.Record{}, fmt.Errorf("%w: read response: %w", ErrSubmission, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return issue.Record{}, fmt.Errorf("%w: status %d: %s", ErrSubmission, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	stored := record
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &stored); err != nil {
			return issue.Record{}, fmt.Errorf("%w: decode response: %w", ErrSubmission, err)
		}
	}
	if stored.SuggestedActions == nil {
		stored.SuggestedActions = []string{}
	}

	log.Printf("[issue] submitted to %s id=%s", s.endpoint, stored.ID)
	return stored, nil
}

// StoreSubmitter writes records straight into a Repository.
type StoreSubmitter struct {
	repo Repository
	now  func() time.Time
}

// NewStoreSubmitter 创建直接写入本地仓库的提交器。
func NewStoreSubmitter(repo Repository) *StoreSubmitter {
	return &StoreSubmitter{repo: repo, now: time.Now}
}

// Submit implements Submitter.
func (s *StoreSubmitter) Submit(ctx context.Context, record issue.Record) (issue.Record, error) {
	if err := record.Normalize(s.now().UTC()); err != nil {
		return issue.Record{}, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	stored, err := s.repo.Create(ctx, record)
	if err != nil {
		return issue.Record{}, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	log.Printf("[issue] stored id=%s category=%q severity=%s", stored.ID, stored.Category, stored.Severity)
	return stored, nil
}
