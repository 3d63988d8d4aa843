package runrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/yanqian/formfiller/internal/domain/autofill"
)

// MemoryRepository keeps runs in memory. Used by the CLI and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]autofill.Run
	answers map[uuid.UUID][]autofill.AnswerRecord
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		runs:    make(map[uuid.UUID]autofill.Run),
		answers: make(map[uuid.UUID][]autofill.AnswerRecord),
	}
}

// CreateRun implements autofill.RunRepository.
func (r *MemoryRepository) CreateRun(_ context.Context, run autofill.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	r.runs[run.ID] = run
	return nil
}

// UpdateRun implements autofill.RunRepository.
func (r *MemoryRepository) UpdateRun(_ context.Context, run autofill.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; !exists {
		return fmt.Errorf("run %s not found", run.ID)
	}
	r.runs[run.ID] = run
	return nil
}

// AppendAnswer implements autofill.RunRepository.
func (r *MemoryRepository) AppendAnswer(_ context.Context, rec autofill.AnswerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[rec.RunID]; !exists {
		return fmt.Errorf("run %s not found", rec.RunID)
	}
	r.answers[rec.RunID] = append(r.answers[rec.RunID], rec)
	return nil
}

// GetRun implements autofill.RunRepository.
func (r *MemoryRepository) GetRun(_ context.Context, id uuid.UUID) (autofill.Run, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	return run, ok, nil
}

// ListAnswers implements autofill.RunRepository.
func (r *MemoryRepository) ListAnswers(_ context.Context, runID uuid.UUID) ([]autofill.AnswerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]autofill.AnswerRecord(nil), r.answers[runID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

var _ autofill.RunRepository = (*MemoryRepository)(nil)
