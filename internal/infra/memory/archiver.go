package memory

import (
	"context"
	"sync"

	"trivia-service/internal/domain"
)

// Archiver keeps finished game results in memory. Results are lost on
// restart; use the postgres archiver when durability matters.
type Archiver struct {
	mu      sync.Mutex
	results []domain.GameResult
}

func NewArchiver() *Archiver {
	return &Archiver{}
}

func (a *Archiver) Archive(_ context.Context, result domain.GameResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, result)
	return nil
}

// Results returns a snapshot of everything archived so far.
func (a *Archiver) Results() []domain.GameResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.GameResult(nil), a.results...)
}
