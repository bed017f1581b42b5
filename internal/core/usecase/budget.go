package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

// CallBudget caps external LLM and search calls for a single request.
type CallBudget struct {
	mu   sync.Mutex
	max  int
	used int
}

func NewCallBudget(max int) *CallBudget {
	if max < 0 {
		max = 0
	}
	return &CallBudget{max: max}
}

// Acquire reserves one call. It fails once the budget is spent or ctx is done.
func (b *CallBudget) Acquire(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.used >= b.max {
		return domain.WrapError(domain.ErrBudgetExhausted, "acquire call", fmt.Errorf("%d of %d calls used", b.used, b.max))
	}
	b.used++
	return nil
}

func (b *CallBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

func (b *CallBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max - b.used
}

func (b *CallBudget) Max() int {
	return b.max
}
