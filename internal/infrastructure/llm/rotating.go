package llm

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/core/ports"
)

// NamedGenerator is a TextGenerator that reports which provider and model it targets.
type NamedGenerator interface {
	ports.TextGenerator
	Name() string
}

// RotatingGenerator sticks to one generator until it reports an exhausted quota or a transient
// failure, then moves on to the next one. Each call tries every generator at most once.
type RotatingGenerator struct {
	mu         sync.Mutex
	generators []NamedGenerator
	current    int
}

func NewRotatingGenerator(generators ...NamedGenerator) (*RotatingGenerator, error) {
	if len(generators) == 0 {
		return nil, domain.WrapError(domain.ErrConfiguration, "new rotating generator", errors.New("no generators configured"))
	}
	return &RotatingGenerator{generators: generators}, nil
}

func (r *RotatingGenerator) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generators[r.current].Name()
}

func (r *RotatingGenerator) GenerateText(ctx context.Context, prompt string, opts ports.GenerateOptions) (string, error) {
	r.mu.Lock()
	start := r.current
	r.mu.Unlock()

	var lastErr error
	for offset := 0; offset < len(r.generators); offset++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		idx := (start + offset) % len(r.generators)
		gen := r.generators[idx]

		text, err := gen.GenerateText(ctx, prompt, opts)
		if err == nil {
			r.advanceTo(idx)
			return text, nil
		}
		lastErr = err
		if !rotatable(err) {
			return "", err
		}
		slog.Warn("llm_generator_rotated",
			"from", gen.Name(),
			"to", r.generators[(idx+1)%len(r.generators)].Name(),
			"error", err.Error(),
		)
	}
	return "", lastErr
}

func (r *RotatingGenerator) advanceTo(idx int) {
	r.mu.Lock()
	r.current = idx
	r.mu.Unlock()
}

func rotatable(err error) bool {
	return domain.IsKind(err, domain.ErrQuotaExceeded) || domain.IsKind(err, domain.ErrTemporary)
}
