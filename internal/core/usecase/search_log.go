package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/core/ports"
)

type RecordSearchLogUseCase struct {
	store ports.SearchLogStore
	now   func() time.Time
}

func NewRecordSearchLogUseCase(store ports.SearchLogStore) *RecordSearchLogUseCase {
	return &RecordSearchLogUseCase{store: store, now: time.Now}
}

func (uc *RecordSearchLogUseCase) Record(ctx context.Context, entry domain.SearchLogEntry) error {
	if strings.TrimSpace(entry.Query) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record search log", errors.New("query is required"))
	}
	if _, err := uuid.Parse(entry.ID); err != nil {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = uc.now().UTC()
	}
	if entry.Results == nil {
		entry.Results = []domain.SearchLogResult{}
	}
	if err := uc.store.SaveSearchLog(ctx, entry); err != nil {
		return fmt.Errorf("save search log %s: %w", entry.ID, err)
	}
	return nil
}
