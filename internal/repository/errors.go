package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	svcErr "github.com/oggyb/scene-match/internal/errors"
)

// storeErr folds driver errors into the service taxonomy.
// Missing rows become ErrNotFound, context errors pass through and
// everything else is treated as a retryable storage failure.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", svcErr.ErrNotFound, what)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return svcErr.Transient(fmt.Errorf("%s: %w", what, err))
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
