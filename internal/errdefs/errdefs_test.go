package errdefs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClasses(t *testing.T) {
	if !errors.Is(ErrInvalidChunk, ErrInvalidInput) {
		t.Error("ErrInvalidChunk should be an input error")
	}
	if !errors.Is(ErrGenerationFailed, ErrExternalService) {
		t.Error("ErrGenerationFailed should be an external service error")
	}
	wrapped := fmt.Errorf("load question doc-1: %w", ErrNotFound)
	if errors.Is(wrapped, ErrStoreUnavailable) {
		t.Error("not found must not match store unavailable")
	}
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("wrapped error should match ErrNotFound")
	}
}
