// Package errdefs defines the closed set of error classes shared across ragprobe.
// Callers wrap these with fmt.Errorf("...: %w", ...) and test with errors.Is.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks configuration or input errors (bad directory, malformed chunk metadata).
	ErrInvalidInput = errors.New("invalid input")
	// ErrConfig marks an invalid or incomplete configuration.
	ErrConfig = errors.New("invalid configuration")
	// ErrInvalidChunk marks a chunk without a derivable source or page.
	ErrInvalidChunk = fmt.Errorf("%w: chunk lacks source or page", ErrInvalidInput)

	// ErrExternalService marks a failed call to the language model, embedder, or retrieval backend.
	ErrExternalService = errors.New("external service failure")
	// ErrGenerationFailed marks malformed or empty structured output from the language model.
	ErrGenerationFailed = fmt.Errorf("%w: generation failed", ErrExternalService)

	// ErrConflict marks a uniqueness violation in the ledger.
	ErrConflict = errors.New("storage conflict")
	// ErrNotFound marks a lookup that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable marks an infrastructure fault in the ledger (closed, locked, I/O).
	ErrStoreUnavailable = errors.New("store unavailable")
)
