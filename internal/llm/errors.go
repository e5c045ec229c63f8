package llm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidCredential matches completion failures caused by a bad or missing API key.
var ErrInvalidCredential = errors.New("invalid completion credential")

// CompletionError carries the upstream failure of a completion call.
type CompletionError struct {
	Model             string
	Err               error
	InvalidCredential bool
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion with model %s failed: %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

func (e *CompletionError) Is(target error) bool {
	return target == ErrInvalidCredential && e.InvalidCredential
}

// Upstream error texts that point at the key rather than the request.
var credentialMarkers = []string{
	"api key",
	"api_key",
	"apikey",
	"permission_denied",
	"unauthenticated",
}

func newCompletionError(model string, err error) *CompletionError {
	return &CompletionError{
		Model:             model,
		Err:               err,
		InvalidCredential: isCredentialError(err),
	}
}

func isCredentialError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range credentialMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
