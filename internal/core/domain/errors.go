package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrTicketRequest    = errors.New("upload ticket request failed")
	ErrTransfer         = errors.New("byte transfer failed")
	ErrStatusUpdate     = errors.New("file status update failed")
	ErrPolling          = errors.New("snapshot fetch failed")
	ErrRetryRequest     = errors.New("retry request failed")
	ErrRetryInFlight    = errors.New("retry already in flight")
	ErrCancelled        = errors.New("cancelled")
	ErrUploadInProgress = errors.New("upload in progress")
	ErrPollerStopped    = errors.New("poller stopped")

	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrTemporary    = errors.New("temporary failure")
)

const (
	UploadFailedMessage = "File upload failed. Please try again."
	RetryFailedMessage  = "Retry failed"
	RetryQueuedMessage  = "Retry initiated successfully"
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ServerMessenger is implemented by errors that carry a message produced by
// the remote side (API error body, storage error document).
type ServerMessenger interface {
	ServerMessage() string
}

// UserMessage picks the most specific message available for err: a
// server-provided message first, then the error text, then fallback.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var sm ServerMessenger
	if errors.As(err, &sm) {
		if msg := strings.TrimSpace(sm.ServerMessage()); msg != "" {
			return msg
		}
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallback
}
