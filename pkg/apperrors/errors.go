package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidDatasetKind = errors.New("invalid dataset type")
	ErrUnreadableFile     = errors.New("unreadable file")
	ErrFileTooLarge       = errors.New("file too large")
	ErrNoUsableMapping    = errors.New("no usable field mapping")
	ErrStaleStaging       = errors.New("staged data not found")
	ErrValidation         = errors.New("validation failed")
	ErrSinkWrite          = errors.New("sink write failed")
)

// NoRow marks an IngestError that does not refer to a specific data row.
const NoRow = -1

// IngestError is the structured failure returned by every ingestion operation.
// Kind is one of the sentinels above; errors.Is matches both Kind and Err.
type IngestError struct {
	Kind    error
	Message string
	Row     int // zero-based data row, NoRow when not row specific
	Field   string
	Err     error
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *IngestError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// HasRow reports whether the error points at a data row.
func (e *IngestError) HasRow() bool {
	return e.Row != NoRow
}

// AsIngestError extracts the structured error from err, if any.
func AsIngestError(err error) (*IngestError, bool) {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

func UnreadableFile(message string, err error) *IngestError {
	return &IngestError{Kind: ErrUnreadableFile, Message: message, Row: NoRow, Err: err}
}

func FileTooLarge(size, limit int64) *IngestError {
	return &IngestError{
		Kind:    ErrUnreadableFile,
		Message: fmt.Sprintf("file is %d bytes, the limit is %d bytes", size, limit),
		Row:     NoRow,
		Err:     ErrFileTooLarge,
	}
}

func NoUsableMapping(message string) *IngestError {
	return &IngestError{Kind: ErrNoUsableMapping, Message: message, Row: NoRow}
}

func StaleStaging(message string) *IngestError {
	return &IngestError{Kind: ErrStaleStaging, Message: message, Row: NoRow}
}

func Validation(row int, field, message string) *IngestError {
	return &IngestError{Kind: ErrValidation, Message: message, Row: row, Field: field}
}

func SinkWrite(message string, err error) *IngestError {
	return &IngestError{Kind: ErrSinkWrite, Message: message, Row: NoRow, Err: err}
}
