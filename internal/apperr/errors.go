package apperr

import (
	"fmt"
	"net/http"
)

const (
	CodeUnknownEntityType       = "UNKNOWN_ENTITY_TYPE"
	CodeInvalidFilterField      = "INVALID_FILTER_FIELD"
	CodeNonEditableField        = "NON_EDITABLE_FIELD"
	CodeTypeMismatch            = "TYPE_MISMATCH"
	CodeEmptyFilterRejected     = "EMPTY_FILTER_REJECTED"
	CodeTransactionFailed       = "TRANSACTION_FAILED"
	CodeItemValidationFailed    = "ITEM_VALIDATION_FAILED"
	CodeReferencedEntityMissing = "REFERENCED_ENTITY_MISSING"
	CodeInvalidBatch            = "INVALID_BATCH"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeForbidden               = "FORBIDDEN"
)

// Sentinels for errors.Is. Matching compares codes only.
var (
	ErrUnknownEntityType       = &AppError{Code: CodeUnknownEntityType}
	ErrInvalidFilterField      = &AppError{Code: CodeInvalidFilterField}
	ErrNonEditableField        = &AppError{Code: CodeNonEditableField}
	ErrTypeMismatch            = &AppError{Code: CodeTypeMismatch}
	ErrEmptyFilter             = &AppError{Code: CodeEmptyFilterRejected}
	ErrTransactionFailed       = &AppError{Code: CodeTransactionFailed}
	ErrItemValidationFailed    = &AppError{Code: CodeItemValidationFailed}
	ErrReferencedEntityMissing = &AppError{Code: CodeReferencedEntityMissing}
	ErrInvalidBatch            = &AppError{Code: CodeInvalidBatch}
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
	cause   error
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func New(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func UnknownEntityType(name string) *AppError {
	return &AppError{
		Code:    CodeUnknownEntityType,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("Unknown entity type: %s", name),
	}
}

func InvalidFilterField(entity, field string) *AppError {
	return &AppError{
		Code:    CodeInvalidFilterField,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("Field %s is not filterable on %s", field, entity),
		Details: []ErrorDetail{{Field: field, Rule: "filterable", Message: "not filterable"}},
	}
}

func NonEditableField(entity, field string) *AppError {
	return &AppError{
		Code:    CodeNonEditableField,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("Field %s is not editable on %s", field, entity),
		Details: []ErrorDetail{{Field: field, Rule: "editable", Message: "not editable"}},
	}
}

func TypeMismatch(field, msg string) *AppError {
	return &AppError{
		Code:    CodeTypeMismatch,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("Type mismatch on %s: %s", field, msg),
		Details: []ErrorDetail{{Field: field, Rule: "type", Message: msg}},
	}
}

func EmptyFilterRejected(entity string) *AppError {
	return &AppError{
		Code:    CodeEmptyFilterRejected,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("Refusing to mutate every %s record: filter has no conditions", entity),
	}
}

func TransactionFailed(cause error) *AppError {
	return &AppError{
		Code:    CodeTransactionFailed,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("Transaction rolled back: %v", cause),
		cause:   cause,
	}
}

func ItemValidationFailed(msg string) *AppError {
	return &AppError{
		Code:    CodeItemValidationFailed,
		Status:  http.StatusUnprocessableEntity,
		Message: msg,
	}
}

func ReferencedEntityMissing(entity, id string) *AppError {
	return &AppError{
		Code:    CodeReferencedEntityMissing,
		Status:  http.StatusUnprocessableEntity,
		Message: fmt.Sprintf("Referenced %s with id %s does not exist", entity, id),
	}
}

func InvalidBatch(msg string) *AppError {
	return &AppError{
		Code:    CodeInvalidBatch,
		Status:  http.StatusBadRequest,
		Message: msg,
	}
}

func Unauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Status: http.StatusUnauthorized, Message: msg}
}

func Forbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Status: http.StatusForbidden, Message: msg}
}
