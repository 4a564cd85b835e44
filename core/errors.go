package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput         = "TMSYNC_BAD_INPUT"
	ErrorMalformedPayload = "TMSYNC_MALFORMED_PAYLOAD"
	ErrorUnknownRootType  = "TMSYNC_UNKNOWN_ROOT_TYPE"
	ErrorUnknownFieldType = "TMSYNC_UNKNOWN_FIELD_TYPE"
	ErrorUnsupportedOp    = "TMSYNC_UNSUPPORTED_OPERATOR"
	ErrorTransportFailure = "TMSYNC_TRANSPORT_FAILURE"
	ErrorClientError      = "TMSYNC_CLIENT_ERROR"
	ErrorServerError      = "TMSYNC_SERVER_ERROR"
	ErrorThrottled        = "TMSYNC_THROTTLED"
	ErrorInvalidSignature = "TMSYNC_INVALID_SIGNATURE"
	ErrorAmbiguousMerge   = "TMSYNC_AMBIGUOUS_MERGE"
	ErrorLockUnavailable  = "TMSYNC_LOCK_UNAVAILABLE"
	ErrorNotFound         = "TMSYNC_NOT_FOUND"
	ErrorInternal         = "TMSYNC_INTERNAL_ERROR"
)

var (
	ErrMalformedPayload    = errors.New("tmsync: malformed payload")
	ErrUnknownRootType     = errors.New("tmsync: unknown root type")
	ErrUnknownFieldType    = errors.New("tmsync: unknown field type")
	ErrUnsupportedOperator = errors.New("tmsync: unsupported operator")
	ErrTransportFailure    = errors.New("tmsync: transport failure")
	ErrClientError         = errors.New("tmsync: client error")
	ErrServerError         = errors.New("tmsync: server error")
	ErrThrottled           = errors.New("tmsync: throttled")
	ErrInvalidSignature    = errors.New("tmsync: invalid signature")
	ErrAmbiguousMerge      = errors.New("tmsync: ambiguous merge")
	ErrLockUnavailable     = errors.New("tmsync: lock unavailable")
)

type errorKind struct {
	category goerrors.Category
	textCode string
	status   int
}

var errorKinds = map[error]errorKind{
	ErrMalformedPayload:    {goerrors.CategoryBadInput, ErrorMalformedPayload, http.StatusUnprocessableEntity},
	ErrUnknownRootType:     {goerrors.CategoryBadInput, ErrorUnknownRootType, http.StatusUnprocessableEntity},
	ErrUnknownFieldType:    {goerrors.CategoryValidation, ErrorUnknownFieldType, http.StatusUnprocessableEntity},
	ErrUnsupportedOperator: {goerrors.CategoryBadInput, ErrorUnsupportedOp, http.StatusBadRequest},
	ErrTransportFailure:    {goerrors.CategoryExternal, ErrorTransportFailure, http.StatusBadGateway},
	ErrClientError:         {goerrors.CategoryExternal, ErrorClientError, http.StatusBadGateway},
	ErrServerError:         {goerrors.CategoryExternal, ErrorServerError, http.StatusBadGateway},
	ErrThrottled:           {goerrors.CategoryRateLimit, ErrorThrottled, http.StatusTooManyRequests},
	ErrInvalidSignature:    {goerrors.CategoryAuth, ErrorInvalidSignature, http.StatusUnauthorized},
	ErrAmbiguousMerge:      {goerrors.CategoryConflict, ErrorAmbiguousMerge, http.StatusConflict},
	ErrLockUnavailable:     {goerrors.CategoryConflict, ErrorLockUnavailable, http.StatusConflict},
}

// NewError wraps one of the taxonomy sentinels into a go-errors envelope.
func NewError(kind error, message string, metadata map[string]any) *goerrors.Error {
	info, ok := errorKinds[kind]
	if !ok {
		info = errorKind{goerrors.CategoryInternal, ErrorInternal, http.StatusInternalServerError}
	}
	if strings.TrimSpace(message) == "" && kind != nil {
		message = kind.Error()
	}
	var err *goerrors.Error
	if kind != nil {
		err = goerrors.Wrap(kind, info.category, message)
	} else {
		err = goerrors.New(message, info.category)
	}
	err = err.WithCode(info.status).WithTextCode(info.textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// IsError reports whether err is, or carries the text code of, the given sentinel.
func IsError(err error, kind error) bool {
	if err == nil || kind == nil {
		return false
	}
	if errors.Is(err, kind) {
		return true
	}
	info, ok := errorKinds[kind]
	if !ok {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == info.textCode
	}
	return false
}

// MapError normalizes any error into the tmsync envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	for kind := range errorKinds {
		if errors.Is(err, kind) {
			return NewError(kind, err.Error(), nil)
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newMappedError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newMappedError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newMappedError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(goerrors.New(message, category).WithTextCode(textCode))
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusForCategory(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorInvalidSignature
	case goerrors.CategoryConflict:
		return ErrorLockUnavailable
	case goerrors.CategoryExternal:
		return ErrorTransportFailure
	default:
		return ErrorInternal
	}
}

func httpStatusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
