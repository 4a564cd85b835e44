package transport

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-tmsync/core"
)

func transportFailure(source error, message string, metadata map[string]any) error {
	if source != nil {
		message = fmt.Sprintf("%s: %v", message, source)
	}
	return core.NewError(core.ErrTransportFailure, message, metadata)
}

func requestError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// statusError classifies a completed response by status code.
func statusError(method string, uri string, status int) error {
	metadata := map[string]any{
		"method":      strings.ToUpper(method),
		"uri":         uri,
		"status_code": status,
	}
	switch {
	case status >= 500:
		return core.NewError(core.ErrServerError,
			fmt.Sprintf("transport: %s %s returned %d", strings.ToUpper(method), uri, status), metadata)
	case status >= 400:
		return core.NewError(core.ErrClientError,
			fmt.Sprintf("transport: %s %s returned %d", strings.ToUpper(method), uri, status), metadata)
	}
	return nil
}
