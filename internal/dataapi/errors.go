package dataapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/thereayou/campus-chat/internal/handlers/dto"
	"github.com/thereayou/campus-chat/internal/messaging"
)

// classify maps an HTTP status onto the messaging error taxonomy.
func classify(status int) error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return messaging.ErrUnauthorized
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity, status == http.StatusRequestEntityTooLarge:
		return messaging.ErrValidation
	case status == http.StatusNotFound:
		return messaging.ErrNotFound
	case status == http.StatusConflict:
		return messaging.ErrConflict
	default:
		return messaging.ErrTransient
	}
}

func statusError(resp *http.Response) error {
	var body dto.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("%w: %s (%d)", classify(resp.StatusCode), body.Error, resp.StatusCode)
}
