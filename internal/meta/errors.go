package meta

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError is the normalized shape of every platform validation error.
// Transport failures are not APIErrors; they pass through wrapped.
type APIError struct {
	Message    string
	Code       int
	SubCode    int
	BlameField string
	TraceID    string
	HTTPStatus int
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "platform error %d", e.Code)
	if e.SubCode != 0 {
		fmt.Fprintf(&b, "/%d", e.SubCode)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.BlameField != "" {
		fmt.Fprintf(&b, " (field %s)", e.BlameField)
	}
	if e.TraceID != "" {
		fmt.Fprintf(&b, " [trace %s]", e.TraceID)
	}
	return b.String()
}

// AsAPIError unwraps err to an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsWrongBudgetType reports whether err is the platform rejecting a budget
// write for targeting the budget field the ad set does not use. Callers use
// this to retry with the alternate budget type once.
func IsWrongBudgetType(err error) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	if strings.Contains(apiErr.BlameField, "budget") {
		return true
	}
	return strings.Contains(msg, "budget") &&
		(strings.Contains(msg, "lifetime") || strings.Contains(msg, "daily"))
}

// errEnvelope mirrors the platform's error response body.
type errEnvelope struct {
	Error struct {
		Message   string `json:"message"`
		Code      int    `json:"code"`
		SubCode   int    `json:"error_subcode"`
		UserMsg   string `json:"error_user_msg"`
		TraceID   string `json:"fbtrace_id"`
		ErrorData struct {
			BlameField string `json:"blame_field"`
		} `json:"error_data"`
	} `json:"error"`
}

// decodeError turns a non-2xx response body into an *APIError. Bodies that
// are not the platform envelope become a plain error carrying the raw text.
func decodeError(status int, body []byte) error {
	var env errEnvelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Error.Message != "" || env.Error.Code != 0) {
		msg := env.Error.Message
		if env.Error.UserMsg != "" {
			msg = msg + ": " + env.Error.UserMsg
		}
		return &APIError{
			Message:    msg,
			Code:       env.Error.Code,
			SubCode:    env.Error.SubCode,
			BlameField: env.Error.ErrorData.BlameField,
			TraceID:    env.Error.TraceID,
			HTTPStatus: status,
		}
	}
	return fmt.Errorf("unexpected status %d: %s", status, string(body))
}
