package api

import (
	"mesh-node-map/pkg/dashboard"
)

var (
	errorMessageMap = map[int64]string{
		999:  "internal server error",
		1000: "service is shutting down",
		1001: dashboard.ErrNotLoaded.Error(),

		1010: "invalid parameters",
		1011: "cannot parse request",

		1100: dashboard.ErrUnknownFilter.Error(),
		1101: dashboard.ErrInvalidViewport.Error(),
		1102: dashboard.ErrInvalidCoordinate.Error(),
		1103: "link does not point at this map",

		1200: "too many refresh requests",
	}

	errorInternalServer = errorJSON(999)
	errorUnavailable    = errorJSON(1000)
	errorNotLoaded      = errorJSON(1001)

	errorInvalidParameters  = errorJSON(1010)
	errorCannotParseRequest = errorJSON(1011)

	errorUnknownFilter     = errorJSON(1100)
	errorInvalidViewport   = errorJSON(1101)
	errorInvalidCoordinate = errorJSON(1102)
	errorForeignLink       = errorJSON(1103)

	errorRefreshThrottled = errorJSON(1200)
)

type ErrorResponse struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

// errorJSON converts an error code to a standardized error object
func errorJSON(code int64) ErrorResponse {
	message, ok := errorMessageMap[code]
	if !ok {
		message = "unknown"
	}
	return ErrorResponse{Code: code, Message: message}
}
