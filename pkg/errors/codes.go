package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string identifier for a specific error condition. Codes are
// grouped by module prefix: COMMON_* for cross-cutting failures, NMR_* for the
// prediction pipeline.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeFeatureDisabled    ErrorCode = "COMMON_015"
)

// Short aliases used by the convenience constructors.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeRateLimit    = ErrCodeTooManyRequests
	CodeCacheError   = ErrCodeCacheError
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// NMR prediction error codes.
const (
	ErrCodeNoStructure           ErrorCode = "NMR_001"
	ErrCodeInvalidSMILES         ErrorCode = "NMR_002"
	ErrCodeLLMFailed             ErrorCode = "NMR_003"
	ErrCodeLLMEmptyResponse      ErrorCode = "NMR_004"
	ErrCodeWebServiceFailed      ErrorCode = "NMR_005"
	ErrCodeDatasetUnavailable    ErrorCode = "NMR_006"
	ErrCodePredictionCancelled   ErrorCode = "NMR_007"
	ErrCodeStructureConversion   ErrorCode = "NMR_008"
	ErrCodeLocalPredictionFailed ErrorCode = "NMR_009"
	ErrCodeBackendMisconfigured  ErrorCode = "NMR_010"
)

// StatusClientClosedRequest is the non-standard status used when the caller
// went away before a prediction completed.
const StatusClientClosedRequest = 499

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeFeatureDisabled:    http.StatusForbidden,

	ErrCodeNoStructure:           http.StatusBadRequest,
	ErrCodeInvalidSMILES:         http.StatusBadRequest,
	ErrCodeLLMFailed:             http.StatusBadGateway,
	ErrCodeLLMEmptyResponse:      http.StatusBadGateway,
	ErrCodeWebServiceFailed:      http.StatusBadGateway,
	ErrCodeDatasetUnavailable:    http.StatusServiceUnavailable,
	ErrCodePredictionCancelled:   StatusClientClosedRequest,
	ErrCodeStructureConversion:   http.StatusUnprocessableEntity,
	ErrCodeLocalPredictionFailed: http.StatusInternalServerError,
	ErrCodeBackendMisconfigured:  http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeFeatureDisabled:    "feature disabled",

	ErrCodeNoStructure:           "no structure supplied",
	ErrCodeInvalidSMILES:         "invalid SMILES string",
	ErrCodeLLMFailed:             "language model request failed",
	ErrCodeLLMEmptyResponse:      "language model returned no text",
	ErrCodeWebServiceFailed:      "web prediction service failed",
	ErrCodeDatasetUnavailable:    "local shift dataset unavailable",
	ErrCodePredictionCancelled:   "prediction cancelled",
	ErrCodeStructureConversion:   "structure could not be converted to SMILES",
	ErrCodeLocalPredictionFailed: "local prediction failed",
	ErrCodeBackendMisconfigured:  "prediction back-end misconfigured",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
