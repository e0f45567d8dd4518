package upstream

import "fmt"

// ErrorKind is the fixed classification of an upstream API error.
type ErrorKind string

const (
	KindAuth         ErrorKind = "auth"
	KindInvalidParam ErrorKind = "invalid_param"
	KindPermission   ErrorKind = "permission"
	KindRateLimit    ErrorKind = "rate_limit"
	KindUnknown      ErrorKind = "unknown"
)

// APIError is a structured error returned by the ads platform. Anything the
// client cannot parse into this shape is reported as a plain transport error.
type APIError struct {
	HTTPStatus int
	Code       int
	Subcode    int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream api error %d (subcode %d): %s", e.Code, e.Subcode, e.Message)
}

// Kind maps the upstream error code onto the fixed taxonomy. The code list
// follows the platform's published error reference; everything unlisted is
// unknown.
func (e *APIError) Kind() ErrorKind {
	switch {
	case e.Code == 4 || e.Code == 17 || e.Code == 32 || e.Code == 613 || e.Subcode == 80004:
		return KindRateLimit
	case e.Code == 102 || e.Code == 190:
		return KindAuth
	case e.Code == 100:
		return KindInvalidParam
	case e.Code == 10 || (e.Code >= 200 && e.Code <= 299):
		return KindPermission
	default:
		return KindUnknown
	}
}
