// Package errors is the typed error vocabulary shared by services and the
// HTTP layer. A Code decides the status and what the client may see.
package errors

import "net/http"

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeGone         Code = "GONE"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code surfaces over HTTP. When CallerMessage is set the
// message from the error site reaches the client; otherwise PublicMessage does.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	CallerMessage  bool
}

func clientFault(status int, public string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: public, CallerMessage: true}
}

var metadataByCode = func() map[Code]Metadata {
	m := map[Code]Metadata{
		CodeUnauthorized: clientFault(http.StatusUnauthorized, "authentication required"),
		CodeForbidden:    clientFault(http.StatusForbidden, "access denied"),
		CodeNotFound:     clientFault(http.StatusNotFound, "resource not found"),
		CodeConflict:     clientFault(http.StatusConflict, "conflict detected"),
		CodeGone:         clientFault(http.StatusGone, "resource no longer available"),
		CodeRateLimit:    clientFault(http.StatusTooManyRequests, "rate limit exceeded"),
		// server faults keep their cause private
		CodeInternal:   {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
		CodeDependency: {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},
	}
	validation := clientFault(http.StatusBadRequest, "validation failed")
	validation.DetailsAllowed = true
	m[CodeValidation] = validation

	reused := clientFault(http.StatusConflict, "idempotency key reused")
	reused.DetailsAllowed = true
	m[CodeIdempotency] = reused
	return m
}()

// MetadataFor treats unknown codes as CodeInternal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Status is shorthand for MetadataFor(c).HTTPStatus.
func (c Code) Status() int { return MetadataFor(c).HTTPStatus }
