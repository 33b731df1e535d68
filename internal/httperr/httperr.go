// Package httperr writes the JSON error envelope shared by every endpoint:
//
//	{"error":{"code":"RATE_LIMITED","message":"..."}}
package httperr

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"
)

// Error codes.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeNotFound            = "NOT_FOUND"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeUnprocessableEntity = "UNPROCESSABLE_ENTITY"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
	CodeNotImplemented      = "NOT_IMPLEMENTED"
)

// Messages used by the admission layer.
const (
	MsgUnauthorized = "Missing or invalid credentials"
	MsgRateLimited  = "Too many requests, please try again later"
	MsgInternal     = "Internal server error"
)

// Encode returns the error envelope for code and message.
func Encode(code, message string) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("error")
	e.ObjStart()
	e.FieldStart("code")
	e.Str(code)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

// Write sends the error envelope with the given status.
func Write(w http.ResponseWriter, status int, code, message string) {
	body := Encode(code, message)
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Unauthorized writes a 401 with the generic credentials message.
func Unauthorized(w http.ResponseWriter) {
	Write(w, http.StatusUnauthorized, CodeUnauthorized, MsgUnauthorized)
}

// RateLimited writes a 429.
func RateLimited(w http.ResponseWriter) {
	Write(w, http.StatusTooManyRequests, CodeRateLimited, MsgRateLimited)
}

// Internal writes an opaque 500.
func Internal(w http.ResponseWriter) {
	Write(w, http.StatusInternalServerError, CodeInternal, MsgInternal)
}
