package dispatch

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"skeleton/pkg/httpx"
)

// ErrNoMatch is wrapped by every resolution failure.
var ErrNoMatch = errors.New("no controller matches the request")

type Kind int

const (
	InternalError Kind = iota
	Unauthenticated
	InvalidUser
	RateLimited
	ModuleNotFound
	SectionNotFound
	ItemNotFound
	PermissionDenied
	TokenInvalid
	ControllerNotFound
	MethodNotFound
)

var kindNames = [...]string{
	InternalError:      "InternalError",
	Unauthenticated:    "Unauthenticated",
	InvalidUser:        "InvalidUser",
	RateLimited:        "RateLimited",
	ModuleNotFound:     "ModuleNotFound",
	SectionNotFound:    "SectionNotFound",
	ItemNotFound:       "ItemNotFound",
	PermissionDenied:   "PermissionDenied",
	TokenInvalid:       "TokenInvalid",
	ControllerNotFound: "ControllerNotFound",
	MethodNotFound:     "MethodNotFound",
}

var kindMessages = [...]string{
	InternalError:      "Something went wrong.",
	Unauthenticated:    "Unauthenticated.",
	InvalidUser:        "Invalid user session.",
	RateLimited:        "Too many requests. Please slow down.",
	ModuleNotFound:     "Module not found.",
	SectionNotFound:    "Section not found.",
	ItemNotFound:       "Item not found.",
	PermissionDenied:   "You do not have permission to view this page.",
	TokenInvalid:       "This action is not available.",
	ControllerNotFound: "Page not found.",
	MethodNotFound:     "Page not found.",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

func (k Kind) Status() int {
	switch k {
	case Unauthenticated, InvalidUser:
		return http.StatusUnauthorized
	case RateLimited:
		return http.StatusTooManyRequests
	case PermissionDenied:
		return http.StatusForbidden
	case ModuleNotFound, SectionNotFound, ItemNotFound, TokenInvalid, ControllerNotFound, MethodNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a dispatch failure of a known kind.
type Error struct {
	Kind       Kind
	Message    string
	Err        error
	RetryAfter time.Duration
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = kindMessages[e.Kind]
	}
	if e.Err != nil {
		return e.Kind.String() + ": " + msg + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Status() int { return e.Kind.Status() }

// PublicMessage is what the caller is shown. Internal failures only reveal
// their cause in debug mode.
func (e *Error) PublicMessage(debug bool) string {
	if e.Kind == InternalError {
		if !debug {
			return kindMessages[InternalError]
		}
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	if e.Message != "" {
		return e.Message
	}
	return kindMessages[e.Kind]
}

// AsError converts err into an *Error, treating anything unknown as internal.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return newError(InternalError, err)
}

// Responder writes dispatch errors to JSON callers as an envelope and to
// browsers as a login redirect or an error page.
type Responder struct {
	Debug    bool
	LoginURL string
}

func (rs Responder) Write(w http.ResponseWriter, r *http.Request, e *Error) {
	status := e.Status()
	if e.Kind == RateLimited && e.RetryAfter > 0 {
		secs := int((e.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	msg := e.PublicMessage(rs.Debug)
	if httpx.WantsJSON(r) {
		httpx.Error(w, status, msg)
		return
	}
	if status == http.StatusUnauthorized {
		login := rs.LoginURL
		if login == "" {
			login = "/login"
		}
		http.Redirect(w, r, login, http.StatusFound)
		return
	}
	httpx.RenderErrorPage(w, status, msg)
}
