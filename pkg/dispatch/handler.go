package dispatch

import (
	"net/http"
)

// HandlerFunc is a bound controller operation.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, rc RouteContext) error

// Controller is any value produced by a Factory. What it can do is decided
// by which of the handler interfaces below it implements.
type Controller any

type Indexer interface {
	Index(w http.ResponseWriter, r *http.Request, rc RouteContext) error
}

type BulkHandler interface {
	Bulk(w http.ResponseWriter, r *http.Request, rc RouteContext) error
}

type SingleHandler interface {
	Single(w http.ResponseWriter, r *http.Request, rc RouteContext) error
}

type SingleDeleter interface {
	DeleteSingle(w http.ResponseWriter, r *http.Request, rc RouteContext) error
}

type BulkDeleter interface {
	DeleteBulk(w http.ResponseWriter, r *http.Request, rc RouteContext) error
}

// Method names one operation of the closed handler set.
type Method string

const (
	MethodIndex        Method = "index"
	MethodBulk         Method = "bulk"
	MethodSingle       Method = "single"
	MethodDeleteSingle Method = "delete_single"
	MethodDeleteBulk   Method = "delete_bulk"
)

// Bind returns c's implementation of m, or false when c lacks it.
func (m Method) Bind(c Controller) (HandlerFunc, bool) {
	switch m {
	case MethodIndex:
		if h, ok := c.(Indexer); ok {
			return h.Index, true
		}
	case MethodBulk:
		if h, ok := c.(BulkHandler); ok {
			return h.Bulk, true
		}
	case MethodSingle:
		if h, ok := c.(SingleHandler); ok {
			return h.Single, true
		}
	case MethodDeleteSingle:
		if h, ok := c.(SingleDeleter); ok {
			return h.DeleteSingle, true
		}
	case MethodDeleteBulk:
		if h, ok := c.(BulkDeleter); ok {
			return h.DeleteBulk, true
		}
	}
	return nil, false
}
