package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Resource endpoints that are pure store round-trips (list, get, create,
// update, delete) share the factories below. Anything with side effects
// beyond the store, such as connect or send, gets a hand-written handler
// in handlers_workspace.go / handlers_session.go instead.

// writeCollection sends a slice as JSON, normalizing nil to [] so clients
// never see "null" where an array is expected.
func writeCollection[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items)
}

// handleList serves an unscoped collection.
func handleList[T any](listFn func(ctx context.Context) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := listFn(r.Context())
		if err != nil {
			writeInternalError(w, err)
			return
		}
		writeCollection(w, items)
	}
}

// handleListByParam serves a collection scoped by the named URL parameter,
// e.g. the sessions of one workspace.
func handleListByParam[T any](param string, listFn func(ctx context.Context, paramVal string) ([]T, error), notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := listFn(r.Context(), chi.URLParam(r, param))
		if err != nil {
			writeDomainError(w, err, notFoundMsg)
			return
		}
		writeCollection(w, items)
	}
}

// handleGet serves a single resource looked up by the "id" URL parameter.
func handleGet[T any](getFn func(ctx context.Context, id string) (*T, error), notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := getFn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err, notFoundMsg)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// handleCreate decodes a JSON body and stores a new resource, answering 201.
func handleCreate[Req any, Res any](bodyLimit int64, createFn func(ctx context.Context, req Req) (*Res, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readJSON[Req](w, r, bodyLimit)
		if !ok {
			return
		}
		res, err := createFn(r.Context(), req)
		if err != nil {
			writeDomainError(w, err, "creation failed")
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// handleUpdate decodes a JSON body and updates the resource named by the
// "id" URL parameter.
func handleUpdate[Req any, Res any](bodyLimit int64, updateFn func(ctx context.Context, id string, req Req) (*Res, error), notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readJSON[Req](w, r, bodyLimit)
		if !ok {
			return
		}
		res, err := updateFn(r.Context(), chi.URLParam(r, "id"), req)
		if err != nil {
			writeDomainError(w, err, notFoundMsg)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleDelete removes the resource named by the "id" URL parameter,
// answering 204 with no body.
func handleDelete(deleteFn func(ctx context.Context, id string) error, notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deleteFn(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, err, notFoundMsg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
