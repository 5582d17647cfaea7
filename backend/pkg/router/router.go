// Package router mounts documented routes on a chi router.
package router

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"arksync/backend/pkg/pathspec"
	"arksync/backend/pkg/utils"
)

// registry is shared by a builder and every builder derived with Route.
type registry struct {
	mu           sync.Mutex
	operationIDs map[string]struct{}
	routes       []RouteInfo
}

// RouteBuilder registers routes on a chi router and keeps their documentation.
type RouteBuilder struct {
	l        *slog.Logger
	r        chi.Router
	prefix   string
	registry *registry
}

func NewRouteBuilder(l *slog.Logger) *RouteBuilder {
	return &RouteBuilder{
		l: l.With(slog.String("component", "route-builder")),
		r: chi.NewRouter(),
		registry: &registry{
			operationIDs: make(map[string]struct{}),
		},
	}
}

// Router returns the underlying router, for mounting undocumented handlers.
func (rb *RouteBuilder) Router() chi.Router {
	return rb.r
}

// Use appends middlewares to the current group.
func (rb *RouteBuilder) Use(middlewares ...func(http.Handler) http.Handler) {
	rb.r.Use(middlewares...)
}

// Route creates a sub group mounted at prefix.
func (rb *RouteBuilder) Route(prefix string, fn func(rb *RouteBuilder)) {
	rb.r.Route(prefix, func(r chi.Router) {
		fn(&RouteBuilder{
			l:        rb.l,
			r:        r,
			prefix:   pathspec.Sanitize(rb.prefix + "/" + prefix),
			registry: rb.registry,
		})
	})
}

// Routes returns every registered route ordered by path then method.
func (rb *RouteBuilder) Routes() []RouteInfo {
	rb.registry.mu.Lock()
	defer rb.registry.mu.Unlock()

	routes := slices.Clone(rb.registry.routes)
	slices.SortFunc(routes, func(a, b RouteInfo) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}

		return strings.Compare(a.Method, b.Method)
	})

	return routes
}

func (rb *RouteBuilder) Get(path string, spec RouteSpec) error {
	return rb.handle(http.MethodGet, path, spec)
}

func (rb *RouteBuilder) Post(path string, spec RouteSpec) error {
	return rb.handle(http.MethodPost, path, spec)
}

func (rb *RouteBuilder) Put(path string, spec RouteSpec) error {
	return rb.handle(http.MethodPut, path, spec)
}

func (rb *RouteBuilder) Delete(path string, spec RouteSpec) error {
	return rb.handle(http.MethodDelete, path, spec)
}

func (rb *RouteBuilder) MustGet(path string, spec RouteSpec) {
	rb.must(http.MethodGet, path, spec)
}

func (rb *RouteBuilder) MustPost(path string, spec RouteSpec) {
	rb.must(http.MethodPost, path, spec)
}

func (rb *RouteBuilder) MustPut(path string, spec RouteSpec) {
	rb.must(http.MethodPut, path, spec)
}

func (rb *RouteBuilder) MustDelete(path string, spec RouteSpec) {
	rb.must(http.MethodDelete, path, spec)
}

// must terminates the program when a route cannot be registered.
func (rb *RouteBuilder) must(method, path string, spec RouteSpec) {
	if err := rb.handle(method, path, spec); err != nil {
		rb.l.Error("Failed to register route", slog.String("method", method), slog.String("path", path), utils.ErrAttr(err))
		os.Exit(1)
	}
}

func (rb *RouteBuilder) handle(method, path string, spec RouteSpec) error {
	spec.method = method
	spec.fullPath = pathspec.Sanitize(rb.prefix + "/" + path)

	if err := validateRouteSpec(spec); err != nil {
		return fmt.Errorf("invalid route spec for %s %s: %w", method, spec.fullPath, err)
	}

	if err := validateParameters(spec); err != nil {
		return fmt.Errorf("invalid parameters for %s %s: %w", method, spec.fullPath, err)
	}

	rb.registry.mu.Lock()
	defer rb.registry.mu.Unlock()

	if _, exists := rb.registry.operationIDs[spec.OperationID]; exists {
		return fmt.Errorf("duplicate operationID: %s", spec.OperationID)
	}

	rb.r.Method(method, path, spec.Handler)

	rb.registry.operationIDs[spec.OperationID] = struct{}{}
	rb.registry.routes = append(rb.registry.routes, RouteInfo{
		OperationID: spec.OperationID,
		Method:      method,
		Path:        spec.fullPath,
		Summary:     spec.Summary,
		Description: spec.Description,
		Group:       spec.Group,
		Deprecated:  spec.Deprecated,
		Parameters:  spec.Parameters,
		Responses:   spec.Responses,
	})

	rb.l.Debug("Registered route", slog.String("method", method), slog.String("path", spec.fullPath), slog.String("operationID", spec.OperationID))

	return nil
}
