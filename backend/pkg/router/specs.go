package router

import "net/http"

// ParameterIn is where a request parameter is carried.
type ParameterIn string

const (
	ParameterInPath   ParameterIn = "path"
	ParameterInQuery  ParameterIn = "query"
	ParameterInHeader ParameterIn = "header"
)

// ParameterSpec documents one request parameter.
type ParameterSpec struct {
	In          ParameterIn `json:"in"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
}

// ResponseSpec documents one possible response of a route.
type ResponseSpec struct {
	Description string `json:"description"`
	// Type is an instance of the response body, nil when there is none.
	Type any `json:"-"`
}

// RequestBodySpec documents the request body of a route.
type RequestBodySpec struct {
	Type any `json:"-"`
}

// RouteSpec describes a route. Every route must be documented before it is
// mounted.
type RouteSpec struct {
	OperationID string
	Summary     string
	Description string
	Group       string
	Deprecated  string
	RequestType *RequestBodySpec
	Parameters  map[string]ParameterSpec
	Responses   map[int]ResponseSpec
	Handler     http.HandlerFunc

	method   string
	fullPath string
}

// RouteInfo is the public description of a registered route.
type RouteInfo struct {
	OperationID string                   `json:"operationId"`
	Method      string                   `json:"method"`
	Path        string                   `json:"path"`
	Summary     string                   `json:"summary"`
	Description string                   `json:"description"`
	Group       string                   `json:"group"`
	Deprecated  string                   `json:"deprecated,omitempty"`
	Parameters  map[string]ParameterSpec `json:"parameters,omitempty"`
	Responses   map[int]ResponseSpec     `json:"responses,omitempty"`
}
