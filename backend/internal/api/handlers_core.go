package api

import (
	"net/http"
	"time"

	apitypes "arksync/backend/internal/api/types"
	sharedapi "arksync/backend/internal/shared/api"
	sharedtypes "arksync/backend/internal/shared/types"
	"arksync/backend/pkg/router"
	"arksync/backend/pkg/utils"
)

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) error {
	sharedapi.RespondJSON(w, r, http.StatusOK, sharedtypes.PingResponse{
		Message: "Pong",
		Version: utils.GetVersionShort(),
		Time:    time.Now().UTC(),
	})

	return nil
}

func (h *Handler) RegisterPing(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "ping",
		Summary:     "Ping the server",
		Description: "Check if the server is alive",
		Group:       CoreGroup,
		Handler:     sharedapi.ErrorHandler(h.Ping),
		Responses: sharedapi.GenerateResponses(map[int]router.ResponseSpec{
			200: {Description: "Successful ping response", Type: sharedtypes.PingResponse{}},
		}),
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) error {
	status := h.svc.Core.Health(r.Context())
	resp := apitypes.HealthResponse{
		Database: status.Database,
		MQTT:     status.MQTT,
		Fleet:    status.Fleet,
		Redis:    status.Redis,
	}

	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}

	sharedapi.RespondJSON(w, r, code, resp)

	return nil
}

func (h *Handler) RegisterHealth(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "health",
		Summary:     "Check server health",
		Description: "Reports the database, MQTT, fleet supervisor and, when configured, Redis",
		Group:       CoreGroup,
		Handler:     sharedapi.ErrorHandler(h.Health),
		Responses: sharedapi.GenerateResponses(map[int]router.ResponseSpec{
			200: {Description: "Every dependency is up", Type: apitypes.HealthResponse{}},
			503: {Description: "At least one dependency is down", Type: apitypes.HealthResponse{}},
		}),
	})
}

// RegisterRoutes documents every route registered on rb, including those added later.
func (h *Handler) RegisterRoutes(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "listRoutes",
		Summary:     "List API routes",
		Description: "Returns the documentation of every registered route",
		Group:       CoreGroup,
		Handler: sharedapi.ErrorHandler(func(w http.ResponseWriter, r *http.Request) error {
			sharedapi.RespondJSON(w, r, http.StatusOK, apitypes.ListRoutesResponse{Routes: rb.Routes()})
			return nil
		}),
		Responses: sharedapi.GenerateResponses(map[int]router.ResponseSpec{
			200: {Description: "Registered routes", Type: apitypes.ListRoutesResponse{}},
		}),
	})
}

func (h *Handler) RegisterStream(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "streamTelemetry",
		Summary:     "Stream readings and state changes",
		Description: "Upgrades to a websocket that receives every reading and sensor state change as JSON envelopes",
		Group:       CoreGroup,
		Handler:     h.stream.ServeHTTP,
		Responses: map[int]router.ResponseSpec{
			101: {Description: "Switching to the websocket protocol"},
			400: {Description: "Not a websocket handshake"},
		},
	})
}
