package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apitypes "arksync/backend/internal/api/types"
	sharedapi "arksync/backend/internal/shared/api"
	sharedtypes "arksync/backend/internal/shared/types"
	"arksync/backend/internal/store"
	"arksync/backend/pkg/router"
)

const serialParam = "serialNumber"

//nolint:gochecknoglobals // shared documentation of the path parameter
var serialParams = map[string]router.ParameterSpec{
	serialParam: {
		In:          router.ParameterInPath,
		Description: "USB serial number of the sensor's FTDI adapter",
		Required:    true,
	},
}

func notFound() router.ResponseSpec {
	return router.ResponseSpec{Description: "Sensor not found", Type: sharedtypes.ErrorResponse{}}
}

// deviceErrors are the responses of routes that talk to the circuit.
func deviceErrors(responses map[int]router.ResponseSpec) map[int]router.ResponseSpec {
	responses[http.StatusNotFound] = notFound()
	responses[http.StatusConflict] = router.ResponseSpec{Description: "Sensor connection unavailable", Type: sharedtypes.ErrorResponse{}}
	responses[http.StatusBadGateway] = router.ResponseSpec{Description: "Unexpected response from the circuit", Type: sharedtypes.ErrorResponse{}}
	responses[http.StatusGatewayTimeout] = router.ResponseSpec{Description: "Circuit did not answer in time", Type: sharedtypes.ErrorResponse{}}

	return sharedapi.GenerateResponses(responses)
}

func (h *Handler) ListSensors(w http.ResponseWriter, r *http.Request) error {
	all, err := h.svc.Sensors.List(r.Context())
	if err != nil {
		return httpError(err)
	}

	resp := apitypes.ListSensorsResponse{Sensors: make([]apitypes.SensorResponse, 0, len(all))}
	for _, s := range all {
		resp.Sensors = append(resp.Sensors, apitypes.NewSensorResponse(s))
	}

	sharedapi.RespondJSON(w, r, http.StatusOK, resp)

	return nil
}

func (h *Handler) RegisterListSensors(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "listSensors",
		Summary:     "List sensors",
		Description: "Returns every sensor in the fleet ordered by serial number",
		Group:       SensorsGroup,
		Handler:     sharedapi.ErrorHandler(h.ListSensors),
		Responses: sharedapi.GenerateResponses(map[int]router.ResponseSpec{
			200: {Description: "Sensors in the fleet", Type: apitypes.ListSensorsResponse{}},
		}),
	})
}

func (h *Handler) GetSensor(w http.ResponseWriter, r *http.Request) error {
	s, err := h.svc.Sensors.Get(r.Context(), chi.URLParam(r, serialParam))
	if err != nil {
		return httpError(err)
	}

	sharedapi.RespondJSON(w, r, http.StatusOK, apitypes.NewSensorResponse(s))

	return nil
}

func (h *Handler) RegisterGetSensor(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "getSensor",
		Summary:     "Get a sensor",
		Description: "Get a sensor by its serial number",
		Group:       SensorsGroup,
		Parameters:  serialParams,
		Handler:     sharedapi.ErrorHandler(h.GetSensor),
		Responses: sharedapi.GenerateResponses(map[int]router.ResponseSpec{
			200: {Description: "The sensor", Type: apitypes.SensorResponse{}},
			404: notFound(),
		}),
	})
}

func (h *Handler) RenameSensor(w http.ResponseWriter, r *http.Request) error {
	req, err := sharedapi.DecodeJSON[apitypes.RenameSensorRequest](r)
	if err != nil {
		return err
	}

	s, err := h.svc.Sensors.Rename(r.Context(), chi.URLParam(r, serialParam), req.Name)
	if err != nil {
		return httpError(err)
	}

	sharedapi.RespondJSON(w, r, http.StatusOK, apitypes.NewSensorResponse(s))

	return nil
}

func (h *Handler) RegisterRenameSensor(path string, rb *router.RouteBuilder) {
	rb.MustPut(path, router.RouteSpec{
		OperationID: "renameSensor",
		Summary:     "Rename a sensor",
		Description: "Stores a display name for the sensor. The name survives restarts and replugging. An empty name clears it.",
		Group:       SensorsGroup,
		Parameters:  serialParams,
		RequestType: &router.RequestBodySpec{Type: apitypes.RenameSensorRequest{}},
		Handler:     sharedapi.ErrorHandler(h.RenameSensor),
		Responses: sharedapi.GenerateResponses(map[int]router.ResponseSpec{
			200: {Description: "The renamed sensor", Type: apitypes.SensorResponse{}},
			400: {Description: "Invalid name", Type: sharedtypes.ErrorResponse{}},
			404: notFound(),
		}),
	})
}

func (h *Handler) GetSensorStatus(w http.ResponseWriter, r *http.Request) error {
	serial := chi.URLParam(r, serialParam)

	code, err := h.svc.Sensors.Status(r.Context(), serial)
	if err != nil {
		return httpError(err)
	}

	sharedapi.RespondJSON(w, r, http.StatusOK, apitypes.StatusResponse{SerialNumber: serial, Status: code.String()})

	return nil
}

func (h *Handler) RegisterGetSensorStatus(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "getSensorStatus",
		Summary:     "Get the restart reason of a sensor",
		Description: "Sends the Status command to the circuit and returns its last restart reason",
		Group:       SensorsGroup,
		Parameters:  serialParams,
		Handler:     sharedapi.ErrorHandler(h.GetSensorStatus),
		Responses: deviceErrors(map[int]router.ResponseSpec{
			200: {Description: "Restart reason", Type: apitypes.StatusResponse{}},
		}),
	})
}

func (h *Handler) GetSensorCalibration(w http.ResponseWriter, r *http.Request) error {
	serial := chi.URLParam(r, serialParam)

	cal, err := h.svc.Sensors.Calibration(r.Context(), serial)
	if err != nil {
		return httpError(err)
	}

	sharedapi.RespondJSON(w, r, http.StatusOK, apitypes.CalibrationResponse{
		SerialNumber:      serial,
		CalibrationPoints: cal.CalibrationPoints,
	})

	return nil
}

func (h *Handler) RegisterGetSensorCalibration(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "getSensorCalibration",
		Summary:     "Get the calibration of a sensor",
		Description: "Returns how many calibration points the circuit has stored",
		Group:       SensorsGroup,
		Parameters:  serialParams,
		Handler:     sharedapi.ErrorHandler(h.GetSensorCalibration),
		Responses: deviceErrors(map[int]router.ResponseSpec{
			200: {Description: "Calibration status", Type: apitypes.CalibrationResponse{}},
		}),
	})
}

func (h *Handler) SleepSensor(w http.ResponseWriter, r *http.Request) error {
	if err := h.svc.Sensors.Sleep(r.Context(), chi.URLParam(r, serialParam)); err != nil {
		return httpError(err)
	}

	sharedapi.RespondJSON(w, r, http.StatusNoContent, nil)

	return nil
}

func (h *Handler) RegisterSleepSensor(path string, rb *router.RouteBuilder) {
	rb.MustPost(path, router.RouteSpec{
		OperationID: "sleepSensor",
		Summary:     "Put a sensor to sleep",
		Description: "Sends the Sleep command. The next command wakes the circuit up.",
		Group:       SensorsGroup,
		Parameters:  serialParams,
		Handler:     sharedapi.ErrorHandler(h.SleepSensor),
		Responses: deviceErrors(map[int]router.ResponseSpec{
			204: {Description: "Command sent"},
		}),
	})
}

func (h *Handler) RawCommand(w http.ResponseWriter, r *http.Request) error {
	req, err := sharedapi.DecodeJSON[apitypes.RawCommandRequest](r)
	if err != nil {
		return err
	}

	resp, err := h.svc.Sensors.Raw(r.Context(), chi.URLParam(r, serialParam), req.Command)
	if err != nil {
		return httpError(err)
	}

	sharedapi.RespondJSON(w, r, http.StatusOK, apitypes.RawCommandResponse{Command: req.Command, Response: resp})

	return nil
}

func (h *Handler) RegisterRawCommand(path string, rb *router.RouteBuilder) {
	rb.MustPost(path, router.RouteSpec{
		OperationID: "sendRawCommand",
		Summary:     "Send a raw command",
		Description: "Sends an arbitrary EZO command and returns the untouched response. Meant for diagnostics.",
		Group:       SensorsGroup,
		Parameters:  serialParams,
		RequestType: &router.RequestBodySpec{Type: apitypes.RawCommandRequest{}},
		Handler:     sharedapi.ErrorHandler(h.RawCommand),
		Responses: deviceErrors(map[int]router.ResponseSpec{
			200: {Description: "Circuit response", Type: apitypes.RawCommandResponse{}},
			400: {Description: "Invalid command", Type: sharedtypes.ErrorResponse{}},
		}),
	})
}

func (h *Handler) ListSightings(w http.ResponseWriter, r *http.Request) error {
	sightings, err := h.svc.Sensors.Sightings(r.Context())
	if err != nil {
		return err
	}

	if sightings == nil {
		sightings = []store.Sighting{}
	}

	sharedapi.RespondJSON(w, r, http.StatusOK, apitypes.ListSightingsResponse{Sightings: sightings})

	return nil
}

func (h *Handler) RegisterListSightings(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "listSightings",
		Summary:     "List sensor history",
		Description: "Returns every sensor ever seen active with its first and latest activation",
		Group:       SensorsGroup,
		Handler:     sharedapi.ErrorHandler(h.ListSightings),
		Responses: sharedapi.GenerateResponses(map[int]router.ResponseSpec{
			200: {Description: "Sensor history", Type: apitypes.ListSightingsResponse{}},
		}),
	})
}
