package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/groupquest/internal/engine"
	"github.com/playperu/groupquest/internal/groupquest"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse documents the body served by the health handler.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type sessionPath struct {
	SessionID string `path:"sessionID"`
}

type identityHeaders struct {
	UserID   string `header:"X-User-ID" required:"true"`
	UserName string `header:"X-User-Name"`
}

type groupingInput struct {
	sessionPath
	groupquest.GroupingRequest
}

type submitInput struct {
	identityHeaders
	SessionID string `path:"sessionID"`
	Group     int    `path:"group"`
	SubmitRequest
}

type joinInput struct {
	identityHeaders
	sessionPath
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "GroupQuest API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Session lifecycle for group play: join codes, lobby, group formation and team scoring.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/sessions
	postSession, _ := r.NewOperationContext(http.MethodPost, "/api/sessions")
	postSession.SetSummary("Resolve join code")
	postSession.SetDescription("Returns the session for a join code, creating it on first use. Codes are case-insensitive.")
	postSession.AddReqStructure(ResolveRequest{})
	postSession.AddRespStructure(ResolveResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(postSession)

	// POST /api/sessions/{sessionID}/join
	postJoin, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{sessionID}/join")
	postJoin.SetSummary("Join lobby")
	postJoin.SetDescription("Adds the calling user to the lobby. Idempotent. Refused once groups are formed.")
	postJoin.AddReqStructure(joinInput{})
	postJoin.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	postJoin.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postJoin.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postJoin)

	// GET /api/sessions/{sessionID}/state
	getState, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{sessionID}/state")
	getState.SetSummary("Get session state")
	getState.SetDescription("Returns the phase, roster, groups with progress, and the winner once known.")
	getState.AddReqStructure(sessionPath{})
	getState.AddRespStructure(groupquest.State{}, openapi.WithHTTPStatus(http.StatusOK))
	getState.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getState)

	// POST /api/sessions/{sessionID}/groups/{group}/submit
	postSubmit, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{sessionID}/groups/{group}/submit")
	postSubmit.SetSummary("Submit group score")
	postSubmit.SetDescription("Records a group's score. A score at or above passScore finishes the group exactly once.")
	postSubmit.AddReqStructure(submitInput{})
	postSubmit.AddRespStructure(engine.SubmitResult{}, openapi.WithHTTPStatus(http.StatusOK))
	postSubmit.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postSubmit.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postSubmit.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postSubmit)

	// GET /api/sessions/{sessionID}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{sessionID}/events")
	getEvents.SetSummary("SSE state stream")
	getEvents.SetDescription("Server-Sent Events stream. Each `state` event carries the full session state.")
	getEvents.AddReqStructure(sessionPath{})
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /ws/sessions/{sessionID}
	getWS, _ := r.NewOperationContext(http.MethodGet, "/ws/sessions/{sessionID}")
	getWS.SetSummary("WebSocket state stream")
	getWS.SetDescription("Upgrades to a WebSocket that sends the session state as JSON on connect and after every change.")
	getWS.AddReqStructure(sessionPath{})
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("application/json"))
	_ = r.AddOperation(getWS)

	// POST /api/admin/sessions/{sessionID}/groups
	postGroups, _ := r.NewOperationContext(http.MethodPost, "/api/admin/sessions/{sessionID}/groups")
	postGroups.SetSummary("Form groups")
	postGroups.SetDescription("Closes the lobby and partitions the roster into groups. Requires admin bearer token when configured.")
	postGroups.AddReqStructure(groupingInput{})
	postGroups.AddRespStructure(groupquest.State{}, openapi.WithHTTPStatus(http.StatusOK))
	postGroups.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postGroups.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	postGroups.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postGroups.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(postGroups)

	// POST /api/admin/sessions/{sessionID}/start
	postStart, _ := r.NewOperationContext(http.MethodPost, "/api/admin/sessions/{sessionID}/start")
	postStart.SetSummary("Start session")
	postStart.SetDescription("Moves a grouped session into play. Requires admin bearer token when configured.")
	postStart.AddReqStructure(sessionPath{})
	postStart.AddRespStructure(groupquest.State{}, openapi.WithHTTPStatus(http.StatusOK))
	postStart.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	postStart.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postStart)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
