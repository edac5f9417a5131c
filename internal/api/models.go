package api

import (
	"demostack/internal/logging"
	"demostack/internal/stack"
	"demostack/internal/version"
)

// HealthData is the health check payload.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Message string `json:"message" example:"API is healthy" doc:"Health detail"`
}

// HealthResponse wraps HealthData for Huma.
type HealthResponse struct {
	Body HealthData
}

// VersionResponse wraps version info for Huma.
type VersionResponse struct {
	Body version.Info
}

// StatusData summarizes the whole stack.
type StatusData struct {
	Stopping  bool                `json:"stopping" doc:"Whether a stop has been requested"`
	Services  []stack.ServiceInfo `json:"services" doc:"All managed services and collectors"`
	Running   int                 `json:"running" doc:"Entries currently running"`
	Degraded  int                 `json:"degraded" doc:"Entries in error state"`
	Dashboard string              `json:"dashboard,omitempty" doc:"Path of the rendered dashboard snapshot"`
}

// StatusResponse wraps StatusData for Huma.
type StatusResponse struct {
	Body StatusData
}

// ServiceListData lists managed services.
type ServiceListData struct {
	Services []stack.ServiceInfo `json:"services" doc:"Managed services and collectors"`
	Count    int                 `json:"count" doc:"Number of entries"`
}

// ServiceListResponse wraps ServiceListData for Huma.
type ServiceListResponse struct {
	Body ServiceListData
}

// ServiceResponse wraps one service snapshot for Huma.
type ServiceResponse struct {
	Body stack.ServiceInfo
}

// RestartData reports the result of a restart request.
type RestartData struct {
	Service string `json:"service" doc:"Restarted service"`
	State   string `json:"state" doc:"State after relaunch"`
}

// RestartResponse wraps RestartData for Huma.
type RestartResponse struct {
	Body RestartData
}

// StopData acknowledges a stop request.
type StopData struct {
	Stopping bool   `json:"stopping" doc:"Always true after a stop request"`
	Reason   string `json:"reason" doc:"Recorded stop reason"`
}

// StopResponse wraps StopData for Huma.
type StopResponse struct {
	Body StopData
}

// LogsData carries recent log history.
type LogsData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Recent log entries, oldest first"`
	Count   int                `json:"count" doc:"Number of entries"`
}

// LogsResponse wraps LogsData for Huma.
type LogsResponse struct {
	Body LogsData
}
