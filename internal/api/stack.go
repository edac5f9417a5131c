package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"demostack/internal/stack"
)

// registerStackRoutes wires the status, service, restart, and stop endpoints.
func (s *Server) registerStackRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Stack Status",
		Description: "Overall stack status: services, collectors, and stop state",
		Tags:        []string{"stack"},
	}, func(_ context.Context, _ *struct{}) (*StatusResponse, error) {
		services := s.listServices()

		data := StatusData{
			Services:  services,
			Dashboard: s.options.DashboardPath,
		}
		if s.options.IsStopping != nil {
			data.Stopping = s.options.IsStopping()
		}
		for _, info := range services {
			switch info.State {
			case stack.StateRunning:
				data.Running++
			case stack.StateError:
				data.Degraded++
			}
		}
		return &StatusResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-services",
		Method:      http.MethodGet,
		Path:        "/api/services",
		Summary:     "List Services",
		Description: "Snapshot of every managed service and collector",
		Tags:        []string{"stack"},
	}, func(_ context.Context, _ *struct{}) (*ServiceListResponse, error) {
		services := s.listServices()
		return &ServiceListResponse{
			Body: ServiceListData{Services: services, Count: len(services)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-service",
		Method:      http.MethodGet,
		Path:        "/api/services/{id}",
		Summary:     "Get Service",
		Description: "Snapshot of one managed service or collector",
		Tags:        []string{"stack"},
		Errors:      []int{404},
	}, func(_ context.Context, input *struct {
		ID string `path:"id" doc:"Service identifier"`
	}) (*ServiceResponse, error) {
		if s.options.Registry == nil {
			return nil, huma.Error404NotFound("service not found: " + input.ID)
		}
		info, ok := s.options.Registry.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("service not found: " + input.ID)
		}
		return &ServiceResponse{Body: info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-service",
		Method:      http.MethodPost,
		Path:        "/api/services/{id}/restart",
		Summary:     "Restart Service",
		Description: "Stop and relaunch one managed service or collector",
		Tags:        []string{"stack"},
		Errors:      []int{404, 500},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id" doc:"Service identifier"`
	}) (*RestartResponse, error) {
		if s.options.Registry == nil {
			return nil, huma.Error404NotFound("service not found: " + input.ID)
		}
		if _, ok := s.options.Registry.Get(input.ID); !ok {
			return nil, huma.Error404NotFound("service not found: " + input.ID)
		}

		if err := s.options.Registry.Restart(ctx, input.ID); err != nil {
			return nil, huma.Error500InternalServerError("restart failed", err)
		}

		info, _ := s.options.Registry.Get(input.ID)
		return &RestartResponse{
			Body: RestartData{Service: input.ID, State: string(info.State)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "request-stop",
		Method:      http.MethodPost,
		Path:        "/api/stop",
		Summary:     "Request Stop",
		Description: "Set the stop marker; the whole stack shuts down",
		Tags:        []string{"stack"},
		Errors:      []int{500},
	}, func(_ context.Context, _ *struct{}) (*StopResponse, error) {
		if s.options.Stop != nil {
			if err := s.options.Stop("api"); err != nil {
				return nil, huma.Error500InternalServerError("failed to set stop marker", err)
			}
		}
		return &StopResponse{Body: StopData{Stopping: true, Reason: "api"}}, nil
	})
}

func (s *Server) listServices() []stack.ServiceInfo {
	if s.options.Registry == nil {
		return nil
	}
	return s.options.Registry.List()
}
