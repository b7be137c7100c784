package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/procwatch/internal/api/models"
	"github.com/smazurov/procwatch/internal/process"
)

type processIDInput struct {
	ID string `path:"id" example:"web" doc:"Process identifier"`
}

// registerProcessRoutes registers all process-related endpoints
func (s *Server) registerProcessRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-processes",
		Method:      http.MethodGet,
		Path:        "/api/processes",
		Summary:     "List Processes",
		Description: "Get every supervised process in group order",
		Tags:        []string{"processes"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.ProcessListResponse, error) {
		handles := s.processes.List()
		data := make([]models.ProcessData, len(handles))
		for i, h := range handles {
			data[i] = processToAPI(h)
		}
		return &models.ProcessListResponse{
			Body: models.ProcessListData{Processes: data, Count: len(data)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-process",
		Method:        http.MethodPost,
		Path:          "/api/processes",
		Summary:       "Create Process",
		Description:   "Add a process to the group and start it. A process that fails to launch is not kept.",
		Tags:          []string{"processes"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 409, 422, 500},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.ProcessCreateRequest) (*models.ProcessResponse, error) {
		params, err := paramsFromAPI(input.Body)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error(), err)
		}

		h, err := s.processes.Add(input.Body.ID, params)
		if err != nil {
			if h != nil {
				if rmErr := s.processes.Remove(h.ID()); rmErr != nil {
					s.logger.Warn("Failed to drop process that did not launch", "id", h.ID(), "error", rmErr)
				}
			}
			return nil, mapProcessError(err)
		}
		return &models.ProcessResponse{Body: processToAPI(h)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-process",
		Method:      http.MethodGet,
		Path:        "/api/processes/{id}",
		Summary:     "Get Process",
		Description: "Get the current state of one process",
		Tags:        []string{"processes"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *processIDInput) (*models.ProcessResponse, error) {
		h, err := s.processes.Get(input.ID)
		if err != nil {
			return nil, mapProcessError(err)
		}
		h.Refresh()
		return &models.ProcessResponse{Body: processToAPI(h)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-process",
		Method:        http.MethodDelete,
		Path:          "/api/processes/{id}",
		Summary:       "Delete Process",
		Description:   "Stop a process and remove it from the group",
		Tags:          []string{"processes"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404, 500},
		Security:      withAuth(),
	}, func(ctx context.Context, input *processIDInput) (*struct{}, error) {
		if err := s.processes.Remove(input.ID); err != nil {
			return nil, mapProcessError(err)
		}
		return &struct{}{}, nil
	})

	s.registerProcessAction("start", "Start Process", "Start a process that has not been started yet", s.processes.Start)
	s.registerProcessAction("stop", "Stop Process", "Forcibly terminate a process; a no-op when it is not running", s.processes.Stop)
	s.registerProcessAction("restart", "Restart Process", "Replace a process with a fresh one built from the same parameters", s.processes.Restart)

	huma.Register(s.api, huma.Operation{
		OperationID: "set-process-output",
		Method:      http.MethodPut,
		Path:        "/api/processes/{id}/output/{stream}",
		Summary:     "Toggle Output",
		Description: "Forward or suppress one output stream. Suppressed output is still drained.",
		Tags:        []string{"processes"},
		Errors:      []int{400, 401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.OutputToggleRequest) (*models.ProcessResponse, error) {
		h, err := s.processes.SetOutput(input.ID, process.Stream(input.Stream), input.Body.Active)
		if err != nil {
			return nil, mapProcessError(err)
		}
		return &models.ProcessResponse{Body: processToAPI(h)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-process-output",
		Method:      http.MethodGet,
		Path:        "/api/processes/{id}/output",
		Summary:     "Output History",
		Description: "Get the retained output lines of one process",
		Tags:        []string{"processes"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id" example:"web" doc:"Process identifier"`
		Stream string `query:"stream" example:"stderr" doc:"Only lines of this stream (stdout or stderr)"`
	}) (*models.OutputHistoryResponse, error) {
		if input.Stream != "" && input.Stream != string(process.Stdout) && input.Stream != string(process.Stderr) {
			return nil, huma.Error400BadRequest(fmt.Sprintf("unknown stream %q", input.Stream))
		}
		if _, err := s.processes.Get(input.ID); err != nil {
			return nil, mapProcessError(err)
		}

		lines := []models.OutputLineData{}
		if s.history != nil {
			for _, e := range s.history.Entries(input.ID) {
				if input.Stream != "" && string(e.Stream) != input.Stream {
					continue
				}
				lines = append(lines, outputEntryToAPI(e))
			}
		}
		return &models.OutputHistoryResponse{
			Body: models.OutputHistoryData{Lines: lines, Count: len(lines)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "check-processes",
		Method:      http.MethodGet,
		Path:        "/api/check",
		Summary:     "Check Processes",
		Description: "Re-evaluate liveness of every process and report its status line",
		Tags:        []string{"processes"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.CheckResponse, error) {
		reports := s.processes.Check(true)
		data := models.CheckData{Reports: make([]models.ReportData, len(reports))}
		for i, r := range reports {
			data.Reports[i] = reportToAPI(r)
			if r.Running {
				data.Running++
			}
		}
		return &models.CheckResponse{Body: data}, nil
	})
}

func (s *Server) registerProcessAction(action, summary, description string, op func(id string) (*process.Handle, error)) {
	huma.Register(s.api, huma.Operation{
		OperationID: action + "-process",
		Method:      http.MethodPost,
		Path:        "/api/processes/{id}/" + action,
		Summary:     summary,
		Description: description,
		Tags:        []string{"processes"},
		Errors:      []int{401, 404, 409, 422, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *processIDInput) (*models.ProcessResponse, error) {
		h, err := op(input.ID)
		if err != nil {
			return nil, mapProcessError(err)
		}
		return &models.ProcessResponse{Body: processToAPI(h)}, nil
	})
}

// paramsFromAPI converts a create request into launch parameters.
func paramsFromAPI(data models.ProcessCreateData) (process.Params, error) {
	params := process.Params{
		Command:        data.Command,
		Args:           data.Args,
		Dir:            data.Dir,
		Env:            data.Env,
		SuppressStdout: data.Stdout != nil && !*data.Stdout,
		SuppressStderr: data.Stderr != nil && !*data.Stderr,
		LineWidth:      data.LineWidth,
		MaxLineBytes:   data.MaxLineBytes,
	}
	if data.PollInterval != "" {
		d, err := time.ParseDuration(data.PollInterval)
		if err != nil {
			return params, fmt.Errorf("invalid poll_interval: %w", err)
		}
		params.PollInterval = d
	}
	if data.GracefulTimeout != "" {
		d, err := time.ParseDuration(data.GracefulTimeout)
		if err != nil {
			return params, fmt.Errorf("invalid graceful_timeout: %w", err)
		}
		params.GracefulTimeout = d
	}
	if params.Command == "" && len(params.Args) == 0 {
		return params, process.ErrEmptyCommand
	}
	return params, nil
}

// processToAPI converts a handle into its API representation
func processToAPI(h *process.Handle) models.ProcessData {
	info := h.Info()
	params := h.Params()

	data := models.ProcessData{
		ID:           info.ID,
		State:        string(info.State),
		Running:      info.State == process.StateRunning && h.IsRunning(),
		PID:          info.PID,
		Command:      params.CommandLine(),
		Dir:          params.Dir,
		PollInterval: pollInterval(params).String(),
		StdoutActive: h.StdoutActive(),
		StderrActive: h.StderrActive(),
		StdoutLines:  info.StdoutLines,
		StderrLines:  info.StderrLines,
	}
	if !info.StartedAt.IsZero() {
		data.StartedAt = info.StartedAt.Format(time.RFC3339)
	}
	if !info.EndedAt.IsZero() {
		data.EndedAt = info.EndedAt.Format(time.RFC3339)
	}
	if info.ExitKnown {
		code := info.ExitCode
		data.ExitCode = &code
	}
	if info.LastError != nil {
		data.LastError = info.LastError.Error()
	}
	return data
}

func pollInterval(p process.Params) time.Duration {
	if p.PollInterval > 0 {
		return p.PollInterval
	}
	return process.DefaultPollInterval
}

func reportToAPI(r process.Report) models.ReportData {
	data := models.ReportData{
		ID:      r.ID,
		State:   string(r.State),
		Running: r.Running,
		Message: r.Message(),
	}
	if r.ExitKnown {
		code := r.ExitCode
		data.ExitCode = &code
	}
	if r.LastError != nil {
		data.LastError = r.LastError.Error()
	}
	return data
}

func outputEntryToAPI(e process.OutputEntry) models.OutputLineData {
	return models.OutputLineData{
		ID:        e.ID,
		Stream:    string(e.Stream),
		Line:      e.Line,
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
	}
}

// mapProcessError maps domain errors to HTTP errors
func mapProcessError(err error) error {
	var launchErr *process.LaunchError
	switch {
	case errors.Is(err, process.ErrNotFound):
		return huma.Error404NotFound(err.Error(), err)
	case errors.Is(err, process.ErrDuplicateID), errors.Is(err, process.ErrAlreadyStarted):
		return huma.Error409Conflict(err.Error(), err)
	case errors.Is(err, process.ErrInvalidInterval), errors.Is(err, process.ErrEmptyCommand):
		return huma.Error400BadRequest(err.Error(), err)
	case errors.As(err, &launchErr):
		return huma.Error422UnprocessableEntity(err.Error(), err)
	default:
		return huma.Error500InternalServerError("internal server error", err)
	}
}
