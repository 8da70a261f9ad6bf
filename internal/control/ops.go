package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lunasched/lunasched/internal/domain"
)

// dispatch routes req to its handler, authenticating against the scope the
// operation requires before running it.
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	scope := scopeFor(req.Op)
	if _, err := s.authenticate(req, scope); err != nil {
		return errorResponse("unauthorized", err.Error())
	}

	switch req.Op {
	case "AddJob":
		return s.handleAddJob(ctx, req)
	case "UpdateJob":
		return s.handleUpdateJob(ctx, req)
	case "RemoveJob":
		return s.handleRemoveJob(ctx, req)
	case "GetJob":
		return s.handleGetJob(ctx, req)
	case "ListJobs":
		return s.handleListJobs(ctx, req)
	case "HistoryFor":
		return s.handleHistoryFor(ctx, req)
	case "StartNow":
		return s.handleStartNow(ctx, req)
	case "StopExecution":
		return s.handleStopExecution(ctx, req)
	case "ImportConfig":
		return s.handleImportConfig(ctx, req)
	default:
		return errorResponse("unknown_op", fmt.Sprintf("unknown op %q", req.Op))
	}
}

// scopeFor maps an op name to the scope it requires. Reads need ScopeRead;
// every mutation needs ScopeWrite.
func scopeFor(op string) string {
	switch op {
	case "GetJob", "ListJobs", "HistoryFor":
		return domain.ScopeRead
	default:
		return domain.ScopeWrite
	}
}

func classifyError(err error) (kind string) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrExecutionNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDuplicateJob):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidSchedule), errors.Is(err, domain.ErrUnknownTimeZone),
		errors.Is(err, domain.ErrInvalidRetryDelay), errors.Is(err, domain.ErrInvalidStatus):
		return "invalid_argument"
	default:
		return "internal"
	}
}

func (s *Server) handleAddJob(ctx context.Context, req Request) Response {
	var job domain.Job
	if err := json.Unmarshal(req.Payload, &job); err != nil {
		return errorResponse("invalid_argument", err.Error())
	}
	created, err := s.service.AddJob(ctx, &job)
	if err != nil {
		return errorResponse(classifyError(err), err.Error())
	}
	return resultResponse(created)
}

func (s *Server) handleUpdateJob(ctx context.Context, req Request) Response {
	var job domain.Job
	if err := json.Unmarshal(req.Payload, &job); err != nil {
		return errorResponse("invalid_argument", err.Error())
	}
	updated, err := s.service.UpdateJob(ctx, &job)
	if err != nil {
		return errorResponse(classifyError(err), err.Error())
	}
	return resultResponse(updated)
}

func (s *Server) handleRemoveJob(ctx context.Context, req Request) Response {
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return errorResponse("invalid_argument", err.Error())
	}
	if err := s.service.RemoveJob(ctx, payload.Name); err != nil {
		return errorResponse(classifyError(err), err.Error())
	}
	return resultResponse(map[string]bool{"removed": true})
}

func (s *Server) handleGetJob(ctx context.Context, req Request) Response {
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return errorResponse("invalid_argument", err.Error())
	}
	job, err := s.service.GetJob(ctx, payload.Name)
	if err != nil {
		return errorResponse(classifyError(err), err.Error())
	}
	return resultResponse(job)
}

func (s *Server) handleListJobs(ctx context.Context, req Request) Response {
	var filter domain.JobFilter
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &filter); err != nil {
			return errorResponse("invalid_argument", err.Error())
		}
	}
	jobs, err := s.service.ListJobs(ctx, filter)
	if err != nil {
		return errorResponse(classifyError(err), err.Error())
	}
	return resultResponse(jobs)
}

func (s *Server) handleHistoryFor(ctx context.Context, req Request) Response {
	var payload struct {
		JobName string                 `json:"jobName"`
		Filter  domain.ExecutionFilter `json:"filter"`
	}
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return errorResponse("invalid_argument", err.Error())
	}
	history, err := s.service.HistoryFor(ctx, payload.JobName, payload.Filter)
	if err != nil {
		return errorResponse(classifyError(err), err.Error())
	}
	return resultResponse(history)
}

func (s *Server) handleStartNow(ctx context.Context, req Request) Response {
	var payload struct {
		JobName string `json:"jobName"`
	}
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return errorResponse("invalid_argument", err.Error())
	}
	execID, err := s.service.StartNow(ctx, payload.JobName)
	if err != nil {
		return errorResponse(classifyError(err), err.Error())
	}
	return resultResponse(map[string]string{"executionId": execID.String()})
}

func (s *Server) handleStopExecution(ctx context.Context, req Request) Response {
	var payload struct {
		ExecutionID string `json:"executionId"`
	}
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return errorResponse("invalid_argument", err.Error())
	}
	id, err := uuid.Parse(payload.ExecutionID)
	if err != nil {
		return errorResponse("invalid_argument", "executionId is not a valid UUID")
	}
	if err := s.service.StopExecution(ctx, id); err != nil {
		return errorResponse("not_found", err.Error())
	}
	return resultResponse(map[string]bool{"stopped": true})
}

func (s *Server) handleImportConfig(ctx context.Context, req Request) Response {
	var payload struct {
		Jobs []domain.Job `json:"jobs"`
	}
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return errorResponse("invalid_argument", err.Error())
	}
	jobs := make([]*domain.Job, len(payload.Jobs))
	for i := range payload.Jobs {
		jobs[i] = &payload.Jobs[i]
	}
	if err := s.service.ImportConfig(ctx, jobs); err != nil {
		return errorResponse(classifyError(err), err.Error())
	}
	return resultResponse(map[string]int{"imported": len(jobs)})
}
