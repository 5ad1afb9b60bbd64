package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/types"
)

// Service exposes the agent directory to dispatchers and field devices.
type Service interface {
	AvailableAgents(ctx context.Context) (*AvailableAgents, error)
	UpdateLocation(ctx context.Context, agentID uuid.UUID, point types.GeoPoint) (*StatusView, error)
}

type service struct {
	repo            Repository
	defaultCapacity int
	logg            *logger.Logger
	now             func() time.Time
}

// NewService builds the directory service. defaultCapacity seeds status rows
// created on first contact with an agent.
func NewService(repo Repository, defaultCapacity int, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("agents repository required")
	}
	if defaultCapacity <= 0 {
		return nil, fmt.Errorf("default capacity must be positive")
	}
	return &service{
		repo:            repo,
		defaultCapacity: defaultCapacity,
		logg:            logg,
		now:             time.Now,
	}, nil
}

func (s *service) AvailableAgents(ctx context.Context) (*AvailableAgents, error) {
	rows, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agents")
	}

	out := &AvailableAgents{Agents: make([]AgentView, 0, len(rows))}
	for _, row := range rows {
		view := AgentView{
			ID:              row.Agent.ID,
			FirstName:       row.Agent.FirstName,
			LastName:        row.Agent.LastName,
			Name:            row.Agent.FullName(),
			VehicleType:     row.Agent.VehicleType,
			LifecycleStatus: row.Agent.LifecycleStatus,
			CreatedAt:       row.Agent.CreatedAt,
			Available:       IsAssignable(row.Agent, row.Status),
			Status:          NewStatusView(row.Status),
		}
		if row.Status != nil {
			out.TotalCapacity += row.Status.WorkloadCapacity
			out.UsedCapacity += row.Status.CurrentWorkload
			out.AvailableSlots += row.Status.AvailableSlots()
		}
		if view.Available {
			out.AvailableCount++
		}
		out.Agents = append(out.Agents, view)
	}
	out.TotalAgents = len(out.Agents)
	return out, nil
}

func (s *service) UpdateLocation(ctx context.Context, agentID uuid.UUID, point types.GeoPoint) (*StatusView, error) {
	if agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}
	if err := point.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location")
	}

	if _, err := s.repo.FindAgent(ctx, agentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "agent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
	}
	if _, err := s.repo.EnsureStatus(ctx, agentID, s.defaultCapacity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "provision agent status")
	}

	recordedAt := s.now().UTC()
	if point.RecordedAt != nil && !point.RecordedAt.IsZero() {
		recordedAt = point.RecordedAt.UTC()
	}
	if err := s.repo.UpdateLocation(ctx, agentID, point.Lat, point.Lng, recordedAt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent location")
	}

	status, err := s.repo.FindStatus(ctx, agentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload agent status")
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithAgentID(ctx, agentID.String()), "agent.location_updated")
	}
	return NewStatusView(status), nil
}
