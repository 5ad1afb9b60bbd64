package assignment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/internal/agents"
	"github.com/angelmondragon/printdesk-backend/pkg/db"
	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/metrics"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/printdesk-backend/pkg/pagination"
	"github.com/angelmondragon/printdesk-backend/pkg/types"
)

// Messages callers match on.
const (
	MsgNoAgentsAvailable = "no agents available"
	MsgAgentNotAvailable = "agent not available"
	MsgOrderNotFound     = "order not found"
	MsgAssignmentMissing = "assignment not found"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service coordinates order assignment and the assignment state machine.
type Service interface {
	Assign(ctx context.Context, input AssignInput) (*AssignResult, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*UpdateStatusResult, error)
	OrdersWithDetails(ctx context.Context, filters OrderFilters, params pagination.Params) (*OrderList, error)
	Preview(ctx context.Context, input PreviewInput) (*PreviewResult, error)
}

// ServiceParams groups the service dependencies.
type ServiceParams struct {
	Repo    Repository
	Agents  agents.Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Metrics *metrics.DispatchMetrics
	Weights Weights
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	agents  agents.Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics *metrics.DispatchMetrics
	weights Weights
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the assignment service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("assignment repository required")
	}
	if params.Agents == nil {
		return nil, fmt.Errorf("agents repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    params.Repo,
		agents:  params.Agents,
		tx:      params.Tx,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		weights: params.Weights,
		logg:    params.Logger,
		now:     time.Now,
	}, nil
}

func (s *service) Assign(ctx context.Context, input AssignInput) (*AssignResult, error) {
	mode := ModeManual
	if input.AutoAssign {
		mode = ModeAuto
	}
	if err := validateAssignInput(input); err != nil {
		s.metrics.IncAssignment(mode, metrics.OutcomeError)
		return nil, err
	}

	now := s.now().UTC()
	var result *AssignResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		agentRepo := s.agents.WithTx(tx)

		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, MsgOrderNotFound)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status.IsClosed() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s", order.Status))
		}
		if order.AssignedAgentID != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already assigned")
		}
		if _, err := repo.FindActiveAssignment(ctx, order.ID); err == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already assigned")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active assignment")
		}

		orderCtx := OrderContext{Urgent: order.Urgent, Target: targetFor(order, input.Target), Now: now}

		var chosen RankedCandidate
		if input.AutoAssign {
			candidates, err := agentRepo.ListActive(ctx)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agents")
			}
			best, ok := SelectAgent(candidates, orderCtx, input.ExcludeAgentIDs, s.weights)
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, MsgNoAgentsAvailable)
			}
			chosen = *best
		} else {
			candidate, err := s.loadManualCandidate(ctx, agentRepo, *input.AgentID)
			if err != nil {
				return err
			}
			chosen = RankedCandidate{Candidate: *candidate, Score: Score(*candidate, orderCtx, s.weights)}
		}
		agent := chosen.Candidate.Agent

		reserved, err := repo.ReserveSlot(ctx, agent.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve agent capacity")
		}
		if !reserved {
			return pkgerrors.New(pkgerrors.CodeConflict, "agent capacity changed").
				WithDetails(map[string]any{"agent_id": agent.ID})
		}

		assigned, err := repo.AssignOrder(ctx, order.ID, agent.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign order")
		}
		if !assigned {
			return pkgerrors.New(pkgerrors.CodeConflict, "order changed while assigning").
				WithDetails(map[string]any{"order_id": order.ID})
		}

		record := &models.OrderAssignment{
			OrderID:    order.ID,
			AgentID:    agent.ID,
			AssignedBy: strings.TrimSpace(input.AssignedBy),
			Status:     enums.AssignmentStatusAssigned,
			Notes:      input.Notes,
			AssignedAt: now,
		}
		if err := repo.CreateAssignment(ctx, record); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already has an active assignment")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create assignment")
		}

		order.Status = enums.OrderStatusProcessing
		order.AssignedAgentID = &agent.ID
		order.UpdatedAt = now

		score := chosen.Score.Total
		event := outbox.DomainEvent{
			EventType:     enums.EventAssignmentCreated,
			AggregateType: enums.AggregateOrderAssignment,
			AggregateID:   record.ID,
			Actor:         input.Actor,
			OccurredAt:    now,
			Data: payloads.AssignmentCreatedEvent{
				AssignmentID: record.ID,
				OrderID:      order.ID,
				AgentID:      agent.ID,
				AssignedBy:   record.AssignedBy,
				AutoAssigned: input.AutoAssign,
				Score:        &score,
				AssignedAt:   now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit assignment event")
		}

		breakdown := chosen.Score
		result = &AssignResult{
			Assignment:   newAssignmentView(*record),
			Agent:        newAgentSummary(agent),
			Order:        newOrderView(*order),
			AutoAssigned: input.AutoAssign,
			Score:        &breakdown,
		}
		return nil
	})
	if err != nil {
		s.metrics.IncAssignment(mode, assignOutcome(err))
		return nil, err
	}

	s.metrics.IncAssignment(mode, metrics.OutcomeAssigned)
	if input.AutoAssign && result.Score != nil {
		s.metrics.ObserveWinningScore(result.Score.Total)
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, input.OrderID.String())
		logCtx = s.logg.WithAgentID(logCtx, result.Agent.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"mode":          mode,
			"assignment_id": result.Assignment.ID.String(),
			"score":         result.Score.Total,
		})
		s.logg.Info(logCtx, "assignment.created")
	}
	return result, nil
}

func (s *service) loadManualCandidate(ctx context.Context, agentRepo agents.Repository, agentID uuid.UUID) (*Candidate, error) {
	agent, err := agentRepo.FindAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "agent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
	}
	status, err := agentRepo.FindStatus(ctx, agentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent status")
	}
	if !agents.IsAssignable(*agent, status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, MsgAgentNotAvailable)
	}
	return &Candidate{Agent: *agent, Status: status}, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*UpdateStatusResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id required")
	}
	if input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent_id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", input.Status))
	}

	now := s.now().UTC()
	var result *UpdateStatusResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindLatestAssignmentForAgent(ctx, input.OrderID, input.AgentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, MsgAssignmentMissing)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
		}
		from := current.Status
		if !from.CanTransitionTo(input.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move assignment from %s to %s", from, input.Status)).
				WithDetails(map[string]any{"current_status": from, "requested_status": input.Status})
		}

		updates := map[string]any{"updated_at": now}
		if input.Notes != nil {
			updates["notes"] = *input.Notes
			current.Notes = input.Notes
		}

		var (
			orderStatus enums.OrderStatus
			release     bool
		)
		switch input.Status {
		case enums.AssignmentStatusAccepted:
			updates["accepted_at"] = now
			current.AcceptedAt = &now
			orderStatus = enums.OrderStatusOutForDelivery
		case enums.AssignmentStatusCompleted:
			updates["completed_at"] = now
			current.CompletedAt = &now
			orderStatus = enums.OrderStatusDelivered
			release = true
		case enums.AssignmentStatusRejected:
			updates["rejected_at"] = now
			current.RejectedAt = &now
			release = true
		}

		ok, err := repo.TransitionAssignment(ctx, current.ID, from, input.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update assignment")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "assignment changed concurrently")
		}
		current.Status = input.Status

		if orderStatus != "" {
			if err := repo.UpdateOrderStatus(ctx, input.OrderID, orderStatus, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
		}
		if release {
			if err := repo.ReleaseSlot(ctx, input.AgentID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release agent capacity")
			}
		}
		if input.Status == enums.AssignmentStatusRejected {
			if err := repo.ClearOrderAgent(ctx, input.OrderID, input.AgentID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detach agent from order")
			}
		}

		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventAssignmentStatusChanged,
			AggregateType: enums.AggregateOrderAssignment,
			AggregateID:   current.ID,
			Actor:         input.Actor,
			OccurredAt:    now,
			Data: payloads.AssignmentStatusChangedEvent{
				AssignmentID: current.ID,
				OrderID:      current.OrderID,
				AgentID:      current.AgentID,
				From:         from,
				To:           input.Status,
				OrderStatus:  order.Status,
				Notes:        input.Notes,
				ChangedAt:    now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit assignment event")
		}

		result = &UpdateStatusResult{
			Assignment:     newAssignmentView(*current),
			PreviousStatus: from,
			OrderStatus:    order.Status,
			WorkloadFreed:  release,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(input.Status.String())
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, input.OrderID.String())
		logCtx = s.logg.WithAgentID(logCtx, input.AgentID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"from": result.PreviousStatus,
			"to":   input.Status,
		})
		s.logg.Info(logCtx, "assignment.status_changed")
	}
	return result, nil
}

func (s *service) OrdersWithDetails(ctx context.Context, filters OrderFilters, params pagination.Params) (*OrderList, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", *filters.Status))
	}
	list, err := s.repo.ListOrdersWithDetails(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

// Preview ranks eligible agents for an order without changing anything.
func (s *service) Preview(ctx context.Context, input PreviewInput) (*PreviewResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id required")
	}
	if input.Target != nil {
		if err := input.Target.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target location")
		}
	}

	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, MsgOrderNotFound)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	candidates, err := s.agents.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agents")
	}

	orderCtx := OrderContext{Urgent: order.Urgent, Target: targetFor(order, input.Target), Now: s.now().UTC()}
	ranked := Rank(candidates, orderCtx, input.ExcludeAgentIDs, s.weights)

	out := &PreviewResult{
		OrderID:    order.ID,
		Urgent:     order.Urgent,
		Target:     orderCtx.Target,
		Candidates: make([]CandidateView, 0, len(ranked)),
	}
	for _, r := range ranked {
		out.Candidates = append(out.Candidates, CandidateView{
			Agent:            newAgentSummary(r.Candidate.Agent),
			CurrentWorkload:  r.Candidate.Status.CurrentWorkload,
			WorkloadCapacity: r.Candidate.Status.WorkloadCapacity,
			Score:            r.Score,
		})
	}
	return out, nil
}

func validateAssignInput(input AssignInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order_id required")
	}
	if strings.TrimSpace(input.AssignedBy) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "assigned_by required")
	}
	if !input.AutoAssign && (input.AgentID == nil || *input.AgentID == uuid.Nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "agent_id required unless auto_assign is set")
	}
	if input.Target != nil {
		if err := input.Target.Validate(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target location")
		}
	}
	return nil
}

// targetFor prefers an explicit target and falls back to the order's
// delivery coordinates.
func targetFor(order *models.Order, override *types.GeoPoint) *types.GeoPoint {
	if override != nil {
		return override
	}
	return types.PointFrom(order.DeliveryLat, order.DeliveryLng)
}

func assignOutcome(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return metrics.OutcomeError
	}
	switch {
	case typed.Code() == pkgerrors.CodeConflict:
		return metrics.OutcomeConflict
	case typed.Message() == MsgNoAgentsAvailable:
		return metrics.OutcomeNoAgents
	case typed.Message() == MsgAgentNotAvailable:
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
