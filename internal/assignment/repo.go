package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
	"github.com/angelmondragon/printdesk-backend/pkg/pagination"
)

// Repository persists orders, assignments and the workload counter. Every
// mutating method is conditional and reports whether its precondition held.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindActiveAssignment(ctx context.Context, orderID uuid.UUID) (*models.OrderAssignment, error)
	FindLatestAssignmentForAgent(ctx context.Context, orderID, agentID uuid.UUID) (*models.OrderAssignment, error)
	CreateAssignment(ctx context.Context, assignment *models.OrderAssignment) error
	ReserveSlot(ctx context.Context, agentID uuid.UUID, at time.Time) (bool, error)
	ReleaseSlot(ctx context.Context, agentID uuid.UUID, at time.Time) error
	AssignOrder(ctx context.Context, orderID, agentID uuid.UUID, at time.Time) (bool, error)
	TransitionAssignment(ctx context.Context, assignmentID uuid.UUID, from, to enums.AssignmentStatus, updates map[string]any) (bool, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, at time.Time) error
	ClearOrderAgent(ctx context.Context, orderID, agentID uuid.UUID, at time.Time) error
	ListOrdersWithDetails(ctx context.Context, filters OrderFilters, params pagination.Params) (*OrderList, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an assignment repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindActiveAssignment(ctx context.Context, orderID uuid.UUID) (*models.OrderAssignment, error) {
	var assignment models.OrderAssignment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, enums.ActiveAssignmentStatuses).
		First(&assignment).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindLatestAssignmentForAgent returns the newest assignment of the order to
// the agent, terminal or not.
func (r *repository) FindLatestAssignmentForAgent(ctx context.Context, orderID, agentID uuid.UUID) (*models.OrderAssignment, error) {
	var assignment models.OrderAssignment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND agent_id = ?", orderID, agentID).
		Order("assigned_at DESC").
		Order("id DESC").
		First(&assignment).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *repository) CreateAssignment(ctx context.Context, assignment *models.OrderAssignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

// ReserveSlot takes one unit of capacity. It returns false when the agent has
// no status row or is already at capacity.
func (r *repository) ReserveSlot(ctx context.Context, agentID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.AgentStatus{}).
		Where("agent_id = ? AND is_active = ? AND current_workload < workload_capacity", agentID, true).
		Updates(map[string]any{
			"current_workload": gorm.Expr("current_workload + 1"),
			"last_updated":     at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseSlot gives back one unit of capacity, never going below zero.
func (r *repository) ReleaseSlot(ctx context.Context, agentID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.AgentStatus{}).
		Where("agent_id = ?", agentID).
		Updates(map[string]any{
			"current_workload": gorm.Expr("CASE WHEN current_workload > 0 THEN current_workload - 1 ELSE 0 END"),
			"last_updated":     at,
		}).Error
}

// AssignOrder points an open, unassigned order at the agent and moves it to
// Processing.
func (r *repository) AssignOrder(ctx context.Context, orderID, agentID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND assigned_agent_id IS NULL AND status NOT IN ?", orderID,
			[]enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCancelled}).
		Updates(map[string]any{
			"assigned_agent_id": agentID,
			"status":            enums.OrderStatusProcessing,
			"updated_at":        at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// TransitionAssignment applies updates only while the row is still in from.
func (r *repository) TransitionAssignment(ctx context.Context, assignmentID uuid.UUID, from, to enums.AssignmentStatus, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = to

	res := r.db.WithContext(ctx).
		Model(&models.OrderAssignment{}).
		Where("id = ? AND status = ?", assignmentID, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{"status": status, "updated_at": at}).Error
}

// ClearOrderAgent detaches the agent from the order if it is still the one
// assigned.
func (r *repository) ClearOrderAgent(ctx context.Context, orderID, agentID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND assigned_agent_id = ?", orderID, agentID).
		Updates(map[string]any{"assigned_agent_id": nil, "updated_at": at}).Error
}

// ListOrdersWithDetails pages orders newest first with their current
// assignment and agent.
func (r *repository) ListOrdersWithDetails(ctx context.Context, filters OrderFilters, params pagination.Params) (*OrderList, error) {
	page, err := pagination.Keyset(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.AgentID != nil {
		query = query.Where("assigned_agent_id = ?", *filters.AgentID)
	}

	var orders []models.Order
	if err := query.Scopes(page).Find(&orders).Error; err != nil {
		return nil, err
	}

	orders, next := pagination.Trim(orders, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	out := &OrderList{Orders: make([]OrderDetail, 0, len(orders)), NextCursor: next}
	if len(orders) == 0 {
		return out, nil
	}

	orderIDs := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		orderIDs = append(orderIDs, o.ID)
	}

	var assignments []models.OrderAssignment
	err = r.db.WithContext(ctx).
		Where("order_id IN ?", orderIDs).
		Order("assigned_at DESC").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[uuid.UUID]models.OrderAssignment, len(assignments))
	agentIDs := make([]uuid.UUID, 0, len(assignments))
	for _, a := range assignments {
		if _, seen := latest[a.OrderID]; seen {
			continue
		}
		latest[a.OrderID] = a
		agentIDs = append(agentIDs, a.AgentID)
	}
	for _, o := range orders {
		if o.AssignedAgentID != nil {
			agentIDs = append(agentIDs, *o.AssignedAgentID)
		}
	}

	agentsByID := map[uuid.UUID]models.Agent{}
	if len(agentIDs) > 0 {
		var agentRows []models.Agent
		if err := r.db.WithContext(ctx).Where("id IN ?", agentIDs).Find(&agentRows).Error; err != nil {
			return nil, err
		}
		for _, a := range agentRows {
			agentsByID[a.ID] = a
		}
	}

	for _, o := range orders {
		detail := OrderDetail{OrderView: newOrderView(o)}
		if a, ok := latest[o.ID]; ok {
			view := newAssignmentView(a)
			detail.Assignment = &view
		}
		agentID := o.AssignedAgentID
		if agentID == nil && detail.Assignment != nil {
			agentID = &detail.Assignment.AgentID
		}
		if agentID != nil {
			if agent, ok := agentsByID[*agentID]; ok {
				summary := newAgentSummary(agent)
				detail.Agent = &summary
			}
		}
		out.Orders = append(out.Orders, detail)
	}
	return out, nil
}
