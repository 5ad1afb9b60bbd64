package agents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
)

// Repository reads the agent directory and mutates the per-agent status row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListActive(ctx context.Context) ([]AgentWithStatus, error)
	FindAgent(ctx context.Context, agentID uuid.UUID) (*models.Agent, error)
	FindStatus(ctx context.Context, agentID uuid.UUID) (*models.AgentStatus, error)
	EnsureStatus(ctx context.Context, agentID uuid.UUID, capacity int) (*models.AgentStatus, error)
	UpdateLocation(ctx context.Context, agentID uuid.UUID, lat, lng float64, at time.Time) error
	SetCheckedIn(ctx context.Context, agentID uuid.UUID, checkedIn bool, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an agent directory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ListActive returns active agents oldest first, each with its status row if
// one exists. The order is stable so scoring ties resolve deterministically.
func (r *repository) ListActive(ctx context.Context) ([]AgentWithStatus, error) {
	var agents []models.Agent
	err := r.db.WithContext(ctx).
		Where("lifecycle_status = ?", enums.AgentLifecycleActive).
		Order("created_at ASC").
		Order("id ASC").
		Find(&agents).Error
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return []AgentWithStatus{}, nil
	}

	ids := make([]uuid.UUID, 0, len(agents))
	for _, agent := range agents {
		ids = append(ids, agent.ID)
	}

	var statuses []models.AgentStatus
	if err := r.db.WithContext(ctx).Where("agent_id IN ?", ids).Find(&statuses).Error; err != nil {
		return nil, err
	}
	byAgent := make(map[uuid.UUID]*models.AgentStatus, len(statuses))
	for i := range statuses {
		byAgent[statuses[i].AgentID] = &statuses[i]
	}

	out := make([]AgentWithStatus, 0, len(agents))
	for _, agent := range agents {
		out = append(out, AgentWithStatus{Agent: agent, Status: byAgent[agent.ID]})
	}
	return out, nil
}

func (r *repository) FindAgent(ctx context.Context, agentID uuid.UUID) (*models.Agent, error) {
	var agent models.Agent
	if err := r.db.WithContext(ctx).Where("id = ?", agentID).First(&agent).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *repository) FindStatus(ctx context.Context, agentID uuid.UUID) (*models.AgentStatus, error) {
	var status models.AgentStatus
	if err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).First(&status).Error; err != nil {
		return nil, err
	}
	return &status, nil
}

// EnsureStatus provisions a status row with the given capacity unless one
// already exists, then returns the stored row.
func (r *repository) EnsureStatus(ctx context.Context, agentID uuid.UUID, capacity int) (*models.AgentStatus, error) {
	row := models.AgentStatus{
		AgentID:          agentID,
		WorkloadCapacity: capacity,
		IsActive:         true,
		LastUpdated:      time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "agent_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}
	return r.FindStatus(ctx, agentID)
}

func (r *repository) UpdateLocation(ctx context.Context, agentID uuid.UUID, lat, lng float64, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.AgentStatus{}).
		Where("agent_id = ?", agentID).
		Updates(map[string]any{
			"last_lat":             lat,
			"last_lng":             lng,
			"location_recorded_at": at,
			"last_updated":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) SetCheckedIn(ctx context.Context, agentID uuid.UUID, checkedIn bool, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.AgentStatus{}).
		Where("agent_id = ?", agentID).
		Updates(map[string]any{
			"checked_in":   checkedIn,
			"last_updated": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
