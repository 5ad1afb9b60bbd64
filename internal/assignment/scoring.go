package assignment

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/printdesk-backend/internal/agents"
	"github.com/angelmondragon/printdesk-backend/pkg/config"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	"github.com/angelmondragon/printdesk-backend/pkg/geo"
	"github.com/angelmondragon/printdesk-backend/pkg/types"
)

// Weights are the tunable constants of the scoring function.
type Weights struct {
	HeadroomWeight         float64
	ProximityMaxPoints     float64
	NeutralProximityPoints float64
	UrgentBikeBonus        float64
	StandardCarBonus       float64
	TenureDivisorDays      float64
	TenureMaxPoints        float64
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{
		HeadroomWeight:         40,
		ProximityMaxPoints:     30,
		NeutralProximityPoints: 15,
		UrgentBikeBonus:        20,
		StandardCarBonus:       10,
		TenureDivisorDays:      10,
		TenureMaxPoints:        10,
	}
}

// WeightsFromConfig maps the environment tunables onto Weights.
func WeightsFromConfig(cfg config.AssignmentConfig) Weights {
	return Weights{
		HeadroomWeight:         cfg.HeadroomWeight,
		ProximityMaxPoints:     cfg.ProximityMaxPoints,
		NeutralProximityPoints: cfg.NeutralProximityPoints,
		UrgentBikeBonus:        cfg.UrgentBikeBonus,
		StandardCarBonus:       cfg.StandardCarBonus,
		TenureDivisorDays:      cfg.TenureDivisorDays,
		TenureMaxPoints:        cfg.TenureMaxPoints,
	}
}

// Candidate is an agent considered for an order.
type Candidate = agents.AgentWithStatus

// OrderContext carries the order attributes that influence scoring.
type OrderContext struct {
	Urgent bool
	Target *types.GeoPoint
	Now    time.Time
}

// ScoreBreakdown itemises a candidate's total.
type ScoreBreakdown struct {
	Headroom   float64  `json:"headroom"`
	Proximity  float64  `json:"proximity"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
	Vehicle    float64  `json:"vehicle"`
	Tenure     float64  `json:"tenure"`
	Total      float64  `json:"total"`
}

// RankedCandidate is an eligible candidate with its score.
type RankedCandidate struct {
	Candidate Candidate
	Score     ScoreBreakdown
}

// Eligible reports whether a candidate may receive a new order.
func Eligible(c Candidate, exclude map[uuid.UUID]struct{}) bool {
	if _, skip := exclude[c.Agent.ID]; skip {
		return false
	}
	return agents.IsAssignable(c.Agent, c.Status)
}

// Score computes the candidate's points for the order. It does not check
// eligibility.
func Score(c Candidate, order OrderContext, w Weights) ScoreBreakdown {
	var out ScoreBreakdown

	if c.Status != nil && c.Status.WorkloadCapacity > 0 {
		load := float64(c.Status.CurrentWorkload) / float64(c.Status.WorkloadCapacity)
		out.Headroom = (1 - load) * w.HeadroomWeight
	}

	out.Proximity = w.NeutralProximityPoints
	if order.Target != nil && c.Status != nil && c.Status.HasLocation() {
		km := geo.DistanceKm(*order.Target, types.GeoPoint{Lat: *c.Status.LastLat, Lng: *c.Status.LastLng})
		out.DistanceKm = &km
		out.Proximity = math.Max(0, w.ProximityMaxPoints-km)
	}

	switch {
	case order.Urgent && c.Agent.VehicleType == enums.VehicleBike:
		out.Vehicle = w.UrgentBikeBonus
	case !order.Urgent && c.Agent.VehicleType == enums.VehicleCar:
		out.Vehicle = w.StandardCarBonus
	}

	if w.TenureDivisorDays > 0 && !c.Agent.CreatedAt.IsZero() {
		days := math.Floor(order.Now.Sub(c.Agent.CreatedAt).Hours() / 24)
		if days > 0 {
			out.Tenure = math.Min(w.TenureMaxPoints, days/w.TenureDivisorDays)
		}
	}

	out.Total = out.Headroom + out.Proximity + out.Vehicle + out.Tenure
	return out
}

// Rank scores every eligible candidate, best first. Equal totals keep their
// input order.
func Rank(candidates []Candidate, order OrderContext, excludeIDs []uuid.UUID, w Weights) []RankedCandidate {
	exclude := make(map[uuid.UUID]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = struct{}{}
	}

	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !Eligible(c, exclude) {
			continue
		}
		ranked = append(ranked, RankedCandidate{Candidate: c, Score: Score(c, order, w)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.Total > ranked[j].Score.Total
	})
	return ranked
}

// SelectAgent returns the best eligible candidate, or false when none is
// eligible.
func SelectAgent(candidates []Candidate, order OrderContext, excludeIDs []uuid.UUID, w Weights) (*RankedCandidate, bool) {
	ranked := Rank(candidates, order, excludeIDs, w)
	if len(ranked) == 0 {
		return nil, false
	}
	best := ranked[0]
	return &best, true
}
