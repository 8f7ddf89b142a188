package audit

import (
	"context"
	"time"

	"github.com/taskmesh/taskmesh/types"
)

// Filter narrows a statistics query. Zero-value fields match everything.
// AgentID scopes the ByAgent aggregation only; task-level totals and
// ByIntent always cover every task in the time range, since task and
// classification records carry no agent id.
type Filter struct {
	AgentID string
	Since   time.Time
	Until   time.Time
}

// GroupStats aggregates outcomes for one grouping key.
type GroupStats struct {
	Count           int           `json:"count"`
	Succeeded       int           `json:"succeeded"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
}

// Stats is the aggregate view over the audit trail: task outcomes overall,
// step outcomes per agent, and task outcomes per classified intent.
type Stats struct {
	TasksTotal      int                                  `json:"tasks_total"`
	TasksSucceeded  int                                  `json:"tasks_succeeded"`
	SuccessRate     float64                              `json:"success_rate"`
	AverageDuration time.Duration                        `json:"average_duration"`
	ByAgent         map[string]GroupStats                `json:"by_agent"`
	ByIntent        map[types.IntentCategory]GroupStats  `json:"by_intent"`
}

// Statistics aggregates success rate, average duration, and counts over the
// recorded trail, grouped by agent (from step outcomes) and by intent (task
// outcomes joined against each task's classification record).
func (r *Recorder) Statistics(ctx context.Context, f Filter) (*Stats, error) {
	if r.store == nil {
		return &Stats{ByAgent: map[string]GroupStats{}, ByIntent: map[types.IntentCategory]GroupStats{}}, nil
	}
	records, err := r.store.Query(ctx, types.AuditQuery{
		Since: f.Since,
		Until: f.Until,
	})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByAgent:  make(map[string]GroupStats),
		ByIntent: make(map[types.IntentCategory]GroupStats),
	}
	agentDur := make(map[string]time.Duration)
	intentDur := make(map[types.IntentCategory]time.Duration)
	intentByTask := make(map[string]types.IntentCategory)
	var taskDur time.Duration

	for _, rec := range records {
		if rec.Kind == types.AuditIntentClassified {
			intentByTask[rec.TaskID] = rec.Intent
		}
	}

	for _, rec := range records {
		switch rec.Kind {
		case types.AuditStepFinished:
			if f.AgentID != "" && rec.AgentID != f.AgentID {
				continue
			}
			g := stats.ByAgent[rec.AgentID]
			g.Count++
			if rec.Success {
				g.Succeeded++
			}
			agentDur[rec.AgentID] += rec.Duration
			stats.ByAgent[rec.AgentID] = g

		case types.AuditTaskFinished:
			stats.TasksTotal++
			if rec.Success {
				stats.TasksSucceeded++
			}
			taskDur += rec.Duration

			intent, ok := intentByTask[rec.TaskID]
			if !ok {
				continue
			}
			g := stats.ByIntent[intent]
			g.Count++
			if rec.Success {
				g.Succeeded++
			}
			intentDur[intent] += rec.Duration
			stats.ByIntent[intent] = g
		}
	}

	if stats.TasksTotal > 0 {
		stats.SuccessRate = float64(stats.TasksSucceeded) / float64(stats.TasksTotal)
		stats.AverageDuration = taskDur / time.Duration(stats.TasksTotal)
	}
	for agent, g := range stats.ByAgent {
		g.SuccessRate = float64(g.Succeeded) / float64(g.Count)
		g.AverageDuration = agentDur[agent] / time.Duration(g.Count)
		stats.ByAgent[agent] = g
	}
	for intent, g := range stats.ByIntent {
		g.SuccessRate = float64(g.Succeeded) / float64(g.Count)
		g.AverageDuration = intentDur[intent] / time.Duration(g.Count)
		stats.ByIntent[intent] = g
	}
	return stats, nil
}
