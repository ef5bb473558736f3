package observability

import (
	"sort"
	"sync"

	"intentflow/internal/logger"
)

// OutcomeObserver counts request outcomes and flags runs of classifier
// fallbacks, which usually mean the model provider is down.
type OutcomeObserver struct {
	log logger.Logger

	mu                sync.Mutex
	statusCounts      map[string]int64
	intentCounts      map[string]int64
	fallbacks         int64
	fallbackStreak    int64
	taskFailureCounts map[string]int64
}

type Snapshot struct {
	Statuses       map[string]int64 `json:"statuses"`
	Intents        map[string]int64 `json:"intents"`
	TaskFailures   map[string]int64 `json:"task_failures"`
	Fallbacks      int64            `json:"fallbacks"`
	FallbackStreak int64            `json:"fallback_streak"`
}

func NewOutcomeObserver(log logger.Logger) *OutcomeObserver {
	if log == nil {
		log = logger.Nop()
	}
	return &OutcomeObserver{
		log:               log,
		statusCounts:      make(map[string]int64),
		intentCounts:      make(map[string]int64),
		taskFailureCounts: make(map[string]int64),
	}
}

func (o *OutcomeObserver) RecordStatus(status string) {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.statusCounts[status]++
	o.mu.Unlock()
}

func (o *OutcomeObserver) RecordClassification(intent string, fallback bool) {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.intentCounts[intent]++
	var streak int64
	if fallback {
		o.fallbacks++
		o.fallbackStreak++
		streak = o.fallbackStreak
	} else {
		o.fallbackStreak = 0
	}
	o.mu.Unlock()

	if fallback {
		o.log.Info("classify.fallback", "streak", streak)
		// Basic alert hook for repeated fallbacks.
		if streak%10 == 0 {
			o.log.Warn("classify.fallback.alert", "consecutive_fallbacks", streak)
		}
	}
}

func (o *OutcomeObserver) RecordTask(taskType string, success bool) {
	if o == nil || success {
		return
	}
	o.mu.Lock()
	o.taskFailureCounts[taskType]++
	count := o.taskFailureCounts[taskType]
	o.mu.Unlock()
	o.log.Info("task.failure", "task", taskType, "count", count)
}

func (o *OutcomeObserver) Snapshot() Snapshot {
	if o == nil {
		return Snapshot{}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		Statuses:       copyCounts(o.statusCounts),
		Intents:        copyCounts(o.intentCounts),
		TaskFailures:   copyCounts(o.taskFailureCounts),
		Fallbacks:      o.fallbacks,
		FallbackStreak: o.fallbackStreak,
	}
}

// SortedKeys is a helper for stable rendering of count maps.
func SortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
