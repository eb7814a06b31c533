package temporal

import (
	"math"
	"sort"
	"strings"

	"github.com/sells-group/evidence-cli/internal/model"
)

type periodEntity struct {
	entity model.Entity
	period Period
}

// DetectEvolution links entities that describe the same metric for the same
// ticker in different reporting periods. Entities are grouped by (metric type,
// ticker, granularity) and sorted by period; each adjacent pair yields one
// METRIC_EVOLVED edge. Quarters chain with quarters and fiscal years with
// fiscal years, never a quarter with a year. Entities without a reporting period are ignored and single-period
// groups produce nothing. When two entities share a period, the one with the
// later source date is kept (ties keep the earlier input).
func DetectEvolution(entities []model.Entity) []model.TemporalEdge {
	groups := make(map[string][]periodEntity)
	for _, e := range entities {
		if e.Temporal == nil || e.Temporal.ReportingPeriod == "" || e.Type == "" {
			continue
		}
		period, ok := ParsePeriod(e.Temporal.ReportingPeriod)
		if !ok {
			continue
		}
		key := strings.ToLower(e.Type) + "|" + strings.ToUpper(e.Ticker) + "|" + period.granularity()
		groups[key] = append(groups[key], periodEntity{entity: e, period: period})
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var edges []model.TemporalEdge
	for _, key := range keys {
		members := dedupePeriods(groups[key])
		if len(members) < 2 {
			continue
		}
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].period.Before(members[j].period)
		})
		for i := 1; i < len(members); i++ {
			edges = append(edges, evolutionEdge(members[i-1], members[i]))
		}
	}
	return edges
}

func dedupePeriods(members []periodEntity) []periodEntity {
	byPeriod := make(map[Period]int, len(members))
	out := make([]periodEntity, 0, len(members))
	for _, m := range members {
		idx, seen := byPeriod[m.period]
		if !seen {
			byPeriod[m.period] = len(out)
			out = append(out, m)
			continue
		}
		if newer(m.entity, out[idx].entity) {
			out[idx] = m
		}
	}
	return out
}

// newer reports whether a has a strictly later source date than b.
func newer(a, b model.Entity) bool {
	if a.Temporal == nil || a.Temporal.SourceDate == nil {
		return false
	}
	if b.Temporal == nil || b.Temporal.SourceDate == nil {
		return true
	}
	return a.Temporal.SourceDate.After(*b.Temporal.SourceDate)
}

func evolutionEdge(from, to periodEntity) model.TemporalEdge {
	delta := to.period.End().Sub(from.period.End()).Hours() / 24
	edge := model.TemporalEdge{
		Type:          model.EdgeMetricEvolved,
		From:          from.entity.ID,
		To:            to.entity.ID,
		MetricType:    strings.ToLower(to.entity.Type),
		Ticker:        strings.ToUpper(to.entity.Ticker),
		FromPeriod:    from.period.String(),
		ToPeriod:      to.period.String(),
		TimeDeltaDays: int(math.Round(delta)),
	}
	if from.entity.Value != nil {
		v := *from.entity.Value
		edge.FromValue = &v
	}
	if to.entity.Value != nil {
		v := *to.entity.Value
		edge.ToValue = &v
	}
	if edge.FromValue != nil && edge.ToValue != nil {
		change := *edge.ToValue - *edge.FromValue
		edge.Change = &change
	}
	return edge
}
