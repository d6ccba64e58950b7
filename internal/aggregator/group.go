package aggregator

import (
	"fmt"
	"sort"

	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
)

// GroupKey names a partitioning of a table
type GroupKey string

const (
	ByAgent    GroupKey = "agent"
	ByMonth    GroupKey = "month"
	ByDay      GroupKey = "day"
	ByDayAgent GroupKey = "day_agent"
)

// ParseGroupKey validates a group key from user input
func ParseGroupKey(s string) (GroupKey, error) {
	switch k := GroupKey(s); k {
	case ByAgent, ByMonth, ByDay, ByDayAgent:
		return k, nil
	}
	return "", fmt.Errorf("unknown group key %q", s)
}

// Group is one partition with its reduced KPIs
type Group struct {
	Agent string          `json:"agent,omitempty"`
	Month *types.MonthRef `json:"month,omitempty"`
	Day   *types.DayRef   `json:"day,omitempty"`
	Rows  int             `json:"rows"`
	KPIs  Summary         `json:"kpis"`
}

type groupID struct {
	agent    string
	month    int
	day      int
	dayLabel string
}

// GroupBy partitions rows by key and reduces each partition with the same
// semantics as Reduce. Rows lacking the key (no month or day tag) are
// left out. Groups are ordered by month, then day, then agent.
func GroupBy(t types.Table, key GroupKey, specs []Spec) []Group {
	order := make([]groupID, 0)
	members := make(map[groupID][]types.Row)
	first := make(map[groupID]types.Row)

	for _, r := range t.Rows {
		id, ok := idFor(r, key)
		if !ok {
			continue
		}
		if _, seen := members[id]; !seen {
			order = append(order, id)
			first[id] = r
		}
		members[id] = append(members[id], r)
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.month != b.month {
			return a.month < b.month
		}
		if a.day != b.day {
			return a.day < b.day
		}
		if a.dayLabel != b.dayLabel {
			return a.dayLabel < b.dayLabel
		}
		return a.agent < b.agent
	})

	groups := make([]Group, 0, len(order))
	for _, id := range order {
		rows := members[id]
		g := Group{Rows: len(rows), KPIs: reduceRows(t, rows, specs)}

		r := first[id]
		switch key {
		case ByAgent:
			g.Agent = id.agent
		case ByMonth:
			g.Month = r.Month
		case ByDay:
			g.Day = r.Day
		case ByDayAgent:
			g.Day = r.Day
			g.Agent = id.agent
		}
		groups = append(groups, g)
	}
	return groups
}

func idFor(r types.Row, key GroupKey) (groupID, bool) {
	switch key {
	case ByAgent:
		if r.Agent == "" {
			return groupID{}, false
		}
		return groupID{agent: r.Agent}, true
	case ByMonth:
		if r.Month == nil {
			return groupID{}, false
		}
		return groupID{month: r.Month.Index}, true
	case ByDay:
		if r.Day == nil {
			return groupID{}, false
		}
		return groupID{day: r.Day.Index, dayLabel: r.Day.Label}, true
	case ByDayAgent:
		if r.Day == nil || r.Agent == "" {
			return groupID{}, false
		}
		return groupID{day: r.Day.Index, dayLabel: r.Day.Label, agent: r.Agent}, true
	}
	return groupID{}, false
}
