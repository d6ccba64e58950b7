package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dennisdiepolder/monti/agentkpi/internal/aggregator"
	"github.com/dennisdiepolder/monti/agentkpi/internal/auth"
	"github.com/dennisdiepolder/monti/agentkpi/internal/dataset"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	dateLayout = "2006-01-02"
	defaultTop = 3
	maxTop     = 50
)

// ReportHandler serves the normalized tables and their KPIs. Agents only
// ever see their own rows; missing data is an empty table, never an error.
type ReportHandler struct {
	data   *dataset.Service
	now    func() time.Time
	logger zerolog.Logger
}

func NewReportHandler(data *dataset.Service, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		data:   data,
		now:    time.Now,
		logger: logger.With().Str("component", "report_handler").Logger(),
	}
}

// TableResponse is a table with its overall KPIs and optional partitions
type TableResponse struct {
	Table     types.Table               `json:"table"`
	KPIs      aggregator.Summary        `json:"kpis"`
	Formatted []aggregator.FormattedKPI `json:"formatted"`
	Groups    []aggregator.Group        `json:"groups,omitempty"`
}

func newTableResponse(t types.Table) TableResponse {
	kpis := aggregator.Reduce(t, aggregator.DefaultKPIs)
	return TableResponse{
		Table:     t,
		KPIs:      kpis,
		Formatted: aggregator.Formatted(kpis),
	}
}

// Months handles GET /api/months
func (h *ReportHandler) Months(w http.ResponseWriter, r *http.Request) {
	months := h.data.Months()
	if months == nil {
		months = []types.MonthRef{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"months": months})
}

// MonthlyResponse is a month's table. Admins also get the month's
// leaderboards, ranked over every agent whatever the agent filter.
type MonthlyResponse struct {
	TableResponse
	Leaders *aggregator.Leaderboard `json:"leaders,omitempty"`
}

// Monthly handles GET /api/months/{month}?agent=&top=
func (h *ReportHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	top, ok := parseTop(w, r)
	if !ok {
		return
	}

	month := h.data.Monthly(chi.URLParam(r, "month"))
	agent, ok := h.agent(r)
	resp := MonthlyResponse{TableResponse: newTableResponse(scope(month, agent, ok))}

	claims, _ := auth.GetUserFromContext(r.Context())
	if auth.HasRole(claims, types.RoleAdmin) {
		lb := aggregator.Leaders(month, top)
		resp.Leaders = &lb
	}
	writeJSON(w, http.StatusOK, resp)
}

// History handles GET /api/history?agent=&group=
func (h *ReportHandler) History(w http.ResponseWriter, r *http.Request) {
	key, ok := groupKey(w, r, aggregator.ByMonth)
	if !ok {
		return
	}

	agent, ok := h.agent(r)
	t := scope(h.data.History(), agent, ok)
	resp := newTableResponse(t)
	resp.Groups = aggregator.GroupBy(t, key, aggregator.DefaultKPIs)
	writeJSON(w, http.StatusOK, resp)
}

// Daily handles GET /api/months/{month}/daily?year=&agent=&from=&to=&group=
func (h *ReportHandler) Daily(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	year := h.now().Year()
	if s := q.Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil || y < 1 {
			writeError(w, http.StatusBadRequest, "year must be a positive integer")
			return
		}
		year = y
	}

	from, err := parseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}

	key, ok := groupKey(w, r, aggregator.ByDay)
	if !ok {
		return
	}

	t := types.Empty(types.KindDaily)
	if agent, ok := h.agent(r); ok {
		t = h.data.Daily(dataset.DailyQuery{
			Month: chi.URLParam(r, "month"),
			Year:  year,
			Agent: agent,
		})
		t = aggregator.FilterDateRange(t, from, to)
	}

	resp := newTableResponse(t)
	resp.Groups = aggregator.GroupBy(t, key, aggregator.DefaultKPIs)
	writeJSON(w, http.StatusOK, resp)
}

// Evaluations handles GET /api/months/{month}/evaluations?agent=. Without
// an agent the table is empty.
func (h *ReportHandler) Evaluations(w http.ResponseWriter, r *http.Request) {
	t := types.Empty(types.KindEvaluation)
	if agent, ok := h.agent(r); ok {
		t = h.data.Evaluations(chi.URLParam(r, "month"), agent)
	}
	resp := newTableResponse(t)
	resp.Groups = aggregator.GroupBy(t, aggregator.ByDay, aggregator.DefaultKPIs)
	writeJSON(w, http.StatusOK, resp)
}

// RankingResponse is a weekly snapshot with its leaderboards
type RankingResponse struct {
	Snapshot string                 `json:"snapshot"`
	Table    types.Table            `json:"table"`
	Leaders  aggregator.Leaderboard `json:"leaders"`
}

// Ranking handles GET /api/rankings/{snapshot}?top=
func (h *ReportHandler) Ranking(w http.ResponseWriter, r *http.Request) {
	top, ok := parseTop(w, r)
	if !ok {
		return
	}

	snapshot := chi.URLParam(r, "snapshot")
	t := h.data.Ranking(snapshot)
	writeJSON(w, http.StatusOK, RankingResponse{
		Snapshot: dataset.SnapshotName(snapshot),
		Table:    t,
		Leaders:  aggregator.Leaders(t, top),
	})
}

func (h *ReportHandler) agent(r *http.Request) (string, bool) {
	claims, _ := auth.GetUserFromContext(r.Context())
	return auth.AgentFilter(claims, r.URL.Query().Get("agent"))
}

// scope narrows t to the rows the caller may see
func scope(t types.Table, agent string, ok bool) types.Table {
	if !ok {
		return types.Empty(t.Kind)
	}
	return aggregator.FilterAgent(t, agent)
}

func parseTop(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("top")
	if s == "" {
		return defaultTop, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxTop {
		writeError(w, http.StatusBadRequest, "top must be between 1 and 50")
		return 0, false
	}
	return n, true
}

func groupKey(w http.ResponseWriter, r *http.Request, def aggregator.GroupKey) (aggregator.GroupKey, bool) {
	s := r.URL.Query().Get("group")
	if s == "" {
		return def, true
	}
	key, err := aggregator.ParseGroupKey(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return key, true
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
