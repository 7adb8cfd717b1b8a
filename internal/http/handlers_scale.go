package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"replenishment/internal/core"
	"replenishment/internal/log"
	"replenishment/internal/services"
	"replenishment/internal/soa"
)

// tableResponse is a computed working set plus its rendered rows.
type tableResponse struct {
	Period  core.Period               `json:"period"`
	Records []core.ContributionRecord `json:"records"`
	Display []soa.DisplayRow          `json:"display"`
}

func newTableResponse(t services.Table) tableResponse {
	return tableResponse{Period: t.Period, Records: t.Records, Display: soa.Display(t.Records)}
}

func (s *Server) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	if periods, ok := s.periodsCache.Get(periodsCacheKey); ok {
		NewResponse().Data(periods).Write(w)
		return
	}

	periods, err := s.scale.Periods(r.Context())
	if err != nil {
		writeError(w, r, log.OpLoad, err)
		return
	}
	s.periodsCache.Set(periodsCacheKey, periods)
	NewResponse().Data(periods).Write(w)
}

func (s *Server) handleUpsertPeriod(w http.ResponseWriter, r *http.Request) {
	key := sanitizeInput(chi.URLParam(r, "period"))
	var req periodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpSave, err)
		return
	}
	period, err := req.toPeriod(key)
	if err != nil {
		writeError(w, r, log.OpSave, err)
		return
	}
	if err := s.scale.UpsertPeriod(r.Context(), period); err != nil {
		writeError(w, r, log.OpSave, err)
		return
	}

	s.periodsCache.Delete(periodsCacheKey)
	s.invalidatePeriod(period.Key())
	NewResponse().Data(period).SuccessNotification("Period saved").Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeError(w, r, log.OpLoad, err)
		return
	}
	if summary, ok := s.summaryCache.Get(summaryCacheKey(period)); ok {
		NewResponse().Data(summary).Write(w)
		return
	}

	summary, err := s.scale.Summary(r.Context(), period)
	if err != nil {
		writeError(w, r, log.OpLoad, err)
		return
	}
	s.summaryCache.Set(summaryCacheKey(period), summary)
	NewResponse().Data(summary).Write(w)
}

// handleLoadContributions returns the persisted table of a period, computed
// and optionally sorted by ?sort=<field>&dir=asc|desc.
func (s *Server) handleLoadContributions(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeError(w, r, log.OpLoad, err)
		return
	}
	field, dir, sorted, err := sortParams(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpLoad, err)
		return
	}

	table, err := s.scale.Load(r.Context(), period)
	if err != nil {
		writeError(w, r, log.OpLoad, err)
		return
	}
	if sorted {
		table.Records = soa.Sort(table.Records, field, dir)
	}
	NewResponse().Data(newTableResponse(table)).Write(w)
}

func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeError(w, r, log.OpCompute, err)
		return
	}
	var req tableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCompute, err)
		return
	}
	table, err := s.scale.Compute(r.Context(), period, req.Records)
	if err != nil {
		writeError(w, r, log.OpCompute, err)
		return
	}
	NewResponse().Data(newTableResponse(table)).Write(w)
}

// handleEdit applies one cell edit. Edits to fields that need confirmation
// return 409 until resent with "confirmed": true.
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeError(w, r, log.OpEdit, err)
		return
	}
	var req editRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpEdit, err)
		return
	}
	table, err := s.scale.Edit(r.Context(), period, req.Records, req.Edit)
	if err != nil {
		log.FromContext(r.Context()).Fields(r.Context(), slog.LevelDebug, "Cell edit rejected",
			log.NewFields().WithPeriod(period).WithCell(req.Edit.Row, req.Edit.Field.String()).WithError(err))
		writeError(w, r, log.OpEdit, err)
		return
	}
	NewResponse().Data(newTableResponse(table)).Write(w)
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeError(w, r, log.OpRevert, err)
		return
	}
	var req revertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpRevert, err)
		return
	}
	table, err := s.scale.Revert(r.Context(), period, req.Records, req.Row, req.Field)
	if err != nil {
		writeError(w, r, log.OpRevert, err)
		return
	}
	NewResponse().Data(newTableResponse(table)).Write(w)
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeError(w, r, log.OpSort, err)
		return
	}
	var req sortRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpSort, err)
		return
	}
	field, dir, _, err := parseSort(req.Field, req.Dir)
	if err != nil {
		writeError(w, r, log.OpSort, err)
		return
	}
	table, err := s.scale.Sort(r.Context(), period, req.Records, field, dir)
	if err != nil {
		writeError(w, r, log.OpSort, err)
		return
	}
	NewResponse().Data(newTableResponse(table)).Write(w)
}

func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeError(w, r, log.OpAddRow, err)
		return
	}
	var req addRowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpAddRow, err)
		return
	}
	table, err := s.scale.AddRow(r.Context(), period, req.Records, req.CountryID, sanitizeInput(req.Country), sanitizeInput(req.ISO3))
	if err != nil {
		writeError(w, r, log.OpAddRow, err)
		return
	}
	NewResponse().Status(http.StatusCreated).Data(newTableResponse(table)).Write(w)
}

func (s *Server) handleRemoveRow(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeError(w, r, log.OpRemove, err)
		return
	}
	row, err := rowParam(r)
	if err != nil {
		writeError(w, r, log.OpRemove, err)
		return
	}
	var req tableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpRemove, err)
		return
	}
	table, err := s.scale.RemoveRow(r.Context(), period, req.Records, row)
	if err != nil {
		writeError(w, r, log.OpRemove, err)
		return
	}
	NewResponse().Data(newTableResponse(table)).Write(w)
}

// handleSaveContributions persists the working set all-or-nothing.
func (s *Server) handleSaveContributions(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeError(w, r, log.OpSave, err)
		return
	}
	var req tableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpSave, err)
		return
	}
	res, err := s.scale.Save(r.Context(), period, req.Records)
	if err != nil {
		writeError(w, r, log.OpSave, err)
		return
	}

	s.invalidatePeriod(period)
	NewResponse().Data(res).SuccessNotification("Scale of assessment saved").Write(w)
}
