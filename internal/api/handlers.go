package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/mention-radar/internal/business"
	"github.com/JakeFAU/mention-radar/internal/consensus"
	"github.com/JakeFAU/mention-radar/internal/heartbeat"
	"github.com/JakeFAU/mention-radar/internal/radar"
)

type healthResponse struct {
	Healthy    int                `json:"healthy"`
	Total      int                `json:"total"`
	Components []heartbeat.Report `json:"components"`
}

type postsResponse struct {
	Posts []radar.Post `json:"posts"`
	Total int          `json:"total"`
}

type statusRequest struct {
	Status radar.AnalysisStatus `json:"status"`
}

type activeRequest struct {
	Active bool `json:"active"`
}

type suggestRequest struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	Description string `json:"description"`
	Context     string `json:"context"`
}

type suggestionView struct {
	consensus.Suggestion
	Selected bool `json:"selected"`
}

type modelFailure struct {
	Model string `json:"model"`
	Error string `json:"error"`
}

type suggestResponse struct {
	Suggestions []suggestionView `json:"suggestions"`
	Failed      []modelFailure   `json:"failed_models"`
}

type importRequest struct {
	Keywords []business.KeywordInput `json:"keywords"`
}

type businessResponse struct {
	radar.Business
	Keywords []radar.Keyword `json:"keywords"`
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	names := heartbeat.Names()
	reports, err := s.health.Health(r.Context(), names, s.clock.Now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Healthy:    heartbeat.HealthyCount(reports),
		Total:      len(names),
		Components: reports,
	})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), s.clock.Now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := radar.PostFilter{Query: q.Get("q")}
	if raw := q.Get("source"); raw != "" {
		src, ok := radar.ParseSource(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown source %q", raw))
			return
		}
		filter.Source = src
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	posts, total, err := s.store.ListPosts(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if posts == nil {
		posts = []radar.Post{}
	}
	writeJSON(w, http.StatusOK, postsResponse{Posts: posts, Total: total})
}

func (s *Server) listOpportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := radar.OpportunityFilter{BusinessSlug: q.Get("business")}
	if raw := q.Get("status"); raw != "" {
		if !validStatus(radar.AnalysisStatus(raw)) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		filter.Status = radar.AnalysisStatus(raw)
	}
	var err error
	if filter.MinRelevance, err = intParam(q.Get("min_relevance")); err != nil {
		writeError(w, http.StatusBadRequest, "min_relevance must be a non-negative integer")
		return
	}
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	opps, err := s.store.ListOpportunities(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if opps == nil {
		opps = []radar.Opportunity{}
	}
	writeJSON(w, http.StatusOK, opps)
}

func (s *Server) updateAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validStatus(req.Status) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.store.UpdateAnalysisStatus(r.Context(), id, req.Status); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
}

func (s *Server) suggestKeywords(w http.ResponseWriter, r *http.Request) {
	if s.suggester == nil {
		writeError(w, http.StatusServiceUnavailable, "keyword suggestions are not configured")
		return
	}
	var req suggestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.suggester.Suggest(r.Context(), consensus.Input{
		Name:        req.Name,
		Domain:      req.Domain,
		Description: req.Description,
		Context:     req.Context,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	session := consensus.NewSession(result, s.suggester.PreselectThreshold())
	resp := suggestResponse{
		Suggestions: make([]suggestionView, 0, len(result.Suggestions)),
		Failed:      []modelFailure{},
	}
	for _, sg := range session.Suggestions() {
		resp.Suggestions = append(resp.Suggestions, suggestionView{Suggestion: sg, Selected: session.IsSelected(sg.Keyword)})
	}
	for _, m := range result.Failed() {
		resp.Failed = append(resp.Failed, modelFailure{Model: m.Model, Error: m.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listBusinesses(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListBusinesses(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []radar.Business{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createBusiness(w http.ResponseWriter, r *http.Request) {
	var req business.Registration
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	biz, err := s.businesses.Register(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, biz)
}

func (s *Server) getBusiness(w http.ResponseWriter, r *http.Request) {
	biz, keywords, err := s.businesses.Lookup(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if keywords == nil {
		keywords = []radar.Keyword{}
	}
	writeJSON(w, http.StatusOK, businessResponse{Business: biz, Keywords: keywords})
}

func (s *Server) deleteBusiness(w http.ResponseWriter, r *http.Request) {
	if err := s.businesses.Delete(r.Context(), chi.URLParam(r, "slug")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setBusinessActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slug := chi.URLParam(r, "slug")
	if err := s.businesses.SetActive(r.Context(), slug, req.Active); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slug": slug, "active": req.Active})
}

func (s *Server) addKeyword(w http.ResponseWriter, r *http.Request) {
	var req business.KeywordInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "keyword required")
		return
	}
	kw, err := s.businesses.AddKeyword(r.Context(), chi.URLParam(r, "slug"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, kw)
}

func (s *Server) importKeywords(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	biz, err := s.store.GetBusinessBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	selected := make([]consensus.Suggestion, 0, len(req.Keywords))
	for _, kw := range req.Keywords {
		if kw.Text == "" {
			continue
		}
		selected = append(selected, consensus.Suggestion{Keyword: kw.Text, Category: radar.NormalizeCategory(kw.Category)})
	}
	added, err := consensus.Import(r.Context(), s.store, s.ids, s.clock, biz.ID, selected)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": added})
}

func (s *Server) setKeywordActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.store.SetKeywordActive(r.Context(), id, req.Active); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": req.Active})
}

func (s *Server) deleteKeyword(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteKeyword(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validStatus(status radar.AnalysisStatus) bool {
	switch status {
	case radar.StatusNew, radar.StatusReviewed, radar.StatusActioned, radar.StatusIgnored:
		return true
	default:
		return false
	}
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return n, nil
}
