package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/tailorreach/internal/auth"
	"github.com/sells-group/tailorreach/internal/model"
)

type analyzeProductRequest struct {
	Product       model.Product `json:"product"`
	UserID        string        `json:"userId"`
	SupabaseToken string        `json:"supabaseToken"`
}

type analyzeCampaignRequest struct {
	Campaign      model.Campaign `json:"campaign"`
	Product       *model.Product `json:"product,omitempty"`
	UserID        string         `json:"userId"`
	SupabaseToken string         `json:"supabaseToken"`
}

type estimateRequest struct {
	Results []model.AnalysisResult `json:"results"`
}

type estimateResponse struct {
	LikeEstimate int `json:"likeestimate"`
}

// analyzeProduct scores every customer against a product. Without
// ?persist=true the body is the bare result list; with it the aggregate
// is stored and returned alongside the results.
func (s *Server) analyzeProduct(w http.ResponseWriter, r *http.Request) {
	var req analyzeProductRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tenantID, err := auth.Resolve(r.Context(), s.Verifier, req.SupabaseToken, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	persist, err := persistFlag(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	analysis, err := s.Scoring.AnalyzeProduct(r.Context(), tenantID, req.Product, persist)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAnalysis(w, analysis, persist)
}

func (s *Server) analyzeCampaign(w http.ResponseWriter, r *http.Request) {
	var req analyzeCampaignRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tenantID, err := auth.Resolve(r.Context(), s.Verifier, req.SupabaseToken, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	persist, err := persistFlag(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	analysis, err := s.Scoring.AnalyzeCampaign(r.Context(), tenantID, req.Campaign, req.Product, persist)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAnalysis(w, analysis, persist)
}

func writeAnalysis(w http.ResponseWriter, a *model.Analysis, persist bool) {
	if persist {
		writeJSON(w, http.StatusOK, a)
		return
	}
	results := a.Results
	if results == nil {
		results = []model.AnalysisResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func persistFlag(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("persist")
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errBadRequestf("persist must be a boolean")
	}
	return v, nil
}

func (s *Server) productEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	est, err := s.Scoring.UpdateProductEstimate(r.Context(), tenant(r), chi.URLParam(r, "id"), req.Results)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, estimateResponse{LikeEstimate: est})
}

func (s *Server) campaignEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	est, err := s.Scoring.UpdateCampaignEstimate(r.Context(), tenant(r), chi.URLParam(r, "uid"), req.Results)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, estimateResponse{LikeEstimate: est})
}
