package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/tailorreach/internal/model"
)

// --- Customers ---

func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.Store.ListCustomers(r.Context(), tenant(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

// getCustomer returns the customer with its activity history.
func (s *Server) getCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.Store.GetCustomer(r.Context(), tenant(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	acts, err := s.Store.ListActivities(r.Context(), tenant(r), model.ActivityFilter{CustomerID: id})
	if err != nil {
		writeError(w, r, err)
		return
	}
	c.Activity = acts
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) createCustomer(w http.ResponseWriter, r *http.Request) {
	var c model.Customer
	if err := decode(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	c.ID = ""
	c.TenantID = tenant(r)
	if err := s.Store.CreateCustomer(r.Context(), &c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) updateCustomer(w http.ResponseWriter, r *http.Request) {
	var c model.Customer
	if err := decode(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	c.ID = chi.URLParam(r, "id")
	c.TenantID = tenant(r)
	if err := s.Store.UpdateCustomer(r.Context(), &c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteCustomer(r.Context(), tenant(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Products ---

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.Store.ListProducts(r.Context(), tenant(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.Store.GetProduct(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var p model.Product
	if err := decode(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	p.ID = ""
	p.TenantID = tenant(r)
	p.LikeEstimate = nil
	if err := s.Store.CreateProduct(r.Context(), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	var p model.Product
	if err := decode(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	p.ID = chi.URLParam(r, "id")
	p.TenantID = tenant(r)
	if err := s.Store.UpdateProduct(r.Context(), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteProduct(r.Context(), tenant(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Campaigns ---

func (s *Server) listCampaigns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.Store.ListCampaigns(r.Context(), tenant(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) getCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.Store.GetCampaign(r.Context(), tenant(r), chi.URLParam(r, "uid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) createCampaign(w http.ResponseWriter, r *http.Request) {
	var c model.Campaign
	if err := decode(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	c.UID = ""
	c.TenantID = tenant(r)
	c.LikeEstimate = nil
	if err := s.Store.CreateCampaign(r.Context(), &c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) updateCampaign(w http.ResponseWriter, r *http.Request) {
	var c model.Campaign
	if err := decode(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	c.UID = chi.URLParam(r, "uid")
	c.TenantID = tenant(r)
	if err := s.Store.UpdateCampaign(r.Context(), &c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteCampaign(r.Context(), tenant(r), chi.URLParam(r, "uid")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Activities, runs, dashboard, search ---

func (s *Server) listActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f := model.ActivityFilter{
		CustomerID: q.Get("customerId"),
		ProductID:  q.Get("productId"),
		CampaignID: q.Get("campaignId"),
		Query:      q.Get("q"),
		Limit:      limit,
	}
	if raw := q.Get("status"); raw != "" && raw != "all" {
		st, err := model.ParseActivityStatus(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.Status = st
	}

	acts, err := s.Store.ListActivities(r.Context(), tenant(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(acts))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) updateActivity(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := model.ParseActivityStatus(req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.Store.UpdateActivityStatus(r.Context(), tenant(r), id, st); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(st)})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit == 0 {
		limit = 50
	}
	runs, err := s.Store.ListRuns(r.Context(), tenant(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(runs))
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, tenantID := r.Context(), tenant(r)
	var (
		d   model.Dashboard
		err error
	)
	if d.Customers, err = s.Store.ListCustomers(ctx, tenantID, model.DashboardLimit); err != nil {
		writeError(w, r, err)
		return
	}
	if d.Products, err = s.Store.ListProducts(ctx, tenantID, model.DashboardLimit); err != nil {
		writeError(w, r, err)
		return
	}
	if d.Campaigns, err = s.Store.ListCampaigns(ctx, tenantID, model.DashboardLimit); err != nil {
		writeError(w, r, err)
		return
	}
	if d.Activities, err = s.Store.ListActivities(ctx, tenantID, model.ActivityFilter{Limit: model.DashboardLimit}); err != nil {
		writeError(w, r, err)
		return
	}
	if d.Counts, err = s.Store.Counts(ctx, tenantID); err != nil {
		writeError(w, r, err)
		return
	}
	d.Customers, d.Products, d.Campaigns, d.Activities = nonNil(d.Customers), nonNil(d.Products), nonNil(d.Campaigns), nonNil(d.Activities)
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, r, errBadRequestf("q is required"))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.Store.Search(r.Context(), tenant(r), q, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
