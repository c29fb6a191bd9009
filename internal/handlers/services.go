package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ruanmelo/navalha/internal/model"
)

type serviceRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Active          *bool  `json:"active"`
}

type serviceItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Active          bool   `json:"active"`
}

func serviceView(s model.Service) serviceItem {
	return serviceItem{
		ID:              s.ID,
		Name:            s.Name,
		Description:     s.Description,
		DurationMinutes: s.Duration.Minutes(),
		Price:           s.Price.String(),
		Active:          s.Active,
	}
}

func serviceFromRequest(req serviceRequest) (model.Service, error) {
	duration, err := model.NewDuration(req.DurationMinutes)
	if err != nil {
		return model.Service{}, err
	}
	price, err := model.ParsePrice(strings.TrimSpace(req.Price))
	if err != nil {
		return model.Service{}, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return model.Service{
		ID:          strings.TrimSpace(req.ID),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Duration:    duration,
		Price:       price,
		Active:      active,
	}, nil
}

func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		// Inactive services stay valid for historical appointments but are
		// hidden from new-appointment pickers unless all=true.
		activeOnly := r.URL.Query().Get("all") != "true"
		services, err := h.dir.ListServices(r.Context(), activeOnly)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		items := make([]serviceItem, 0, len(services))
		for _, s := range services {
			items = append(items, serviceView(s))
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req serviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		svc, err := serviceFromRequest(req)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		svc.ID = ""
		created, err := h.dir.CreateService(r.Context(), svc)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, serviceView(created))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Name) == "" {
		http.Error(w, "id and name are required", http.StatusBadRequest)
		return
	}
	svc, err := serviceFromRequest(req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	updated, err := h.dir.UpdateService(r.Context(), svc)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, serviceView(updated))
}

// DeleteService refuses while any appointment, cancelled ones included,
// still references the service.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if err := h.dir.DeleteService(r.Context(), req.ID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
