package api

import (
	"net/http"

	"github.com/sells-group/tailorreach/internal/drafting"
	"github.com/sells-group/tailorreach/internal/model"
)

type generateMessageRequest struct {
	Customer model.Customer `json:"customer"`
	Product  model.Product  `json:"product"`
}

type generateMessagesRequest struct {
	Customers []model.Customer `json:"customers"`
	Product   model.Product    `json:"product"`
}

type generateMessagesResponse struct {
	Drafts []model.Draft `json:"drafts"`
}

// outgoingMessage is a message the seller sends, either as drafted or
// after editing it as plain text.
type outgoingMessage struct {
	drafting.Outgoing
	Preference model.Preference `json:"preference,omitempty"`
	EditedText string           `json:"editedText,omitempty"`
}

type sendRequest struct {
	Messages []outgoingMessage `json:"messages"`
}

type sendResponse struct {
	Activities []model.Activity `json:"activities"`
}

func (s *Server) generateMessage(w http.ResponseWriter, r *http.Request) {
	var req generateMessageRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Customer.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Product.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.Drafter.Draft(r.Context(), tenant(r), req.Customer, req.Product)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) generateMessages(w http.ResponseWriter, r *http.Request) {
	var req generateMessagesRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Customers) == 0 {
		writeError(w, r, errBadRequestf("customers are required"))
		return
	}
	for i := range req.Customers {
		if err := req.Customers[i].Validate(); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if err := req.Product.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	drafts, err := s.Drafter.DraftAll(r.Context(), tenant(r), req.Customers, req.Product)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateMessagesResponse{Drafts: drafts})
}

func (s *Server) sendMessages(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]drafting.Outgoing, 0, len(req.Messages))
	for _, m := range req.Messages {
		o := m.Outgoing
		if m.EditedText != "" {
			o.Message = drafting.ParseEdited(m.Preference, m.EditedText)
		}
		out = append(out, o)
	}

	acts, err := s.Drafter.Send(r.Context(), tenant(r), out)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sendResponse{Activities: acts})
}
