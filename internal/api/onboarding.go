package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/tailorreach/internal/model"
	"github.com/sells-group/tailorreach/internal/onboarding"
)

type messagesRequest struct {
	Messages []model.ChatMessage `json:"messages"`
}

func (s *Server) analyzeStyle(w http.ResponseWriter, r *http.Request) {
	var req messagesRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	style, err := s.Onboarding.AnalyzeStyle(r.Context(), req.Messages)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, style)
}

// chat streams the simulated customer's reply as plain text. Once the
// first chunk is written the status is committed, so later failures can
// only end the stream.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req messagesRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	_, err := s.Onboarding.Chat(r.Context(), req.Messages, func(delta string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(delta)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		if started {
			zap.L().Warn("api: chat stream interrupted", zap.Error(err))
			return
		}
		writeError(w, r, err)
		return
	}
	if !started {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) saveUserData(w http.ResponseWriter, r *http.Request) {
	var req onboarding.SaveRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.Onboarding.Save(r.Context(), tenant(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) onboardingStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Onboarding.Status(r.Context(), tenant(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
