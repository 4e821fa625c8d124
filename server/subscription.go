package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"tvalert/pkg/tvalert"
	"tvalert/token"
)

// tokenBody is the write-request payload: the token triple plus the series ID
// being added or removed.
type tokenBody struct {
	Email     string `json:"email"`
	Expires   string `json:"expires"`
	Signature string `json:"signature"`
	MediaID   string `json:"mediaId"`
}

// authenticate runs the full verification state machine and writes the
// rejection response on failure. Expiry is the only distinctly surfaced
// rejection; everything else collapses into the generic one.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, tok tvalert.Token) (string, bool) {
	res, err := s.verifier.Verify(r.Context(), tok)
	if err != nil {
		s.logger.Error("Token verification failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return "", false
	}

	switch res.Verdict {
	case token.Authenticated:
		return res.Email, true
	case token.Expired:
		s.writeJSON(w, http.StatusBadRequest, "User session expired.")
		return "", false
	default:
		s.logger.Info("Token rejected", "reason", res.Verdict.String())
		s.writeJSON(w, http.StatusUnauthorized, genericRejection)
		return "", false
	}
}

func (s *Server) tokenFromQuery(w http.ResponseWriter, r *http.Request) (tvalert.Token, bool) {
	q := r.URL.Query()
	tok, err := tokenFromValues(q.Get("email"), q.Get("expires"), q.Get("signature"))
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, genericRejection)
		return tvalert.Token{}, false
	}
	return tok, true
}

func (s *Server) tokenFromBody(w http.ResponseWriter, r *http.Request) (tvalert.Token, string, bool) {
	var body tokenBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return tvalert.Token{}, "", false
	}

	tok, err := tokenFromValues(body.Email, body.Expires, body.Signature)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, genericRejection)
		return tvalert.Token{}, "", false
	}
	return tok, body.MediaID, true
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listSubscriptionContent(w, r)
	case http.MethodPost:
		s.addMedia(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// listSubscriptionContent returns full metadata for every tracked series.
// Lookups are live; a failed ID is logged and excluded from the response
// rather than failing the whole read.
func (s *Server) listSubscriptionContent(w http.ResponseWriter, r *http.Request) {
	tok, ok := s.tokenFromQuery(w, r)
	if !ok {
		return
	}
	email, ok := s.authenticate(w, r, tok)
	if !ok {
		return
	}

	ids, err := s.subscriptions.MediaIDs(r.Context(), email)
	if err != nil {
		s.logger.Error("Failed to load subscription", "email", email, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	shows := make([]tvalert.ShowSummary, 0, len(ids))
	var failed []string
	for _, id := range ids {
		show, err := s.lookup.Show(r.Context(), id)
		if err != nil {
			failed = append(failed, id)
			continue
		}
		shows = append(shows, *show)
	}

	if len(failed) > 0 {
		s.logger.Warn("Could not retrieve some media", "email", email, "media_ids", strings.Join(failed, ","))
	}

	s.writeJSON(w, http.StatusOK, shows)
}

func (s *Server) handleShallowInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tok, ok := s.tokenFromQuery(w, r)
	if !ok {
		return
	}
	email, ok := s.authenticate(w, r, tok)
	if !ok {
		return
	}

	ids, err := s.subscriptions.MediaIDs(r.Context(), email)
	if err != nil {
		s.logger.Error("Failed to load subscription", "email", email, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}

	s.writeJSON(w, http.StatusOK, ids)
}

func (s *Server) addMedia(w http.ResponseWriter, r *http.Request) {
	tok, mediaID, ok := s.tokenFromBody(w, r)
	if !ok {
		return
	}
	if mediaID == "" {
		http.Error(w, "Missing mediaId", http.StatusBadRequest)
		return
	}

	email, ok := s.authenticate(w, r, tok)
	if !ok {
		return
	}

	if err := s.subscriptions.AddMedia(r.Context(), email, mediaID); err != nil {
		s.logger.Error("Failed to add media", "email", email, "media_id", mediaID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.logger.Info("Media added to subscription", "email", email, "media_id", mediaID)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleSubscriptionItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mediaID := strings.TrimPrefix(r.URL.Path, "/subscription/")
	if mediaID == "" || strings.Contains(mediaID, "/") {
		http.Error(w, "Invalid media ID", http.StatusBadRequest)
		return
	}

	tok, _, ok := s.tokenFromBody(w, r)
	if !ok {
		return
	}
	email, ok := s.authenticate(w, r, tok)
	if !ok {
		return
	}

	if err := s.subscriptions.RemoveMedia(r.Context(), email, mediaID); err != nil {
		s.logger.Error("Failed to remove media", "email", email, "media_id", mediaID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.logger.Info("Media removed from subscription", "email", email, "media_id", mediaID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		http.Error(w, "Missing query", http.StatusBadRequest)
		return
	}

	shows, err := s.lookup.Search(r.Context(), query)
	if err != nil {
		s.logger.Error("Show search failed", "query", query, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if shows == nil {
		shows = []tvalert.ShowSummary{}
	}

	s.writeJSON(w, http.StatusOK, shows)
}
