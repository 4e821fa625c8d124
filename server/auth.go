package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"tvalert/token"
)

// genericRejection is the single message used for every standard-flow
// rejection except expiry. Invalid signatures and suppressed emails must be
// indistinguishable to the caller so account state cannot be probed.
const genericRejection = "Authentication failed."

// redirect sends the browser to a destination on the external client.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, dest string, params url.Values) {
	u := s.clientURL + dest
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	http.Redirect(w, r, u, http.StatusFound)
}

func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, message string) {
	s.redirect(w, r, "/error", url.Values{"message": {message}})
}

func (s *Server) handleSendVerificationLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ip := clientIP(r)
	if !authRateLimiter.allow(ip) {
		s.logger.Warn("Rate limit exceeded", "ip", ip)
		http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
		return
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !isValidEmail(body.Email) {
		http.Error(w, "Invalid email address", http.StatusBadRequest)
		return
	}

	// Suppressed emails no-op inside the issuer; the response is 204 either
	// way, so the caller cannot tell "sent" from "suppressed".
	if err := s.issuer.SendMagicLink(r.Context(), body.Email); err != nil {
		s.logger.Error("Failed to send verification link", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuthRedirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ip := clientIP(r)
	if !authRateLimiter.allow(ip) {
		s.logger.Warn("Rate limit exceeded", "ip", ip)
		http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
		return
	}

	q := r.URL.Query()
	tok, err := tokenFromValues(q.Get("email"), q.Get("expires"), q.Get("signature"))
	if err != nil {
		s.redirectError(w, r, genericRejection)
		return
	}

	res, err := s.verifier.Verify(r.Context(), tok)
	if err != nil {
		s.logger.Error("Token verification failed", "error", err)
		s.redirectError(w, r, "Internal server error.")
		return
	}

	switch res.Verdict {
	case token.Authenticated:
		// The triple itself is the session; hand it back to the client to
		// re-send on subsequent calls.
		s.redirect(w, r, "/redirect", tok.Query())
	case token.Expired:
		s.redirect(w, r, "/expired", url.Values{"email": {tok.Email}})
	default:
		s.logger.Info("Token rejected", "reason", res.Verdict.String(), "ip", ip)
		s.redirectError(w, r, genericRejection)
	}
}

func (s *Server) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ip := clientIP(r)
	if !authRateLimiter.allow(ip) {
		s.logger.Warn("Rate limit exceeded", "ip", ip)
		http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
		return
	}

	q := r.URL.Query()
	tok, err := tokenFromValues(q.Get("email"), q.Get("expires"), q.Get("signature"))
	if err != nil {
		s.redirectError(w, r, genericRejection)
		return
	}

	// Suppression-tolerant verification: an already-suppressed email must be
	// able to reach this flow, where the duplicate itself is the error.
	res := s.verifier.VerifyForSuppression(tok)
	switch res.Verdict {
	case token.Authenticated:
	case token.Expired:
		s.redirect(w, r, "/expired", url.Values{"email": {tok.Email}})
		return
	default:
		s.logger.Info("Blacklist token rejected", "reason", res.Verdict.String(), "ip", ip)
		s.redirectError(w, r, genericRejection)
		return
	}

	if err := s.suppressor.Suppress(r.Context(), res.Email); err != nil {
		if s.isConflict(err) {
			s.redirectError(w, r, "This email is already blacklisted.")
			return
		}
		s.logger.Error("Failed to suppress email", "error", err)
		s.redirectError(w, r, "Internal server error.")
		return
	}

	s.logger.Info("Email blacklisted", "email", res.Email, "ip", ip)
	s.redirect(w, r, "/blacklist", nil)
}
