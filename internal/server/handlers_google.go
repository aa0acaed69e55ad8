package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

var errGoogleDisabled = errors.New("google integration is not configured")

func (s *Server) googleAuthURL(w http.ResponseWriter, r *http.Request) {
	if s.deps.Google == nil {
		renderError(w, r, http.StatusServiceUnavailable, errGoogleDisabled.Error())
		return
	}

	state, err := s.state.Sign(MustHaveUser(r.Context()).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"url": s.deps.Google.AuthCodeURL(state)})
}

// googleCallback completes the consent flow. The browser arrives here without a bearer
// token, so the user is taken from the signed state.
func (s *Server) googleCallback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Google == nil {
		renderError(w, r, http.StatusServiceUnavailable, errGoogleDisabled.Error())
		return
	}

	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		renderError(w, r, http.StatusBadRequest, "google sign-in was declined: "+reason)
		return
	}

	userID, err := s.state.Verify(query.Get("state"))
	if err != nil {
		s.log.Debugw("rejected oauth state", "error", err)
		renderError(w, r, http.StatusBadRequest, "invalid or expired state")
		return
	}

	code := query.Get("code")
	if code == "" {
		renderError(w, r, http.StatusBadRequest, "authorization code is missing")
		return
	}

	if err := s.deps.Google.Exchange(r.Context(), userID, code); err != nil {
		s.log.Warnw("google token exchange failed", "user_id", userID, "error", err)
		renderError(w, r, http.StatusBadGateway, "failed to exchange authorization code")
		return
	}

	s.log.Infow("google account connected", "user_id", userID)
	render.JSON(w, r, map[string]bool{"connected": true})
}

func (s *Server) googleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Google == nil {
		render.JSON(w, r, map[string]bool{"enabled": false, "connected": false})
		return
	}

	connected, err := s.deps.Google.IsSignedIn(r.Context(), MustHaveUser(r.Context()).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]bool{"enabled": true, "connected": connected})
}

func (s *Server) googleSignOut(w http.ResponseWriter, r *http.Request) {
	if s.deps.Google == nil {
		renderError(w, r, http.StatusServiceUnavailable, errGoogleDisabled.Error())
		return
	}
	if err := s.deps.Google.SignOut(r.Context(), MustHaveUser(r.Context()).ID); err != nil {
		respondError(w, r, err)
		return
	}
	render.NoContent(w, r)
}
