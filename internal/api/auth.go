package api

import (
	"context"
	"net/http"
	"strings"

	"classhub/internal/identity"
	"classhub/pkg/types"
)

type sessionKey struct{}

// sessionFromContext returns the session stored by authMiddleware
func sessionFromContext(ctx context.Context) *identity.Session {
	s, _ := ctx.Value(sessionKey{}).(*identity.Session)
	return s
}

// currentUser is only called behind authMiddleware
func currentUser(r *http.Request) *types.User {
	return &sessionFromContext(r.Context()).User
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			s.writeError(w, r, ErrMissingToken)
			return
		}
		session, err := s.deps.Identity.Authenticate(r.Context(), token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireMentor(next http.Handler) http.Handler {
	return s.requireRole(types.RoleMentor, next)
}

func (s *Server) requireParticipant(next http.Handler) http.Handler {
	return s.requireRole(types.RoleParticipant, next)
}

func (s *Server) requireRole(role types.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := sessionFromContext(r.Context())
		if session == nil {
			s.writeError(w, r, ErrMissingToken)
			return
		}
		if session.User.Role != role {
			s.writeError(w, r, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/signup
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req identity.SignUpRequest
	if err := s.decode(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.deps.Identity.SignUp(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// POST /api/auth/signin
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := s.decode(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.deps.Identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// POST /api/auth/signout
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Identity.SignOut(r.Context(), sessionFromContext(r.Context()).Token); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Signed out"})
}

// GET /api/auth/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": currentUser(r)})
}
