package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"classhub/internal/session"
	"classhub/internal/video"
	"classhub/pkg/types"
)

// ClassResponse is a class with its advisory flags
type ClassResponse struct {
	*types.ClassSession
	Flags session.Flags `json:"flags"`
}

// EnrolledClassResponse is an enrollment with its flagged class
type EnrolledClassResponse struct {
	Enrollment types.Enrollment `json:"enrollment"`
	Class      ClassResponse    `json:"class"`
}

// SessionViewResponse is what the live session page renders
type SessionViewResponse struct {
	Class    ClassResponse `json:"class"`
	IsMentor bool          `json:"is_mentor"`
	Viewers  int           `json:"viewers"`
	Video    *video.Embed  `json:"video,omitempty"`
}

func (s *Server) withFlags(class *types.ClassSession) ClassResponse {
	return ClassResponse{ClassSession: class, Flags: s.deps.Classes.Flags(class)}
}

func (s *Server) classList(classes []*types.ClassSession) []ClassResponse {
	out := make([]ClassResponse, 0, len(classes))
	for _, c := range classes {
		out = append(out, s.withFlags(c))
	}
	return out
}

// POST /api/classes
func (s *Server) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	var req session.CreateClassRequest
	if err := s.decode(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	class, err := s.deps.Classes.CreateClass(r.Context(), currentUser(r).ID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"class": s.withFlags(class)})
}

// GET /api/classes/mine
func (s *Server) handleMentorClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := s.deps.Classes.MentorClasses(r.Context(), currentUser(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"classes": s.classList(classes)})
}

// GET /api/classes/explore?q=
func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	classes, err := s.deps.Classes.ExploreClasses(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"classes": s.classList(classes)})
}

// GET /api/classes/enrolled
func (s *Server) handleEnrolledClasses(w http.ResponseWriter, r *http.Request) {
	enrolled, err := s.deps.Classes.EnrolledClasses(r.Context(), currentUser(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]EnrolledClassResponse, 0, len(enrolled))
	for _, e := range enrolled {
		class := e.Class
		out = append(out, EnrolledClassResponse{Enrollment: e.Enrollment, Class: s.withFlags(&class)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"enrollments": out})
}

// GET /api/classes/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	classes, err := s.deps.Classes.Dashboard(r.Context(), currentUser(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"upcoming": s.classList(classes)})
}

// GET /api/classes/{classID}
func (s *Server) handleGetClass(w http.ResponseWriter, r *http.Request) {
	class, err := s.deps.Classes.GetClass(r.Context(), chi.URLParam(r, "classID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"class": s.withFlags(class)})
}

// GET /api/classes/{classID}/session
// FUNCTIONAL DISCOVERY: The video descriptor is only handed out while the
// caller may join; members still see the page of a closed class
func (s *Server) handleSessionView(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	class, err := s.deps.Classes.CanAccess(r.Context(), chi.URLParam(r, "classID"), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := SessionViewResponse{
		Class:    s.withFlags(class),
		IsMentor: class.MentorID == user.ID,
	}
	if s.deps.Registry != nil {
		resp.Viewers = s.deps.Registry.ViewerCount(class.ID)
	}
	if resp.Class.Flags.CanJoin && s.deps.Rooms != nil {
		embed := s.deps.Rooms.For(class)
		resp.Video = &embed
	}
	writeJSON(w, http.StatusOK, resp)
}

type transitionFunc func(ctx context.Context, classID, actorID string) (*session.Outcome, error)

func (s *Server) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, err := fn(r.Context(), chi.URLParam(r, "classID"), currentUser(r).ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"class":    s.withFlags(outcome.Class),
			"redirect": outcome.Redirect,
		})
	}
}

// POST /api/classes/{classID}/start
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.transition(s.deps.Classes.Start)(w, r)
}

// POST /api/classes/{classID}/end
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	s.transition(s.deps.Classes.End)(w, r)
}

// POST /api/classes/{classID}/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.transition(s.deps.Classes.Cancel)(w, r)
}

// GET /api/classes/{classID}/participants
func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := s.deps.Classes.Participants(r.Context(), currentUser(r).ID, chi.URLParam(r, "classID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"participants": participants})
}

// POST /api/classes/{classID}/enroll
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	enrollment, err := s.deps.Classes.Enroll(r.Context(), currentUser(r).ID, chi.URLParam(r, "classID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"enrollment": enrollment})
}

// DELETE /api/classes/{classID}/enroll
func (s *Server) handleUnenroll(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Classes.Unenroll(r.Context(), currentUser(r).ID, chi.URLParam(r, "classID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Unenrolled"})
}
