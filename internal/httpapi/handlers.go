package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/medtrack/internal/auth"
	"github.com/roach88/medtrack/internal/medication"
	"github.com/roach88/medtrack/internal/record"
	"github.com/roach88/medtrack/internal/validate"
)

type sessionResponse struct {
	Token string      `json:"token"`
	User  record.User `json:"user"`
}

func (s *Server) issue(c *gin.Context, status int, user record.User) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(status, sessionResponse{Token: token, User: user})
}

func (s *Server) login(c *gin.Context) {
	var form validate.LoginForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, err)
		return
	}
	if errs := s.validator.Login(form); len(errs) > 0 {
		s.writeError(c, errs)
		return
	}
	role, err := record.ParseRole(form.Role)
	if err != nil {
		s.writeError(c, err)
		return
	}

	user, err := s.auth.Authenticate(c.Request.Context(), form.Email, form.Password, role)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.issue(c, http.StatusOK, user)
}

func (s *Server) signup(c *gin.Context) {
	var form validate.SignupForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, err)
		return
	}
	if errs := s.validator.Signup(form); len(errs) > 0 {
		s.writeError(c, errs)
		return
	}
	role, err := record.ParseRole(form.Role)
	if err != nil {
		s.writeError(c, err)
		return
	}

	user, err := s.auth.Register(c.Request.Context(), auth.SignupData{
		Email:     form.Email,
		Password:  form.Password,
		FirstName: form.FirstName,
		LastName:  form.LastName,
		Role:      role,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.issue(c, http.StatusCreated, user)
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

// tracker returns a tracker loaded with the caller's medications. The caller
// must hold the patient lock.
func (s *Server) tracker(c *gin.Context, patientID string) (*medication.Tracker, bool) {
	tr := medication.NewTracker(s.store, medication.WithClock(s.clock), medication.WithLogger(s.logger))
	if err := tr.Refresh(c.Request.Context(), patientID); err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return tr, true
}

func (s *Server) listMedications(c *gin.Context) {
	user := currentUser(c)
	unlock := s.patients.Lock(user.ID)
	defer unlock()

	tr, ok := s.tracker(c, user.ID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tr.Medications())
}

func (s *Server) addMedication(c *gin.Context) {
	var form validate.MedicationForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, err)
		return
	}
	if errs := s.validator.Medication(form); len(errs) > 0 {
		s.writeError(c, errs)
		return
	}

	user := currentUser(c)
	unlock := s.patients.Lock(user.ID)
	defer unlock()

	tr, ok := s.tracker(c, user.ID)
	if !ok {
		return
	}
	med, err := tr.Add(c.Request.Context(), form, user.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, med)
}

func (s *Server) markTaken(c *gin.Context) {
	user := currentUser(c)
	unlock := s.patients.Lock(user.ID)
	defer unlock()

	tr, ok := s.tracker(c, user.ID)
	if !ok {
		return
	}
	// Medications of other patients are not in the tracker and read as
	// missing.
	med, err := tr.MarkAsTaken(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, med)
}

func (s *Server) stats(c *gin.Context) {
	user := currentUser(c)
	unlock := s.patients.Lock(user.ID)
	defer unlock()

	tr, ok := s.tracker(c, user.ID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tr.Stats(user.ID))
}

func (s *Server) overview(c *gin.Context) {
	ov, err := medication.BuildOverview(c.Request.Context(), s.store)
	if err != nil {
		s.writeError(c, record.StoreFailure(err))
		return
	}
	c.JSON(http.StatusOK, ov)
}
