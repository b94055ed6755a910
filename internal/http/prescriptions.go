package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"medicart/internal/domain"
	"medicart/internal/service"
)

type uploadPrescriptionReq struct {
	MedicineIDs []string `json:"medicine_ids"`
	DoctorName  string   `json:"doctor_name"`
	ValidUntil  string   `json:"valid_until" example:"2027-01-31"`
}

type verifyPrescriptionReq struct {
	ValidUntil string `json:"valid_until" example:"2027-01-31"`
	Notes      string `json:"notes"`
}

type rejectPrescriptionReq struct {
	Notes string `json:"notes" binding:"required"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. A bare date
// means the end of that day in UTC.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(24*time.Hour - time.Second), nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// @Summary Register an uploaded prescription
// @Description Stores the extracted metadata. The prescription starts pending until a pharmacist reviews it.
// @Tags prescriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body uploadPrescriptionReq true "Prescription"
// @Success 201 {object} domain.Prescription
// @Failure 400 {object} map[string]string
// @Router /prescriptions [post]
func (s *Server) uploadPrescription(c *gin.Context) {
	var req uploadPrescriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	validUntil, err := optionalDate(req.ValidUntil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid valid_until"})
		return
	}
	p, err := s.svc.Prescriptions.Upload(c, currentUser(c), service.UploadInput{
		MedicineIDs: req.MedicineIDs,
		DoctorName:  req.DoctorName,
		ValidUntil:  validUntil,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary List the caller's prescriptions
// @Tags prescriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {array} domain.Prescription
// @Router /prescriptions [get]
func (s *Server) listPrescriptions(c *gin.Context) {
	list, err := s.svc.Prescriptions.ListByUser(c, currentUser(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Get prescription by id
// @Tags prescriptions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Prescription ID"
// @Success 200 {object} domain.Prescription
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /prescriptions/{id} [get]
func (s *Server) getPrescription(c *gin.Context) {
	var (
		p   *domain.Prescription
		err error
	)
	if isStaff(c) {
		p, err = s.svc.Prescriptions.Get(c, c.Param("id"))
	} else {
		p, err = s.svc.Prescriptions.GetForUser(c, currentUser(c), c.Param("id"))
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Prescriptions in one status
// @Tags staff
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status (default pending)"
// @Success 200 {array} domain.Prescription
// @Router /staff/prescriptions [get]
func (s *Server) listPrescriptionsByStatus(c *gin.Context) {
	status := domain.PrescriptionStatus(c.DefaultQuery("status", string(domain.PrescriptionStatusPending)))
	list, err := s.svc.Prescriptions.ListByStatus(c, status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Start reviewing a prescription
// @Tags staff
// @Produce json
// @Security BearerAuth
// @Param id path string true "Prescription ID"
// @Success 200 {object} domain.Prescription
// @Failure 409 {object} map[string]string
// @Router /staff/prescriptions/{id}/review [post]
func (s *Server) reviewPrescription(c *gin.Context) {
	p, err := s.svc.Prescriptions.StartReview(c, c.Param("id"), currentUser(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Verify a prescription
// @Tags staff
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Prescription ID"
// @Param input body verifyPrescriptionReq false "Verification"
// @Success 200 {object} domain.Prescription
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /staff/prescriptions/{id}/verify [post]
func (s *Server) verifyPrescription(c *gin.Context) {
	var req verifyPrescriptionReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	validUntil, err := optionalDate(req.ValidUntil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid valid_until"})
		return
	}
	p, err := s.svc.Prescriptions.Verify(c, c.Param("id"), service.VerifyInput{
		ValidUntil: validUntil,
		Notes:      req.Notes,
		VerifiedBy: currentUser(c),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Reject a prescription
// @Tags staff
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Prescription ID"
// @Param input body rejectPrescriptionReq true "Reason"
// @Success 200 {object} domain.Prescription
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /staff/prescriptions/{id}/reject [post]
func (s *Server) rejectPrescription(c *gin.Context) {
	var req rejectPrescriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "notes are required"})
		return
	}
	p, err := s.svc.Prescriptions.Reject(c, c.Param("id"), req.Notes, currentUser(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
