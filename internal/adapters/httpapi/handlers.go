package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"talentcore/internal/core"
	"talentcore/pkg/domain"
)

type submitRequest struct {
	JobID       string           `json:"job_id"`
	CoverLetter *string          `json:"cover_letter"`
	ResumeURL   *string          `json:"resume_url"`
	CustomQA    *domain.CustomQA `json:"custom_q_a"`
}

type statusRequest struct {
	ExpectedVersion *int64        `json:"expected_version"`
	Status          domain.Status `json:"status"`
	Notes           *string       `json:"notes"`
}

func (s *Server) submitApplication(c *gin.Context) {
	actor := actorFrom(c)
	if actor.Role != domain.RoleTalent {
		c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "forbidden", Message: "only talent may submit applications"})
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	app, err := s.svc.SubmitApplication(c.Request.Context(), core.Submission{
		JobID:       req.JobID,
		TalentID:    actor.ID,
		CoverLetter: req.CoverLetter,
		ResumeURL:   req.ResumeURL,
		CustomQA:    req.CustomQA,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

func (s *Server) getApplication(c *gin.Context) {
	app, err := s.svc.GetApplication(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !canRead(actorFrom(c), app) {
		s.fail(c, domain.NewMutationError(domain.ErrForbidden, app.ID, "not the owning talent"))
		return
	}
	c.JSON(http.StatusOK, app)
}

func (s *Server) listHistory(c *gin.Context) {
	id := c.Param("id")
	actor := actorFrom(c)
	if actor.Role == domain.RoleTalent {
		app, ok, err := s.svc.Store().GetApplication(c.Request.Context(), id)
		if err != nil {
			s.fail(c, err)
			return
		}
		if ok && !canRead(actor, app) {
			s.fail(c, domain.NewMutationError(domain.ErrForbidden, id, "not the owning talent"))
			return
		}
	}
	entries, err := s.svc.ListHistory(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if entries == nil {
		entries = []core.StatusHistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"application_id": id, "history": entries})
}

func (s *Server) updateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if req.ExpectedVersion == nil || req.Status == "" {
		badRequest(c, "expected_version and status are required")
		return
	}
	change, err := s.svc.UpdateStatus(c.Request.Context(), core.StatusUpdate{
		ApplicationID:   c.Param("id"),
		ExpectedVersion: *req.ExpectedVersion,
		NewStatus:       req.Status,
		Actor:           actorFrom(c),
		Notes:           req.Notes,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, change)
}

func (s *Server) softDeleteApplication(c *gin.Context) {
	app, err := s.svc.SoftDeleteApplication(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (s *Server) anonymizeApplication(c *gin.Context) {
	id := c.Param("id")
	if actorFrom(c).Role != domain.RoleAdmin {
		s.fail(c, domain.NewMutationError(domain.ErrForbidden, id, "only admins may anonymize"))
		return
	}
	done, err := s.svc.AnonymizeApplication(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"application_id": id, "anonymized": done})
}

// streamEvents subscribes the caller to one application, or to every
// application for business and admin viewers. Talent must name an application
// they own.
func (s *Server) streamEvents(c *gin.Context) {
	actor := actorFrom(c)
	id := c.Query("application_id")
	if id == "" {
		if actor.Role == domain.RoleTalent {
			s.fail(c, domain.NewMutationError(domain.ErrForbidden, "", "talent viewers must name an application"))
			return
		}
		s.hub.Stream(c.Writer, c.Request, domain.StatusTopic)
		return
	}
	app, err := s.svc.GetApplication(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !canRead(actor, app) {
		s.fail(c, domain.NewMutationError(domain.ErrForbidden, id, "not the owning talent"))
		return
	}
	s.hub.Stream(c.Writer, c.Request, domain.TopicFor(id))
}

// canRead lets business and admin actors read any application and talent
// actors only their own.
func canRead(actor domain.Actor, app domain.Application) bool {
	if actor.Role != domain.RoleTalent {
		return true
	}
	return actor.ID == app.TalentID
}
