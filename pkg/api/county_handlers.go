package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/services"
)

type obligationRequest struct {
	Status models.ObligationStatus `json:"status" binding:"required"`
}

func (s *Server) listCounties(c *gin.Context) {
	counties, err := s.svc.Counties.List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if counties == nil {
		counties = []*models.County{}
	}
	c.JSON(http.StatusOK, counties)
}

func (s *Server) getCounty(c *gin.Context) {
	county, err := s.svc.Counties.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, county)
}

func (s *Server) listCountyTasks(c *gin.Context) {
	tasks, err := s.svc.Tasks.ListByCounty(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) getProfile(c *gin.Context) {
	profile, err := s.svc.Counties.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) updateProfile(c *gin.Context) {
	var profile models.CountyProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		badRequest(c, err)
		return
	}
	profile.CountyID = c.Param("id")
	saved, err := s.svc.Counties.UpdateProfile(c.Request.Context(), &profile)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) listObligations(c *gin.Context) {
	list, err := s.svc.Obligations.ListByCounty(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if list == nil {
		list = []*models.Obligation{}
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) updateObligation(c *gin.Context) {
	var req obligationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := s.svc.Obligations.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) listForms(c *gin.Context) {
	list, err := s.svc.Forms.ListByCounty(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if list == nil {
		list = []*models.Form{}
	}
	c.JSON(http.StatusOK, list)
}

// uploadForm stores the multipart field "file".
func (s *Server) uploadForm(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes+1<<20)
	header, err := c.FormFile("file")
	if err != nil {
		s.respondError(c, services.ValidationError{Field: "file", Message: "a file is required"})
		return
	}
	f, err := header.Open()
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer f.Close()

	p, _ := auth.GetPrincipal(c)
	form, err := s.svc.Forms.Upload(c.Request.Context(), c.Param("id"), header.Filename, f, p.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, form)
}

func (s *Server) downloadForm(c *gin.Context) {
	form, data, err := s.svc.Forms.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	p, _ := auth.GetPrincipal(c)
	if p.Role == models.RoleCounty && p.CountyID != form.CountyID {
		s.respondError(c, services.ErrForbidden)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", form.Name))
	c.Data(http.StatusOK, form.FileType.ContentType(), data)
}
