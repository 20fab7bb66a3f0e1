package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/services"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) signup(c *gin.Context) {
	var req services.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := s.svc.Accounts.Signup(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := s.svc.Accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) me(c *gin.Context) {
	p, _ := auth.GetPrincipal(c)
	user, err := s.svc.Accounts.Me(c.Request.Context(), p.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// listUsers returns county and state users, or the roles named in ?role=a,b.
func (s *Server) listUsers(c *gin.Context) {
	roles := []models.Role{models.RoleCounty, models.RoleState}
	if q := c.Query("role"); q != "" {
		roles = roles[:0]
		for _, r := range strings.Split(q, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, models.Role(r))
			}
		}
	}
	users, err := s.svc.Accounts.ListUsers(c.Request.Context(), roles...)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	c.JSON(http.StatusOK, users)
}
