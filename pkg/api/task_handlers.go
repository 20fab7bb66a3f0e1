package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/models"
)

type statusRequest struct {
	Status models.TaskStatus `json:"status" binding:"required"`
}

func (s *Server) createTask(c *gin.Context) {
	var draft models.TaskDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, err)
		return
	}
	p, _ := auth.GetPrincipal(c)
	task, err := s.svc.Tasks.Create(c.Request.Context(), draft, p)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) myTasks(c *gin.Context) {
	p, _ := auth.GetPrincipal(c)
	tasks, err := s.svc.Tasks.ListMine(c.Request.Context(), p)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) updateTaskStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, _ := auth.GetPrincipal(c)
	task, err := s.svc.Tasks.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, p)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) deleteTask(c *gin.Context) {
	if err := s.svc.Tasks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listReminders(c *gin.Context) {
	list, err := s.svc.Reminders.ListByTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if list == nil {
		list = []*models.Reminder{}
	}
	c.JSON(http.StatusOK, list)
}

// sendReminder queues a reminder for every assignee right away.
func (s *Server) sendReminder(c *gin.Context) {
	list, err := s.svc.Reminders.SendNow(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, list)
}
