package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trailsbuddy.com/quiz-contest/internal/models"
)

type contestReq struct {
	ContestID string `json:"contestId" binding:"required"`
}

type answerReq struct {
	ContestID        string `json:"contestId" binding:"required"`
	QuestionNo       int    `json:"questionNo" binding:"required,min=1"`
	SelectedOptionID int    `json:"selectedOptionId" binding:"required"`
}

// GET /api/v1/session?contestId=
func GetSession(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		contestID := c.Query("contestId")
		if contestID == "" {
			badRequest(c, "contestId is required")
			return
		}
		tracker, err := d.Sessions.GetOrCreateSession(c.Request.Context(), currentUser(c), contestID)
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "tracker": tracker})
	}
}

// POST /api/v1/session/start
func StartSession(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req contestReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "contestId is required")
			return
		}
		tracker, next, err := d.Sessions.StartOrResume(c.Request.Context(), currentUser(c), req.ContestID)
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "tracker": tracker, "question": next.DTO()})
	}
}

// POST /api/v1/session/answer
func SubmitAnswer(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req answerReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "contestId, questionNo and selectedOptionId are required")
			return
		}
		tracker, next, err := d.Sessions.SubmitAnswer(c.Request.Context(), currentUser(c), req.ContestID, req.QuestionNo, req.SelectedOptionID)
		if err != nil {
			respondError(c, d, err)
			return
		}
		var question *models.QuestionDTO
		if next != nil {
			question = next.DTO()
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "tracker": tracker, "question": question})
	}
}

// POST /api/v1/session/finish
func FinishSession(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req contestReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "contestId is required")
			return
		}
		tracker, err := d.Sessions.Finish(c.Request.Context(), currentUser(c), req.ContestID)
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "tracker": tracker})
	}
}
