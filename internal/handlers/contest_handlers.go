package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trailsbuddy.com/quiz-contest/internal/contest"
	"trailsbuddy.com/quiz-contest/internal/questionbank"
)

// POST /api/v1/contests
func CreateContest(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in contest.CreateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, "bad request")
			return
		}
		created, err := d.Contests.Create(c.Request.Context(), currentUser(c), in)
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "contest": created})
	}
}

// GET /api/v1/contests/:id
func GetContest(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		found, err := d.Contests.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "contest": found})
	}
}

// POST /api/v1/contests/:id/activate
func ActivateContest(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		updated, err := d.Contests.Activate(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "contest": updated})
	}
}

// POST /api/v1/contests/:id/deactivate
func DeactivateContest(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		updated, err := d.Contests.Deactivate(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "contest": updated})
	}
}

// POST /api/v1/questions
func CreateQuestion(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in questionbank.CreateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, "bad request")
			return
		}
		q, err := d.Questions.Create(c.Request.Context(), currentUser(c), in)
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "question": q})
	}
}

// GET /api/v1/me
func GetMe(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := currentUser(c)
		u, err := d.Users.FindByID(c.Request.Context(), uid)
		if err != nil {
			respondError(c, d, err)
			return
		}
		balance, err := d.Ledger.Balance(c.Request.Context(), uid)
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "user": u, "balance": balance})
	}
}

// GET /api/v1/results?limit=
func Results(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		results, err := d.Contests.ResultsForUser(c.Request.Context(), currentUser(c), limit)
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
	}
}

// GET /api/v1/leaderboard?limit=
func Leaderboard(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		users, err := d.Contests.Leaderboard(c.Request.Context(), limit)
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "leaderboard": users})
	}
}
