// Package handlers exposes the contest engine over HTTP with gin.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trailsbuddy.com/quiz-contest/internal/apperr"
	"trailsbuddy.com/quiz-contest/internal/clock"
	"trailsbuddy.com/quiz-contest/internal/contest"
	"trailsbuddy.com/quiz-contest/internal/ledger"
	"trailsbuddy.com/quiz-contest/internal/logger"
	"trailsbuddy.com/quiz-contest/internal/questionbank"
	"trailsbuddy.com/quiz-contest/internal/repository"
	"trailsbuddy.com/quiz-contest/internal/session"
)

// Deps are the services the HTTP layer calls into.
type Deps struct {
	Sessions  *session.Manager
	Ledger    *ledger.Service
	Contests  *contest.Service
	Questions *questionbank.Service
	Users     repository.UserRepository
	Clock     clock.Clock
	Log       *logger.Logger
}

// Register mounts the API under /api/v1. Every route requires a user id.
func Register(r gin.IRouter, d *Deps) {
	api := r.Group("/api/v1")
	api.Use(RequireUser(d.Users, d.Clock))
	{
		// Play sessions
		api.GET("/session", GetSession(d))
		api.POST("/session/start", StartSession(d))
		api.POST("/session/answer", SubmitAnswer(d))
		api.POST("/session/finish", FinishSession(d))

		// Wallet
		api.POST("/wallet/payContest", PayContest(d))
		api.POST("/wallet/addBalanceInit", AddBalanceInit(d))
		api.POST("/wallet/addBalanceEnd", AddBalanceEnd(d))
		api.POST("/wallet/withdrawInit", WithdrawInit(d))
		api.POST("/wallet/withdrawEnd", WithdrawEnd(d))
		api.GET("/wallet/balance", Balance(d))
		api.GET("/wallet/transactions", ListTransactions(d))

		// Contests & questions
		api.POST("/contests", CreateContest(d))
		api.GET("/contests/:id", GetContest(d))
		api.POST("/contests/:id/activate", ActivateContest(d))
		api.POST("/contests/:id/deactivate", DeactivateContest(d))
		api.POST("/questions", CreateQuestion(d))

		// Profile & stats
		api.GET("/me", GetMe(d))
		api.GET("/results", Results(d))
		api.GET("/leaderboard", Leaderboard(d))
	}
}

// respondError writes the classified error body. Unclassified and
// server-side failures are logged; client errors are not.
func respondError(c *gin.Context, d *Deps, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		d.Log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	msg := apperr.Message(err)
	if kind == apperr.KindInternal && status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"code":    kind,
		"error":   msg,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"code":    apperr.KindValidation,
		"error":   msg,
	})
}
