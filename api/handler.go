package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"intake/models"
	"intake/services"
	"intake/utils"
)

// APIHandler holds the dependencies for the HTTP handlers.
type APIHandler struct {
	assessments services.AssessmentService
	log         *zap.Logger
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(assessments services.AssessmentService, log *zap.Logger) *APIHandler {
	return &APIHandler{assessments: assessments, log: log}
}

// RegisterRoutes mounts the assessment endpoints on the router.
func (h *APIHandler) RegisterRoutes(r *gin.Engine) {
	group := r.Group("/api/assessment")
	{
		group.POST("/start", h.StartHandler)
		group.GET("/:id/next", h.NextQuestionHandler)
		group.POST("/:id/response", h.SubmitResponseHandler)
		group.POST("/:id/pause", h.PauseHandler)
		group.POST("/:id/resume", h.ResumeHandler)
		group.GET("/:id/progress", h.ProgressHandler)
	}
}

// StartRequest is the payload for starting an assessment.
type StartRequest struct {
	ClientID  string `json:"client_id" binding:"required"`
	Sex       string `json:"sex,omitempty"`
	BirthYear int    `json:"birth_year,omitempty"`
}

// SubmitRequest is the payload for answering a question.
type SubmitRequest struct {
	QuestionID string                 `json:"question_id" binding:"required"`
	Answer     services.ResponseInput `json:"answer"`
}

// StartHandler creates or resumes an assessment and returns its first
// pending question.
// POST /api/assessment/start
func (h *APIHandler) StartHandler(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendJSONError(c, h.log, http.StatusBadRequest, err)
		return
	}

	assessment, question, err := h.assessments.Start(req.ClientID, models.Sex(req.Sex), req.BirthYear)
	if err != nil {
		utils.SendJSONError(c, h.log, utils.StatusForError(err), err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    201,
		"message": "Assessment started",
		"data": gin.H{
			"assessment": assessment,
			"question":   question,
		},
	})
}

// NextQuestionHandler returns the next question, or a completion marker
// when the assessment is done.
// GET /api/assessment/:id/next
func (h *APIHandler) NextQuestionHandler(c *gin.Context) {
	question, assessment, err := h.assessments.NextQuestion(c.Param("id"))
	if err != nil {
		utils.SendJSONError(c, h.log, utils.StatusForError(err), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "OK",
		"data": gin.H{
			"question": question,
			"complete": question == nil,
			"status":   assessment.Status,
		},
	})
}

// SubmitResponseHandler records an answer.
// POST /api/assessment/:id/response
func (h *APIHandler) SubmitResponseHandler(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendJSONError(c, h.log, http.StatusBadRequest, err)
		return
	}

	result, err := h.assessments.SubmitResponse(c.Param("id"), req.QuestionID, req.Answer)
	if err != nil {
		utils.SendJSONError(c, h.log, utils.StatusForError(err), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "Response recorded",
		"data": gin.H{
			"questions_answered": result.Assessment.QuestionsAsked,
			"completion_rate":    result.Assessment.CompletionRate,
			"complete":           result.Complete,
		},
	})
}

// PauseHandler pauses an in-progress assessment.
// POST /api/assessment/:id/pause
func (h *APIHandler) PauseHandler(c *gin.Context) {
	assessment, err := h.assessments.Pause(c.Param("id"))
	if err != nil {
		utils.SendJSONError(c, h.log, utils.StatusForError(err), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "Assessment paused",
		"data":    assessment,
	})
}

// ResumeHandler resumes a paused assessment.
// POST /api/assessment/:id/resume
func (h *APIHandler) ResumeHandler(c *gin.Context) {
	assessment, err := h.assessments.Resume(c.Param("id"))
	if err != nil {
		utils.SendJSONError(c, h.log, utils.StatusForError(err), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "Assessment resumed",
		"data":    assessment,
	})
}

// ProgressHandler returns completion accounting for the assessment.
// GET /api/assessment/:id/progress
func (h *APIHandler) ProgressHandler(c *gin.Context) {
	report, err := h.assessments.Progress(c.Param("id"))
	if err != nil {
		utils.SendJSONError(c, h.log, utils.StatusForError(err), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "OK",
		"data":    report,
	})
}
