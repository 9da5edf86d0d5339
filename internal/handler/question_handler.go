package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/response"
	"github.com/stemsi/intervue/internal/service"
	"github.com/stemsi/intervue/internal/validator"
)

// QuestionHandler serves the question bank.
type QuestionHandler struct {
	questions *service.QuestionService
	log       zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questions *service.QuestionService, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questions: questions,
		log:       log.With().Str("component", "question_handler").Logger(),
	}
}

// List godoc
// GET /api/v1/questions?page=&pageSize=&sort=&category=&technology=
func (h *QuestionHandler) List(c *gin.Context) {
	var params model.ListParams
	if fields := validator.BindQuery(c, &params); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	items, pagination, err := h.questions.ListQuestions(c.Request.Context(), params)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	if items == nil {
		items = []model.BankQuestion{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"questions": items}, pagination)
}

// Technologies godoc
// GET /api/v1/technologies
func (h *QuestionHandler) Technologies(c *gin.Context) {
	items, err := h.questions.Technologies(c.Request.Context())
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	if items == nil {
		items = []model.Technology{}
	}
	response.Success(c, http.StatusOK, gin.H{"technologies": items})
}

// Categories godoc
// GET /api/v1/categories
func (h *QuestionHandler) Categories(c *gin.Context) {
	items, err := h.questions.Categories(c.Request.Context())
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	if items == nil {
		items = []model.Category{}
	}
	response.Success(c, http.StatusOK, gin.H{"categories": items})
}

// BulkUpload godoc
// POST /api/v1/questions/bulk-upload
func (h *QuestionHandler) BulkUpload(c *gin.Context) {
	var req model.BulkUploadRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.questions.BulkUpload(c.Request.Context(), req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"result": result})
}
