package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"intake/models"
)

// ErrConflict signals that an optimistic update lost a race with a
// concurrent writer for the same assessment row. Callers retry or reject;
// it never reaches a client as-is.
var ErrConflict = errors.New("assessment was modified concurrently")

// AssessmentRepository persists assessments and their append-only
// responses. Not-found lookups return (nil, nil); the service layer decides
// whether that is an error.
type AssessmentRepository interface {
	CreateAssessment(assessment *models.Assessment) error
	GetAssessmentByID(id string) (*models.Assessment, error)
	FindActiveAssessment(clientID string) (*models.Assessment, error)
	// UpdateAssessment writes the row back, guarded on the questionsAsked
	// value that was loaded, so double-submits serialize to ErrConflict.
	UpdateAssessment(assessment *models.Assessment, expectedQuestionsAsked int) error
	// AppendResponse inserts a response; a second insert for the same
	// (assessmentID, questionID) pair returns models.ErrDuplicateResponse.
	AppendResponse(response *models.Response) error
	// SupersedeResponse replaces the stored value of an existing response
	// in place, keeping the single-record invariant.
	SupersedeResponse(response *models.Response) error
	GetResponses(assessmentID string) ([]models.Response, error)
}

type assessmentRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewAssessmentRepository creates the GORM-backed repository.
func NewAssessmentRepository(db *gorm.DB, log *zap.Logger) AssessmentRepository {
	return &assessmentRepository{db: db, log: log}
}

func (r *assessmentRepository) CreateAssessment(assessment *models.Assessment) error {
	if assessment.ClientID == "" {
		return errors.New("client ID cannot be empty")
	}
	now := time.Now()
	assessment.CreatedAt = now
	assessment.UpdatedAt = now
	if assessment.StartedAt.IsZero() {
		assessment.StartedAt = now
	}
	if assessment.Status == "" {
		assessment.Status = models.AssessmentStatusInProgress
	}

	if err := r.db.Create(assessment).Error; err != nil {
		return fmt.Errorf("failed to create assessment for client %s: %w", assessment.ClientID, err)
	}
	r.log.Info("Created assessment",
		zap.String("assessment_id", assessment.ID),
		zap.String("client_id", assessment.ClientID))
	return nil
}

func (r *assessmentRepository) GetAssessmentByID(id string) (*models.Assessment, error) {
	var assessment models.Assessment
	err := r.db.First(&assessment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment %s: %w", id, err)
	}
	return &assessment, nil
}

func (r *assessmentRepository) FindActiveAssessment(clientID string) (*models.Assessment, error) {
	var assessment models.Assessment
	err := r.db.
		Where("client_id = ? AND status IN ?", clientID,
			[]models.AssessmentStatus{models.AssessmentStatusInProgress, models.AssessmentStatusPaused}).
		Order("started_at DESC").
		First(&assessment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up active assessment for client %s: %w", clientID, err)
	}
	return &assessment, nil
}

func (r *assessmentRepository) UpdateAssessment(assessment *models.Assessment, expectedQuestionsAsked int) error {
	assessment.UpdatedAt = time.Now()

	// The guard on the previously loaded questions_asked value gives a
	// single-writer guarantee per assessment under retried submissions.
	result := r.db.Model(&models.Assessment{}).
		Where("id = ? AND questions_asked = ?", assessment.ID, expectedQuestionsAsked).
		Select("*").
		Updates(assessment)
	if result.Error != nil {
		return fmt.Errorf("failed to update assessment %s: %w", assessment.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		var exists int64
		r.db.Model(&models.Assessment{}).Where("id = ?", assessment.ID).Count(&exists)
		if exists == 0 {
			return fmt.Errorf("update failed: assessment %s not found", assessment.ID)
		}
		r.log.Warn("Optimistic update conflict",
			zap.String("assessment_id", assessment.ID),
			zap.Int("expected_questions_asked", expectedQuestionsAsked))
		return ErrConflict
	}
	return nil
}

func (r *assessmentRepository) AppendResponse(response *models.Response) error {
	if response.AnsweredAt.IsZero() {
		response.AnsweredAt = time.Now()
	}
	if err := r.db.Create(response).Error; err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateResponse
		}
		return fmt.Errorf("failed to append response for question %s: %w", response.QuestionID, err)
	}
	return nil
}

func (r *assessmentRepository) SupersedeResponse(response *models.Response) error {
	response.AnsweredAt = time.Now()
	result := r.db.Model(&models.Response{}).
		Where("assessment_id = ? AND question_id = ?", response.AssessmentID, response.QuestionID).
		Updates(map[string]interface{}{
			"value":       response.Value,
			"numeric":     response.Numeric,
			"selections":  response.Selections,
			"free_text":   response.FreeText,
			"answered_at": response.AnsweredAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to supersede response for question %s: %w", response.QuestionID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("supersede failed: no response recorded for question %s", response.QuestionID)
	}
	return nil
}

func (r *assessmentRepository) GetResponses(assessmentID string) ([]models.Response, error) {
	var responses []models.Response
	if err := r.db.Where("assessment_id = ?", assessmentID).Order("answered_at ASC, id ASC").Find(&responses).Error; err != nil {
		return nil, fmt.Errorf("failed to load responses for assessment %s: %w", assessmentID, err)
	}
	return responses, nil
}

// isUniqueViolation matches SQLite's unique-constraint error text; gorm
// does not normalize it across drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}
