package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"intake/config"
	"intake/models"
	"intake/registry"
	"intake/repository"
)

// ResponseInput is a client-submitted answer before canonicalization.
type ResponseInput struct {
	Value      string   `json:"value"`
	Number     *float64 `json:"number,omitempty"`
	Selections []string `json:"selections,omitempty"`
	FreeText   string   `json:"free_text,omitempty"`
}

// SubmitResult is returned after a recorded answer.
type SubmitResult struct {
	Assessment *models.Assessment
	Complete   bool
}

// AssessmentService owns the session lifecycle: the start/pause/resume/
// complete state machine and the public operations built on the engine
// components.
type AssessmentService interface {
	Start(clientID string, sex models.Sex, birthYear int) (*models.Assessment, *models.Question, error)
	NextQuestion(assessmentID string) (*models.Question, *models.Assessment, error)
	SubmitResponse(assessmentID, questionID string, input ResponseInput) (*SubmitResult, error)
	Pause(assessmentID string) (*models.Assessment, error)
	Resume(assessmentID string) (*models.Assessment, error)
	Progress(assessmentID string) (*models.ProgressReport, error)
}

type assessmentService struct {
	repo       repository.AssessmentRepository
	registry   *registry.Registry
	activation *ActivationEngine
	selector   *Selector
	tracker    *ProgressTracker
	cfg        config.AssessmentConfig
	log        *zap.Logger
}

// NewAssessmentService creates a new instance of AssessmentService.
func NewAssessmentService(
	repo repository.AssessmentRepository,
	reg *registry.Registry,
	activation *ActivationEngine,
	selector *Selector,
	tracker *ProgressTracker,
	cfg config.AssessmentConfig,
	log *zap.Logger,
) AssessmentService {
	return &assessmentService{
		repo:       repo,
		registry:   reg,
		activation: activation,
		selector:   selector,
		tracker:    tracker,
		cfg:        cfg,
		log:        log,
	}
}

// Start creates a new assessment, or handles an existing active one
// according to the configured start policy: resume returns it (resuming a
// paused session in the process), reject refuses with a conflict error.
func (s *assessmentService) Start(clientID string, sex models.Sex, birthYear int) (*models.Assessment, *models.Question, error) {
	if clientID == "" {
		return nil, nil, errors.New("client ID cannot be empty")
	}

	existing, err := s.repo.FindActiveAssessment(clientID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up active assessment: %w", err)
	}

	if existing != nil {
		if s.cfg.StartPolicy == config.StartPolicyReject {
			s.log.Info("Start rejected, client has an active assessment",
				zap.String("client_id", clientID),
				zap.String("assessment_id", existing.ID))
			return nil, nil, models.ErrAssessmentActive
		}

		if existing.Status == models.AssessmentStatusPaused {
			asked := existing.QuestionsAsked
			existing.Status = models.AssessmentStatusInProgress
			existing.PausedAt = nil
			existing.LastActiveAt = time.Now()
			if err := s.repo.UpdateAssessment(existing, asked); err != nil {
				return nil, nil, fmt.Errorf("failed to resume paused assessment %s: %w", existing.ID, err)
			}
		}
		s.log.Info("Returning existing active assessment",
			zap.String("client_id", clientID),
			zap.String("assessment_id", existing.ID))
		question, _, err := s.nextForAssessment(existing)
		return existing, question, err
	}

	modules := s.registry.Modules()
	now := time.Now()
	assessment := &models.Assessment{
		ID:              uuid.NewString(),
		ClientID:        clientID,
		TemplateID:      s.cfg.TemplateID,
		Status:          models.AssessmentStatusInProgress,
		ClientSex:       sex,
		ClientBirthYear: birthYear,
		CurrentModule:   modules[0].Name,
		StartedAt:       now,
		LastActiveAt:    now,
		ModuleState:     make(map[string]*models.ModuleTally),
	}
	if err := s.repo.CreateAssessment(assessment); err != nil {
		return nil, nil, err
	}
	s.log.Info("Started new assessment",
		zap.String("client_id", clientID),
		zap.String("assessment_id", assessment.ID))

	question, _, err := s.nextForAssessment(assessment)
	return assessment, question, err
}

// NextQuestion computes the next question for the session, or completes it
// when the stop condition holds. A nil question with a nil error means the
// assessment is complete.
func (s *assessmentService) NextQuestion(assessmentID string) (*models.Question, *models.Assessment, error) {
	assessment, err := s.loadAssessment(assessmentID)
	if err != nil {
		return nil, nil, err
	}
	switch assessment.Status {
	case models.AssessmentStatusCompleted:
		return nil, assessment, nil
	case models.AssessmentStatusPaused:
		return nil, assessment, models.ErrAssessmentPaused
	}
	return s.nextForAssessment(assessment)
}

func (s *assessmentService) nextForAssessment(assessment *models.Assessment) (*models.Question, *models.Assessment, error) {
	question, updated, err := s.selectAndPersist(assessment)
	if errors.Is(err, repository.ErrConflict) {
		// A concurrent submission advanced the session between the read
		// and the write; reselect once on the fresh row.
		fresh, loadErr := s.loadAssessment(assessment.ID)
		if loadErr != nil {
			return nil, nil, loadErr
		}
		question, updated, err = s.selectAndPersist(fresh)
	}
	if err != nil {
		return nil, nil, s.mapConflict(err)
	}
	return question, updated, nil
}

func (s *assessmentService) selectAndPersist(assessment *models.Assessment) (*models.Question, *models.Assessment, error) {
	if assessment.Status == models.AssessmentStatusCompleted {
		return nil, assessment, nil
	}

	responses, err := s.repo.GetResponses(assessment.ID)
	if err != nil {
		return nil, nil, err
	}
	session := models.NewSession(assessment, responses)

	asked := assessment.QuestionsAsked
	question, complete := s.selector.SelectNext(session)

	if complete {
		now := time.Now()
		assessment.Status = models.AssessmentStatusCompleted
		assessment.CompletedAt = &now
		assessment.CompletionRate = 100
		assessment.LastActiveAt = now
		s.log.Info("Assessment completed",
			zap.String("assessment_id", assessment.ID),
			zap.Int("questions_asked", assessment.QuestionsAsked),
			zap.Int("questions_saved", assessment.QuestionsSaved))
	}

	// Selection may have closed modules, grown the skip set, or refreshed
	// the AI context; persist the new snapshot.
	if err := s.repo.UpdateAssessment(assessment, asked); err != nil {
		return nil, nil, fmt.Errorf("failed to persist assessment %s after selection: %w", assessment.ID, err)
	}

	if complete {
		return nil, assessment, nil
	}
	return question, assessment, nil
}

// SubmitResponse records an answer, folds it into the module tallies, and
// updates completion accounting.
func (s *assessmentService) SubmitResponse(assessmentID, questionID string, input ResponseInput) (*SubmitResult, error) {
	assessment, err := s.loadAssessment(assessmentID)
	if err != nil {
		return nil, err
	}
	switch assessment.Status {
	case models.AssessmentStatusCompleted:
		return nil, models.ErrAssessmentCompleted
	case models.AssessmentStatusPaused:
		return nil, models.ErrAssessmentPaused
	}

	question, regErr := s.registry.FindByID(questionID)
	if regErr != nil {
		return nil, models.ErrQuestionNotFound
	}

	responses, err := s.repo.GetResponses(assessmentID)
	if err != nil {
		return nil, err
	}
	session := models.NewSession(assessment, responses)

	response, err := buildResponse(assessment.ID, question, input)
	if err != nil {
		return nil, err
	}

	if session.Answered(questionID) {
		if s.cfg.DuplicatePolicy == config.DuplicatePolicyReject {
			return nil, models.ErrDuplicateResponse
		}
		// Supersede replaces the stored value in place. Tallies are
		// incremental-only and are never rewound, and questionsAsked
		// does not change, so scoring weight is not double-counted.
		if err := s.repo.SupersedeResponse(response); err != nil {
			return nil, err
		}
		asked := assessment.QuestionsAsked
		assessment.LastActiveAt = time.Now()
		if err := s.repo.UpdateAssessment(assessment, asked); err != nil {
			return nil, s.mapConflict(err)
		}
		s.log.Info("Response superseded",
			zap.String("assessment_id", assessmentID),
			zap.String("question_id", questionID))
		return &SubmitResult{Assessment: assessment}, nil
	}

	asked := assessment.QuestionsAsked

	if err := s.repo.AppendResponse(response); err != nil {
		return nil, err
	}
	session.Responses = append(session.Responses, *response)
	session = models.NewSession(assessment, session.Responses)

	s.activation.RecordAnswer(session, question, response)
	assessment.QuestionsAsked++
	assessment.LastActiveAt = time.Now()
	assessment.CompletionRate = s.tracker.CompletionRate(session)

	complete := false
	if s.cfg.MaxQuestions > 0 && assessment.QuestionsAsked >= s.cfg.MaxQuestions {
		now := time.Now()
		assessment.Status = models.AssessmentStatusCompleted
		assessment.CompletedAt = &now
		assessment.CompletionRate = 100
		complete = true
		s.log.Info("Assessment completed at question cap",
			zap.String("assessment_id", assessmentID),
			zap.Int("questions_asked", assessment.QuestionsAsked))
	}

	if err := s.repo.UpdateAssessment(assessment, asked); err != nil {
		return nil, s.mapConflict(err)
	}
	return &SubmitResult{Assessment: assessment, Complete: complete}, nil
}

// Pause transitions IN_PROGRESS to PAUSED, preserving the AI context
// verbatim for resume continuity.
func (s *assessmentService) Pause(assessmentID string) (*models.Assessment, error) {
	assessment, err := s.loadAssessment(assessmentID)
	if err != nil {
		return nil, err
	}
	if assessment.Status != models.AssessmentStatusInProgress {
		return nil, models.ErrCannotPause
	}

	asked := assessment.QuestionsAsked
	now := time.Now()
	assessment.Status = models.AssessmentStatusPaused
	assessment.PausedAt = &now
	if err := s.repo.UpdateAssessment(assessment, asked); err != nil {
		return nil, fmt.Errorf("failed to pause assessment %s: %w", assessmentID, err)
	}
	s.log.Info("Assessment paused", zap.String("assessment_id", assessmentID))
	return assessment, nil
}

// Resume transitions PAUSED back to IN_PROGRESS; the preserved AI context
// rides along on the returned assessment.
func (s *assessmentService) Resume(assessmentID string) (*models.Assessment, error) {
	assessment, err := s.loadAssessment(assessmentID)
	if err != nil {
		return nil, err
	}
	if assessment.Status != models.AssessmentStatusPaused {
		return nil, models.ErrCannotResume
	}

	asked := assessment.QuestionsAsked
	assessment.Status = models.AssessmentStatusInProgress
	assessment.PausedAt = nil
	assessment.LastActiveAt = time.Now()
	if err := s.repo.UpdateAssessment(assessment, asked); err != nil {
		return nil, fmt.Errorf("failed to resume assessment %s: %w", assessmentID, err)
	}
	s.log.Info("Assessment resumed", zap.String("assessment_id", assessmentID))
	return assessment, nil
}

// Progress returns the completion accounting for a session in any state.
func (s *assessmentService) Progress(assessmentID string) (*models.ProgressReport, error) {
	assessment, err := s.loadAssessment(assessmentID)
	if err != nil {
		return nil, err
	}
	responses, err := s.repo.GetResponses(assessmentID)
	if err != nil {
		return nil, err
	}
	return s.tracker.Report(models.NewSession(assessment, responses)), nil
}

func (s *assessmentService) loadAssessment(id string) (*models.Assessment, error) {
	assessment, err := s.repo.GetAssessmentByID(id)
	if err != nil {
		return nil, err
	}
	if assessment == nil {
		return nil, models.ErrAssessmentNotFound
	}
	return assessment, nil
}

// mapConflict turns an optimistic-update loss into the duplicate-response
// rejection the retried caller expects.
func (s *assessmentService) mapConflict(err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return models.ErrDuplicateResponse
	}
	return err
}

// buildResponse canonicalizes a submitted answer for its question type and
// denormalizes the question text and type onto the record.
func buildResponse(assessmentID string, q *models.Question, input ResponseInput) (*models.Response, error) {
	response := &models.Response{
		AssessmentID: assessmentID,
		QuestionID:   q.ID,
		QuestionText: q.Text,
		QuestionType: q.Type,
		Module:       q.Module,
		Selections:   input.Selections,
		FreeText:     input.FreeText,
		AnsweredAt:   time.Now(),
	}

	switch q.Type {
	case models.QuestionTypeYesNo:
		v := strings.ToLower(strings.TrimSpace(input.Value))
		if v != "yes" && v != "no" && v != "unsure" {
			return nil, models.ErrInvalidResponse
		}
		response.Value = v

	case models.QuestionTypeLikertScale:
		var v float64
		if input.Number != nil {
			v = *input.Number
		} else {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(input.Value), 64)
			if err != nil {
				return nil, models.ErrInvalidResponse
			}
			v = parsed
		}
		if q.Scale != nil && (v < float64(q.Scale.Min) || v > float64(q.Scale.Max)) {
			return nil, models.ErrInvalidResponse
		}
		response.Numeric = &v
		response.Value = strconv.FormatFloat(v, 'f', -1, 64)

	case models.QuestionTypeMultipleChoice:
		v := strings.TrimSpace(input.Value)
		if v == "" && len(input.Selections) > 0 {
			v = input.Selections[0]
		}
		var matched *models.QuestionOption
		for i := range q.Options {
			if q.Options[i].Value == v {
				matched = &q.Options[i]
				break
			}
		}
		if matched == nil {
			return nil, models.ErrInvalidResponse
		}
		score := matched.Score
		response.Value = matched.Value
		response.Numeric = &score

	case models.QuestionTypeFreeText:
		if response.FreeText == "" {
			response.FreeText = input.Value
		}
		response.Value = response.FreeText

	default:
		return nil, models.ErrInvalidResponse
	}

	return response, nil
}
