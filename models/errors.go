package models

// ServiceError is a client-facing engine error carrying a coarse,
// transport-agnostic code. Internal failures (AI capability, persistence
// conflicts under retry) are never wrapped into one of these; they are
// recovered or logged instead.
type ServiceError struct {
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

var (
	ErrAssessmentNotFound = &ServiceError{Code: "ASSESSMENT_NOT_FOUND", Message: "assessment not found"}
	ErrQuestionNotFound   = &ServiceError{Code: "QUESTION_NOT_FOUND", Message: "question not found"}
	ErrDuplicateResponse  = &ServiceError{Code: "DUPLICATE_RESPONSE", Message: "a response for this question was already recorded"}
	ErrInvalidResponse    = &ServiceError{Code: "INVALID_RESPONSE", Message: "response value is not valid for this question"}

	// ErrAssessmentActive is returned by Start under the reject policy when
	// the client already has an in-progress or paused assessment.
	ErrAssessmentActive = &ServiceError{Code: "ASSESSMENT_ACTIVE", Message: "client already has an active assessment"}

	ErrCannotPause  = &ServiceError{Code: "CANNOT_PAUSE", Message: "assessment cannot be paused from its current state"}
	ErrCannotResume = &ServiceError{Code: "CANNOT_RESUME", Message: "assessment cannot be resumed from its current state"}

	// ErrAssessmentCompleted rejects any mutation of a completed assessment.
	ErrAssessmentCompleted = &ServiceError{Code: "ASSESSMENT_COMPLETED", Message: "assessment is completed and immutable"}

	// ErrAssessmentPaused rejects answering or advancing a paused
	// assessment before an explicit resume.
	ErrAssessmentPaused = &ServiceError{Code: "ASSESSMENT_PAUSED", Message: "assessment is paused; resume it first"}
)
