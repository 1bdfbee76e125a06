package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden        ErrCode = "FORBIDDEN"
	ErrPermissionDenied ErrCode = "PERMISSION_DENIED"
	ErrAdminAccessOnly  ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrProblemNotFound  ErrCode = "PROBLEM_NOT_FOUND"
	ErrStageNotFound    ErrCode = "STAGE_NOT_FOUND"
	ErrContestNotFound  ErrCode = "CONTEST_NOT_FOUND"
	ErrSubmissionAbsent ErrCode = "SUBMISSION_NOT_FOUND"
	ErrConflict         ErrCode = "CONFLICT"

	// ─── Judging ───────────────────────────────────────────────────────
	ErrMissingTestbench ErrCode = "MISSING_TESTBENCH"
	ErrJudgeBusy        ErrCode = "JUDGE_BUSY"
	ErrNotJudged        ErrCode = "NOT_JUDGED"
	ErrAlreadyReviewed  ErrCode = "ALREADY_REVIEWED"

	// ─── Contests ──────────────────────────────────────────────────────
	ErrAlreadyRegistered ErrCode = "ALREADY_REGISTERED"
	ErrNotRegistered     ErrCode = "NOT_REGISTERED"
	ErrContestEnded      ErrCode = "CONTEST_ENDED"
	ErrDuplicateProblem  ErrCode = "DUPLICATE_PROBLEM"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You are not allowed to access this resource."
	case ErrPermissionDenied:
		return "Permission denied."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrProblemNotFound:
		return "Problem not found."
	case ErrStageNotFound:
		return "Stage not found."
	case ErrContestNotFound:
		return "Contest not found."
	case ErrSubmissionAbsent:
		return "Submission not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Judging ───────────────────────────────────────────────────────
	case ErrMissingTestbench:
		return "No testbench is available for this problem."
	case ErrJudgeBusy:
		return "The judge is busy. Please try again shortly."
	case ErrNotJudged:
		return "The submission has not been judged yet."
	case ErrAlreadyReviewed:
		return "The submission has already been reviewed."

	// ─── Contests ──────────────────────────────────────────────────────
	case ErrAlreadyRegistered:
		return "You are already registered for this contest."
	case ErrNotRegistered:
		return "You are not registered for this contest."
	case ErrContestEnded:
		return "The contest has ended."
	case ErrDuplicateProblem:
		return "A problem appears more than once in the contest."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
