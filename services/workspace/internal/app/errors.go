package app

import (
	"errors"
	"fmt"

	"github.com/JackYouk/esol/pkg/ai"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	ErrNotFound = errors.New("not found")
	// ErrWorkspaceNotFound also covers workspaces the caller may not see.
	ErrWorkspaceNotFound = fmt.Errorf("workspace %w", ErrNotFound)

	ErrValidation      = errors.New("validation error")
	ErrNoToolSelected  = fmt.Errorf("%w: no tool selected", ErrValidation)
	ErrUnsupportedTool = fmt.Errorf("%w: unsupported tool", ErrValidation)
	ErrInvalidTitle    = fmt.Errorf("%w: title must be at least %d characters", ErrValidation, minTitleLength)
	ErrInvalidModel    = fmt.Errorf("%w: unsupported ai model", ErrValidation)
	ErrNotPDF          = fmt.Errorf("%w: document must be a PDF", ErrValidation)
	ErrFileTooLarge    = fmt.Errorf("%w: document too large", ErrValidation)
	ErrMessageRequired = fmt.Errorf("%w: message text required", ErrValidation)

	ErrStorage    = errors.New("storage error")
	ErrExtraction = errors.New("extraction error")
	// ErrInvocation is shared with pkg/ai so tutor failures match directly.
	ErrInvocation           = ai.ErrInvocation
	ErrToolInvocationFailed = errors.New("tool invocation failed")
	ErrPersistence          = errors.New("persistence error")
	ErrSaveFailed           = errors.New("save error")
)
