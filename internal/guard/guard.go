// Package guard declares the validation gate contract the executor consults
// before and after a step runs. The concrete guard (path existence probes,
// syntax and compliance checks on generated code) is an external
// collaborator; the engine depends only on this interface.
package guard

import (
	"context"

	"github.com/harrison/foreman/internal/models"
)

// Gate validates step targets and generated content.
type Gate interface {
	// ValidateFilePath checks that path exists (mustExist=true) or does not
	// yet exist (mustExist=false), as appropriate for the step's action.
	ValidateFilePath(ctx context.Context, path string, mustExist bool) *models.ValidationResult

	// ValidateCode checks written content for syntax validity and compliance
	// with the active constraints.
	ValidateCode(ctx context.Context, content, language, path string) *models.ValidationResult
}
