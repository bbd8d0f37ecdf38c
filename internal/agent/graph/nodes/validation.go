package nodes

import (
	"context"
	"errors"
	"strings"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

// NewValidationNode asks the validator about the generated SQL. Tool problems
// become an invalid verdict so the retry loop, not the caller, handles them.
func NewValidationNode(toolbox model.Toolbox) NodeFunc {
	return func(ctx context.Context, s *model.ConversationState) (*model.StateDelta, error) {
		verdict := validate(ctx, toolbox, s.GeneratedSQL)
		if !verdict.Valid {
			logx.Thread(s.ThreadID, s.UserID).Info().
				Str("kind", string(validationKind(verdict))).
				Str("error", verdict.Error).
				Msg("sql rejected")
		}
		return &model.StateDelta{Validation: &verdict}, nil
	}
}

func validate(ctx context.Context, toolbox model.Toolbox, sql string) model.ValidationResult {
	if strings.TrimSpace(sql) == "" {
		return model.ValidationResult{Valid: false, Error: ValidationNoSQL}
	}
	if toolbox == nil {
		return model.ValidationResult{Valid: false, Error: ValidationUnavailable}
	}
	res, err := toolbox.ValidateSQL(ctx, sql)
	switch {
	case errors.Is(err, errx.ErrToolUnavailable):
		return model.ValidationResult{Valid: false, Error: ValidationUnavailable}
	case err != nil:
		return model.ValidationResult{Valid: false, Error: "validation tool error: " + err.Error()}
	}
	return res
}

func validationKind(v model.ValidationResult) errx.Kind {
	if v.Error == ValidationUnavailable {
		return errx.KindValidationToolUnavailable
	}
	return errx.KindValidationFailed
}
