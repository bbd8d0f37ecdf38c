package graph

import (
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
)

// limits are the loop ceilings consulted by nextStage.
type limits struct {
	maxClarifications int
	maxRetries        int
}

// nextStage resolves the stage that follows from once its delta has been applied to s.
func nextStage(from model.Stage, s *model.ConversationState, l limits) model.Stage {
	switch from {
	case model.StageTriage:
		switch s.Decision {
		case model.DecisionMainLogic:
			return model.StageSQLGeneration
		case model.DecisionModification:
			return model.StageModificationGuard
		case model.DecisionFollowUp:
			return model.StageFollowUp
		default:
			// need_clarification and anything unrecognised
			return model.StageClarification
		}

	case model.StageClarification:
		if s.Decision == model.DecisionEndConversation || s.ClarificationCount > l.maxClarifications {
			return model.StageTerminal
		}
		return model.StageTriage

	case model.StageSQLGeneration:
		return model.StageValidation

	case model.StageValidation:
		if s.Validation != nil && s.Validation.Valid {
			return model.StageExecution
		}
		return model.StageRetryGeneration

	case model.StageRetryGeneration:
		if s.Decision == model.DecisionEndConversation || s.RetryCount > l.maxRetries {
			return model.StageTerminal
		}
		return model.StageValidation

	case model.StageExecution, model.StageFollowUp, model.StageModificationGuard, model.StageTerminal:
		return model.StageTerminal

	default:
		return model.StageTerminal
	}
}

// maxSteps is the longest path through one turn: triage, generation, and every
// validation/retry pair up to the retry ceiling, plus headroom.
func maxSteps(l limits) int {
	return 2 + 2*(l.maxRetries+1) + 2
}
