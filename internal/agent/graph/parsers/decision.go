package parsers

import (
	"strings"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
)

// maxLabelLen bounds how much of a classifier reply is inspected.
const maxLabelLen = 256

var decisionAliases = map[string]model.Decision{
	"main_logic":                 model.DecisionMainLogic,
	"handle_main_logic":          model.DecisionMainLogic,
	"follow_up":                  model.DecisionFollowUp,
	"handle_follow_up":           model.DecisionFollowUp,
	"need_clarification":         model.DecisionNeedClarification,
	"modification_intent":        model.DecisionModification,
	"handle_modification_intent": model.DecisionModification,
}

// ParseDecision maps a classifier reply onto one of the four triage branches.
// The second result is false when the reply was not a recognised label; the
// returned decision is then need_clarification.
func ParseDecision(raw string) (model.Decision, bool) {
	if len(raw) > maxLabelLen {
		raw = raw[:maxLabelLen]
	}
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.Trim(label, "`'\".: \t\r\n")
	label = strings.ReplaceAll(label, "-", "_")
	label = strings.ReplaceAll(label, " ", "_")

	if d, ok := decisionAliases[label]; ok {
		return d, true
	}
	return model.DecisionNeedClarification, false
}
