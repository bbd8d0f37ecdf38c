package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
)

// FollowUpMessage steers an off-topic message back to the data.
func FollowUpMessage(assistantName string) string {
	return fmt.Sprintf("Hey, I'm %s the analyst. I can only assist with questions about your data. How can I help you query or analyze your database?", assistantName)
}

// ModificationMessage declines a request to change data.
func ModificationMessage(assistantName string) string {
	return fmt.Sprintf("Hey, I'm %s the analyst. I can help you explore and analyze your data, but I can't make any changes to the database (like insert, update, or delete). How can I help you query your data instead?", assistantName)
}

// NewFollowUpNode answers off-topic messages.
func NewFollowUpNode(assistantName string) NodeFunc {
	return fixedReply(FollowUpMessage(assistantName))
}

// NewModificationGuardNode explains that data access is read-only.
func NewModificationGuardNode(assistantName string) NodeFunc {
	return fixedReply(ModificationMessage(assistantName))
}

func fixedReply(text string) NodeFunc {
	return func(ctx context.Context, s *model.ConversationState) (*model.StateDelta, error) {
		return &model.StateDelta{Messages: []*schema.Message{schema.AssistantMessage(text, nil)}}, nil
	}
}
