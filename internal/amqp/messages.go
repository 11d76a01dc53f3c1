package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operations carried by ProjectChangedMessage.
const (
	OpProjectCreated   = "project.created"
	OpProjectRenamed   = "project.renamed"
	OpProjectDeleted   = "project.deleted"
	OpProjectRestored  = "project.restored"
	OpPaygroupAdded    = "paygroup.added"
	OpPaygroupRenamed  = "paygroup.renamed"
	OpPaygroupDeleted  = "paygroup.deleted"
	OpPaymentAdded     = "payment.added"
	OpPaymentUpdated   = "payment.updated"
	OpPaymentDeleted   = "payment.deleted"
	OpAttachmentAdded  = "attachment.added"
	OpAttachmentRemove = "attachment.deleted"
)

// ProjectChangedMessage tells consumers that a project's data changed.
// It only carries the id; consumers read the current state from storage.
type ProjectChangedMessage struct {
	ProjectID int       `json:"project_id"`
	Operation string    `json:"operation"`
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewProjectChangedMessage(projectID int, operation string) *ProjectChangedMessage {
	return &ProjectChangedMessage{
		ProjectID: projectID,
		Operation: operation,
		MessageID: uuid.NewString(),
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ProjectChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ProjectChangedMessageFromJSON decodes a message and rejects ones without a project.
func ProjectChangedMessageFromJSON(data []byte) (*ProjectChangedMessage, error) {
	var msg ProjectChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ProjectID <= 0 {
		return nil, fmt.Errorf("invalid project id %d", msg.ProjectID)
	}
	return &msg, nil
}
