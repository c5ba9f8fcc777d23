package communication

import (
	"fmt"
	"time"
)

// CommandKind discriminates the closed set of mutation commands.
type CommandKind string

const (
	CommandCreateMessage             CommandKind = "createMessage"
	CommandRemoveMessage             CommandKind = "removeMessage"
	CommandCreatePatch               CommandKind = "createPatch"
	CommandCreateReaction            CommandKind = "createReaction"
	CommandRemoveReaction            CommandKind = "removeReaction"
	CommandCreateAttachment          CommandKind = "createAttachment"
	CommandRemoveAttachment          CommandKind = "removeAttachment"
	CommandCreateThread              CommandKind = "createThread"
	CommandAddCollaborators          CommandKind = "addCollaborators"
	CommandRemoveCollaborators       CommandKind = "removeCollaborators"
	CommandCreateNotification        CommandKind = "createNotification"
	CommandRemoveNotification        CommandKind = "removeNotification"
	CommandUpdateNotification        CommandKind = "updateNotification"
	CommandCreateNotificationContext CommandKind = "createNotificationContext"
	CommandRemoveNotificationContext CommandKind = "removeNotificationContext"
	CommandUpdateNotificationContext CommandKind = "updateNotificationContext"
	CommandCreateMessagesGroup       CommandKind = "createMessagesGroup"
	CommandRemoveMessagesGroup       CommandKind = "removeMessagesGroup"
)

// CommandKinds lists every supported command kind.
var CommandKinds = []CommandKind{
	CommandCreateMessage, CommandRemoveMessage, CommandCreatePatch,
	CommandCreateReaction, CommandRemoveReaction, CommandCreateAttachment,
	CommandRemoveAttachment, CommandCreateThread, CommandAddCollaborators,
	CommandRemoveCollaborators, CommandCreateNotification, CommandRemoveNotification,
	CommandUpdateNotification, CommandCreateNotificationContext,
	CommandRemoveNotificationContext, CommandUpdateNotificationContext,
	CommandCreateMessagesGroup, CommandRemoveMessagesGroup,
}

// Command is a client request to mutate state. The set is sealed.
type Command interface {
	Kind() CommandKind
	Validate() error
	isCommand()
}

// ContextUpdate carries the optional timestamps of a context update.
type ContextUpdate struct {
	LastView   *time.Time `json:"lastView,omitempty"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
	LastNotify *time.Time `json:"lastNotify,omitempty"`
}

// IsEmpty reports whether the update sets nothing.
func (u ContextUpdate) IsEmpty() bool {
	return u.LastView == nil && u.LastUpdate == nil && u.LastNotify == nil
}

// NotificationUpdate carries the optional flags of a notification update.
type NotificationUpdate struct {
	Read     *bool `json:"read,omitempty"`
	Archived *bool `json:"archived,omitempty"`
}

func (u NotificationUpdate) IsEmpty() bool {
	return u.Read == nil && u.Archived == nil
}

type CreateMessage struct {
	Card       CardID   `json:"card"`
	CardType   CardType `json:"cardType"`
	Content    string   `json:"content"`
	Creator    SocialID `json:"creator"`
	ExternalID string   `json:"externalId,omitempty"`
}

type RemoveMessage struct {
	Card    CardID    `json:"card"`
	Message MessageID `json:"message"`
}

type CreatePatch struct {
	Card    CardID    `json:"card"`
	Message MessageID `json:"message"`
	Content string    `json:"content"`
	Creator SocialID  `json:"creator"`
}

type CreateReaction struct {
	Card     CardID    `json:"card"`
	Message  MessageID `json:"message"`
	Reaction string    `json:"reaction"`
	Creator  SocialID  `json:"creator"`
}

type RemoveReaction struct {
	Card     CardID    `json:"card"`
	Message  MessageID `json:"message"`
	Reaction string    `json:"reaction"`
	Creator  SocialID  `json:"creator"`
}

type CreateAttachment struct {
	Card    CardID    `json:"card"`
	Message MessageID `json:"message"`
	Type    string    `json:"type"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Creator SocialID  `json:"creator"`
}

type RemoveAttachment struct {
	Card       CardID       `json:"card"`
	Message    MessageID    `json:"message"`
	Attachment AttachmentID `json:"attachment"`
}

type CreateThread struct {
	Card    CardID    `json:"card"`
	Message MessageID `json:"message"`
	Thread  CardID    `json:"thread"`
}

type AddCollaborators struct {
	Card          CardID      `json:"card"`
	CardType      CardType    `json:"cardType"`
	Collaborators []AccountID `json:"collaborators"`
}

type RemoveCollaborators struct {
	Card          CardID      `json:"card"`
	Collaborators []AccountID `json:"collaborators"`
}

type CreateNotification struct {
	Context ContextID        `json:"context"`
	Message MessageID        `json:"message"`
	Type    NotificationType `json:"type,omitempty"`
	BlobID  BlobID           `json:"blobId,omitempty"`
	Content string           `json:"content,omitempty"`
	Creator SocialID         `json:"creator,omitempty"`
}

type RemoveNotification struct {
	Context      ContextID      `json:"context"`
	Notification NotificationID `json:"notification"`
}

// UpdateNotification flips flags on one notification, or on every
// notification of the context when Notification is empty.
type UpdateNotification struct {
	Context      ContextID          `json:"context"`
	Notification NotificationID     `json:"notification,omitempty"`
	Update       NotificationUpdate `json:"update"`
}

type CreateNotificationContext struct {
	Card       CardID     `json:"card"`
	LastView   *time.Time `json:"lastView,omitempty"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
}

type RemoveNotificationContext struct {
	Context ContextID `json:"context"`
}

type UpdateNotificationContext struct {
	Context ContextID     `json:"context"`
	Update  ContextUpdate `json:"update"`
}

type CreateMessagesGroup struct {
	Group MessagesGroup `json:"group"`
}

type RemoveMessagesGroup struct {
	Card   CardID `json:"card"`
	BlobID BlobID `json:"blobId"`
}

func (CreateMessage) Kind() CommandKind             { return CommandCreateMessage }
func (RemoveMessage) Kind() CommandKind             { return CommandRemoveMessage }
func (CreatePatch) Kind() CommandKind               { return CommandCreatePatch }
func (CreateReaction) Kind() CommandKind            { return CommandCreateReaction }
func (RemoveReaction) Kind() CommandKind            { return CommandRemoveReaction }
func (CreateAttachment) Kind() CommandKind          { return CommandCreateAttachment }
func (RemoveAttachment) Kind() CommandKind          { return CommandRemoveAttachment }
func (CreateThread) Kind() CommandKind              { return CommandCreateThread }
func (AddCollaborators) Kind() CommandKind          { return CommandAddCollaborators }
func (RemoveCollaborators) Kind() CommandKind       { return CommandRemoveCollaborators }
func (CreateNotification) Kind() CommandKind        { return CommandCreateNotification }
func (RemoveNotification) Kind() CommandKind        { return CommandRemoveNotification }
func (UpdateNotification) Kind() CommandKind        { return CommandUpdateNotification }
func (CreateNotificationContext) Kind() CommandKind { return CommandCreateNotificationContext }
func (RemoveNotificationContext) Kind() CommandKind { return CommandRemoveNotificationContext }
func (UpdateNotificationContext) Kind() CommandKind { return CommandUpdateNotificationContext }
func (CreateMessagesGroup) Kind() CommandKind       { return CommandCreateMessagesGroup }
func (RemoveMessagesGroup) Kind() CommandKind       { return CommandRemoveMessagesGroup }

func (CreateMessage) isCommand()             {}
func (RemoveMessage) isCommand()             {}
func (CreatePatch) isCommand()               {}
func (CreateReaction) isCommand()            {}
func (RemoveReaction) isCommand()            {}
func (CreateAttachment) isCommand()          {}
func (RemoveAttachment) isCommand()          {}
func (CreateThread) isCommand()              {}
func (AddCollaborators) isCommand()          {}
func (RemoveCollaborators) isCommand()       {}
func (CreateNotification) isCommand()        {}
func (RemoveNotification) isCommand()        {}
func (UpdateNotification) isCommand()        {}
func (CreateNotificationContext) isCommand() {}
func (RemoveNotificationContext) isCommand() {}
func (UpdateNotificationContext) isCommand() {}
func (CreateMessagesGroup) isCommand()       {}
func (RemoveMessagesGroup) isCommand()       {}

func invalid(kind CommandKind, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrInvalidCommand, kind, field)
}

func (c CreateMessage) Validate() error {
	switch {
	case c.Card == "":
		return invalid(c.Kind(), "card")
	case c.Creator == "":
		return invalid(c.Kind(), "creator")
	}
	return nil
}

func (c RemoveMessage) Validate() error {
	switch {
	case c.Card == "":
		return invalid(c.Kind(), "card")
	case c.Message == "":
		return invalid(c.Kind(), "message")
	}
	return nil
}

func (c CreatePatch) Validate() error {
	switch {
	case c.Card == "":
		return invalid(c.Kind(), "card")
	case c.Message == "":
		return invalid(c.Kind(), "message")
	case c.Creator == "":
		return invalid(c.Kind(), "creator")
	}
	return nil
}

func (c CreateReaction) Validate() error {
	switch {
	case c.Card == "":
		return invalid(c.Kind(), "card")
	case c.Message == "":
		return invalid(c.Kind(), "message")
	case c.Reaction == "":
		return invalid(c.Kind(), "reaction")
	case c.Creator == "":
		return invalid(c.Kind(), "creator")
	}
	return nil
}

func (c RemoveReaction) Validate() error {
	switch {
	case c.Card == "":
		return invalid(c.Kind(), "card")
	case c.Message == "":
		return invalid(c.Kind(), "message")
	case c.Reaction == "":
		return invalid(c.Kind(), "reaction")
	case c.Creator == "":
		return invalid(c.Kind(), "creator")
	}
	return nil
}

func (c CreateAttachment) Validate() error {
	switch {
	case c.Card == "":
		return invalid(c.Kind(), "card")
	case c.Message == "":
		return invalid(c.Kind(), "message")
	case c.Creator == "":
		return invalid(c.Kind(), "creator")
	}
	return nil
}

func (c RemoveAttachment) Validate() error {
	switch {
	case c.Card == "":
		return invalid(c.Kind(), "card")
	case c.Message == "":
		return invalid(c.Kind(), "message")
	case c.Attachment == "":
		return invalid(c.Kind(), "attachment")
	}
	return nil
}

func (c CreateThread) Validate() error {
	switch {
	case c.Card == "":
		return invalid(c.Kind(), "card")
	case c.Message == "":
		return invalid(c.Kind(), "message")
	case c.Thread == "":
		return invalid(c.Kind(), "thread")
	}
	return nil
}

func (c AddCollaborators) Validate() error {
	switch {
	case c.Card == "":
		return invalid(c.Kind(), "card")
	case len(c.Collaborators) == 0:
		return invalid(c.Kind(), "collaborators")
	}
	return nil
}

func (c RemoveCollaborators) Validate() error {
	switch {
	case c.Card == "":
		return invalid(c.Kind(), "card")
	case len(c.Collaborators) == 0:
		return invalid(c.Kind(), "collaborators")
	}
	return nil
}

func (c CreateNotification) Validate() error {
	switch {
	case c.Context == "":
		return invalid(c.Kind(), "context")
	case c.Message == "":
		return invalid(c.Kind(), "message")
	}
	return nil
}

func (c RemoveNotification) Validate() error {
	switch {
	case c.Context == "":
		return invalid(c.Kind(), "context")
	case c.Notification == "":
		return invalid(c.Kind(), "notification")
	}
	return nil
}

func (c UpdateNotification) Validate() error {
	switch {
	case c.Context == "":
		return invalid(c.Kind(), "context")
	case c.Update.IsEmpty():
		return invalid(c.Kind(), "update")
	}
	return nil
}

func (c CreateNotificationContext) Validate() error {
	if c.Card == "" {
		return invalid(c.Kind(), "card")
	}
	return nil
}

func (c RemoveNotificationContext) Validate() error {
	if c.Context == "" {
		return invalid(c.Kind(), "context")
	}
	return nil
}

func (c UpdateNotificationContext) Validate() error {
	switch {
	case c.Context == "":
		return invalid(c.Kind(), "context")
	case c.Update.IsEmpty():
		return invalid(c.Kind(), "update")
	}
	return nil
}

func (c CreateMessagesGroup) Validate() error {
	switch {
	case c.Group.Card == "":
		return invalid(c.Kind(), "card")
	case c.Group.BlobID == "":
		return invalid(c.Kind(), "blobId")
	case c.Group.ToDate.Before(c.Group.FromDate):
		return invalid(c.Kind(), "fromDate before toDate")
	}
	return nil
}

func (c RemoveMessagesGroup) Validate() error {
	switch {
	case c.Card == "":
		return invalid(c.Kind(), "card")
	case c.BlobID == "":
		return invalid(c.Kind(), "blobId")
	}
	return nil
}
