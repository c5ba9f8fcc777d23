package communication

import "time"

// EventKind discriminates the closed set of events.
type EventKind string

const (
	EventMessageCreated             EventKind = "messageCreated"
	EventMessageRemoved             EventKind = "messageRemoved"
	EventPatchCreated               EventKind = "patchCreated"
	EventReactionCreated            EventKind = "reactionCreated"
	EventReactionRemoved            EventKind = "reactionRemoved"
	EventAttachmentCreated          EventKind = "attachmentCreated"
	EventAttachmentRemoved          EventKind = "attachmentRemoved"
	EventThreadCreated              EventKind = "threadCreated"
	EventThreadUpdated              EventKind = "threadUpdated"
	EventCollaboratorsAdded         EventKind = "collaboratorsAdded"
	EventCollaboratorsRemoved       EventKind = "collaboratorsRemoved"
	EventNotificationCreated        EventKind = "notificationCreated"
	EventNotificationRemoved        EventKind = "notificationRemoved"
	EventNotificationUpdated        EventKind = "notificationUpdated"
	EventNotificationContextCreated EventKind = "notificationContextCreated"
	EventNotificationContextRemoved EventKind = "notificationContextRemoved"
	EventNotificationContextUpdated EventKind = "notificationContextUpdated"
	EventMessagesGroupCreated       EventKind = "messagesGroupCreated"
	EventMessagesGroupRemoved       EventKind = "messagesGroupRemoved"
)

var EventKinds = []EventKind{
	EventMessageCreated, EventMessageRemoved, EventPatchCreated,
	EventReactionCreated, EventReactionRemoved, EventAttachmentCreated,
	EventAttachmentRemoved, EventThreadCreated, EventThreadUpdated,
	EventCollaboratorsAdded, EventCollaboratorsRemoved, EventNotificationCreated,
	EventNotificationRemoved, EventNotificationUpdated,
	EventNotificationContextCreated, EventNotificationContextRemoved,
	EventNotificationContextUpdated, EventMessagesGroupCreated,
	EventMessagesGroupRemoved,
}

// Event is the persisted outcome of a command or trigger. The set is sealed.
type Event interface {
	Kind() EventKind
	isEvent()
}

// EventResult is returned to the caller of a command.
type EventResult struct {
	ID string `json:"id,omitempty"`
}

type MessageCreated struct {
	Message  Message  `json:"message"`
	CardType CardType `json:"cardType"`
}

type MessageRemoved struct {
	Card    CardID    `json:"card"`
	Message MessageID `json:"message"`
}

type PatchCreated struct {
	Card  CardID `json:"card"`
	Patch Patch  `json:"patch"`
}

type ReactionCreated struct {
	Card     CardID   `json:"card"`
	Reaction Reaction `json:"reaction"`
}

type ReactionRemoved struct {
	Card     CardID    `json:"card"`
	Message  MessageID `json:"message"`
	Reaction string    `json:"reaction"`
	Creator  SocialID  `json:"creator"`
}

type AttachmentCreated struct {
	Card       CardID     `json:"card"`
	Attachment Attachment `json:"attachment"`
}

type AttachmentRemoved struct {
	Card       CardID       `json:"card"`
	Message    MessageID    `json:"message"`
	Attachment AttachmentID `json:"attachment"`
}

type ThreadCreated struct {
	Thread Thread `json:"thread"`
}

type ThreadUpdated struct {
	Thread Thread `json:"thread"`
}

type CollaboratorsAdded struct {
	Card          CardID      `json:"card"`
	CardType      CardType    `json:"cardType"`
	Collaborators []AccountID `json:"collaborators"`
	Date          time.Time   `json:"date"`
}

type CollaboratorsRemoved struct {
	Card          CardID      `json:"card"`
	Collaborators []AccountID `json:"collaborators"`
}

type NotificationCreated struct {
	Account      AccountID    `json:"account"`
	Card         CardID       `json:"card"`
	Notification Notification `json:"notification"`
}

type NotificationRemoved struct {
	Account      AccountID      `json:"account"`
	Context      ContextID      `json:"context"`
	Notification NotificationID `json:"notification"`
}

type NotificationUpdated struct {
	Account      AccountID          `json:"account"`
	Context      ContextID          `json:"context"`
	Notification NotificationID     `json:"notification,omitempty"`
	Update       NotificationUpdate `json:"update"`
}

type NotificationContextCreated struct {
	Context NotificationContext `json:"context"`
}

type NotificationContextRemoved struct {
	Account AccountID `json:"account"`
	Context ContextID `json:"context"`
	Card    CardID    `json:"card,omitempty"`
}

type NotificationContextUpdated struct {
	Account AccountID     `json:"account"`
	Context ContextID     `json:"context"`
	Card    CardID        `json:"card,omitempty"`
	Update  ContextUpdate `json:"update"`
}

type MessagesGroupCreated struct {
	Group MessagesGroup `json:"group"`
}

type MessagesGroupRemoved struct {
	Card   CardID `json:"card"`
	BlobID BlobID `json:"blobId"`
}

func (MessageCreated) Kind() EventKind             { return EventMessageCreated }
func (MessageRemoved) Kind() EventKind             { return EventMessageRemoved }
func (PatchCreated) Kind() EventKind               { return EventPatchCreated }
func (ReactionCreated) Kind() EventKind            { return EventReactionCreated }
func (ReactionRemoved) Kind() EventKind            { return EventReactionRemoved }
func (AttachmentCreated) Kind() EventKind          { return EventAttachmentCreated }
func (AttachmentRemoved) Kind() EventKind          { return EventAttachmentRemoved }
func (ThreadCreated) Kind() EventKind              { return EventThreadCreated }
func (ThreadUpdated) Kind() EventKind              { return EventThreadUpdated }
func (CollaboratorsAdded) Kind() EventKind         { return EventCollaboratorsAdded }
func (CollaboratorsRemoved) Kind() EventKind       { return EventCollaboratorsRemoved }
func (NotificationCreated) Kind() EventKind        { return EventNotificationCreated }
func (NotificationRemoved) Kind() EventKind        { return EventNotificationRemoved }
func (NotificationUpdated) Kind() EventKind        { return EventNotificationUpdated }
func (NotificationContextCreated) Kind() EventKind { return EventNotificationContextCreated }
func (NotificationContextRemoved) Kind() EventKind { return EventNotificationContextRemoved }
func (NotificationContextUpdated) Kind() EventKind { return EventNotificationContextUpdated }
func (MessagesGroupCreated) Kind() EventKind       { return EventMessagesGroupCreated }
func (MessagesGroupRemoved) Kind() EventKind       { return EventMessagesGroupRemoved }

func (MessageCreated) isEvent()             {}
func (MessageRemoved) isEvent()             {}
func (PatchCreated) isEvent()               {}
func (ReactionCreated) isEvent()            {}
func (ReactionRemoved) isEvent()            {}
func (AttachmentCreated) isEvent()          {}
func (AttachmentRemoved) isEvent()          {}
func (ThreadCreated) isEvent()              {}
func (ThreadUpdated) isEvent()              {}
func (CollaboratorsAdded) isEvent()         {}
func (CollaboratorsRemoved) isEvent()       {}
func (NotificationCreated) isEvent()        {}
func (NotificationRemoved) isEvent()        {}
func (NotificationUpdated) isEvent()        {}
func (NotificationContextCreated) isEvent() {}
func (NotificationContextRemoved) isEvent() {}
func (NotificationContextUpdated) isEvent() {}
func (MessagesGroupCreated) isEvent()       {}
func (MessagesGroupRemoved) isEvent()       {}
