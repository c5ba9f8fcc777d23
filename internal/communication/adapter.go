package communication

import (
	"context"
	"time"
)

// DbAdapter is the workspace-scoped storage contract used by the processor,
// the triggers and the read paths of the pipeline.
type DbAdapter interface {
	Workspace() WorkspaceID

	CreateMessage(ctx context.Context, message Message) error
	RemoveMessages(ctx context.Context, card CardID, ids []MessageID, creators []SocialID) ([]MessageID, error)
	FindMessages(ctx context.Context, params FindMessagesParams) ([]Message, error)

	CreatePatch(ctx context.Context, patch Patch) error

	CreateReaction(ctx context.Context, reaction Reaction) error
	RemoveReaction(ctx context.Context, card CardID, message MessageID, reaction string, creator SocialID) (int64, error)

	CreateAttachment(ctx context.Context, attachment Attachment) error
	RemoveAttachment(ctx context.Context, card CardID, message MessageID, id AttachmentID) (int64, error)

	CreateThread(ctx context.Context, thread Thread) error
	UpdateThread(ctx context.Context, thread CardID, delta int, lastReply *time.Time) (*Thread, error)
	FindThread(ctx context.Context, params FindThreadParams) (*Thread, error)

	CreateMessagesGroup(ctx context.Context, group MessagesGroup) error
	RemoveMessagesGroup(ctx context.Context, card CardID, blob BlobID) (int64, error)
	FindMessagesGroups(ctx context.Context, params FindMessagesGroupsParams) ([]MessagesGroup, error)

	AddCollaborators(ctx context.Context, card CardID, cardType CardType, accounts []AccountID, date time.Time) ([]AccountID, error)
	RemoveCollaborators(ctx context.Context, card CardID, accounts []AccountID) (int64, error)
	FindCollaborators(ctx context.Context, params FindCollaboratorsParams) ([]Collaborator, error)

	CreateLabels(ctx context.Context, labels []Label) error
	RemoveLabels(ctx context.Context, label LabelID, card CardID, accounts []AccountID) (int64, error)
	FindLabels(ctx context.Context, params FindLabelsParams) ([]Label, error)

	CreateContext(ctx context.Context, notificationContext NotificationContext) error
	UpdateContext(ctx context.Context, query ContextQuery, update ContextUpdate) (*NotificationContext, error)
	RemoveContext(ctx context.Context, query ContextQuery) (*NotificationContext, error)
	FindContexts(ctx context.Context, params FindNotificationContextParams) ([]NotificationContext, error)

	// CreateNotification stores the notification and returns its context;
	// ErrNotFound when the context is not in the workspace.
	CreateNotification(ctx context.Context, notification Notification) (NotificationContext, error)
	UpdateNotifications(ctx context.Context, query NotificationQuery, update NotificationUpdate) (int64, error)
	RemoveNotifications(ctx context.Context, query NotificationQuery) (int64, error)
	FindNotifications(ctx context.Context, params FindNotificationsParams) ([]Notification, error)
	CountNotifications(ctx context.Context, params FindNotificationsParams) (int, error)

	AddPeer(ctx context.Context, peer Peer) error
	RemovePeer(ctx context.Context, card CardID, kind, value string) (int64, error)
	FindPeers(ctx context.Context, params FindPeersParams) ([]Peer, error)
}
