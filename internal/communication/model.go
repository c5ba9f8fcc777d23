package communication

import "time"

type (
	WorkspaceID    string
	CardID         string
	CardType       string
	MessageID      string
	ContextID      string
	NotificationID string
	AttachmentID   string
	AccountID      string
	SocialID       string
	BlobID         string
	LabelID        string
)

// NotificationType classifies a notification row.
type NotificationType string

const (
	NotificationTypeMessage  NotificationType = "message"
	NotificationTypeReaction NotificationType = "reaction"
)

// SubscriptionLabel marks a card the account collaborates on.
const SubscriptionLabel LabelID = "communication:label:subscribed"

// SortOrder selects ascending or descending ordering on read paths.
type SortOrder int

const (
	SortDescending SortOrder = iota
	SortAscending
)

// ConnectionInfo identifies the caller of a pipeline operation.
type ConnectionInfo struct {
	SessionID string
	Account   AccountID
	SocialIDs []SocialID
	IsSystem  bool
}

type Message struct {
	ID              MessageID    `json:"id"`
	Card            CardID       `json:"card"`
	Content         string       `json:"content"`
	Creator         SocialID     `json:"creator"`
	Created         time.Time    `json:"created"`
	Edited          *time.Time   `json:"edited,omitempty"`
	ExternalID      string       `json:"externalId,omitempty"`
	ReactionCount   int          `json:"reactionCount"`
	AttachmentCount int          `json:"attachmentCount"`
	Reactions       []Reaction   `json:"reactions,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

type Patch struct {
	Message MessageID `json:"message"`
	Card    CardID    `json:"card"`
	Content string    `json:"content"`
	Creator SocialID  `json:"creator"`
	Created time.Time `json:"created"`
}

type Reaction struct {
	Message  MessageID `json:"message"`
	Card     CardID    `json:"card"`
	Reaction string    `json:"reaction"`
	Creator  SocialID  `json:"creator"`
	Created  time.Time `json:"created"`
}

type Attachment struct {
	ID      AttachmentID `json:"id"`
	Message MessageID    `json:"message"`
	Card    CardID       `json:"card"`
	Type    string       `json:"type"`
	Name    string       `json:"name"`
	Size    int64        `json:"size"`
	Creator SocialID     `json:"creator"`
	Created time.Time    `json:"created"`
}

// Thread links a message on a parent card to the card holding its replies.
type Thread struct {
	Card         CardID     `json:"card"`
	Message      MessageID  `json:"message"`
	Thread       CardID     `json:"thread"`
	RepliesCount int        `json:"repliesCount"`
	LastReply    *time.Time `json:"lastReply,omitempty"`
}

// MessagesGroup points at an archived blob of messages for a date range.
type MessagesGroup struct {
	Card     CardID    `json:"card"`
	BlobID   BlobID    `json:"blobId"`
	FromDate time.Time `json:"fromDate"`
	ToDate   time.Time `json:"toDate"`
	Count    int       `json:"count"`
}

// NotificationContext is the per-account read state of a card.
type NotificationContext struct {
	ID                 ContextID      `json:"id"`
	Workspace          WorkspaceID    `json:"workspace"`
	Card               CardID         `json:"card"`
	Account            AccountID      `json:"account"`
	LastView           time.Time      `json:"lastView"`
	LastUpdate         time.Time      `json:"lastUpdate"`
	LastNotify         time.Time      `json:"lastNotify"`
	Notifications      []Notification `json:"notifications,omitempty"`
	TotalNotifications *int           `json:"totalNotifications,omitempty"`
}

type Notification struct {
	ID       NotificationID   `json:"id"`
	Context  ContextID        `json:"context"`
	Type     NotificationType `json:"type"`
	Message  MessageID        `json:"message"`
	BlobID   BlobID           `json:"blobId,omitempty"`
	Read     bool             `json:"read"`
	Archived bool             `json:"archived"`
	Created  time.Time        `json:"created"`
	Content  string           `json:"content,omitempty"`
	Creator  SocialID         `json:"creator,omitempty"`
}

type Collaborator struct {
	Card       CardID    `json:"card"`
	Account    AccountID `json:"account"`
	CardType   CardType  `json:"cardType"`
	JoinedDate time.Time `json:"joinedDate"`
}

type Label struct {
	Label    LabelID   `json:"label"`
	Card     CardID    `json:"card"`
	CardType CardType  `json:"cardType"`
	Account  AccountID `json:"account"`
	Created  time.Time `json:"created"`
}

// Peer links a card to an external peer such as a mail thread.
type Peer struct {
	Card    CardID         `json:"card"`
	Kind    string         `json:"kind"`
	Value   string         `json:"value"`
	Extra   map[string]any `json:"extra,omitempty"`
	Created time.Time      `json:"created"`
}

// Normalize converts a time to UTC at microsecond precision, the
// resolution every supported store round-trips.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
