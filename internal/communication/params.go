package communication

import "time"

// TimeRange bounds a timestamp; nil bounds are open.
type TimeRange struct {
	Less           *time.Time `json:"less,omitempty"`
	LessOrEqual    *time.Time `json:"lessOrEqual,omitempty"`
	Greater        *time.Time `json:"greater,omitempty"`
	GreaterOrEqual *time.Time `json:"greaterOrEqual,omitempty"`
}

// Contains reports whether t satisfies every set bound.
func (r TimeRange) Contains(t time.Time) bool {
	if r.Less != nil && !t.Before(*r.Less) {
		return false
	}
	if r.LessOrEqual != nil && t.After(*r.LessOrEqual) {
		return false
	}
	if r.Greater != nil && !t.After(*r.Greater) {
		return false
	}
	if r.GreaterOrEqual != nil && t.Before(*r.GreaterOrEqual) {
		return false
	}
	return true
}

// Empty filters in the params below mean "any value".

type FindMessagesParams struct {
	Card      CardID      `json:"card,omitempty"`
	IDs       []MessageID `json:"ids,omitempty"`
	Created   TimeRange   `json:"created"`
	Order     SortOrder   `json:"order"`
	Limit     int         `json:"limit,omitempty"`
	Files     bool        `json:"files,omitempty"`
	Reactions bool        `json:"reactions,omitempty"`
}

type FindMessagesGroupsParams struct {
	Card     CardID    `json:"card,omitempty"`
	BlobID   BlobID    `json:"blobId,omitempty"`
	FromDate TimeRange `json:"fromDate"`
	ToDate   TimeRange `json:"toDate"`
	Order    SortOrder `json:"order"`
	Limit    int       `json:"limit,omitempty"`
}

// ContextNotificationsParams requests the latest notifications per context.
type ContextNotificationsParams struct {
	Limit    int       `json:"limit"`
	Order    SortOrder `json:"order"`
	Read     *bool     `json:"read,omitempty"`
	Archived *bool     `json:"archived,omitempty"`
	Total    bool      `json:"total,omitempty"`
}

type FindNotificationContextParams struct {
	IDs           []ContextID                 `json:"ids,omitempty"`
	Cards         []CardID                    `json:"cards,omitempty"`
	Accounts      []AccountID                 `json:"accounts,omitempty"`
	LastUpdate    TimeRange                   `json:"lastUpdate"`
	Order         SortOrder                   `json:"order"`
	Limit         int                         `json:"limit,omitempty"`
	Notifications *ContextNotificationsParams `json:"notifications,omitempty"`
}

type FindNotificationsParams struct {
	IDs      []NotificationID `json:"ids,omitempty"`
	Contexts []ContextID      `json:"contexts,omitempty"`
	Accounts []AccountID      `json:"accounts,omitempty"`
	Messages []MessageID      `json:"messages,omitempty"`
	Read     *bool            `json:"read,omitempty"`
	Archived *bool            `json:"archived,omitempty"`
	Created  TimeRange        `json:"created"`
	Order    SortOrder        `json:"order"`
	Limit    int              `json:"limit,omitempty"`
	Total    bool             `json:"total,omitempty"`
}

type FindCollaboratorsParams struct {
	Card     CardID      `json:"card"`
	Accounts []AccountID `json:"accounts,omitempty"`
	Limit    int         `json:"limit,omitempty"`
}

type FindLabelsParams struct {
	Labels   []LabelID   `json:"labels,omitempty"`
	Cards    []CardID    `json:"cards,omitempty"`
	Accounts []AccountID `json:"accounts,omitempty"`
	Limit    int         `json:"limit,omitempty"`
}

type FindPeersParams struct {
	Card  CardID `json:"card,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Value string `json:"value,omitempty"`
}

type FindThreadParams struct {
	Card    CardID    `json:"card,omitempty"`
	Message MessageID `json:"message,omitempty"`
	Thread  CardID    `json:"thread,omitempty"`
}

// ContextQuery addresses a context owned by an account.
type ContextQuery struct {
	Context ContextID
	Account AccountID
}

// NotificationQuery addresses notifications of an owned context; an empty
// ID list selects all of them.
type NotificationQuery struct {
	Context ContextID
	Account AccountID
	IDs     []NotificationID
}
