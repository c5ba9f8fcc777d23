package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
)

func contains[T comparable](values []T, value T) bool {
	if len(values) == 0 {
		return true
	}
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}

func flagAccepts(filter *bool, value bool) bool {
	return filter == nil || *filter == value
}

var errUnhandledEvent = errors.New("event kind has no matching rule")

// matches reports whether any query of the session accepts the event.
func matches(s *session, event communication.Event) (bool, error) {
	switch typed := event.(type) {
	case communication.MessageCreated:
		created := typed.Message.Created
		return s.matchMessage(typed.Message.Card, typed.Message.ID, &created), nil
	case communication.MessageRemoved:
		return s.matchMessage(typed.Card, typed.Message, nil), nil
	case communication.PatchCreated:
		return s.matchMessage(typed.Card, typed.Patch.Message, nil), nil
	case communication.ReactionCreated:
		return s.matchMessage(typed.Card, typed.Reaction.Message, nil), nil
	case communication.ReactionRemoved:
		return s.matchMessage(typed.Card, typed.Message, nil), nil
	case communication.AttachmentCreated:
		return s.matchMessage(typed.Card, typed.Attachment.Message, nil), nil
	case communication.AttachmentRemoved:
		return s.matchMessage(typed.Card, typed.Message, nil), nil
	case communication.ThreadCreated:
		return s.matchMessage(typed.Thread.Card, typed.Thread.Message, nil), nil
	case communication.ThreadUpdated:
		return s.matchMessage(typed.Thread.Card, typed.Thread.Message, nil), nil

	case communication.CollaboratorsAdded:
		return s.matchCard(typed.Card), nil
	case communication.CollaboratorsRemoved:
		return s.matchCard(typed.Card), nil

	case communication.NotificationCreated:
		notification := typed.Notification
		return s.matchNotification(typed.Account, notification.Context, typed.Card, func(params communication.FindNotificationsParams) bool {
			return contains(params.IDs, notification.ID) &&
				contains(params.Messages, notification.Message) &&
				flagAccepts(params.Read, notification.Read) &&
				flagAccepts(params.Archived, notification.Archived) &&
				params.Created.Contains(notification.Created)
		}), nil
	case communication.NotificationRemoved:
		return s.matchNotification(typed.Account, typed.Context, "", func(params communication.FindNotificationsParams) bool {
			return contains(params.IDs, typed.Notification)
		}), nil
	case communication.NotificationUpdated:
		return s.matchNotification(typed.Account, typed.Context, "", func(params communication.FindNotificationsParams) bool {
			return typed.Notification == "" || contains(params.IDs, typed.Notification)
		}), nil

	case communication.NotificationContextCreated:
		return s.matchContext(typed.Context.Account, typed.Context.ID, typed.Context.Card), nil
	case communication.NotificationContextRemoved:
		return s.matchContext(typed.Account, typed.Context, typed.Card), nil
	case communication.NotificationContextUpdated:
		return s.matchContext(typed.Account, typed.Context, typed.Card), nil

	case communication.MessagesGroupCreated, communication.MessagesGroupRemoved:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s (%T)", errUnhandledEvent, event.Kind(), event)
	}
}

func (s *session) matchMessage(card communication.CardID, message communication.MessageID, created *time.Time) bool {
	for _, params := range s.messages {
		if params.Card != "" && params.Card != card {
			continue
		}
		if !contains(params.IDs, message) {
			continue
		}
		if created != nil && !params.Created.Contains(*created) {
			continue
		}
		return true
	}
	return false
}

func (s *session) matchCard(card communication.CardID) bool {
	for _, params := range s.messages {
		if params.Card == "" || params.Card == card {
			return true
		}
	}
	return false
}

// matchNotification accepts notification events addressed to the session's
// account through a notification query, or through a context query that
// embeds notifications. An empty card skips the card filter.
func (s *session) matchNotification(account communication.AccountID, contextID communication.ContextID, card communication.CardID, accepts func(communication.FindNotificationsParams) bool) bool {
	if account == "" || s.info.Account != account {
		return false
	}
	for _, params := range s.notifications {
		if contains(params.Contexts, contextID) && contains(params.Accounts, account) && accepts(params) {
			return true
		}
	}
	for _, params := range s.contexts {
		if params.Notifications == nil {
			continue
		}
		if contains(params.IDs, contextID) && (card == "" || contains(params.Cards, card)) {
			return true
		}
	}
	return false
}

func (s *session) matchContext(account communication.AccountID, contextID communication.ContextID, card communication.CardID) bool {
	if account == "" || s.info.Account != account {
		return false
	}
	for _, params := range s.contexts {
		if !contains(params.IDs, contextID) || !contains(params.Accounts, account) {
			continue
		}
		if card != "" && !contains(params.Cards, card) {
			continue
		}
		return true
	}
	return false
}
