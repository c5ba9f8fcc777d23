// Package triggers derives follow-up events and their storage side effects
// from persisted events.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"go.uber.org/zap"
)

var (
	errMissingAdapter    = errors.New("storage adapter is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// AccountResolver maps a social identity to the account that owns it.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, social communication.SocialID) (communication.AccountID, bool, error)
}

type Config struct {
	Adapter    communication.DbAdapter
	IDProvider communication.IDProvider
	// Resolver links message creators to accounts. Without one creators are
	// neither auto-subscribed nor excluded from notifications.
	Resolver AccountResolver
	Logger   *zap.Logger
}

type Triggers struct {
	db       communication.DbAdapter
	ids      communication.IDProvider
	resolver AccountResolver
	logger   *zap.Logger
}

func New(cfg Config) (*Triggers, error) {
	if cfg.Adapter == nil {
		return nil, errMissingAdapter
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Triggers{db: cfg.Adapter, ids: cfg.IDProvider, resolver: cfg.Resolver, logger: logger}, nil
}

// Process returns the events derived from event. Events already persisted
// before a failure are returned alongside the error.
func (t *Triggers) Process(ctx context.Context, info communication.ConnectionInfo, event communication.Event) ([]communication.Event, error) {
	switch typed := event.(type) {
	case communication.MessageCreated:
		return t.onMessageCreated(ctx, typed)
	case communication.MessageRemoved:
		return t.onMessageRemoved(ctx, typed)
	case communication.CollaboratorsAdded:
		return nil, t.onCollaboratorsAdded(ctx, typed)
	case communication.CollaboratorsRemoved:
		_, err := t.db.RemoveLabels(ctx, communication.SubscriptionLabel, typed.Card, typed.Collaborators)
		if err != nil {
			return nil, fmt.Errorf("remove subscription labels: %w", err)
		}
		return nil, nil
	default:
		return nil, nil
	}
}

func (t *Triggers) onMessageCreated(ctx context.Context, event communication.MessageCreated) ([]communication.Event, error) {
	message := event.Message
	var (
		threadEvents       []communication.Event
		collaboratorEvents []communication.Event
		contextEvents      []communication.Event
		notifyEvents       []communication.Event
	)
	collect := func() []communication.Event {
		events := make([]communication.Event, 0, len(threadEvents)+len(collaboratorEvents)+len(contextEvents)+len(notifyEvents))
		events = append(events, threadEvents...)
		events = append(events, collaboratorEvents...)
		events = append(events, contextEvents...)
		return append(events, notifyEvents...)
	}

	updated, err := t.bumpThread(ctx, message.Card, 1, &message.Created)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		threadEvents = append(threadEvents, communication.ThreadUpdated{Thread: *updated})
	}

	creator, err := t.creatorAccount(ctx, message.Creator)
	if err != nil {
		return collect(), err
	}
	if creator != "" {
		added, err := t.db.AddCollaborators(ctx, message.Card, event.CardType, []communication.AccountID{creator}, message.Created)
		if err != nil {
			return collect(), fmt.Errorf("subscribe creator: %w", err)
		}
		if len(added) > 0 {
			collaboratorEvents = append(collaboratorEvents, communication.CollaboratorsAdded{
				Card:          message.Card,
				CardType:      event.CardType,
				Collaborators: added,
				Date:          message.Created,
			})
		}
	}

	collaborators, err := t.db.FindCollaborators(ctx, communication.FindCollaboratorsParams{Card: message.Card})
	if err != nil {
		return collect(), fmt.Errorf("find collaborators: %w", err)
	}
	notified := make(map[communication.AccountID]bool, len(collaborators))
	for _, collaborator := range collaborators {
		if collaborator.Account != creator {
			notified[collaborator.Account] = true
		}
	}

	existing, err := t.db.FindContexts(ctx, communication.FindNotificationContextParams{Cards: []communication.CardID{message.Card}})
	if err != nil {
		return collect(), fmt.Errorf("find card contexts: %w", err)
	}
	byAccount := make(map[communication.AccountID]communication.NotificationContext, len(existing))
	for _, notificationContext := range existing {
		byAccount[notificationContext.Account] = notificationContext
		if !notificationContext.LastUpdate.Before(message.Created) {
			continue
		}
		created := message.Created
		update := communication.ContextUpdate{LastUpdate: &created}
		if notified[notificationContext.Account] {
			update.LastNotify = &created
		}
		updatedContext, err := t.db.UpdateContext(ctx, communication.ContextQuery{Context: notificationContext.ID}, update)
		if err != nil {
			return collect(), fmt.Errorf("update context %s: %w", notificationContext.ID, err)
		}
		if updatedContext == nil {
			continue
		}
		byAccount[notificationContext.Account] = *updatedContext
		contextEvents = append(contextEvents, communication.NotificationContextUpdated{
			Account: updatedContext.Account,
			Context: updatedContext.ID,
			Card:    updatedContext.Card,
			Update:  update,
		})
	}

	for _, collaborator := range collaborators {
		if !notified[collaborator.Account] {
			continue
		}
		notificationContext, ok := byAccount[collaborator.Account]
		if !ok {
			created, fresh, err := t.findOrCreateContext(ctx, message.Card, collaborator.Account, message.Created)
			if err != nil {
				return collect(), err
			}
			notificationContext = created
			byAccount[collaborator.Account] = created
			if fresh {
				contextEvents = append(contextEvents, communication.NotificationContextCreated{Context: created})
			}
		}

		id, err := t.ids.NewID()
		if err != nil {
			return collect(), fmt.Errorf("notification id: %w", err)
		}
		notification := communication.Notification{
			ID:      communication.NotificationID(id),
			Context: notificationContext.ID,
			Type:    communication.NotificationTypeMessage,
			Message: message.ID,
			Created: message.Created,
			Content: message.Content,
			Creator: message.Creator,
		}
		if _, err := t.db.CreateNotification(ctx, notification); err != nil {
			return collect(), fmt.Errorf("create notification for %s: %w", collaborator.Account, err)
		}
		notifyEvents = append(notifyEvents, communication.NotificationCreated{
			Account:      collaborator.Account,
			Card:         message.Card,
			Notification: notification,
		})
	}
	return collect(), nil
}

// findOrCreateContext tolerates a concurrent creator winning the insert by
// reading back the row it wrote.
func (t *Triggers) findOrCreateContext(ctx context.Context, card communication.CardID, account communication.AccountID, created time.Time) (communication.NotificationContext, bool, error) {
	id, err := t.ids.NewID()
	if err != nil {
		return communication.NotificationContext{}, false, fmt.Errorf("context id: %w", err)
	}
	notificationContext := communication.NotificationContext{
		ID:         communication.ContextID(id),
		Workspace:  t.db.Workspace(),
		Card:       card,
		Account:    account,
		LastView:   time.Unix(0, 0).UTC(),
		LastUpdate: created,
		LastNotify: created,
	}
	err = t.db.CreateContext(ctx, notificationContext)
	if err == nil {
		return notificationContext, true, nil
	}
	if !errors.Is(err, communication.ErrDuplicate) {
		return communication.NotificationContext{}, false, fmt.Errorf("create context for %s: %w", account, err)
	}

	t.logger.Info("notification context created concurrently",
		zap.String("card", string(card)),
		zap.String("account", string(account)))
	found, err := t.db.FindContexts(ctx, communication.FindNotificationContextParams{
		Cards:    []communication.CardID{card},
		Accounts: []communication.AccountID{account},
		Limit:    1,
	})
	if err != nil {
		return communication.NotificationContext{}, false, fmt.Errorf("refetch context for %s: %w", account, err)
	}
	if len(found) == 0 {
		return communication.NotificationContext{}, false, fmt.Errorf("refetch context for %s: %w", account, communication.ErrNotFound)
	}
	return found[0], false, nil
}

func (t *Triggers) creatorAccount(ctx context.Context, social communication.SocialID) (communication.AccountID, error) {
	if t.resolver == nil || social == "" {
		return "", nil
	}
	account, ok, err := t.resolver.ResolveAccount(ctx, social)
	if err != nil {
		return "", fmt.Errorf("resolve creator %s: %w", social, err)
	}
	if !ok {
		return "", nil
	}
	return account, nil
}

func (t *Triggers) onMessageRemoved(ctx context.Context, event communication.MessageRemoved) ([]communication.Event, error) {
	updated, err := t.bumpThread(ctx, event.Card, -1, nil)
	if err != nil || updated == nil {
		return nil, err
	}
	return []communication.Event{communication.ThreadUpdated{Thread: *updated}}, nil
}

// bumpThread adjusts the reply counter of the thread whose reply card is
// card. Nil when card is not a thread.
func (t *Triggers) bumpThread(ctx context.Context, card communication.CardID, delta int, lastReply *time.Time) (*communication.Thread, error) {
	thread, err := t.db.FindThread(ctx, communication.FindThreadParams{Thread: card})
	if err != nil {
		return nil, fmt.Errorf("find thread: %w", err)
	}
	if thread == nil {
		return nil, nil
	}
	updated, err := t.db.UpdateThread(ctx, thread.Thread, delta, lastReply)
	if err != nil {
		return nil, fmt.Errorf("update thread: %w", err)
	}
	return updated, nil
}

func (t *Triggers) onCollaboratorsAdded(ctx context.Context, event communication.CollaboratorsAdded) error {
	labels := make([]communication.Label, len(event.Collaborators))
	for index, account := range event.Collaborators {
		labels[index] = communication.Label{
			Label:    communication.SubscriptionLabel,
			Card:     event.Card,
			CardType: event.CardType,
			Account:  account,
			Created:  event.Date,
		}
	}
	if err := t.db.CreateLabels(ctx, labels); err != nil {
		return fmt.Errorf("create subscription labels: %w", err)
	}
	return nil
}
