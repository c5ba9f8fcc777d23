package processor

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
)

func (p *Processor) addCollaborators(ctx context.Context, cmd communication.AddCollaborators) (Result, error) {
	cardType := cmd.CardType
	if cardType == "" {
		cardType = DefaultCardType
	}
	date := p.now()
	added, err := p.db.AddCollaborators(ctx, cmd.Card, cardType, cmd.Collaborators, date)
	if err != nil || len(added) == 0 {
		return Result{}, err
	}
	return Result{Event: communication.CollaboratorsAdded{
		Card:          cmd.Card,
		CardType:      cardType,
		Collaborators: added,
		Date:          date,
	}}, nil
}

func (p *Processor) removeCollaborators(ctx context.Context, cmd communication.RemoveCollaborators) (Result, error) {
	affected, err := p.db.RemoveCollaborators(ctx, cmd.Card, cmd.Collaborators)
	if err != nil || affected == 0 {
		return Result{}, err
	}
	return Result{Event: communication.CollaboratorsRemoved{Card: cmd.Card, Collaborators: cmd.Collaborators}}, nil
}

func (p *Processor) createNotification(ctx context.Context, cmd communication.CreateNotification) (Result, error) {
	id, err := p.newID()
	if err != nil {
		return Result{}, err
	}
	notificationType := cmd.Type
	if notificationType == "" {
		notificationType = communication.NotificationTypeMessage
	}
	notification := communication.Notification{
		ID:      communication.NotificationID(id),
		Context: cmd.Context,
		Type:    notificationType,
		Message: cmd.Message,
		BlobID:  cmd.BlobID,
		Created: p.now(),
		Content: cmd.Content,
		Creator: cmd.Creator,
	}
	owning, err := p.db.CreateNotification(ctx, notification)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Result: communication.EventResult{ID: id},
		Event: communication.NotificationCreated{
			Account:      owning.Account,
			Card:         owning.Card,
			Notification: notification,
		},
	}, nil
}

func (p *Processor) removeNotification(ctx context.Context, info communication.ConnectionInfo, cmd communication.RemoveNotification) (Result, error) {
	account, err := p.contextOwner(ctx, info, cmd.Context)
	if err != nil || account == "" {
		return Result{}, err
	}
	affected, err := p.db.RemoveNotifications(ctx, communication.NotificationQuery{
		Context: cmd.Context,
		Account: account,
		IDs:     []communication.NotificationID{cmd.Notification},
	})
	if err != nil || affected == 0 {
		return Result{}, err
	}
	return Result{Event: communication.NotificationRemoved{
		Account:      account,
		Context:      cmd.Context,
		Notification: cmd.Notification,
	}}, nil
}

func (p *Processor) updateNotification(ctx context.Context, info communication.ConnectionInfo, cmd communication.UpdateNotification) (Result, error) {
	account, err := p.contextOwner(ctx, info, cmd.Context)
	if err != nil || account == "" {
		return Result{}, err
	}
	notificationQuery := communication.NotificationQuery{Context: cmd.Context, Account: account}
	if cmd.Notification != "" {
		notificationQuery.IDs = []communication.NotificationID{cmd.Notification}
	}
	affected, err := p.db.UpdateNotifications(ctx, notificationQuery, cmd.Update)
	if err != nil || affected == 0 {
		return Result{}, err
	}
	return Result{Event: communication.NotificationUpdated{
		Account:      account,
		Context:      cmd.Context,
		Notification: cmd.Notification,
		Update:       cmd.Update,
	}}, nil
}

// contextOwner resolves the account notification events are addressed to.
// Empty means the caller may not touch the context, or it does not exist.
func (p *Processor) contextOwner(ctx context.Context, info communication.ConnectionInfo, contextID communication.ContextID) (communication.AccountID, error) {
	if !info.IsSystem {
		return info.Account, nil
	}
	contexts, err := p.db.FindContexts(ctx, communication.FindNotificationContextParams{
		IDs:   []communication.ContextID{contextID},
		Limit: 1,
	})
	if err != nil || len(contexts) == 0 {
		return "", err
	}
	return contexts[0].Account, nil
}

// createContext opens a context for the caller's account. Missing
// timestamps default to now; LastNotify starts at LastUpdate.
func (p *Processor) createContext(ctx context.Context, info communication.ConnectionInfo, cmd communication.CreateNotificationContext) (Result, error) {
	if info.Account == "" {
		return Result{}, newServiceError(opProcess, "missing_account", errMissingAccount)
	}
	id, err := p.newID()
	if err != nil {
		return Result{}, err
	}
	now := p.now()
	lastView := valueOr(cmd.LastView, now)
	lastUpdate := valueOr(cmd.LastUpdate, now)
	notificationContext := communication.NotificationContext{
		ID:         communication.ContextID(id),
		Workspace:  p.db.Workspace(),
		Card:       cmd.Card,
		Account:    info.Account,
		LastView:   lastView,
		LastUpdate: lastUpdate,
		LastNotify: lastUpdate,
	}
	if err := p.db.CreateContext(ctx, notificationContext); err != nil {
		return Result{}, err
	}
	return Result{
		Result: communication.EventResult{ID: id},
		Event:  communication.NotificationContextCreated{Context: notificationContext},
	}, nil
}

func (p *Processor) removeContext(ctx context.Context, info communication.ConnectionInfo, cmd communication.RemoveNotificationContext) (Result, error) {
	removed, err := p.db.RemoveContext(ctx, communication.ContextQuery{Context: cmd.Context, Account: owner(info)})
	if err != nil || removed == nil {
		return Result{}, err
	}
	return Result{Event: communication.NotificationContextRemoved{
		Account: removed.Account,
		Context: removed.ID,
		Card:    removed.Card,
	}}, nil
}

func (p *Processor) updateContext(ctx context.Context, info communication.ConnectionInfo, cmd communication.UpdateNotificationContext) (Result, error) {
	update := normalizeUpdate(cmd.Update)
	updated, err := p.db.UpdateContext(ctx, communication.ContextQuery{Context: cmd.Context, Account: owner(info)}, update)
	if err != nil || updated == nil {
		return Result{}, err
	}
	return Result{Event: communication.NotificationContextUpdated{
		Account: updated.Account,
		Context: updated.ID,
		Card:    updated.Card,
		Update:  update,
	}}, nil
}

func valueOr(value *time.Time, fallback time.Time) time.Time {
	if value == nil {
		return fallback
	}
	return communication.Normalize(*value)
}

func normalizeUpdate(update communication.ContextUpdate) communication.ContextUpdate {
	normalized := func(value *time.Time) *time.Time {
		if value == nil {
			return nil
		}
		result := communication.Normalize(*value)
		return &result
	}
	return communication.ContextUpdate{
		LastView:   normalized(update.LastView),
		LastUpdate: normalized(update.LastUpdate),
		LastNotify: normalized(update.LastNotify),
	}
}
