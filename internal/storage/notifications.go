package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/MarcoPoloResearchLab/courier/internal/query"
	"gorm.io/gorm"
)

const contextColumns = "nc.id, nc.card_id, nc.account, nc.last_view, nc.last_update, nc.last_notify"

// CreateContext returns communication.ErrDuplicate when the account already
// has a context for the card.
func (a *Adapter) CreateContext(ctx context.Context, notificationContext communication.NotificationContext) error {
	args := a.args()
	statement, err := query.Insert{
		Table:   "notification_contexts",
		Columns: []string{"id", "workspace_id", "card_id", "account", "last_view", "last_update", "last_notify"},
		Rows: [][]any{{
			string(notificationContext.ID), string(a.workspace), string(notificationContext.Card),
			string(notificationContext.Account), normalize(notificationContext.LastView),
			normalize(notificationContext.LastUpdate), normalize(notificationContext.LastNotify),
		}},
	}.Build(args)
	if err != nil {
		return err
	}
	if _, err := a.exec(ctx, a.db, statement, args); err != nil {
		return fmt.Errorf("create notification context: %w", err)
	}
	return nil
}

// UpdateContext applies the update to the owned context and returns it, or
// nil when no context matched. Moving LastView forward marks the context's
// notifications created up to it as read.
func (a *Adapter) UpdateContext(ctx context.Context, contextQuery communication.ContextQuery, update communication.ContextUpdate) (*communication.NotificationContext, error) {
	if update.IsEmpty() {
		return a.findContext(ctx, a.db, contextQuery)
	}
	var updated *communication.NotificationContext
	err := a.transaction(ctx, func(tx *gorm.DB) error {
		args := a.args()
		var assignments []string
		if update.LastView != nil {
			assignments = append(assignments, "last_view = "+args.Bind(normalize(*update.LastView)))
		}
		if update.LastUpdate != nil {
			assignments = append(assignments, "last_update = "+args.Bind(normalize(*update.LastUpdate)))
		}
		if update.LastNotify != nil {
			assignments = append(assignments, "last_notify = "+args.Bind(normalize(*update.LastNotify)))
		}
		where, err := a.scoped(args, "workspace_id")
		if err != nil {
			return err
		}
		where.Eq("id", string(contextQuery.Context))
		if contextQuery.Account != "" {
			where.Eq("account", string(contextQuery.Account))
		}
		affected, err := a.exec(ctx, tx, "UPDATE notification_contexts SET "+strings.Join(assignments, ", ")+" "+where.String(), args)
		if err != nil || affected == 0 {
			return err
		}

		if update.LastView != nil {
			args := a.args()
			assignment := "read = " + args.Bind(true)
			owned, err := a.ownedContexts(args, contextQuery.Context, contextQuery.Account)
			if err != nil {
				return err
			}
			readWhere := query.NewWhere(args).
				Literal("context_id IN ("+owned+")").
				Compare("created", query.OpLte, normalize(*update.LastView)).
				Eq("read", false)
			if _, err := a.exec(ctx, tx, "UPDATE notifications SET "+assignment+" "+readWhere.String(), args); err != nil {
				return err
			}
		}

		updated, err = a.findContext(ctx, tx, contextQuery)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveContext deletes the owned context and its notifications, returning
// the removed context or nil when none matched.
func (a *Adapter) RemoveContext(ctx context.Context, contextQuery communication.ContextQuery) (*communication.NotificationContext, error) {
	var removed *communication.NotificationContext
	err := a.transaction(ctx, func(tx *gorm.DB) error {
		found, err := a.findContext(ctx, tx, contextQuery)
		if err != nil || found == nil {
			return err
		}

		args := a.args()
		owned, err := a.ownedContexts(args, found.ID, found.Account)
		if err != nil {
			return err
		}
		if _, err := a.exec(ctx, tx, "DELETE FROM notifications WHERE context_id IN ("+owned+")", args); err != nil {
			return fmt.Errorf("remove context notifications: %w", err)
		}

		args = a.args()
		where, err := a.scoped(args, "workspace_id")
		if err != nil {
			return err
		}
		where.Eq("id", string(found.ID))
		if _, err := a.exec(ctx, tx, "DELETE FROM notification_contexts "+where.String(), args); err != nil {
			return fmt.Errorf("remove context: %w", err)
		}
		removed = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (a *Adapter) findContext(ctx context.Context, db *gorm.DB, contextQuery communication.ContextQuery) (*communication.NotificationContext, error) {
	params := communication.FindNotificationContextParams{IDs: []communication.ContextID{contextQuery.Context}, Limit: 1}
	if contextQuery.Account != "" {
		params.Accounts = []communication.AccountID{contextQuery.Account}
	}
	contexts, err := a.findContexts(ctx, db, params)
	if err != nil || len(contexts) == 0 {
		return nil, err
	}
	return &contexts[0], nil
}

// FindContexts returns matching contexts. When notifications are requested
// every context carries its latest N notifications, ranked per context in a
// single statement, and optionally the total count.
func (a *Adapter) FindContexts(ctx context.Context, params communication.FindNotificationContextParams) ([]communication.NotificationContext, error) {
	return a.findContexts(ctx, a.db, params)
}

func (a *Adapter) contextWhere(args *query.Args, params communication.FindNotificationContextParams) (*query.Where, error) {
	where, err := a.scoped(args, "nc.workspace_id")
	if err != nil {
		return nil, err
	}
	query.In(where, "nc.id", strs(params.IDs))
	query.In(where, "nc.card_id", strs(params.Cards))
	query.In(where, "nc.account", strs(params.Accounts))
	query.WithRange(where, "nc.last_update", timeRange(params.LastUpdate))
	return where, nil
}

func (a *Adapter) findContexts(ctx context.Context, db *gorm.DB, params communication.FindNotificationContextParams) ([]communication.NotificationContext, error) {
	args := a.args()
	where, err := a.contextWhere(args, params)
	if err != nil {
		return nil, err
	}
	contextOrder := direction(params.Order)
	workingSet := "SELECT " + contextColumns + " FROM notification_contexts nc " + where.String() + " " +
		query.OrderBy(contextOrder, "nc.last_update", "nc.id") + " " +
		query.Limit(args, params.Limit)

	if params.Notifications == nil {
		var contexts []communication.NotificationContext
		err := a.query(ctx, db, workingSet, args, func(rows *sql.Rows) error {
			notificationContext, err := a.scanContext(rows)
			if err != nil {
				return err
			}
			contexts = append(contexts, notificationContext)
			return nil
		})
		return contexts, err
	}

	options := *params.Notifications
	if options.Limit <= 0 {
		options.Limit = 1
	}
	rankOrder := direction(options.Order)

	rankedWhere := notificationFlags(query.NewWhere(args), options.Read, options.Archived)
	ranked := `SELECT n.id, n.context_id, n.type, n.message_id, n.blob_id, n.read, n.archived, n.created, n.content, n.creator,
			ROW_NUMBER() OVER (PARTITION BY n.context_id ` + query.OrderBy(rankOrder, "n.created", "n.id") + `) AS rn
		FROM notifications n JOIN working w ON n.context_id = w.id ` + rankedWhere.String()

	statement := "WITH working AS (" + workingSet + "), ranked AS (" + ranked + ")"
	totalColumn := ""
	totalJoin := ""
	if options.Total {
		totalWhere := notificationFlags(query.NewWhere(args), options.Read, options.Archived)
		statement += ", totals AS (SELECT n.context_id, COUNT(*) AS total FROM notifications n JOIN working w ON n.context_id = w.id " +
			totalWhere.String() + " GROUP BY n.context_id)"
		totalColumn = ", COALESCE(t.total, 0)"
		totalJoin = " LEFT JOIN totals t ON t.context_id = w.id"
	}
	perContext := args.Bind(options.Limit)
	statement += ` SELECT w.id, w.card_id, w.account, w.last_view, w.last_update, w.last_notify,
		r.id, r.type, r.message_id, r.blob_id, r.read, r.archived, r.created, r.content, r.creator` + totalColumn + `
		FROM working w LEFT JOIN ranked r ON r.context_id = w.id AND r.rn <= ` + perContext + totalJoin + " " +
		query.OrderBy(contextOrder, "w.last_update", "w.id") + ", r.rn ASC"

	var contexts []communication.NotificationContext
	positions := make(map[communication.ContextID]int)
	err = a.query(ctx, db, statement, args, func(rows *sql.Rows) error {
		var (
			id, cardID, account                 string
			lastView, lastUpdate, lastNotify    nullTime
			notificationID, notificationType    sql.NullString
			messageID, blobID, content, creator sql.NullString
			read, archived                      sql.NullBool
			created                             nullTime
			total                               int64
		)
		targets := []any{&id, &cardID, &account, &lastView, &lastUpdate, &lastNotify,
			&notificationID, &notificationType, &messageID, &blobID, &read, &archived, &created, &content, &creator}
		if options.Total {
			targets = append(targets, &total)
		}
		if err := rows.Scan(targets...); err != nil {
			return err
		}

		contextID := communication.ContextID(id)
		position, seen := positions[contextID]
		if !seen {
			notificationContext := communication.NotificationContext{
				ID:         contextID,
				Workspace:  a.workspace,
				Card:       communication.CardID(cardID),
				Account:    communication.AccountID(account),
				LastView:   lastView.Time,
				LastUpdate: lastUpdate.Time,
				LastNotify: lastNotify.Time,
			}
			if options.Total {
				count := int(total)
				notificationContext.TotalNotifications = &count
			}
			positions[contextID] = len(contexts)
			position = len(contexts)
			contexts = append(contexts, notificationContext)
		}
		if notificationID.Valid {
			contexts[position].Notifications = append(contexts[position].Notifications, communication.Notification{
				ID:       communication.NotificationID(notificationID.String),
				Context:  contextID,
				Type:     communication.NotificationType(stringOrEmpty(notificationType)),
				Message:  communication.MessageID(stringOrEmpty(messageID)),
				BlobID:   communication.BlobID(stringOrEmpty(blobID)),
				Read:     read.Bool,
				Archived: archived.Bool,
				Created:  created.Time,
				Content:  stringOrEmpty(content),
				Creator:  communication.SocialID(stringOrEmpty(creator)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contexts, nil
}

func notificationFlags(where *query.Where, read, archived *bool) *query.Where {
	if read != nil {
		where.Eq("n.read", *read)
	}
	if archived != nil {
		where.Eq("n.archived", *archived)
	}
	return where
}

func (a *Adapter) scanContext(rows *sql.Rows) (communication.NotificationContext, error) {
	var (
		id, cardID, account              string
		lastView, lastUpdate, lastNotify nullTime
	)
	if err := rows.Scan(&id, &cardID, &account, &lastView, &lastUpdate, &lastNotify); err != nil {
		return communication.NotificationContext{}, err
	}
	return communication.NotificationContext{
		ID:         communication.ContextID(id),
		Workspace:  a.workspace,
		Card:       communication.CardID(cardID),
		Account:    communication.AccountID(account),
		LastView:   lastView.Time,
		LastUpdate: lastUpdate.Time,
		LastNotify: lastNotify.Time,
	}, nil
}

// CreateNotification inserts the notification into a context of the
// workspace and returns that context.
func (a *Adapter) CreateNotification(ctx context.Context, notification communication.Notification) (communication.NotificationContext, error) {
	var owner communication.NotificationContext
	err := a.transaction(ctx, func(tx *gorm.DB) error {
		found, err := a.findContext(ctx, tx, communication.ContextQuery{Context: notification.Context})
		if err != nil {
			return err
		}
		if found == nil {
			return fmt.Errorf("notification context %s: %w", notification.Context, communication.ErrNotFound)
		}
		notificationType := notification.Type
		if notificationType == "" {
			notificationType = communication.NotificationTypeMessage
		}

		args := a.args()
		statement, err := query.Insert{
			Table:   "notifications",
			Columns: []string{"id", "context_id", "type", "message_id", "blob_id", "read", "archived", "created", "content", "creator"},
			Rows: [][]any{{
				string(notification.ID), string(notification.Context), string(notificationType),
				string(notification.Message), nullableString(string(notification.BlobID)), notification.Read,
				notification.Archived, normalize(notification.Created), notification.Content, string(notification.Creator),
			}},
		}.Build(args)
		if err != nil {
			return err
		}
		if _, err := a.exec(ctx, tx, statement, args); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		owner = *found
		return nil
	})
	return owner, err
}

// UpdateNotifications flips flags on notifications of an owned context.
func (a *Adapter) UpdateNotifications(ctx context.Context, notificationQuery communication.NotificationQuery, update communication.NotificationUpdate) (int64, error) {
	if update.IsEmpty() {
		return 0, nil
	}
	args := a.args()
	var assignments []string
	if update.Read != nil {
		assignments = append(assignments, "read = "+args.Bind(*update.Read))
	}
	if update.Archived != nil {
		assignments = append(assignments, "archived = "+args.Bind(*update.Archived))
	}
	owned, err := a.ownedContexts(args, notificationQuery.Context, notificationQuery.Account)
	if err != nil {
		return 0, err
	}
	where := query.NewWhere(args).Literal("context_id IN (" + owned + ")")
	query.In(where, "id", strs(notificationQuery.IDs))
	return a.exec(ctx, a.db, "UPDATE notifications SET "+strings.Join(assignments, ", ")+" "+where.String(), args)
}

func (a *Adapter) RemoveNotifications(ctx context.Context, notificationQuery communication.NotificationQuery) (int64, error) {
	args := a.args()
	owned, err := a.ownedContexts(args, notificationQuery.Context, notificationQuery.Account)
	if err != nil {
		return 0, err
	}
	where := query.NewWhere(args).Literal("context_id IN (" + owned + ")")
	query.In(where, "id", strs(notificationQuery.IDs))
	return a.exec(ctx, a.db, "DELETE FROM notifications "+where.String(), args)
}

func (a *Adapter) notificationWhere(args *query.Args, params communication.FindNotificationsParams) (*query.Where, error) {
	where, err := a.scoped(args, "nc.workspace_id")
	if err != nil {
		return nil, err
	}
	query.In(where, "n.id", strs(params.IDs))
	query.In(where, "n.context_id", strs(params.Contexts))
	query.In(where, "nc.account", strs(params.Accounts))
	query.In(where, "n.message_id", strs(params.Messages))
	notificationFlags(where, params.Read, params.Archived)
	query.WithRange(where, "n.created", timeRange(params.Created))
	return where, nil
}

func (a *Adapter) FindNotifications(ctx context.Context, params communication.FindNotificationsParams) ([]communication.Notification, error) {
	args := a.args()
	where, err := a.notificationWhere(args, params)
	if err != nil {
		return nil, err
	}
	statement := `SELECT n.id, n.context_id, n.type, n.message_id, n.blob_id, n.read, n.archived, n.created, n.content, n.creator
		FROM notifications n JOIN notification_contexts nc ON nc.id = n.context_id ` + where.String() + " " +
		query.OrderBy(direction(params.Order), "n.created", "n.id") + " " +
		query.Limit(args, params.Limit)

	var notifications []communication.Notification
	err = a.query(ctx, a.db, statement, args, func(rows *sql.Rows) error {
		var (
			id, contextID, notificationType, messageID string
			blobID                                     sql.NullString
			notification                               communication.Notification
			created                                    nullTime
			creator                                    string
		)
		if err := rows.Scan(&id, &contextID, &notificationType, &messageID, &blobID,
			&notification.Read, &notification.Archived, &created, &notification.Content, &creator); err != nil {
			return err
		}
		notification.ID = communication.NotificationID(id)
		notification.Context = communication.ContextID(contextID)
		notification.Type = communication.NotificationType(notificationType)
		notification.Message = communication.MessageID(messageID)
		notification.BlobID = communication.BlobID(stringOrEmpty(blobID))
		notification.Created = created.Time
		notification.Creator = communication.SocialID(creator)
		notifications = append(notifications, notification)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (a *Adapter) CountNotifications(ctx context.Context, params communication.FindNotificationsParams) (int, error) {
	args := a.args()
	where, err := a.notificationWhere(args, params)
	if err != nil {
		return 0, err
	}
	var total int64
	statement := "SELECT COUNT(*) FROM notifications n JOIN notification_contexts nc ON nc.id = n.context_id " + where.String()
	err = a.query(ctx, a.db, statement, args, func(rows *sql.Rows) error {
		return rows.Scan(&total)
	})
	return int(total), err
}
