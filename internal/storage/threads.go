package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/MarcoPoloResearchLab/courier/internal/query"
	"gorm.io/gorm"
)

func (a *Adapter) CreateThread(ctx context.Context, thread communication.Thread) error {
	args := a.args()
	statement, err := query.Insert{
		Table:   "thread_index",
		Columns: []string{"workspace_id", "thread_id", "card_id", "message_id", "replies_count", "last_reply"},
		Rows: [][]any{{
			string(a.workspace), string(thread.Thread), string(thread.Card), string(thread.Message),
			thread.RepliesCount, nullableTime(thread.LastReply),
		}},
	}.Build(args)
	if err != nil {
		return err
	}
	if _, err := a.exec(ctx, a.db, statement, args); err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	return nil
}

// UpdateThread adds delta to the replies count, never going below zero, and
// moves the last reply forward when given. Nil when the thread is unknown.
func (a *Adapter) UpdateThread(ctx context.Context, thread communication.CardID, delta int, lastReply *time.Time) (*communication.Thread, error) {
	var updated *communication.Thread
	err := a.transaction(ctx, func(tx *gorm.DB) error {
		args := a.args()
		assignments := fmt.Sprintf("replies_count = CASE WHEN replies_count + %s < 0 THEN 0 ELSE replies_count + %s END",
			args.Bind(delta), args.Bind(delta))
		if lastReply != nil {
			assignments += ", last_reply = " + args.Bind(normalize(*lastReply))
		}
		where, err := a.scoped(args, "workspace_id")
		if err != nil {
			return err
		}
		where.Eq("thread_id", string(thread))
		affected, err := a.exec(ctx, tx, "UPDATE thread_index SET "+assignments+" "+where.String(), args)
		if err != nil || affected == 0 {
			return err
		}
		updated, err = a.findThread(ctx, tx, communication.FindThreadParams{Thread: thread})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (a *Adapter) FindThread(ctx context.Context, params communication.FindThreadParams) (*communication.Thread, error) {
	return a.findThread(ctx, a.db, params)
}

func (a *Adapter) findThread(ctx context.Context, db *gorm.DB, params communication.FindThreadParams) (*communication.Thread, error) {
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return nil, err
	}
	if params.Card != "" {
		where.Eq("card_id", string(params.Card))
	}
	if params.Message != "" {
		where.Eq("message_id", string(params.Message))
	}
	if params.Thread != "" {
		where.Eq("thread_id", string(params.Thread))
	}
	statement := "SELECT card_id, message_id, thread_id, replies_count, last_reply FROM thread_index " +
		where.String() + " " + query.Limit(args, 1)

	var found *communication.Thread
	err = a.query(ctx, db, statement, args, func(rows *sql.Rows) error {
		var (
			cardID, messageID, threadID string
			replies                     int
			lastReply                   nullTime
		)
		if err := rows.Scan(&cardID, &messageID, &threadID, &replies, &lastReply); err != nil {
			return err
		}
		found = &communication.Thread{
			Card:         communication.CardID(cardID),
			Message:      communication.MessageID(messageID),
			Thread:       communication.CardID(threadID),
			RepliesCount: replies,
			LastReply:    lastReply.Ptr(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (a *Adapter) CreateMessagesGroup(ctx context.Context, group communication.MessagesGroup) error {
	args := a.args()
	statement, err := query.Insert{
		Table:   "messages_groups",
		Columns: []string{"workspace_id", "card_id", "blob_id", "from_date", "to_date", "count"},
		Rows: [][]any{{
			string(a.workspace), string(group.Card), string(group.BlobID),
			normalize(group.FromDate), normalize(group.ToDate), group.Count,
		}},
	}.Build(args)
	if err != nil {
		return err
	}
	if _, err := a.exec(ctx, a.db, statement, args); err != nil {
		return fmt.Errorf("create messages group: %w", err)
	}
	return nil
}

func (a *Adapter) RemoveMessagesGroup(ctx context.Context, card communication.CardID, blob communication.BlobID) (int64, error) {
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return 0, err
	}
	where.Eq("card_id", string(card)).Eq("blob_id", string(blob))
	return a.exec(ctx, a.db, "DELETE FROM messages_groups "+where.String(), args)
}

func (a *Adapter) FindMessagesGroups(ctx context.Context, params communication.FindMessagesGroupsParams) ([]communication.MessagesGroup, error) {
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return nil, err
	}
	if params.Card != "" {
		where.Eq("card_id", string(params.Card))
	}
	if params.BlobID != "" {
		where.Eq("blob_id", string(params.BlobID))
	}
	query.WithRange(where, "from_date", timeRange(params.FromDate))
	query.WithRange(where, "to_date", timeRange(params.ToDate))
	statement := "SELECT card_id, blob_id, from_date, to_date, count FROM messages_groups " + where.String() + " " +
		query.OrderBy(direction(params.Order), "from_date", "blob_id") + " " +
		query.Limit(args, params.Limit)

	var groups []communication.MessagesGroup
	err = a.query(ctx, a.db, statement, args, func(rows *sql.Rows) error {
		var (
			cardID, blobID   string
			fromDate, toDate nullTime
			count            int
		)
		if err := rows.Scan(&cardID, &blobID, &fromDate, &toDate, &count); err != nil {
			return err
		}
		groups = append(groups, communication.MessagesGroup{
			Card:     communication.CardID(cardID),
			BlobID:   communication.BlobID(blobID),
			FromDate: fromDate.Time,
			ToDate:   toDate.Time,
			Count:    count,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}
