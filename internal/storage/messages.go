package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/MarcoPoloResearchLab/courier/internal/query"
	"gorm.io/gorm"
)

func strs[T ~string](values []T) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, len(values))
	for index, value := range values {
		result[index] = string(value)
	}
	return result
}

// CreateMessage stores the message and its created-index row together.
func (a *Adapter) CreateMessage(ctx context.Context, message communication.Message) error {
	created := normalize(message.Created)
	return a.transaction(ctx, func(tx *gorm.DB) error {
		args := a.args()
		statement, err := query.Insert{
			Table:   "messages",
			Columns: []string{"workspace_id", "card_id", "id", "content", "creator", "created", "external_id"},
			Rows: [][]any{{
				string(a.workspace), string(message.Card), string(message.ID), message.Content,
				string(message.Creator), created, nullableString(message.ExternalID),
			}},
		}.Build(args)
		if err != nil {
			return err
		}
		if _, err := a.exec(ctx, tx, statement, args); err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		args = a.args()
		statement, err = query.Insert{
			Table:   "message_created",
			Columns: []string{"workspace_id", "card_id", "message_id", "created"},
			Rows:    [][]any{{string(a.workspace), string(message.Card), string(message.ID), created}},
		}.Build(args)
		if err != nil {
			return err
		}
		if _, err := a.exec(ctx, tx, statement, args); err != nil {
			return fmt.Errorf("index message: %w", err)
		}
		return nil
	})
}

// RemoveMessages deletes the matching messages of a card with their
// dependent rows. A non-empty creators list restricts removal to messages
// written by those social ids.
func (a *Adapter) RemoveMessages(ctx context.Context, card communication.CardID, ids []communication.MessageID, creators []communication.SocialID) ([]communication.MessageID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var removed []communication.MessageID
	err := a.transaction(ctx, func(tx *gorm.DB) error {
		args := a.args()
		where, err := a.scoped(args, "workspace_id")
		if err != nil {
			return err
		}
		where.Eq("card_id", string(card))
		query.In(where, "id", strs(ids))
		query.In(where, "creator", strs(creators))
		err = a.query(ctx, tx, "SELECT id FROM messages "+where.String(), args, func(rows *sql.Rows) error {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			removed = append(removed, communication.MessageID(id))
			return nil
		})
		if err != nil || len(removed) == 0 {
			return err
		}

		dependents := []struct {
			table  string
			column string
			card   bool
		}{
			{table: "patches", column: "message_id", card: true},
			{table: "reactions", column: "message_id"},
			{table: "attachments", column: "message_id"},
			{table: "message_created", column: "message_id", card: true},
			{table: "thread_index", column: "message_id", card: true},
			{table: "messages", column: "id", card: true},
		}
		for _, dependent := range dependents {
			args := a.args()
			where, err := a.scoped(args, "workspace_id")
			if err != nil {
				return err
			}
			if dependent.card {
				where.Eq("card_id", string(card))
			}
			query.In(where, dependent.column, strs(removed))
			if _, err := a.exec(ctx, tx, "DELETE FROM "+dependent.table+" "+where.String(), args); err != nil {
				return fmt.Errorf("remove %s: %w", dependent.table, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (a *Adapter) FindMessages(ctx context.Context, params communication.FindMessagesParams) ([]communication.Message, error) {
	args := a.args()
	where, err := a.scoped(args, "m.workspace_id")
	if err != nil {
		return nil, err
	}
	if params.Card != "" {
		where.Eq("m.card_id", string(params.Card))
	}
	query.In(where, "m.id", strs(params.IDs))
	query.WithRange(where, "m.created", timeRange(params.Created))

	statement := `SELECT m.id, m.card_id, m.content, m.creator, m.created, m.external_id,
		(SELECT COUNT(*) FROM reactions r WHERE r.workspace_id = m.workspace_id AND r.message_id = m.id) AS reaction_count,
		(SELECT COUNT(*) FROM attachments f WHERE f.workspace_id = m.workspace_id AND f.message_id = m.id) AS attachment_count
		FROM messages m ` + where.String() + " " +
		query.OrderBy(direction(params.Order), "m.created", "m.id") + " " +
		query.Limit(args, params.Limit)

	var messages []communication.Message
	err = a.query(ctx, a.db, statement, args, func(rows *sql.Rows) error {
		var (
			message    communication.Message
			id, cardID string
			creator    string
			created    nullTime
			externalID sql.NullString
		)
		if err := rows.Scan(&id, &cardID, &message.Content, &creator, &created, &externalID,
			&message.ReactionCount, &message.AttachmentCount); err != nil {
			return err
		}
		message.ID = communication.MessageID(id)
		message.Card = communication.CardID(cardID)
		message.Creator = communication.SocialID(creator)
		message.Created = created.Time
		message.ExternalID = stringOrEmpty(externalID)
		messages = append(messages, message)
		return nil
	})
	if err != nil || len(messages) == 0 {
		return messages, err
	}

	ids := make([]communication.MessageID, len(messages))
	index := make(map[communication.MessageID]*communication.Message, len(messages))
	for position := range messages {
		ids[position] = messages[position].ID
		index[messages[position].ID] = &messages[position]
	}

	if err := a.applyPatches(ctx, ids, index); err != nil {
		return nil, err
	}
	if params.Reactions {
		if err := a.attachReactions(ctx, ids, index); err != nil {
			return nil, err
		}
	}
	if params.Files {
		if err := a.attachFiles(ctx, ids, index); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// applyPatches replaces message content with the latest patch.
func (a *Adapter) applyPatches(ctx context.Context, ids []communication.MessageID, index map[communication.MessageID]*communication.Message) error {
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return err
	}
	query.In(where, "message_id", strs(ids))
	statement := "SELECT message_id, content, created FROM patches " + where.String() + " " +
		query.OrderBy(query.Ascending, "created", "id")
	return a.query(ctx, a.db, statement, args, func(rows *sql.Rows) error {
		var (
			messageID, content string
			created            nullTime
		)
		if err := rows.Scan(&messageID, &content, &created); err != nil {
			return err
		}
		if message, ok := index[communication.MessageID(messageID)]; ok {
			message.Content = content
			message.Edited = created.Ptr()
		}
		return nil
	})
}

func (a *Adapter) attachReactions(ctx context.Context, ids []communication.MessageID, index map[communication.MessageID]*communication.Message) error {
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return err
	}
	query.In(where, "message_id", strs(ids))
	statement := "SELECT message_id, card_id, reaction, creator, created FROM reactions " + where.String() + " " +
		query.OrderBy(query.Ascending, "created")
	return a.query(ctx, a.db, statement, args, func(rows *sql.Rows) error {
		var (
			messageID, cardID, reaction, creator string
			created                              nullTime
		)
		if err := rows.Scan(&messageID, &cardID, &reaction, &creator, &created); err != nil {
			return err
		}
		if message, ok := index[communication.MessageID(messageID)]; ok {
			message.Reactions = append(message.Reactions, communication.Reaction{
				Message:  communication.MessageID(messageID),
				Card:     communication.CardID(cardID),
				Reaction: reaction,
				Creator:  communication.SocialID(creator),
				Created:  created.Time,
			})
		}
		return nil
	})
}

func (a *Adapter) attachFiles(ctx context.Context, ids []communication.MessageID, index map[communication.MessageID]*communication.Message) error {
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return err
	}
	query.In(where, "message_id", strs(ids))
	statement := "SELECT id, message_id, card_id, type, name, size, creator, created FROM attachments " + where.String() + " " +
		query.OrderBy(query.Ascending, "created")
	return a.query(ctx, a.db, statement, args, func(rows *sql.Rows) error {
		var (
			attachment                     communication.Attachment
			id, messageID, cardID, creator string
			created                        nullTime
		)
		if err := rows.Scan(&id, &messageID, &cardID, &attachment.Type, &attachment.Name, &attachment.Size, &creator, &created); err != nil {
			return err
		}
		attachment.ID = communication.AttachmentID(id)
		attachment.Message = communication.MessageID(messageID)
		attachment.Card = communication.CardID(cardID)
		attachment.Creator = communication.SocialID(creator)
		attachment.Created = created.Time
		if message, ok := index[attachment.Message]; ok {
			message.Attachments = append(message.Attachments, attachment)
		}
		return nil
	})
}

// CreatePatch appends a patch, copying the creation time of its message
// from the created index. ErrNotFound when the message is unknown.
func (a *Adapter) CreatePatch(ctx context.Context, patch communication.Patch) error {
	id, err := a.newID()
	if err != nil {
		return fmt.Errorf("generate patch id: %w", err)
	}
	return a.transaction(ctx, func(tx *gorm.DB) error {
		args := a.args()
		where, err := a.scoped(args, "workspace_id")
		if err != nil {
			return err
		}
		where.Eq("card_id", string(patch.Card)).Eq("message_id", string(patch.Message))
		var messageCreated nullTime
		err = a.query(ctx, tx, "SELECT created FROM message_created "+where.String(), args, func(rows *sql.Rows) error {
			return rows.Scan(&messageCreated)
		})
		if err != nil {
			return err
		}
		if !messageCreated.Valid {
			return fmt.Errorf("patch message %s: %w", patch.Message, communication.ErrNotFound)
		}

		args = a.args()
		statement, err := query.Insert{
			Table:   "patches",
			Columns: []string{"id", "workspace_id", "card_id", "message_id", "content", "creator", "created", "message_created"},
			Rows: [][]any{{
				id, string(a.workspace), string(patch.Card), string(patch.Message), patch.Content,
				string(patch.Creator), normalize(patch.Created), normalize(messageCreated.Time),
			}},
		}.Build(args)
		if err != nil {
			return err
		}
		_, err = a.exec(ctx, tx, statement, args)
		return err
	})
}

// CreateReaction is idempotent per (message, reaction, creator).
func (a *Adapter) CreateReaction(ctx context.Context, reaction communication.Reaction) error {
	args := a.args()
	statement, err := query.Insert{
		Table:   "reactions",
		Columns: []string{"workspace_id", "message_id", "reaction", "creator", "card_id", "created"},
		Rows: [][]any{{
			string(a.workspace), string(reaction.Message), reaction.Reaction, string(reaction.Creator),
			string(reaction.Card), normalize(reaction.Created),
		}},
		Conflict: &query.OnConflict{Columns: []string{"workspace_id", "message_id", "reaction", "creator"}, DoNothing: true},
	}.Build(args)
	if err != nil {
		return err
	}
	_, err = a.exec(ctx, a.db, statement, args)
	return err
}

// RemoveReaction reports the rows removed; zero is not an error.
func (a *Adapter) RemoveReaction(ctx context.Context, card communication.CardID, message communication.MessageID, reaction string, creator communication.SocialID) (int64, error) {
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return 0, err
	}
	where.Eq("card_id", string(card)).
		Eq("message_id", string(message)).
		Eq("reaction", reaction).
		Eq("creator", string(creator))
	return a.exec(ctx, a.db, "DELETE FROM reactions "+where.String(), args)
}

func (a *Adapter) CreateAttachment(ctx context.Context, attachment communication.Attachment) error {
	args := a.args()
	statement, err := query.Insert{
		Table:   "attachments",
		Columns: []string{"workspace_id", "message_id", "id", "card_id", "type", "name", "size", "creator", "created"},
		Rows: [][]any{{
			string(a.workspace), string(attachment.Message), string(attachment.ID), string(attachment.Card),
			attachment.Type, attachment.Name, attachment.Size, string(attachment.Creator), normalize(attachment.Created),
		}},
	}.Build(args)
	if err != nil {
		return err
	}
	_, err = a.exec(ctx, a.db, statement, args)
	return err
}

func (a *Adapter) RemoveAttachment(ctx context.Context, card communication.CardID, message communication.MessageID, id communication.AttachmentID) (int64, error) {
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return 0, err
	}
	where.Eq("card_id", string(card)).Eq("message_id", string(message)).Eq("id", string(id))
	return a.exec(ctx, a.db, "DELETE FROM attachments "+where.String(), args)
}
