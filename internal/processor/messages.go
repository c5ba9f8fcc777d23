package processor

import (
	"context"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
)

func (p *Processor) createMessage(ctx context.Context, cmd communication.CreateMessage) (Result, error) {
	id, err := p.newID()
	if err != nil {
		return Result{}, err
	}
	cardType := cmd.CardType
	if cardType == "" {
		cardType = DefaultCardType
	}
	message := communication.Message{
		ID:         communication.MessageID(id),
		Card:       cmd.Card,
		Content:    cmd.Content,
		Creator:    cmd.Creator,
		Created:    p.now(),
		ExternalID: cmd.ExternalID,
	}
	if err := p.db.CreateMessage(ctx, message); err != nil {
		return Result{}, err
	}
	return Result{
		Result: communication.EventResult{ID: id},
		Event:  communication.MessageCreated{Message: message, CardType: cardType},
	}, nil
}

// removeMessage only removes messages written by the caller unless the
// connection is a system one.
func (p *Processor) removeMessage(ctx context.Context, info communication.ConnectionInfo, cmd communication.RemoveMessage) (Result, error) {
	var creators []communication.SocialID
	if !info.IsSystem {
		if len(info.SocialIDs) == 0 {
			return Result{}, newServiceError(opProcess, "missing_social_ids", errMissingSocialIDs)
		}
		creators = info.SocialIDs
	}
	removed, err := p.db.RemoveMessages(ctx, cmd.Card, []communication.MessageID{cmd.Message}, creators)
	if err != nil {
		return Result{}, err
	}
	if len(removed) == 0 {
		return Result{}, nil
	}
	return Result{
		Result: communication.EventResult{ID: string(cmd.Message)},
		Event:  communication.MessageRemoved{Card: cmd.Card, Message: cmd.Message},
	}, nil
}

func (p *Processor) createPatch(ctx context.Context, cmd communication.CreatePatch) (Result, error) {
	patch := communication.Patch{
		Message: cmd.Message,
		Card:    cmd.Card,
		Content: cmd.Content,
		Creator: cmd.Creator,
		Created: p.now(),
	}
	if err := p.db.CreatePatch(ctx, patch); err != nil {
		return Result{}, err
	}
	return Result{Event: communication.PatchCreated{Card: cmd.Card, Patch: patch}}, nil
}

func (p *Processor) createReaction(ctx context.Context, cmd communication.CreateReaction) (Result, error) {
	reaction := communication.Reaction{
		Message:  cmd.Message,
		Card:     cmd.Card,
		Reaction: cmd.Reaction,
		Creator:  cmd.Creator,
		Created:  p.now(),
	}
	if err := p.db.CreateReaction(ctx, reaction); err != nil {
		return Result{}, err
	}
	return Result{Event: communication.ReactionCreated{Card: cmd.Card, Reaction: reaction}}, nil
}

// removeReaction announces the removal even when no row matched.
func (p *Processor) removeReaction(ctx context.Context, cmd communication.RemoveReaction) (Result, error) {
	if _, err := p.db.RemoveReaction(ctx, cmd.Card, cmd.Message, cmd.Reaction, cmd.Creator); err != nil {
		return Result{}, err
	}
	return Result{Event: communication.ReactionRemoved{
		Card:     cmd.Card,
		Message:  cmd.Message,
		Reaction: cmd.Reaction,
		Creator:  cmd.Creator,
	}}, nil
}

func (p *Processor) createAttachment(ctx context.Context, cmd communication.CreateAttachment) (Result, error) {
	id, err := p.newID()
	if err != nil {
		return Result{}, err
	}
	attachment := communication.Attachment{
		ID:      communication.AttachmentID(id),
		Message: cmd.Message,
		Card:    cmd.Card,
		Type:    cmd.Type,
		Name:    cmd.Name,
		Size:    cmd.Size,
		Creator: cmd.Creator,
		Created: p.now(),
	}
	if err := p.db.CreateAttachment(ctx, attachment); err != nil {
		return Result{}, err
	}
	return Result{
		Result: communication.EventResult{ID: id},
		Event:  communication.AttachmentCreated{Card: cmd.Card, Attachment: attachment},
	}, nil
}

func (p *Processor) removeAttachment(ctx context.Context, cmd communication.RemoveAttachment) (Result, error) {
	affected, err := p.db.RemoveAttachment(ctx, cmd.Card, cmd.Message, cmd.Attachment)
	if err != nil || affected == 0 {
		return Result{}, err
	}
	return Result{Event: communication.AttachmentRemoved{Card: cmd.Card, Message: cmd.Message, Attachment: cmd.Attachment}}, nil
}

func (p *Processor) createThread(ctx context.Context, cmd communication.CreateThread) (Result, error) {
	thread := communication.Thread{Card: cmd.Card, Message: cmd.Message, Thread: cmd.Thread}
	if err := p.db.CreateThread(ctx, thread); err != nil {
		return Result{}, err
	}
	return Result{
		Result: communication.EventResult{ID: string(cmd.Thread)},
		Event:  communication.ThreadCreated{Thread: thread},
	}, nil
}

func (p *Processor) createMessagesGroup(ctx context.Context, cmd communication.CreateMessagesGroup) (Result, error) {
	group := cmd.Group
	group.FromDate = communication.Normalize(group.FromDate)
	group.ToDate = communication.Normalize(group.ToDate)
	if err := p.db.CreateMessagesGroup(ctx, group); err != nil {
		return Result{}, err
	}
	return Result{Event: communication.MessagesGroupCreated{Group: group}}, nil
}

func (p *Processor) removeMessagesGroup(ctx context.Context, cmd communication.RemoveMessagesGroup) (Result, error) {
	affected, err := p.db.RemoveMessagesGroup(ctx, cmd.Card, cmd.BlobID)
	if err != nil || affected == 0 {
		return Result{}, err
	}
	return Result{Event: communication.MessagesGroupRemoved{Card: cmd.Card, BlobID: cmd.BlobID}}, nil
}
