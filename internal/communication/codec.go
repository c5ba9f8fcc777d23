package communication

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire form of commands and events.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func EncodeEvent(event Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event.Kind(), err)
	}
	return json.Marshal(Envelope{Type: string(event.Kind()), Payload: payload})
}

func EncodeCommand(command Command) ([]byte, error) {
	payload, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", command.Kind(), err)
	}
	return json.Marshal(Envelope{Type: string(command.Kind()), Payload: payload})
}

func DecodeCommand(data []byte) (Command, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode command envelope: %w", err)
	}
	return envelope.Command()
}

// Command decodes the payload according to the envelope type.
func (e Envelope) Command() (Command, error) {
	switch CommandKind(e.Type) {
	case CommandCreateMessage:
		return decodeInto[CreateMessage](e.Payload)
	case CommandRemoveMessage:
		return decodeInto[RemoveMessage](e.Payload)
	case CommandCreatePatch:
		return decodeInto[CreatePatch](e.Payload)
	case CommandCreateReaction:
		return decodeInto[CreateReaction](e.Payload)
	case CommandRemoveReaction:
		return decodeInto[RemoveReaction](e.Payload)
	case CommandCreateAttachment:
		return decodeInto[CreateAttachment](e.Payload)
	case CommandRemoveAttachment:
		return decodeInto[RemoveAttachment](e.Payload)
	case CommandCreateThread:
		return decodeInto[CreateThread](e.Payload)
	case CommandAddCollaborators:
		return decodeInto[AddCollaborators](e.Payload)
	case CommandRemoveCollaborators:
		return decodeInto[RemoveCollaborators](e.Payload)
	case CommandCreateNotification:
		return decodeInto[CreateNotification](e.Payload)
	case CommandRemoveNotification:
		return decodeInto[RemoveNotification](e.Payload)
	case CommandUpdateNotification:
		return decodeInto[UpdateNotification](e.Payload)
	case CommandCreateNotificationContext:
		return decodeInto[CreateNotificationContext](e.Payload)
	case CommandRemoveNotificationContext:
		return decodeInto[RemoveNotificationContext](e.Payload)
	case CommandUpdateNotificationContext:
		return decodeInto[UpdateNotificationContext](e.Payload)
	case CommandCreateMessagesGroup:
		return decodeInto[CreateMessagesGroup](e.Payload)
	case CommandRemoveMessagesGroup:
		return decodeInto[RemoveMessagesGroup](e.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, e.Type)
	}
}

func DecodeEvent(data []byte) (Event, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	switch EventKind(envelope.Type) {
	case EventMessageCreated:
		return decodeInto[MessageCreated](envelope.Payload)
	case EventMessageRemoved:
		return decodeInto[MessageRemoved](envelope.Payload)
	case EventPatchCreated:
		return decodeInto[PatchCreated](envelope.Payload)
	case EventReactionCreated:
		return decodeInto[ReactionCreated](envelope.Payload)
	case EventReactionRemoved:
		return decodeInto[ReactionRemoved](envelope.Payload)
	case EventAttachmentCreated:
		return decodeInto[AttachmentCreated](envelope.Payload)
	case EventAttachmentRemoved:
		return decodeInto[AttachmentRemoved](envelope.Payload)
	case EventThreadCreated:
		return decodeInto[ThreadCreated](envelope.Payload)
	case EventThreadUpdated:
		return decodeInto[ThreadUpdated](envelope.Payload)
	case EventCollaboratorsAdded:
		return decodeInto[CollaboratorsAdded](envelope.Payload)
	case EventCollaboratorsRemoved:
		return decodeInto[CollaboratorsRemoved](envelope.Payload)
	case EventNotificationCreated:
		return decodeInto[NotificationCreated](envelope.Payload)
	case EventNotificationRemoved:
		return decodeInto[NotificationRemoved](envelope.Payload)
	case EventNotificationUpdated:
		return decodeInto[NotificationUpdated](envelope.Payload)
	case EventNotificationContextCreated:
		return decodeInto[NotificationContextCreated](envelope.Payload)
	case EventNotificationContextRemoved:
		return decodeInto[NotificationContextRemoved](envelope.Payload)
	case EventNotificationContextUpdated:
		return decodeInto[NotificationContextUpdated](envelope.Payload)
	case EventMessagesGroupCreated:
		return decodeInto[MessagesGroupCreated](envelope.Payload)
	case EventMessagesGroupRemoved:
		return decodeInto[MessagesGroupRemoved](envelope.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, envelope.Type)
	}
}

func decodeInto[T any](payload json.RawMessage) (T, error) {
	var value T
	if len(payload) == 0 {
		return value, nil
	}
	if err := json.Unmarshal(payload, &value); err != nil {
		return value, fmt.Errorf("decode payload: %w", err)
	}
	return value, nil
}
