// Package processor turns commands into exactly one storage write and the
// event that describes the persisted result.
package processor

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
	errMissingAccount    = errors.New("connection account is required")
	errMissingSocialIDs  = errors.New("connection social ids are required")
	noOpLogger           = zap.NewNop()
)

// DefaultCardType is used when a command omits the card type.
const DefaultCardType communication.CardType = "card:class:Card"

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opProcessorNew = "processor.new"
	opProcess      = "processor.process"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

type Config struct {
	Adapter    communication.DbAdapter
	IDProvider communication.IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Result pairs the caller-facing result with the event to broadcast. Event
// is nil when the write changed nothing worth announcing.
type Result struct {
	Result communication.EventResult
	Event  communication.Event
}

type Processor struct {
	db     communication.DbAdapter
	ids    communication.IDProvider
	clock  func() time.Time
	logger *zap.Logger
}

func New(cfg Config) (*Processor, error) {
	if cfg.Adapter == nil {
		return nil, newServiceError(opProcessorNew, "missing_adapter", errMissingAdapter)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opProcessorNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Processor{db: cfg.Adapter, ids: cfg.IDProvider, clock: clock, logger: logger}, nil
}

// Process validates the command, performs its storage write and returns the
// paired event. Storage errors are returned unchanged in meaning; nothing is
// retried.
func (p *Processor) Process(ctx context.Context, info communication.ConnectionInfo, command communication.Command) (Result, error) {
	if command == nil {
		return Result{}, newServiceError(opProcess, "unknown_command", communication.ErrUnknownCommand)
	}
	if err := command.Validate(); err != nil {
		return Result{}, newServiceError(opProcess, "invalid_command", err)
	}

	result, err := p.dispatch(ctx, info, command)
	if err != nil {
		var serviceErr *ServiceError
		if errors.As(err, &serviceErr) {
			return Result{}, err
		}
		p.logError(opProcess, "storage", err, zap.String("command", string(command.Kind())))
		return Result{}, newServiceError(opProcess, "storage", err)
	}
	return result, nil
}

func (p *Processor) dispatch(ctx context.Context, info communication.ConnectionInfo, command communication.Command) (Result, error) {
	switch cmd := command.(type) {
	case communication.CreateMessage:
		return p.createMessage(ctx, cmd)
	case communication.RemoveMessage:
		return p.removeMessage(ctx, info, cmd)
	case communication.CreatePatch:
		return p.createPatch(ctx, cmd)
	case communication.CreateReaction:
		return p.createReaction(ctx, cmd)
	case communication.RemoveReaction:
		return p.removeReaction(ctx, cmd)
	case communication.CreateAttachment:
		return p.createAttachment(ctx, cmd)
	case communication.RemoveAttachment:
		return p.removeAttachment(ctx, cmd)
	case communication.CreateThread:
		return p.createThread(ctx, cmd)
	case communication.AddCollaborators:
		return p.addCollaborators(ctx, cmd)
	case communication.RemoveCollaborators:
		return p.removeCollaborators(ctx, cmd)
	case communication.CreateNotification:
		return p.createNotification(ctx, cmd)
	case communication.RemoveNotification:
		return p.removeNotification(ctx, info, cmd)
	case communication.UpdateNotification:
		return p.updateNotification(ctx, info, cmd)
	case communication.CreateNotificationContext:
		return p.createContext(ctx, info, cmd)
	case communication.RemoveNotificationContext:
		return p.removeContext(ctx, info, cmd)
	case communication.UpdateNotificationContext:
		return p.updateContext(ctx, info, cmd)
	case communication.CreateMessagesGroup:
		return p.createMessagesGroup(ctx, cmd)
	case communication.RemoveMessagesGroup:
		return p.removeMessagesGroup(ctx, cmd)
	default:
		return Result{}, newServiceError(opProcess, "unknown_command",
			fmt.Errorf("%w: %T", communication.ErrUnknownCommand, command))
	}
}

func (p *Processor) now() time.Time {
	return communication.Normalize(p.clock())
}

func (p *Processor) newID() (string, error) {
	id, err := p.ids.NewID()
	if err != nil {
		return "", newServiceError(opProcess, "id_generation", err)
	}
	return id, nil
}

// owner narrows ownership-checked operations to the caller's account.
// System connections act on behalf of every account.
func owner(info communication.ConnectionInfo) communication.AccountID {
	if info.IsSystem {
		return ""
	}
	return info.Account
}

func (p *Processor) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	p.logger.Error("event processor error", attrs...)
}
