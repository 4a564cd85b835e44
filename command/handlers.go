package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tmsync/identity"
	"github.com/goliatone/go-tmsync/resource"
	"github.com/goliatone/go-tmsync/sync"
	"github.com/goliatone/go-tmsync/webhooks"
)

type PollService interface {
	Poll(ctx context.Context, resourceType string) (sync.PollResult, error)
	RunDue(ctx context.Context) ([]sync.PollResult, error)
}

type MergeService interface {
	ResolveMerges(ctx context.Context, sourceGUID string) ([]identity.Resolution, error)
}

type WebhookService interface {
	ProcessWebhookEvent(ctx context.Context, event webhooks.Event) webhooks.EventResult
	RegisterWebhookEndpoint(ctx context.Context, endpoint resource.WebhookEndpoint) (*resource.WebhookEndpoint, error)
}

// MutatingService is everything the engine exposes through commands.
type MutatingService interface {
	PollService
	MergeService
	WebhookService
}

type PollResourceTypeCommand struct {
	service PollService
}

func NewPollResourceTypeCommand(service PollService) *PollResourceTypeCommand {
	return &PollResourceTypeCommand{service: service}
}

func (c *PollResourceTypeCommand) Execute(ctx context.Context, msg PollResourceTypeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: poll service is required")
	}
	out, err := c.service.Poll(ctx, msg.ResourceType)
	storeResult(ctx, out)
	return err
}

type RunDueCommand struct {
	service PollService
}

func NewRunDueCommand(service PollService) *RunDueCommand {
	return &RunDueCommand{service: service}
}

// Execute stores the per-type results even when some types failed; the
// returned error joins the failures.
func (c *RunDueCommand) Execute(ctx context.Context, _ RunDueMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: poll service is required")
	}
	out, err := c.service.RunDue(ctx)
	storeResult(ctx, out)
	return err
}

type ResolveMergesCommand struct {
	service MergeService
}

func NewResolveMergesCommand(service MergeService) *ResolveMergesCommand {
	return &ResolveMergesCommand{service: service}
}

func (c *ResolveMergesCommand) Execute(ctx context.Context, msg ResolveMergesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: merge service is required")
	}
	out, err := c.service.ResolveMerges(ctx, msg.SourceGUID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ProcessWebhookEventCommand struct {
	service WebhookService
}

func NewProcessWebhookEventCommand(service WebhookService) *ProcessWebhookEventCommand {
	return &ProcessWebhookEventCommand{service: service}
}

// Execute never fails on handler errors; they are reported on the stored
// EventResult.
func (c *ProcessWebhookEventCommand) Execute(ctx context.Context, msg ProcessWebhookEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	storeResult(ctx, c.service.ProcessWebhookEvent(ctx, msg.Event))
	return nil
}

type RegisterWebhookEndpointCommand struct {
	service WebhookService
}

func NewRegisterWebhookEndpointCommand(service WebhookService) *RegisterWebhookEndpointCommand {
	return &RegisterWebhookEndpointCommand{service: service}
}

func (c *RegisterWebhookEndpointCommand) Execute(ctx context.Context, msg RegisterWebhookEndpointMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.RegisterWebhookEndpoint(ctx, resource.WebhookEndpoint{
		Name:             msg.Name,
		URL:              msg.URL,
		TechnicalContact: msg.TechnicalContact,
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
