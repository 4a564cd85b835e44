package command

import (
	"strings"

	"github.com/goliatone/go-tmsync/webhooks"
)

const (
	TypePollResourceType        = "tmsync.command.poll"
	TypeRunDue                  = "tmsync.command.run_due"
	TypeResolveMerges           = "tmsync.command.merges.resolve"
	TypeProcessWebhookEvent     = "tmsync.command.webhook.process"
	TypeRegisterWebhookEndpoint = "tmsync.command.webhook_endpoint.register"
)

type PollResourceTypeMessage struct {
	ResourceType string
}

func (PollResourceTypeMessage) Type() string { return TypePollResourceType }

func (m PollResourceTypeMessage) Validate() error {
	if strings.TrimSpace(m.ResourceType) == "" {
		return commandValidationError("resource_type", "resource type is required")
	}
	return nil
}

// RunDueMessage polls every configured resource type that is due.
type RunDueMessage struct{}

func (RunDueMessage) Type() string { return TypeRunDue }

func (RunDueMessage) Validate() error { return nil }

// ResolveMergesMessage resolves merge requests for one source contact, or for
// every source with active requests when SourceGUID is empty.
type ResolveMergesMessage struct {
	SourceGUID string
}

func (ResolveMergesMessage) Type() string { return TypeResolveMerges }

func (ResolveMergesMessage) Validate() error { return nil }

type ProcessWebhookEventMessage struct {
	Event webhooks.Event
}

func (ProcessWebhookEventMessage) Type() string { return TypeProcessWebhookEvent }

func (m ProcessWebhookEventMessage) Validate() error {
	return commandWrapValidation(m.Event.Validate(), "command: invalid webhook event")
}

type RegisterWebhookEndpointMessage struct {
	Name             string
	URL              string
	TechnicalContact string
}

func (RegisterWebhookEndpointMessage) Type() string { return TypeRegisterWebhookEndpoint }

func (m RegisterWebhookEndpointMessage) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return commandValidationError("name", "endpoint name is required")
	}
	url := strings.ToLower(strings.TrimSpace(m.URL))
	if url == "" {
		return commandValidationError("url", "endpoint url is required")
	}
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return commandInvalidInputError("command: endpoint url must be absolute")
	}
	return nil
}
