package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[PollResourceTypeMessage]        = (*PollResourceTypeCommand)(nil)
	_ gocmd.Commander[RunDueMessage]                  = (*RunDueCommand)(nil)
	_ gocmd.Commander[ResolveMergesMessage]           = (*ResolveMergesCommand)(nil)
	_ gocmd.Commander[ProcessWebhookEventMessage]     = (*ProcessWebhookEventCommand)(nil)
	_ gocmd.Commander[RegisterWebhookEndpointMessage] = (*RegisterWebhookEndpointCommand)(nil)
)
