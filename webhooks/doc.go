// Package webhooks ingests push notifications from the source API.
//
// A delivery is verified against its HMAC-SHA512 signature, decoded into one or
// more events and dispatched per event. Every event is processed under the
// per (resourceType, resourceId) lock shared with polling: a held lock means
// another unit of work already owns the resource and the event is skipped.
// Handler failures are logged and never reach the caller.
package webhooks
