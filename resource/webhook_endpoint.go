package resource

// WebhookEndpoint is the provisioning document registering a push endpoint
// with the source platform. Key holds the shared signing secret.
type WebhookEndpoint struct {
	Base
	Name             string
	URL              string
	Key              string
	Format           string
	TechnicalContact string
	Status           WebhookEndpointStatus
}

func (*WebhookEndpoint) ResourceType() string { return "WebhookEndpoint" }

func (w *WebhookEndpoint) StatusName() string { return string(w.Status) }

func registerWebhookEndpoints(r *Registry) {
	define[WebhookEndpoint](r, "WebhookEndpoint", "WebhookEndpointID").
		text("Name", func(w *WebhookEndpoint, v string) { w.Name = v }).
		text("Url", func(w *WebhookEndpoint, v string) { w.URL = v }).
		text("Key", func(w *WebhookEndpoint, v string) { w.Key = v }).
		text("Format", func(w *WebhookEndpoint, v string) { w.Format = v }).
		text("TechnicalContact", func(w *WebhookEndpoint, v string) { w.TechnicalContact = v }).
		setter("Status", func(w *WebhookEndpoint, v string) error {
			w.Status = parseStatus(v, WebhookEndpointStatusActive, WebhookEndpointStatusDisabled)
			return nil
		})
	r.collection("WebhookEndpoints", "WebhookEndpoint")
}
