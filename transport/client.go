package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-tmsync/core"
	"github.com/goliatone/go-tmsync/odata"
	"github.com/goliatone/go-tmsync/resource"
)

// Client reads and writes source resources through an Executor.
type Client struct {
	Executor *Executor
	Mapper   *resource.Mapper
	Scheme   string
	BasePath string
}

func NewClient(executor *Executor, mapper *resource.Mapper) *Client {
	if mapper == nil {
		mapper = resource.NewMapper(resource.Options{})
	}
	return &Client{
		Executor: executor,
		Mapper:   mapper,
		Scheme:   "https",
		BasePath: core.DefaultAPIBasePath,
	}
}

// BaseURL returns https://{platform}/api/2012-02-01/auth/resources/.
func (c *Client) BaseURL(ctx context.Context) (string, error) {
	if c == nil || c.Executor == nil || c.Executor.Credentials == nil {
		return "", fmt.Errorf("transport: client is not configured")
	}
	creds, err := c.Executor.Credentials.Credentials(ctx)
	if err != nil {
		return "", err
	}
	if err := creds.Validate(); err != nil {
		return "", err
	}
	scheme := strings.TrimSpace(c.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	basePath := strings.Trim(strings.TrimSpace(c.BasePath), "/")
	if basePath == "" {
		basePath = strings.Trim(core.DefaultAPIBasePath, "/")
	}
	host := strings.TrimSuffix(strings.TrimSpace(creds.Platform), "/")
	return scheme + "://" + host + "/" + basePath + "/", nil
}

// CollectionURI joins the lowercased collection name and the encoded query.
func (c *Client) CollectionURI(ctx context.Context, collection string, query *odata.Query) (string, error) {
	base, err := c.BaseURL(ctx)
	if err != nil {
		return "", err
	}
	collection = strings.ToLower(strings.Trim(strings.TrimSpace(collection), "/"))
	if collection == "" {
		return "", requestError("transport: collection name is required", nil)
	}
	uri := base + collection + "/"
	if query == nil {
		return uri, nil
	}
	encoded, err := query.Encode()
	if err != nil {
		return "", err
	}
	return uri + "?" + encoded, nil
}

// Collection fetches the first page of a collection.
func (c *Client) Collection(ctx context.Context, collection string, query *odata.Query) (resource.Document, Result, error) {
	uri, err := c.CollectionURI(ctx, collection, query)
	if err != nil {
		return resource.Document{}, Result{}, err
	}
	return c.Follow(ctx, uri)
}

// Follow fetches and deserializes an absolute resource or next-page href.
func (c *Client) Follow(ctx context.Context, href string) (resource.Document, Result, error) {
	if c == nil || c.Executor == nil {
		return resource.Document{}, Result{}, fmt.Errorf("transport: client is not configured")
	}
	result := c.Executor.Execute(ctx, Request{Method: http.MethodGet, URI: href})
	if err := result.Classify(); err != nil {
		return resource.Document{}, result, err
	}
	doc, err := c.Mapper.Deserialize(result.Body)
	if err != nil {
		return resource.Document{}, result, err
	}
	return doc, result, nil
}

// Resource fetches one resource by id, optionally with expansions.
func (c *Client) Resource(ctx context.Context, collection string, id int64, expands ...string) (resource.Document, Result, error) {
	base, err := c.BaseURL(ctx)
	if err != nil {
		return resource.Document{}, Result{}, err
	}
	collection = strings.ToLower(strings.Trim(strings.TrimSpace(collection), "/"))
	uri := base + collection + "/" + strconv.FormatInt(id, 10) + "/"
	if len(expands) > 0 {
		query := odata.New()
		for _, path := range expands {
			query.AddExpand(path)
		}
		uri += "?" + url.Values{"expand": {strings.Join(query.Expands(), ",")}}.Encode()
	}
	return c.Follow(ctx, uri)
}

// Patch applies a diff document to the resource at uri.
func (c *Client) Patch(ctx context.Context, uri string, patch *resource.Patch) (Result, error) {
	if c == nil || c.Executor == nil {
		return Result{}, fmt.Errorf("transport: client is not configured")
	}
	body, err := patch.Encode()
	if err != nil {
		return Result{}, err
	}
	result := c.Executor.Execute(ctx, Request{Method: http.MethodPatch, URI: uri, Body: body})
	return result, result.Classify()
}

// RegisterWebhookEndpoint provisions a push endpoint and returns the created
// endpoint, including the signing key the source generated for it.
func (c *Client) RegisterWebhookEndpoint(ctx context.Context, endpoint *resource.WebhookEndpoint) (*resource.WebhookEndpoint, error) {
	uri, err := c.CollectionURI(ctx, "WebhookEndpoints", nil)
	if err != nil {
		return nil, err
	}
	body, err := resource.EncodeWebhookEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	result := c.Executor.Execute(ctx, Request{Method: http.MethodPost, URI: uri, Body: body})
	if err := result.Classify(); err != nil {
		return nil, err
	}
	doc, err := c.Mapper.Deserialize(result.Body)
	if err != nil {
		return nil, err
	}
	created, ok := doc.Resource.(*resource.WebhookEndpoint)
	if !ok {
		return nil, core.NewError(core.ErrUnknownRootType,
			fmt.Sprintf("transport: expected WebhookEndpoint, got %s", doc.Root), nil)
	}
	return created, nil
}
