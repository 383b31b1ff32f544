// Package shopify extracts Shopify Admin and Partner API resources into
// flat destination rows.
//
// Every resource is a declarative Resource descriptor (query or endpoint,
// connection path, flatten rules). One generic engine drives the matching
// pager through its cursor and flattens each node into rows for one or more
// tables. Requests share an explicit RequestContext rather than ambient
// state.
package shopify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/clients"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/json"
	"github.com/ajitpratap0/shopsync/pkg/metrics"
)

const accessTokenHeader = "X-Shopify-Access-Token"

// maxErrorBody bounds how much of a failed response is kept in the error
const maxErrorBody = 2048

// RequestContext carries everything a pager needs to issue requests: the
// base URL, the access token and the client. It is created per loader run
// from freshly resolved credentials.
type RequestContext struct {
	// BaseURL is scheme and host, e.g. https://shop.myshopify.com
	BaseURL string
	Token   string
	Client  clients.Doer
	Logger  *zap.Logger
}

// NewRequestContext builds a request context for a shop domain
func NewRequestContext(domain, token string, client clients.Doer, logger *zap.Logger) *RequestContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestContext{
		BaseURL: "https://" + domain,
		Token:   token,
		Client:  client,
		Logger:  logger,
	}
}

// AdminURL returns the REST base for an Admin API version
func (rc *RequestContext) AdminURL(version string) string {
	return fmt.Sprintf("%s/admin/api/%s", rc.BaseURL, version)
}

// GraphQLURL returns the Admin GraphQL endpoint for a version
func (rc *RequestContext) GraphQLURL(version string) string {
	return rc.AdminURL(version) + "/graphql.json"
}

// get issues a GET and returns the decoded body and response headers
func (rc *RequestContext) get(ctx context.Context, resource, kind, url string, timeout time.Duration) (map[string]interface{}, http.Header, error) {
	return rc.send(ctx, resource, kind, http.MethodGet, url, nil, timeout)
}

// postGraphQL sends {"query", "variables"} and returns the decoded body.
// A non-empty top-level errors array fails the call even on HTTP 200.
func (rc *RequestContext) postGraphQL(ctx context.Context, resource, kind, url, query string, variables map[string]interface{}, timeout time.Duration) (map[string]interface{}, error) {
	payload := map[string]interface{}{"query": query}
	if variables != nil {
		payload["variables"] = variables
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode GraphQL request")
	}

	doc, _, err := rc.send(ctx, resource, kind, http.MethodPost, url, body, timeout)
	if err != nil {
		return nil, err
	}

	if errs, ok := doc["errors"]; ok && !isEmpty(errs) {
		text, _ := json.Marshal(errs)
		return nil, errors.New(errors.ErrorTypeGraphQL,
			fmt.Sprintf("%s: GraphQL errors: %s", resource, truncate(string(text)))).
			WithDetail("resource", resource)
	}
	return doc, nil
}

func (rc *RequestContext) send(ctx context.Context, resource, kind, method, url string, body []byte, timeout time.Duration) (map[string]interface{}, http.Header, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create HTTP request")
	}
	req.Header.Set(accessTokenHeader, rc.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := rc.Client.Do(req)
	if err != nil {
		metrics.HTTPRequests.WithLabelValues(resource, kind, "error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, errors.Wrap(ctxErr, errors.TypeOf(ctxErr), fmt.Sprintf("%s: request to %s interrupted", resource, req.URL.Redacted()))
		}
		return nil, nil, errors.Wrap(err, errors.ErrorTypeTransport, fmt.Sprintf("%s: request to %s failed", resource, req.URL.Redacted()))
	}
	defer resp.Body.Close()

	metrics.HTTPRequests.WithLabelValues(resource, kind, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		errType := errors.ErrorTypeHTTPStatus
		if resp.StatusCode == http.StatusTooManyRequests {
			errType = errors.ErrorTypeRateLimit
		}
		return nil, nil, errors.New(errType,
			fmt.Sprintf("%s: %s returned status %d: %s", resource, req.URL.Redacted(), resp.StatusCode, truncate(string(snippet)))).
			WithDetail("status", resp.StatusCode)
	}

	var doc map[string]interface{}
	if err := json.Decode(resp.Body, &doc); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeDecode, fmt.Sprintf("%s: failed to decode response", resource))
	}
	if doc == nil {
		return nil, nil, errors.New(errors.ErrorTypeDecode, fmt.Sprintf("%s: response body is not a JSON object", resource))
	}
	return doc, resp.Header, nil
}

func isEmpty(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []interface{}:
		return len(x) == 0
	case map[string]interface{}:
		return len(x) == 0
	case string:
		return x == ""
	default:
		return false
	}
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
