package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// RESTPager walks a legacy REST endpoint by following the Link header's
// rel="next" URL
type RESTPager struct {
	rc       *RequestContext
	resource string
	kind     string
	itemsKey string
	timeout  time.Duration

	next     string
	done     bool
	requests int
}

// RESTOptions configures a RESTPager
type RESTOptions struct {
	Resource string
	// Endpoint is relative to the Admin API base, without .json
	// (e.g. "pages", "collections/42/metafields")
	Endpoint   string
	APIVersion string
	// ItemsKey names the array holding the items (e.g. "custom_collections")
	ItemsKey string
	Limit    int
	Params   url.Values
	Timeout  time.Duration
	// Kind labels request metrics (rest or fanout)
	Kind string
}

// NewRESTPager creates a pager for the first page of an endpoint
func NewRESTPager(rc *RequestContext, opts RESTOptions) *RESTPager {
	q := url.Values{}
	for k, vs := range opts.Params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	first := fmt.Sprintf("%s/%s.json", rc.AdminURL(opts.APIVersion), opts.Endpoint)
	if len(q) > 0 {
		first += "?" + q.Encode()
	}
	kind := opts.Kind
	if kind == "" {
		kind = "rest"
	}
	return &RESTPager{
		rc:       rc,
		resource: opts.Resource,
		kind:     kind,
		itemsKey: opts.ItemsKey,
		timeout:  opts.Timeout,
		next:     first,
	}
}

// Next implements Pager
func (p *RESTPager) Next(ctx context.Context) (*Page, error) {
	if p.done {
		return nil, errors.New(errors.ErrorTypeInternal, p.resource+": pager already exhausted")
	}

	p.requests++
	doc, header, err := p.rc.get(ctx, p.resource, p.kind, p.next, p.timeout)
	if err != nil {
		p.done = true
		return nil, err
	}

	raw, ok := doc[p.itemsKey]
	if !ok {
		p.done = true
		return nil, errors.New(errors.ErrorTypeDecode, fmt.Sprintf("%s: response has no %q array", p.resource, p.itemsKey))
	}
	items, _ := raw.([]interface{})

	next := NextLink(header)
	page := &Page{
		Nodes:       toNodes(items),
		HasNextPage: next != "",
		EndCursor:   next,
	}

	p.rc.Logger.Debug("page fetched",
		zap.String("resource", p.resource),
		zap.Int("nodes", len(page.Nodes)),
		zap.Bool("has_next_page", page.HasNextPage))

	if page.last() {
		p.done = true
	} else {
		p.next = next
	}
	return page, nil
}

// Done implements Pager
func (p *RESTPager) Done() bool { return p.done }

// Requests implements Pager
func (p *RESTPager) Requests() int { return p.requests }

// NextLink returns the rel="next" URL of a Link header, or "" when there is
// none. The URL is used verbatim.
func NextLink(header http.Header) string {
	for _, value := range header.Values("Link") {
		for _, link := range strings.Split(value, ",") {
			parts := strings.Split(link, ";")
			if len(parts) < 2 {
				continue
			}
			target := strings.TrimSpace(parts[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			for _, param := range parts[1:] {
				key, val, found := strings.Cut(strings.TrimSpace(param), "=")
				if !found || !strings.EqualFold(strings.TrimSpace(key), "rel") {
					continue
				}
				for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(val), `"`)) {
					if strings.EqualFold(rel, "next") {
						return strings.Trim(target, "<>")
					}
				}
			}
		}
	}
	return ""
}
