package shopify

import (
	"context"
	"fmt"
	"time"

	"github.com/ohler55/ojg/jp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// DefaultPartnerBaseURL is the Partner API host
const DefaultPartnerBaseURL = "https://partners.shopify.com"

// PartnerURL returns the Partner GraphQL endpoint for an organization
func PartnerURL(baseURL, organizationID, version string) string {
	if baseURL == "" {
		baseURL = DefaultPartnerBaseURL
	}
	return fmt.Sprintf("%s/%s/api/%s/graphql.json", baseURL, organizationID, version)
}

// PartnerPager walks a Partner API query whose items and cursor are located
// by JSONPath rather than the edges/pageInfo convention. The walk ends when
// a page yields no items or no cursor.
type PartnerPager struct {
	rc             *RequestContext
	resource       string
	url            string
	query          string
	items          jp.Expr
	cursor         jp.Expr
	cursorVariable string
	pageSize       int
	timeout        time.Duration

	variables map[string]interface{}
	done      bool
	requests  int
}

// PartnerOptions configures a PartnerPager
type PartnerOptions struct {
	Resource string
	URL      string
	Query    string
	// ItemsPath selects the items, e.g. $.data.transactions.edges[*].node
	ItemsPath jp.Expr
	// CursorPath selects the next cursor, e.g. $.data.transactions.edges[-1].cursor
	CursorPath jp.Expr
	// CursorVariable is the query variable receiving the cursor
	CursorVariable string
	PageSize       int
	Timeout        time.Duration
}

// NewPartnerPager creates a pager positioned before the first page
func NewPartnerPager(rc *RequestContext, opts PartnerOptions) *PartnerPager {
	variable := opts.CursorVariable
	if variable == "" {
		variable = "after"
	}
	vars := map[string]interface{}{variable: nil}
	if opts.PageSize > 0 {
		vars["first"] = opts.PageSize
	}
	return &PartnerPager{
		rc:             rc,
		resource:       opts.Resource,
		url:            opts.URL,
		query:          opts.Query,
		items:          opts.ItemsPath,
		cursor:         opts.CursorPath,
		cursorVariable: variable,
		pageSize:       opts.PageSize,
		timeout:        opts.Timeout,
		variables:      vars,
	}
}

// Next implements Pager
func (p *PartnerPager) Next(ctx context.Context) (*Page, error) {
	if p.done {
		return nil, errors.New(errors.ErrorTypeInternal, p.resource+": pager already exhausted")
	}

	p.requests++
	doc, err := p.rc.postGraphQL(ctx, p.resource, "partner", p.url, p.query, p.variables, p.timeout)
	if err != nil {
		p.done = true
		return nil, err
	}

	page := &Page{Nodes: toNodes(p.items.Get(doc))}
	if cursors := p.cursor.Get(doc); len(cursors) > 0 {
		page.EndCursor, _ = cursors[len(cursors)-1].(string)
	}
	page.HasNextPage = page.EndCursor != ""

	p.rc.Logger.Debug("page fetched",
		zap.String("resource", p.resource),
		zap.Int("nodes", len(page.Nodes)))

	if page.last() {
		p.done = true
	} else {
		p.variables[p.cursorVariable] = page.EndCursor
	}
	return page, nil
}

// Done implements Pager
func (p *PartnerPager) Done() bool { return p.done }

// Requests implements Pager
func (p *PartnerPager) Requests() int { return p.requests }
