package shopify

import (
	"context"
	"fmt"
	"time"

	"github.com/ohler55/ojg/jp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// GraphQLPager walks a GraphQL connection using the edges/node/pageInfo
// convention with {first, after} variables
type GraphQLPager struct {
	rc         *RequestContext
	resource   string
	url        string
	query      string
	connection jp.Expr
	variables  map[string]interface{}
	pageSize   int
	timeout    time.Duration

	after    interface{}
	done     bool
	requests int
}

// GraphQLOptions configures a GraphQLPager
type GraphQLOptions struct {
	Resource string
	URL      string
	Query    string
	// Connection locates the connection object in the response, e.g.
	// $.data.pages
	Connection jp.Expr
	// Variables are sent with every request in addition to first/after
	Variables map[string]interface{}
	PageSize  int
	Timeout   time.Duration
}

// NewGraphQLPager creates a pager positioned before the first page
func NewGraphQLPager(rc *RequestContext, opts GraphQLOptions) *GraphQLPager {
	return &GraphQLPager{
		rc:         rc,
		resource:   opts.Resource,
		url:        opts.URL,
		query:      opts.Query,
		connection: opts.Connection,
		variables:  opts.Variables,
		pageSize:   opts.PageSize,
		timeout:    opts.Timeout,
	}
}

// Next implements Pager
func (p *GraphQLPager) Next(ctx context.Context) (*Page, error) {
	if p.done {
		return nil, errors.New(errors.ErrorTypeInternal, p.resource+": pager already exhausted")
	}

	vars := make(map[string]interface{}, len(p.variables)+2)
	for k, v := range p.variables {
		vars[k] = v
	}
	vars["first"] = p.pageSize
	vars["after"] = p.after

	p.requests++
	doc, err := p.rc.postGraphQL(ctx, p.resource, "graphql", p.url, p.query, vars, p.timeout)
	if err != nil {
		p.done = true
		return nil, err
	}

	page, err := readConnection(p.resource, p.connection, doc)
	if err != nil {
		p.done = true
		return nil, err
	}

	p.rc.Logger.Debug("page fetched",
		zap.String("resource", p.resource),
		zap.Int("nodes", len(page.Nodes)),
		zap.Bool("has_next_page", page.HasNextPage))

	if page.last() {
		p.done = true
	} else {
		p.after = page.EndCursor
	}
	return page, nil
}

// Done implements Pager
func (p *GraphQLPager) Done() bool { return p.done }

// Requests implements Pager
func (p *GraphQLPager) Requests() int { return p.requests }

// readConnection extracts edges[].node and pageInfo from the connection at path
func readConnection(resource string, path jp.Expr, doc map[string]interface{}) (*Page, error) {
	conn, ok := path.First(doc).(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.ErrorTypeDecode, fmt.Sprintf("%s: connection %s missing from response", resource, path))
	}

	page := &Page{}
	edges, _ := conn["edges"].([]interface{})
	for _, e := range edges {
		edge, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		if node, ok := edge["node"].(map[string]interface{}); ok {
			page.Nodes = append(page.Nodes, Node(node))
		}
	}

	info, _ := conn["pageInfo"].(map[string]interface{})
	page.HasNextPage, _ = info["hasNextPage"].(bool)
	page.EndCursor, _ = info["endCursor"].(string)

	if page.HasNextPage && len(page.Nodes) > 0 && page.EndCursor == "" {
		return nil, errors.New(errors.ErrorTypeDecode, fmt.Sprintf("%s: hasNextPage without endCursor", resource))
	}
	return page, nil
}
