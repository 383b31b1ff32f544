package shopify

import (
	"context"

	"github.com/ajitpratap0/shopsync/pkg/metrics"
)

// Node is one raw API entity before flattening
type Node map[string]interface{}

// Page is one API response worth of nodes
type Page struct {
	Nodes       []Node
	HasNextPage bool
	EndCursor   string
}

// last reports whether pagination must stop after this page. An empty
// page ends the walk even when the API claims there is more.
func (p *Page) last() bool {
	return !p.HasNextPage || len(p.Nodes) == 0
}

// Pager drives one endpoint through its pagination cursor. Pagers are
// forward-only and not restartable.
type Pager interface {
	// Next fetches the following page. It must not be called once Done
	// reports true.
	Next(ctx context.Context) (*Page, error)
	// Done reports whether the last page has been fetched
	Done() bool
	// Requests returns how many requests have been issued
	Requests() int
}

// Walk pulls every page from p and hands each node to fn. The first error,
// from the pager or from fn, stops the walk.
func Walk(ctx context.Context, resource string, p Pager, fn func(Node) error) (int, error) {
	total := 0
	for !p.Done() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		page, err := p.Next(ctx)
		if err != nil {
			return total, err
		}
		metrics.PagesFetched.WithLabelValues(resource).Inc()
		for _, node := range page.Nodes {
			if err := fn(node); err != nil {
				return total, err
			}
			total++
		}
	}
	return total, nil
}

// Collect walks p and returns every node
func Collect(ctx context.Context, resource string, p Pager) ([]Node, error) {
	var nodes []Node
	_, err := Walk(ctx, resource, p, func(n Node) error {
		nodes = append(nodes, n)
		return nil
	})
	return nodes, err
}

func toNodes(items []interface{}) []Node {
	nodes := make([]Node, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			nodes = append(nodes, Node(m))
		}
	}
	return nodes
}
