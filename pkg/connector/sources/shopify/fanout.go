package shopify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/clients"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/metrics"
)

// FanOut issues one secondary REST request per parent node, strictly
// sequentially with a fixed delay between items. A failed item is logged
// and skipped. Only cancellation of ctx stops the loop.
type FanOut struct {
	rc *RequestContext

	Resource   string
	APIVersion string
	// Endpoint formats the per-item endpoint from the parent id,
	// e.g. "pages/%s/metafields"
	Endpoint string
	// ItemsKey names the array in the per-item response
	ItemsKey string
	// ChildKey is where the fetched children are attached on the parent copy
	ChildKey string
	Limit    int
	Delay    time.Duration
	Timeout  time.Duration
}

// FanOutResult summarizes a fan-out
type FanOutResult struct {
	Parents []Node
	Items   int
	Skipped int
	// Requests counts the child requests actually issued, including extra pages
	Requests int
}

// Run fetches the children of every parent. Each returned node is a copy of
// its parent with the children attached under ChildKey.
func (f *FanOut) Run(ctx context.Context, parents []Node) (*FanOutResult, error) {
	result := &FanOutResult{Parents: make([]Node, 0, len(parents))}
	logger := f.rc.Logger.With(zap.String("resource", f.Resource))

	for i, parent := range parents {
		if i > 0 {
			if err := clients.Sleep(ctx, f.Delay); err != nil {
				return result, err
			}
		}

		id := core.Text(parent["id"])
		children, requests, err := f.fetch(ctx, id)
		result.Requests += requests
		if err != nil {
			if ctx.Err() != nil {
				return result, err
			}
			result.Skipped++
			metrics.FanOutSkipped.WithLabelValues(f.Resource).Inc()
			logger.Warn(fmt.Sprintf("⚠️ Request error for %s item %s, skipping", f.Resource, id), zap.Error(err))
			continue
		}

		out := make(Node, len(parent)+1)
		for k, v := range parent {
			out[k] = v
		}
		items := make([]interface{}, len(children))
		for j, c := range children {
			items[j] = map[string]interface{}(c)
		}
		out[f.ChildKey] = items
		result.Parents = append(result.Parents, out)
		result.Items += len(children)

		if (i+1)%50 == 0 {
			logger.Info("fan-out progress",
				zap.Int("done", i+1),
				zap.Int("total", len(parents)),
				zap.Int("items", result.Items))
		}
	}
	return result, nil
}

func (f *FanOut) fetch(ctx context.Context, id string) ([]Node, int, error) {
	pager := NewRESTPager(f.rc, RESTOptions{
		Resource:   f.Resource,
		Endpoint:   fmt.Sprintf(f.Endpoint, id),
		APIVersion: f.APIVersion,
		ItemsKey:   f.ItemsKey,
		Limit:      f.Limit,
		Timeout:    f.Timeout,
		Kind:       "fanout",
	})
	children, err := Collect(ctx, f.Resource, pager)
	return children, pager.Requests(), err
}
