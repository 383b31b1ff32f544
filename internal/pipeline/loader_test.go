package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/connector/destinations/memory"
	"github.com/ajitpratap0/shopsync/pkg/connector/sources/shopify"
	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// extraction builds a one-table extraction with n rows
func extraction(name string, n int) *shopify.Extraction {
	rows := make([]core.Row, n)
	for i := range rows {
		rows[i] = core.Row{"id": fmt.Sprintf("%s-%d", name, i)}
	}
	return &shopify.Extraction{
		Resource: name,
		Tables:   []core.Table{{Name: name, Columns: []string{"id"}}},
		Rows:     map[string][]core.Row{name: rows},
		Nodes:    n,
	}
}

// failingDestination fails every submit to the named table
type failingDestination struct {
	*memory.Destination
	table string
}

func (d *failingDestination) Submit(ctx context.Context, table core.Table, rows []core.Row, mode core.WriteMode) error {
	if table.Name == d.table {
		return fmt.Errorf("connection reset")
	}
	return d.Destination.Submit(ctx, table, rows, mode)
}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	obs, logs := observer.New(zapcore.DebugLevel)
	return zap.New(obs), logs
}

func TestLoaderSubmitsEveryTableOnce(t *testing.T) {
	dest := memory.New()
	log, logs := observed()
	loader := NewLoader(dest, log)

	ex := extraction("b2b_companies", 2)
	ex.Tables = append(ex.Tables, core.Table{Name: "b2b_main_contacts", Columns: []string{"contact_id"}})
	ex.Rows["b2b_main_contacts"] = []core.Row{}

	res := loader.Load(context.Background(), "b2b_companies", core.WriteReplace, func(context.Context) (*shopify.Extraction, error) {
		return ex, nil
	})

	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, map[string]int{"b2b_companies": 2, "b2b_main_contacts": 0}, res.Tables)

	subs := dest.Submissions()
	require.Len(t, subs, 2)
	assert.Equal(t, "b2b_companies", subs[0].Table.Name)
	assert.Equal(t, "b2b_main_contacts", subs[1].Table.Name)
	assert.True(t, dest.Has("b2b_main_contacts"))

	assert.Equal(t, 1, logs.FilterMessage("➡️ Starting loader: b2b_companies").Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("✅ Loader b2b_companies complete in").Len())
}

func TestLoaderSkipsWithoutCredentials(t *testing.T) {
	dest := memory.New()
	log, logs := observed()
	loader := NewLoader(dest, log)

	res := loader.Load(context.Background(), "pages", core.WriteReplace, func(context.Context) (*shopify.Extraction, error) {
		return nil, config.ErrMissingCredentials
	})

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, errors.ErrorTypeCredentials, res.ErrorKind)
	assert.Empty(t, dest.Submissions())

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "skipping pages")
}

func TestLoaderFailsOnRejectedTokenExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	creds := config.NewCredentialSource(config.ShopConfig{
		URL:          "a.myshopify.com",
		ClientID:     "id",
		ClientSecret: "bad",
		TokenURL:     srv.URL,
	}, srv.Client())

	dest := memory.New()
	log, logs := observed()
	res := NewLoader(dest, log).Load(context.Background(), "pages", core.WriteReplace, func(ctx context.Context) (*shopify.Extraction, error) {
		if _, err := creds.Credentials(ctx); err != nil {
			return nil, err
		}
		return extraction("pages", 1), nil
	})

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, errors.ErrorTypeAuth, res.ErrorKind)
	assert.Contains(t, res.Message, "client credentials exchange failed")
	assert.Empty(t, dest.Submissions())
	assert.Zero(t, logs.FilterMessageSnippet("Missing Shopify credentials").Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("❌ Loader pages failed after").Len())

	report := &RunReport{}
	report.Add(res)
	assert.True(t, report.Failed())
}

func TestLoaderFailureSubmitsNothing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errors.ErrorType
	}{
		{name: "graphql errors", err: errors.New(errors.ErrorTypeGraphQL, "pages: Access denied"), kind: errors.ErrorTypeGraphQL},
		{name: "http status", err: errors.New(errors.ErrorTypeHTTPStatus, "pages: HTTP 500"), kind: errors.ErrorTypeHTTPStatus},
		{name: "decode", err: errors.New(errors.ErrorTypeDecode, "pages: invalid character"), kind: errors.ErrorTypeDecode},
		{name: "plain error", err: fmt.Errorf("boom"), kind: errors.ErrorTypeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := memory.New()
			log, logs := observed()
			res := NewLoader(dest, log).Load(context.Background(), "pages", core.WriteReplace, func(context.Context) (*shopify.Extraction, error) {
				return nil, tt.err
			})

			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.NotEmpty(t, res.Message)
			assert.Zero(t, res.Rows)
			assert.Empty(t, dest.Submissions())
			assert.Equal(t, 1, logs.FilterMessageSnippet("❌ Loader pages failed after").Len())
		})
	}
}

func TestLoaderRecoversPanic(t *testing.T) {
	dest := memory.New()
	res := NewLoader(dest, zap.NewNop()).Load(context.Background(), "blogs", core.WriteReplace, func(context.Context) (*shopify.Extraction, error) {
		var m map[string]int
		m["x"] = 1
		return nil, nil
	})

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, errors.ErrorTypeInternal, res.ErrorKind)
	assert.True(t, strings.HasPrefix(res.Message, "panic:"))
	assert.Empty(t, dest.Submissions())
}

func TestLoaderDestinationFailure(t *testing.T) {
	dest := &failingDestination{Destination: memory.New(), table: "orders__line_items"}
	ex := extraction("orders", 1)
	ex.Tables = append(ex.Tables, core.Table{Name: "orders__line_items", Columns: []string{"id"}})
	ex.Rows["orders__line_items"] = []core.Row{{"id": 1}}

	res := NewLoader(dest, zap.NewNop()).Load(context.Background(), "orders", core.WriteReplace, func(context.Context) (*shopify.Extraction, error) {
		return ex, nil
	})

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, errors.ErrorTypeDestination, res.ErrorKind)
	assert.Contains(t, res.Message, "orders__line_items")
}

func TestLoaderIsSequentiallyReusable(t *testing.T) {
	dest := memory.New()
	loader := NewLoader(dest, zap.NewNop())

	var mu sync.Mutex
	calls := 0
	fn := func(context.Context) (*shopify.Extraction, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return extraction("pages", 3), nil
	}
	for i := 0; i < 3; i++ {
		assert.True(t, loader.Load(context.Background(), "pages", core.WriteReplace, fn).OK())
	}
	assert.Equal(t, 3, calls)
	assert.Len(t, dest.Rows("pages"), 3)
}
