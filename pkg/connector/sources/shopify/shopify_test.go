package shopify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/json"
)

// fakeShop records every request and answers through handle
type fakeShop struct {
	t      *testing.T
	mu     sync.Mutex
	calls  []recordedCall
	handle func(w http.ResponseWriter, call recordedCall)
	server *httptest.Server
}

type recordedCall struct {
	Method    string
	Path      string
	RawQuery  string
	Token     string
	Query     string
	Variables map[string]interface{}
}

func newFakeShop(t *testing.T, handle func(w http.ResponseWriter, call recordedCall)) *fakeShop {
	f := &fakeShop{t: t, handle: handle}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := recordedCall{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Token:    r.Header.Get(accessTokenHeader),
		}
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			var payload struct {
				Query     string                 `json:"query"`
				Variables map[string]interface{} `json:"variables"`
			}
			assert.NoError(t, json.Unmarshal(body, &payload))
			call.Query = payload.Query
			call.Variables = payload.Variables
		}
		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.mu.Unlock()
		f.handle(w, call)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeShop) Calls() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeShop) source(logger *zap.Logger) *Source {
	return f.sourceWithCreds(config.StaticCredentials{Domain: "https://test-shop.myshopify.com/", Token: "shpat_test"}, logger)
}

func (f *fakeShop) sourceWithCreds(creds config.CredentialSource, logger *zap.Logger) *Source {
	settings := Settings{
		APIVersion:     "2024-01",
		B2BAPIVersion:  "2025-10",
		PageSize:       2,
		RESTPageSize:   250,
		RequestTimeout: 5 * time.Second,
		GraphQLTimeout: 5 * time.Second,
		FanOutTimeout:  5 * time.Second,
		BaseURL:        f.server.URL,
		Partner: config.PartnerConfig{
			OrganizationID: "1234",
			AccessToken:    "prtapi_test",
			APIVersion:     "2024-01",
			BaseURL:        f.server.URL,
		},
	}
	return NewSource(DefaultCatalog(), creds, f.server.Client(), settings, logger)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	data, _ := json.Marshal(v)
	_, _ = w.Write(data)
}

func connection(name string, hasNext bool, cursor string, nodes ...map[string]interface{}) map[string]interface{} {
	edges := make([]interface{}, len(nodes))
	for i, n := range nodes {
		edges[i] = map[string]interface{}{"node": n}
	}
	var end interface{}
	if cursor != "" {
		end = cursor
	}
	return map[string]interface{}{
		"data": map[string]interface{}{
			name: map[string]interface{}{
				"edges":    edges,
				"pageInfo": map[string]interface{}{"hasNextPage": hasNext, "endCursor": end},
			},
		},
	}
}

func page(id int) map[string]interface{} {
	return map[string]interface{}{
		"id":        fmt.Sprintf("gid://shopify/Page/%d", id),
		"title":     fmt.Sprintf("Page %d", id),
		"handle":    fmt.Sprintf("page-%d", id),
		"createdAt": "2025-10-01T00:00:00Z",
		"updatedAt": "2025-10-02T00:00:00Z",
	}
}

func TestGraphQLTwoPages(t *testing.T) {
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		if call.Variables["after"] == nil {
			writeJSON(w, connection("pages", true, "cursor-1", page(1), page(2)))
			return
		}
		writeJSON(w, connection("pages", false, "cursor-2", page(3), page(4), page(5)))
	})

	ex, err := shop.source(zaptest.NewLogger(t)).Extract(context.Background(), "pages", Window{})
	require.NoError(t, err)

	calls := shop.Calls()
	require.Len(t, calls, 2, "no request after hasNextPage=false")
	assert.Equal(t, "/admin/api/2024-01/graphql.json", calls[0].Path)
	assert.Equal(t, "shpat_test", calls[0].Token)
	assert.Nil(t, calls[0].Variables["after"])
	assert.Equal(t, "cursor-1", calls[1].Variables["after"])
	assert.Equal(t, json.Number("2"), calls[1].Variables["first"])

	rows := ex.Rows["pages"]
	require.Len(t, rows, 5)
	assert.Equal(t, 2, ex.Requests)
	assert.Equal(t, core.Row{
		"id":         "gid://shopify/Page/3",
		"title":      "Page 3",
		"handle":     "page-3",
		"created_at": "2025-10-01T00:00:00Z",
		"updated_at": "2025-10-02T00:00:00Z",
	}, rows[2])
	assert.Equal(t, []core.Table{{Name: "pages", Columns: []string{"id", "title", "handle", "created_at", "updated_at"}}}, ex.Tables)
}

func TestGraphQLStopsOnEmptyPage(t *testing.T) {
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		writeJSON(w, connection("blogs", true, "cursor-x"))
	})

	ex, err := shop.source(zaptest.NewLogger(t)).Extract(context.Background(), "blogs", Window{})
	require.NoError(t, err)
	assert.Len(t, shop.Calls(), 1)
	assert.Empty(t, ex.Rows["blogs"])
	assert.Contains(t, ex.Rows, "blogs", "empty tables are still present")
}

func TestGraphQLErrorsOnHTTP200(t *testing.T) {
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		writeJSON(w, map[string]interface{}{
			"data":   nil,
			"errors": []interface{}{map[string]interface{}{"message": "Access denied for companies field."}},
		})
	})

	ex, err := shop.source(zaptest.NewLogger(t)).Extract(context.Background(), "b2b_companies", Window{})
	require.Error(t, err)
	assert.Nil(t, ex)
	assert.True(t, errors.IsType(err, errors.ErrorTypeGraphQL))
	assert.Contains(t, err.Error(), "Access denied")
	assert.Equal(t, "/admin/api/2025-10/graphql.json", shop.Calls()[0].Path)
}

func TestHTTPStatusAbortsResource(t *testing.T) {
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		if call.Variables["after"] == nil {
			writeJSON(w, connection("articles", true, "c1", page(1)))
			return
		}
		http.Error(w, `{"errors":"Internal error"}`, http.StatusInternalServerError)
	})

	ex, err := shop.source(zaptest.NewLogger(t)).Extract(context.Background(), "articles", Window{})
	require.Error(t, err)
	assert.Nil(t, ex, "no partial rows")
	assert.True(t, errors.IsType(err, errors.ErrorTypeHTTPStatus))
	assert.Len(t, shop.Calls(), 2)
}

func TestMalformedBody(t *testing.T) {
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})

	_, err := shop.source(zaptest.NewLogger(t)).Extract(context.Background(), "pages", Window{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeDecode))
}

func TestMissingCredentialsMakesNoRequests(t *testing.T) {
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		t.Errorf("unexpected request %s", call.Path)
	})
	src := shop.sourceWithCreds(config.StaticCredentials{Domain: "test-shop.myshopify.com"}, zaptest.NewLogger(t))

	for _, name := range []string{"pages", "orders", "inventory_levels", "pages_metafields"} {
		_, err := src.Extract(context.Background(), name, Window{})
		assert.True(t, errors.IsType(err, errors.ErrorTypeCredentials), name)
	}
	assert.Empty(t, shop.Calls())
}

func TestUnknownResource(t *testing.T) {
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {})
	_, err := shop.source(zaptest.NewLogger(t)).Extract(context.Background(), "gift_cards", Window{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestRESTCoreFollowsLinkHeader(t *testing.T) {
	var shop *fakeShop
	shop = newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		if !strings.Contains(call.RawQuery, "page_info") {
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/orders.json?limit=250&page_info=abc>; rel="next"`, shop.server.URL))
			writeJSON(w, map[string]interface{}{"orders": []interface{}{
				map[string]interface{}{
					"id":       7001,
					"name":     "#1001",
					"customer": map[string]interface{}{"id": 42},
					"line_items": []interface{}{
						map[string]interface{}{"id": 1, "sku": "A", "quantity": 2},
						map[string]interface{}{"id": 2, "sku": "B", "quantity": 1},
					},
				},
			}})
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/orders.json?limit=250&page_info=zzz>; rel="previous"`, shop.server.URL))
		writeJSON(w, map[string]interface{}{"orders": []interface{}{
			map[string]interface{}{"id": 7002, "name": "#1002", "line_items": []interface{}{}},
		}})
	})

	window := Window{
		UpdatedAtMin: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAtMax: time.Date(2025, 10, 8, 0, 0, 0, 0, time.UTC),
		CreatedAtMin: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	ex, err := shop.source(zaptest.NewLogger(t)).Extract(context.Background(), "orders", window)
	require.NoError(t, err)

	calls := shop.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/admin/api/2024-01/orders.json", calls[0].Path)
	assert.Contains(t, calls[0].RawQuery, "status=any")
	assert.Contains(t, calls[0].RawQuery, "updated_at_min=2025-10-01T00%3A00%3A00Z")
	assert.Contains(t, calls[0].RawQuery, "updated_at_max=2025-10-08T00%3A00%3A00Z")
	assert.Contains(t, calls[0].RawQuery, "created_at_min=2025-10-01T00%3A00%3A00Z")
	assert.Equal(t, "limit=250&page_info=abc", calls[1].RawQuery, "next link used verbatim")

	require.Len(t, ex.Rows["orders"], 2)
	assert.Equal(t, json.Number("42"), ex.Rows["orders"][0]["customer_id"])
	assert.Nil(t, ex.Rows["orders"][1]["customer_id"], "absent nested object flattens to nil")
	require.Len(t, ex.Rows["orders__line_items"], 2)
	assert.Equal(t, json.Number("7001"), ex.Rows["orders__line_items"][1]["order_id"])
	assert.Equal(t, "B", ex.Rows["orders__line_items"][1]["sku"])
}

func TestFanOutSkipsFailedItems(t *testing.T) {
	obs, logs := observer.New(zapcore.WarnLevel)
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		switch call.Path {
		case "/admin/api/2024-01/pages.json":
			writeJSON(w, map[string]interface{}{"pages": []interface{}{
				map[string]interface{}{"id": 11},
				map[string]interface{}{"id": 12},
				map[string]interface{}{"id": 13},
			}})
		case "/admin/api/2024-01/pages/12/metafields.json":
			http.Error(w, "boom", http.StatusBadGateway)
		default:
			writeJSON(w, map[string]interface{}{"metafields": []interface{}{
				map[string]interface{}{"id": 900, "namespace": "custom", "key": "subtitle", "value": "hello"},
			}})
		}
	})

	ex, err := shop.source(zap.New(obs)).Extract(context.Background(), "pages_metafields", Window{})
	require.NoError(t, err)

	assert.Len(t, shop.Calls(), 4)
	rows := ex.Rows["pages_metafields"]
	require.Len(t, rows, 2)
	assert.Equal(t, json.Number("11"), rows[0]["page_id"])
	assert.Equal(t, json.Number("13"), rows[1]["page_id"])
	assert.Equal(t, "subtitle", rows[1]["key"])
	assert.Nil(t, rows[1]["owner_resource"])
	assert.Equal(t, 1, ex.Skipped)
	assert.Equal(t, 1, logs.FilterMessageSnippet("skipping").Len())
}

func TestFanOutDelayBetweenItems(t *testing.T) {
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		if call.Path == "/admin/api/2024-01/custom_collections.json" {
			writeJSON(w, map[string]interface{}{"custom_collections": []interface{}{
				map[string]interface{}{"id": 1}, map[string]interface{}{"id": 2}, map[string]interface{}{"id": 3},
			}})
			return
		}
		writeJSON(w, map[string]interface{}{"metafields": []interface{}{}})
	})
	src := shop.source(zaptest.NewLogger(t))
	src.settings.FanOutDelay = 20 * time.Millisecond

	start := time.Now()
	ex, err := src.Extract(context.Background(), "collections_metafields", Window{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Empty(t, ex.Rows["collections_metafields"])
}

func TestFanOutFailedItemPausesOnce(t *testing.T) {
	const delay = 100 * time.Millisecond
	var mu sync.Mutex
	seen := map[string]time.Time{}
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		if call.Path == "/admin/api/2024-01/custom_collections.json" {
			writeJSON(w, map[string]interface{}{"custom_collections": []interface{}{
				map[string]interface{}{"id": 1}, map[string]interface{}{"id": 2}, map[string]interface{}{"id": 3},
			}})
			return
		}
		mu.Lock()
		seen[call.Path] = time.Now()
		mu.Unlock()
		if call.Path == "/admin/api/2024-01/collections/2/metafields.json" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"metafields": []interface{}{}})
	})
	src := shop.source(zap.NewNop())
	src.settings.FanOutDelay = delay

	ex, err := src.Extract(context.Background(), "collections_metafields", Window{})
	require.NoError(t, err)
	assert.Equal(t, 1, ex.Skipped)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	afterFailure := seen["/admin/api/2024-01/collections/3/metafields.json"].Sub(seen["/admin/api/2024-01/collections/2/metafields.json"])
	assert.GreaterOrEqual(t, afterFailure, delay)
	assert.Less(t, afterFailure, 2*delay-20*time.Millisecond)
}

func TestFanOutCountsChildPages(t *testing.T) {
	var shop *fakeShop
	shop = newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		switch call.Path {
		case "/admin/api/2024-01/pages.json":
			writeJSON(w, map[string]interface{}{"pages": []interface{}{
				map[string]interface{}{"id": 11},
				map[string]interface{}{"id": 12},
			}})
		case "/admin/api/2024-01/pages/11/metafields.json":
			if !strings.Contains(call.RawQuery, "page_info") {
				w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/pages/11/metafields.json?limit=250&page_info=p2>; rel="next"`, shop.server.URL))
				writeJSON(w, map[string]interface{}{"metafields": []interface{}{
					map[string]interface{}{"id": 901, "namespace": "custom", "key": "a", "value": "1"},
				}})
				return
			}
			writeJSON(w, map[string]interface{}{"metafields": []interface{}{
				map[string]interface{}{"id": 902, "namespace": "custom", "key": "b", "value": "2"},
			}})
		default:
			writeJSON(w, map[string]interface{}{"metafields": []interface{}{
				map[string]interface{}{"id": 903, "namespace": "custom", "key": "c", "value": "3"},
			}})
		}
	})

	ex, err := shop.source(zaptest.NewLogger(t)).Extract(context.Background(), "pages_metafields", Window{})
	require.NoError(t, err)

	assert.Len(t, shop.Calls(), 4)
	assert.Equal(t, 4, ex.Requests)
	assert.Len(t, ex.Rows["pages_metafields"], 3)
}

func TestInventoryLevels(t *testing.T) {
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		if strings.Contains(call.Query, "locations(first: 1)") {
			writeJSON(w, connection("locations", false, "",
				map[string]interface{}{"id": "gid://shopify/Location/1", "name": "Head Office"}))
			return
		}
		assert.Equal(t, "gid://shopify/Location/1", call.Variables["locationId"])
		writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"location": connection("inventoryLevels", false, "", map[string]interface{}{
			"id": "gid://shopify/InventoryLevel/1",
			"quantities": []interface{}{
				map[string]interface{}{"name": "available", "quantity": 5},
				map[string]interface{}{"name": "on_hand", "quantity": 7},
			},
			"item": map[string]interface{}{"id": "gid://shopify/InventoryItem/9", "sku": "SKU-9"},
		})["data"]}})
	})

	ex, err := shop.source(zaptest.NewLogger(t)).Extract(context.Background(), "inventory_levels", Window{})
	require.NoError(t, err)

	rows := ex.Rows["inventory_levels"]
	require.Len(t, rows, 1)
	assert.Equal(t, json.Number("5"), rows[0]["available"])
	assert.Equal(t, json.Number("7"), rows[0]["on_hand"])
	assert.Nil(t, rows[0]["incoming"])
	assert.Equal(t, "SKU-9", rows[0]["sku"])
	assert.Equal(t, "gid://shopify/Location/1", rows[0]["location_id"])
	assert.Equal(t, "Head Office", rows[0]["location_name"])
	assert.Equal(t, 2, ex.Requests)
}

func TestInventoryWithoutLocationsFails(t *testing.T) {
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		writeJSON(w, connection("locations", false, ""))
	})

	_, err := shop.source(zaptest.NewLogger(t)).Extract(context.Background(), "inventory_levels", Window{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Len(t, shop.Calls(), 1)
}

func TestPartnerTransactions(t *testing.T) {
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		assert.Equal(t, "/1234/api/2024-01/graphql.json", call.Path)
		assert.Equal(t, "prtapi_test", call.Token)
		var edges []interface{}
		switch call.Variables["after"] {
		case nil:
			edges = []interface{}{
				map[string]interface{}{"cursor": "a", "node": map[string]interface{}{"id": "t1", "__typename": "AppSale"}},
				map[string]interface{}{"cursor": "b", "node": map[string]interface{}{"id": "t2", "__typename": "AppSale"}},
			}
		case "b":
			edges = []interface{}{
				map[string]interface{}{"cursor": "c", "node": map[string]interface{}{"id": "t3", "__typename": "ServiceSale"}},
			}
		}
		writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"transactions": map[string]interface{}{"edges": edges}}})
	})

	ex, err := shop.source(zaptest.NewLogger(t)).Extract(context.Background(), "partner_transactions", Window{})
	require.NoError(t, err)

	calls := shop.Calls()
	require.Len(t, calls, 3, "walk ends on the first empty page")
	assert.Equal(t, "c", calls[2].Variables["after"])
	rows := ex.Rows["partner_transactions"]
	require.Len(t, rows, 3)
	assert.Equal(t, "ServiceSale", rows[2]["type"])
}

func TestPartnerWithoutCredentials(t *testing.T) {
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {})
	src := shop.source(zaptest.NewLogger(t))
	src.settings.Partner.AccessToken = ""

	_, err := src.Extract(context.Background(), "partner_transactions", Window{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeCredentials))
	assert.Empty(t, shop.Calls())
}

func TestCanceledContext(t *testing.T) {
	shop := newFakeShop(t, func(w http.ResponseWriter, call recordedCall) {
		writeJSON(w, connection("pages", true, "c", page(1)))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := shop.source(zaptest.NewLogger(t)).Extract(ctx, "pages", Window{})
	assert.Equal(t, errors.ErrorTypeCanceled, errors.TypeOf(err))
}
