package shopify

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/clients"
	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// Settings are the extraction knobs taken from configuration
type Settings struct {
	APIVersion    string
	B2BAPIVersion string
	PageSize      int
	RESTPageSize  int
	FanOutDelay   time.Duration

	RequestTimeout time.Duration
	GraphQLTimeout time.Duration
	FanOutTimeout  time.Duration

	Partner config.PartnerConfig

	// BaseURL replaces https://{shop domain} when set
	BaseURL string
}

// SettingsFromConfig maps configuration onto extraction settings
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		APIVersion:     cfg.Shop.APIVersion,
		B2BAPIVersion:  cfg.Shop.B2BAPIVersion,
		PageSize:       cfg.Extraction.PageSize,
		RESTPageSize:   cfg.Extraction.RESTPageSize,
		FanOutDelay:    cfg.Extraction.FanOutDelay,
		RequestTimeout: cfg.Timeouts.Request,
		GraphQLTimeout: cfg.Timeouts.GraphQL,
		FanOutTimeout:  cfg.Timeouts.FanOutItem,
		Partner:        cfg.Partner,
	}
}

// Window bounds a core entity extraction. Zero times are omitted from the
// request.
type Window struct {
	UpdatedAtMin time.Time
	UpdatedAtMax time.Time
	CreatedAtMin time.Time
}

func (w Window) apply(q url.Values) {
	if !w.UpdatedAtMin.IsZero() {
		q.Set("updated_at_min", w.UpdatedAtMin.UTC().Format(time.RFC3339))
	}
	if !w.UpdatedAtMax.IsZero() {
		q.Set("updated_at_max", w.UpdatedAtMax.UTC().Format(time.RFC3339))
	}
	if !w.CreatedAtMin.IsZero() {
		q.Set("created_at_min", w.CreatedAtMin.UTC().Format(time.RFC3339))
	}
}

// Extraction holds every row of one resource, grouped per table, in the
// order the tables are declared
type Extraction struct {
	Resource string
	Tables   []core.Table
	Rows     map[string][]core.Row
	Nodes    int
	Requests int
	Skipped  int
}

// RowCount returns the number of rows across all tables
func (e *Extraction) RowCount() int {
	n := 0
	for _, rows := range e.Rows {
		n += len(rows)
	}
	return n
}

func newExtraction(r *Resource) *Extraction {
	ex := &Extraction{
		Resource: r.Name,
		Tables:   make([]core.Table, len(r.Tables)),
		Rows:     make(map[string][]core.Row, len(r.Tables)),
	}
	for i, rule := range r.Tables {
		ex.Tables[i] = rule.Table()
		ex.Rows[rule.Name] = []core.Row{}
	}
	return ex
}

func (e *Extraction) add(r *Resource, node Node) {
	e.Nodes++
	for _, rule := range r.Tables {
		e.Rows[rule.Name] = append(e.Rows[rule.Name], Flatten(node, rule)...)
	}
}

// Source extracts catalog resources from one shop
type Source struct {
	catalog  Catalog
	creds    config.CredentialSource
	client   clients.Doer
	settings Settings
	logger   *zap.Logger
}

// NewSource creates a Shopify source
func NewSource(catalog Catalog, creds config.CredentialSource, client clients.Doer, settings Settings, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		catalog:  catalog,
		creds:    creds,
		client:   client,
		settings: settings,
		logger:   logger.With(zap.String("component", "shopify_source")),
	}
}

// Catalog returns the resources this source can extract
func (s *Source) Catalog() Catalog {
	return s.catalog
}

// Extract pulls every node of the named resource and flattens it. Rows are
// only returned when the whole resource was read; any pagination failure
// returns an error and no rows. Missing credentials return
// config.ErrMissingCredentials before any API request.
func (s *Source) Extract(ctx context.Context, name string, window Window) (*Extraction, error) {
	res, err := s.catalog.Get(name)
	if err != nil {
		return nil, err
	}

	rc, err := s.requestContext(ctx, res)
	if err != nil {
		return nil, err
	}

	ex := newExtraction(res)
	switch res.Kind {
	case KindGraphQL:
		err = s.extractGraphQL(ctx, rc, res, ex)
	case KindREST:
		err = s.extractREST(ctx, rc, res, window, ex)
	case KindFanOut:
		err = s.extractFanOut(ctx, rc, res, ex)
	case KindInventory:
		err = s.extractInventory(ctx, rc, res, ex)
	case KindPartner:
		err = s.extractPartner(ctx, rc, res, ex)
	default:
		err = errors.New(errors.ErrorTypeValidation, fmt.Sprintf("%s: unsupported resource kind %q", res.Name, res.Kind))
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info(fmt.Sprintf("✅ Finished loading %d %s", ex.Nodes, res.Name),
		zap.Int("rows", ex.RowCount()),
		zap.Int("requests", ex.Requests),
		zap.Int("skipped", ex.Skipped))
	return ex, nil
}

func (s *Source) requestContext(ctx context.Context, res *Resource) (*RequestContext, error) {
	if res.Kind == KindPartner {
		p := s.settings.Partner
		if p.OrganizationID == "" || p.AccessToken == "" {
			return nil, errors.New(errors.ErrorTypeCredentials, "partner organization id or access token not configured")
		}
		rc := NewRequestContext("", p.AccessToken, s.client, s.logger)
		rc.BaseURL = p.BaseURL
		if rc.BaseURL == "" {
			rc.BaseURL = DefaultPartnerBaseURL
		}
		return rc, nil
	}

	creds, err := s.creds.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	rc := NewRequestContext(creds.Domain, creds.Token, s.client, s.logger)
	if s.settings.BaseURL != "" {
		rc.BaseURL = s.settings.BaseURL
	}
	return rc, nil
}

func (s *Source) version(res *Resource) string {
	if res.Version == B2BVersion {
		return s.settings.B2BAPIVersion
	}
	return s.settings.APIVersion
}

func (s *Source) extractGraphQL(ctx context.Context, rc *RequestContext, res *Resource, ex *Extraction) error {
	pager := NewGraphQLPager(rc, GraphQLOptions{
		Resource:   res.Name,
		URL:        rc.GraphQLURL(s.version(res)),
		Query:      res.Query,
		Connection: res.Connection,
		PageSize:   s.settings.PageSize,
		Timeout:    s.settings.RequestTimeout,
	})
	_, err := Walk(ctx, res.Name, pager, func(n Node) error {
		ex.add(res, n)
		return nil
	})
	ex.Requests += pager.Requests()
	return err
}

func (s *Source) extractREST(ctx context.Context, rc *RequestContext, res *Resource, window Window, ex *Extraction) error {
	params := url.Values{}
	for k, v := range res.Params {
		params.Set(k, v)
	}
	if res.Core {
		window.apply(params)
	}
	pager := NewRESTPager(rc, RESTOptions{
		Resource:   res.Name,
		Endpoint:   res.Endpoint,
		APIVersion: s.version(res),
		ItemsKey:   res.ItemsKey,
		Limit:      s.settings.RESTPageSize,
		Params:     params,
		Timeout:    s.settings.RequestTimeout,
	})
	_, err := Walk(ctx, res.Name, pager, func(n Node) error {
		ex.add(res, n)
		return nil
	})
	ex.Requests += pager.Requests()
	return err
}

func (s *Source) extractFanOut(ctx context.Context, rc *RequestContext, res *Resource, ex *Extraction) error {
	params := url.Values{}
	for k, v := range res.Params {
		params.Set(k, v)
	}
	listing := NewRESTPager(rc, RESTOptions{
		Resource:   res.Name,
		Endpoint:   res.Endpoint,
		APIVersion: s.version(res),
		ItemsKey:   res.ItemsKey,
		Limit:      s.settings.RESTPageSize,
		Params:     params,
		Timeout:    s.settings.RequestTimeout,
	})
	parents, err := Collect(ctx, res.Name, listing)
	ex.Requests += listing.Requests()
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		s.logger.Warn(fmt.Sprintf("⚠️ No %s found; nothing to fan out", res.ItemsKey), zap.String("resource", res.Name))
		return nil
	}

	fan := &FanOut{
		rc:         rc,
		Resource:   res.Name,
		APIVersion: s.version(res),
		Endpoint:   res.Children.Endpoint,
		ItemsKey:   res.Children.ItemsKey,
		ChildKey:   res.Children.ItemsKey,
		Limit:      s.settings.RESTPageSize,
		Delay:      s.settings.FanOutDelay,
		Timeout:    s.settings.FanOutTimeout,
	}
	result, err := fan.Run(ctx, parents)
	ex.Requests += result.Requests
	if err != nil {
		return err
	}
	ex.Skipped = result.Skipped
	for _, p := range result.Parents {
		ex.add(res, p)
	}
	return nil
}

func (s *Source) extractInventory(ctx context.Context, rc *RequestContext, res *Resource, ex *Extraction) error {
	endpoint := rc.GraphQLURL(s.version(res))

	ex.Requests++
	doc, err := rc.postGraphQL(ctx, res.Name, "graphql", endpoint, locationsQuery, nil, s.settings.RequestTimeout)
	if err != nil {
		return err
	}
	locations, err := readConnection(res.Name, locationsPath, doc)
	if err != nil {
		return err
	}
	if len(locations.Nodes) == 0 {
		return errors.New(errors.ErrorTypeValidation, "no locations found, check the read_locations scope")
	}
	location := locations.Nodes[0]
	locationID := core.Text(location["id"])
	locationName := core.Text(location["name"])
	s.logger.Info(fmt.Sprintf("🏬 Using location: %s (%s)", locationName, locationID))

	pager := NewGraphQLPager(rc, GraphQLOptions{
		Resource:   res.Name,
		URL:        endpoint,
		Query:      res.Query,
		Connection: res.Connection,
		Variables:  map[string]interface{}{"locationId": locationID},
		PageSize:   s.settings.PageSize,
		Timeout:    s.settings.GraphQLTimeout,
	})
	_, err = Walk(ctx, res.Name, pager, func(n Node) error {
		n["location_id"] = locationID
		n["location_name"] = locationName
		ex.add(res, n)
		return nil
	})
	ex.Requests += pager.Requests()
	return err
}

func (s *Source) extractPartner(ctx context.Context, rc *RequestContext, res *Resource, ex *Extraction) error {
	p := s.settings.Partner
	pager := NewPartnerPager(rc, PartnerOptions{
		Resource:       res.Name,
		URL:            PartnerURL(rc.BaseURL, p.OrganizationID, p.APIVersion),
		Query:          res.Query,
		ItemsPath:      res.Connection,
		CursorPath:     res.CursorPath,
		CursorVariable: res.CursorVariable,
		PageSize:       s.settings.PageSize,
		Timeout:        s.settings.RequestTimeout,
	})
	_, err := Walk(ctx, res.Name, pager, func(n Node) error {
		ex.add(res, n)
		return nil
	})
	ex.Requests += pager.Requests()
	return err
}
