package shopify

import (
	"fmt"
	"sort"

	"github.com/ohler55/ojg/jp"

	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// Kind selects the extraction engine for a resource
type Kind string

const (
	// KindGraphQL walks one Admin GraphQL connection
	KindGraphQL Kind = "graphql"
	// KindREST walks one REST endpoint through Link headers
	KindREST Kind = "rest"
	// KindFanOut lists parents over REST, then fetches children per parent
	KindFanOut Kind = "fanout"
	// KindInventory looks up the first location, then walks its inventory
	KindInventory Kind = "inventory"
	// KindPartner walks a Partner API query located by JSONPath
	KindPartner Kind = "partner"
)

// APIVersion selects which configured Admin API version a resource uses
type APIVersion int

const (
	// AdminVersion is shop.api_version
	AdminVersion APIVersion = iota
	// B2BVersion is shop.b2b_api_version
	B2BVersion
)

// Resource declares one extraction-to-table unit
type Resource struct {
	Name        string
	Description string
	Kind        Kind
	Version     APIVersion
	// Core resources take the updated/created window parameters
	Core bool

	// GraphQL, inventory and partner. For partner resources Connection
	// selects the items directly.
	Query      string
	Connection jp.Expr

	// REST and the parent listing of a fan-out
	Endpoint string
	ItemsKey string
	// Fixed extra query parameters
	Params map[string]string

	// Fan-out children
	Children *FanOutSpec

	// Partner
	CursorPath     jp.Expr
	CursorVariable string

	Tables []TableRule
}

// FanOutSpec declares the per-parent secondary request of a fan-out
type FanOutSpec struct {
	Endpoint string
	ItemsKey string
}

// Mode is the write mode for supplemental resources. Core resources receive
// their mode from the caller.
func (r *Resource) Mode() core.WriteMode {
	return core.WriteReplace
}

// TableNames returns the destination tables the resource produces
func (r *Resource) TableNames() []string {
	names := make([]string, len(r.Tables))
	for i, t := range r.Tables {
		names[i] = t.Name
	}
	return names
}

// Catalog is a lookup of resource descriptors by name
type Catalog map[string]*Resource

// Get returns the named resource
func (c Catalog) Get(name string) (*Resource, error) {
	r, ok := c[name]
	if !ok {
		return nil, errors.New(errors.ErrorTypeValidation, fmt.Sprintf("unknown resource %q", name))
	}
	return r, nil
}

// Names returns every resource name sorted
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CoreResources are the built-in entities, in their default order
var CoreResources = []string{"orders", "products", "customers"}

// SupplementalSequence returns the fixed order of supplemental loaders
func SupplementalSequence(includeProductsMetafields, includeCompanyLocations bool) []string {
	seq := []string{"pages", "pages_metafields", "collections_metafields"}
	if includeProductsMetafields {
		seq = append(seq, "products_metafields")
	}
	seq = append(seq, "blogs", "articles", "inventory_levels", "b2b_companies")
	if includeCompanyLocations {
		seq = append(seq, "b2b_company_locations")
	}
	return seq
}
