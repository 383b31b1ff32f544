package shopify

import "github.com/ohler55/ojg/jp"

const pagesQuery = `
query GetPages($first: Int!, $after: String) {
  pages(first: $first, after: $after) {
    edges { node { id title handle createdAt updatedAt } }
    pageInfo { hasNextPage endCursor }
  }
}`

const blogsQuery = `
query GetBlogs($first: Int!, $after: String) {
  blogs(first: $first, after: $after) {
    edges { node { id title handle createdAt updatedAt } }
    pageInfo { hasNextPage endCursor }
  }
}`

const articlesQuery = `
query GetArticles($first: Int!, $after: String) {
  articles(first: $first, after: $after) {
    edges { node { id title handle createdAt updatedAt } }
    pageInfo { hasNextPage endCursor }
  }
}`

const locationsQuery = `
query {
  locations(first: 1) {
    edges { node { id name } }
  }
}`

var locationsPath = jp.MustParseString("$.data.locations")

const inventoryLevelsQuery = `
query GetInventoryLevels($locationId: ID!, $first: Int!, $after: String) {
  location(id: $locationId) {
    inventoryLevels(first: $first, after: $after) {
      edges {
        node {
          id
          quantities(names: ["available", "incoming", "committed", "damaged", "on_hand"]) {
            name
            quantity
          }
          item { id sku }
        }
      }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

const companiesQuery = `
query GetCompanies($first: Int!, $after: String) {
  companies(first: $first, after: $after) {
    edges {
      node {
        id
        name
        externalId
        note
        createdAt
        updatedAt
        mainContact {
          id
          customer {
            id
            firstName
            lastName
            createdAt
            defaultEmailAddress { emailAddress }
            amountSpent { amount currencyCode }
          }
        }
        contacts(first: 50) {
          edges {
            node {
              id
              title
              isMainContact
              customer {
                id
                firstName
                lastName
                defaultEmailAddress { emailAddress }
              }
            }
          }
        }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const companyLocationsQuery = `
query GetCompanyLocations($first: Int!, $after: String) {
  companyLocations(first: $first, after: $after) {
    edges {
      node {
        id
        name
        externalId
        note
        phone
        createdAt
        updatedAt
        currency
        company { id }
        billingAddress { address1 address2 city province country zip }
        shippingAddress { address1 address2 city province country zip }
        ordersCount { count }
        catalogsCount { count }
        totalSpent { amount currencyCode }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const partnerTransactionsQuery = `
query Transactions($after: String, $first: Int) {
  transactions(after: $after, first: $first) {
    edges {
      cursor
      node { id createdAt __typename }
    }
  }
}`

// snake-cased id/title/handle/timestamps shared by pages, blogs and articles
func contentColumns() []Column {
	return []Column{
		Col("id", "$.id"),
		Col("title", "$.title"),
		Col("handle", "$.handle"),
		Col("created_at", "$.createdAt"),
		Col("updated_at", "$.updatedAt"),
	}
}

// metafieldRule reads REST metafields attached under $.metafields and links
// each to its parent through fk
func metafieldRule(table, fk string) TableRule {
	return Rule(table, "$.metafields[*]",
		Col("id", "$.id"),
		ParentCol(fk, "$.id"),
		Col("namespace", "$.namespace"),
		Col("key", "$.key"),
		Col("value", "$.value"),
		Col("type", "$.type"),
		Col("description", "$.description"),
		Col("owner_id", "$.owner_id"),
		Col("owner_resource", "$.owner_resource"),
		Col("created_at", "$.created_at"),
		Col("updated_at", "$.updated_at"),
		Col("admin_graphql_api_id", "$.admin_graphql_api_id"),
	)
}

func quantity(name string) Column {
	return Col(name, "$.quantities[?(@.name == '"+name+"')].quantity")
}

func addressColumns(prefix, object string) []Column {
	fields := []string{"address1", "address2", "city", "province", "country", "zip"}
	cols := make([]Column, len(fields))
	for i, f := range fields {
		cols[i] = Col(prefix+"_"+f, "$."+object+"."+f)
	}
	return cols
}

// DefaultCatalog returns every resource shopsync knows how to extract
func DefaultCatalog() Catalog {
	resources := []*Resource{
		{
			Name:        "orders",
			Description: "Orders with line items (REST, windowed by updated_at)",
			Kind:        KindREST,
			Core:        true,
			Endpoint:    "orders",
			ItemsKey:    "orders",
			Params:      map[string]string{"status": "any"},
			Tables: []TableRule{
				Rule("orders", "",
					Col("id", "$.id"),
					Col("name", "$.name"),
					Col("email", "$.email"),
					Col("financial_status", "$.financial_status"),
					Col("fulfillment_status", "$.fulfillment_status"),
					Col("currency", "$.currency"),
					Col("subtotal_price", "$.subtotal_price"),
					Col("total_tax", "$.total_tax"),
					Col("total_discounts", "$.total_discounts"),
					Col("total_price", "$.total_price"),
					Col("customer_id", "$.customer.id"),
					Col("source_name", "$.source_name"),
					Col("tags", "$.tags"),
					Col("created_at", "$.created_at"),
					Col("updated_at", "$.updated_at"),
					Col("processed_at", "$.processed_at"),
					Col("cancelled_at", "$.cancelled_at"),
					Col("closed_at", "$.closed_at"),
				),
				Rule("orders__line_items", "$.line_items[*]",
					Col("id", "$.id"),
					ParentCol("order_id", "$.id"),
					Col("product_id", "$.product_id"),
					Col("variant_id", "$.variant_id"),
					Col("sku", "$.sku"),
					Col("title", "$.title"),
					Col("quantity", "$.quantity"),
					Col("price", "$.price"),
				),
			},
		},
		{
			Name:        "products",
			Description: "Products with variants (REST, windowed by updated_at)",
			Kind:        KindREST,
			Core:        true,
			Endpoint:    "products",
			ItemsKey:    "products",
			Tables: []TableRule{
				Rule("products", "",
					Col("id", "$.id"),
					Col("title", "$.title"),
					Col("handle", "$.handle"),
					Col("vendor", "$.vendor"),
					Col("product_type", "$.product_type"),
					Col("status", "$.status"),
					Col("tags", "$.tags"),
					Col("created_at", "$.created_at"),
					Col("updated_at", "$.updated_at"),
					Col("published_at", "$.published_at"),
				),
				Rule("products__variants", "$.variants[*]",
					Col("id", "$.id"),
					ParentCol("product_id", "$.id"),
					Col("sku", "$.sku"),
					Col("title", "$.title"),
					Col("price", "$.price"),
					Col("compare_at_price", "$.compare_at_price"),
					Col("inventory_item_id", "$.inventory_item_id"),
					Col("inventory_quantity", "$.inventory_quantity"),
					Col("created_at", "$.created_at"),
					Col("updated_at", "$.updated_at"),
				),
			},
		},
		{
			Name:        "customers",
			Description: "Customers (REST, windowed by updated_at)",
			Kind:        KindREST,
			Core:        true,
			Endpoint:    "customers",
			ItemsKey:    "customers",
			Tables: []TableRule{
				Rule("customers", "",
					Col("id", "$.id"),
					Col("email", "$.email"),
					Col("first_name", "$.first_name"),
					Col("last_name", "$.last_name"),
					Col("phone", "$.phone"),
					Col("state", "$.state"),
					Col("verified_email", "$.verified_email"),
					Col("orders_count", "$.orders_count"),
					Col("total_spent", "$.total_spent"),
					Col("currency", "$.currency"),
					Col("tags", "$.tags"),
					Col("created_at", "$.created_at"),
					Col("updated_at", "$.updated_at"),
				),
			},
		},
		{
			Name:        "pages",
			Description: "Online store pages (GraphQL)",
			Kind:        KindGraphQL,
			Query:       pagesQuery,
			Connection:  jp.MustParseString("$.data.pages"),
			Tables:      []TableRule{Rule("pages", "", contentColumns()...)},
		},
		{
			Name:        "pages_metafields",
			Description: "Metafields per page (REST fan-out)",
			Kind:        KindFanOut,
			Endpoint:    "pages",
			ItemsKey:    "pages",
			Params:      map[string]string{"fields": "id"},
			Children:    &FanOutSpec{Endpoint: "pages/%s/metafields", ItemsKey: "metafields"},
			Tables:      []TableRule{metafieldRule("pages_metafields", "page_id")},
		},
		{
			Name:        "collections_metafields",
			Description: "Metafields per custom collection (REST fan-out)",
			Kind:        KindFanOut,
			Endpoint:    "custom_collections",
			ItemsKey:    "custom_collections",
			Params:      map[string]string{"fields": "id"},
			Children:    &FanOutSpec{Endpoint: "collections/%s/metafields", ItemsKey: "metafields"},
			Tables:      []TableRule{metafieldRule("collections_metafields", "collection_id")},
		},
		{
			Name:        "products_metafields",
			Description: "Metafields per product (REST fan-out, opt-in)",
			Kind:        KindFanOut,
			Endpoint:    "products",
			ItemsKey:    "products",
			Params:      map[string]string{"fields": "id"},
			Children:    &FanOutSpec{Endpoint: "products/%s/metafields", ItemsKey: "metafields"},
			Tables:      []TableRule{metafieldRule("products_metafields", "product_id")},
		},
		{
			Name:        "blogs",
			Description: "Blogs (GraphQL)",
			Kind:        KindGraphQL,
			Query:       blogsQuery,
			Connection:  jp.MustParseString("$.data.blogs"),
			Tables:      []TableRule{Rule("blogs", "", contentColumns()...)},
		},
		{
			Name:        "articles",
			Description: "Blog articles (GraphQL)",
			Kind:        KindGraphQL,
			Query:       articlesQuery,
			Connection:  jp.MustParseString("$.data.articles"),
			Tables:      []TableRule{Rule("articles", "", contentColumns()...)},
		},
		{
			Name:        "inventory_levels",
			Description: "Inventory quantities at the shop's first location (GraphQL)",
			Kind:        KindInventory,
			Query:       inventoryLevelsQuery,
			Connection:  jp.MustParseString("$.data.location.inventoryLevels"),
			Tables: []TableRule{
				Rule("inventory_levels", "",
					Col("id", "$.id"),
					Col("inventory_item_id", "$.item.id"),
					Col("sku", "$.item.sku"),
					quantity("available"),
					quantity("incoming"),
					quantity("committed"),
					quantity("damaged"),
					quantity("on_hand"),
					Col("location_id", "$.location_id"),
					Col("location_name", "$.location_name"),
				),
			},
		},
		{
			Name:        "b2b_companies",
			Description: "B2B companies with main and all contacts (GraphQL)",
			Kind:        KindGraphQL,
			Version:     B2BVersion,
			Query:       companiesQuery,
			Connection:  jp.MustParseString("$.data.companies"),
			Tables: []TableRule{
				Rule("b2b_companies", "",
					Col("id", "$.id"),
					Col("name", "$.name"),
					Col("externalId", "$.externalId"),
					Col("note", "$.note"),
					Col("createdAt", "$.createdAt"),
					Col("updatedAt", "$.updatedAt"),
				),
				Rule("b2b_main_contacts", "$.mainContact",
					Col("contact_id", "$.id"),
					ParentCol("company_id", "$.id"),
					Col("customer_id", "$.customer.id"),
					Col("first_name", "$.customer.firstName"),
					Col("last_name", "$.customer.lastName"),
					Col("email", "$.customer.defaultEmailAddress.emailAddress"),
					Col("customer_created_at", "$.customer.createdAt"),
					Col("amount_spent_amount", "$.customer.amountSpent.amount"),
					Col("amount_spent_currency", "$.customer.amountSpent.currencyCode"),
				),
				Rule("b2b_company_contacts", "$.contacts.edges[*].node",
					Col("contact_id", "$.id"),
					ParentCol("company_id", "$.id"),
					Col("customer_id", "$.customer.id"),
					Col("title", "$.title"),
					Col("is_main_contact", "$.isMainContact"),
					Col("first_name", "$.customer.firstName"),
					Col("last_name", "$.customer.lastName"),
					Col("email", "$.customer.defaultEmailAddress.emailAddress"),
				),
			},
		},
		{
			Name:        "b2b_company_locations",
			Description: "B2B company locations with billing and shipping addresses (GraphQL, opt-in)",
			Kind:        KindGraphQL,
			Version:     B2BVersion,
			Query:       companyLocationsQuery,
			Connection:  jp.MustParseString("$.data.companyLocations"),
			Tables: []TableRule{
				Rule("b2b_company_locations", "", append(append([]Column{
					Col("id", "$.id"),
					Col("company_id", "$.company.id"),
					Col("name", "$.name"),
					Col("external_id", "$.externalId"),
					Col("note", "$.note"),
					Col("phone", "$.phone"),
					Col("created_at", "$.createdAt"),
					Col("updated_at", "$.updatedAt"),
					Col("currency", "$.currency"),
					Col("orders_count", "$.ordersCount.count"),
					Col("catalogs_count", "$.catalogsCount.count"),
					Col("total_spent_amount", "$.totalSpent.amount"),
					Col("total_spent_currency", "$.totalSpent.currencyCode"),
				}, addressColumns("billing", "billingAddress")...), addressColumns("shipping", "shippingAddress")...)...),
			},
		},
		{
			Name:           "partner_transactions",
			Description:    "Partner API transactions",
			Kind:           KindPartner,
			Query:          partnerTransactionsQuery,
			Connection:     jp.MustParseString("$.data.transactions.edges[*].node"),
			CursorPath:     jp.MustParseString("$.data.transactions.edges[-1].cursor"),
			CursorVariable: "after",
			Tables: []TableRule{
				Rule("partner_transactions", "",
					Col("id", "$.id"),
					Col("type", "$.__typename"),
					Col("created_at", "$.createdAt"),
				),
			},
		},
	}

	catalog := make(Catalog, len(resources))
	for _, r := range resources {
		catalog[r.Name] = r
	}
	return catalog
}
