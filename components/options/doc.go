// Package options serves named option lists over net/http. Each request
// names a registered query, the full list is fetched page by page through
// the option resolver and the result is filtered by a search term.
//
// The handler responds to GET and HEAD requests. Query parameters select the
// search term and limit; parameters prefixed with "filter." add equality
// filters to the registered query, which is how dependent lists (provinces
// of a region) are requested.
package options
