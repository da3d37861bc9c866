package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies one cached GitHub API response.
type Key struct {
	// Endpoint is the API path, e.g. "/search/repositories"
	Endpoint string

	// QueryParams are the request query parameters
	QueryParams url.Values
}

// String generates a deterministic Redis key.
// Format: github:endpoint:param1=val1:param2=val2
//
// Example:
//
//	github:search/repositories:page=1:per_page=50:q=ui in:name,description:sort=stars
func (k Key) String() string {
	parts := []string{"github"}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		names := make([]string, 0, len(k.QueryParams))
		for name := range k.QueryParams {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.QueryParams.Get(name)))
		}
	}

	return strings.Join(parts, ":")
}
