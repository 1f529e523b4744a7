package gateway

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/klyr/xssguard/internal/config"
	"github.com/klyr/xssguard/internal/normalize"
)

// Route is one compiled routes[] entry. Host may start with "*." to match
// any subdomain.
type Route struct {
	ID         string
	Host       string
	PathPrefix string
	Upstream   string
	Policy     string
}

// Router picks the most specific route: exact hosts before wildcard hosts
// before any host, then the longest path prefix.
type Router struct {
	routes []Route
}

func NewRouter(cfg *config.Config) (*Router, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	routes := make([]Route, 0, len(cfg.Routes))
	for i, route := range cfg.Routes {
		routes = append(routes, Route{
			ID:         fmt.Sprintf("route-%d", i),
			Host:       strings.ToLower(strings.TrimSpace(route.Match.Host)),
			PathPrefix: route.Match.PathPrefix,
			Upstream:   route.Upstream,
			Policy:     route.Policy,
		})
	}

	sort.SliceStable(routes, func(i, j int) bool {
		ri, rj := hostRank(routes[i].Host), hostRank(routes[j].Host)
		if ri != rj {
			return ri < rj
		}
		return len(routes[i].PathPrefix) > len(routes[j].PathPrefix)
	})

	return &Router{routes: routes}, nil
}

func (r *Router) Match(req *http.Request) (Route, bool) {
	if req == nil || req.URL == nil {
		return Route{}, false
	}

	host := strings.ToLower(stripPort(req.Host))
	reqPath := normalize.Path(req.URL.Path)

	for _, route := range r.routes {
		if !hostMatches(route.Host, host) {
			continue
		}
		if strings.HasPrefix(reqPath, route.PathPrefix) {
			return route, true
		}
	}

	return Route{}, false
}

func hostRank(host string) int {
	switch {
	case host == "":
		return 2
	case strings.HasPrefix(host, "*."):
		return 1
	default:
		return 0
	}
}

func hostMatches(pattern, host string) bool {
	switch {
	case pattern == "":
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(host, pattern[1:])
	default:
		return pattern == host
	}
}

func stripPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}
