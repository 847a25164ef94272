package relay

import "math/rand/v2"

// Browser identities sent as User-Agent to origins and the metadata provider
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

// IdentityPool is read-only after construction and safe to share between requests.
// The zero value picks from DefaultUserAgents.
type IdentityPool struct {
	agents []string
}

func NewIdentityPool(agents []string) IdentityPool {
	var kept []string
	for _, agent := range agents {
		if agent != "" {
			kept = append(kept, agent)
		}
	}
	return IdentityPool{agents: kept}
}

func (p IdentityPool) Size() int {
	if len(p.agents) == 0 {
		return len(DefaultUserAgents)
	}
	return len(p.agents)
}

// Pick returns a random identity from the pool.
func (p IdentityPool) Pick() string {
	agents := p.agents
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	return agents[rand.IntN(len(agents))]
}
