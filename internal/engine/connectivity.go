package engine

import (
	"net"
	"net/url"
	"sync"
	"time"
)

// Connectivity probe tuning. Results are cached briefly so a burst of
// operations does not dial the host once each.
const (
	probeTimeout  = 2 * time.Second
	probeCacheTTL = 5 * time.Second
)

// probeChecker reports connectivity by dialing the incident store's host.
type probeChecker struct {
	addr     string
	dialFunc func(network, addr string, timeout time.Duration) (net.Conn, error)
	nowFunc  func() time.Time

	mu      sync.Mutex
	online  bool
	checked time.Time
}

// ProbeConnectivity returns a ConnectivityChecker that dials the host of
// baseURL. An unparsable URL yields a checker that always reports offline.
func ProbeConnectivity(baseURL string) ConnectivityChecker {
	c := &probeChecker{
		dialFunc: net.DialTimeout,
		nowFunc:  time.Now,
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return c
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https", "wss":
			host = net.JoinHostPort(u.Hostname(), "443")
		default:
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	c.addr = host

	return c
}

func (c *probeChecker) Online() bool {
	if c.addr == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	if !c.checked.IsZero() && now.Sub(c.checked) < probeCacheTTL {
		return c.online
	}

	conn, err := c.dialFunc("tcp", c.addr, probeTimeout)
	if err == nil {
		conn.Close()
	}

	c.online = err == nil
	c.checked = now

	return c.online
}

// AlwaysOnline is a ConnectivityChecker that reports a permanent link,
// for tests and trusted environments.
type AlwaysOnline struct{}

func (AlwaysOnline) Online() bool { return true }
