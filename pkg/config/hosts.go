package config

import "net/netip"

// Hosts returns the host list: hostname entries first, then IP entries.
// Entries are neither deduplicated nor validated here; a malformed IP
// surfaces later as a connection failure for that host.
func (c *Config) Hosts() []string {
	hosts := make([]string, 0, len(c.Servers)+len(c.IPServers))
	hosts = append(hosts, c.Servers...)
	return append(hosts, c.IPServers...)
}

// InvalidIPs lists ip_servers entries that are not IP literals.
func (c *Config) InvalidIPs() []string {
	var bad []string
	for _, ip := range c.IPServers {
		if !IsValidIP(ip) {
			bad = append(bad, ip)
		}
	}
	return bad
}

// IsValidIP reports whether s is a well-formed IPv4 or IPv6 literal.
func IsValidIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}
