// Package tls provisions the locally trusted certificate the agent serves
// wss:// with, so phones on the LAN can connect to a secure endpoint.
package tls

import (
	"net"
	"os"
	"strings"
)

// LANIPs returns the non-loopback IPv4 addresses of interfaces that are up.
func LANIPs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.To4() != nil && !ip.IsLoopback() {
				ips = append(ips, ip.String())
			}
		}
	}
	return ips, nil
}

// Hosts returns the names a certificate must cover: localhost, the mDNS
// name of this machine, LAN IPs and any extra names. Duplicates are dropped.
func Hosts(extra ...string) ([]string, error) {
	hosts := []string{"localhost", "127.0.0.1"}
	if name, err := os.Hostname(); err == nil && name != "" {
		hosts = append(hosts, mdnsName(name))
	}
	hosts = append(hosts, extra...)

	ips, err := LANIPs()
	hosts = append(hosts, ips...)
	return dedupe(hosts), err
}

func mdnsName(hostname string) string {
	hostname = strings.TrimSuffix(hostname, ".")
	if strings.HasSuffix(hostname, ".local") {
		return hostname
	}
	if i := strings.IndexByte(hostname, '.'); i > 0 {
		hostname = hostname[:i]
	}
	return hostname + ".local"
}

func dedupe(hosts []string) []string {
	seen := make(map[string]bool, len(hosts))
	out := hosts[:0]
	for _, h := range hosts {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}
