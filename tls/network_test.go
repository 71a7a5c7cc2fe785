package tls

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostsIncludesLocalNames(t *testing.T) {
	hosts, err := Hosts("agent.example", "localhost")
	if err != nil {
		t.Logf("LAN lookup failed: %v", err)
	}
	assert.Contains(t, hosts, "localhost")
	assert.Contains(t, hosts, "127.0.0.1")
	assert.Contains(t, hosts, "agent.example")

	count := 0
	for _, h := range hosts {
		if h == "localhost" {
			count++
		}
	}
	assert.Equal(t, 1, count, "duplicates are dropped")
}

func TestMDNSName(t *testing.T) {
	assert.Equal(t, "kiosk.local", mdnsName("kiosk"))
	assert.Equal(t, "kiosk.local", mdnsName("kiosk.local."))
	assert.Equal(t, "kiosk.local", mdnsName("kiosk.corp.example"))
}
