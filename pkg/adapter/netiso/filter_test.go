package netiso

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilterMode(t *testing.T) {
	tests := []struct {
		in      string
		want    FilterMode
		wantErr bool
	}{
		{"", FilterNone, false},
		{"none", FilterNone, false},
		{"ALLOWED", FilterAllowed, false},
		{" blocked ", FilterBlocked, false},
		{"deny", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFilterMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewAddressFilterErrors(t *testing.T) {
	_, err := NewAddressFilter(FilterAllowed, nil)
	assert.Error(t, err, "ALLOWED needs addresses")

	_, err = NewAddressFilter(FilterBlocked, []string{" ", ""})
	assert.Error(t, err, "blank entries do not count")

	_, err = NewAddressFilter(FilterAllowed, []string{"10.0.0.300"})
	assert.Error(t, err)

	_, err = NewAddressFilter(FilterAllowed, []string{"10.0.0.0/40"})
	assert.Error(t, err)

	_, err = NewAddressFilter("OPEN", []string{"10.0.0.1"})
	assert.Error(t, err)

	f, err := NewAddressFilter(FilterNone, []string{"garbage"})
	require.NoError(t, err, "NONE ignores the list")
	assert.True(t, f.Allows(netip.MustParseAddr("1.2.3.4")))
}

func TestAddressFilterAllows(t *testing.T) {
	addrs := []string{"192.168.1.10", "10.0.0.0/8", "fd00::/8"}

	allowed, err := NewAddressFilter(FilterAllowed, addrs)
	require.NoError(t, err)
	blocked, err := NewAddressFilter(FilterBlocked, addrs)
	require.NoError(t, err)

	tests := []struct {
		addr  string
		match bool
	}{
		{"192.168.1.10", true},
		{"192.168.1.11", false},
		{"10.20.30.40", true},
		{"::ffff:10.1.1.1", true},
		{"fd12::1", true},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			a := netip.MustParseAddr(tt.addr)
			assert.Equal(t, tt.match, allowed.Allows(a))
			assert.Equal(t, !tt.match, blocked.Allows(a))
		})
	}
}

func TestAddressFilterAllowsConn(t *testing.T) {
	f, err := NewAddressFilter(FilterAllowed, []string{"127.0.0.1"})
	require.NoError(t, err)

	assert.True(t, f.AllowsConn(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5000}))
	assert.False(t, f.AllowsConn(&net.TCPAddr{IP: net.ParseIP("127.0.0.2"), Port: 5000}))
	assert.True(t, f.AllowsConn(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}), "host:port fallback")
	assert.False(t, f.AllowsConn(pipeAddr{}), "unparseable address")
	assert.False(t, f.AllowsConn(nil))

	var none *AddressFilter
	assert.True(t, none.AllowsConn(pipeAddr{}))
}

func TestAddressFilterString(t *testing.T) {
	f, err := NewAddressFilter(FilterBlocked, []string{"10.0.0.1", "192.168.0.0/16"})
	require.NoError(t, err)
	assert.Equal(t, "BLOCKED 10.0.0.1,192.168.0.0/16", f.String())

	none, err := NewAddressFilter(FilterNone, nil)
	require.NoError(t, err)
	assert.Equal(t, "NONE", none.String())
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }
