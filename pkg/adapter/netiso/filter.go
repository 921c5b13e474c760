package netiso

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// FilterMode selects how the address list of an AddressFilter is applied.
type FilterMode string

const (
	// FilterNone accepts every client.
	FilterNone FilterMode = "NONE"

	// FilterAllowed accepts only clients matching the address list.
	FilterAllowed FilterMode = "ALLOWED"

	// FilterBlocked rejects clients matching the address list.
	FilterBlocked FilterMode = "BLOCKED"
)

// ParseFilterMode parses a mode name case-insensitively. The empty string
// is FilterNone.
func ParseFilterMode(s string) (FilterMode, error) {
	switch mode := FilterMode(strings.ToUpper(strings.TrimSpace(s))); mode {
	case "":
		return FilterNone, nil
	case FilterNone, FilterAllowed, FilterBlocked:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid filter mode %q: must be NONE, ALLOWED or BLOCKED", s)
	}
}

// AddressFilter decides at accept time whether a client may connect.
// Entries are single IPs or CIDR ranges, IPv4 or IPv6.
type AddressFilter struct {
	mode     FilterMode
	prefixes []netip.Prefix
}

// NewAddressFilter builds a filter. ALLOWED and BLOCKED require at least
// one address; NONE ignores the list.
func NewAddressFilter(mode FilterMode, addresses []string) (*AddressFilter, error) {
	f := &AddressFilter{mode: mode}

	switch mode {
	case FilterNone:
		return f, nil
	case FilterAllowed, FilterBlocked:
	default:
		return nil, fmt.Errorf("invalid filter mode %q", mode)
	}

	for _, a := range addresses {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		p, err := parsePrefix(a)
		if err != nil {
			return nil, err
		}
		f.prefixes = append(f.prefixes, p)
	}

	if len(f.prefixes) == 0 {
		return nil, fmt.Errorf("filter mode %s requires at least one address", mode)
	}
	return f, nil
}

func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid CIDR %q: %w", s, err)
		}
		if p.Addr().Is4In6() && p.Bits() >= 96 {
			p = netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96)
		}
		return p.Masked(), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Mode returns the filter mode.
func (f *AddressFilter) Mode() FilterMode { return f.mode }

// Allows reports whether addr may connect.
func (f *AddressFilter) Allows(addr netip.Addr) bool {
	if f == nil || f.mode == FilterNone {
		return true
	}

	addr = addr.Unmap()
	matched := false
	for _, p := range f.prefixes {
		if p.Contains(addr) {
			matched = true
			break
		}
	}

	if f.mode == FilterAllowed {
		return matched
	}
	return !matched
}

// AllowsConn applies Allows to the remote address of a connection. An
// address that cannot be parsed is only accepted by a NONE filter.
func (f *AddressFilter) AllowsConn(remote net.Addr) bool {
	if f == nil || f.mode == FilterNone {
		return true
	}
	addr, ok := remoteIP(remote)
	if !ok {
		return false
	}
	return f.Allows(addr)
}

// String renders the filter for startup logging.
func (f *AddressFilter) String() string {
	if f == nil || f.mode == FilterNone {
		return string(FilterNone)
	}
	parts := make([]string, len(f.prefixes))
	for i, p := range f.prefixes {
		if p.IsSingleIP() {
			parts[i] = p.Addr().String()
		} else {
			parts[i] = p.String()
		}
	}
	return fmt.Sprintf("%s %s", f.mode, strings.Join(parts, ","))
}

// remoteIP extracts the client IP of a connection address.
func remoteIP(remote net.Addr) (netip.Addr, bool) {
	if remote == nil {
		return netip.Addr{}, false
	}
	if tcp, ok := remote.(*net.TCPAddr); ok {
		addr, ok := netip.AddrFromSlice(tcp.IP)
		return addr.Unmap(), ok
	}

	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		host = remote.String()
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
