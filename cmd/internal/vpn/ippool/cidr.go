package ippool

import (
	"fmt"
	"net/netip"
)

// hostAddrs expands cidr into its usable host addresses, minus reserved.
// Network and broadcast addresses are excluded for prefixes shorter than
// /31; /31 and /32 use every address, as ip_network.hosts() does.
func hostAddrs(cidr string, reserved []string) ([]string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("ippool: bad network cidr %q: %w", cidr, err)
	}
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("ippool: only IPv4 networks are supported, got %q", cidr)
	}

	skip := make(map[netip.Addr]struct{}, len(reserved)+2)
	for _, r := range reserved {
		a, err := netip.ParseAddr(r)
		if err != nil {
			return nil, fmt.Errorf("ippool: bad reserved ip %q: %w", r, err)
		}
		skip[a] = struct{}{}
	}
	if prefix.Bits() < 31 {
		skip[prefix.Addr()] = struct{}{}
		skip[lastAddr(prefix)] = struct{}{}
	}

	var out []string
	for a := prefix.Addr(); prefix.Contains(a); a = a.Next() {
		if _, ok := skip[a]; ok {
			continue
		}
		out = append(out, a.String())
	}
	return out, nil
}

// lastAddr returns the highest address in an IPv4 prefix.
func lastAddr(p netip.Prefix) netip.Addr {
	a := p.Addr().As4()
	for i := p.Bits(); i < 32; i++ {
		a[i/8] |= 1 << (7 - i%8)
	}
	return netip.AddrFrom4(a)
}
