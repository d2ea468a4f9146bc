// Package ipfilter decides whether a client address is covered by a key's
// allow-list of single addresses and CIDR blocks.
package ipfilter

import (
	"net/netip"
	"strings"
)

// Allowed reports whether clientIP matches allowList. An empty list places no
// restriction. An unparsable client address never matches; malformed list
// entries are skipped.
func Allowed(clientIP string, allowList []string) bool {
	if len(allowList) == 0 {
		return true
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(clientIP))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, entry := range allowList {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				continue
			}
			if prefix.Masked().Contains(addr) {
				return true
			}
			continue
		}

		allowed, err := netip.ParseAddr(entry)
		if err != nil {
			continue
		}
		if allowed.Unmap() == addr {
			return true
		}
	}

	return false
}

// Validate returns the entries of allowList that cannot be parsed, so
// management endpoints can reject them before they are stored.
func Validate(allowList []string) []string {
	var invalid []string
	for _, entry := range allowList {
		entry = strings.TrimSpace(entry)
		var err error
		if strings.Contains(entry, "/") {
			_, err = netip.ParsePrefix(entry)
		} else {
			_, err = netip.ParseAddr(entry)
		}
		if err != nil {
			invalid = append(invalid, entry)
		}
	}
	return invalid
}
