package validator

import (
	"net"
	"strings"
)

// IsValidIP reports whether ip is a well-formed IPv4 or IPv6 address
func IsValidIP(ip string) bool {
	if ip == "" {
		return false
	}
	return net.ParseIP(ip) != nil
}

// NormalizeIP strips an IPv6 zone identifier (fe80::1%eth0 -> fe80::1)
func NormalizeIP(ip string) string {
	if idx := strings.IndexByte(ip, '%'); idx != -1 {
		return ip[:idx]
	}
	return ip
}

// GetIPOrDefault returns the normalized IP when valid, the default otherwise
func GetIPOrDefault(ip, defaultIP string) string {
	normalized := NormalizeIP(ip)
	if IsValidIP(normalized) {
		return normalized
	}
	return defaultIP
}
