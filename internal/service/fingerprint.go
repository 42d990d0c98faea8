package service

import (
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
	"strconv"
	"strings"
)

const (
	noIPBucket           = "ip:none"
	fingerprintDelimiter = "|"
	ipv6BucketGroups     = 4
)

// IPBucket сворачивает IP в грубую подсеть: IPv4 до /24, IPv6 до первых 4 групп
func IPBucket(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return noIPBucket
	}

	if addr, err := netip.ParseAddr(ip); err == nil && addr.Unmap().Is4() {
		b := addr.Unmap().As4()
		return strconv.Itoa(int(b[0])) + "." + strconv.Itoa(int(b[1])) + "." + strconv.Itoa(int(b[2])) + ".0"
	}

	if strings.Contains(ip, ":") {
		groups := strings.Split(ip, ":")
		if len(groups) > ipv6BucketGroups {
			groups = groups[:ipv6BucketGroups]
		}
		return strings.Join(groups, ":")
	}

	return ip
}

// GenerateFingerprint возвращает sha256(bucket|ua|lang) в hex.
// false только если нет ни IP, ни User-Agent, ни Accept-Language
func GenerateFingerprint(ip, userAgent, acceptLanguage string) (string, bool) {
	if strings.TrimSpace(ip) == "" && userAgent == "" && acceptLanguage == "" {
		return "", false
	}

	payload := IPBucket(ip) + fingerprintDelimiter + userAgent + fingerprintDelimiter + acceptLanguage
	sum := sha256.Sum256([]byte(payload))

	return hex.EncodeToString(sum[:]), true
}
