package middleware

import (
	"net/http"
	"net/netip"

	"github.com/gin-gonic/gin"
)

// IPWhitelist only lets through clients whose IP falls in one of entries.
// An entry is a single address ("10.0.0.5") or a CIDR prefix
// ("10.0.0.0/8"); unparsable entries match nothing. No entries allows all.
func IPWhitelist(entries []string) gin.HandlerFunc {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			a = a.Unmap()
			prefixes = append(prefixes, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	open := len(entries) == 0
	return func(c *gin.Context) {
		if open || allowedIP(prefixes, c.ClientIP()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}

func allowedIP(prefixes []netip.Prefix, ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
