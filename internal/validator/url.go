// Package validator отсекает некорректные и сетево-небезопасные цели аудита
// до того, как будет поднят браузер (защита от SSRF).
package validator

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/xela07ax/a11y-auditor/internal/domain"
)

// Resolver: минимальный контракт DNS. *net.Resolver ему удовлетворяет.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// HostPolicy: операторский denylist хостов (см. engine.HostDenylist).
type HostPolicy interface {
	IsDenied(host string) bool
}

const resolveTimeout = 5 * time.Second

// Диапазоны, которые не покрываются методами netip.Addr.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // CGNAT
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b::/96"), // NAT64 может вести во внутреннюю сеть
	netip.MustParsePrefix("fec0::/10"),
}

type Validator struct {
	resolver Resolver
	hosts    HostPolicy
}

// New создает валидатор. nil resolver, системный DNS, nil hosts, без denylist.
func New(resolver Resolver, hosts HostPolicy) *Validator {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Validator{resolver: resolver, hosts: hosts}
}

// Validate разбирает URL, проверяет протокол и все адреса, в которые резолвится хост.
// Любое попадание в loopback/private/link-local/зарезервированные диапазоны, ValidationError.
func (v *Validator) Validate(ctx context.Context, raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &domain.ValidationError{URL: raw, Reason: "malformed url", Err: err}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &domain.ValidationError{URL: raw, Reason: "only http and https protocols are allowed"}
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return nil, &domain.ValidationError{URL: raw, Reason: "missing host"}
	}
	if v.hosts != nil && v.hosts.IsDenied(host) {
		return nil, &domain.ValidationError{URL: raw, Reason: "host is on the denylist"}
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, &domain.ValidationError{URL: raw, Reason: "loopback hosts are not allowed"}
	}

	// IP-литерал проверяем без DNS
	if addr, err := netip.ParseAddr(host); err == nil {
		if IsBlockedAddr(addr) {
			return nil, &domain.ValidationError{URL: raw, Reason: "private or reserved addresses are not allowed"}
		}
		return u, nil
	}
	// Числовые формы (2130706433, 0x7f000001, 127.1) браузер превращает в IPv4 сам, без DNS
	if endsInNumber(host) {
		addr, err := parseBrowserIPv4(host)
		if err != nil {
			return nil, &domain.ValidationError{URL: raw, Reason: "malformed ip address", Err: err}
		}
		if IsBlockedAddr(addr) {
			return nil, &domain.ValidationError{URL: raw, Reason: "private or reserved addresses are not allowed"}
		}
		return u, nil
	}

	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	addrs, err := v.resolver.LookupNetIP(rctx, "ip", host)
	if err != nil {
		return nil, &domain.ValidationError{URL: raw, Reason: "cannot resolve host", Err: err}
	}
	if len(addrs) == 0 {
		return nil, &domain.ValidationError{URL: raw, Reason: "host has no addresses"}
	}
	// Достаточно одного внутреннего адреса: браузер может выбрать любой
	for _, addr := range addrs {
		if IsBlockedAddr(addr) {
			return nil, &domain.ValidationError{URL: raw, Reason: "host resolves to a private or reserved address"}
		}
	}
	return u, nil
}

// IsBlockedAddr сообщает, что адрес внутренний или зарезервированный.
func IsBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap().WithZone("")
	if !addr.IsValid() ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified() {
		return true
	}
	if addr.Is4() && addr == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IsBlockedHost опознает внутренний хост без обращения к DNS: localhost,
// IP-литерал или числовая форма IPv4. Имена, требующие резолва, дают false.
func IsBlockedHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(strings.Trim(host, "[]"), "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return IsBlockedAddr(addr)
	}
	if endsInNumber(host) {
		addr, err := parseBrowserIPv4(host)
		return err != nil || IsBlockedAddr(addr)
	}
	return false
}
