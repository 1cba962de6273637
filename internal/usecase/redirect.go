package usecase

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
)

// RedirectPolicy decides where a cookie-mode login may send the browser.
type RedirectPolicy struct {
	allowedHosts map[string]struct{}
}

func NewRedirectPolicy(allowedHosts []string) *RedirectPolicy {
	hosts := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts[h] = struct{}{}
		}
	}
	return &RedirectPolicy{allowedHosts: hosts}
}

// Validate accepts relative paths and absolute http(s) URLs whose host is
// allow-listed. Everything else is domain.ErrInvalidRedirect.
func (p *RedirectPolicy) Validate(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("%w: empty target", domain.ErrInvalidRedirect)
	}
	// Browsers treat a backslash like a slash, so "/\evil.com" is protocol relative.
	if strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return "", fmt.Errorf("%w: protocol-relative target", domain.ErrInvalidRedirect)
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidRedirect, err)
	}

	if u.Scheme == "" && u.Host == "" {
		if !strings.HasPrefix(u.Path, "/") {
			return "", fmt.Errorf("%w: relative target must start with /", domain.ErrInvalidRedirect)
		}
		return target, nil
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", domain.ErrInvalidRedirect, u.Scheme)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: userinfo not allowed", domain.ErrInvalidRedirect)
	}
	if _, ok := p.allowedHosts[strings.ToLower(u.Hostname())]; !ok {
		return "", fmt.Errorf("%w: host %q", domain.ErrInvalidRedirect, u.Hostname())
	}
	return target, nil
}
