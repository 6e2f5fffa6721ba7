package allowlist

import (
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

// Policy decides which resolved addresses may receive notifications
type Policy struct {
	domains []string
	logger  *zap.Logger
}

// NewPolicy creates an address policy. With no domains every syntactically
// valid address is deliverable.
func NewPolicy(domains []string, logger *zap.Logger) *Policy {
	normalized := make([]string, 0, len(domains))
	for _, domain := range domains {
		if d := strings.ToLower(strings.TrimSpace(domain)); d != "" {
			normalized = append(normalized, d)
		}
	}

	if len(normalized) > 0 {
		logger.Info("Restricting notifications to domains", zap.Strings("domains", normalized))
	}

	return &Policy{domains: normalized, logger: logger}
}

// Deliverable reports whether address is a bare, valid address in an allowed domain
func (p *Policy) Deliverable(address string) bool {
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Name != "" || parsed.Address != strings.TrimSpace(address) {
		p.logger.Debug("Address rejected as malformed", zap.String("address", address))
		return false
	}

	if len(p.domains) == 0 {
		return true
	}

	at := strings.LastIndex(parsed.Address, "@")
	domain := strings.ToLower(parsed.Address[at+1:])
	for _, allowed := range p.domains {
		if domain == allowed || strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}

	p.logger.Debug("Address outside allowed domains", zap.String("domain", domain))
	return false
}
