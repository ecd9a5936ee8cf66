package sso

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ghost521/docusynth-ai-sub003/pkg/cryptoutil"
)

// RoutingStore persists domain-to-configuration routings. Create must
// enforce global domain uniqueness atomically; two workspaces racing to
// claim the same domain must not both succeed.
type RoutingStore interface {
	Create(ctx context.Context, routing *DomainRouting) error
	GetByID(ctx context.Context, id string) (*DomainRouting, error)
	GetByDomain(ctx context.Context, domain string) (*DomainRouting, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*DomainRouting, error)
	MarkVerified(ctx context.Context, id, method string) error
	Delete(ctx context.Context, id string) error
	DeleteByConfig(ctx context.Context, configID string) (int, error)
	DeleteStaleUnverified(ctx context.Context, olderThan time.Time) (int, error)
}

// TXTResolver is the DNS dependency of domain verification, satisfied by
// *net.Resolver.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DomainRouter maps verified email domains to SSO configurations and runs
// DNS TXT domain verification.
type DomainRouter struct {
	routings RoutingStore
	configs  ConfigStore
	resolver TXTResolver

	// product names the DNS record: _<product>-verification.<domain> with
	// value <product>-verify=<token>.
	product string
}

func NewDomainRouter(routings RoutingStore, configs ConfigStore, resolver TXTResolver) *DomainRouter {
	return &DomainRouter{
		routings: routings,
		configs:  configs,
		resolver: resolver,
		product:  "docusynth",
	}
}

// DNSRecordName returns the TXT record name a workspace admin must create.
func (r *DomainRouter) DNSRecordName(domain string) string {
	return fmt.Sprintf("_%s-verification.%s", r.product, domain)
}

// DNSRecordValue returns the expected TXT record value.
func (r *DomainRouter) DNSRecordValue(token string) string {
	return fmt.Sprintf("%s-verify=%s", r.product, token)
}

// AddRouting claims a domain for a configuration and returns the routing
// with its DNS verification challenge. The domain is normalized to
// lowercase; a domain already routed anywhere fails with CodeDomainTaken
// before verification is attempted.
func (r *DomainRouter) AddRouting(ctx context.Context, workspaceID, configID, domain string) (*DomainRouting, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if err := validateDomain(domain); err != nil {
		return nil, err
	}

	token, err := cryptoutil.SecureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token: %w", err)
	}

	routing := &DomainRouting{
		ID:                uuid.NewString(),
		WorkspaceID:       workspaceID,
		ConfigID:          configID,
		Domain:            domain,
		VerificationToken: token,
		CreatedAt:         time.Now().UTC(),
	}
	if err := r.routings.Create(ctx, routing); err != nil {
		return nil, err
	}
	return routing, nil
}

// VerifyDomain checks the DNS TXT challenge for a routing and marks it
// verified. manualOverride skips the lookup and records the bypass; it
// exists for test environments where no public DNS is reachable and must
// never be exposed to untrusted callers.
func (r *DomainRouter) VerifyDomain(ctx context.Context, routingID string, manualOverride bool) (*DomainRouting, error) {
	routing, err := r.routings.GetByID(ctx, routingID)
	if err != nil {
		return nil, err
	}

	method := "dns_txt"
	if manualOverride {
		method = "manual"
	} else {
		if err := r.lookupChallenge(ctx, routing); err != nil {
			return nil, err
		}
	}

	if err := r.routings.MarkVerified(ctx, routing.ID, method); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	routing.Verified = true
	routing.VerifiedAt = &now
	routing.VerificationMethod = method
	return routing, nil
}

func (r *DomainRouter) lookupChallenge(ctx context.Context, routing *DomainRouting) error {
	name := r.DNSRecordName(routing.Domain)
	records, err := r.resolver.LookupTXT(ctx, name)
	if err != nil {
		return NewValidationError(CodeDomainVerificationFailed, err,
			"DNS TXT lookup for %q failed", name)
	}

	expected := r.DNSRecordValue(routing.VerificationToken)
	for _, record := range records {
		if strings.TrimSpace(record) == expected {
			return nil
		}
	}
	return NewValidationError(CodeDomainVerificationFailed, nil,
		"no TXT record at %q matches the verification challenge", name)
}

// CheckSSORequired reports whether login must be federated, looked up by
// workspace ID directly or by the domain of an email address. Only a
// verified routing pointing at an enabled, enforcing configuration makes
// SSO required.
func (r *DomainRouter) CheckSSORequired(ctx context.Context, workspaceOrEmail string) (*SSOCheckResult, error) {
	if at := strings.LastIndex(workspaceOrEmail, "@"); at >= 0 {
		domain := strings.ToLower(workspaceOrEmail[at+1:])
		routing, err := r.routings.GetByDomain(ctx, domain)
		if err != nil {
			if CodeOf(err) == CodeDomainNotFound {
				return &SSOCheckResult{Required: false}, nil
			}
			return nil, err
		}
		if !routing.Verified {
			return &SSOCheckResult{Required: false}, nil
		}
		cfg, err := r.configs.Get(ctx, routing.ConfigID)
		if err != nil {
			if CodeOf(err) == CodeConfigNotFound {
				return &SSOCheckResult{Required: false}, nil
			}
			return nil, err
		}
		return checkResult(cfg), nil
	}

	configs, err := r.configs.ListByWorkspace(ctx, workspaceOrEmail)
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if result := checkResult(cfg); result.Required {
			return result, nil
		}
	}
	return &SSOCheckResult{Required: false}, nil
}

func checkResult(cfg *Configuration) *SSOCheckResult {
	if !cfg.Enabled || !cfg.EnforceSSO {
		return &SSOCheckResult{Required: false}
	}
	return &SSOCheckResult{
		Required: true,
		ConfigID: cfg.ID,
		Provider: cfg.Provider,
		Name:     cfg.Name,
	}
}

func validateDomain(domain string) error {
	if domain == "" || !strings.Contains(domain, ".") ||
		strings.ContainsAny(domain, "@/ \t") {
		return NewConfigurationError(CodeInvalidDomain, "%q is not a valid domain", domain)
	}
	return nil
}

// MemoryRoutingStore is an in-process RoutingStore for tests.
type MemoryRoutingStore struct {
	mu       sync.Mutex
	byID     map[string]*DomainRouting
	byDomain map[string]*DomainRouting
}

func NewMemoryRoutingStore() *MemoryRoutingStore {
	return &MemoryRoutingStore{
		byID:     make(map[string]*DomainRouting),
		byDomain: make(map[string]*DomainRouting),
	}
}

func (s *MemoryRoutingStore) Create(ctx context.Context, routing *DomainRouting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byDomain[routing.Domain]; exists {
		return NewConfigurationError(CodeDomainTaken, "domain %q is already routed", routing.Domain)
	}
	stored := *routing
	s.byID[routing.ID] = &stored
	s.byDomain[routing.Domain] = &stored
	return nil
}

func (s *MemoryRoutingStore) GetByID(ctx context.Context, id string) (*DomainRouting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	routing, ok := s.byID[id]
	if !ok {
		return nil, NewConfigurationError(CodeDomainNotFound, "routing %q not found", id)
	}
	out := *routing
	return &out, nil
}

func (s *MemoryRoutingStore) GetByDomain(ctx context.Context, domain string) (*DomainRouting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	routing, ok := s.byDomain[strings.ToLower(domain)]
	if !ok {
		return nil, NewConfigurationError(CodeDomainNotFound, "no routing for domain %q", domain)
	}
	out := *routing
	return &out, nil
}

func (s *MemoryRoutingStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*DomainRouting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*DomainRouting
	for _, routing := range s.byID {
		if routing.WorkspaceID == workspaceID {
			copied := *routing
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryRoutingStore) MarkVerified(ctx context.Context, id, method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	routing, ok := s.byID[id]
	if !ok {
		return NewConfigurationError(CodeDomainNotFound, "routing %q not found", id)
	}
	now := time.Now().UTC()
	routing.Verified = true
	routing.VerifiedAt = &now
	routing.VerificationMethod = method
	return nil
}

func (s *MemoryRoutingStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	routing, ok := s.byID[id]
	if !ok {
		return NewConfigurationError(CodeDomainNotFound, "routing %q not found", id)
	}
	delete(s.byDomain, routing.Domain)
	delete(s.byID, id)
	return nil
}

func (s *MemoryRoutingStore) DeleteByConfig(ctx context.Context, configID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, routing := range s.byID {
		if routing.ConfigID == configID {
			delete(s.byDomain, routing.Domain)
			delete(s.byID, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryRoutingStore) DeleteStaleUnverified(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, routing := range s.byID {
		if !routing.Verified && routing.CreatedAt.Before(olderThan) {
			delete(s.byDomain, routing.Domain)
			delete(s.byID, id)
			deleted++
		}
	}
	return deleted, nil
}
