package sso

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ghost521/docusynth-ai-sub003/pkg/audit"
	"github.com/Ghost521/docusynth-ai-sub003/pkg/observability"
	"github.com/Ghost521/docusynth-ai-sub003/pkg/oidc"
	"github.com/Ghost521/docusynth-ai-sub003/pkg/saml"
)

// ClockSkew is the tolerance applied to token and assertion time checks.
const ClockSkew = 5 * time.Minute

// ServiceOptions wires the orchestrator's dependencies.
type ServiceOptions struct {
	Configs     ConfigStore
	States      StateStore
	Routings    RoutingStore
	Resolver    TXTResolver
	Audit       audit.Logger
	Provisioner Provisioner
	Logger      *observability.Logger
	HTTPClient  *http.Client

	// BaseURL is the externally reachable root of this deployment, e.g.
	// "https://app.docusynth.io". Protocol endpoints are derived from it.
	BaseURL string
	// OrganizationName and OrganizationURL are advertised in SP metadata.
	OrganizationName string
	OrganizationURL  string
}

// Service orchestrates the SSO login flows: configuration lifecycle, login
// initiation, protocol callbacks, logout, and domain routing. Every terminal
// login outcome produces exactly one audit event.
type Service struct {
	configs     ConfigStore
	states      StateStore
	routings    RoutingStore
	router      *DomainRouter
	audit       audit.Logger
	provisioner Provisioner
	logger      *observability.Logger
	oidc        *oidc.Client

	baseURL string
	orgName string
	orgURL  string
}

// NewService builds the orchestrator. Configs, States, Routings, and BaseURL
// are required; audit, provisioning, and logging default to no-ops.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Configs == nil || opts.States == nil || opts.Routings == nil {
		return nil, fmt.Errorf("config, state, and routing stores are required")
	}
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	auditLog := opts.Audit
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	provisioner := opts.Provisioner
	if provisioner == nil {
		provisioner = NopProvisioner{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}

	return &Service{
		configs:     opts.Configs,
		states:      opts.States,
		routings:    opts.Routings,
		router:      NewDomainRouter(opts.Routings, opts.Configs, opts.Resolver),
		audit:       auditLog,
		provisioner: provisioner,
		logger:      logger.WithField("component", "sso"),
		oidc:        oidc.NewClient(opts.HTTPClient),
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		orgName:     opts.OrganizationName,
		orgURL:      opts.OrganizationURL,
	}, nil
}

// Router exposes the domain router for host applications that manage domain
// verification through their own surface.
func (s *Service) Router() *DomainRouter { return s.router }

// Derived per-configuration protocol endpoints.

func (s *Service) acsURL(configID string) string {
	return s.baseURL + "/sso/saml/acs/" + configID
}

func (s *Service) sloURL(configID string) string {
	return s.baseURL + "/sso/saml/slo/" + configID
}

func (s *Service) entityID(configID string) string {
	return s.baseURL + "/sso/saml/metadata/" + configID
}

// OIDCRedirectURI is shared across configurations; the state token routes the
// callback back to its configuration.
func (s *Service) OIDCRedirectURI() string {
	return s.baseURL + "/sso/oidc/callback"
}

// --- Configuration lifecycle ---

// CreateConfiguration validates and persists a new configuration. New
// configurations always start disabled and in test mode.
func (s *Service) CreateConfiguration(ctx context.Context, cfg *Configuration, meta RequestMeta) (*Configuration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cfg.ID = uuid.NewString()
	cfg.Enabled = false
	cfg.TestMode = true
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := s.configs.Create(ctx, cfg); err != nil {
		return nil, err
	}
	s.auditConfig(ctx, audit.EventTypeConfigCreated, cfg, meta, nil)
	s.logger.WithFields(map[string]interface{}{
		"config_id":    cfg.ID,
		"workspace_id": cfg.WorkspaceID,
		"provider":     cfg.Provider,
	}).Info("sso configuration created")
	return cfg, nil
}

// GetConfiguration loads a configuration by ID.
func (s *Service) GetConfiguration(ctx context.Context, id string) (*Configuration, error) {
	return s.configs.Get(ctx, id)
}

// ListConfigurations returns a workspace's configurations.
func (s *Service) ListConfigurations(ctx context.Context, workspaceID string) ([]*Configuration, error) {
	return s.configs.ListByWorkspace(ctx, workspaceID)
}

// UpdateConfiguration validates and persists changes to provider settings,
// mapping, and policy flags. Enabled and TestMode are not changed here; they
// move only through Enable, Disable, and SetTestMode.
func (s *Service) UpdateConfiguration(ctx context.Context, cfg *Configuration, meta RequestMeta) (*Configuration, error) {
	existing, err := s.configs.Get(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	cfg.WorkspaceID = existing.WorkspaceID
	cfg.Enabled = existing.Enabled
	cfg.TestMode = existing.TestMode
	cfg.CreatedAt = existing.CreatedAt
	// An omitted client secret on update keeps the stored one.
	if cfg.OIDC != nil && cfg.OIDC.ClientSecret == "" && existing.OIDC != nil {
		cfg.OIDC.ClientSecret = existing.OIDC.ClientSecret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.configs.Update(ctx, cfg); err != nil {
		return nil, err
	}
	s.auditConfig(ctx, audit.EventTypeConfigUpdated, cfg, meta, nil)
	return cfg, nil
}

// EnableConfiguration turns a configuration live. Enabling is rejected while
// the configuration is still in test mode; a successful test login and an
// explicit exit from test mode must come first.
func (s *Service) EnableConfiguration(ctx context.Context, id string, meta RequestMeta) error {
	cfg, err := s.configs.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := cfg.CanEnable(); err != nil {
		s.auditConfig(ctx, audit.EventTypeConfigEnabled, cfg, meta, err)
		return err
	}
	if cfg.Enabled {
		return nil
	}
	cfg.Enabled = true
	if err := s.configs.Update(ctx, cfg); err != nil {
		return err
	}
	s.auditConfig(ctx, audit.EventTypeConfigEnabled, cfg, meta, nil)
	s.logger.WithField("config_id", id).Info("sso configuration enabled")
	return nil
}

// DisableConfiguration turns a configuration off and revokes workspace
// sessions established through it.
func (s *Service) DisableConfiguration(ctx context.Context, id string, meta RequestMeta) error {
	cfg, err := s.configs.Get(ctx, id)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		return nil
	}
	cfg.Enabled = false
	if err := s.configs.Update(ctx, cfg); err != nil {
		return err
	}
	if err := s.provisioner.RevokeWorkspaceSessions(ctx, cfg.WorkspaceID); err != nil {
		s.logger.WithError(err).WithField("workspace_id", cfg.WorkspaceID).
			Warn("failed to revoke workspace sessions on disable")
	}
	s.auditConfig(ctx, audit.EventTypeConfigDisabled, cfg, meta, nil)
	return nil
}

// SetTestMode flips test mode. Turning test mode on while the configuration
// is enabled also disables it.
func (s *Service) SetTestMode(ctx context.Context, id string, testMode bool, meta RequestMeta) error {
	cfg, err := s.configs.Get(ctx, id)
	if err != nil {
		return err
	}
	if cfg.TestMode == testMode {
		return nil
	}
	cfg.TestMode = testMode
	if testMode && cfg.Enabled {
		cfg.Enabled = false
	}
	if err := s.configs.Update(ctx, cfg); err != nil {
		return err
	}
	s.auditConfig(ctx, audit.EventTypeConfigUpdated, cfg, meta, nil)
	return nil
}

// DeleteConfiguration removes a configuration together with its domain
// routings and revokes the workspace's SSO sessions.
func (s *Service) DeleteConfiguration(ctx context.Context, id string, meta RequestMeta) error {
	cfg, err := s.configs.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.router.routings.DeleteByConfig(ctx, id); err != nil {
		return err
	}
	if err := s.provisioner.RevokeWorkspaceSessions(ctx, cfg.WorkspaceID); err != nil {
		s.logger.WithError(err).WithField("workspace_id", cfg.WorkspaceID).
			Warn("failed to revoke workspace sessions on delete")
	}
	if err := s.configs.Delete(ctx, id); err != nil {
		return err
	}
	s.auditConfig(ctx, audit.EventTypeConfigDeleted, cfg, meta, nil)
	s.logger.WithField("config_id", id).Info("sso configuration deleted")
	return nil
}

// --- Login flow ---

// LoginStart is the outcome of initiating a login: where to send the browser
// and the state token bound to the attempt.
type LoginStart struct {
	RedirectURL string `json:"redirect_url"`
	State       string `json:"state"`
}

// InitiateLogin starts a login against a configuration. The configuration
// must be enabled or in test mode. The returned redirect URL points at the
// IdP with the state token bound in: as RelayState for SAML, as the state
// parameter for OIDC.
func (s *Service) InitiateLogin(ctx context.Context, configID, redirectURI string, meta RequestMeta) (*LoginStart, error) {
	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled && !cfg.TestMode {
		return nil, NewConfigurationError(CodeConfigDisabled,
			"configuration %q is disabled", configID)
	}

	// A verifier is only generated when the grant will carry a challenge;
	// otherwise the token exchange must not send code_verifier at all.
	withPKCE := cfg.Provider == ProviderOIDC && cfg.OIDC.UsePKCE
	state, challenge, err := NewAuthState(cfg.WorkspaceID, configID, redirectURI, withPKCE)
	if err != nil {
		return nil, err
	}

	var redirectURL string
	switch cfg.Provider {
	case ProviderSAML:
		sp := s.serviceProviderFor(cfg)
		// The request ID doubles as the expected InResponseTo; deriving it
		// from the state token ties the response to this attempt.
		artifact, err := sp.BuildAuthnRequest(samlRequestID(state.State), state.State)
		if err != nil {
			return nil, NewProtocolError(CodeMalformedResponse, err, "failed to build authn request")
		}
		redirectURL = artifact.RedirectURL
	case ProviderOIDC:
		md, err := s.metadataForConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		params := oidc.AuthorizationParams{State: state.State, Nonce: state.Nonce}
		if cfg.OIDC.UsePKCE {
			params.CodeChallenge = challenge
		}
		redirectURL = s.oidc.AuthorizationURL(md, s.credentialsFor(cfg), params)
	default:
		return nil, NewConfigurationError(CodeInvalidProvider, "unknown provider %q", cfg.Provider)
	}

	if err := s.states.Create(ctx, state); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, &audit.Event{
		EventType:   audit.EventTypeLoginInitiated,
		Status:      audit.EventStatusSuccess,
		WorkspaceID: cfg.WorkspaceID,
		ConfigID:    cfg.ID,
		Protocol:    string(cfg.Provider),
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		RequestID:   meta.RequestID,
	})
	return &LoginStart{RedirectURL: redirectURL, State: state.State}, nil
}

// HandleSAMLCallback processes a SAMLResponse POSTed to a configuration's
// ACS endpoint. relayState carries the state token from InitiateLogin.
func (s *Service) HandleSAMLCallback(ctx context.Context, configID, samlResponse, relayState string, meta RequestMeta) (*LoginResult, error) {
	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return nil, err
	}

	state, err := s.states.Consume(ctx, relayState)
	if err != nil {
		return s.finishLogin(ctx, cfg, meta, "", nil, err)
	}
	if state.ConfigID != cfg.ID {
		err = NewStateError(CodeStateNotFound, "state belongs to a different configuration")
		return s.finishLogin(ctx, cfg, meta, "", nil, err)
	}

	info, err := saml.ParseResponse(samlResponse)
	if err != nil {
		return s.finishLogin(ctx, cfg, meta, "", state, classifySAMLError(err))
	}
	if info.InResponseTo != "" && info.InResponseTo != samlRequestID(state.State) {
		err = NewValidationError(CodeStateNotFound, nil,
			"response InResponseTo %q does not match the login attempt", info.InResponseTo)
		return s.finishLogin(ctx, cfg, meta, "", state, err)
	}

	sp := s.serviceProviderFor(cfg)
	if err := sp.ValidateSignature(info.Raw); err != nil {
		err = NewValidationError(CodeInvalidSignature, err, "signature validation failed")
		return s.finishLogin(ctx, cfg, meta, "", state, err)
	}
	if err := saml.ValidateConditions(info.Assertion, sp.EntityID, ClockSkew); err != nil {
		return s.finishLogin(ctx, cfg, meta, "", state, classifySAMLError(err))
	}

	identity, err := MapAttributes(cfg, assertionClaims(info.Assertion))
	if err != nil {
		return s.finishLogin(ctx, cfg, meta, "", state, err)
	}
	return s.completeLogin(ctx, cfg, state, identity, meta)
}

// HandleOIDCCallback processes the authorization code redirect. The state
// parameter routes the callback to its configuration.
func (s *Service) HandleOIDCCallback(ctx context.Context, stateToken, code string, meta RequestMeta) (*LoginResult, error) {
	state, err := s.states.Consume(ctx, stateToken)
	if err != nil {
		// A rejected state is a potential replay. There is no configuration
		// to attribute it to, but the attempt still gets its failure event.
		s.auditStateFailure(ctx, ProviderOIDC, meta, err)
		return nil, err
	}
	cfg, err := s.configs.Get(ctx, state.ConfigID)
	if err != nil {
		return nil, err
	}

	md, err := s.metadataForConfig(ctx, cfg)
	if err != nil {
		return s.finishLogin(ctx, cfg, meta, "", state, err)
	}
	creds := s.credentialsFor(cfg)

	token, rawIDToken, err := s.oidc.ExchangeCode(ctx, md, creds, code, state.CodeVerifier)
	if err != nil {
		return s.finishLogin(ctx, cfg, meta, "", state, classifyOIDCError(err))
	}

	claims, err := s.oidc.VerifyIDToken(ctx, md, creds.ClientID, rawIDToken)
	if err != nil {
		err = NewValidationError(CodeInvalidSignature, err, "id token verification failed")
		return s.finishLogin(ctx, cfg, meta, "", state, err)
	}
	expect := oidc.ClaimExpectation{
		Issuer:   md.Issuer,
		ClientID: creds.ClientID,
		Nonce:    state.Nonce,
		Skew:     ClockSkew,
	}
	if err := oidc.ValidateClaims(claims, expect); err != nil {
		return s.finishLogin(ctx, cfg, meta, "", state, classifyOIDCError(err))
	}

	// The userinfo response fills claims thin ID tokens omit; existing
	// ID-token claims win on conflict.
	if md.UserInfoEndpoint != "" && token.AccessToken != "" {
		if userinfo, err := s.oidc.UserInfo(ctx, md, token.AccessToken); err == nil {
			for k, v := range userinfo {
				if _, ok := claims[k]; !ok {
					claims[k] = v
				}
			}
		} else {
			s.logger.WithError(err).WithField("config_id", cfg.ID).Debug("userinfo fetch failed")
		}
	}

	identity, err := MapAttributes(cfg, claims)
	if err != nil {
		return s.finishLogin(ctx, cfg, meta, "", state, err)
	}
	return s.completeLogin(ctx, cfg, state, identity, meta)
}

// completeLogin runs the policy checks and provisioning shared by both
// protocols, then records the terminal outcome.
func (s *Service) completeLogin(ctx context.Context, cfg *Configuration, state *AuthState, identity *ResolvedIdentity, meta RequestMeta) (*LoginResult, error) {
	if err := cfg.EmailDomainAllowed(identity.Email); err != nil {
		return s.finishLogin(ctx, cfg, meta, identity.Email, state, err)
	}

	// Test-mode logins validate the full flow but never touch membership.
	if !cfg.TestMode {
		decision := ProvisionDecision{
			WorkspaceID:     cfg.WorkspaceID,
			ConfigID:        cfg.ID,
			Identity:        identity,
			CreateIfMissing: cfg.JITProvisioning,
		}
		if err := s.provisioner.Provision(ctx, decision); err != nil {
			err = NewConfigurationError(CodeProvisioningFailed, "provisioning failed: %v", err)
			return s.finishLogin(ctx, cfg, meta, identity.Email, state, err)
		}
	}

	result := &LoginResult{
		Identity:    identity,
		WorkspaceID: cfg.WorkspaceID,
		ConfigID:    cfg.ID,
		RedirectURI: state.RedirectURI,
		TestMode:    cfg.TestMode,
	}
	if _, err := s.finishLogin(ctx, cfg, meta, identity.Email, state, nil); err != nil {
		return nil, err
	}
	return result, nil
}

// auditStateFailure records the terminal failure event for a callback whose
// state was rejected before any configuration could be attached.
func (s *Service) auditStateFailure(ctx context.Context, provider Provider, meta RequestMeta, stateErr error) {
	event := &audit.Event{
		EventType: audit.EventTypeLoginFailed,
		Status:    audit.EventStatusFailure,
		Protocol:  string(provider),
		ErrorCode: CodeOf(stateErr),
		Message:   stateErr.Error(),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WithError(err).Error("failed to write login audit event")
	}
	s.logger.WithContext(ctx).WithField("error_code", CodeOf(stateErr)).
		WithError(stateErr).Warn("sso login failed")
}

// finishLogin records exactly one terminal audit event for a login attempt
// and passes the error through. Success is reported by loginErr == nil.
func (s *Service) finishLogin(ctx context.Context, cfg *Configuration, meta RequestMeta, email string, state *AuthState, loginErr error) (*LoginResult, error) {
	event := &audit.Event{
		WorkspaceID: cfg.WorkspaceID,
		ConfigID:    cfg.ID,
		Protocol:    string(cfg.Provider),
		Email:       email,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		RequestID:   meta.RequestID,
	}
	if cfg.TestMode {
		event.Metadata = map[string]any{"test_mode": true}
	}
	if loginErr == nil {
		event.EventType = audit.EventTypeLoginSucceeded
		event.Status = audit.EventStatusSuccess
	} else {
		event.EventType = audit.EventTypeLoginFailed
		event.Status = audit.EventStatusFailure
		event.ErrorCode = CodeOf(loginErr)
		event.Message = loginErr.Error()
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WithError(err).Error("failed to write login audit event")
	}

	if loginErr != nil {
		s.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"config_id":  cfg.ID,
			"error_code": CodeOf(loginErr),
		}).WithError(loginErr).Warn("sso login failed")
		return nil, loginErr
	}
	return nil, nil
}

// --- Logout ---

// InitiateLogout starts a logout. For SAML configurations with an SLO URL it
// returns the IdP redirect carrying a LogoutRequest; for OIDC it returns the
// provider's end-session URL when one is advertised. An empty URL means the
// IdP has no logout endpoint and only the local session ends.
func (s *Service) InitiateLogout(ctx context.Context, configID, nameID, sessionIndex string, meta RequestMeta) (string, error) {
	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return "", err
	}

	var redirectURL string
	switch cfg.Provider {
	case ProviderSAML:
		if cfg.SAML.SLOUrl != "" {
			artifact, err := s.serviceProviderFor(cfg).BuildLogoutRequest(nameID, sessionIndex, "")
			if err != nil {
				return "", NewProtocolError(CodeMalformedResponse, err, "failed to build logout request")
			}
			redirectURL = artifact.RedirectURL
		}
	case ProviderOIDC:
		md, err := s.metadataForConfig(ctx, cfg)
		if err != nil {
			return "", err
		}
		redirectURL = md.EndSessionEndpoint
	}

	s.audit.Log(ctx, &audit.Event{
		EventType:   audit.EventTypeLogoutInitiated,
		Status:      audit.EventStatusSuccess,
		WorkspaceID: cfg.WorkspaceID,
		ConfigID:    cfg.ID,
		Protocol:    string(cfg.Provider),
		Email:       nameID,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		RequestID:   meta.RequestID,
	})
	return redirectURL, nil
}

// CompleteSAMLLogout processes the IdP's LogoutResponse on the SLO endpoint.
func (s *Service) CompleteSAMLLogout(ctx context.Context, configID, samlResponse string, meta RequestMeta) error {
	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return err
	}

	event := &audit.Event{
		EventType:   audit.EventTypeLogoutCompleted,
		Status:      audit.EventStatusSuccess,
		WorkspaceID: cfg.WorkspaceID,
		ConfigID:    cfg.ID,
		Protocol:    string(cfg.Provider),
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		RequestID:   meta.RequestID,
	}
	if _, err := saml.ParseLogoutResponse(samlResponse); err != nil {
		err = classifySAMLError(err)
		event.Status = audit.EventStatusFailure
		event.ErrorCode = CodeOf(err)
		event.Message = err.Error()
		s.audit.Log(ctx, event)
		return err
	}
	s.audit.Log(ctx, event)
	return nil
}

// --- Domain routing ---

// AddDomain claims an email domain for a configuration and returns the
// routing with its DNS verification challenge.
func (s *Service) AddDomain(ctx context.Context, workspaceID, configID, domain string, meta RequestMeta) (*DomainRouting, error) {
	routing, err := s.router.AddRouting(ctx, workspaceID, configID, domain)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, &audit.Event{
		EventType:   audit.EventTypeDomainAdded,
		Status:      audit.EventStatusSuccess,
		WorkspaceID: workspaceID,
		ConfigID:    configID,
		ActorID:     meta.ActorID,
		IPAddress:   meta.IPAddress,
		RequestID:   meta.RequestID,
		Metadata:    map[string]any{"domain": routing.Domain},
	})
	return routing, nil
}

// VerifyDomain checks the routing's DNS TXT challenge, or records a manual
// override when one was explicitly requested.
func (s *Service) VerifyDomain(ctx context.Context, routingID string, manualOverride bool, meta RequestMeta) (*DomainRouting, error) {
	routing, err := s.router.VerifyDomain(ctx, routingID, manualOverride)

	event := &audit.Event{
		EventType: audit.EventTypeDomainVerified,
		Status:    audit.EventStatusSuccess,
		ActorID:   meta.ActorID,
		IPAddress: meta.IPAddress,
		RequestID: meta.RequestID,
	}
	if routing != nil {
		event.WorkspaceID = routing.WorkspaceID
		event.ConfigID = routing.ConfigID
		event.Metadata = map[string]any{
			"domain": routing.Domain,
			"method": routing.VerificationMethod,
		}
	}
	if err != nil {
		event.Status = audit.EventStatusFailure
		event.ErrorCode = CodeOf(err)
		event.Message = err.Error()
		s.audit.Log(ctx, event)
		return nil, err
	}
	s.audit.Log(ctx, event)
	return routing, nil
}

// RemoveDomain deletes a domain routing.
func (s *Service) RemoveDomain(ctx context.Context, routingID string, meta RequestMeta) error {
	routing, err := s.router.routings.GetByID(ctx, routingID)
	if err != nil {
		return err
	}
	if err := s.router.routings.Delete(ctx, routingID); err != nil {
		return err
	}
	s.audit.Log(ctx, &audit.Event{
		EventType:   audit.EventTypeDomainRemoved,
		Status:      audit.EventStatusSuccess,
		WorkspaceID: routing.WorkspaceID,
		ConfigID:    routing.ConfigID,
		ActorID:     meta.ActorID,
		IPAddress:   meta.IPAddress,
		RequestID:   meta.RequestID,
		Metadata:    map[string]any{"domain": routing.Domain},
	})
	return nil
}

// ListDomains returns a workspace's domain routings.
func (s *Service) ListDomains(ctx context.Context, workspaceID string) ([]*DomainRouting, error) {
	return s.router.routings.ListByWorkspace(ctx, workspaceID)
}

// CheckSSORequired answers whether login for an email or workspace must go
// through SSO. The check never mutates routing or configuration state.
func (s *Service) CheckSSORequired(ctx context.Context, workspaceOrEmail string) (*SSOCheckResult, error) {
	return s.router.CheckSSORequired(ctx, workspaceOrEmail)
}

// --- Metadata and audit queries ---

// SPMetadata renders the SP metadata XML for a SAML configuration.
func (s *Service) SPMetadata(ctx context.Context, configID string) ([]byte, error) {
	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return nil, err
	}
	if cfg.Provider != ProviderSAML {
		return nil, NewConfigurationError(CodeInvalidProvider,
			"configuration %q is not SAML", configID)
	}
	md, err := s.serviceProviderFor(cfg).Metadata()
	if err != nil {
		return nil, NewProtocolError(CodeMalformedResponse, err, "failed to render metadata")
	}
	return md, nil
}

// QueryAuditEvents reads the workspace audit trail when the configured audit
// logger supports queries.
func (s *Service) QueryAuditEvents(ctx context.Context, filter audit.Filter) ([]*audit.Event, error) {
	store, ok := s.audit.(audit.Store)
	if !ok {
		return nil, fmt.Errorf("configured audit logger does not support queries")
	}
	return store.Query(ctx, filter)
}

// CleanupExpiredStates drops expired auth states. Run periodically.
func (s *Service) CleanupExpiredStates(ctx context.Context) (int, error) {
	return s.states.DeleteExpired(ctx)
}

// staleRoutingAge is how long an unverified domain claim may sit before the
// janitor reclaims the domain for someone else.
const staleRoutingAge = 30 * 24 * time.Hour

// CleanupStaleRoutings drops domain routings that were claimed but never
// verified. Run periodically.
func (s *Service) CleanupStaleRoutings(ctx context.Context) (int, error) {
	return s.routings.DeleteStaleUnverified(ctx, time.Now().UTC().Add(-staleRoutingAge))
}

// --- Helpers ---

func (s *Service) serviceProviderFor(cfg *Configuration) *saml.ServiceProvider {
	return &saml.ServiceProvider{
		EntityID:         s.entityID(cfg.ID),
		ACSURL:           s.acsURL(cfg.ID),
		SLOURL:           s.sloURL(cfg.ID),
		IDPSSOURL:        cfg.SAML.SSOURL,
		IDPSLOURL:        cfg.SAML.SLOUrl,
		IDPIssuer:        cfg.SAML.EntityID,
		IDPCertificate:   cfg.SAML.Certificate,
		NameIDFormat:     cfg.SAML.NameIDFormat,
		SignRequests:     cfg.SAML.SignRequests,
		OrganizationName: s.orgName,
		OrganizationURL:  s.orgURL,
	}
}

func (s *Service) credentialsFor(cfg *Configuration) oidc.ProviderCredentials {
	scopes := cfg.OIDC.Scopes
	if len(scopes) == 0 {
		scopes = oidc.DefaultScopes
	}
	return oidc.ProviderCredentials{
		ClientID:     cfg.OIDC.ClientID,
		ClientSecret: cfg.OIDC.ClientSecret,
		RedirectURI:  s.OIDCRedirectURI(),
		Scopes:       scopes,
	}
}

// metadataForConfig resolves provider endpoints, through discovery when an
// issuer is configured, from the explicit endpoints otherwise.
func (s *Service) metadataForConfig(ctx context.Context, cfg *Configuration) (*oidc.ProviderMetadata, error) {
	if cfg.OIDC.Issuer != "" {
		md, err := s.oidc.Discover(ctx, cfg.OIDC.Issuer)
		if err != nil {
			return nil, classifyOIDCError(err)
		}
		return md, nil
	}
	return &oidc.ProviderMetadata{
		Issuer:                cfg.OIDC.Issuer,
		AuthorizationEndpoint: cfg.OIDC.AuthorizationEndpoint,
		TokenEndpoint:         cfg.OIDC.TokenEndpoint,
		UserInfoEndpoint:      cfg.OIDC.UserInfoEndpoint,
		JWKSURI:               cfg.OIDC.JWKSURI,
		EndSessionEndpoint:    cfg.OIDC.EndSessionEndpoint,
	}, nil
}

// samlRequestID derives the AuthnRequest ID from the state token so the
// response's InResponseTo identifies the attempt. SAML IDs must not start
// with a digit.
func samlRequestID(stateToken string) string {
	return "_" + stateToken
}

// assertionClaims flattens an assertion into the claims shape the attribute
// mapper consumes. Attributes are keyed by Name and FriendlyName; the
// well-known profile fields are synthesized under their short names when not
// already claimed by an attribute.
func assertionClaims(a *saml.Assertion) map[string]interface{} {
	claims := make(map[string]interface{}, len(a.Attributes)+6)
	for _, attr := range a.Attributes {
		value := attributeClaim(attr.Values)
		if attr.Name != "" {
			claims[attr.Name] = value
		}
		if attr.FriendlyName != "" {
			if _, ok := claims[attr.FriendlyName]; !ok {
				claims[attr.FriendlyName] = value
			}
		}
	}

	extracted := saml.ExtractAttributes(a)
	setIfAbsent := func(key, value string) {
		if value == "" {
			return
		}
		if _, ok := claims[key]; !ok {
			claims[key] = value
		}
	}
	setIfAbsent("email", extracted.Email)
	setIfAbsent("name", extracted.Name)
	setIfAbsent("first_name", extracted.FirstName)
	setIfAbsent("last_name", extracted.LastName)
	if len(extracted.Groups) > 0 {
		if _, ok := claims["groups"]; !ok {
			claims["groups"] = extracted.Groups
		}
	}
	claims["name_id"] = a.NameID
	return claims
}

func attributeClaim(values []string) interface{} {
	if len(values) == 1 {
		return values[0]
	}
	return values
}

// classifySAMLError maps the saml package's sentinels onto the stable error
// taxonomy.
func classifySAMLError(err error) error {
	var statusErr *saml.StatusError
	switch {
	case errors.As(err, &statusErr):
		return NewProtocolError(CodeNonSuccessStatus, err,
			"identity provider returned status %q", statusErr.Code)
	case errors.Is(err, saml.ErrMissingAssertion):
		return NewProtocolError(CodeMissingAssertion, err, "response carries no assertion")
	case errors.Is(err, saml.ErrMalformedResponse):
		return NewProtocolError(CodeMalformedResponse, err, "response could not be parsed")
	case errors.Is(err, saml.ErrMissingSignature):
		return NewValidationError(CodeInvalidSignature, err, "response is unsigned")
	case errors.Is(err, saml.ErrAssertionExpired):
		return NewValidationError(CodeAssertionExpired, err, "assertion has expired")
	case errors.Is(err, saml.ErrAssertionNotYetValid):
		return NewValidationError(CodeAssertionNotYetValid, err, "assertion is not yet valid")
	case errors.Is(err, saml.ErrAudienceMismatch):
		return NewValidationError(CodeAudienceMismatch, err, "assertion audience mismatch")
	default:
		return NewProtocolError(CodeMalformedResponse, err, "saml processing failed")
	}
}

// classifyOIDCError maps the oidc package's sentinels onto the stable error
// taxonomy.
func classifyOIDCError(err error) error {
	var upstream *oidc.UpstreamError
	switch {
	case errors.As(err, &upstream):
		return NewProtocolError(CodeUpstreamError, err,
			"provider returned %d from %s", upstream.StatusCode, upstream.Endpoint)
	case errors.Is(err, oidc.ErrMissingIDToken):
		return NewProtocolError(CodeMissingIDToken, err, "token response carries no id_token")
	case errors.Is(err, oidc.ErrIssuerMismatch):
		return NewValidationError(CodeIssuerMismatch, err, "issuer mismatch")
	case errors.Is(err, oidc.ErrAudienceMismatch), errors.Is(err, oidc.ErrAuthorizedParty):
		return NewValidationError(CodeAudienceMismatch, err, "audience mismatch")
	case errors.Is(err, oidc.ErrTokenExpired):
		return NewValidationError(CodeTokenExpired, err, "id token has expired")
	case errors.Is(err, oidc.ErrTokenNotYetValid):
		return NewValidationError(CodeTokenNotYetValid, err, "id token is not yet valid")
	case errors.Is(err, oidc.ErrNonceMismatch):
		return NewValidationError(CodeNonceMismatch, err, "nonce mismatch")
	case errors.Is(err, oidc.ErrMalformedJWT):
		return NewProtocolError(CodeMalformedResponse, err, "id token could not be decoded")
	default:
		return NewProtocolError(CodeUpstreamError, err, "oidc processing failed")
	}
}

// auditConfig writes a configuration lifecycle event.
func (s *Service) auditConfig(ctx context.Context, eventType audit.EventType, cfg *Configuration, meta RequestMeta, opErr error) {
	event := &audit.Event{
		EventType:   eventType,
		Status:      audit.EventStatusSuccess,
		WorkspaceID: cfg.WorkspaceID,
		ConfigID:    cfg.ID,
		Protocol:    string(cfg.Provider),
		ActorID:     meta.ActorID,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		RequestID:   meta.RequestID,
	}
	if opErr != nil {
		event.Status = audit.EventStatusFailure
		event.ErrorCode = CodeOf(opErr)
		event.Message = opErr.Error()
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WithError(err).Error("failed to write config audit event")
	}
}
