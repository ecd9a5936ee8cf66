package sso

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Ghost521/docusynth-ai-sub003/pkg/audit"
	"github.com/Ghost521/docusynth-ai-sub003/pkg/contextkeys"
	"github.com/Ghost521/docusynth-ai-sub003/pkg/observability"
)

// Handlers exposes the SSO service over HTTP.
type Handlers struct {
	service *Service
	metrics *observability.Metrics

	// AllowManualVerify permits the ?manual=true bypass on domain
	// verification. Off unless the deployment opts in.
	AllowManualVerify bool
}

// NewHandlers creates the HTTP layer over a Service. metrics may be nil.
func NewHandlers(service *Service, metrics *observability.Metrics) *Handlers {
	return &Handlers{service: service, metrics: metrics}
}

// RegisterRoutes registers SSO routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Configuration lifecycle routes
	router.HandleFunc("/sso/configs", h.createConfig).Methods("POST")
	router.HandleFunc("/sso/configs/{id}", h.getConfig).Methods("GET")
	router.HandleFunc("/sso/configs/{id}", h.updateConfig).Methods("PUT")
	router.HandleFunc("/sso/configs/{id}", h.deleteConfig).Methods("DELETE")
	router.HandleFunc("/sso/configs/{id}/enable", h.enableConfig).Methods("POST")
	router.HandleFunc("/sso/configs/{id}/disable", h.disableConfig).Methods("POST")
	router.HandleFunc("/sso/configs/{id}/test-mode", h.setTestMode).Methods("POST")
	router.HandleFunc("/sso/workspaces/{workspace}/configs", h.listConfigs).Methods("GET")
	router.HandleFunc("/sso/presets", h.listPresets).Methods("GET")

	// Domain routing routes
	router.HandleFunc("/sso/workspaces/{workspace}/domains", h.listDomains).Methods("GET")
	router.HandleFunc("/sso/workspaces/{workspace}/domains", h.addDomain).Methods("POST")
	router.HandleFunc("/sso/domains/{id}/verify", h.verifyDomain).Methods("POST")
	router.HandleFunc("/sso/domains/{id}", h.removeDomain).Methods("DELETE")
	router.HandleFunc("/sso/check", h.checkRequired).Methods("GET")

	// Login flow routes
	router.HandleFunc("/sso/login/{id}", h.initiateLogin).Methods("GET", "POST")
	router.HandleFunc("/sso/saml/acs/{id}", h.samlCallback).Methods("POST")
	router.HandleFunc("/sso/saml/metadata/{id}", h.samlMetadata).Methods("GET")
	router.HandleFunc("/sso/saml/slo/{id}", h.samlLogout).Methods("GET", "POST")
	router.HandleFunc("/sso/oidc/callback", h.oidcCallback).Methods("GET")
	router.HandleFunc("/sso/logout/{id}", h.initiateLogout).Methods("POST")

	// Audit routes
	router.HandleFunc("/sso/workspaces/{workspace}/audit", h.queryAudit).Methods("GET")
}

// --- Configuration handlers ---

func (h *Handlers) createConfig(w http.ResponseWriter, r *http.Request) {
	var cfg Configuration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if cfg.WorkspaceID == "" {
		http.Error(w, "workspace_id is required", http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateConfiguration(r.Context(), &cfg, requestMeta(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sanitizeConfig(created))
}

func (h *Handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.GetConfiguration(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sanitizeConfig(cfg))
}

func (h *Handlers) listConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.service.ListConfigurations(r.Context(), mux.Vars(r)["workspace"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]*Configuration, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, sanitizeConfig(cfg))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) updateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg Configuration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	cfg.ID = mux.Vars(r)["id"]

	updated, err := h.service.UpdateConfiguration(r.Context(), &cfg, requestMeta(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sanitizeConfig(updated))
}

func (h *Handlers) deleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteConfiguration(r.Context(), mux.Vars(r)["id"], requestMeta(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) enableConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EnableConfiguration(r.Context(), mux.Vars(r)["id"], requestMeta(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) disableConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DisableConfiguration(r.Context(), mux.Vars(r)["id"], requestMeta(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) setTestMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TestMode bool `json:"test_mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.service.SetTestMode(r.Context(), mux.Vars(r)["id"], body.TestMode, requestMeta(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) listPresets(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ListPresets())
}

// --- Domain handlers ---

func (h *Handlers) listDomains(w http.ResponseWriter, r *http.Request) {
	routings, err := h.service.ListDomains(r.Context(), mux.Vars(r)["workspace"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, routings)
}

// domainResponse pairs a routing with the DNS record the admin must publish.
type domainResponse struct {
	*DomainRouting
	DNSRecordName  string `json:"dns_record_name"`
	DNSRecordValue string `json:"dns_record_value"`
}

func (h *Handlers) addDomain(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ConfigID string `json:"config_id"`
		Domain   string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	routing, err := h.service.AddDomain(r.Context(), mux.Vars(r)["workspace"], body.ConfigID, body.Domain, requestMeta(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	router := h.service.Router()
	h.writeJSON(w, http.StatusCreated, domainResponse{
		DomainRouting:  routing,
		DNSRecordName:  router.DNSRecordName(routing.Domain),
		DNSRecordValue: router.DNSRecordValue(routing.VerificationToken),
	})
}

func (h *Handlers) verifyDomain(w http.ResponseWriter, r *http.Request) {
	manual := r.URL.Query().Get("manual") == "true"
	if manual && !h.AllowManualVerify {
		http.Error(w, "manual domain verification is not enabled", http.StatusForbidden)
		return
	}

	routing, err := h.service.VerifyDomain(r.Context(), mux.Vars(r)["id"], manual, requestMeta(r))
	if h.metrics != nil {
		method := "dns_txt"
		if manual {
			method = "manual"
		}
		status := "success"
		if err != nil {
			status = "failure"
		}
		h.metrics.DomainVerificationsTotal.WithLabelValues(method, status).Inc()
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, routing)
}

func (h *Handlers) removeDomain(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveDomain(r.Context(), mux.Vars(r)["id"], requestMeta(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) checkRequired(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("email")
	if subject == "" {
		subject = r.URL.Query().Get("workspace")
	}
	if subject == "" {
		http.Error(w, "email or workspace query parameter is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.CheckSSORequired(r.Context(), subject)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// --- Login flow handlers ---

func (h *Handlers) initiateLogin(w http.ResponseWriter, r *http.Request) {
	configID := mux.Vars(r)["id"]
	redirectURI := r.URL.Query().Get("redirect_uri")

	start, err := h.service.InitiateLogin(r.Context(), configID, redirectURI, requestMeta(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.StatesCreatedTotal.Inc()
		if cfg, cfgErr := h.service.GetConfiguration(r.Context(), configID); cfgErr == nil {
			h.metrics.LoginsInitiatedTotal.WithLabelValues(string(cfg.Provider)).Inc()
		}
	}
	http.Redirect(w, r, start.RedirectURL, http.StatusFound)
}

func (h *Handlers) samlCallback(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	samlResponse := r.PostFormValue("SAMLResponse")
	relayState := r.PostFormValue("RelayState")
	if samlResponse == "" {
		http.Error(w, "SAMLResponse is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.HandleSAMLCallback(r.Context(), mux.Vars(r)["id"], samlResponse, relayState, requestMeta(r))
	h.recordCallback("saml", started, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) oidcCallback(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		http.Error(w, fmt.Sprintf("provider error: %s: %s", errCode, q.Get("error_description")), http.StatusBadGateway)
		return
	}
	state := q.Get("state")
	code := q.Get("code")
	if state == "" || code == "" {
		http.Error(w, "state and code are required", http.StatusBadRequest)
		return
	}

	result, err := h.service.HandleOIDCCallback(r.Context(), state, code, requestMeta(r))
	h.recordCallback("oidc", started, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) samlMetadata(w http.ResponseWriter, r *http.Request) {
	md, err := h.service.SPMetadata(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.Write(md)
}

func (h *Handlers) samlLogout(w http.ResponseWriter, r *http.Request) {
	encoded := r.URL.Query().Get("SAMLResponse")
	if encoded == "" {
		if err := r.ParseForm(); err == nil {
			encoded = r.PostFormValue("SAMLResponse")
		}
	}
	if encoded == "" {
		http.Error(w, "SAMLResponse is required", http.StatusBadRequest)
		return
	}

	if err := h.service.CompleteSAMLLogout(r.Context(), mux.Vars(r)["id"], encoded, requestMeta(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) initiateLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NameID       string `json:"name_id"`
		SessionIndex string `json:"session_index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	redirectURL, err := h.service.InitiateLogout(r.Context(), mux.Vars(r)["id"], body.NameID, body.SessionIndex, requestMeta(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"redirect_url": redirectURL})
}

// --- Audit handlers ---

func (h *Handlers) queryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{WorkspaceID: mux.Vars(r)["workspace"]}

	for _, t := range q["event_type"] {
		filter.EventTypes = append(filter.EventTypes, audit.EventType(t))
	}
	if status := q.Get("status"); status != "" {
		filter.Status = audit.EventStatus(status)
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			http.Error(w, "since must be RFC 3339", http.StatusBadRequest)
			return
		}
		filter.Since = t
	}
	if until := q.Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			http.Error(w, "until must be RFC 3339", http.StatusBadRequest)
			return
		}
		filter.Until = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	events, err := h.service.QueryAuditEvents(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, events)
}

// --- Helpers ---

func (h *Handlers) recordCallback(protocol string, started time.Time, err error) {
	if h.metrics == nil {
		return
	}
	status := "success"
	errorCode := ""
	if err != nil {
		status = "failure"
		errorCode = CodeOf(err)
	}
	h.metrics.LoginsCompletedTotal.WithLabelValues(protocol, status, errorCode).Inc()
	h.metrics.LoginDuration.WithLabelValues(protocol).Observe(time.Since(started).Seconds())

	switch errorCode {
	case "":
		h.metrics.StatesConsumedTotal.WithLabelValues("success").Inc()
	case CodeStateNotFound:
		h.metrics.StatesConsumedTotal.WithLabelValues("not_found").Inc()
	case CodeStateUsed:
		h.metrics.StatesConsumedTotal.WithLabelValues("already_used").Inc()
	case CodeStateExpired:
		h.metrics.StatesConsumedTotal.WithLabelValues("expired").Inc()
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch KindOf(err) {
	case KindConfiguration:
		switch CodeOf(err) {
		case CodeConfigNotFound, CodeDomainNotFound:
			status = http.StatusNotFound
		case CodeDomainTaken:
			status = http.StatusConflict
		default:
			status = http.StatusUnprocessableEntity
		}
	case KindValidation, KindState:
		status = http.StatusUnauthorized
	case KindProtocol:
		status = http.StatusBadGateway
	case KindMapping:
		status = http.StatusUnprocessableEntity
	}

	h.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  CodeOf(err),
	})
}

// sanitizeConfig strips secrets before a configuration leaves the API.
func sanitizeConfig(cfg *Configuration) *Configuration {
	out := *cfg
	if cfg.OIDC != nil {
		oidc := *cfg.OIDC
		oidc.ClientSecret = ""
		out.OIDC = &oidc
	}
	return &out
}

// requestMeta prefers values placed in the context by
// middleware.RequestContext and falls back to raw headers for deployments
// that mount the handlers without it.
func requestMeta(r *http.Request) RequestMeta {
	ctx := r.Context()

	ip := contextkeys.GetClientIP(ctx)
	if ip == "" {
		ip = r.Header.Get("X-Forwarded-For")
	}
	if ip == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}

	actorID := contextkeys.GetActorID(ctx)
	if actorID == "" {
		actorID = r.Header.Get("X-Actor-ID")
	}
	requestID := contextkeys.GetRequestID(ctx)
	if requestID == "" {
		requestID = r.Header.Get("X-Request-ID")
	}

	return RequestMeta{
		ActorID:   actorID,
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		RequestID: requestID,
	}
}
