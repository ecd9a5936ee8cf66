package sso

// Preset carries the provider-specific defaults an admin would otherwise
// copy out of vendor documentation: claim paths, scopes, and NameID format.
type Preset struct {
	Name        string            `json:"name"`
	Provider    Provider          `json:"provider"`
	Description string            `json:"description"`
	Scopes      []string          `json:"scopes,omitempty"`
	NameIDFormat string           `json:"name_id_format,omitempty"`
	Mapping     AttributeMapping  `json:"mapping"`
}

var presets = map[string]Preset{
	"okta-saml": {
		Name:         "Okta (SAML)",
		Provider:     ProviderSAML,
		Description:  "Okta with the default SAML attribute statements",
		NameIDFormat: "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress",
		Mapping: AttributeMapping{
			EmailPath:     "email",
			FirstNamePath: "firstName",
			LastNamePath:  "lastName",
			GroupsPath:    "groups",
		},
	},
	"okta-oidc": {
		Name:        "Okta (OIDC)",
		Provider:    ProviderOIDC,
		Description: "Okta OIDC with the groups claim enabled on the authorization server",
		Scopes:      []string{"openid", "profile", "email", "groups"},
		Mapping: AttributeMapping{
			EmailPath:     "email",
			NamePath:      "name",
			FirstNamePath: "given_name",
			LastNamePath:  "family_name",
			GroupsPath:    "groups",
		},
	},
	"azure-ad-saml": {
		Name:         "Microsoft Entra ID (SAML)",
		Provider:     ProviderSAML,
		Description:  "Entra ID (Azure AD) enterprise application with default claims",
		NameIDFormat: "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress",
		Mapping: AttributeMapping{
			EmailPath:     "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
			FirstNamePath: "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname",
			LastNamePath:  "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname",
			GroupsPath:    "http://schemas.microsoft.com/ws/2008/06/identity/claims/groups",
		},
	},
	"azure-ad-oidc": {
		Name:        "Microsoft Entra ID (OIDC)",
		Provider:    ProviderOIDC,
		Description: "Entra ID (Azure AD) app registration, groups emitted as IDs",
		Scopes:      []string{"openid", "profile", "email"},
		Mapping: AttributeMapping{
			EmailPath:  "preferred_username",
			NamePath:   "name",
			GroupsPath: "groups",
		},
	},
	"google-oidc": {
		Name:        "Google Workspace (OIDC)",
		Provider:    ProviderOIDC,
		Description: "Google Workspace sign-in; Google does not emit groups in the ID token",
		Scopes:      []string{"openid", "profile", "email"},
		Mapping: AttributeMapping{
			EmailPath:     "email",
			NamePath:      "name",
			FirstNamePath: "given_name",
			LastNamePath:  "family_name",
		},
	},
	"google-saml": {
		Name:         "Google Workspace (SAML)",
		Provider:     ProviderSAML,
		Description:  "Google Workspace custom SAML app with mapped attributes",
		NameIDFormat: "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress",
		Mapping: AttributeMapping{
			EmailPath:     "email",
			FirstNamePath: "first_name",
			LastNamePath:  "last_name",
			GroupsPath:    "groups",
		},
	},
}

// GetPreset returns the named provider preset. Operator-defined presets
// loaded with LoadPresetsFile shadow built-in ones.
func GetPreset(name string) (Preset, bool) {
	customPresetsMu.RLock()
	p, ok := customPresets[name]
	customPresetsMu.RUnlock()
	if ok {
		return p, true
	}
	p, ok = presets[name]
	return p, ok
}

// ListPresets returns all known provider presets keyed by preset name.
func ListPresets() map[string]Preset {
	customPresetsMu.RLock()
	defer customPresetsMu.RUnlock()

	out := make(map[string]Preset, len(presets)+len(customPresets))
	for k, v := range presets {
		out[k] = v
	}
	for k, v := range customPresets {
		out[k] = v
	}
	return out
}

// ApplyPreset fills a configuration's mapping and provider defaults from a
// preset, leaving admin-supplied values untouched.
func ApplyPreset(cfg *Configuration, preset Preset) {
	cfg.Provider = preset.Provider
	if cfg.Mapping.EmailPath == "" {
		cfg.Mapping = preset.Mapping
	}
	switch preset.Provider {
	case ProviderSAML:
		if cfg.SAML == nil {
			cfg.SAML = &SAMLSettings{}
		}
		if cfg.SAML.NameIDFormat == "" {
			cfg.SAML.NameIDFormat = preset.NameIDFormat
		}
	case ProviderOIDC:
		if cfg.OIDC == nil {
			cfg.OIDC = &OIDCSettings{}
		}
		if len(cfg.OIDC.Scopes) == 0 {
			cfg.OIDC.Scopes = append([]string(nil), preset.Scopes...)
		}
	}
}
