package saml

import (
	"bytes"
	"compress/flate"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"net/url"
	"time"
)

// ServiceProvider holds the endpoints and IdP trust material for one SAML
// configuration. The SSO orchestrator builds one per login attempt from the
// workspace configuration.
type ServiceProvider struct {
	// EntityID is the SP issuer, also used as the expected assertion audience.
	EntityID string
	// ACSURL receives the SAMLResponse POST.
	ACSURL string
	// SLOURL is the SP's single-logout endpoint, advertised in metadata.
	SLOURL string

	IDPSSOURL      string
	IDPSLOURL      string
	IDPIssuer      string
	IDPCertificate string // PEM-encoded X.509 certificate(s)

	NameIDFormat string
	SignRequests bool

	OrganizationName string
	OrganizationURL  string
}

// RequestArtifact is a built protocol request plus the redirect URL carrying
// it on the HTTP-Redirect binding.
type RequestArtifact struct {
	XML         []byte
	ID          string
	RedirectURL string
}

// BuildAuthnRequest constructs an AuthnRequest addressed to the IdP SSO URL.
// If id is empty a fresh unique request ID is generated. relayState, when
// non-empty, is carried as the RelayState query parameter.
func (sp *ServiceProvider) BuildAuthnRequest(id, relayState string) (*RequestArtifact, error) {
	if sp.IDPSSOURL == "" {
		return nil, fmt.Errorf("saml: IdP SSO URL is not configured")
	}
	if id == "" {
		id = generateRequestID()
	}

	req := AuthnRequest{
		XMLName:                     xml.Name{Local: "samlp:AuthnRequest"},
		SAMLP:                       ProtocolNamespace,
		SAML:                        AssertionNamespace,
		ID:                          id,
		Version:                     "2.0",
		IssueInstant:                time.Now().UTC().Format(time.RFC3339),
		Destination:                 sp.IDPSSOURL,
		ProtocolBinding:             BindingHTTPPost,
		AssertionConsumerServiceURL: sp.ACSURL,
		Issuer: Issuer{
			XMLName: xml.Name{Local: "saml:Issuer"},
			Format:  "urn:oasis:names:tc:SAML:2.0:nameid-format:entity",
			Value:   sp.EntityID,
		},
	}
	if sp.NameIDFormat != "" {
		req.NameIDPolicy = &NameIDPolicy{
			XMLName:     xml.Name{Local: "samlp:NameIDPolicy"},
			AllowCreate: true,
			Format:      sp.NameIDFormat,
		}
	}

	doc, err := xml.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("saml: failed to marshal AuthnRequest: %w", err)
	}
	redirect, err := redirectBindingURL(sp.IDPSSOURL, doc, relayState)
	if err != nil {
		return nil, err
	}
	return &RequestArtifact{XML: doc, ID: id, RedirectURL: redirect}, nil
}

// BuildLogoutRequest constructs a LogoutRequest for the IdP SLO URL.
func (sp *ServiceProvider) BuildLogoutRequest(nameID, sessionIndex, relayState string) (*RequestArtifact, error) {
	if sp.IDPSLOURL == "" {
		return nil, fmt.Errorf("saml: IdP SLO URL is not configured")
	}
	id := generateRequestID()

	format := sp.NameIDFormat
	if format == "" {
		format = NameIDFormatUnspecified
	}
	req := LogoutRequest{
		XMLName:      xml.Name{Local: "samlp:LogoutRequest"},
		SAMLP:        ProtocolNamespace,
		SAML:         AssertionNamespace,
		ID:           id,
		Version:      "2.0",
		IssueInstant: time.Now().UTC().Format(time.RFC3339),
		Destination:  sp.IDPSLOURL,
		Issuer: Issuer{
			XMLName: xml.Name{Local: "saml:Issuer"},
			Value:   sp.EntityID,
		},
		NameID: NameID{
			XMLName: xml.Name{Local: "saml:NameID"},
			Format:  format,
			Value:   nameID,
		},
	}
	if sessionIndex != "" {
		req.SessionIndex = &sessionIndex
	}

	doc, err := xml.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("saml: failed to marshal LogoutRequest: %w", err)
	}
	redirect, err := redirectBindingURL(sp.IDPSLOURL, doc, relayState)
	if err != nil {
		return nil, err
	}
	return &RequestArtifact{XML: doc, ID: id, RedirectURL: redirect}, nil
}

// redirectBindingURL encodes doc for the HTTP-Redirect binding: raw DEFLATE,
// base64, then URL encoding as the SAMLRequest query parameter.
// See saml-bindings-2.0-os.pdf section 3.4.4.1.
func redirectBindingURL(destination string, doc []byte, relayState string) (string, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return "", fmt.Errorf("saml: failed to create deflate writer: %w", err)
	}
	if _, err := w.Write(doc); err != nil {
		return "", fmt.Errorf("saml: failed to deflate request: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("saml: failed to flush deflate stream: %w", err)
	}

	u, err := url.Parse(destination)
	if err != nil {
		return "", fmt.Errorf("saml: invalid destination URL: %w", err)
	}
	q := u.Query()
	q.Set("SAMLRequest", base64.StdEncoding.EncodeToString(buf.Bytes()))
	if relayState != "" {
		q.Set("RelayState", relayState)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// generateRequestID returns a SAML-valid unique ID. IDs must start with a
// letter or underscore, so the random hex is prefixed.
func generateRequestID() string {
	b := make([]byte, 20)
	rand.Read(b)
	return "_" + hex.EncodeToString(b)
}
