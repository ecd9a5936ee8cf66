package saml

import (
	"encoding/xml"
	"strings"
	"time"
)

// SAML 2.0 namespace and binding URIs.
const (
	ProtocolNamespace  = "urn:oasis:names:tc:SAML:2.0:protocol"
	AssertionNamespace = "urn:oasis:names:tc:SAML:2.0:assertion"
	MetadataNamespace  = "urn:oasis:names:tc:SAML:2.0:metadata"

	BindingHTTPPost     = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
	BindingHTTPRedirect = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"

	StatusSuccess = "urn:oasis:names:tc:SAML:2.0:status:Success"

	NameIDFormatUnspecified  = "urn:oasis:names:tc:SAML:1.1:nameid-format:unspecified"
	NameIDFormatEmailAddress = "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress"
	NameIDFormatPersistent   = "urn:oasis:names:tc:SAML:2.0:nameid-format:persistent"
	NameIDFormatTransient    = "urn:oasis:names:tc:SAML:2.0:nameid-format:transient"
)

// DefaultClockSkew is the tolerance applied to NotBefore/NotOnOrAfter when
// validating assertion conditions.
const DefaultClockSkew = 5 * time.Minute

// AuthnRequest is the outbound authentication request document.
// See saml-core-2.0-os.pdf section 3.4.1.
type AuthnRequest struct {
	XMLName                     xml.Name
	SAMLP                       string        `xml:"xmlns:samlp,attr"`
	SAML                        string        `xml:"xmlns:saml,attr"`
	ID                          string        `xml:"ID,attr"`
	Version                     string        `xml:"Version,attr"`
	IssueInstant                string        `xml:"IssueInstant,attr"`
	Destination                 string        `xml:"Destination,attr"`
	ProtocolBinding             string        `xml:"ProtocolBinding,attr"`
	AssertionConsumerServiceURL string        `xml:"AssertionConsumerServiceURL,attr"`
	Issuer                      Issuer        `xml:"Issuer"`
	NameIDPolicy                *NameIDPolicy `xml:"NameIDPolicy,omitempty"`
}

// LogoutRequest is the outbound single-logout request document.
// See saml-core-2.0-os.pdf section 3.7.1.
type LogoutRequest struct {
	XMLName      xml.Name
	SAMLP        string  `xml:"xmlns:samlp,attr"`
	SAML         string  `xml:"xmlns:saml,attr"`
	ID           string  `xml:"ID,attr"`
	Version      string  `xml:"Version,attr"`
	IssueInstant string  `xml:"IssueInstant,attr"`
	Destination  string  `xml:"Destination,attr"`
	Issuer       Issuer  `xml:"Issuer"`
	NameID       NameID  `xml:"NameID"`
	SessionIndex *string `xml:"samlp:SessionIndex,omitempty"`
}

// Issuer identifies the entity that generated the message.
type Issuer struct {
	XMLName xml.Name
	Format  string `xml:"Format,attr,omitempty"`
	Value   string `xml:",chardata"`
}

// NameID carries the subject identifier in requests we build.
type NameID struct {
	XMLName xml.Name
	Format  string `xml:"Format,attr,omitempty"`
	Value   string `xml:",chardata"`
}

// NameIDPolicy constrains the NameID format the IdP may return.
type NameIDPolicy struct {
	XMLName     xml.Name
	AllowCreate bool   `xml:"AllowCreate,attr"`
	Format      string `xml:"Format,attr"`
}

// Attribute is a single assertion attribute with its ordered values.
type Attribute struct {
	Name         string
	FriendlyName string
	Values       []string
}

// Assertion is the validated, decoded view of an IdP assertion.
type Assertion struct {
	ID           string
	Issuer       string
	NameID       string
	NameIDFormat string
	SessionIndex string
	NotBefore    time.Time
	NotOnOrAfter time.Time
	Audiences    []string
	Attributes   []Attribute
}

// AttributeValue returns the first value of the named attribute, matching the
// attribute Name or FriendlyName case-insensitively. Multi-valued attributes
// keep their order in Attribute.Values; single values collapse to the scalar
// returned here.
func (a *Assertion) AttributeValue(name string) string {
	vals := a.AttributeValues(name)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// AttributeValues returns all values of the named attribute.
func (a *Assertion) AttributeValues(name string) []string {
	for _, attr := range a.Attributes {
		if strings.EqualFold(attr.Name, name) || (attr.FriendlyName != "" && strings.EqualFold(attr.FriendlyName, name)) {
			return attr.Values
		}
	}
	return nil
}

// ResponseInfo is the outcome of parsing a SAMLResponse POST parameter.
type ResponseInfo struct {
	// Raw is the decoded XML document, retained for signature validation.
	Raw []byte

	ResponseID   string
	InResponseTo string
	Destination  string
	Issuer       string
	StatusCode   string
	Assertion    *Assertion
}

// Wire-format structs used only for decoding inbound documents. encoding/xml
// matches local names across namespaces, which tolerates the prefix variation
// seen between IdP vendors.

type responseXML struct {
	XMLName      xml.Name      `xml:"Response"`
	ID           string        `xml:"ID,attr"`
	InResponseTo string        `xml:"InResponseTo,attr"`
	Destination  string        `xml:"Destination,attr"`
	Issuer       string        `xml:"Issuer"`
	Status       statusXML     `xml:"Status"`
	Assertion    *assertionXML `xml:"Assertion"`
}

type statusXML struct {
	StatusCode struct {
		Value string `xml:"Value,attr"`
	} `xml:"StatusCode"`
}

type assertionXML struct {
	ID      string `xml:"ID,attr"`
	Issuer  string `xml:"Issuer"`
	Subject struct {
		NameID struct {
			Format string `xml:"Format,attr"`
			Value  string `xml:",chardata"`
		} `xml:"NameID"`
	} `xml:"Subject"`
	Conditions *conditionsXML `xml:"Conditions"`
	AuthnStatement struct {
		SessionIndex string `xml:"SessionIndex,attr"`
	} `xml:"AuthnStatement"`
	AttributeStatement struct {
		Attributes []attributeXML `xml:"Attribute"`
	} `xml:"AttributeStatement"`
}

type conditionsXML struct {
	NotBefore           string `xml:"NotBefore,attr"`
	NotOnOrAfter        string `xml:"NotOnOrAfter,attr"`
	AudienceRestriction struct {
		Audiences []string `xml:"Audience"`
	} `xml:"AudienceRestriction"`
}

type attributeXML struct {
	Name         string   `xml:"Name,attr"`
	FriendlyName string   `xml:"FriendlyName,attr"`
	Values       []string `xml:"AttributeValue"`
}
