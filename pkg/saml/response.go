package saml

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// timeNow is swapped in tests to pin condition validation.
var timeNow = time.Now

// ParseResponse decodes a base64 SAMLResponse POST parameter and extracts the
// assertion. It does not verify the signature or evaluate conditions; those
// are separate steps so each failure audits under its own code.
func ParseResponse(encoded string) (*ResponseInfo, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrMalformedResponse, err)
	}

	var resp responseXML
	if err := xml.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	info := &ResponseInfo{
		Raw:          raw,
		ResponseID:   resp.ID,
		InResponseTo: resp.InResponseTo,
		Destination:  resp.Destination,
		Issuer:       strings.TrimSpace(resp.Issuer),
		StatusCode:   resp.Status.StatusCode.Value,
	}

	if info.StatusCode != StatusSuccess {
		return info, &StatusError{Code: info.StatusCode}
	}
	if resp.Assertion == nil {
		return info, ErrMissingAssertion
	}

	assertion := &Assertion{
		ID:           resp.Assertion.ID,
		Issuer:       strings.TrimSpace(resp.Assertion.Issuer),
		NameID:       strings.TrimSpace(resp.Assertion.Subject.NameID.Value),
		NameIDFormat: resp.Assertion.Subject.NameID.Format,
		SessionIndex: resp.Assertion.AuthnStatement.SessionIndex,
	}
	if assertion.Issuer == "" {
		assertion.Issuer = info.Issuer
	}
	if c := resp.Assertion.Conditions; c != nil {
		if assertion.NotBefore, err = parseInstant(c.NotBefore); err != nil {
			return info, fmt.Errorf("%w: bad NotBefore: %v", ErrMalformedResponse, err)
		}
		if assertion.NotOnOrAfter, err = parseInstant(c.NotOnOrAfter); err != nil {
			return info, fmt.Errorf("%w: bad NotOnOrAfter: %v", ErrMalformedResponse, err)
		}
		for _, aud := range c.AudienceRestriction.Audiences {
			if aud = strings.TrimSpace(aud); aud != "" {
				assertion.Audiences = append(assertion.Audiences, aud)
			}
		}
	}
	for _, attr := range resp.Assertion.AttributeStatement.Attributes {
		values := make([]string, 0, len(attr.Values))
		for _, v := range attr.Values {
			values = append(values, strings.TrimSpace(v))
		}
		assertion.Attributes = append(assertion.Attributes, Attribute{
			Name:         attr.Name,
			FriendlyName: attr.FriendlyName,
			Values:       values,
		})
	}

	info.Assertion = assertion
	return info, nil
}

// ValidateConditions checks the assertion validity window and audience
// restriction against the expected audience, tolerating clock skew in both
// directions. A zero NotBefore/NotOnOrAfter is treated as absent; an absent
// audience restriction passes.
func ValidateConditions(a *Assertion, expectedAudience string, skew time.Duration) error {
	now := timeNow().UTC()
	if !a.NotBefore.IsZero() && now.Before(a.NotBefore.Add(-skew)) {
		return fmt.Errorf("%w: NotBefore=%s now=%s", ErrAssertionNotYetValid,
			a.NotBefore.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	if !a.NotOnOrAfter.IsZero() && now.After(a.NotOnOrAfter.Add(skew)) {
		return fmt.Errorf("%w: NotOnOrAfter=%s now=%s", ErrAssertionExpired,
			a.NotOnOrAfter.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	if len(a.Audiences) > 0 && expectedAudience != "" {
		for _, aud := range a.Audiences {
			if aud == expectedAudience {
				return nil
			}
		}
		return fmt.Errorf("%w: want %q, assertion restricted to %v",
			ErrAudienceMismatch, expectedAudience, a.Audiences)
	}
	return nil
}

// ExtractedIdentity is the profile information pulled out of an assertion by
// well-known attribute names.
type ExtractedIdentity struct {
	Email     string
	Name      string
	FirstName string
	LastName  string
	Groups    []string
}

// Ordered well-known attribute names per profile field. Sources: RFC 2798
// (inetOrgPerson), the WS-Fed/ADFS claim URIs, and the short names common to
// Okta and OneLogin.
var (
	emailAttrNames = []string{
		"email", "mail", "emailaddress",
		"urn:oid:0.9.2342.19200300.100.1.3",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
	}
	nameAttrNames = []string{
		"name", "displayname", "cn",
		"urn:oid:2.5.4.3",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name",
	}
	firstNameAttrNames = []string{
		"givenname", "firstname",
		"urn:oid:2.5.4.42",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname",
	}
	lastNameAttrNames = []string{
		"surname", "sn", "lastname",
		"urn:oid:2.5.4.4",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname",
	}
	groupsAttrNames = []string{
		"groups", "memberof",
		"http://schemas.microsoft.com/ws/2008/06/identity/claims/groups",
		"http://schemas.xmlsoap.org/claims/Group",
	}
)

// ExtractAttributes resolves the canonical profile fields from an assertion,
// trying each well-known attribute name in order. The NameID doubles as the
// email when its format indicates an email address and no email attribute is
// present.
func ExtractAttributes(a *Assertion) ExtractedIdentity {
	id := ExtractedIdentity{
		Email:     firstAttr(a, emailAttrNames),
		Name:      firstAttr(a, nameAttrNames),
		FirstName: firstAttr(a, firstNameAttrNames),
		LastName:  firstAttr(a, lastNameAttrNames),
	}
	for _, name := range groupsAttrNames {
		if vals := a.AttributeValues(name); len(vals) > 0 {
			id.Groups = vals
			break
		}
	}
	if id.Email == "" && a.NameIDFormat == NameIDFormatEmailAddress {
		id.Email = a.NameID
	}
	return id
}

func firstAttr(a *Assertion, names []string) string {
	for _, name := range names {
		if v := a.AttributeValue(name); v != "" {
			return v
		}
	}
	return ""
}

// LogoutResponseInfo is the decoded view of an IdP LogoutResponse.
type LogoutResponseInfo struct {
	ResponseID   string
	InResponseTo string
	Issuer       string
	StatusCode   string
}

type logoutResponseXML struct {
	XMLName      xml.Name  `xml:"LogoutResponse"`
	ID           string    `xml:"ID,attr"`
	InResponseTo string    `xml:"InResponseTo,attr"`
	Issuer       string    `xml:"Issuer"`
	Status       statusXML `xml:"Status"`
}

// ParseLogoutResponse decodes a base64 SAMLResponse carried on the single
// logout binding. A non-Success status is reported as a StatusError.
func ParseLogoutResponse(encoded string) (*LogoutResponseInfo, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrMalformedResponse, err)
	}
	var resp logoutResponseXML
	if err := xml.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	info := &LogoutResponseInfo{
		ResponseID:   resp.ID,
		InResponseTo: resp.InResponseTo,
		Issuer:       strings.TrimSpace(resp.Issuer),
		StatusCode:   resp.Status.StatusCode.Value,
	}
	if info.StatusCode != StatusSuccess {
		return info, &StatusError{Code: info.StatusCode}
	}
	return info, nil
}

// parseInstant parses a SAML xs:dateTime. An empty string maps to the zero
// time, meaning the condition is absent; a present but unparseable instant is
// an error rather than a silently skipped check.
func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
