package saml

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata(t *testing.T) {
	sp := testServiceProvider()
	sp.OrganizationName = "DocuSynth"
	sp.OrganizationURL = "https://docusynth.io"

	out, err := sp.Metadata()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), xml.Header))

	var parsed struct {
		EntityID   string `xml:"entityID,attr"`
		Descriptor struct {
			AuthnRequestsSigned  bool     `xml:"AuthnRequestsSigned,attr"`
			WantAssertionsSigned bool     `xml:"WantAssertionsSigned,attr"`
			Protocols            string   `xml:"protocolSupportEnumeration,attr"`
			NameIDFormats        []string `xml:"NameIDFormat"`
			SLO                  []struct {
				Binding  string `xml:"Binding,attr"`
				Location string `xml:"Location,attr"`
			} `xml:"SingleLogoutService"`
			ACS []struct {
				Binding   string `xml:"Binding,attr"`
				Location  string `xml:"Location,attr"`
				Index     int    `xml:"index,attr"`
				IsDefault bool   `xml:"isDefault,attr"`
			} `xml:"AssertionConsumerService"`
		} `xml:"SPSSODescriptor"`
		Organization struct {
			DisplayName string `xml:"OrganizationDisplayName"`
			URL         string `xml:"OrganizationURL"`
		} `xml:"Organization"`
	}
	require.NoError(t, xml.Unmarshal(out, &parsed))

	assert.Equal(t, sp.EntityID, parsed.EntityID)
	assert.False(t, parsed.Descriptor.AuthnRequestsSigned)
	assert.True(t, parsed.Descriptor.WantAssertionsSigned)
	assert.Equal(t, ProtocolNamespace, parsed.Descriptor.Protocols)
	assert.Equal(t, []string{
		NameIDFormatEmailAddress,
		NameIDFormatPersistent,
		NameIDFormatUnspecified,
	}, parsed.Descriptor.NameIDFormats)

	require.Len(t, parsed.Descriptor.ACS, 1)
	assert.Equal(t, BindingHTTPPost, parsed.Descriptor.ACS[0].Binding)
	assert.Equal(t, sp.ACSURL, parsed.Descriptor.ACS[0].Location)
	assert.Equal(t, 0, parsed.Descriptor.ACS[0].Index)
	assert.True(t, parsed.Descriptor.ACS[0].IsDefault)

	require.Len(t, parsed.Descriptor.SLO, 2)
	assert.Equal(t, BindingHTTPRedirect, parsed.Descriptor.SLO[0].Binding)
	assert.Equal(t, BindingHTTPPost, parsed.Descriptor.SLO[1].Binding)
	assert.Equal(t, sp.SLOURL, parsed.Descriptor.SLO[0].Location)

	assert.Equal(t, "DocuSynth", parsed.Organization.DisplayName)
	assert.Equal(t, "https://docusynth.io", parsed.Organization.URL)
}

func TestMetadataConfiguredNameIDFormat(t *testing.T) {
	sp := testServiceProvider()
	sp.NameIDFormat = NameIDFormatPersistent
	sp.SignRequests = true
	sp.SLOURL = ""

	out, err := sp.Metadata()
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, `AuthnRequestsSigned="true"`)
	assert.Contains(t, s, NameIDFormatPersistent)
	assert.NotContains(t, s, NameIDFormatEmailAddress)
	assert.NotContains(t, s, "SingleLogoutService")
	assert.NotContains(t, s, "Organization")
}
