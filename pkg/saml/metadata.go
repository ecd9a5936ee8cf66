package saml

import (
	"encoding/xml"
	"fmt"
)

// Metadata document structs. Element order follows the SPSSODescriptor
// sequence in saml-metadata-2.0-os.pdf so commodity IdPs accept the output
// without modification.

type entityDescriptor struct {
	XMLName         xml.Name        `xml:"md:EntityDescriptor"`
	MD              string          `xml:"xmlns:md,attr"`
	EntityID        string          `xml:"entityID,attr"`
	SPSSODescriptor spSSODescriptor `xml:"md:SPSSODescriptor"`
	Organization    *organization   `xml:"md:Organization,omitempty"`
}

type spSSODescriptor struct {
	AuthnRequestsSigned        bool                       `xml:"AuthnRequestsSigned,attr"`
	WantAssertionsSigned       bool                       `xml:"WantAssertionsSigned,attr"`
	ProtocolSupportEnumeration string                     `xml:"protocolSupportEnumeration,attr"`
	SingleLogoutServices       []endpoint                 `xml:"md:SingleLogoutService"`
	NameIDFormats              []string                   `xml:"md:NameIDFormat"`
	AssertionConsumerServices  []indexedEndpoint          `xml:"md:AssertionConsumerService"`
}

type endpoint struct {
	Binding  string `xml:"Binding,attr"`
	Location string `xml:"Location,attr"`
}

type indexedEndpoint struct {
	Binding   string `xml:"Binding,attr"`
	Location  string `xml:"Location,attr"`
	Index     int    `xml:"index,attr"`
	IsDefault bool   `xml:"isDefault,attr"`
}

type organization struct {
	Name        localizedValue `xml:"md:OrganizationName"`
	DisplayName localizedValue `xml:"md:OrganizationDisplayName"`
	URL         localizedValue `xml:"md:OrganizationURL"`
}

type localizedValue struct {
	Lang  string `xml:"xml:lang,attr"`
	Value string `xml:",chardata"`
}

// Metadata emits the SP EntityDescriptor for this service provider: the ACS
// endpoint on the POST binding (index 0, default), single-logout endpoints on
// both Redirect and POST bindings, supported NameID formats, and the
// organization block.
func (sp *ServiceProvider) Metadata() ([]byte, error) {
	nameIDFormats := []string{
		NameIDFormatEmailAddress,
		NameIDFormatPersistent,
		NameIDFormatUnspecified,
	}
	if sp.NameIDFormat != "" {
		nameIDFormats = []string{sp.NameIDFormat}
	}

	desc := entityDescriptor{
		MD:       MetadataNamespace,
		EntityID: sp.EntityID,
		SPSSODescriptor: spSSODescriptor{
			AuthnRequestsSigned:        sp.SignRequests,
			WantAssertionsSigned:       true,
			ProtocolSupportEnumeration: ProtocolNamespace,
			NameIDFormats:              nameIDFormats,
			AssertionConsumerServices: []indexedEndpoint{
				{Binding: BindingHTTPPost, Location: sp.ACSURL, Index: 0, IsDefault: true},
			},
		},
	}
	if sp.SLOURL != "" {
		desc.SPSSODescriptor.SingleLogoutServices = []endpoint{
			{Binding: BindingHTTPRedirect, Location: sp.SLOURL},
			{Binding: BindingHTTPPost, Location: sp.SLOURL},
		}
	}
	if sp.OrganizationName != "" {
		desc.Organization = &organization{
			Name:        localizedValue{Lang: "en", Value: sp.OrganizationName},
			DisplayName: localizedValue{Lang: "en", Value: sp.OrganizationName},
			URL:         localizedValue{Lang: "en", Value: sp.OrganizationURL},
		}
	}

	out, err := xml.MarshalIndent(desc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("saml: failed to marshal SP metadata: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
