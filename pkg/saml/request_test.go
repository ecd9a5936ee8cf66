package saml

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/xml"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServiceProvider() *ServiceProvider {
	return &ServiceProvider{
		EntityID:  "https://app.docusynth.io/saml/metadata/ws-1",
		ACSURL:    "https://app.docusynth.io/saml/acs/ws-1",
		SLOURL:    "https://app.docusynth.io/saml/slo/ws-1",
		IDPSSOURL: "https://idp.example.com/sso",
		IDPSLOURL: "https://idp.example.com/slo",
		IDPIssuer: "https://idp.example.com",
	}
}

// decodeRedirectParam reverses the HTTP-Redirect binding encoding of the
// named query parameter: URL decode, base64 decode, then inflate.
func decodeRedirectParam(t *testing.T, redirectURL, param string) []byte {
	t.Helper()

	u, err := url.Parse(redirectURL)
	require.NoError(t, err)
	encoded := u.Query().Get(param)
	require.NotEmpty(t, encoded, "redirect URL missing %s parameter", param)

	deflated, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	r := flate.NewReader(bytes.NewReader(deflated))
	defer r.Close()
	doc, err := io.ReadAll(r)
	require.NoError(t, err, "parameter is not a raw deflate stream")
	return doc
}

func TestBuildAuthnRequest(t *testing.T) {
	sp := testServiceProvider()

	artifact, err := sp.BuildAuthnRequest("", "relay-123")
	require.NoError(t, err)

	assert.NotEmpty(t, artifact.ID)
	assert.True(t, strings.HasPrefix(artifact.ID, "_"), "request ID must start with an underscore")

	doc := decodeRedirectParam(t, artifact.RedirectURL, "SAMLRequest")
	assert.Equal(t, artifact.XML, doc, "redirect parameter must round-trip to the request XML")

	var req struct {
		ID                          string `xml:"ID,attr"`
		Version                     string `xml:"Version,attr"`
		Destination                 string `xml:"Destination,attr"`
		ProtocolBinding             string `xml:"ProtocolBinding,attr"`
		AssertionConsumerServiceURL string `xml:"AssertionConsumerServiceURL,attr"`
		Issuer                      string `xml:"Issuer"`
	}
	require.NoError(t, xml.Unmarshal(doc, &req))
	assert.Equal(t, artifact.ID, req.ID)
	assert.Equal(t, "2.0", req.Version)
	assert.Equal(t, sp.IDPSSOURL, req.Destination)
	assert.Equal(t, BindingHTTPPost, req.ProtocolBinding)
	assert.Equal(t, sp.ACSURL, req.AssertionConsumerServiceURL)
	assert.Equal(t, sp.EntityID, req.Issuer)

	u, err := url.Parse(artifact.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "relay-123", u.Query().Get("RelayState"))
	assert.Equal(t, "idp.example.com", u.Host)
}

func TestBuildAuthnRequestUniqueIDs(t *testing.T) {
	sp := testServiceProvider()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		artifact, err := sp.BuildAuthnRequest("", "")
		require.NoError(t, err)
		assert.False(t, seen[artifact.ID], "request ID %q repeated", artifact.ID)
		seen[artifact.ID] = true
	}
}

func TestBuildAuthnRequestExplicitID(t *testing.T) {
	sp := testServiceProvider()

	artifact, err := sp.BuildAuthnRequest("_fixed-id", "")
	require.NoError(t, err)
	assert.Equal(t, "_fixed-id", artifact.ID)

	u, err := url.Parse(artifact.RedirectURL)
	require.NoError(t, err)
	assert.Empty(t, u.Query().Get("RelayState"))
}

func TestBuildAuthnRequestNameIDPolicy(t *testing.T) {
	sp := testServiceProvider()
	sp.NameIDFormat = NameIDFormatEmailAddress

	artifact, err := sp.BuildAuthnRequest("", "")
	require.NoError(t, err)
	assert.Contains(t, string(artifact.XML), `NameIDPolicy`)
	assert.Contains(t, string(artifact.XML), NameIDFormatEmailAddress)
}

func TestBuildAuthnRequestMissingSSOURL(t *testing.T) {
	sp := testServiceProvider()
	sp.IDPSSOURL = ""

	_, err := sp.BuildAuthnRequest("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSO URL")
}

func TestBuildLogoutRequest(t *testing.T) {
	sp := testServiceProvider()

	artifact, err := sp.BuildLogoutRequest("user@example.com", "sess-42", "relay-9")
	require.NoError(t, err)

	doc := decodeRedirectParam(t, artifact.RedirectURL, "SAMLRequest")
	var req struct {
		ID           string `xml:"ID,attr"`
		Destination  string `xml:"Destination,attr"`
		NameID       string `xml:"NameID"`
		SessionIndex string `xml:"SessionIndex"`
	}
	require.NoError(t, xml.Unmarshal(doc, &req))
	assert.Equal(t, artifact.ID, req.ID)
	assert.Equal(t, sp.IDPSLOURL, req.Destination)
	assert.Equal(t, "user@example.com", req.NameID)
	assert.Equal(t, "sess-42", req.SessionIndex)
}

func TestBuildLogoutRequestMissingSLOURL(t *testing.T) {
	sp := testServiceProvider()
	sp.IDPSLOURL = ""

	_, err := sp.BuildLogoutRequest("user@example.com", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLO URL")
}
