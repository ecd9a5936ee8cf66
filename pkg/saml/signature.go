package saml

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// ValidateSignature verifies the XML-DSig signature on the Response or, when
// the response envelope is unsigned, on the Assertion element, using the
// service provider's configured IdP certificate. The absence of any signature
// is itself a validation failure.
func (sp *ServiceProvider) ValidateSignature(raw []byte) error {
	certs, err := parseCertificates(sp.IDPCertificate)
	if err != nil {
		return err
	}
	validationCtx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: certs,
	})

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	root := doc.Root()
	if root == nil {
		return ErrMalformedResponse
	}

	signed := locateSignedElement(root)
	if signed == nil {
		return ErrMissingSignature
	}
	if signed.Parent() != nil {
		// canonicalization of a subtree needs the namespace declarations
		// the signed element inherits from its ancestors.
		signed = detachWithInheritedNamespaces(signed)
	}
	if _, err := validationCtx.Validate(signed); err != nil {
		return fmt.Errorf("saml: signature validation failed: %w", err)
	}
	return nil
}

// detachWithInheritedNamespaces copies an element out of its document and
// re-declares the xmlns declarations visible at its position that the
// element does not declare itself. A signed Assertion often relies on a
// prefix declared on the enclosing Response.
func detachWithInheritedNamespaces(el *etree.Element) *etree.Element {
	detached := el.Copy()
	declared := make(map[string]bool)
	for _, attr := range detached.Attr {
		if isNamespaceDecl(attr) {
			declared[attr.FullKey()] = true
		}
	}
	for parent := el.Parent(); parent != nil; parent = parent.Parent() {
		for _, attr := range parent.Attr {
			if !isNamespaceDecl(attr) || declared[attr.FullKey()] {
				continue
			}
			detached.CreateAttr(attr.FullKey(), attr.Value)
			declared[attr.FullKey()] = true
		}
	}
	return detached
}

func isNamespaceDecl(attr etree.Attr) bool {
	return attr.Space == "xmlns" || (attr.Space == "" && attr.Key == "xmlns")
}

// locateSignedElement returns the element carrying a Signature child: the
// Response root when the whole envelope is signed, otherwise the Assertion.
func locateSignedElement(root *etree.Element) *etree.Element {
	if root.FindElement("./Signature") != nil {
		return root
	}
	if assertion := root.FindElement("./Assertion"); assertion != nil {
		if assertion.FindElement("./Signature") != nil {
			return assertion
		}
	}
	return nil
}

// parseCertificates decodes one or more PEM certificate blocks.
func parseCertificates(pemData string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := []byte(pemData)
	for len(rest) > 0 {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("saml: invalid IdP certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("saml: no certificate found in configured PEM data")
	}
	return certs, nil
}
