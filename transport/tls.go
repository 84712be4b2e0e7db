package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"math/big"

	"github.com/wykurz/rcp-sub001/fserr"
)

// SelfSignedTLSConfig builds a minimal TLS config for one ephemeral QUIC
// listener, the standard way quic-go's own examples bootstrap a server
// identity when no external CA is available: the source and destination
// processes of one transfer trust each other out of band (they were
// launched by the same coordinator), so there is no certificate chain to
// verify against, only a fixed ALPN to negotiate.
//
// Grounded on quic-go's canonical "generateTLSConfig" example idiom; no
// pack repo carries its own TLS certificate generation helper.
func SelfSignedTLSConfig(alpn string) (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fserr.Transport("generate-key", "", err)
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fserr.Transport("create-certificate", "", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fserr.Transport("load-keypair", "", err)
	}
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         []string{alpn},
		InsecureSkipVerify: true,
	}, nil
}

// ClientTLSConfig builds the matching client-side config: the transfer's
// trust boundary is the coordinator handshake, not the certificate chain,
// so verification is intentionally skipped here (spec.md §9: authenticity
// at the transport layer is out of scope for this spec's core).
func ClientTLSConfig(alpn string) *tls.Config {
	return &tls.Config{
		NextProtos:         []string{alpn},
		InsecureSkipVerify: true,
	}
}

