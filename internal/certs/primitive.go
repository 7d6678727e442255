// Package certs holds the certificate primitives used by the CA lifecycle:
// self-signed roots, re-signing a root under its existing key, leaf signing,
// and PEM parsing. Keys are ECDSA P-256 throughout.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math"
	"math/big"
	"time"
)

const (
	pemTypeCertificate = "CERTIFICATE"
	pemTypeECKey       = "EC PRIVATE KEY"

	organization = "Stream Operator"

	// backdate tolerates clock skew between the operator and the instances.
	backdate = time.Hour
)

// KeyPair is a certificate together with the key it certifies.
type KeyPair struct {
	Certificate *x509.Certificate
	Key         *ecdsa.PrivateKey
	CertPEM     []byte
	KeyPEM      []byte
}

// LeafRequest describes a certificate issued by a CA.
type LeafRequest struct {
	CommonName   string
	DNSNames     []string
	ValidityDays int
	// Client adds client authentication to the extended key usage.
	Client bool
}

// GenerateRoot creates a new key pair and a self-signed CA certificate.
func GenerateRoot(commonName string, validityDays int, now time.Time) (*KeyPair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA private key: %w", err)
	}
	return selfSign(key, pkix.Name{CommonName: commonName, Organization: []string{organization}}, validityDays, now)
}

// RenewRoot re-signs a CA certificate under its existing key. The subject is
// kept so certificates issued by the previous root still chain to the new one.
func RenewRoot(previous *x509.Certificate, key *ecdsa.PrivateKey, validityDays int, now time.Time) (*KeyPair, error) {
	if previous == nil || key == nil {
		return nil, fmt.Errorf("renewing a CA requires the previous certificate and its key")
	}
	if !MatchesKey(previous, key) {
		return nil, fmt.Errorf("CA certificate %q does not match the stored private key", previous.Subject.CommonName)
	}
	return selfSign(key, previous.Subject, validityDays, now)
}

// SignLeaf issues a certificate for a fresh key, signed by ca.
func SignLeaf(ca *KeyPair, req LeafRequest, now time.Time) (*KeyPair, error) {
	if ca == nil || ca.Certificate == nil || ca.Key == nil {
		return nil, fmt.Errorf("signing a leaf requires a CA certificate and key")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate leaf private key: %w", err)
	}
	serial, err := randSerialNumber()
	if err != nil {
		return nil, err
	}

	usages := []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	if req.Client {
		usages = append(usages, x509.ExtKeyUsageClientAuth)
	}

	notAfter := now.AddDate(0, 0, req.ValidityDays)
	if notAfter.After(ca.Certificate.NotAfter) {
		notAfter = ca.Certificate.NotAfter
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   req.CommonName,
			Organization: []string{organization},
		},
		DNSNames:    req.DNSNames,
		NotBefore:   now.Add(-backdate),
		NotAfter:    notAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: usages,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Certificate, &key.PublicKey, ca.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create leaf certificate: %w", err)
	}
	return encode(der, key)
}

// ParseCertificate decodes the first PEM certificate in pemBytes.
func ParseCertificate(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != pemTypeCertificate {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// ParsePrivateKey decodes an EC PRIVATE KEY PEM block.
func ParsePrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}
	if block.Type != pemTypeECKey {
		return nil, fmt.Errorf("failed to decode private key PEM (expected %s, got %q)", pemTypeECKey, block.Type)
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ECDSA private key: %w", err)
	}
	return key, nil
}

// Load parses a PEM certificate and key into a KeyPair and checks they belong together.
func Load(certPEM, keyPEM []byte) (*KeyPair, error) {
	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return nil, err
	}
	key, err := ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}
	if !MatchesKey(cert, key) {
		return nil, fmt.Errorf("certificate %q does not match private key", cert.Subject.CommonName)
	}
	return &KeyPair{Certificate: cert, Key: key, CertPEM: certPEM, KeyPEM: keyPEM}, nil
}

// MatchesKey reports whether cert certifies the public half of key.
func MatchesKey(cert *x509.Certificate, key *ecdsa.PrivateKey) bool {
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	return ok && pub.Equal(&key.PublicKey)
}

// DaysUntilExpiry returns the whole days left before cert expires, rounded down.
// Expired certificates yield a negative number.
func DaysUntilExpiry(cert *x509.Certificate, now time.Time) int {
	return int(math.Floor(cert.NotAfter.Sub(now).Hours() / 24))
}

// VerifyIssuedBy reports whether leaf chains to root.
func VerifyIssuedBy(leaf, root *x509.Certificate, now time.Time) error {
	pool := x509.NewCertPool()
	pool.AddCert(root)
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:       pool,
		CurrentTime: now,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err
}

func selfSign(key *ecdsa.PrivateKey, subject pkix.Name, validityDays int, now time.Time) (*KeyPair, error) {
	serial, err := randSerialNumber()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		NotBefore:             now.Add(-backdate),
		NotAfter:              now.AddDate(0, 0, validityDays),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}
	return encode(der, key)
}

func encode(der []byte, key *ecdsa.PrivateKey) (*KeyPair, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ECDSA private key: %w", err)
	}
	return &KeyPair{
		Certificate: cert,
		Key:         key,
		CertPEM:     pem.EncodeToMemory(&pem.Block{Type: pemTypeCertificate, Bytes: der}),
		KeyPEM:      pem.EncodeToMemory(&pem.Block{Type: pemTypeECKey, Bytes: keyDER}),
	}, nil
}

func randSerialNumber() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return serialNumber, nil
}
