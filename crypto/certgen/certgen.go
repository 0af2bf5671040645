// Package certgen issues the certificate authority and per-node
// certificates used for mutual TLS between validator peers.
package certgen

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	caValidity   = 10 * 365 * 24 * time.Hour
	nodeValidity = 5 * 365 * 24 * time.Hour
	caCommonName = "dealchain peer CA"
)

// Options adds Subject Alternative Names to the node certificate.
type Options struct {
	ExtraIPs []net.IP
	ExtraDNS []string
}

// Paths are the PEM files written for one node.
type Paths struct {
	CACert   string
	NodeCert string
	NodeKey  string
}

// GenerateAll issues a node certificate for nodeID into dir. An existing
// ca.crt/ca.key pair in dir is reused so several nodes share one CA;
// otherwise a new CA is created. Pass nil opts for localhost-only SANs.
func GenerateAll(dir, nodeID string, opts *Options) (Paths, error) {
	if nodeID == "" {
		return Paths{}, errors.New("node id is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Paths{}, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	paths := Paths{
		CACert:   filepath.Join(dir, "ca.crt"),
		NodeCert: filepath.Join(dir, nodeID+".crt"),
		NodeKey:  filepath.Join(dir, nodeID+".key"),
	}
	caKeyPath := filepath.Join(dir, "ca.key")

	ca, err := tls.LoadX509KeyPair(paths.CACert, caKeyPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		if ca, err = newCA(paths.CACert, caKeyPath); err != nil {
			return Paths{}, err
		}
	default:
		return Paths{}, fmt.Errorf("load CA: %w", err)
	}
	if err := issueNode(ca, nodeID, opts, paths); err != nil {
		return Paths{}, err
	}
	return paths, nil
}

func newCA(certPath, keyPath string) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate CA key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: caCommonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create CA cert: %w", err)
	}
	if err := writeCertAndKey(certPath, keyPath, der, key); err != nil {
		return tls.Certificate{}, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, nil
}

func issueNode(ca tls.Certificate, nodeID string, opts *Options, paths Paths) error {
	caCert := ca.Leaf
	if caCert == nil {
		var err error
		if caCert, err = x509.ParseCertificate(ca.Certificate[0]); err != nil {
			return fmt.Errorf("parse CA cert: %w", err)
		}
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate node key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return err
	}

	ips := []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}
	dns := []string{"localhost", nodeID}
	if opts != nil {
		ips = append(ips, opts.ExtraIPs...)
		dns = append(dns, opts.ExtraDNS...)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: nodeID},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(nodeValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		IPAddresses:  ips,
		DNSNames:     dns,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return fmt.Errorf("create node cert: %w", err)
	}
	return writeCertAndKey(paths.NodeCert, paths.NodeKey, der, key)
}

func writeCertAndKey(certPath, keyPath string, der []byte, key *ecdsa.PrivateKey) error {
	if err := writePEM(certPath, "CERTIFICATE", der); err != nil {
		return err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}
	return writePEM(keyPath, "EC PRIVATE KEY", keyDER)
}

func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}
	return serial, nil
}

func writePEM(path, typ string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: typ, Bytes: data})
}
