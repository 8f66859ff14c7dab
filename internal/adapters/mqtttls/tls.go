// Package mqtttls builds TLS configs for broker connections and the embedded
// broker listener from PEM file paths.
package mqtttls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ClientConfig returns a client TLS config, or nil when no paths are set.
// caPath verifies the broker; certPath and keyPath present a client cert.
func ClientConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	if caPath == "" && certPath == "" && keyPath == "" {
		return nil, nil
	}

	config := &tls.Config{MinVersion: tls.VersionTLS12}
	if caPath != "" {
		pool, err := loadPool(caPath)
		if err != nil {
			return nil, err
		}
		config.RootCAs = pool
	}
	if certPath != "" || keyPath != "" {
		cert, err := loadPair(certPath, keyPath)
		if err != nil {
			return nil, err
		}
		config.Certificates = []tls.Certificate{cert}
	}
	return config, nil
}

// ServerConfig returns a listener TLS config, or nil when no paths are set.
// A CA bundle turns on client certificate verification.
func ServerConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	if caPath == "" && certPath == "" && keyPath == "" {
		return nil, nil
	}

	cert, err := loadPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	config := &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}
	if caPath != "" {
		pool, err := loadPool(caPath)
		if err != nil {
			return nil, err
		}
		config.ClientCAs = pool
		config.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return config, nil
}

func loadPair(certPath, keyPath string) (tls.Certificate, error) {
	if certPath == "" || keyPath == "" {
		return tls.Certificate{}, errors.New("both tls cert and key are required")
	}
	return tls.LoadX509KeyPair(certPath, keyPath)
}

func loadPool(caPath string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("failed to parse CA bundle %s", caPath)
	}
	return pool, nil
}
