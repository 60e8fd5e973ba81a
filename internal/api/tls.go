package api

import (
	"crypto/tls"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	EnvTLSCert = "TRAINER_TLS_CERT"
	EnvTLSKey  = "TRAINER_TLS_KEY"
)

// TLSFiles is the certificate pair served by the API.
type TLSFiles struct {
	CertFile string
	KeyFile  string
}

// tlsFiles is nil when the API serves plain HTTP.
var tlsFiles *TLSFiles

// InitTLS reads the certificate pair from the environment. Naming only one
// of the two files is an error; naming neither serves plain HTTP.
func InitTLS() error {
	tlsFiles = nil
	cert, key := os.Getenv(EnvTLSCert), os.Getenv(EnvTLSKey)
	switch {
	case cert == "" && key == "":
		return nil
	case cert == "" || key == "":
		return fmt.Errorf("tls: %s and %s must be set together", EnvTLSCert, EnvTLSKey)
	}
	tlsFiles = &TLSFiles{CertFile: cert, KeyFile: key}
	return nil
}

func IsTLSEnabled() bool {
	return tlsFiles != nil
}

// certReloader serves the pair from disk and reloads it whenever the
// certificate file's modification time moves forward. A failed reload
// keeps the last good pair.
type certReloader struct {
	files TLSFiles

	mu      sync.Mutex
	cert    *tls.Certificate
	modTime time.Time
}

func (c *certReloader) reload() error {
	info, err := os.Stat(c.files.CertFile)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cert != nil && !info.ModTime().After(c.modTime) {
		return nil
	}
	cert, err := tls.LoadX509KeyPair(c.files.CertFile, c.files.KeyFile)
	if err != nil {
		return err
	}
	c.cert = &cert
	c.modTime = info.ModTime()
	return nil
}

func (c *certReloader) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	err := c.reload()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cert == nil {
		return nil, err
	}
	return c.cert, nil
}

// serverTLSConfig returns nil when TLS is off. The pair is loaded once
// here so a bad certificate fails startup instead of the first handshake.
func serverTLSConfig() (*tls.Config, error) {
	if tlsFiles == nil {
		return nil, nil
	}
	r := &certReloader{files: *tlsFiles}
	if err := r.reload(); err != nil {
		return nil, fmt.Errorf("load tls certificate: %w", err)
	}
	return &tls.Config{
		GetCertificate: r.getCertificate,
		MinVersion:     tls.VersionTLS12,
	}, nil
}
