package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/slumber/internal/config"
)

const (
	tlsCaCrt = "tls_ca.crt"
	tlsCrt   = "tls.crt"
	tlsKey   = "tls.key"
)

func parseTLSVersion(ver string) (uint16, bool) {
	switch strings.ToLower(strings.TrimSpace(ver)) {
	case "", "default":
		return tls.VersionTLS13, false
	case "1.2", "tls1.2":
		return tls.VersionTLS12, true
	case "1.3", "tls1.3":
		return tls.VersionTLS13, true
	default:
		return 0, false
	}
}

// resolveTLSVersions defaults both bounds to TLS 1.3.
func resolveTLSVersions(cfg config.ServerConfig) (min uint16, max uint16) {
	min, max = tls.VersionTLS13, tls.VersionTLS13
	if v, ok := parseTLSVersion(cfg.TLSMinVersion); ok {
		min = v
	}
	if v, ok := parseTLSVersion(cfg.TLSMaxVersion); ok {
		max = v
	}
	if min > max {
		max = min
	}
	return
}

// SetupTLS returns nil when TLS is disabled. Explicit cert/key files win
// over a certificate directory; a directory may be populated with a
// self-signed pair on first use.
func SetupTLS(server config.ServerConfig) (*tls.Config, error) {
	if server.TLS == nil || !server.TLS.Enabled {
		return nil, nil
	}
	minVer, maxVer := resolveTLSVersions(server)

	if server.TLS.CertFile != "" && server.TLS.KeyFile != "" {
		return createTLSConfig(server.TLS.CertFile, server.TLS.KeyFile, minVer, maxVer)
	}

	if server.TLS.Dir != "" {
		certPath := filepath.Join(server.TLS.Dir, tlsCrt)
		keyPath := filepath.Join(server.TLS.Dir, tlsKey)
		if server.TLS.AutoGenerate && !certificatesExist(certPath, keyPath) {
			if err := generateCertificate(server.TLS, server.TLS.Dir); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
		return createTLSConfig(certPath, keyPath, minVer, maxVer)
	}

	return nil, errors.New("TLS enabled but no certificate configured")
}

// createTLSConfig loads the pair once up front so a bad pair fails at start,
// then reloads it per handshake to pick up renewed files.
func createTLSConfig(certPath, keyPath string, minVer, maxVer uint16) (*tls.Config, error) {
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	// #nosec G402 min version is configurable down to 1.2 only
	return &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			c, err := tls.LoadX509KeyPair(filepath.Clean(certPath), filepath.Clean(keyPath))
			return &c, err
		},
		MinVersion: minVer,
		MaxVersion: maxVer,
	}, nil
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultSlice(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

func generateCertificate(c *config.TLSConfig, destDir string) error {
	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return fmt.Errorf("create certificate directory: %w", err)
	}
	ag := c.AutoGen
	if ag == nil {
		ag = &config.AutoGenTLS{}
	}
	days := ag.ValidDays
	if days <= 0 {
		days = 365
	}
	host, _ := os.Hostname()
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   orDefault(ag.CommonName, "localhost"),
		Organization: orDefault(ag.Organization, "slumber"),
		DNSNames:     orDefaultSlice(ag.DNSNames, nonEmpty("localhost", host)),
		IPAddresses:  orDefaultSlice(ag.IPAddresses, []string{"127.0.0.1", "::1"}),
		NotAfter:     time.Now().AddDate(0, 0, days),
		CertPath:     filepath.Join(destDir, tlsCrt),
		KeyPath:      filepath.Join(destDir, tlsKey),
		CACertPath:   filepath.Join(destDir, tlsCaCrt),
	})
}

func nonEmpty(ss ...string) []string {
	out := ss[:0:0]
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
