package tls

import (
	"bufio"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jittering/truststore"
)

// Files locates the certificate material the server loads.
type Files struct {
	CertFile   string
	KeyFile    string
	CACertFile string
}

// Manager keeps a server certificate signed by a local CA that is installed
// in the system trust store. The certificate is reissued when the host list
// changes, e.g. after joining another network.
type Manager struct {
	dir       string
	caDir     string
	hostsFile string
	files     Files
	extra     []string
	logger    *log.Logger

	// issue creates the CA if needed and signs a certificate for hosts.
	// Tests replace it to avoid touching the trust store.
	issue func(hosts []string) error
}

// NewManager creates a Manager storing its files under dir. extraHosts are
// added to the certificate besides the detected local names.
func NewManager(dir string, logger *log.Logger, extraHosts ...string) *Manager {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	tlsDir := filepath.Join(dir, "tls")
	caDir := filepath.Join(dir, "ca")
	m := &Manager{
		dir:       tlsDir,
		caDir:     caDir,
		hostsFile: filepath.Join(tlsDir, "hosts.txt"),
		files: Files{
			CertFile:   filepath.Join(tlsDir, "server.crt"),
			KeyFile:    filepath.Join(tlsDir, "server.key"),
			CACertFile: filepath.Join(caDir, "rootCA.pem"),
		},
		extra:  extraHosts,
		logger: logger,
	}
	m.issue = m.issueWithTruststore
	return m
}

// Files returns the paths the manager writes to.
func (m *Manager) Files() Files {
	return m.files
}

// EnsureCertificates returns usable certificate files, issuing a new
// certificate when none exists or the host list changed. Installing the CA
// may prompt the user for a password.
func (m *Manager) EnsureCertificates() (Files, error) {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return Files{}, fmt.Errorf("create TLS directory: %w", err)
	}

	hosts, err := Hosts(m.extra...)
	if err != nil {
		m.logger.Printf("Listing LAN addresses failed: %v", err)
	}

	switch {
	case !m.certsExist():
		m.logger.Println("Certificates not found, generating...")
	case m.hostsChanged(hosts):
		m.logger.Println("Network configuration changed, regenerating certificates...")
	default:
		m.logger.Println("Using existing certificates")
		return m.files, nil
	}

	if err := m.issue(hosts); err != nil {
		return Files{}, err
	}
	if err := m.writeCachedHosts(hosts); err != nil {
		m.logger.Printf("Caching certificate hosts failed: %v", err)
	}
	m.logger.Printf("Certificate issued for %s", strings.Join(hosts, ", "))
	if fp, err := m.CAFingerprint(); err == nil {
		m.logger.Printf("CA fingerprint (SHA256): %s", fp)
	}
	return m.files, nil
}

func (m *Manager) certsExist() bool {
	_, certErr := os.Stat(m.files.CertFile)
	_, keyErr := os.Stat(m.files.KeyFile)
	return certErr == nil && keyErr == nil
}

func (m *Manager) hostsChanged(hosts []string) bool {
	cached, err := m.readCachedHosts()
	if err != nil {
		return true
	}
	a := slices.Clone(cached)
	b := slices.Clone(hosts)
	slices.Sort(a)
	slices.Sort(b)
	return !slices.Equal(a, b)
}

func (m *Manager) readCachedHosts() ([]string, error) {
	f, err := os.Open(m.hostsFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hosts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if h := strings.TrimSpace(scanner.Text()); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts, scanner.Err()
}

func (m *Manager) writeCachedHosts(hosts []string) error {
	return os.WriteFile(m.hostsFile, []byte(strings.Join(hosts, "\n")+"\n"), 0o600)
}

func (m *Manager) issueWithTruststore(hosts []string) error {
	if err := os.MkdirAll(m.caDir, 0o700); err != nil {
		return fmt.Errorf("create CA directory: %w", err)
	}
	// truststore keeps its CA under CAROOT.
	os.Setenv("CAROOT", m.caDir)

	lib, err := truststore.NewLib()
	if err != nil {
		return fmt.Errorf("initialize truststore: %w", err)
	}
	m.logger.Println("Installing local CA in the system trust store (you may be prompted for your password)")
	if err := lib.Install(); err != nil {
		return fmt.Errorf("install CA: %w", err)
	}

	cert, err := lib.MakeCert(hosts, m.dir)
	if err != nil {
		return fmt.Errorf("issue certificate: %w", err)
	}
	if cert.CertFile != m.files.CertFile {
		if err := os.Rename(cert.CertFile, m.files.CertFile); err != nil {
			return fmt.Errorf("move certificate: %w", err)
		}
	}
	if cert.KeyFile != m.files.KeyFile {
		if err := os.Rename(cert.KeyFile, m.files.KeyFile); err != nil {
			return fmt.Errorf("move key: %w", err)
		}
	}
	return nil
}

// CACert returns the PEM encoded CA certificate phones need to install.
func (m *Manager) CACert() ([]byte, error) {
	return os.ReadFile(m.files.CACertFile)
}

// CAFingerprint returns the SHA256 fingerprint of the CA certificate.
func (m *Manager) CAFingerprint() (string, error) {
	data, err := m.CACert()
	if err != nil {
		return "", fmt.Errorf("read CA certificate: %w", err)
	}
	return Fingerprint(data)
}

// Fingerprint formats the SHA256 digest of a PEM certificate as
// colon-separated hex.
func Fingerprint(certPEM []byte) (string, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", errors.New("no PEM block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("parse certificate: %w", err)
	}

	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":"), nil
}
