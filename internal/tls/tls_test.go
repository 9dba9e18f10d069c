package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeCert writes a self-signed certificate for commonName and returns
// the certificate and key paths.
func writeCert(t *testing.T, dir, commonName string) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certFile := filepath.Join(dir, commonName+".crt")
	keyFile := filepath.Join(dir, commonName+".key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func leafCommonName(t *testing.T, c *tls.Certificate) string {
	t.Helper()
	leaf, err := x509.ParseCertificate(c.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	return leaf.Subject.CommonName
}

func TestDisabled(t *testing.T) {
	sc, reloader, err := NewServerTLSConfig(ServerConfig{})
	if err != nil || sc != nil || reloader != nil {
		t.Errorf("server = %v %v %v", sc, reloader, err)
	}
	cc, err := NewClientTLSConfig(ClientConfig{})
	if err != nil || cc != nil {
		t.Errorf("client = %v %v", cc, err)
	}
}

func TestServerConfigErrors(t *testing.T) {
	dir := t.TempDir()
	cert, key := writeCert(t, dir, "stats")
	for _, tc := range []struct {
		name string
		cfg  ServerConfig
	}{
		{"no files", ServerConfig{Enabled: true}},
		{"missing files", ServerConfig{Enabled: true, CertFile: filepath.Join(dir, "nope.crt"), KeyFile: key}},
		{"client auth without CA", ServerConfig{Enabled: true, CertFile: cert, KeyFile: key, ClientAuth: true}},
		{"client auth bad CA", ServerConfig{Enabled: true, CertFile: cert, KeyFile: key, ClientAuth: true, CAFile: key}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := NewServerTLSConfig(tc.cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestServerConfig(t *testing.T) {
	dir := t.TempDir()
	cert, key := writeCert(t, dir, "stats")
	ca, _ := writeCert(t, dir, "clients")

	sc, reloader, err := NewServerTLSConfig(ServerConfig{Enabled: true, CertFile: cert, KeyFile: key, CAFile: ca, ClientAuth: true})
	if err != nil {
		t.Fatal(err)
	}
	if sc.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x", sc.MinVersion)
	}
	if sc.ClientAuth != tls.RequireAndVerifyClientCert || sc.ClientCAs == nil {
		t.Error("client authentication not configured")
	}
	got, err := sc.GetCertificate(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cn := leafCommonName(t, got); cn != "stats" {
		t.Errorf("served certificate %q", cn)
	}
	if reloader == nil {
		t.Fatal("expected a reloader")
	}
}

func TestCertReloader(t *testing.T) {
	dir := t.TempDir()
	cert, key := writeCert(t, dir, "stats")
	r, err := NewCertReloader(cert, key)
	if err != nil {
		t.Fatal(err)
	}

	// Renewal replaces the files in place.
	renewedCert, renewedKey := writeCert(t, dir, "renewed")
	for src, dst := range map[string]string{renewedCert: cert, renewedKey: key} {
		data, err := os.ReadFile(src)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(dst, data, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	c, _ := r.GetCertificate(nil)
	if cn := leafCommonName(t, c); cn != "renewed" {
		t.Errorf("after reload %q", cn)
	}

	// A broken file keeps the previous pair.
	if err := os.WriteFile(key, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	c, _ = r.GetCertificate(nil)
	if cn := leafCommonName(t, c); cn != "renewed" {
		t.Errorf("after failed reload %q", cn)
	}
}

func TestClientConfig(t *testing.T) {
	dir := t.TempDir()
	cert, key := writeCert(t, dir, "exporter")
	ca, _ := writeCert(t, dir, "collector")

	cc, err := NewClientTLSConfig(ClientConfig{
		Enabled: true, CertFile: cert, KeyFile: key, CAFile: ca,
		ServerName: "otel.example", InsecureSkipVerify: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cc.Certificates) != 1 || cc.RootCAs == nil {
		t.Error("certificates not loaded")
	}
	if cc.ServerName != "otel.example" || !cc.InsecureSkipVerify {
		t.Errorf("ServerName %q skip %v", cc.ServerName, cc.InsecureSkipVerify)
	}

	for _, bad := range []ClientConfig{
		{Enabled: true, CertFile: cert},
		{Enabled: true, CAFile: filepath.Join(dir, "missing.pem")},
	} {
		if _, err := NewClientTLSConfig(bad); err == nil {
			t.Errorf("%+v: expected an error", bad)
		}
	}
}
