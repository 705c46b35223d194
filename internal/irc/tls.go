package irc

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// certPolicy verifies the server chain while optionally tolerating a
// self-signed or expired leaf. Hostname checks always apply.
type certPolicy struct {
	serverName       string
	roots            *x509.CertPool
	acceptExpired    bool
	acceptSelfSigned bool
	now              func() time.Time
}

func (p certPolicy) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName: p.serverName,
		MinVersion: tls.VersionTLS12,
		// Verification happens in VerifyPeerCertificate so each tolerance can be
		// toggled independently.
		InsecureSkipVerify:    true, //nolint:gosec
		VerifyPeerCertificate: p.verify,
	}
}

func (p certPolicy) verify(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return errors.New("tls: server sent no certificates")
	}
	certs := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return fmt.Errorf("tls: parse server certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	leaf := certs[0]

	now := time.Now()
	if p.now != nil {
		now = p.now()
	}
	expired := now.After(leaf.NotAfter) || now.Before(leaf.NotBefore)

	opts := x509.VerifyOptions{
		DNSName:       p.serverName,
		Roots:         p.roots,
		Intermediates: x509.NewCertPool(),
		CurrentTime:   now,
	}
	for _, c := range certs[1:] {
		opts.Intermediates.AddCert(c)
	}
	if expired && p.acceptExpired {
		opts.CurrentTime = leaf.NotAfter
	}

	_, err := leaf.Verify(opts)
	if err == nil {
		return nil
	}

	var unknown x509.UnknownAuthorityError
	if !p.acceptSelfSigned || !errors.As(err, &unknown) {
		return fmt.Errorf("tls: verify server certificate: %w", err)
	}
	if expired && !p.acceptExpired {
		return fmt.Errorf("tls: server certificate expired at %s", leaf.NotAfter.Format(time.RFC3339))
	}
	if err := leaf.VerifyHostname(p.serverName); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	return nil
}
