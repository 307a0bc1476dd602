//go:build mlsffi_x509

package backend

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

const identityEnabled = true

func newIdentityValidator() (engine.IdentityValidator, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("load system roots: %w", err)
	}
	return &x509Validator{roots: pool}, nil
}

// x509Validator checks that a signing identity's credential carries a DER
// certificate chain verifiable against the system roots.
type x509Validator struct {
	roots *x509.CertPool
}

func (v *x509Validator) ValidateMember(ctx context.Context, signingIdentity []byte, at time.Time) error {
	return v.validate(signingIdentity, at)
}

func (v *x509Validator) ValidateExternalSender(ctx context.Context, signingIdentity []byte, at time.Time) error {
	return v.validate(signingIdentity, at)
}

func (v *x509Validator) validate(signingIdentity []byte, at time.Time) error {
	if len(signingIdentity) == 0 {
		return fmt.Errorf("%w: empty signing identity", engine.ErrIdentity)
	}
	certs, err := x509.ParseCertificates(signingIdentity)
	if err != nil || len(certs) == 0 {
		return fmt.Errorf("%w: parse credential chain: %v", engine.ErrIdentity, errOrNoCerts(err))
	}

	intermediates := x509.NewCertPool()
	for _, c := range certs[1:] {
		intermediates.AddCert(c)
	}
	_, err = certs[0].Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrIdentity, err)
	}
	return nil
}

func errOrNoCerts(err error) error {
	if err != nil {
		return err
	}
	return errors.New("no certificates in chain")
}
