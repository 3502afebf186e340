// Package eligibility answers whether an account holds a POAP credential.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/dmitrijs2005/poapgate/internal/metrics"
)

// CredentialReader is satisfied by *ledger.Contracts.
type CredentialReader interface {
	HasPOAP(ctx context.Context, address string) (bool, error)
}

// Oracle asks the ledger on every call. Ledger failures deny access.
type Oracle struct {
	reader  CredentialReader
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewOracle(reader CredentialReader, logger logging.Logger, m *metrics.Metrics) *Oracle {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Oracle{reader: reader, logger: logger.With("module", "eligibility"), metrics: m}
}

// HasCredential reports whether address holds a credential right now.
// It never returns an error: a failed query is logged and treated as false.
func (o *Oracle) HasCredential(ctx context.Context, address string) bool {
	if address == "" {
		o.metrics.EligibilityCheck("denied")
		return false
	}

	start := time.Now()
	ok, err := o.reader.HasPOAP(ctx, address)
	o.metrics.ObserveLedgerCall("has-poap", time.Since(start).Seconds())

	if err != nil {
		o.logger.Warn(ctx, "credential check failed, denying", "address", address, "error", err)
		o.metrics.EligibilityCheck("error")
		return false
	}
	if ok {
		o.metrics.EligibilityCheck("granted")
	} else {
		o.metrics.EligibilityCheck("denied")
	}
	return ok
}

// Require returns common.ErrNotEligible unless address holds a credential.
func (o *Oracle) Require(ctx context.Context, address string) error {
	if !o.HasCredential(ctx, address) {
		return fmt.Errorf("%w: %s holds no POAP credential", common.ErrNotEligible, address)
	}
	return nil
}
