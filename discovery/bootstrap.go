package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/kbukum/consulkit/logger"
)

// Use performs the startup registration of this process. It returns the
// registered instance ID, or "" when registration is disabled.
//
// The registry call is awaited and its error returned: callers decide
// whether to abort startup. A blank address with registration enabled
// fails with ErrMissingAddress before any registry traffic.
func Use(ctx context.Context, opts Options, id ServiceIdentity, registrar Registrar, log *logger.Logger) (string, error) {
	if log == nil {
		log = logger.Nop()
	}
	if !opts.Enabled {
		log.Info("service registration disabled")
		return "", nil
	}
	if strings.TrimSpace(opts.Address) == "" {
		return "", ErrMissingAddress
	}
	if registrar == nil {
		return "", fmt.Errorf("register %s: no registrar configured", id.Name)
	}

	reg, err := BuildRegistration(opts, id)
	if err != nil {
		return "", err
	}

	fields := logger.Fields(
		logger.FieldService, reg.Name,
		logger.FieldServiceID, reg.InstanceID,
		"address", reg.Address,
		"port", reg.Port,
	)
	if reg.Check != nil {
		fields["check"] = reg.Check.HTTP
	}

	if err := registrar.Register(ctx, reg); err != nil {
		log.Error("Service registration failed", fields, logger.ErrorFields("register", err))
		return "", fmt.Errorf("register %s: %w", reg.InstanceID, err)
	}

	log.Info("Service registered", fields)
	return reg.InstanceID, nil
}
