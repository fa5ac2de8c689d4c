package discovery

import (
	"fmt"
	"time"
)

// Registration describes one service instance to submit to the registry.
type Registration struct {
	Name       string
	InstanceID string
	Address    string
	Port       int
	Tags       []string
	Check      *HealthCheck
}

// HealthCheck is an HTTP check the registry runs against the instance.
type HealthCheck struct {
	HTTP                           string
	Interval                       time.Duration
	DeregisterCriticalServiceAfter time.Duration
}

// BuildRegistration maps options and identity onto a Registration. It is
// pure: no I/O, same inputs give the same output. Zero-valued scheme, ping
// endpoint and intervals take their defaults on the local copy, so a check
// is never sent without them. Callers skip it entirely when opts.Enabled is
// false.
func BuildRegistration(opts Options, id ServiceIdentity) (*Registration, error) {
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	reg := &Registration{
		Name:       id.Name,
		InstanceID: id.InstanceID(),
		Address:    opts.Address,
		Port:       opts.Port,
		Tags:       append([]string(nil), opts.Tags...),
	}
	if opts.PingEnabled {
		reg.Check = &HealthCheck{
			HTTP:                           HealthCheckURL(opts.Scheme, opts.Address, opts.Port, opts.PingEndpoint),
			Interval:                       opts.PingIntervalDuration(),
			DeregisterCriticalServiceAfter: opts.RemoveAfterDuration(),
		}
	}
	return reg, nil
}

// HealthCheckURL formats "{scheme}://{address}:{port}{endpoint}".
func HealthCheckURL(scheme, address string, port int, endpoint string) string {
	return fmt.Sprintf("%s://%s:%d%s", scheme, address, port, endpoint)
}
