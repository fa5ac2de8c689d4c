package main

import (
	"fmt"

	"github.com/kbukum/consulkit/config"
	"github.com/kbukum/consulkit/discovery"
	"github.com/kbukum/consulkit/observability"
	"github.com/kbukum/consulkit/server"
	"github.com/kbukum/consulkit/version"
)

// Config is the registrar's configuration file layout.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Consul        discovery.Options    `yaml:"consul" mapstructure:"consul"`
	Server        server.Config        `yaml:"server" mapstructure:"server"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults fills every section. An empty version is taken from the
// build, and the advertised port follows the server's port unless the
// consul section sets one.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = version.Get().String()
	}
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Consul.ApplyDefaults()
	if c.Consul.Port == 0 {
		c.Consul.Port = c.Server.Port
	}
	if c.Consul.Service == "" {
		c.Consul.Service = c.Name
	}
}

// Validate checks every section; a registration without an address is fatal.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Consul.Validate(); err != nil {
		return fmt.Errorf("consul: %w", err)
	}
	if c.Observability.Enabled {
		if err := c.Observability.Validate(); err != nil {
			return err
		}
	}
	return nil
}
