// Package config loads service configuration with Viper.
//
// Values come from config.yml, an optional .env file and the process
// environment, in increasing order of precedence. Environment variables map
// onto nested keys by splitting on underscores, so CONSUL_ADDRESS overrides
// consul.address.
//
// # Usage
//
//	var cfg MyConfig
//	err := config.LoadConfig("registrar", &cfg)
package config
