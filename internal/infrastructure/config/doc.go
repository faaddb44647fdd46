// Package config handles loading and validating netdiag configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with NETDIAG_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Secrets (JWT signing key, broker and cache passwords) should be supplied
// through the environment rather than the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
