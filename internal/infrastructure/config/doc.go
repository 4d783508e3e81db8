// Package config handles loading and validating AdvisorPro configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (JWT secret, broker and Redis passwords) should be set via environment variables
//   - A process without a signing secret refuses to start (ErrMisconfigured)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.App.Environment)
package config
