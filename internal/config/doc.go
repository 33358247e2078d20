// Package config provides loading and environment overlay for lode runtime
// configuration. It exposes a Default() baseline, JSON file loading, and a
// LODE_* environment overlay applied on top.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/lode.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { /* handle */ }
package config
