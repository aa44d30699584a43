// Package config provides process settings and login policy configuration for
// the scene host.
//
// The config package handles:
//   - Normalising the listening port and transport protocol, with logged
//     fallbacks to the defaults
//   - Loading and validating login policy files
//   - Hot reloading the policy file when it changes on disk
//
// Policy Format:
//
// A policy file is a JSON document:
//
//	{
//	  "max_users": 16,
//	  "password": "secret",
//	  "required_keys": ["username"],
//	  "banned_users": ["mallory"],
//	  "banned_addresses": ["10.0.0.66"]
//	}
//
// Every field is optional. A zero max_users means no capacity limit and an
// empty password disables the password check.
//
// Usage:
//
//	store, err := config.NewPolicyStore("policy.json", logger)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	go store.Watch(ctx)
//
//	policy := store.Current()
//
// A reload that fails to read or validate the file keeps the previous policy
// in place.
package config
