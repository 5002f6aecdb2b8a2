// Package config loads the configuration of a Hamster manager.
//
// Values are resolved in this order, later sources overriding earlier ones:
//  1. Defaults
//  2. A YAML file passed with --config
//  3. Environment variables prefixed with HAMSTER_ (HAMSTER_API_ADDR,
//     HAMSTER_MANAGER_TIMEOUT_EPOCHS, ...)
//  4. Command-line flags
//
// The result is checked with validator tags before use. LoadGenesis reads the
// YAML file of resources a new pool starts with.
package config
