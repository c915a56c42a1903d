// Package config holds the per-call configuration snapshot.
//
// Configuration comes from environment variables that are read again for
// every intercepted connection, so changes take effect on the next call.
// A Source layers command-line fallbacks underneath the environment.
package config
