package config

import (
	"os"
)

// Environment variable names read for every intercepted connection.
const (
	EnvDNSOverrideIP   = "DNS_OVERRIDE_IP"
	EnvDNSOverridePort = "DNS_OVERRIDE_PORT"
	EnvBindInterface   = "BIND_INTERFACE"
	EnvBindSourceIPv4  = "BIND_SOURCE_IPV4"
	EnvBindSourceIPv6  = "BIND_SOURCE_IPV6"
	EnvBindExclude     = "BIND_EXCLUDE"
)

// Snapshot is the configuration in effect for a single intercepted call.
//
// Every field is optional; an empty value disables the feature it controls.
type Snapshot struct {
	DNSOverrideIP   string `env:"DNS_OVERRIDE_IP" validate:"omitempty,ip"`
	DNSOverridePort string `env:"DNS_OVERRIDE_PORT" validate:"omitempty,portnum"`
	BindInterface   string `env:"BIND_INTERFACE" validate:"omitempty,ifname"`
	BindSourceIPv4  string `env:"BIND_SOURCE_IPV4" validate:"omitempty,ipv4"`
	BindSourceIPv6  string `env:"BIND_SOURCE_IPV6" validate:"omitempty,ipv6"`
	BindExclude     string `env:"BIND_EXCLUDE"`
}

// Source produces a fresh Snapshot each time it is called.
type Source func() Snapshot

func (s *Snapshot) fields() []struct {
	env string
	val *string
} {
	return []struct {
		env string
		val *string
	}{
		{EnvDNSOverrideIP, &s.DNSOverrideIP},
		{EnvDNSOverridePort, &s.DNSOverridePort},
		{EnvBindInterface, &s.BindInterface},
		{EnvBindSourceIPv4, &s.BindSourceIPv4},
		{EnvBindSourceIPv6, &s.BindSourceIPv6},
		{EnvBindExclude, &s.BindExclude},
	}
}

// Load builds a Snapshot using lookup to resolve each variable. Unset and
// empty variables both leave the field empty.
func Load(lookup func(string) (string, bool)) Snapshot {
	var s Snapshot
	for _, f := range s.fields() {
		if v, ok := lookup(f.env); ok {
			*f.val = v
		}
	}
	return s
}

// FromEnv reads a Snapshot from the process environment.
func FromEnv() Snapshot {
	return Load(os.LookupEnv)
}

// Merge returns s with every empty field taken from fallback.
func (s Snapshot) Merge(fallback Snapshot) Snapshot {
	fb := fallback.fields()
	for i, f := range s.fields() {
		if *f.val == "" {
			*f.val = *fb[i].val
		}
	}
	return s
}

// Empty reports whether no setting is configured.
func (s Snapshot) Empty() bool {
	for _, f := range s.fields() {
		if *f.val != "" {
			return false
		}
	}
	return true
}

// WithFallback returns a Source that reads the environment on every call
// and fills unset variables from fallback.
func WithFallback(fallback Snapshot) Source {
	if fallback.Empty() {
		return FromEnv
	}
	return func() Snapshot {
		return FromEnv().Merge(fallback)
	}
}

// Static returns a Source that always yields s.
func Static(s Snapshot) Source {
	return func() Snapshot { return s }
}
