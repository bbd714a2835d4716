// Package config defines the nexus configuration model.
//
// The [Config] struct lists the vendors a run may target, in the order they
// are provisioned, together with the timeouts, retry policy, credential
// source, profile directory and report destinations. It is loaded from
// nexus.yaml by [Load] and then overridden from NEXUS_* environment
// variables (see [Config.ApplyEnv]).
package config
