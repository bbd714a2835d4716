// Package credentials implements the vendor admin credential sources.
//
// Secrets are addressed as "{vendor}-{type}" with type one of login-email,
// login-password, login-url and newuser-password. Three sources exist:
//
//   - env: NEXUS_SECRET_<VENDOR>_<TYPE>, dashes replaced by underscores
//   - file: a YAML document mapping vendor id to its secrets
//   - s3: the same YAML document stored as an object in the configured bucket
//
// Providers read their backing store on every call and keep nothing in
// memory between calls.
package credentials
