// Package provider describes the supported identity providers: their validated
// configuration and the policy table that captures per-provider differences
// (protocol family, pre-shared secret injection).
package provider
