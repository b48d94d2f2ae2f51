//go:build ocid_debug

package ocid

const debugChecks = true
