package domain_test

import (
	"testing"

	"unitcore/testutil"
)

// TestDomainBoundaryGuards enforces that the domain contracts stay free of
// engine, infrastructure, and third-party dependencies.
func TestDomainBoundaryGuards(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(ip string) bool {
		return testutil.InternalImportForbidden(ip) || testutil.NonStdlibImportForbidden(ip)
	}, "domain package must depend on the standard library only")
}
