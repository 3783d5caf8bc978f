// =============================================================================
// pouch-ops - Main Entry Point
// =============================================================================
//
// pouch-ops is the back-office CLI for the packaging storefront. It hosts the
// catalog pricing resolver used by the store pages and the PayPal transaction
// importer that feeds the CRM inquiries table.
//
// USAGE:
//   pouchops import     - Import PayPal CSV exports into the CRM
//   pouchops price      - Resolve the price of a pouch configuration
//   pouchops catalog    - List or export the price table
//   pouchops validate   - Check configuration and credentials without importing
//   pouchops version    - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Core business logic (not for external import)
//   - pkg/           : Shared file utilities
//
// =============================================================================

package main

import (
	_ "time/tzdata"

	"github.com/ginjaninja78/pouch-ops/cmd"
)

// main hands control to the Cobra root command.
func main() {
	cmd.Execute()
}
