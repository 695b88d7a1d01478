package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mandexhq/mandex-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestInventoryMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_inventory.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS supplier_products",
		"CHECK (stock >= 0)",
		"CHECK (reserved_stock >= 0)",
		"CHECK (reserved_stock <= stock)",
		"ux_supplier_products_supplier_product",
		"DROP TABLE IF EXISTS supplier_products",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreditMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_credit.sql")

	checks := []string{
		"ux_credit_accounts_buyer_supplier",
		"ux_credit_reservations_order",
		"ux_ledger_entries_idempotency_key",
		"CHECK (reservation_amount > 0)",
		"CHECK (CASE WHEN entry_type = 'ADJUSTMENT' THEN amount <> 0 ELSE amount > 0 END)",
		"previous_hash TEXT NOT NULL",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestVendorOffersMigrationEnforcesOnePerSupplier(t *testing.T) {
	content := readMigration(t, "*_create_vendor_offers.sql")

	if !strings.Contains(content, "ux_vendor_offers_order_supplier") {
		t.Error("missing unique offer index")
	}
	if !strings.Contains(content, "ON vendor_offers (order_id, supplier_id)") {
		t.Error("unique index must cover (order_id, supplier_id)")
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
