package importer

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/dlcdb/dlcdb/internal/lifecycle"
)

// Canonical internal column names. The bit-exact contract for bulk import.
const (
	ColSapID                   = "SAP_ID"
	ColRoom                    = "ROOM"
	ColEdvID                   = "EDV_ID"
	ColDeviceType              = "DEVICE_TYPE"
	ColSerialNumber            = "SERIAL_NUMBER"
	ColManufacturer            = "MANUFACTURER"
	ColSeries                  = "SERIES"
	ColSupplier                = "SUPPLIER"
	ColPurchaseDate            = "PURCHASE_DATE"
	ColWarrantyExpiration      = "WARRANTY_EXPIRATION_DATE"
	ColMaintenanceExpiration   = "MAINTENANCE_CONTRACT_EXPIRATION_DATE"
	ColCostCentre              = "COST_CENTRE"
	ColBookValue               = "BOOK_VALUE"
	ColNote                    = "NOTE"
	ColMacAddress              = "MAC_ADDRESS"
	ColExtraMacAddresses       = "EXTRA_MAC_ADDRESSES"
	ColNickName                = "NICK_NAME"
	ColIsLentable              = "IS_LENTABLE"
	ColIsLicence               = "IS_LICENCE"
	ColUsername                = "USERNAME"
	ColTenant                  = "TENANT"
	ColRecordType              = "RECORD_TYPE"
	ColDispositionState        = "DISPOSITION_STATE"
	ColRemovedInfo             = "REMOVED_INFO"
	ColRemovedDate             = "REMOVED_DATE"
)

// InternalHeaders is the expected header set for the internal import format.
// A parsed CSV must carry at least these columns.
var InternalHeaders = []string{
	ColSapID, ColRoom, ColEdvID, ColDeviceType, ColSerialNumber,
	ColManufacturer, ColSeries, ColSupplier, ColPurchaseDate,
	ColWarrantyExpiration, ColMaintenanceExpiration, ColCostCentre,
	ColBookValue, ColNote, ColMacAddress, ColExtraMacAddresses,
	ColNickName, ColIsLentable, ColIsLicence, ColUsername, ColTenant,
}

// RemovalHeaders is the expected header set for the bulk removal format.
var RemovalHeaders = []string{
	ColSapID, ColEdvID, ColNote, ColDispositionState, ColRemovedInfo,
	ColRemovedDate, ColUsername,
}

// ValidateHeaders checks that got is a superset of required and returns a
// validation error naming the missing columns otherwise. This runs before any
// row is processed, so a failed validation has no side effects.
func ValidateHeaders(got, required []string) error {
	gotSet := mapset.NewSet(got...)
	requiredSet := mapset.NewSet(required...)

	missing := requiredSet.Difference(gotSet)
	if missing.Cardinality() == 0 {
		return nil
	}
	names := missing.ToSlice()
	sort.Strings(names)
	return lifecycle.NewValidationError("headers",
		"missing required columns: %s", strings.Join(names, ", "))
}

// truthValues is the vocabulary accepted as "true" in boolean columns.
var truthValues = map[string]bool{
	"yes":  true,
	"ja":   true,
	"true": true,
	"1":    true,
}

// parseTruth parses a boolean CSV cell against the truth vocabulary,
// case-insensitively. Anything outside the vocabulary is false.
func parseTruth(s string) bool {
	return truthValues[strings.ToLower(strings.TrimSpace(s))]
}

// formatName returns the human name of an import format for messages.
func formatName(f Format) string {
	if f == FormatSAP {
		return "SAP export"
	}
	return "internal"
}
