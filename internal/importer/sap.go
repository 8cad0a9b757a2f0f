package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/dlcdb/dlcdb/internal/db/models"
	"github.com/dlcdb/dlcdb/internal/lifecycle"
)

// sapBannerRows is the number of leading report-header rows every raw SAP
// export starts with. They carry no data and are skipped unconditionally.
const sapBannerRows = 7

// sapColumns maps the German column names of the raw SAP asset export to
// canonical internal names. Anlage and UNr. are not mapped directly: together
// they form the SAP-ID ("<Anlage>-<UNr.>").
var sapColumns = map[string]string{
	"Anlagenbezeichnung":   ColNote,
	"Serialnummer":         ColSerialNumber,
	"Raum":                 ColRoom,
	"Kostenstelle":         ColCostCentre,
	"Aktivierung am":       ColPurchaseDate,
	"Buchwert":             ColBookValue,
	"Hersteller der Anlage": ColManufacturer,
	"Lieferant":            ColSupplier,
	"Typenbezeichnung":     ColSeries,
}

// sapKeyColumns are the two columns composing the SAP-ID.
const (
	sapColAsset     = "Anlage"
	sapColSubnumber = "UNr."
)

// sapHeaderSet is the cell set that identifies the header row of a raw export.
var sapHeaderSet = func() mapset.Set[string] {
	s := mapset.NewSet(sapColAsset, sapColSubnumber)
	for name := range sapColumns {
		s.Add(name)
	}
	return s
}()

// deviceTypeAliases guesses a device type from the German asset description
// by substring matching. Unmatched descriptions fall back to "Other".
var deviceTypeAliases = []struct {
	Type    string
	Aliases []string
}{
	{"Notebook", []string{"notebook", "laptop"}},
	{"PC", []string{"pc", "desktop", "rechner", "workstation"}},
	{"Monitor", []string{"monitor", "bildschirm", "display"}},
	{"Drucker", []string{"drucker", "printer", "plotter"}},
	{"Server", []string{"server"}},
	{"Beamer", []string{"beamer", "projektor"}},
	{"Telefon", []string{"telefon", "phone"}},
	{"Kamera", []string{"kamera", "camera"}},
	{"Tisch", []string{"tisch", "desk"}},
	{"Stuhl", []string{"stuhl", "chair"}},
	{"Schrank", []string{"schrank", "regal", "container"}},
}

// deviceTypeFallback is the catch-all type for unmatched descriptions.
const deviceTypeFallback = "Other"

// GuessDeviceType matches the asset description against the device type
// vocabulary, case-insensitively.
func GuessDeviceType(description string) string {
	desc := strings.ToLower(description)
	for _, entry := range deviceTypeAliases {
		for _, alias := range entry.Aliases {
			if strings.Contains(desc, alias) {
				return entry.Type
			}
		}
	}
	return deviceTypeFallback
}

// CleanSAP normalizes a raw multi-tenant SAP export into internal-format CSV
// bytes: it decodes the Windows-1252 export encoding, strips the banner rows,
// drops blank rows, locates the header row (cell set superset of the known
// German names), renames matched columns to canonical internal names,
// composes the SAP-ID from asset and subnumber, converts German dates to ISO,
// guesses a device type per row and appends the synthetic TENANT and
// RECORD_TYPE columns. The result parses with the internal-format reader.
func CleanSAP(r io.Reader, tenant string) ([]byte, error) {
	reader := csv.NewReader(transform.NewReader(r, charmap.Windows1252.NewDecoder()))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	raw, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading sap export: %w", err)
	}
	if len(raw) <= sapBannerRows {
		return nil, lifecycle.NewValidationError("csv", "the export ends inside the report banner (%d rows)", len(raw))
	}
	raw = raw[sapBannerRows:]

	// Locate the header row among the remaining non-blank rows.
	headerIdx := -1
	var headerCells []string
	for i, cells := range raw {
		if isBlankRow(cells) {
			continue
		}
		trimmed := trimCells(cells)
		if mapset.NewSet(trimmed...).IsSuperset(sapHeaderSet) {
			headerIdx = i
			headerCells = trimmed
			break
		}
	}
	if headerIdx < 0 {
		return nil, lifecycle.NewValidationError("headers", "no header row with the expected SAP column names found")
	}

	colIdx := make(map[string]int, len(headerCells))
	for i, name := range headerCells {
		colIdx[name] = i
	}

	outHeaders := append(append([]string{}, InternalHeaders...), ColRecordType)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(outHeaders); err != nil {
		return nil, fmt.Errorf("writing cleaned header: %w", err)
	}

	for _, cells := range raw[headerIdx+1:] {
		if isBlankRow(cells) {
			continue
		}
		cells = trimCells(cells)
		cell := func(german string) string {
			idx, ok := colIdx[german]
			if !ok || idx >= len(cells) {
				return ""
			}
			return cells[idx]
		}

		asset := cell(sapColAsset)
		if asset == "" {
			continue
		}
		subnumber := cell(sapColSubnumber)
		if subnumber == "" {
			subnumber = "0"
		}

		purchaseDate, err := germanToISODate(cell("Aktivierung am"))
		if err != nil {
			return nil, err
		}

		description := cell("Anlagenbezeichnung")
		recordType := string(models.RecordInRoom)
		if cell("Raum") == "" {
			recordType = string(models.RecordOrdered)
		}

		out := map[string]string{
			ColSapID:        asset + "-" + subnumber,
			ColRoom:         cell("Raum"),
			ColDeviceType:   GuessDeviceType(description),
			ColSerialNumber: cell("Serialnummer"),
			ColManufacturer: cell("Hersteller der Anlage"),
			ColSeries:       cell("Typenbezeichnung"),
			ColSupplier:     cell("Lieferant"),
			ColPurchaseDate: purchaseDate,
			ColCostCentre:   cell("Kostenstelle"),
			ColBookValue:    cell("Buchwert"),
			ColNote:         description,
			ColIsLentable:   "no",
			ColIsLicence:    "no",
			ColTenant:       tenant,
			ColRecordType:   recordType,
		}

		record := make([]string, len(outHeaders))
		for i, h := range outHeaders {
			record[i] = out[h]
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("writing cleaned row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing cleaned csv: %w", err)
	}
	return buf.Bytes(), nil
}

// germanToISODate converts a DD.MM.YYYY cell to YYYY-MM-DD. Empty cells pass
// through empty.
func germanToISODate(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	t, err := time.Parse("02.01.2006", s)
	if err != nil {
		return "", lifecycle.NewValidationError(ColPurchaseDate, "invalid date %q, expected DD.MM.YYYY", s)
	}
	return t.Format(time.DateOnly), nil
}

// trimCells trims whitespace on every cell.
func trimCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
