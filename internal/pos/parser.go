// Package pos turns point-of-sale bill exports into orders.
package pos

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
)

var (
	ErrUnknownFormat = errors.New("unknown POS export format")
	ErrInvalidRow    = errors.New("invalid POS row")
)

// RowError names the 1-based file row a parse failure came from.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

func (e *RowError) Is(target error) bool { return target == ErrInvalidRow }

// Parser reads semicolon separated POS exports in any supported layout and
// charset. Amounts may use European or English separators.
type Parser struct {
	currency string
}

func NewParser(currency string) *Parser {
	return &Parser{currency: currency}
}

// Parse returns one order per table, or per bill when the export has bill
// numbers, in the order they first appear. Repeated lines for the same item
// and price are merged.
func (p *Parser) Parse(r io.Reader) ([]order.CreateParams, error) {
	currency, err := money.NormalizeCurrency(p.currency)
	if err != nil {
		return nil, err
	}

	utf8r, charset, err := toUTF8(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	reader := csv.NewReader(utf8r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	profile, cols, headerIdx := detectProfile(rows)
	if profile == nil {
		return nil, ErrUnknownFormat
	}

	slog.Debug("parsing POS export", "profile", profile.Name, "charset", charset, "rows", len(rows)-headerIdx-1)

	return parseRows(profile, cols, rows[headerIdx+1:], headerIdx, currency)
}

type colIndex map[string]int

func detectProfile(rows [][]string) (*Profile, colIndex, int) {
	for rowIdx, row := range rows {
		cols := make(colIndex, len(row))

		for i, cell := range row {
			if name := strings.TrimSpace(cell); name != "" {
				cols[name] = i
			}
		}

		for i := range profiles {
			if matchesProfile(&profiles[i], cols) {
				return &profiles[i], cols, rowIdx
			}
		}
	}

	return nil, nil, 0
}

func matchesProfile(p *Profile, cols colIndex) bool {
	for _, name := range p.requiredCols() {
		if _, ok := cols[name]; !ok {
			return false
		}
	}

	return true
}

type billKey struct {
	table string
	bill  string
}

type itemKey struct {
	name  string
	price int64
}

type bill struct {
	params order.CreateParams
	items  map[itemKey]int
}

// headerIdx is the 0-based index of the header row; errors name 1-based file rows.
func parseRows(p *Profile, cols colIndex, rows [][]string, headerIdx int, currency string) ([]order.CreateParams, error) {
	billIdx := -1
	if idx, ok := cols[p.BillCol]; ok && p.BillCol != "" {
		billIdx = idx
	}

	var (
		keys  []billKey
		bills = map[billKey]*bill{}
	)

	for i, row := range rows {
		rowNum := headerIdx + i + 2

		table := cellValue(row, cols[p.TableCol])
		if table == "" {
			// Totals and footers carry no table.
			continue
		}

		name := cellValue(row, cols[p.ItemCol])
		if name == "" {
			return nil, &RowError{Row: rowNum, Err: errors.New("missing item")}
		}

		qty, err := parseQuantity(cellValue(row, cols[p.QtyCol]))
		if err != nil {
			return nil, &RowError{Row: rowNum, Err: err}
		}

		price, err := money.Parse(cellValue(row, cols[p.PriceCol]), currency)
		if err != nil {
			return nil, &RowError{Row: rowNum, Err: err}
		}

		if p.PriceMode == priceLine {
			price, err = unitPrice(price, qty)
			if err != nil {
				return nil, &RowError{Row: rowNum, Err: err}
			}
		}

		if price.IsNegative() {
			return nil, &RowError{Row: rowNum, Err: fmt.Errorf("negative price %s", price)}
		}

		key := billKey{table: table, bill: cellValue(row, billIdx)}

		b, ok := bills[key]
		if !ok {
			b = &bill{
				params: order.CreateParams{TableID: table, Currency: currency},
				items:  map[itemKey]int{},
			}
			bills[key] = b
			keys = append(keys, key)
		}

		ik := itemKey{name: name, price: price.Amount}
		if at, ok := b.items[ik]; ok {
			b.params.Items[at].Quantity += qty
			continue
		}

		b.items[ik] = len(b.params.Items)
		b.params.Items = append(b.params.Items, order.ItemParams{Name: name, UnitPrice: price.Amount, Quantity: qty})
	}

	out := make([]order.CreateParams, 0, len(keys))
	for _, k := range keys {
		out = append(out, bills[k].params)
	}

	return out, nil
}

func parseQuantity(s string) (int, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}

	if !d.IsInteger() || !d.IsPositive() {
		return 0, fmt.Errorf("quantity %q is not a positive whole number", s)
	}

	return int(d.IntPart()), nil
}

// unitPrice splits a line total evenly over qty. Totals that do not divide
// into whole cents are rejected rather than rounded.
func unitPrice(total money.Money, qty int) (money.Money, error) {
	if total.Amount%int64(qty) != 0 {
		return money.Money{}, fmt.Errorf("line total %s does not split into %d equal prices", total, qty)
	}

	return money.New(total.Amount/int64(qty), total.Currency), nil
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}
