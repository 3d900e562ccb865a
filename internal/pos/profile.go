package pos

// priceMode says where a line's unit price comes from.
type priceMode int

const (
	// priceUnit reads the unit price column.
	priceUnit priceMode = iota
	// priceLine divides the line total by the quantity.
	priceLine
)

// Profile is the column layout of one POS export format.
type Profile struct {
	Name      string
	TableCol  string
	BillCol   string // optional; lines without it are grouped by table
	ItemCol   string
	QtyCol    string
	PriceMode priceMode
	PriceCol  string // unit price when PriceMode == priceUnit, line total otherwise
}

func (p Profile) requiredCols() []string {
	return []string{p.TableCol, p.ItemCol, p.QtyCol, p.PriceCol}
}

// profiles are tried in order; the first whose columns are all present wins.
var profiles = []Profile{
	{
		Name:      "pt-documento",
		TableCol:  "Mesa",
		BillCol:   "Documento",
		ItemCol:   "Artigo",
		QtyCol:    "Qtd.",
		PriceMode: priceLine,
		PriceCol:  "Total",
	},
	{
		Name:      "pt-mesa",
		TableCol:  "Mesa",
		ItemCol:   "Artigo",
		QtyCol:    "Qtd",
		PriceMode: priceUnit,
		PriceCol:  "Preço",
	},
	{
		Name:      "en-check",
		TableCol:  "Table",
		BillCol:   "Check",
		ItemCol:   "Item",
		QtyCol:    "Qty",
		PriceMode: priceUnit,
		PriceCol:  "Unit price",
	},
}
