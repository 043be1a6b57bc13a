package receipt

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/pricing"
	"github.com/noah-isme/toko-pos/internal/sale"
	"github.com/noah-isme/toko-pos/internal/store"
)

const (
	compactWidth    = 40
	compactNameMax  = 18
	fullWidth       = 80
	fullNameMax     = 30
	invoicePrefix   = "No. 0000-0001-"
	defaultCurrency = "L"
)

// Business is the header printed on every document.
type Business struct {
	Name          string
	RTN           string
	Phone         string
	Address       []string
	Email         string
	City          string
	Currency      string
	CurrencyWords string
}

// DefaultBusiness returns the store front the register was set up for.
func DefaultBusiness() Business {
	return Business{
		Name:  "PODEGA Y COMERCIAL RIVERA",
		RTN:   "12011972000081",
		Phone: "2774-1192 / 9967-7300",
		Address: []string{
			"Bo. La Mercedes, Colonia la Ermita, 1ra Calle, 14-62,",
			"frente a Farmacia Santa, La Paz, Honduras",
		},
		Email:         "freddyrivera2015@gmail.com",
		City:          "La Paz, Honduras",
		Currency:      defaultCurrency,
		CurrencyWords: "LEMPIRAS",
	}
}

// Renderer formats pending sales into printable documents. Rendering is a
// pure function of the pending sale and the optional client.
type Renderer struct {
	Business Business
	// Template overrides the built-in HTML receipt when not empty.
	Template string
	Logger   zerolog.Logger
}

func (r Renderer) money(v decimal.Decimal) string {
	cur := r.Business.Currency
	if cur == "" {
		cur = defaultCurrency
	}
	return cur + pricing.Round(v).StringFixed(2)
}

// Compact renders the narrow ticket layout.
func (r Renderer) Compact(p sale.PendingSale) string {
	var b strings.Builder
	rule := strings.Repeat("-", compactWidth)
	r.writeHeader(&b, compactWidth, true)
	b.WriteString(rule + "\n")
	writeInvoice(&b, p)
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "%-4s %-18s %16s\n", "Cant", "Producto", "Total")
	b.WriteString(rule + "\n")
	for _, l := range p.Lines() {
		fmt.Fprintf(&b, "%-4d %-18s %16s\n", l.Qty, truncate(l.ProductName, compactNameMax), r.money(l.Total()))
		if l.DiscountPct.IsPositive() {
			fmt.Fprintf(&b, "     @ %s (-%s%%)\n", r.money(l.UnitPrice), percent(l.DiscountPct))
		}
	}
	b.WriteString(rule + "\n")
	r.writeTotals(&b, p, 24, 16)
	b.WriteString(rule + "\n")
	r.writeTaxTable(&b, p, 24, 16)
	b.WriteString(rule + "\n")
	b.WriteString(wrap(AmountInWordsLine(p.Due(), r.Business.CurrencyWords), compactWidth))
	b.WriteString(rule + "\n")
	b.WriteString(center("Gracias por su compra", compactWidth) + "\n")
	return b.String()
}

// Full renders the wide letter layout. client may be nil.
func (r Renderer) Full(p sale.PendingSale, client *store.Client) string {
	var b strings.Builder
	rule := strings.Repeat("-", fullWidth)
	r.writeHeader(&b, fullWidth, false)
	b.WriteString("\n")
	writeInvoice(&b, p)
	b.WriteString("\n")
	if client != nil {
		writeClient(&b, *client)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%-8s%-10s%-32s%15s%15s\n", "Cant.", "Código", "Producto", "P.Unit", "Subtotal")
	b.WriteString(rule + "\n")
	for _, l := range p.Lines() {
		fmt.Fprintf(&b, "%-8d%-10s%-32s%15s%15s\n", l.Qty, fmt.Sprintf("%08d", l.ProductID),
			truncate(l.ProductName, fullNameMax), r.money(l.UnitPrice), r.money(l.Total()))
		if l.DiscountPct.IsPositive() {
			fmt.Fprintf(&b, "%18s%-32s%30s\n", "", "Descuento "+percent(l.DiscountPct)+"%", "-"+r.money(l.DiscountAmount()))
		}
	}
	b.WriteString(rule + "\n")
	r.writeTotals(&b, p, 65, 15)
	b.WriteString(AmountInWordsLine(p.Due(), r.Business.CurrencyWords) + "\n\n")
	b.WriteString("Orden de Compra Exenta:\n")
	b.WriteString("Constancia Registro Exento:\n")
	b.WriteString("Desc. y Rebajas Otorgados:\n\n")
	r.writeTaxTable(&b, p, 30, 15)
	b.WriteString("\nObservaciones:\n\n")
	b.WriteString("Original - Cliente\n")
	b.WriteString("Gracias por su compra\n")
	return b.String()
}

func (r Renderer) writeHeader(b *strings.Builder, width int, centered bool) {
	lines := []string{r.Business.Name}
	if r.Business.RTN != "" {
		lines = append(lines, "R.T.N.: "+r.Business.RTN)
	}
	if r.Business.Phone != "" {
		lines = append(lines, "Tel: "+r.Business.Phone)
	}
	if !centered {
		lines = append(lines, r.Business.Address...)
		if r.Business.Email != "" {
			lines = append(lines, "Email: "+r.Business.Email)
		}
	}
	for _, l := range lines {
		if centered {
			l = center(truncate(l, width), width)
		}
		b.WriteString(l + "\n")
	}
}

func writeInvoice(b *strings.Builder, p sale.PendingSale) {
	b.WriteString("FACTURA\n")
	b.WriteString(invoicePrefix + p.Suffix() + "\n")
	b.WriteString("Fecha: " + p.Fecha() + "\n")
	b.WriteString("Venta: " + p.ID + "\n")
}

func writeClient(b *strings.Builder, c store.Client) {
	b.WriteString("DATOS DEL CLIENTE:\n")
	b.WriteString("Nombre: " + c.FullName() + "\n")
	if c.DNI != "" {
		b.WriteString("DNI/RTN: " + c.DNI + "\n")
	}
	if c.Phone != "" {
		b.WriteString("Tel: " + c.Phone + "\n")
	}
	if c.Address != "" {
		b.WriteString("Dir: " + c.Address + "\n")
	}
}

func (r Renderer) writeTotals(b *strings.Builder, p sale.PendingSale, labelWidth, valueWidth int) {
	sum := p.Snapshot.Summary()
	row := func(label string, v decimal.Decimal) {
		fmt.Fprintf(b, "%-*s%*s\n", labelWidth, label, valueWidth, r.money(v))
	}
	row("Sub Total", sum.Subtotal)
	if sum.Discount.IsPositive() {
		row("Descuento", sum.Discount.Neg())
	}
	row("TOTAL", p.Total)
	row("Monto Recibido", p.AmountPaid)
	row("Vuelto", p.Change)
}

func (r Renderer) writeTaxTable(b *strings.Builder, p sale.PendingSale, labelWidth, valueWidth int) {
	tax := pricing.Tax(p.Total)
	row := func(label string, v decimal.Decimal) {
		fmt.Fprintf(b, "%-*s%*s\n", labelWidth, label, valueWidth, r.money(v))
	}
	fmt.Fprintf(b, "%-*s%*s\n", labelWidth, "Concepto", valueWidth, "Total")
	row("Sub Total", tax.Gravable)
	row("Exento", tax.Exempt)
	row("Gravado 15%", tax.Gravable)
	row("Gravado 18%", decimal.Zero)
	row("Impuesto 15%", tax.Tax)
	row("Impuesto 18%", decimal.Zero)
	row("TOTAL:", tax.Total)
}

// Constancia renders the wholesale purchase certificate.
func (r Renderer) Constancia(p sale.PendingSale, client store.Client) string {
	var b strings.Builder
	rule := strings.Repeat("━", 50)
	date := LongDate(p.CreatedAt)
	na := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "N/A"
		}
		return s
	}

	b.WriteString("CONSTANCIA DE COMPRA MAYORISTA\n\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "Por medio de la presente, %s,\n", r.Business.Name)
	fmt.Fprintf(&b, "con R.T.N. %s, HACE CONSTAR que:\n\n", r.Business.RTN)
	b.WriteString("DATOS DEL CLIENTE:\n" + rule + "\n\n")
	fmt.Fprintf(&b, "Nombre: %s\n", client.FullName())
	fmt.Fprintf(&b, "DNI/RTN: %s\n", na(client.DNI))
	fmt.Fprintf(&b, "Teléfono: %s\n", na(client.Phone))
	fmt.Fprintf(&b, "Email: %s\n", na(client.Email))
	fmt.Fprintf(&b, "Dirección: %s\n\n", na(client.Address))
	b.WriteString("DETALLES DE LA COMPRA:\n" + rule + "\n\n")
	fmt.Fprintf(&b, "Fecha: %s\n", date)
	fmt.Fprintf(&b, "Factura: %s\n", p.ID)
	b.WriteString("Tipo: VENTA MAYORISTA\n\nPRODUCTOS:\n\n")
	for _, l := range p.Lines() {
		fmt.Fprintf(&b, "  • %s\n", l.ProductName)
		fmt.Fprintf(&b, "    %d unidades x %s", l.Qty, r.money(l.UnitPrice))
		if l.DiscountPct.IsPositive() {
			fmt.Fprintf(&b, " (Desc: %s%%)", percent(l.DiscountPct))
		}
		fmt.Fprintf(&b, " = %s\n\n", r.money(l.Total()))
	}
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "MONTO TOTAL: %s\n\n", r.money(p.Total))
	b.WriteString("Esta constancia se emite para los fines que el\ninteresado estime conveniente.\n\n")
	b.WriteString("Observaciones:\n")
	for i := 0; i < 3; i++ {
		b.WriteString(strings.Repeat("_", 49) + "\n")
	}
	b.WriteString("\n\n" + rule + "\n\n")
	b.WriteString("Firma Autorizada              Sello de la Empresa\n\n\n")
	b.WriteString("__________________            __________________\n\n\n")
	b.WriteString(r.Business.City + "\n")
	b.WriteString(date + "\n")
	return b.String()
}

// Summary renders the review text shown before a wholesale sale is processed.
func (r Renderer) Summary(p sale.PendingSale, client store.Client) string {
	var b strings.Builder
	units := 0
	for _, l := range p.Lines() {
		units += l.Qty
	}
	sum := p.Snapshot.Summary()
	b.WriteString("RESUMEN DE VENTA MAYORISTA\n\n")
	fmt.Fprintf(&b, "Factura: %s\n", p.ID)
	fmt.Fprintf(&b, "Cliente: %s\n", client.FullName())
	if client.DNI != "" {
		fmt.Fprintf(&b, "DNI/RTN: %s\n", client.DNI)
	}
	fmt.Fprintf(&b, "Productos: %d\n", p.Snapshot.Len())
	fmt.Fprintf(&b, "Unidades: %d\n", units)
	fmt.Fprintf(&b, "Subtotal: %s\n", r.money(sum.Subtotal))
	fmt.Fprintf(&b, "Descuentos: %s\n", r.money(sum.Discount))
	fmt.Fprintf(&b, "TOTAL: %s\n\n", r.money(p.Total))
	b.WriteString("Documentos a generar:\n")
	fmt.Fprintf(&b, "  - Recibo_%s.html\n", p.ID)
	fmt.Fprintf(&b, "  - Constancia_%s.html\n", p.ID)
	return b.String()
}

var months = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio",
	"agosto", "septiembre", "octubre", "noviembre", "diciembre"}

// LongDate formats t as "14 de marzo de 2025".
func LongDate(t time.Time) string {
	return fmt.Sprintf("%02d de %s de %d", t.Day(), months[t.Month()-1], t.Year())
}

func percent(pct decimal.Decimal) string {
	return pct.Mul(decimal.NewFromInt(100)).Round(2).String()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func center(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	pad := (width - n) / 2
	return strings.Repeat(" ", pad) + s
}

func wrap(s string, width int) string {
	var b strings.Builder
	line := ""
	for _, w := range strings.Fields(s) {
		switch {
		case line == "":
			line = w
		case len([]rune(line))+1+len([]rune(w)) <= width:
			line += " " + w
		default:
			b.WriteString(line + "\n")
			line = w
		}
	}
	if line != "" {
		b.WriteString(line + "\n")
	}
	return b.String()
}
