package receipt

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/noah-isme/toko-pos/internal/pricing"
	"github.com/noah-isme/toko-pos/internal/sale"
	"github.com/noah-isme/toko-pos/internal/store"
)

// Layout selects the physical format of an HTML document.
type Layout string

const (
	LayoutTicket Layout = "ticket"
	LayoutLetter Layout = "letter"
)

// ParseLayout maps user input to a layout, defaulting to the ticket.
func ParseLayout(s string) Layout {
	if Layout(s) == LayoutLetter {
		return LayoutLetter
	}
	return LayoutTicket
}

// HTMLLine is one item row exposed to receipt templates.
type HTMLLine struct {
	Code        string
	Name        string
	Qty         int
	UnitPrice   string
	DiscountPct string
	Discount    string
	Subtotal    string
}

// HTMLData is the value receipt templates are executed with.
type HTMLData struct {
	Business     Business
	Layout       Layout
	Width        string
	SaleID       string
	InvoiceNo    string
	Fecha        string
	Client       *store.Client
	Lines        []HTMLLine
	Subtotal     string
	Discount     string
	Total        string
	AmountPaid   string
	Change       string
	Gravable     string
	Tax          string
	TotalWithTax string
	Words        string
}

var builtinReceipt = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Recibo {{.SaleID}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 0; padding: 20px; font-size: 10pt; }
.recibo { width: {{.Width}}; margin: 0 auto; border: 1px dashed #333; padding: 15px; }
h1 { font-size: 16pt; text-align: center; margin: 0 0 10px 0; }
.info { text-align: center; margin-bottom: 15px; font-size: 9pt; }
table { width: 100%; border-collapse: collapse; }
th, td { padding: 2px 4px; text-align: left; }
td.num, th.num { text-align: right; }
.totales td { border-top: 1px solid #333; }
.palabras { margin-top: 10px; font-weight: bold; }
</style>
</head>
<body>
<div class="recibo">
<h1>{{.Business.Name}}</h1>
<div class="info">
{{if .Business.RTN}}R.T.N.: {{.Business.RTN}}<br>{{end}}
{{if .Business.Phone}}Tel: {{.Business.Phone}}<br>{{end}}
{{range .Business.Address}}{{.}}<br>{{end}}
</div>
<p>FACTURA {{.InvoiceNo}}<br>Fecha: {{.Fecha}}<br>Venta: {{.SaleID}}</p>
{{with .Client}}<p>Cliente: {{.FullName}}{{if .DNI}}<br>DNI/RTN: {{.DNI}}{{end}}</p>{{end}}
<table>
<tr><th>Cant.</th>{{if eq .Layout "letter"}}<th>Código</th>{{end}}<th>Producto</th><th class="num">P.Unit</th><th class="num">Subtotal</th></tr>
{{range .Lines}}<tr><td>{{.Qty}}</td>{{if eq $.Layout "letter"}}<td>{{.Code}}</td>{{end}}<td>{{.Name}}{{if .DiscountPct}} (-{{.DiscountPct}}%){{end}}</td><td class="num">{{.UnitPrice}}</td><td class="num">{{.Subtotal}}</td></tr>
{{end}}</table>
<table class="totales">
<tr><td>Sub Total</td><td class="num">{{.Subtotal}}</td></tr>
<tr><td>Descuento</td><td class="num">{{.Discount}}</td></tr>
<tr><td>Gravado 15%</td><td class="num">{{.Gravable}}</td></tr>
<tr><td>Impuesto 15%</td><td class="num">{{.Tax}}</td></tr>
<tr><td><b>TOTAL</b></td><td class="num"><b>{{.Total}}</b></td></tr>
<tr><td>Monto Recibido</td><td class="num">{{.AmountPaid}}</td></tr>
<tr><td>Vuelto</td><td class="num">{{.Change}}</td></tr>
</table>
<p class="palabras">{{.Words}}</p>
<p class="info">Gracias por su compra</p>
</div>
</body>
</html>
`))

// Data builds the template input for p.
func (r Renderer) Data(p sale.PendingSale, client *store.Client, layout Layout) HTMLData {
	sum := p.Snapshot.Summary()
	tax := pricing.Tax(p.Total)
	width := "300px"
	if layout == LayoutLetter {
		width = "7.5in"
	}
	d := HTMLData{
		Business:     r.Business,
		Layout:       layout,
		Width:        width,
		SaleID:       p.ID,
		InvoiceNo:    invoicePrefix + p.Suffix(),
		Fecha:        p.Fecha(),
		Client:       client,
		Subtotal:     r.money(sum.Subtotal),
		Discount:     r.money(sum.Discount),
		Total:        r.money(p.Total),
		AmountPaid:   r.money(p.AmountPaid),
		Change:       r.money(p.Change),
		Gravable:     r.money(tax.Gravable),
		Tax:          r.money(tax.Tax),
		TotalWithTax: r.money(tax.Total),
		Words:        AmountInWordsLine(p.Due(), r.Business.CurrencyWords),
	}
	for _, l := range p.Lines() {
		row := HTMLLine{
			Code:      fmt.Sprintf("%08d", l.ProductID),
			Name:      l.ProductName,
			Qty:       l.Qty,
			UnitPrice: r.money(l.UnitPrice),
			Discount:  r.money(l.DiscountAmount()),
			Subtotal:  r.money(l.Total()),
		}
		if l.DiscountPct.IsPositive() {
			row.DiscountPct = percent(l.DiscountPct)
		}
		d.Lines = append(d.Lines, row)
	}
	return d
}

// HTML renders p as markup for saving or printing. A custom Template that
// fails to parse or execute is logged and the built-in receipt is used.
func (r Renderer) HTML(p sale.PendingSale, client *store.Client, layout Layout) (string, error) {
	data := r.Data(p, client, layout)
	if r.Template != "" {
		out, err := execute(r.Template, data)
		if err == nil {
			return out, nil
		}
		r.Logger.Warn().Err(err).Str("sale_id", p.ID).Msg("receipt_template_invalid")
	}
	var buf bytes.Buffer
	if err := builtinReceipt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render receipt %s: %w", p.ID, err)
	}
	return buf.String(), nil
}

// ValidateTemplate reports whether text parses as a receipt template.
func ValidateTemplate(text string) error {
	_, err := template.New("custom").Parse(text)
	return err
}

func execute(text string, data HTMLData) (string, error) {
	tpl, err := template.New("custom").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var printable = template.Must(template.New("printable").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
@page { size: letter; margin: 0.75in; }
body { font-family: "Courier New", monospace; font-size: 10pt; }
pre { white-space: pre-wrap; }
</style>
</head>
<body>
<pre>{{.Body}}</pre>
</body>
</html>
`))

// WrapHTML embeds plain text in a printable letter-size page.
func WrapHTML(text, title string) string {
	var buf bytes.Buffer
	// Execution only fails on writer errors, which bytes.Buffer never returns.
	_ = printable.Execute(&buf, struct{ Title, Body string }{title, text})
	return buf.String()
}
