// Package report renders invoices and sales analyses as PDF documents.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/xraph/cloudbill/analysis"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/plugin"
	"github.com/xraph/cloudbill/types"
)

// Company is the issuer block printed on every report.
type Company struct {
	Name    string
	Address string
}

// DefaultCompany is the issuer used when none is configured.
var DefaultCompany = Company{
	Name:    "Tecnologías Chapinas, S.A.",
	Address: "Guatemala, Guatemala",
}

// Renderer builds PDF documents.
type Renderer struct {
	company Company
	now     func() time.Time
}

// New creates a renderer for company. Empty fields fall back to
// DefaultCompany.
func New(company Company) *Renderer {
	if company.Name == "" {
		company.Name = DefaultCompany.Name
	}
	if company.Address == "" {
		company.Address = DefaultCompany.Address
	}
	return &Renderer{company: company, now: time.Now}
}

var (
	titleStyle   = props.Text{Size: 18, Style: fontstyle.Bold, Align: align.Center}
	companyStyle = props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Center}
	headingStyle = props.Text{Size: 12, Style: fontstyle.Bold, Top: 3}
	labelStyle   = props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right, Right: 2}
	valueStyle   = props.Text{Size: 9}
	headerStyle  = props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Center}
	cellStyle    = props.Text{Size: 9, Align: align.Center}
	totalStyle   = props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right}
	footerStyle  = props.Text{Size: 8, Align: align.Center}
)

func (r *Renderer) newDocument() core.Maroto {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()
	return maroto.New(cfg)
}

func (r *Renderer) header(m core.Maroto, title, subtitle string) {
	m.AddRow(14, text.NewCol(12, title, titleStyle))
	m.AddRow(6, text.NewCol(12, r.company.Name, companyStyle))
	m.AddRow(6, text.NewCol(12, subtitle, companyStyle))
	m.AddRow(6, text.NewCol(12, r.company.Address, companyStyle))
	m.AddRow(6, col.New(12))
}

func labelRow(m core.Maroto, label, value string) {
	m.AddRow(6,
		text.NewCol(4, label, labelStyle),
		text.NewCol(8, value, valueStyle),
	)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func generate(m core.Maroto) ([]byte, error) {
	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("report: generate pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

// RenderInvoice renders a detailed invoice: issuer, invoice and client
// blocks, one resource table per instance with its subtotal, and the total.
func (r *Renderer) RenderInvoice(stmt *invoice.Statement) ([]byte, error) {
	if stmt == nil || stmt.Invoice == nil {
		return nil, fmt.Errorf("report: empty invoice statement")
	}
	m := r.newDocument()
	r.header(m, "FACTURA DETALLADA", "Sistema de Facturación de Nube")

	labelRow(m, "No. Factura:", stmt.Invoice.Number)
	labelRow(m, "Fecha:", stmt.Invoice.IssueDate)
	labelRow(m, "NIT Cliente:", stmt.Invoice.ClientNIT)

	m.AddRow(10, text.NewCol(12, "DATOS DEL CLIENTE", headingStyle))
	labelRow(m, "Nombre:", orNA(stmt.Client.Name))
	labelRow(m, "NIT:", orNA(stmt.Client.NIT))
	labelRow(m, "Dirección:", orNA(stmt.Client.Address))
	labelRow(m, "Email:", orNA(stmt.Client.Email))

	m.AddRow(10, text.NewCol(12, "DETALLE DE CONSUMO", headingStyle))
	for _, g := range stmt.Instances {
		m.AddRow(8, text.NewCol(12,
			fmt.Sprintf("Instancia: %s (ID: %d)", g.InstanceName, g.InstanceID),
			props.Text{Size: 10, Style: fontstyle.Bold, Top: 2}))

		if len(g.Resources) > 0 {
			m.AddRow(7,
				text.NewCol(4, "Recurso", headerStyle),
				text.NewCol(2, "Cantidad", headerStyle),
				text.NewCol(2, "Costo/Hora", headerStyle),
				text.NewCol(2, "Horas", headerStyle),
				text.NewCol(2, "Subtotal", headerStyle),
			)
			for _, l := range g.Resources {
				m.AddRow(6,
					text.NewCol(4, l.Name, cellStyle),
					text.NewCol(2, l.Quantity.String(), cellStyle),
					text.NewCol(2, types.NewMoney(l.CostPerHour).String(), cellStyle),
					text.NewCol(2, l.TimeHours.StringFixed(2), cellStyle),
					text.NewCol(2, l.Total.String(), cellStyle),
				)
			}
		}

		m.AddRow(7, text.NewCol(12, "Subtotal Instancia: "+g.Subtotal.String(),
			props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right, Top: 1}))
	}

	m.AddRow(12,
		col.New(6),
		text.NewCol(4, "TOTAL A PAGAR:", totalStyle),
		text.NewCol(2, stmt.Total.String(), totalStyle),
	)
	m.AddRow(10, text.NewCol(12, "Gracias por confiar en "+r.company.Name, footerStyle))
	m.AddRow(5, text.NewCol(12, "Este documento es una representación impresa de una factura electrónica.", footerStyle))

	return generate(m)
}

// RenderSalesAnalysis renders a sales report with one row per item and the
// total revenue.
func (r *Renderer) RenderSalesAnalysis(result *analysis.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("report: empty analysis result")
	}
	title := "ANÁLISIS DE VENTAS POR RECURSOS"
	nameHeader, descHeader := "Recurso", "Tipo"
	if result.Mode == analysis.ModeCategories {
		title = "ANÁLISIS DE VENTAS POR CATEGORÍAS/CONFIGURACIONES"
		nameHeader, descHeader = "Categoría/Configuración", "Descripción"
	}
	generated := r.now().Format("02/01/2006 15:04")

	m := r.newDocument()
	r.header(m, title, "Reporte de Análisis de Ventas")
	m.AddRow(6, text.NewCol(12, "Generado: "+generated, companyStyle))
	if !result.ID.IsNil() {
		m.AddRow(6, text.NewCol(12, "Reporte: "+result.ID.String(), companyStyle))
	}

	m.AddRow(8, text.NewCol(12, "Período de Análisis:", props.Text{Size: 11, Style: fontstyle.Bold, Align: align.Center, Top: 2}))
	m.AddRow(6, text.NewCol(12,
		fmt.Sprintf("Desde: %s - Hasta: %s", orNA(result.Start), orNA(result.End)),
		props.Text{Size: 11, Align: align.Center}))

	m.AddRow(10, text.NewCol(12, "RESULTADOS DEL ANÁLISIS", headingStyle))
	if len(result.Items) == 0 {
		m.AddRow(8, text.NewCol(12, "No se encontraron datos para el período seleccionado.", valueStyle))
	} else {
		m.AddRow(7,
			text.NewCol(4, nameHeader, headerStyle),
			text.NewCol(4, descHeader, headerStyle),
			text.NewCol(2, "Ingresos", headerStyle),
			text.NewCol(2, "% del Total", headerStyle),
		)
		for _, item := range result.Items {
			m.AddRow(6,
				text.NewCol(4, item.Name, props.Text{Size: 9}),
				text.NewCol(4, orNA(item.Description), props.Text{Size: 9}),
				text.NewCol(2, item.Revenue.String(), cellStyle),
				text.NewCol(2, percent(item.Percentage), cellStyle),
			)
		}
	}

	m.AddRow(12,
		col.New(4),
		text.NewCol(5, "TOTAL DE INGRESOS:", totalStyle),
		text.NewCol(3, result.Total.String(), totalStyle),
	)
	m.AddRow(10, text.NewCol(12, "Reporte generado el "+generated, footerStyle))
	m.AddRow(5, text.NewCol(12, r.company.Name+" - Todos los derechos reservados", footerStyle))

	return generate(m)
}

func percent(d decimal.Decimal) string {
	return d.StringFixed(1) + "%"
}

// Formatter exposes the renderer as the "pdf" invoice formatter plugin.
type Formatter struct {
	renderer *Renderer
}

var (
	_ plugin.Plugin           = (*Formatter)(nil)
	_ plugin.InvoiceFormatter = (*Formatter)(nil)
)

// NewFormatter creates a PDF invoice formatter.
func NewFormatter(r *Renderer) *Formatter {
	return &Formatter{renderer: r}
}

// Name implements plugin.Plugin.
func (f *Formatter) Name() string { return "pdf-invoice-formatter" }

// Format implements plugin.InvoiceFormatter.
func (f *Formatter) Format() string { return "pdf" }

// Render implements plugin.InvoiceFormatter.
func (f *Formatter) Render(_ context.Context, stmt *invoice.Statement, w io.Writer) error {
	data, err := f.renderer.RenderInvoice(stmt)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
