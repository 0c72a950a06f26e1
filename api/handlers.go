package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/xraph/cloudbill"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/ingest"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/types"
)

type generateRequest struct {
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

type listInvoicesQuery struct {
	NIT    string `form:"nit"`
	Start  string `form:"start"`
	End    string `form:"end"`
	Limit  int    `form:"limit" binding:"gte=0"`
	Offset int    `form:"offset" binding:"gte=0"`
}

type analysisQuery struct {
	Type   string `form:"type" binding:"required"`
	Start  string `form:"start"`
	End    string `form:"end"`
	Format string `form:"format"`
}

// Health reports whether the store answers.
func (s *Server) Health(c *gin.Context) {
	if err := s.engine.Store().Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// LoadConfiguration imports a configuration document from the request body.
func (s *Server) LoadConfiguration(c *gin.Context) {
	data, ok := s.readBody(c)
	if !ok {
		return
	}

	res, err := s.engine.ImportConfiguration(c.Request.Context(),
		bytes.NewReader(data), ingest.DetectFormat(c.ContentType(), data))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	n := res.Counts
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"message": fmt.Sprintf("%d recursos, %d categorías, %d configuraciones, %d clientes, %d instancias creadas",
			n.Resources, n.Categories, n.Configurations, n.Clients, n.Instances),
		"counts": n,
	})
}

// LoadConsumptions imports a consumption document from the request body.
func (s *Server) LoadConsumptions(c *gin.Context) {
	data, ok := s.readBody(c)
	if !ok {
		return
	}

	res, err := s.engine.ImportConsumptions(c.Request.Context(),
		bytes.NewReader(data), ingest.DetectFormat(c.ContentType(), data))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": fmt.Sprintf("%d consumos procesados", res.Counts.Consumptions),
		"count":   res.Counts.Consumptions,
		"counts":  res.Counts,
	})
}

// Reset removes all stored data.
func (s *Server) Reset(c *gin.Context) {
	if err := s.engine.Reset(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Sistema inicializado correctamente. Todos los datos han sido eliminados.",
	})
}

// Query returns every stored entity.
func (s *Server) Query(c *gin.Context) {
	snap, err := s.engine.Snapshot(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":    snap,
		"summary": snap.Summary(),
	})
}

// GenerateInvoices bills every unbilled consumption inside the requested
// range.
func (s *Server) GenerateInvoices(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	invoices, err := s.engine.GenerateInvoices(c.Request.Context(), req.StartDate, req.EndDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	total := types.Zero()
	for _, inv := range invoices {
		total = total.Add(inv.Total)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": fmt.Sprintf("%d facturas generadas", len(invoices)),
		"data":    invoices,
		"total":   total,
	})
}

// ListInvoices lists invoices filtered by client and issue date.
func (s *Server) ListInvoices(c *gin.Context) {
	var q listInvoicesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	opts := invoice.ListOpts{Limit: q.Limit, Offset: q.Offset}
	if q.NIT != "" {
		opts.ClientNIT = client.NormalizeNIT(q.NIT)
	}
	var err error
	if opts.Start, err = queryDay("start", q.Start); err != nil {
		AbortWithError(c, err)
		return
	}
	if opts.End, err = queryDay("end", q.End); err != nil {
		AbortWithError(c, err)
		return
	}

	invoices, err := s.engine.ListInvoices(c.Request.Context(), opts)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invoices})
}

// GetInvoice returns an invoice grouped per instance.
func (s *Server) GetInvoice(c *gin.Context) {
	stmt, err := s.engine.InvoiceDetail(c.Request.Context(), c.Param("number"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stmt})
}

// InvoicePDF renders an invoice through the "pdf" formatter.
func (s *Server) InvoicePDF(c *gin.Context) {
	number := c.Param("number")

	var buf bytes.Buffer
	if err := s.engine.RenderInvoice(c.Request.Context(), number, "pdf", &buf); err != nil {
		AbortWithError(c, err)
		return
	}
	attachment(c, fmt.Sprintf("factura_%s.pdf", number), buf.Bytes())
}

// AnalyzeSales aggregates invoiced revenue by category or resource.
func (s *Server) AnalyzeSales(c *gin.Context) {
	var q analysisQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	result, err := s.engine.AnalyzeSales(c.Request.Context(), q.Type, q.Start, q.End)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	switch q.Format {
	case "", "json":
		c.JSON(http.StatusOK, gin.H{"data": result})
	case "pdf":
		data, err := s.reports.RenderSalesAnalysis(result)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		attachment(c, fmt.Sprintf("analisis_%s.pdf", result.Mode), data)
	default:
		AbortWithError(c, cloudbill.ValidationError{Field: "format", Message: "must be json or pdf"})
	}
}

// readBody returns the raw request body, rejecting an empty one.
func (s *Server) readBody(c *gin.Context) ([]byte, bool) {
	data, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, cloudbill.ValidationError{Field: "body", Message: err.Error()})
		return nil, false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		AbortWithError(c, cloudbill.ValidationError{Field: "body", Message: "No se proporcionó XML"})
		return nil, false
	}
	return data, true
}

func attachment(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

func queryDay(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	day, err := types.ParseDay(value)
	if err != nil {
		return time.Time{}, cloudbill.ValidationError{Field: field, Message: "expected dd/mm/yyyy"}
	}
	return day, nil
}

// bindError keeps validator errors for field reporting and turns decode
// failures into a request validation error.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return err
	}
	return cloudbill.ValidationError{Field: "request", Message: err.Error()}
}
