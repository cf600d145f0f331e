package documents

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/angelmondragon/duka-backend/internal/notifications"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
)

const (
	pageMargin  = 15.0
	lineHeight  = 6.0
	qrSizePx    = 256
	qrSizeMM    = 32.0
	qrImageName = "tracking-qr"
	issuerName  = "Duka"
	contentType = "application/pdf"
)

// QREncoder turns content into a PNG QR code of size pixels.
type QREncoder func(content string, size int) ([]byte, error)

func defaultQREncoder(content string, size int) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, size)
}

// Generator renders order documents. Output depends only on the snapshot,
// so rendering the same snapshot twice yields identical bytes.
type Generator struct {
	logg *logger.Logger
	qr   QREncoder
}

type GeneratorOption func(*Generator)

// WithQREncoder replaces the go-qrcode encoder.
func WithQREncoder(enc QREncoder) GeneratorOption {
	return func(g *Generator) {
		if enc != nil {
			g.qr = enc
		}
	}
}

func NewGenerator(logg *logger.Logger, opts ...GeneratorOption) *Generator {
	g := &Generator{logg: logg, qr: defaultQREncoder}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Render produces the PDF bytes for docType.
func (g *Generator) Render(ctx context.Context, docType enums.DocumentType, snap OrderSnapshot) ([]byte, error) {
	if !docType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown document type").
			WithDetails(map[string]any{"type": docType})
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(true)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(snap.PlacedAt)
	pdf.SetModificationDate(snap.PlacedAt)
	pdf.SetTitle(fmt.Sprintf("%s %s", documentTitle(docType), snap.OrderNumber), true)
	pdf.SetCreator(issuerName, true)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	g.header(ctx, pdf, tr, docType, snap)
	addresses(pdf, tr, snap)

	switch docType {
	case enums.DocumentTypeInvoice:
		invoiceLines(pdf, tr, snap)
		invoiceTotals(pdf, snap)
	case enums.DocumentTypeDeliveryNote:
		deliveryLines(pdf, tr, snap)
		courierBlock(pdf, tr, snap)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render %s for %s: %w", docType, snap.OrderNumber, err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write %s for %s: %w", docType, snap.OrderNumber, err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) header(ctx context.Context, pdf *fpdf.Fpdf, tr func(string) string, docType enums.DocumentType, snap OrderSnapshot) {
	pageW, _ := pdf.GetPageSize()
	top := pdf.GetY()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 10, issuerName, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, documentTitle(docType), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, lineHeight, tr("Order: "+snap.OrderNumber), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, lineHeight, "Date: "+snap.PlacedAt.Format("02 Jan 2006 15:04 UTC"), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, lineHeight, fmt.Sprintf("Payment: %s (%s)", snap.PaymentMethod, snap.PaymentStatus), "", 1, "L", false, 0, "")
	if snap.TrackingNumber != "" {
		pdf.CellFormat(0, lineHeight, tr("Tracking: "+snap.TrackingNumber), "", 1, "L", false, 0, "")
	}

	content := snap.TrackingURL
	if content == "" {
		content = snap.TrackingNumber
	}
	if content != "" {
		png, err := g.qr(content, qrSizePx)
		if err != nil {
			// the document is still useful without the code
			if g.logg != nil {
				logCtx := g.logg.WithFields(ctx, map[string]any{
					"order_number": snap.OrderNumber,
					"error":        err.Error(),
				})
				g.logg.Warn(logCtx, "tracking qr encoding failed, skipping")
			}
		} else {
			opts := fpdf.ImageOptions{ImageType: "PNG"}
			pdf.RegisterImageOptionsReader(qrImageName, opts, bytes.NewReader(png))
			pdf.ImageOptions(qrImageName, pageW-pageMargin-qrSizeMM, top, qrSizeMM, qrSizeMM, false, opts, 0, "")
		}
	}
	pdf.Ln(4)
}

func addresses(pdf *fpdf.Fpdf, tr func(string) string, snap OrderSnapshot) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, lineHeight, "Deliver to", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)

	lines := []string{snap.CustomerName, snap.CustomerPhone}
	if snap.CustomerEmail != "" {
		lines = append(lines, snap.CustomerEmail)
	}
	lines = append(lines, snap.DeliveryAddress)
	city := snap.DeliveryCity
	if snap.DeliveryRegion != "" {
		city += ", " + snap.DeliveryRegion
	}
	lines = append(lines, city)
	for _, line := range lines {
		pdf.CellFormat(0, lineHeight-1, tr(line), "", 1, "L", false, 0, "")
	}
	if snap.DeliveryNotes != "" {
		pdf.MultiCell(0, lineHeight-1, tr("Notes: "+snap.DeliveryNotes), "", "L", false)
	}
	pdf.Ln(4)
}

func invoiceLines(pdf *fpdf.Fpdf, tr func(string) string, snap OrderSnapshot) {
	widths := []float64{90, 20, 35, 35}
	tableHeader(pdf, widths, []string{"Item", "Qty", "Unit price", "Total"})
	pdf.SetFont("Helvetica", "", 10)
	for _, item := range snap.Items {
		pdf.CellFormat(widths[0], 7, tr(item.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, strconv.Itoa(item.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[2], 7, notifications.FormatMoney(item.UnitPrice, snap.Currency), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, notifications.FormatMoney(item.Total, snap.Currency), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(2)
}

func invoiceTotals(pdf *fpdf.Fpdf, snap OrderSnapshot) {
	row := func(label string, amount decimal.Decimal, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(145, 7, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, notifications.FormatMoney(amount, snap.Currency), "", 1, "R", false, 0, "")
	}
	row("Subtotal", snap.Subtotal, false)
	row("Delivery", snap.DeliveryFee, false)
	if !snap.Discount.IsZero() {
		row("Discount", snap.Discount.Neg(), false)
	}
	row("Total", snap.Total, true)
}

func deliveryLines(pdf *fpdf.Fpdf, tr func(string) string, snap OrderSnapshot) {
	widths := []float64{130, 25, 25}
	tableHeader(pdf, widths, []string{"Item", "Qty", "Checked"})
	pdf.SetFont("Helvetica", "", 10)
	for _, item := range snap.Items {
		pdf.CellFormat(widths[0], 7, tr(item.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, strconv.Itoa(item.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[2], 7, "", "1", 1, "C", false, 0, "")
	}
	pdf.Ln(4)
}

func courierBlock(pdf *fpdf.Fpdf, tr func(string) string, snap OrderSnapshot) {
	pdf.SetFont("Helvetica", "", 10)
	if snap.CourierName != "" || snap.CourierPhone != "" {
		pdf.CellFormat(0, lineHeight, tr(fmt.Sprintf("Courier: %s %s", snap.CourierName, snap.CourierPhone)), "", 1, "L", false, 0, "")
	}
	if snap.PaymentMethod == enums.PaymentMethodCOD && snap.PaymentStatus != enums.PaymentStatusPaid {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, lineHeight, "Collect on delivery: "+notifications.FormatMoney(snap.Total, snap.Currency), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
	}
	pdf.Ln(12)
	pdf.CellFormat(80, lineHeight, "Received by (name and signature)", "T", 0, "L", false, 0, "")
	pdf.CellFormat(20, lineHeight, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(60, lineHeight, "Date", "T", 1, "L", false, 0, "")
}

func tableHeader(pdf *fpdf.Fpdf, widths []float64, titles []string) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	for i, title := range titles {
		pdf.CellFormat(widths[i], 7, title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
}

func documentTitle(docType enums.DocumentType) string {
	if docType == enums.DocumentTypeDeliveryNote {
		return "DELIVERY NOTE"
	}
	return "INVOICE"
}
