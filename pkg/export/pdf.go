package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/arnavshah/coordination-api/pkg/models"
	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

// QRPayload is the string encoded in the summary's QR code
func QRPayload(n *models.Negotiation) string {
	return "negotiation:" + n.ID
}

// NegotiationPDF writes a one page summary of n to w
func NegotiationPDF(w io.Writer, n *models.Negotiation) error {
	qrPNG, err := qrcode.Encode(QRPayload(n), qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("encode qr code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	// core fonts are cp1252, anything else is replaced
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Schedule Negotiation")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 12)
	lines := []string{
		fmt.Sprintf("Negotiation: %s", n.ID),
		fmt.Sprintf("Room: %s", n.RoomID),
		fmt.Sprintf("Type: %s", n.Type),
		fmt.Sprintf("Status: %s", n.Status),
		fmt.Sprintf("Week of: %s", n.WeekStartDate),
		fmt.Sprintf("Block: %s %s-%s", tr(n.SlotInfo.Day), n.SlotInfo.StartTime, n.SlotInfo.EndTime),
	}
	for _, line := range lines {
		pdf.Cell(0, 10, line)
		pdf.Ln(8)
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 20, 40, 40, false, opts, 0, "")

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 10, "Members")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 11)
	for _, cm := range n.ConflictingMembers {
		pdf.CellFormat(60, 8, tr(cm.User), "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 8, fmt.Sprintf("priority %d", cm.Priority), "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 8, fmt.Sprintf("%d slots", cm.RequiredSlots), "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 8, string(cm.Response), "1", 1, "", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 10, "Options")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 11)
	if len(n.AvailableTimeSlots) == 0 {
		pdf.Cell(0, 8, "No full-length window fits this block")
		pdf.Ln(8)
	}
	for _, opt := range n.AvailableTimeSlots {
		pdf.Cell(0, 8, opt.StartTime+" - "+opt.EndTime)
		pdf.Ln(6)
	}

	if len(n.Messages) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 10, "Messages")
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 10)
		for _, m := range n.Messages {
			text := fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("2006-01-02 15:04"), m.Sender, strings.TrimSpace(m.Text))
			pdf.MultiCell(0, 6, tr(text), "", "", false)
		}
	}

	return pdf.Output(w)
}
