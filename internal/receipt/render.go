// Package receipt renders borrow receipts as PDF documents and stores them
// under the loan's receipt code. Rendering is deterministic: the same loan
// always produces the same bytes.
package receipt

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/dharsanguruparan/BookWise/internal/model"
)

// Data is every field printed on a receipt.
type Data struct {
	ReceiptID     string
	IssueDate     time.Time
	BorrowerName  string
	BorrowerEmail string
	UniversityID  int64
	Title         string
	Author        string
	Genre         string
	BorrowDate    time.Time
	DueDate       time.Time
	LoanDays      int
}

// DataFor extracts receipt fields from a record with Book and User loaded.
// The issue date is the loan's creation date so regenerating later yields
// the same document.
func DataFor(rec *model.BorrowRecord) Data {
	d := Data{
		ReceiptID:  rec.ReceiptCode,
		IssueDate:  model.DateOf(rec.CreatedAt, time.UTC),
		BorrowDate: rec.BorrowDate,
		DueDate:    rec.DueDate,
		LoanDays:   rec.LoanDays(),
	}
	if rec.User != nil {
		d.BorrowerName = rec.User.FullName
		d.BorrowerEmail = rec.User.Email
		d.UniversityID = rec.User.UniversityID
	}
	if rec.Book != nil {
		d.Title = rec.Book.Title
		d.Author = rec.Book.Author
		d.Genre = rec.Book.Genre
	}
	return d
}

const dateLayout = "January 2, 2006"

type field struct {
	label string
	value string
}

// Render draws the receipt on one A4 page.
func Render(d Data) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	stamp := d.IssueDate.UTC()
	pdf.SetCreationDate(stamp)
	pdf.SetModificationDate(stamp)
	pdf.SetCatalogSort(true)
	pdf.SetTitle("BookWise Receipt "+d.ReceiptID, true)
	pdf.SetCreator("BookWise", true)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFillColor(26, 26, 46)
	pdf.Rect(0, 0, 210, 297, "F")
	pdf.SetFillColor(32, 32, 54)
	pdf.RoundedRect(20, 20, 170, 257, 5, "1234", "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 24)
	pdf.Text(30, 40, "BookWise")
	pdf.SetFont("Helvetica", "B", 20)
	pdf.Text(30, 55, "Borrow Receipt")

	pdf.SetTextColor(224, 224, 224)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(30, 70, "Receipt ID: #"+d.ReceiptID)
	pdf.Text(30, 78, "Date Issued: "+d.IssueDate.Format(dateLayout))

	section := func(y float64, title string, fields []field) float64 {
		pdf.SetTextColor(255, 255, 255)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Text(30, y, title)
		y += 6
		const (
			width  = 72
			height = 14
			gap    = 6
		)
		for i, f := range fields {
			x := 30 + float64(i%2)*(width+gap)
			row := y + float64(i/2)*(height+gap)
			pdf.SetFillColor(40, 40, 60)
			pdf.RoundedRect(x, row, width, height, 2, "1234", "F")
			pdf.SetTextColor(224, 224, 224)
			pdf.SetFont("Helvetica", "", 8)
			pdf.Text(x+3, row+5, tr(f.label))
			pdf.SetTextColor(255, 255, 255)
			pdf.SetFont("Helvetica", "B", 10)
			pdf.Text(x+3, row+10, tr(f.value))
		}
		rows := (len(fields) + 1) / 2
		return y + float64(rows)*(height+gap) + 8
	}

	y := section(95, "Borrower:", []field{
		{"Name", d.BorrowerName},
		{"Email", d.BorrowerEmail},
		{"University ID", strconv.FormatInt(d.UniversityID, 10)},
	})
	y = section(y, "Book Details:", []field{
		{"Title", d.Title},
		{"Author", d.Author},
		{"Genre", d.Genre},
		{"Borrowed On", d.BorrowDate.Format(dateLayout)},
		{"Due Date", d.DueDate.Format(dateLayout)},
		{"Duration", fmt.Sprintf("%d Days", d.LoanDays)},
	})

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Text(30, y, "Terms")
	pdf.SetTextColor(224, 224, 224)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(30, y+8, tr("• Please return the book by the due date."))
	pdf.Text(30, y+16, tr("• Lost or damaged books may incur replacement costs."))

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Text(30, 250, "Thank you for using BookWise!")
	pdf.SetTextColor(224, 224, 224)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Text(30, 258, "Email: support@bookwise.example.com")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt %s: %w", d.ReceiptID, err)
	}
	return buf.Bytes(), nil
}
