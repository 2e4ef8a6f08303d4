package billing

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/rentabill/rentabill/internal/platform/httpx"
	"github.com/rentabill/rentabill/internal/shared"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

// amountPrinter renders monetary values the Spanish way (1.234,56).
var amountPrinter = message.NewPrinter(language.Spanish)

func formatAmount(v float64) string {
	return amountPrinter.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	_, err := s.buf.WriteString(line)
	return err
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// exportCSV streams one invoice as CSV: a metadata preamble, the ordered
// item rows, then the totals block.
func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	userID := shared.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoice id must be a UUID")
		return
	}

	inv, err := h.invoices.Get(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "invoice not found")
			return
		}
		h.logger.Error("export invoice", slog.Any("error", err), slog.String("invoice_id", id.String()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	filename := fmt.Sprintf("factura-%04d-%02d.csv", inv.PeriodYear, inv.PeriodMonth)
	if inv.FullNumber != nil {
		filename = fmt.Sprintf("factura-%s.csv", strings.ReplaceAll(*inv.FullNumber, "/", "-"))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))

	if err := writeInvoiceCSV(w, inv); err != nil {
		h.logger.Error("write invoice csv", slog.Any("error", err), slog.String("invoice_id", id.String()))
	}
}

func writeInvoiceCSV(w io.Writer, inv *ClientInvoice) error {
	streamer := newCSVStreamer(w)

	fullNumber := "BORRADOR"
	if inv.FullNumber != nil {
		fullNumber = *inv.FullNumber
	}
	if err := streamer.writeComment(fmt.Sprintf("# Factura: %s", fullNumber)); err != nil {
		return err
	}
	period := Period{Year: inv.PeriodYear, Month: inv.PeriodMonth}
	if err := streamer.writeComment(fmt.Sprintf("# Periodo: %s %d | Estado: %s",
		period.MonthName(), period.Year, inv.Status)); err != nil {
		return err
	}

	if err := streamer.writeRow([]string{"Concepto", "Descripción", "Cantidad", "Precio", "IVA %", "Retención %", "Total"}); err != nil {
		return err
	}
	for _, item := range inv.Items {
		description := ""
		if item.Description != nil {
			description = *item.Description
		}
		if err := streamer.writeRow([]string{
			item.Concept,
			description,
			formatAmount(item.Quantity),
			formatAmount(item.UnitPrice),
			formatAmount(item.VATRate),
			formatAmount(item.RetentionRate),
			formatAmount(item.Total),
		}); err != nil {
			return err
		}
	}

	if err := streamer.writeRow([]string{"", "", "", "", "", "", ""}); err != nil {
		return err
	}
	totalsRows := [][]string{
		{"Totales", "", "", "", "", "Base imponible", formatAmount(inv.Subtotal)},
		{"Totales", "", "", "", "", "IVA", formatAmount(inv.TotalVAT)},
		{"Totales", "", "", "", "", fmt.Sprintf("Retención (%s%%)", formatAmount(inv.RetentionRate)), formatAmount(-inv.RetentionAmount)},
		{"Totales", "", "", "", "", "Total", formatAmount(inv.Total)},
	}
	for _, row := range totalsRows {
		if err := streamer.writeRow(row); err != nil {
			return err
		}
	}
	return streamer.Flush()
}
