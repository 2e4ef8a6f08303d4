package billing

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod indicates an out-of-range billing period.
var ErrInvalidPeriod = errors.New("billing: invalid period")

// Period identifies the calendar month an invoice covers.
type Period struct {
	Year  int
	Month int
}

// NewPeriod validates and builds a billing period.
func NewPeriod(year, month int) (Period, error) {
	if year < 2000 || year > 2200 || month < 1 || month > 12 {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Year: year, Month: month}, nil
}

// Start is the first instant of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// NextStart is the first instant of the following month. Reservations are
// selected with checkIn in [Start, NextStart).
func (p Period) NextStart() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// End is the last day of the month. Expenses are selected with date in
// [Start, End].
func (p Period) End() time.Time {
	return p.NextStart().AddDate(0, 0, -1)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

var monthNames = [...]string{
	"", "Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

var shortMonths = [...]string{
	"ene", "feb", "mar", "abr", "may", "jun",
	"jul", "ago", "sep", "oct", "nov", "dic",
}

// MonthName returns the Spanish month name used in summary concepts.
func (p Period) MonthName() string {
	if p.Month < 1 || p.Month > 12 {
		return ""
	}
	return monthNames[p.Month]
}

// FormatStayRange compresses a check-in/check-out pair into the concept
// date text: "10-13 mar" when both dates fall in the same month, otherwise
// "28 dic - 2 ene".
func FormatStayRange(checkIn, checkOut time.Time) string {
	if checkIn.Month() == checkOut.Month() {
		return fmt.Sprintf("%d-%d %s", checkIn.Day(), checkOut.Day(), shortMonths[int(checkIn.Month())-1])
	}
	return fmt.Sprintf("%d %s - %d %s",
		checkIn.Day(), shortMonths[int(checkIn.Month())-1],
		checkOut.Day(), shortMonths[int(checkOut.Month())-1])
}
