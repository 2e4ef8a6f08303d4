package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPeriod(t *testing.T) {
	p, err := NewPeriod(2026, 3)
	require.NoError(t, err)
	require.Equal(t, 2026, p.Year)
	require.Equal(t, 3, p.Month)

	for _, bad := range [][2]int{{1999, 1}, {2201, 1}, {2026, 0}, {2026, 13}, {0, 0}} {
		_, err := NewPeriod(bad[0], bad[1])
		require.ErrorIs(t, err, ErrInvalidPeriod, "year=%d month=%d", bad[0], bad[1])
	}
}

func TestPeriodWindow(t *testing.T) {
	p := Period{Year: 2026, Month: 3}
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), p.Start())
	require.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), p.NextStart())
	require.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), p.End())

	// February across a leap year boundary.
	feb := Period{Year: 2028, Month: 2}
	require.Equal(t, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), feb.End())

	dec := Period{Year: 2026, Month: 12}
	require.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), dec.NextStart())

	require.Equal(t, "2026-03", p.String())
}

func TestPeriodMonthName(t *testing.T) {
	require.Equal(t, "Enero", Period{Year: 2026, Month: 1}.MonthName())
	require.Equal(t, "Marzo", Period{Year: 2026, Month: 3}.MonthName())
	require.Equal(t, "Diciembre", Period{Year: 2026, Month: 12}.MonthName())
	require.Equal(t, "", Period{}.MonthName())
}

func TestFormatStayRange(t *testing.T) {
	sameMonth := FormatStayRange(
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC))
	require.Equal(t, "10-13 mar", sameMonth)

	crossMonth := FormatStayRange(
		time.Date(2026, 12, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC))
	require.Equal(t, "28 dic - 2 ene", crossMonth)
}
