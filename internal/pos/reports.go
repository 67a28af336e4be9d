package pos

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Period is the window the manager dashboard reports on
type Period string

const (
	PeriodDaily  Period = "daily"
	PeriodWeekly Period = "weekly"
)

func (p Period) days() int {
	if p == PeriodWeekly {
		return 7
	}
	return 1
}

// Metric is a figure for the current period next to the one before it
type Metric struct {
	Value    decimal.Decimal `json:"value"`
	Previous decimal.Decimal `json:"previous"`
	// ChangePercent is nil when the previous period is zero
	ChangePercent *float64 `json:"change_percent"`
}

func newMetric(value, previous decimal.Decimal) Metric {
	m := Metric{Value: value, Previous: previous}
	if !previous.IsZero() {
		pct := value.Sub(previous).Div(previous.Abs()).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
		m.ChangePercent = &pct
	}
	return m
}

// Dashboard holds the manager KPIs of one outlet
type Dashboard struct {
	OutletID      string `json:"outlet_id"`
	Currency      string `json:"currency"`
	Period        Period `json:"period"`
	From          string `json:"from"`
	To            string `json:"to"`
	TotalSales    Metric `json:"total_sales"`
	TotalExpenses Metric `json:"total_expenses"`
	NetProfit     Metric `json:"net_profit"`
}

// CalendarDay is one cell of the monthly calendar
type CalendarDay struct {
	Date      string          `json:"date"`
	Day       int             `json:"day"`
	InMonth   bool            `json:"in_month"`
	Sales     decimal.Decimal `json:"sales"`
	Expenses  decimal.Decimal `json:"expenses"`
	Profit    decimal.Decimal `json:"profit"`
	BillCount int             `json:"bill_count"`
}

// DayDetails is everything recorded for an outlet on one day
type DayDetails struct {
	Date     string          `json:"date"`
	Currency string          `json:"currency"`
	Sales    decimal.Decimal `json:"sales"`
	Expenses decimal.Decimal `json:"expenses"`
	Profit   decimal.Decimal `json:"profit"`
	Cash     decimal.Decimal `json:"cash"`
	UPI      decimal.Decimal `json:"upi"`
	Card     decimal.Decimal `json:"card"`
	Entries  []*SalesEntry   `json:"entries"`
	Bills    []*Bill         `json:"bills"`
}

type dayTotals struct {
	sales, expenses, cash, upi, card decimal.Decimal
	entries                          []*SalesEntry
	bills                            []*Bill
}

// ledger indexes an outlet's entries and bills by day. Only approved bills are expenses.
type ledger map[string]*dayTotals

func (l ledger) day(date string) *dayTotals {
	t, ok := l[date]
	if !ok {
		t = &dayTotals{}
		l[date] = t
	}
	return t
}

func (l ledger) sum(from, to time.Time) (salesTotal, expenses decimal.Decimal) {
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if t, ok := l[d.Format(dateLayout)]; ok {
			salesTotal = salesTotal.Add(t.sales)
			expenses = expenses.Add(t.expenses)
		}
	}
	return salesTotal, expenses
}

func (s *Service) ledger(outletID string) (*Outlet, ledger, error) {
	outlet, err := s.db.GetOutlet(outletID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting outlet: %w", err)
	}
	entries, err := s.db.ListSalesEntries(outletID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing sales entries: %w", err)
	}
	bills, err := s.db.ListBills(outletID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing bills: %w", err)
	}

	l := ledger{}
	for _, e := range entries {
		t := l.day(e.Date)
		t.sales = t.sales.Add(e.TotalSales)
		t.cash = t.cash.Add(e.Cash)
		t.upi = t.upi.Add(e.UPI)
		t.card = t.card.Add(e.Card)
		t.entries = append(t.entries, e)
	}
	for _, b := range bills {
		t := l.day(b.ExpenseDate())
		t.bills = append(t.bills, b)
		if b.Status == BillApproved {
			t.expenses = t.expenses.Add(b.TotalAmount)
		}
	}
	return outlet, l, nil
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Dashboard reports sales, approved expenses and net profit for the period ending on asOf,
// each compared with the period of the same length just before it
func (s *Service) Dashboard(outletID string, period Period, asOf time.Time) (*Dashboard, error) {
	if period == "" {
		period = PeriodDaily
	}
	if period != PeriodDaily && period != PeriodWeekly {
		return nil, fieldError("period", "Period must be daily or weekly")
	}
	if asOf.IsZero() {
		asOf = s.timeSource.Now()
	}

	outlet, l, err := s.ledger(outletID)
	if err != nil {
		return nil, err
	}

	n := period.days()
	to := dayOf(asOf)
	from := to.AddDate(0, 0, -(n - 1))
	prevTo := from.AddDate(0, 0, -1)
	prevFrom := prevTo.AddDate(0, 0, -(n - 1))

	salesNow, expensesNow := l.sum(from, to)
	salesPrev, expensesPrev := l.sum(prevFrom, prevTo)

	return &Dashboard{
		OutletID:      outlet.ID,
		Currency:      outlet.Currency,
		Period:        period,
		From:          from.Format(dateLayout),
		To:            to.Format(dateLayout),
		TotalSales:    newMetric(salesNow, salesPrev),
		TotalExpenses: newMetric(expensesNow, expensesPrev),
		NetProfit:     newMetric(salesNow.Sub(expensesNow), salesPrev.Sub(expensesPrev)),
	}, nil
}

// Calendar returns the cells of a month view. Weeks start on Sunday, so the
// leading cells are the last days of the previous month, marked out of month and zeroed.
func (s *Service) Calendar(outletID string, year int, month time.Month) ([]CalendarDay, error) {
	if month < time.January || month > time.December {
		return nil, fieldError("month", "Month must be between 1 and 12")
	}

	_, l, err := s.ledger(outletID)
	if err != nil {
		return nil, err
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	days := make([]CalendarDay, 0, 42)
	for i := int(first.Weekday()); i > 0; i-- {
		d := first.AddDate(0, 0, -i)
		days = append(days, CalendarDay{Date: d.Format(dateLayout), Day: d.Day()})
	}

	for d := first; d.Month() == month; d = d.AddDate(0, 0, 1) {
		cell := CalendarDay{Date: d.Format(dateLayout), Day: d.Day(), InMonth: true}
		if t, ok := l[cell.Date]; ok {
			cell.Sales = t.sales
			cell.Expenses = t.expenses
			cell.Profit = t.sales.Sub(t.expenses)
			cell.BillCount = len(t.bills)
		}
		days = append(days, cell)
	}
	return days, nil
}

// DayDetails returns the sales, payment breakdown and bills of one day
func (s *Service) DayDetails(outletID, date string) (*DayDetails, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fieldError("date", "Date must be in YYYY-MM-DD format")
	}

	outlet, l, err := s.ledger(outletID)
	if err != nil {
		return nil, err
	}

	details := &DayDetails{
		Date:     date,
		Currency: outlet.Currency,
		Entries:  []*SalesEntry{},
		Bills:    []*Bill{},
	}
	if t, ok := l[date]; ok {
		details.Sales = t.sales
		details.Expenses = t.expenses
		details.Profit = t.sales.Sub(t.expenses)
		details.Cash = t.cash
		details.UPI = t.upi
		details.Card = t.card
		details.Entries = append(details.Entries, t.entries...)
		details.Bills = append(details.Bills, t.bills...)
	}
	return details, nil
}
