package broker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/varun432/algotrader/internal/market"
)

// Mock is a scriptable in-memory Brokerage. With no script it accepts every
// order and reports it EXECUTED on the first status poll. Queued errors,
// statuses and fill prices are consumed in FIFO order, which lets tests
// drive the execution protocol through relogin, rejection and fatal paths.
type Mock struct {
	Submissions []OrderRequest
	PlaceErrs   []error
	Statuses    []Status
	StatusErrs  []error
	Fills       []float64
	LoginErr    error
	QuoteFn     func() (market.Tick, error)

	LoginCalls      int
	ForceLoginCalls int
	LogoutCalls     int
	StatusCalls     int
	FillCalls       int
}

var _ Brokerage = (*Mock)(nil)

func NewMock() *Mock { return &Mock{} }

func (m *Mock) PlaceOrder(_ context.Context, req OrderRequest) (string, error) {
	if len(m.PlaceErrs) > 0 {
		err := m.PlaceErrs[0]
		m.PlaceErrs = m.PlaceErrs[1:]
		if err != nil {
			return "", err
		}
	}
	m.Submissions = append(m.Submissions, req)
	return "mock-" + uuid.NewString(), nil
}

func (m *Mock) OrderStatus(_ context.Context, _, _ string, _ Window) (Status, error) {
	m.StatusCalls++
	if len(m.StatusErrs) > 0 {
		err := m.StatusErrs[0]
		m.StatusErrs = m.StatusErrs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(m.Statuses) > 0 {
		st := m.Statuses[0]
		m.Statuses = m.Statuses[1:]
		return st, nil
	}
	return StatusExecuted, nil
}

func (m *Mock) FillPrice(_ context.Context, _ Window, _, _ string) (float64, error) {
	m.FillCalls++
	if len(m.Fills) > 0 {
		px := m.Fills[0]
		m.Fills = m.Fills[1:]
		return px, nil
	}
	return FillPriceUnavailable, nil
}

func (m *Mock) Quote(_ context.Context, _, _ string, _ time.Time) (market.Tick, error) {
	if m.QuoteFn != nil {
		return m.QuoteFn()
	}
	return market.Tick{}, &TransientError{Kind: "no quote source"}
}

func (m *Mock) LoginIfNeeded(_ context.Context, force bool) error {
	m.LoginCalls++
	if force {
		m.ForceLoginCalls++
	}
	return m.LoginErr
}

func (m *Mock) Logout(_ context.Context) { m.LogoutCalls++ }
