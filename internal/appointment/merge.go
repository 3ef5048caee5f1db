package appointment

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ResolveStatus is the precedence ordered status merge. Highest wins:
//  1. a payment exists: completed
//  2. a ledger row exists: the ledger status
//  3. otherwise the externally derived status
func ResolveStatus(external AppointmentStatus, ledger AppointmentStatus, hasLedger, paid bool) AppointmentStatus {
	if paid {
		return StatusCompleted
	}
	if hasLedger && ledger.Valid() && ledger != external {
		return ledger
	}
	return external
}

// Reconcile applies ResolveStatus to every appointment and returns a new slice.
func Reconcile(appts []Appointment, ledger map[string]AppointmentStatus, paid map[string]struct{}) []Appointment {
	out := make([]Appointment, len(appts))
	for i, a := range appts {
		status, hasLedger := ledger[a.ID]
		_, isPaid := paid[a.ID]
		a.Status = ResolveStatus(a.Status, status, hasLedger, isPaid)
		out[i] = a
	}
	return out
}

// mergeLedger runs the ledger side of a reconciliation cycle. The baseline
// upsert and the payment read run concurrently; payment driven completion
// runs once the baseline rows exist, and the ledger is read back last.
func (s *Service) mergeLedger(ctx context.Context, userID string, appts []Appointment) ([]Appointment, error) {
	ids := make([]string, len(appts))
	known := make(map[string]struct{}, len(appts))
	for i, a := range appts {
		ids[i] = a.ID
		known[a.ID] = struct{}{}
	}

	var paidIDs []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.ledger.UpsertAppointments(gctx, userID, appts); err != nil {
			return fmt.Errorf("sync ledger baseline: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		paidIDs, err = s.payments.PaidAppointmentIDs(gctx, userID)
		if err != nil {
			return fmt.Errorf("load payments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	paid := make(map[string]struct{})
	var toComplete []string
	for _, id := range paidIDs {
		if _, ok := known[id]; !ok {
			continue
		}
		paid[id] = struct{}{}
		toComplete = append(toComplete, id)
	}

	if _, err := s.ledger.ForceCompleted(ctx, userID, toComplete); err != nil {
		return nil, fmt.Errorf("complete paid appointments: %w", err)
	}

	statuses, err := s.ledger.Statuses(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	return Reconcile(appts, statuses, paid), nil
}
