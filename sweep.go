package paymcp

import (
	"context"
	"log/slog"
	"time"
)

// sweepLoop runs until Close. Pending-payment and challenge records expire
// through store TTLs on their own; the sweep exists for the state a TTL
// cannot reach, the process-local visibility bindings and the confirmation
// tools registered in the container.
func (o *Orchestrator) sweepLoop() {
	ticker := time.NewTicker(o.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.done:
			return
		case <-ticker.C:
			o.sweepExpired(context.Background())
		}
	}
}

// sweepExpired clears every confirmation binding older than the retention
// window: the payment record is deleted, the gated tool becomes visible to
// its session again, and the stale confirmation tool is deregistered. The
// container emits its own listChanged signal on removal.
func (o *Orchestrator) sweepExpired(ctx context.Context) {
	for confirmName, b := range o.vis.expiredBindings(o.retention) {
		if err := o.deleteRecord(ctx, b.paymentID); err != nil {
			o.log.Error("sweep: delete payment record failed",
				slog.String("payment_id", b.paymentID), slog.String("err", err.Error()))
		}
		o.vis.restore(b.sessionID, b.toolName)
		o.vis.unbind(confirmName)
		if o.container != nil {
			o.container.Remove(ctx, confirmName)
		}
		o.log.Info("swept expired payment",
			slog.String("payment_id", b.paymentID),
			slog.String("tool", b.toolName),
			slog.String("session_id", b.sessionID))
	}
}
