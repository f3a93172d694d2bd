package guard

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"oco-guard/internal/alert"
	"oco-guard/internal/exchange/binance"
	"oco-guard/internal/status"
	"oco-guard/internal/store"
)

// Runner owns the user-data stream session: one connection at a time,
// listen-key lifecycle around it, and randomized exponential backoff
// between attempts. It never gives up; the only exit is context
// cancellation.
type Runner struct {
	Exchange     *binance.Client
	Canceler     *Canceler
	InstanceID   string
	Keepalive    time.Duration
	BackoffFloor time.Duration
	BackoffCap   time.Duration
	Tracker      *status.Tracker
	Store        *store.Store
	Alerts       alert.Alerter
	Jitter       func() float64
}

func (r *Runner) Run(ctx context.Context) error {
	floor := r.BackoffFloor
	if floor <= 0 {
		floor = time.Second
	}
	ceiling := r.BackoffCap
	if ceiling < floor {
		ceiling = 30 * time.Second
		if ceiling < floor {
			ceiling = floor
		}
	}
	backoff := floor
	disconnectedAt := time.Time{}

	r.persistRuntimeStatus("starting")
	defer r.persistRuntimeStatus("stopped")

	for {
		err := r.runOnce(ctx, floor, &backoff, &disconnectedAt)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = errors.New("user stream closed")
		}
		r.Tracker.SetDisconnected(err)
		if disconnectedAt.IsZero() {
			disconnectedAt = time.Now().UTC()
			r.alertImportant("user_stream_disconnected", map[string]string{
				"reason": err.Error(),
			})
		}
		r.Tracker.RecordReconnectAttempt()
		r.persistRuntimeStatus("degraded")

		delay := reconnectDelay(backoff, ceiling, r.jitter())
		log.Printf("level=WARN event=stream_reconnect_scheduled delay=%s err=%q", delay, err.Error())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff < ceiling {
			backoff *= 2
			if backoff > ceiling {
				backoff = ceiling
			}
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, floor time.Duration, backoff *time.Duration, disconnectedAt *time.Time) error {
	listenKey, err := r.Exchange.NewListenKey(ctx)
	if err != nil {
		// Acquisition failures feed the same backoff loop as connect failures.
		return err
	}
	stream, err := r.Exchange.NewUserStream(ctx, listenKey, r.Keepalive)
	if err != nil {
		r.releaseListenKey(listenKey)
		return err
	}
	defer stream.Close()
	defer r.releaseListenKey(listenKey)

	*backoff = floor
	r.Tracker.SetConnected(listenKey)
	if !disconnectedAt.IsZero() {
		down := time.Since(*disconnectedAt).Round(time.Second)
		r.alertImportant("user_stream_reconnected", map[string]string{
			"down_duration": down.String(),
		})
		*disconnectedAt = time.Time{}
	}
	r.persistRuntimeStatus("running")
	log.Printf("level=INFO event=stream_connected")

	updates, errs := stream.Updates(ctx)
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return errors.New("user stream closed")
			}
			r.Tracker.RecordEvent(update.Time)
			fill, qualifying := Classify(update)
			if !qualifying {
				continue
			}
			log.Printf("level=INFO event=close_fill_detected symbol=%s type=%s position_side=%s client_order_id=%s",
				fill.Symbol, fill.Type, fill.PositionSide, fill.ClientOrderID)
			count, err := r.Canceler.CancelSiblings(ctx, fill)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// A failed sweep never terminates the connection.
				log.Printf("level=WARN event=cancel_sweep_failed symbol=%s err=%q", fill.Symbol, err.Error())
				continue
			}
			r.Tracker.RecordCancel(count, time.Now().UTC())
			r.persistRuntimeStatus("running")
			log.Printf("level=INFO event=cancel_sweep_done symbol=%s mode=%s targeted=%d",
				fill.Symbol, r.Canceler.Mode, count)
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reconnectDelay spreads attempts as min(backoff*(1+jitter), ceiling) with
// jitter drawn from [0,1), so simultaneous restarts do not reconnect in
// lockstep.
func reconnectDelay(backoff, ceiling time.Duration, jitter float64) time.Duration {
	if backoff <= 0 {
		backoff = time.Second
	}
	if jitter < 0 {
		jitter = 0
	}
	delay := time.Duration(float64(backoff) * (1 + jitter))
	if ceiling > 0 && delay > ceiling {
		delay = ceiling
	}
	return delay
}

func (r *Runner) jitter() float64 {
	if r.Jitter != nil {
		return r.Jitter()
	}
	return rand.Float64()
}

func (r *Runner) releaseListenKey(listenKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Exchange.CloseListenKey(ctx, listenKey); err != nil {
		// Best effort: the old connection is already gone.
		log.Printf("level=INFO event=listen_key_release_failed err=%q", err.Error())
	}
}

func (r *Runner) alertImportant(event string, fields map[string]string) {
	if r.Alerts == nil {
		return
	}
	r.Alerts.Important(event, fields)
}

func (r *Runner) persistRuntimeStatus(state string) {
	if r.Store == nil {
		return
	}
	snap := r.Tracker.Snapshot()
	instanceID := r.InstanceID
	if instanceID == "" {
		instanceID = "default"
	}
	rs := store.RuntimeStatus{
		InstanceID:      instanceID,
		PID:             snap.PID,
		State:           state,
		StartedAt:       snap.StartedAt,
		Reconnects:      snap.Reconnects,
		LastError:       snap.LastError,
		LastEventAt:     snap.LastEventAt,
		LastCancelAt:    snap.LastCancelAt,
		LastCancelCount: snap.LastCancelCount,
	}
	if err := r.Store.SaveRuntimeStatus(rs); err != nil {
		log.Printf("level=WARN event=runtime_status_write_failed err=%q", err.Error())
	}
}
