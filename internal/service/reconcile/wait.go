package reconcile

import (
	"context"
	"fmt"
	"time"

	"geocdn/internal/service/common"
)

// WaitOptions は WaitUntilTerminal の設定
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
	// OnPoll は照合のたびに呼ばれます
	OnPoll func(*Outcome)
}

// WaitUntilTerminal は Deployed か Failed になるまで一定間隔で照合を繰り返します
func (r *Reconciler) WaitUntilTerminal(ctx context.Context, distributionID string, opts WaitOptions) (*Outcome, error) {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	deadline := r.clock.Now().Add(opts.Timeout)
	for {
		outcome, err := r.Reconcile(ctx, distributionID)
		if err != nil {
			return nil, err
		}
		if opts.OnPoll != nil {
			opts.OnPoll(outcome)
		}
		if outcome.Status.IsTerminal() {
			return outcome, nil
		}
		if !r.clock.Now().Add(opts.Interval).Before(deadline) {
			return outcome, &common.Error{
				Kind:    common.KindDeploymentTimeout,
				Message: fmt.Sprintf("ディストリビューション %s が %s 以内に完了しませんでした (現在: %s)", distributionID, opts.Timeout, outcome.Status),
			}
		}
		r.clock.Sleep(opts.Interval)
	}
}
