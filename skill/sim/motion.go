package sim

import (
	"context"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

// handle completes when its motion goroutine closes done.
type handle struct {
	done chan struct{}
	err  error
}

func (h *handle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.err
	}
}

func (r *Robot) Move(ctx context.Context, group string, target contractx.Target, blocking bool) (contractx.MotionHandle, error) {
	return r.start(ctx, "", group, target, blocking)
}

func (r *Robot) MovePlanned(ctx context.Context, group string, target contractx.Target, blocking bool) (contractx.MotionHandle, error) {
	return r.start(ctx, "planned ", group, target, blocking)
}

func (r *Robot) start(ctx context.Context, prefix, group string, target contractx.Target, blocking bool) (contractx.MotionHandle, error) {
	if len(target) == 0 {
		return nil, fmt.Errorf("%w: empty target for %s", contractx.ErrActuation, group)
	}

	r.mu.Lock()
	r.log = append(r.log, prefix+group+" "+describe(target))
	failing := r.failing[group]
	r.mu.Unlock()

	if failing {
		return nil, fmt.Errorf("%w: %s rejected %s", contractx.ErrActuation, group, describe(target))
	}

	h := &handle{done: make(chan struct{})}
	go r.run(ctx, h, group, target)

	if blocking {
		if err := h.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// run walks the waypoints and applies the final one to the robot state.
func (r *Robot) run(ctx context.Context, h *handle, group string, target contractx.Target) {
	defer close(h.done)

	timer := time.NewTimer(r.cfg.MotionDuration * time.Duration(len(target)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		h.err = ctx.Err()
		return
	case <-timer.C:
	}

	last := target[len(target)-1]
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case group == contractx.GroupBase && last.Goal != nil:
		r.base = *last.Goal
	case group == contractx.GroupGripper && last.Name != "":
		r.gripper = last.Name
	}
}

func describe(target contractx.Target) string {
	parts := make([]string, 0, len(target))
	for _, w := range target {
		if w.Goal != nil {
			parts = append(parts, fmt.Sprintf("goal(%.2f,%.2f,%.2f)", w.Goal.X, w.Goal.Y, w.Goal.Theta))
			continue
		}
		parts = append(parts, w.String())
	}
	return strings.Join(parts, ",")
}
