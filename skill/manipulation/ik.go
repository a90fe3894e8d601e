package manipulation

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	logx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/logger"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	geometryx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/geometry"
)

// IKClient solves single poses for a fixed kinematic tip link.
type IKClient struct {
	svc     contractx.IKService
	tipLink string
	logger  zerolog.Logger
}

func NewIKClient(svc contractx.IKService, tipLink string) (*IKClient, error) {
	if svc == nil {
		return nil, errors.New("ik service is required")
	}
	tipLink = strings.TrimSpace(tipLink)
	if tipLink == "" {
		return nil, errors.New("ik tip link is required")
	}
	return &IKClient{svc: svc, tipLink: tipLink, logger: logx.For("ik_client")}, nil
}

func (c *IKClient) TipLink() string { return c.tipLink }

// Solve returns the joint state reaching target. A transport error from the
// service is reported as IKOtherFailure.
func (c *IKClient) Solve(ctx context.Context, seed contractx.JointState, target geometryx.Pose) (contractx.JointState, contractx.IKErrorCode) {
	resp, err := c.svc.Solve(ctx, contractx.IKRequest{
		TipLink: c.tipLink,
		Seed:    seed,
		Target:  target,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("tip_link", c.tipLink).Msg("ik service call failed")
		return contractx.JointState{}, contractx.IKOtherFailure
	}
	if resp.Code != contractx.IKSuccess {
		return contractx.JointState{}, resp.Code
	}
	sol := resp.Solution
	sol.Positions = sol.Positions.Clone()
	if len(sol.Names) == 0 {
		sol.Names = seed.Names
	}
	return sol, contractx.IKSuccess
}
