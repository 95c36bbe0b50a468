package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/moderation"
	"github.com/tphakala/vidguard/internal/policy"
)

func (c *Controller) initReportRoutes() {
	c.Group.GET("/stats", c.GetStats)
	c.Group.GET("/policy", c.GetPolicy)
}

// GetStats returns aggregate decision statistics.
func (c *Controller) GetStats(ctx echo.Context) error {
	stats, err := c.Service.Stats(ctx.Request().Context())
	if err != nil {
		return c.handleServiceError(ctx, err, "Statistics unavailable")
	}
	return ctx.JSON(http.StatusOK, stats)
}

// PolicyResponse describes the active policy table.
type PolicyResponse struct {
	Version string                                        `json:"version"`
	Levels  []moderation.Level                            `json:"levels"`
	Checks  map[moderation.CheckType]policy.LevelPolicies `json:"checks"`
}

// GetPolicy returns the thresholds every level resolves to, per check.
func (c *Controller) GetPolicy(ctx echo.Context) error {
	table := c.Service.PolicyTable()
	if table == nil {
		return c.HandleError(ctx, errors.InternalFault("no policy table loaded"), "Policy unavailable", http.StatusInternalServerError)
	}

	resp, err := NewPolicyResponse(table)
	if err != nil {
		return c.handleServiceError(ctx, err, "Policy table incomplete")
	}
	return ctx.JSON(http.StatusOK, resp)
}

// NewPolicyResponse resolves every check and level of table.
func NewPolicyResponse(table *policy.Table) (*PolicyResponse, error) {
	resp := &PolicyResponse{
		Version: table.Version,
		Levels:  moderation.Levels,
		Checks:  make(map[moderation.CheckType]policy.LevelPolicies, len(moderation.AllChecks)),
	}
	for _, check := range moderation.AllChecks {
		levels := make(policy.LevelPolicies, len(moderation.Levels))
		for _, level := range moderation.Levels {
			p, err := table.Resolve(check, level)
			if err != nil {
				return nil, err
			}
			levels[level] = p
		}
		resp.Checks[check] = levels
	}
	return resp, nil
}
