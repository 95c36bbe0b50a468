package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/tphakala/vidguard/internal/datastore"
	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/moderation"
	"github.com/tphakala/vidguard/internal/policy"
)

// rateLimiterExpiry is how long an idle client's limiter is kept.
const rateLimiterExpiry = 3 * time.Minute

// initAnalysisRoutes registers the analysis job endpoints.
func (c *Controller) initAnalysisRoutes() {
	c.Group.POST("/analyses", c.SubmitAnalysis, c.submitRateLimiter())
	c.Group.GET("/analyses", c.ListAnalyses)
	c.Group.GET("/analyses/:id", c.GetAnalysis)
	c.Group.POST("/analyses/:id/cancel", c.CancelAnalysis)
	c.Group.DELETE("/analyses/:id", c.DeleteAnalysis)
}

// SubmitRequest is the body of POST /analyses. Levels maps check names to
// sensitivity levels; omitted checks use the server defaults.
type SubmitRequest struct {
	VideoRef string            `json:"video_ref"`
	Levels   map[string]string `json:"levels,omitempty"`
	Checks   []string          `json:"checks,omitempty"`
	Required []string          `json:"required,omitempty"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	ID            string              `json:"id"`
	State         moderation.JobState `json:"state"`
	PolicyVersion string              `json:"policy_version"`
	Checks        []string            `json:"checks"`
	StatusURL     string              `json:"status_url"`
}

// ListResponse is a page of analysis jobs, newest first.
type ListResponse struct {
	Items  []*moderation.Job `json:"items"`
	Count  int               `json:"count"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// SubmitAnalysis accepts a video for analysis. It answers 202 as soon as the
// job is persisted; detectors run in the background.
func (c *Controller) SubmitAnalysis(ctx echo.Context) error {
	var req SubmitRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	req.VideoRef = strings.TrimSpace(req.VideoRef)
	if req.VideoRef == "" {
		return c.HandleError(ctx, errors.ValidationError("video_ref is required"), "Missing video reference", http.StatusBadRequest)
	}

	job, err := c.Service.Submit(ctx.Request().Context(), req.VideoRef, policy.Request{
		Levels:   req.Levels,
		Checks:   req.Checks,
		Required: req.Required,
	})
	if err != nil {
		return c.handleServiceError(ctx, err, "Submission rejected")
	}

	checks := make([]string, 0, len(job.Checks))
	for _, ct := range job.Config.CheckOrder() {
		checks = append(checks, string(ct))
	}
	statusURL := "/api/v2/analyses/" + job.ID
	ctx.Response().Header().Set(echo.HeaderLocation, statusURL)
	return ctx.JSON(http.StatusAccepted, SubmitResponse{
		ID:            job.ID,
		State:         job.State,
		PolicyVersion: job.Config.PolicyVersion,
		Checks:        checks,
		StatusURL:     statusURL,
	})
}

// GetAnalysis returns the stored job record.
func (c *Controller) GetAnalysis(ctx echo.Context) error {
	job, err := c.Service.Status(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.handleServiceError(ctx, err, "Analysis not available")
	}
	return ctx.JSON(http.StatusOK, job)
}

// CancelAnalysis cancels a job. Cancelling a finished job returns it unchanged.
func (c *Controller) CancelAnalysis(ctx echo.Context) error {
	job, err := c.Service.Cancel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.handleServiceError(ctx, err, "Cancel failed")
	}
	return ctx.JSON(http.StatusOK, job)
}

// DeleteAnalysis removes a finished job.
func (c *Controller) DeleteAnalysis(ctx echo.Context) error {
	if err := c.Service.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return c.handleServiceError(ctx, err, "Delete failed")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ListAnalyses lists jobs filtered by state and verdict.
func (c *Controller) ListAnalyses(ctx echo.Context) error {
	filter, err := parseFilter(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid query parameters", http.StatusBadRequest)
	}

	jobs, err := c.Service.List(ctx.Request().Context(), filter)
	if err != nil {
		return c.handleServiceError(ctx, err, "Listing failed")
	}
	if jobs == nil {
		jobs = []*moderation.Job{}
	}

	filter = filter.Normalize()
	return ctx.JSON(http.StatusOK, ListResponse{
		Items:  jobs,
		Count:  len(jobs),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func parseFilter(ctx echo.Context) (datastore.Filter, error) {
	var f datastore.Filter

	if s := ctx.QueryParam("state"); s != "" {
		f.State = moderation.JobState(strings.ToLower(s))
		if !f.State.Valid() {
			return f, errors.ValidationError("unknown state " + strconv.Quote(s))
		}
	}
	if v := ctx.QueryParam("verdict"); v != "" {
		f.Verdict = moderation.Verdict(strings.ToLower(v))
		if !f.Verdict.Valid() {
			return f, errors.ValidationError("unknown verdict " + strconv.Quote(v))
		}
	}

	var err error
	if f.Limit, err = intParam(ctx, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(ctx, "offset"); err != nil {
		return f, err
	}
	if f.Limit < 0 || f.Offset < 0 {
		return f, errors.ValidationError("limit and offset must not be negative")
	}
	return f, nil
}

func intParam(ctx echo.Context, name string) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.ValidationError(name + " must be an integer")
	}
	return n, nil
}

// submitRateLimiter limits submissions per client IP using a token bucket.
func (c *Controller) submitRateLimiter() echo.MiddlewareFunc {
	if c.rateLimit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	burst := max(c.rateBurst, 1)

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(c.rateLimit),
		Burst:     burst,
		ExpiresIn: rateLimiterExpiry,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return c.HandleError(ctx, err, "Unable to identify client", http.StatusForbidden)
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			if c.metrics != nil {
				c.metrics.CountRateLimited(ctx.Path())
			}
			if err == nil {
				err = middleware.ErrRateLimitExceeded
			}
			ctx.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(c.rateLimit)))
			return c.HandleError(ctx, errors.New(err).Category(errors.CategoryLimit).Build(),
				"Too many submissions, slow down", http.StatusTooManyRequests)
		},
	})
}

func retryAfterSeconds(perSecond float64) int {
	if perSecond >= 1 {
		return 1
	}
	return int(1/perSecond + 0.5)
}
