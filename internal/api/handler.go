package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"dispatch_service/internal/chart"
	"dispatch_service/internal/core"
	"dispatch_service/internal/domain/model"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *core.DispatchService
	logger  *slog.Logger
}

func NewHandler(service *core.DispatchService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

const kmPerMile = 1.609344

// NearbyRequest is accepted as a form or a JSON body. Radius is in miles.
// A blank number falls back to its default.
type NearbyRequest struct {
	Address    string      `form:"address" json:"address"`
	Radius     numberField `form:"radius" json:"radius"`
	Time       string      `form:"time" json:"time"`
	DeltaHours numberField `form:"delta_hours" json:"delta_hours"`
}

// numberField takes a JSON number or string as its raw text.
type numberField string

func (n *numberField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = numberField(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*n = numberField(num.String())
	return nil
}

// Nearby handles POST /api/calls/nearby.
func (h *Handler) Nearby(c *gin.Context) {
	var req NearbyRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, model.UnresolvableInput("body", "Invalid request body.", err))
		return
	}

	radius, err := optionalFloat("radius", string(req.Radius))
	if err != nil {
		h.fail(c, err)
		return
	}
	if radius != nil {
		km := *radius * kmPerMile
		radius = &km
	}
	delta, err := optionalFloat("delta_hours", string(req.DeltaHours))
	if err != nil {
		h.fail(c, err)
		return
	}

	match, err := h.service.NearestUnitType(c.Request.Context(), core.MatchQuery{
		Address:         req.Address,
		RadiusKm:        radius,
		Time:            req.Time,
		HalfWindowHours: delta,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, match)
}

// LongestDispatch handles GET /api/calls/longest-dispatch.
func (h *Handler) LongestDispatch(c *gin.Context) {
	rows, err := h.service.LongestDispatch(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, rows)
}

// AddressFrequency handles GET /api/calls/address-frequency.
func (h *Handler) AddressFrequency(c *gin.Context) {
	cutoff := core.DefaultAddressCutoff
	if v := strings.TrimSpace(c.Query("cutoff_value")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.fail(c, model.UnresolvableInput("cutoff_value", "Invalid cutoff value.", err))
			return
		}
		cutoff = n
	}

	rows, err := h.service.AddressFrequency(c.Request.Context(), cutoff)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, rows)
}

// SafestNeighborhoods handles GET /api/calls/safest-neighborhoods.
func (h *Handler) SafestNeighborhoods(c *gin.Context) {
	rows, err := h.service.SafestNeighborhoods(c.Request.Context(), nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, rows)
}

func (h *Handler) Neighborhoods(c *gin.Context) {
	names, err := h.service.Neighborhoods(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, names)
}

func (h *Handler) Battalions(c *gin.Context) {
	names, err := h.service.Battalions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, names)
}

// CallsPerHour handles GET /api/metrics/calls-per-hour.
func (h *Handler) CallsPerHour(c *gin.Context) {
	v, err := h.service.CallsPerHour(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, chart.Line("Average Calls", v))
}

// GroupResponseTime handles GET /api/metrics/group-response-time.
func (h *Handler) GroupResponseTime(c *gin.Context) {
	v, err := h.service.AverageResponseTime(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, chart.Bar("Average Response Time", v))
}

// UnitTypeDistribution handles GET /api/metrics/unit-type-dist.
func (h *Handler) UnitTypeDistribution(c *gin.Context) {
	v, err := h.service.UnitTypeDistribution(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, chart.Bar("Unit Type Distribution", v))
}

// BattalionDistribution handles GET /api/metrics/battalion-dist.
func (h *Handler) BattalionDistribution(c *gin.Context) {
	v, err := h.service.BattalionDistribution(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, chart.Bar("Number of Calls by Battalion", v))
}

type battalionDrilldown struct {
	Labels    []string      `json:"labels"`
	Dataset   chart.Dataset `json:"dataset"`
	Battalion string        `json:"battalion"`
	Total     int           `json:"total"`
}

// BattalionCallTypes handles POST /api/metrics/battalion-dist.
func (h *Handler) BattalionCallTypes(c *gin.Context) {
	res, err := h.service.BattalionCallTypes(c.Request.Context(), formValue(c, "battalion"))
	if err != nil {
		h.fail(c, err)
		return
	}

	h.ok(c, battalionDrilldown{
		Labels:    res.CallTypes.Labels,
		Dataset:   chart.PieDataset(res.Battalion, res.CallTypes),
		Battalion: res.Battalion,
		Total:     res.Total,
	})
}

// NeighborhoodTrends handles GET /api/metrics/neighborhood-trends.
func (h *Handler) NeighborhoodTrends(c *gin.Context) {
	trends, err := h.service.NeighborhoodTrends(c.Request.Context(), c.QueryArray("neighborhood"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, chart.Trends(trends))
}

// NeighborhoodDrilldown handles POST /api/metrics/neighborhood-trends.
func (h *Handler) NeighborhoodDrilldown(c *gin.Context) {
	res, err := h.service.NeighborhoodDrilldown(c.Request.Context(), formValue(c, "neighborhood"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, chart.Drilldown(res))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"status": "true", "data": data})
}

// fail writes the error envelope. Only the user-facing message is sent;
// the cause is logged.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	message := "Internal server error."

	var qe *model.QueryError
	if errors.As(err, &qe) {
		message = qe.Message
	}

	h.logger.Warn("request failed",
		"request_id", c.GetString(requestIDKey),
		"path", c.FullPath(),
		"status", status,
		"error", err)
	c.JSON(status, gin.H{"status": "false", "message": message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrMissingParameter), errors.Is(err, model.ErrUnresolvableInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// optionalFloat returns nil for a blank value so the service default applies.
func optionalFloat(param, value string) (*float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, model.UnresolvableInput(param, "Invalid "+param+".", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, model.UnresolvableInput(param, "Invalid "+param+".", nil)
	}
	return &f, nil
}

// formValue reads a field from a form body, a JSON body or the query.
func formValue(c *gin.Context, key string) string {
	if v := c.PostForm(key); v != "" {
		return v
	}
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err == nil {
			if s, ok := body[key].(string); ok {
				return s
			}
		}
	}
	return c.Query(key)
}
