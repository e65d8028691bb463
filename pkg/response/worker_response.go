// Package response builds the JSON envelopes returned by the HTTP API.
package response

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// =============================================================================
// Envelope
// =============================================================================

// Response wraps every successful body. Errors are rendered by the
// middleware error handler using the same success flag.
type Response struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Meta      *Meta  `json:"meta,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Meta carries paging info for list endpoints.
type Meta struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit,omitempty"`
	Offset  int  `json:"offset,omitempty"`
	HasMore bool `json:"has_more"`
}

func envelope(c *fiber.Ctx, data any, meta *Meta) Response {
	requestID, _ := c.Locals("request_id").(string)
	return Response{Success: true, Data: data, Meta: meta, RequestID: requestID}
}

// OK returns 200 with data.
func OK(c *fiber.Ctx, data any) error {
	return c.JSON(envelope(c, data, nil))
}

// OKWithMeta returns 200 with data and paging info.
func OKWithMeta(c *fiber.Ctx, data any, meta *Meta) error {
	return c.JSON(envelope(c, data, meta))
}

// Accepted returns 202, used when work was queued rather than run inline.
func Accepted(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusAccepted).JSON(envelope(c, data, nil))
}

// =============================================================================
// Health
// =============================================================================

// Health is the body of /health and /ready.
type Health struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func NewHealth(status string, checks map[string]string) Health {
	return Health{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// Paging
// =============================================================================

// Page is the limit/offset pair read from the query string.
type Page struct {
	Limit  int
	Offset int
}

// GetPage reads ?limit= and ?offset=, clamping limit to [1, max].
func GetPage(c *fiber.Ctx, defaultLimit, max int) Page {
	limit := c.QueryInt("limit", defaultLimit)
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > max {
		limit = max
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}

// Slice applies the page to a total count and returns the [lo, hi) window
// along with the meta block.
func (p Page) Slice(total int) (lo, hi int, meta *Meta) {
	lo = p.Offset
	if lo > total {
		lo = total
	}
	hi = lo + p.Limit
	if hi > total {
		hi = total
	}
	return lo, hi, &Meta{Total: total, Limit: p.Limit, Offset: p.Offset, HasMore: hi < total}
}
