package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/cab-voice-agent/internal/store"
	"github.com/troikatech/cab-voice-agent/pkg/errors"
	"github.com/troikatech/cab-voice-agent/pkg/utils"
)

// ListBookings pages bookings newest first. Optional filters: phone,
// status (comma separated) and since (RFC 3339).
func (h *Handler) ListBookings(c *gin.Context) {
	page := utils.ParsePagination(c)
	filter := store.BookingFilter{Phone: utils.NormalizePhone(c.Query("phone"))}
	for _, st := range strings.Split(c.Query("status"), ",") {
		if st = strings.TrimSpace(st); st != "" {
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			errors.BadRequest(c, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = t
	}

	bookings, total, err := h.bookings.ListBookings(c.Request.Context(), filter,
		int64(page.Limit), int64((page.Page-1)*page.Limit))
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, utils.PaginatedResponse{
		Data:  bookings,
		Page:  page.Page,
		Limit: page.Limit,
		Total: total,
		Count: len(bookings),
	})
}

func (h *Handler) GetBooking(c *gin.Context) {
	b, err := h.bookings.GetBooking(c.Request.Context(), c.Param("id"))
	if stderrors.Is(err, store.ErrNotFound) {
		errors.NotFound(c, "booking not found")
		return
	}
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, b)
}
