package routes

import (
	"sattva/attendance"
	"sattva/auth"
	"sattva/booking"
	"sattva/middleware"
	"sattva/models"
	"sattva/pay"
	"sattva/ratelim"
	"sattva/receipts"

	"github.com/julienschmidt/httprouter"
)

func AddAuthRoutes(router *httprouter.Router, h *auth.Handler) {
	router.POST("/api/v1/auth/register", ratelim.RateLimit(h.Register))
	router.POST("/api/v1/auth/login", ratelim.RateLimit(h.Login))
	router.POST("/api/v1/auth/refresh", ratelim.RateLimit(h.Refresh))
}

func AddBookingRoutes(router *httprouter.Router, h *booking.Handler) {
	// Counselor calendar
	router.POST("/api/v1/slots", ratelim.RateLimit(middleware.Authenticate(h.CreateSlot)))
	router.GET("/api/v1/counselors/:counselorId/slots", ratelim.RateLimit(h.ListAvailability))
	router.GET("/ws/counselors/:counselorId/availability", booking.HandleAvailabilityWS)

	// Booking lifecycle
	router.GET("/api/v1/bookings", ratelim.RateLimit(middleware.Authenticate(h.GetMyBookings)))
	router.GET("/api/v1/bookings/:bookingId", ratelim.RateLimit(middleware.Authenticate(h.GetBooking)))
	router.POST("/api/v1/bookings/:bookingId/cancel", ratelim.RateLimit(middleware.Authenticate(h.CancelBooking)))
	router.POST("/api/v1/bookings/:bookingId/reschedule", ratelim.RateLimit(middleware.Authenticate(h.RescheduleBooking)))
}

func AddPayRoutes(router *httprouter.Router, h *booking.Handler) {
	router.POST("/api/v1/checkout", ratelim.RateLimit(middleware.Authenticate(
		pay.Idempotency(models.IdemCheckout, h.CreateCheckoutSession))))
	router.POST("/api/v1/checkout/verify", ratelim.RateLimit(middleware.Authenticate(
		pay.Idempotency(models.IdemVerify, h.ConfirmPayment))))
}

func AddSessionRoutes(router *httprouter.Router, h *attendance.Handler) {
	router.POST("/api/v1/sessions/:bookingId/join", ratelim.RateLimit(middleware.Authenticate(h.JoinIntent)))
	router.GET("/api/v1/join", ratelim.RateLimit(h.RedeemJoin))
	router.POST("/api/v1/sessions/:bookingId/heartbeat", middleware.Authenticate(h.Heartbeat))
	router.POST("/api/v1/sessions/:bookingId/leave", ratelim.RateLimit(middleware.Authenticate(h.Leave)))
	router.GET("/api/v1/sessions/:bookingId/attendance", ratelim.RateLimit(middleware.Authenticate(h.GetAttendance)))
}

func AddReceiptRoutes(router *httprouter.Router) {
	router.GET("/api/v1/bookings/:bookingId/receipt", ratelim.RateLimit(middleware.Authenticate(receipts.PrintReceipt)))
}
