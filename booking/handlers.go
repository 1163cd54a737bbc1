package booking

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"sattva/db"
	"sattva/models"
	"sattva/rdx"
	"sattva/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ---------- Slots ----------

type createSlotRequest struct {
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	BasePricePaise int64     `json:"basePricePaise"`
}

// CreateSlot publishes a counselor's bookable window. The client-facing
// price includes the platform fee.
func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	counselorID := utils.GetUserIDFromRequest(r)
	if counselorID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req createSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !req.EndTime.After(req.StartTime) {
		utils.RespondWithError(w, http.StatusBadRequest, "endTime must be after startTime")
		return
	}
	if req.StartTime.Before(time.Now()) {
		utils.RespondWithError(w, http.StatusBadRequest, "slot must be in the future")
		return
	}
	if req.BasePricePaise <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "basePricePaise must be positive")
		return
	}

	fee := h.svc.cfg.Booking.PlatformFeePercent
	total := int64(math.Round(float64(req.BasePricePaise) * (1 + fee/100)))

	slot := models.Slot{
		ID:              utils.GetUUID(),
		CounselorID:     counselorID,
		StartTime:       req.StartTime.UTC(),
		EndTime:         req.EndTime.UTC(),
		Status:          models.SlotAvailable,
		BasePricePaise:  req.BasePricePaise,
		TotalPricePaise: total,
		CreatedAt:       time.Now(),
	}

	if _, err := db.SlotCollection.InsertOne(r.Context(), slot); err != nil {
		if db.IsDuplicateKeyError(err) {
			utils.RespondWithError(w, http.StatusConflict, "a slot already exists at this start time")
			return
		}
		logrus.Errorf("create slot: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create slot")
		return
	}

	BroadcastSlotUpdate(counselorID, slot.ID, models.SlotAvailable)
	utils.RespondWithJSON(w, http.StatusCreated, slot)
}

// ListAvailability returns a counselor's open slots, optionally bounded
// by ?from and ?to (RFC3339).
func (h *Handler) ListAvailability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	counselorID := ps.ByName("counselorId")

	filter := bson.M{"counselorId": counselorID, "status": models.SlotAvailable}
	timeFilter := bson.M{"$gte": time.Now()}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			timeFilter["$gte"] = t
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			timeFilter["$lte"] = t
		}
	}
	filter["startTime"] = timeFilter

	cur, err := db.SlotCollection.Find(r.Context(), filter,
		options.Find().SetSort(bson.M{"startTime": 1}).SetLimit(200))
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list slots")
		return
	}
	defer cur.Close(r.Context())

	slots := []models.Slot{}
	if err := cur.All(r.Context(), &slots); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list slots")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"slots": slots})
}

// ---------- Checkout ----------

type checkoutRequest struct {
	SlotID string `json:"slotId"`
}

// CreateCheckoutSession creates the gateway order for a slot. The slot
// is not reserved yet; admission happens at payment confirmation.
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	clientID := utils.GetUserIDFromRequest(r)
	if clientID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SlotID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	var slot models.Slot
	if err := db.SlotCollection.FindOne(r.Context(), bson.M{"_id": req.SlotID}).Decode(&slot); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "slot not found")
		return
	}
	if slot.Status != models.SlotAvailable {
		utils.RespondWithError(w, http.StatusConflict, ErrSlotTaken.Error())
		return
	}

	order, err := h.svc.gateway.CreateOrder(r.Context(), slot.TotalPricePaise, "INR", slot.ID,
		map[string]string{"slotId": slot.ID, "clientId": clientID})
	if err != nil {
		logrus.Errorf("create order for slot %s: %v", slot.ID, err)
		utils.RespondWithError(w, http.StatusBadGateway, "payment gateway unavailable")
		return
	}

	now := time.Now()
	payment := models.Payment{
		ID:           utils.GetUUID(),
		OrderID:      order.ID,
		ClientID:     clientID,
		SlotID:       slot.ID,
		AmountPaise:  slot.TotalPricePaise,
		RefundStatus: models.RefundNone,
		Status:       models.PaymentCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := db.PaymentsCollection.InsertOne(r.Context(), payment); err != nil {
		logrus.Errorf("insert payment for order %s: %v", order.ID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to start checkout")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, utils.M{
		"orderId":     order.ID,
		"amountPaise": slot.TotalPricePaise,
		"currency":    "INR",
	})
}

type confirmPaymentRequest struct {
	OrderID           string `json:"orderId"`
	RazorpayPaymentID string `json:"razorpayPaymentId"`
	RazorpaySignature string `json:"razorpaySignature"`
}

// ConfirmPayment verifies the gateway callback, then runs the
// capture -> reserve -> book -> provision pipeline. Each stage is
// recorded on the payment's bookingStatus so the reconciliation sweeps
// can pick up anything that dies mid-way.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	clientID := utils.GetUserIDFromRequest(r)
	if clientID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if !h.svc.gateway.VerifySignature(req.OrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
		utils.RespondWithError(w, http.StatusUnauthorized, "invalid payment signature")
		return
	}

	var payment models.Payment
	err := db.PaymentsCollection.FindOne(r.Context(),
		bson.M{"orderId": req.OrderID, "clientId": clientID}).Decode(&payment)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "order not found")
		return
	}

	// Mark the money as ours before touching the slot. If the process
	// dies here, the orphan sweep refunds this payment.
	res, err := db.PaymentsCollection.UpdateOne(r.Context(),
		bson.M{"_id": payment.ID, "status": models.PaymentCreated},
		bson.M{"$set": bson.M{
			"status":           models.PaymentCaptured,
			"gatewayPaymentId": req.RazorpayPaymentID,
			"signature":        req.RazorpaySignature,
			"bookingStatus":    models.LinkCapturedUnlinked,
			"updatedAt":        time.Now(),
		}},
	)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to confirm payment")
		return
	}
	if res.ModifiedCount == 0 {
		// Replay of an already-processed confirmation.
		if payment.BookingID != "" {
			utils.RespondWithJSON(w, http.StatusOK, utils.M{"bookingId": payment.BookingID, "status": "already_confirmed"})
			return
		}
		utils.RespondWithError(w, http.StatusConflict, "payment already being processed")
		return
	}
	payment.GatewayPaymentID = req.RazorpayPaymentID
	payment.Status = models.PaymentCaptured

	// Short-lived lock keeps concurrent confirmations for the same slot
	// from burning transaction retries; the conditional reserve update
	// stays the authority.
	lockKey := "slot_lock:" + payment.SlotID
	if ok, lerr := rdx.RdxSetNX(lockKey, payment.ID, 10*time.Second); lerr == nil && !ok {
		utils.RespondWithError(w, http.StatusConflict, "slot is being booked; retry shortly")
		return
	}
	defer rdx.RdxDel(lockKey)

	booking, err := h.createBookingForPayment(r, &payment)
	if err != nil {
		if errors.Is(err, ErrSlotTaken) || errors.Is(err, ErrSlotNotFound) {
			// Money captured but slot lost: refund right away.
			if _, rerr := h.svc.refunds.InitiateRefund(r.Context(), &payment, models.RefundReasonBookingFailed); rerr != nil {
				logrus.Errorf("immediate refund for payment %s: %v", payment.ID, rerr)
			}
			utils.RespondWithError(w, http.StatusConflict, "slot was taken; payment will be refunded")
			return
		}
		logrus.Errorf("confirm payment %s: %v", payment.ID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to confirm payment")
		return
	}

	// Provision the meeting outside the transaction; the mismatch sweep
	// finalizes the payment link if we die between these steps.
	meetingID, meetingURL := h.svc.provisionMeeting(booking.ID)
	now := time.Now()
	_, err = db.BookingsCollection.UpdateOne(r.Context(),
		bson.M{"_id": booking.ID},
		bson.M{"$set": bson.M{
			"meetingId":  meetingID,
			"meetingUrl": meetingURL,
			"status":     models.BookingConfirmed,
			"updatedAt":  now,
		}},
	)
	if err != nil {
		logrus.Errorf("provision meeting for booking %s: %v", booking.ID, err)
	} else {
		booking.MeetingID = meetingID
		booking.MeetingURL = meetingURL
		booking.Status = models.BookingConfirmed
		_, err = db.PaymentsCollection.UpdateOne(r.Context(),
			bson.M{"_id": payment.ID},
			bson.M{"$set": bson.M{"bookingStatus": models.LinkCompleted, "updatedAt": now}},
		)
		if err != nil {
			logrus.Errorf("finalize payment %s: %v", payment.ID, err)
		}
	}

	BroadcastSlotUpdate(booking.CounselorID, booking.SlotID, models.SlotBooked)
	h.notifyBookingConfirmed(r, booking)

	utils.RespondWithJSON(w, http.StatusCreated, booking)
}

// createBookingForPayment reserves the slot and inserts the booking in
// one transaction, then links the payment to it.
func (h *Handler) createBookingForPayment(r *http.Request, payment *models.Payment) (*models.Booking, error) {
	result, err := db.WithTransaction(r.Context(), func(sc mongo.SessionContext) (interface{}, error) {
		slot, err := h.svc.ReserveSlot(sc, payment.SlotID, payment.ClientID)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		booking := models.Booking{
			ID:              utils.GetUUID(),
			ClientID:        payment.ClientID,
			CounselorID:     slot.CounselorID,
			SlotID:          slot.ID,
			PaymentID:       payment.ID,
			PricePaise:      payment.AmountPaise,
			DurationMinutes: int(slot.EndTime.Sub(slot.StartTime).Minutes()),
			StartTime:       slot.StartTime,
			EndTime:         slot.EndTime,
			Status:          models.BookingPending,
			PaymentStatus:   models.PaymentCaptured,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if _, err := db.BookingsCollection.InsertOne(sc, booking); err != nil {
			if db.IsDuplicateKeyError(err) {
				return nil, ErrSlotTaken
			}
			return nil, err
		}

		if _, err := db.SlotCollection.UpdateOne(sc,
			bson.M{"_id": slot.ID},
			bson.M{"$set": bson.M{"bookingId": booking.ID}},
		); err != nil {
			return nil, err
		}

		if _, err := db.PaymentsCollection.UpdateOne(sc,
			bson.M{"_id": payment.ID},
			bson.M{"$set": bson.M{
				"bookingId":     booking.ID,
				"bookingStatus": models.LinkPendingResources,
				"updatedAt":     now,
			}},
		); err != nil {
			return nil, err
		}

		return &booking, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Booking), nil
}

func (h *Handler) notifyBookingConfirmed(r *http.Request, bk *models.Booking) {
	var client models.User
	if err := db.UserCollection.FindOne(r.Context(), bson.M{"userid": bk.ClientID}).Decode(&client); err != nil {
		return
	}
	body := "<p>Your session on " + bk.StartTime.Format("Mon, 02 Jan 2006 15:04 MST") +
		" is confirmed.</p><p>Join link: <a href=\"" + bk.MeetingURL + "\">" + bk.MeetingURL + "</a></p>"
	if err := h.svc.mail.Send(r.Context(), client.Email, client.Username, "Session confirmed", body); err != nil {
		logrus.Warnf("confirmation mail for booking %s: %v", bk.ID, err)
	}
}

// ---------- Booking lifecycle ----------

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req cancelRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	bk, err := h.svc.CancelBooking(r.Context(), ps.ByName("bookingId"), userID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrBookingNotFound):
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrNotYourBooking):
			utils.RespondWithError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, ErrNotCancellable), errors.Is(err, ErrCancelWindowClosed):
			utils.RespondWithError(w, http.StatusConflict, err.Error())
		default:
			logrus.Errorf("cancel booking: %v", err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to cancel booking")
		}
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, bk)
}

type rescheduleRequest struct {
	NewSlotID string `json:"newSlotId"`
}

func (h *Handler) RescheduleBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewSlotID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "newSlotId is required")
		return
	}

	bk, err := h.svc.RescheduleBooking(r.Context(), ps.ByName("bookingId"), userID, req.NewSlotID)
	if err != nil {
		switch {
		case errors.Is(err, ErrBookingNotFound), errors.Is(err, ErrSlotNotFound):
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrNotYourBooking):
			utils.RespondWithError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrNotCancellable), errors.Is(err, ErrCancelWindowClosed):
			utils.RespondWithError(w, http.StatusConflict, err.Error())
		default:
			logrus.Errorf("reschedule booking: %v", err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to reschedule booking")
		}
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, bk)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var bk models.Booking
	err := db.BookingsCollection.FindOne(r.Context(), bson.M{"_id": ps.ByName("bookingId")}).Decode(&bk)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "booking not found")
		return
	}
	if bk.ClientID != userID && bk.CounselorID != userID {
		utils.RespondWithError(w, http.StatusForbidden, ErrNotYourBooking.Error())
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, bk)
}

func (h *Handler) GetMyBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	filter := bson.M{"$or": []bson.M{{"clientId": userID}, {"counselorId": userID}}}
	if status := r.URL.Query().Get("status"); status != "" {
		filter["status"] = status
	}

	cur, err := db.BookingsCollection.Find(r.Context(), filter,
		options.Find().SetSort(bson.M{"startTime": -1}).SetLimit(100))
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list bookings")
		return
	}
	defer cur.Close(r.Context())

	bookings := []models.Booking{}
	if err := cur.All(r.Context(), &bookings); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list bookings")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"bookings": bookings})
}
