package attendance

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"sattva/config"
	"sattva/db"
	"sattva/models"
	"sattva/rdx"
	"sattva/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrOutsideJoinWindow  = errors.New("outside the join window")
	ErrNotParticipant     = errors.New("not a participant of this session")
	ErrSessionNotJoinable = errors.New("session is not joinable")
)

// Handler serves the session attendance surface: join intent, token
// redemption, heartbeats and leave.
type Handler struct {
	cfg *config.Config
}

func NewHandler(cfg *config.Config) *Handler {
	return &Handler{cfg: cfg}
}

// roleFor maps a user onto their side of the booking.
func roleFor(bk *models.Booking, userID string) (string, error) {
	switch userID {
	case bk.ClientID:
		return models.RoleClient, nil
	case bk.CounselorID:
		return models.RoleCounselor, nil
	default:
		return "", ErrNotParticipant
	}
}

func joinable(status string) bool {
	return status == models.BookingConfirmed || status == models.BookingOngoing
}

// withinJoinWindow accepts join intents in the symmetric grace window
// around the scheduled start, boundaries included.
func withinJoinWindow(start, now time.Time, grace time.Duration) bool {
	return !now.Before(start.Add(-grace)) && !now.After(start.Add(grace))
}

// withinHeartbeatWindow accepts beats from slack before the scheduled
// start until slack after the scheduled end, inclusive.
func withinHeartbeatWindow(start, end, now time.Time, slack time.Duration) bool {
	return !now.Before(start.Add(-slack)) && !now.After(end.Add(slack))
}

// shouldCountBeat reports whether a beat at now is at least min after
// the previous counted beat. The conditional update in Heartbeat
// enforces the same rule atomically; this is the cheap pre-check on the
// document already in hand.
func shouldCountBeat(last *time.Time, now time.Time, min time.Duration) bool {
	return last == nil || !last.After(now.Add(-min))
}

// JoinIntent records that a party wants to join and hands back a
// short-lived join token. Allowed from grace minutes before the
// scheduled start until the scheduled end.
func (h *Handler) JoinIntent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var bk models.Booking
	if err := db.BookingsCollection.FindOne(r.Context(), bson.M{"_id": ps.ByName("bookingId")}).Decode(&bk); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "booking not found")
		return
	}

	role, err := roleFor(&bk, userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusForbidden, err.Error())
		return
	}
	if !joinable(bk.Status) {
		utils.RespondWithError(w, http.StatusConflict, ErrSessionNotJoinable.Error())
		return
	}

	now := time.Now()
	grace := time.Duration(h.cfg.Session.JoinGraceMinutes) * time.Minute
	if !withinJoinWindow(bk.StartTime, now, grace) {
		utils.RespondWithError(w, http.StatusConflict, ErrOutsideJoinWindow.Error())
		return
	}

	// Record the first intent only; replays are harmless.
	field := "attendance." + role + ".joinIntentAt"
	res, err := db.BookingsCollection.UpdateOne(r.Context(),
		bson.M{"_id": bk.ID, field: bson.M{"$exists": false}},
		bson.M{"$set": bson.M{field: now, "updatedAt": now}},
	)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to record join intent")
		return
	}
	if res.ModifiedCount > 0 {
		h.appendLog(r, bk.ID, userID, role, models.AttJoinIntent, models.Meta{
			"ip":        utils.ClientIP(r),
			"userAgent": r.UserAgent(),
		})
	}

	token, err := IssueJoinToken(bk.ID, userID, role, h.cfg.Session.JoinTokenTTL)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to issue join token")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"token":     token,
		"joinUrl":   fmt.Sprintf("/api/v1/join?token=%s", token),
		"expiresIn": int(h.cfg.Session.JoinTokenTTL.Seconds()),
	})
}

// RedeemJoin exchanges a valid join token for a redirect into the
// meeting room, marking joinedAt on first use.
func (h *Handler) RedeemJoin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	claims, err := ParseJoinToken(r.URL.Query().Get("token"))
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var bk models.Booking
	if err := db.BookingsCollection.FindOne(r.Context(), bson.M{"_id": claims.BookingID}).Decode(&bk); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "booking not found")
		return
	}
	if !joinable(bk.Status) {
		utils.RespondWithError(w, http.StatusConflict, ErrSessionNotJoinable.Error())
		return
	}
	if bk.MeetingURL == "" {
		utils.RespondWithError(w, http.StatusConflict, "meeting not provisioned yet")
		return
	}

	now := time.Now()
	field := "attendance." + claims.Role + ".joinedAt"
	res, err := db.BookingsCollection.UpdateOne(r.Context(),
		bson.M{"_id": bk.ID, field: bson.M{"$exists": false}},
		bson.M{"$set": bson.M{field: now, "updatedAt": now}},
	)
	if err == nil && res.ModifiedCount > 0 {
		h.appendLog(r, bk.ID, claims.UserID, claims.Role, models.AttJoined, nil)
	}

	http.Redirect(w, r, bk.MeetingURL, http.StatusFound)
}

// Heartbeat counts one liveness beat. Beats inside the minimum interval
// are acknowledged but not counted; the Redis lock is the cheap first
// gate, the conditional document update is the authority.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var bk models.Booking
	if err := db.BookingsCollection.FindOne(r.Context(), bson.M{"_id": ps.ByName("bookingId")}).Decode(&bk); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "booking not found")
		return
	}

	role, err := roleFor(&bk, userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusForbidden, err.Error())
		return
	}
	if !joinable(bk.Status) {
		utils.RespondWithError(w, http.StatusConflict, ErrSessionNotJoinable.Error())
		return
	}

	now := time.Now()
	slack := time.Duration(h.cfg.Session.HeartbeatWindowMinutes) * time.Minute
	if !withinHeartbeatWindow(bk.StartTime, bk.EndTime, now, slack) {
		utils.RespondWithError(w, http.StatusConflict, "outside the heartbeat window")
		return
	}

	minInterval := h.cfg.Session.HeartbeatMinInterval
	prev := bk.Attendance.Client.LastHeartbeatAt
	if role == models.RoleCounselor {
		prev = bk.Attendance.Counselor.LastHeartbeatAt
	}
	if !shouldCountBeat(prev, now, minInterval) {
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"accepted": false, "rateLimited": true})
		return
	}

	lockKey := fmt.Sprintf("hb:%s:%s", bk.ID, role)
	ok, err := rdx.RdxSetNX(lockKey, "1", minInterval)
	if err != nil {
		// Redis down: fall through to the document check.
		logrus.Warnf("heartbeat lock %s: %v", lockKey, err)
	} else if !ok {
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"accepted": false, "rateLimited": true})
		return
	}

	field := "attendance." + role
	cutoff := now.Add(-minInterval)
	res, err := db.BookingsCollection.UpdateOne(r.Context(),
		bson.M{
			"_id": bk.ID,
			"$or": []bson.M{
				{field + ".lastHeartbeatAt": bson.M{"$lte": cutoff}},
				{field + ".lastHeartbeatAt": bson.M{"$exists": false}},
			},
		},
		bson.M{
			"$inc": bson.M{field + ".heartbeatCount": 1},
			"$set": bson.M{field + ".lastHeartbeatAt": now, "updatedAt": now},
		},
	)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to record heartbeat")
		return
	}
	if res.ModifiedCount == 0 {
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"accepted": false, "rateLimited": true})
		return
	}

	h.appendLog(r, bk.ID, userID, role, models.AttHeartbeat, nil)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"accepted": true})
}

// Leave records the party's departure time. Leaving does not end the
// session; the monitor closes it out after the scheduled end.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var bk models.Booking
	if err := db.BookingsCollection.FindOne(r.Context(), bson.M{"_id": ps.ByName("bookingId")}).Decode(&bk); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "booking not found")
		return
	}

	role, err := roleFor(&bk, userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusForbidden, err.Error())
		return
	}

	now := time.Now()
	_, err = db.BookingsCollection.UpdateOne(r.Context(),
		bson.M{"_id": bk.ID},
		bson.M{"$set": bson.M{"attendance." + role + ".leftAt": now, "updatedAt": now}},
	)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to record leave")
		return
	}

	h.appendLog(r, bk.ID, userID, role, models.AttLeft, nil)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"left": true})
}

// GetAttendance returns the attendance state for a participant.
func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var bk models.Booking
	if err := db.BookingsCollection.FindOne(r.Context(), bson.M{"_id": ps.ByName("bookingId")}).Decode(&bk); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "booking not found")
		return
	}
	if _, err := roleFor(&bk, userID); err != nil {
		utils.RespondWithError(w, http.StatusForbidden, err.Error())
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, bk.Attendance)
}

// appendLog writes to the immutable attendance trail. Log failures are
// logged, not surfaced; the booking document stays the live record.
func (h *Handler) appendLog(r *http.Request, bookingID, userID, role, event string, meta models.Meta) {
	row := models.AttendanceLog{
		ID:        utils.GetUUID(),
		BookingID: bookingID,
		UserID:    userID,
		Role:      role,
		Event:     event,
		At:        time.Now(),
		Meta:      meta,
	}
	if _, err := db.AttendanceLogCollection.InsertOne(r.Context(), row); err != nil {
		logrus.Warnf("attendance log %s/%s: %v", bookingID, event, err)
	}
}
