package receipts

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"sattva/db"
	"sattva/globals"
	"sattva/models"
	"sattva/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/phpdave11/gofpdf"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"go.mongodb.org/mongo-driver/bson"
)

// qrPayload builds the signed payload embedded in the receipt QR:
// bookingId|meetingId|timestamp|signature. A scanner at the door can
// verify the HMAC without a database round trip.
func qrPayload(bookingID, meetingID string) string {
	data := fmt.Sprintf("%s|%s|%d", bookingID, meetingID, time.Now().Unix())
	h := hmac.New(sha256.New, globals.JwtSecret)
	h.Write([]byte(data))
	sig := base64.StdEncoding.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("%s|%s", data, sig)
}

// PrintReceipt renders a PDF receipt for a paid booking, with the join
// link encoded as a QR code.
func PrintReceipt(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
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
		utils.RespondWithError(w, http.StatusForbidden, "booking belongs to another user")
		return
	}
	if bk.PaymentStatus != models.PaymentCaptured {
		utils.RespondWithError(w, http.StatusConflict, "booking is not paid")
		return
	}

	qrPNG, err := qrcode.Encode(qrPayload(bk.ID, bk.MeetingID), qrcode.Medium, 256)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Session Receipt")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 12)
	pdf.Cell(0, 10, fmt.Sprintf("Booking ID: %s", bk.ID))
	pdf.Ln(8)
	pdf.Cell(0, 10, fmt.Sprintf("Session: %s - %s",
		bk.StartTime.Format("Mon, 02 Jan 2006 15:04 MST"),
		bk.EndTime.Format("15:04 MST")))
	pdf.Ln(8)
	pdf.Cell(0, 10, fmt.Sprintf("Duration: %d minutes", bk.DurationMinutes))
	pdf.Ln(8)
	pdf.Cell(0, 10, fmt.Sprintf("Amount Paid: INR %.2f", float64(bk.PricePaise)/100))
	pdf.Ln(8)
	pdf.Cell(0, 10, fmt.Sprintf("Status: %s", bk.Status))
	pdf.Ln(12)

	imageOpts := gofpdf.ImageOptions{
		ImageType: "PNG",
	}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 40, 40, 40, false, imageOpts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		logrus.Errorf("receipt pdf for booking %s: %v", bk.ID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate PDF")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=receipt-"+bk.ID+".pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
