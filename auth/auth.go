package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"sattva/config"
	"sattva/db"
	"sattva/globals"
	"sattva/middleware"
	"sattva/models"
	"sattva/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/bcrypt"
)

type registerRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Role     []string `json:"role"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Handler bundles the auth routes with their token config.
type Handler struct {
	cfg config.JWTConfig
}

func NewHandler(cfg config.JWTConfig) *Handler {
	return &Handler{cfg: cfg}
}

func validRole(r string) bool {
	return r == models.RoleClient || r == models.RoleCounselor
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Username == "" || req.Email == "" || len(req.Password) < 8 {
		utils.RespondWithError(w, http.StatusBadRequest, "username, email and a password of at least 8 characters are required")
		return
	}
	if len(req.Role) == 0 {
		req.Role = []string{models.RoleClient}
	}
	for _, role := range req.Role {
		if !validRole(role) {
			utils.RespondWithError(w, http.StatusBadRequest, "unknown role: "+role)
			return
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	user := models.User{
		UserID:    "u" + utils.GenerateRandomDigitString(12),
		Username:  req.Username,
		Email:     req.Email,
		Password:  string(hashed),
		Role:      req.Role,
		CreatedAt: time.Now(),
	}

	count, err := db.UserCollection.CountDocuments(r.Context(), bson.M{
		"$or": []bson.M{{"username": req.Username}, {"email": req.Email}},
	})
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to register")
		return
	}
	if count > 0 {
		utils.RespondWithError(w, http.StatusConflict, "username or email already taken")
		return
	}

	if _, err := db.UserCollection.InsertOne(r.Context(), user); err != nil {
		logrus.Errorf("register insert: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, utils.M{"userid": user.UserID, "username": user.Username})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	var user models.User
	err := db.UserCollection.FindOne(r.Context(), bson.M{"username": req.Username}).Decode(&user)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	accessToken, err := h.issueAccessToken(&user)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	refreshToken := utils.GenerateRandomString(48)
	refreshExpiry := time.Now().Add(h.cfg.RefreshTokenTTL)
	_, err = db.UserCollection.UpdateOne(r.Context(),
		bson.M{"userid": user.UserID},
		bson.M{"$set": bson.M{
			"refresh_token":  hashToken(refreshToken),
			"refresh_expiry": refreshExpiry,
			"last_login":     time.Now(),
		}},
	)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"token":        accessToken,
		"refreshToken": refreshToken,
		"userid":       user.UserID,
		"role":         user.Role,
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		UserID       string `json:"userid"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	var user models.User
	err := db.UserCollection.FindOne(r.Context(), bson.M{"userid": req.UserID}).Decode(&user)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if user.RefreshToken == "" || user.RefreshToken != hashToken(req.RefreshToken) || time.Now().After(user.RefreshExpiry) {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	accessToken, err := h.issueAccessToken(&user)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"token": accessToken})
}

func (h *Handler) issueAccessToken(user *models.User) (string, error) {
	claims := &middleware.Claims{
		Username: user.Username,
		UserID:   user.UserID,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   user.UserID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(globals.JwtSecret)
}

// Refresh tokens are stored hashed so a database leak cannot replay them.
func hashToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}
