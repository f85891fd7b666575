package account

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/getsentry/sentry-go"

	"shop-auth/internal/otp"
	"shop-auth/internal/token"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service

	// federationSecret gates the internal federated-login route. When
	// empty the route answers 404, same as the cron endpoint.
	federationSecret string
}

func NewHandler(service *Service, federationSecret string) *Handler {
	return &Handler{service: service, federationSecret: strings.TrimSpace(federationSecret)}
}

type signUpRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type updateProfileRequest struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type federatedRequest struct {
	Provider   string `json:"provider"`
	ProviderID string `json:"provider_id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var body signUpRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	username := strings.ToLower(strings.TrimSpace(body.Username))
	email := strings.ToLower(strings.TrimSpace(body.Email))
	switch {
	case !usernameRegex.MatchString(username):
		writeError(w, http.StatusBadRequest, "username format is invalid")
		return
	case !emailRegex.MatchString(email):
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	case !validPassword(body.Password):
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	case strings.TrimSpace(body.FirstName) == "" || strings.TrimSpace(body.LastName) == "":
		writeError(w, http.StatusBadRequest, "first and last name are required")
		return
	}

	info, err := h.service.SignUp(r.Context(), SignUpInput{
		Username:  username,
		Email:     email,
		Password:  body.Password,
		FirstName: body.FirstName,
		LastName:  body.LastName,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			writeError(w, http.StatusConflict, "username or email already exists")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to sign up")
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.Email) == "" || strings.TrimSpace(body.Code) == "" {
		writeError(w, http.StatusBadRequest, "email and code are required")
		return
	}

	if err := h.service.VerifyEmail(r.Context(), body.Email, body.Code); err != nil {
		h.writeOtpFlowError(w, err, "failed to verify email")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.service.ResendVerification(r.Context(), body.Email); err != nil {
		h.writeOtpFlowError(w, err, "failed to resend verification code")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	// Unknown emails get the same answer as known ones.
	if err := h.service.ForgotPassword(r.Context(), body.Email); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.Email) == "" || strings.TrimSpace(body.Code) == "" {
		writeError(w, http.StatusBadRequest, "email and code are required")
		return
	}
	if !validPassword(body.NewPassword) {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	if err := h.service.ResetPassword(r.Context(), body.Email, body.Code, body.NewPassword); err != nil {
		h.writeOtpFlowError(w, err, "failed to reset password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password reset"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Profile(r.Context(), token.PrincipalID(r.Context()))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body updateProfileRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	username := strings.ToLower(strings.TrimSpace(body.Username))
	if username != "" && !usernameRegex.MatchString(username) {
		writeError(w, http.StatusBadRequest, "username format is invalid")
		return
	}

	info, err := h.service.UpdateProfile(r.Context(), token.PrincipalID(r.Context()), username, body.FirstName, body.LastName)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "account not found")
		case errors.Is(err, ErrConflict):
			writeError(w, http.StatusConflict, "username already exists")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to update profile")
		}
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var body changePasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if !validPassword(body.NewPassword) {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	err := h.service.ChangePassword(r.Context(), token.PrincipalID(r.Context()), body.CurrentPassword, body.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "account not found")
		case errors.Is(err, ErrWrongPassword):
			writeError(w, http.StatusForbidden, "current password is incorrect")
		case errors.Is(err, ErrSamePassword):
			writeError(w, http.StatusBadRequest, "new password must differ from the current one")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), token.PrincipalID(r.Context())); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// FederatedLogin is the internal endpoint the identity-provider gateway
// calls once it has validated an external identity. Guarded by a shared
// secret; answers 404 while unconfigured.
func (h *Handler) FederatedLogin(w http.ResponseWriter, r *http.Request) {
	if h.federationSecret == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.federationSecret {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body federatedRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	if strings.TrimSpace(body.Provider) == "" || strings.TrimSpace(body.ProviderID) == "" || !emailRegex.MatchString(email) {
		writeError(w, http.StatusBadRequest, "provider, provider_id and email are required")
		return
	}

	result, err := h.service.ResolveFederated(r.Context(), body.Provider, body.ProviderID, email, body.FirstName, body.LastName)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to resolve federated login")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeOtpFlowError maps OTP and principal errors for the verify, resend
// and reset flows. Code failures stay generic so codes and accounts
// cannot be enumerated.
func (h *Handler) writeOtpFlowError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, otp.ErrCodeNotFound), errors.Is(err, otp.ErrCodeExpired):
		writeError(w, http.StatusBadRequest, "invalid or expired code")
	case errors.Is(err, otp.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "too many attempts, request a new code")
	case errors.Is(err, ErrAlreadyVerified):
		writeError(w, http.StatusConflict, "account is already verified")
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func validPassword(password string) bool {
	return len(password) >= 8 && len(password) <= 200
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
