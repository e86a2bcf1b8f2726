package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zemetsskiy/subgate/internal/domain"
)

// ChoosePlan stores the picked plan in the session after validating it
// against the catalog.
func (h *Handlers) ChoosePlan(c *gin.Context) {
	planID := c.PostForm("plan")
	if !h.Catalog.Has(planID) {
		c.JSON(http.StatusBadRequest, domain.ApiResponse{
			Message: "Unknown plan: " + planID,
			Success: false,
			Status:  http.StatusBadRequest,
		})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionKeyPlan, planID)
	if err := session.Save(); err != nil {
		h.Logger.Error().Err(err).Msg("Failed to save session")
		c.JSON(http.StatusInternalServerError, domain.ApiResponse{
			Message: "Failed to save plan selection",
			Success: false,
			Status:  http.StatusInternalServerError,
		})
		return
	}

	c.Redirect(http.StatusFound, "/payment")
}

type createPaymentRequest struct {
	Token   string `json:"token" binding:"required"`
	Network string `json:"network" binding:"required"`
}

// CreatePayment issues a wallet, prices the plan, records the pending
// attempt, and hands the watch loop to the background registry. The HTTP
// response returns before polling completes; the client polls
// /check_payment_status (or listens on /ws/status) for the outcome.
func (h *Handlers) CreatePayment(c *gin.Context) {
	session := sessions.Default(c)

	planID := sessionString(c, sessionKeyPlan)
	username := sessionString(c, sessionKeyUsername)
	userID := sessionString(c, sessionKeyUserID)
	if planID == "" || username == "" {
		c.JSON(http.StatusBadRequest, domain.ApiResponse{
			Message: "Plan selection and Discord login are required before payment",
			Success: false,
			Status:  http.StatusBadRequest,
		})
		return
	}

	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.ApiResponse{
			Message: err.Error(),
			Success: false,
			Status:  http.StatusBadRequest,
		})
		return
	}

	token, ok := domain.ParseToken(req.Token)
	if !ok {
		c.JSON(http.StatusBadRequest, domain.ApiResponse{
			Message: "Unknown token: " + req.Token,
			Success: false,
			Status:  http.StatusBadRequest,
		})
		return
	}
	network, ok := domain.ParseNetwork(req.Network)
	if !ok {
		c.JSON(http.StatusBadRequest, domain.ApiResponse{
			Message: "Unknown network: " + req.Network,
			Success: false,
			Status:  http.StatusBadRequest,
		})
		return
	}

	amount, err := h.Pricing.Price(c.Request.Context(), planID, token)
	if err != nil {
		if errors.Is(err, domain.ErrPriceUnavailable) {
			c.JSON(http.StatusServiceUnavailable, domain.ApiResponse{
				Message: "Price quote unavailable, try again later",
				Success: false,
				Status:  http.StatusServiceUnavailable,
			})
			return
		}
		c.JSON(http.StatusBadRequest, domain.ApiResponse{
			Message: err.Error(),
			Success: false,
			Status:  http.StatusBadRequest,
		})
		return
	}

	issued, err := h.Wallets.Issue()
	if err != nil {
		h.Logger.Error().Err(err).Msg("Wallet issuance failed")
		c.JSON(http.StatusInternalServerError, domain.ApiResponse{
			Message: "Failed to issue deposit wallet",
			Success: false,
			Status:  http.StatusInternalServerError,
		})
		return
	}

	attempt := domain.PaymentAttempt{
		ID:             uuid.New().String(),
		WalletAddress:  issued.Address,
		Plan:           planID,
		Token:          token,
		Network:        network,
		ExpectedAmount: amount,
		Username:       username,
		UserID:         userID,
		StartedAt:      time.Now(),
	}

	if err := h.State.InitAttempt(c.Request.Context(), attempt.WalletAddress, attempt.StartedAt); err != nil {
		h.Logger.Error().Err(err).
			Str("wallet_address", attempt.WalletAddress).
			Msg("Failed to record pending attempt")
		c.JSON(http.StatusInternalServerError, domain.ApiResponse{
			Message: "Failed to start payment session",
			Success: false,
			Status:  http.StatusInternalServerError,
		})
		return
	}

	if err := h.Watcher.Watch(attempt); err != nil {
		if errors.Is(err, domain.ErrTooManyAttempts) {
			c.JSON(http.StatusTooManyRequests, domain.ApiResponse{
				Message: "Too many payments in flight, try again shortly",
				Success: false,
				Status:  http.StatusTooManyRequests,
			})
			return
		}
		h.Logger.Error().Err(err).
			Str("wallet_address", attempt.WalletAddress).
			Msg("Failed to start watcher")
		c.JSON(http.StatusInternalServerError, domain.ApiResponse{
			Message: "Failed to start payment session",
			Success: false,
			Status:  http.StatusInternalServerError,
		})
		return
	}

	session.Set(sessionKeyWallet, attempt.WalletAddress)
	if err := session.Save(); err != nil {
		h.Logger.Error().Err(err).Msg("Failed to save session")
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet_address": attempt.WalletAddress,
		"amount":         amount.String(),
		"token":          strings.ToUpper(string(token)),
	})
}

// CheckPaymentStatus reads the attempt state and reports confirmed,
// pending with time remaining, or timed out. The check is read-only: it
// never refreshes the start timestamp, so a session cannot be extended by
// polling.
func (h *Handlers) CheckPaymentStatus(c *gin.Context) {
	walletAddress := sessionString(c, sessionKeyWallet)
	if walletAddress == "" {
		c.JSON(http.StatusOK, domain.StatusReport{
			Confirmed: false,
			Timeout:   true,
			Error:     "Payment session not started",
		})
		return
	}

	confirmed, startedAt, ok, err := h.State.Status(c.Request.Context(), walletAddress)
	if err != nil {
		h.Logger.Error().Err(err).
			Str("wallet_address", walletAddress).
			Msg("Failed to read payment status")
		c.JSON(http.StatusInternalServerError, domain.ApiResponse{
			Message: "Failed to read payment status",
			Success: false,
			Status:  http.StatusInternalServerError,
		})
		return
	}

	if !ok {
		c.JSON(http.StatusOK, domain.StatusReport{
			Confirmed: false,
			Timeout:   true,
			Error:     "Payment session not started",
		})
		return
	}

	if confirmed {
		c.JSON(http.StatusOK, domain.StatusReport{Confirmed: true, Timeout: false})
		return
	}

	elapsed := time.Since(startedAt)
	if elapsed > h.Config.Payment.Window {
		c.JSON(http.StatusOK, domain.StatusReport{Confirmed: false, Timeout: true})
		return
	}

	c.JSON(http.StatusOK, domain.StatusReport{
		Confirmed:        false,
		Timeout:          false,
		SecondsRemaining: int64((h.Config.Payment.Window - elapsed).Seconds()),
	})
}

type storeEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// StoreEmail associates the session's Discord identity with a contact
// email for the confirmation notice.
func (h *Handlers) StoreEmail(c *gin.Context) {
	username := sessionString(c, sessionKeyUsername)
	if username == "" {
		c.JSON(http.StatusBadRequest, domain.ApiResponse{
			Message: "Discord login is required before storing an email",
			Success: false,
			Status:  http.StatusBadRequest,
		})
		return
	}

	var req storeEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.ApiResponse{
			Message: err.Error(),
			Success: false,
			Status:  http.StatusBadRequest,
		})
		return
	}

	if err := h.State.SetEmail(c.Request.Context(), username, req.Email); err != nil {
		h.Logger.Error().Err(err).
			Str("username", username).
			Msg("Failed to store email")
		c.JSON(http.StatusInternalServerError, domain.ApiResponse{
			Message: "Failed to store email",
			Success: false,
			Status:  http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, domain.ApiResponse{
		Message: "Email saved",
		Success: true,
		Status:  http.StatusOK,
	})
}
