package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Index renders the landing page.
func (h *Handlers) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"username": sessionString(c, sessionKeyUsername),
	})
}

// PaymentPage renders the payment page, with session context when the user
// has already logged in.
func (h *Handlers) PaymentPage(c *gin.Context) {
	c.HTML(http.StatusOK, "payment.html", gin.H{
		"username":       sessionString(c, sessionKeyUsername),
		"plan":           sessionString(c, sessionKeyPlan),
		"wallet_address": sessionString(c, sessionKeyWallet),
		"logged_in":      sessionString(c, sessionKeyToken) != "",
	})
}
