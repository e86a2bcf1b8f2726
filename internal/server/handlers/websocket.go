package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"

	"github.com/zemetsskiy/subgate/internal/domain"
	"github.com/zemetsskiy/subgate/internal/server/ws"
)

var upgrader = gws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusWebSocket upgrades the connection and subscribes it to status
// pushes for the session's in-flight wallet address.
func (h *Handlers) StatusWebSocket(c *gin.Context) {
	walletAddress := sessionString(c, sessionKeyWallet)
	if walletAddress == "" {
		c.JSON(http.StatusBadRequest, domain.ApiResponse{
			Message: "No payment session in progress",
			Success: false,
			Status:  http.StatusBadRequest,
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Err(err).
			Str("wallet_address", walletAddress).
			Msg("Failed to upgrade to WebSocket")
		return
	}

	client := &ws.WsClient{
		WalletAddress: walletAddress,
		Conn:          conn,
	}
	h.WsHub.Register <- client

	go func() {
		defer func() {
			h.WsHub.Unregister <- client
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
