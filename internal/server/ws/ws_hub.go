package ws

import (
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zemetsskiy/subgate/internal/domain"
)

// WsHub fans payment status updates out to browser connections. Clients
// register keyed by the wallet address they are waiting on, so a status
// push reaches only the tab that opened that payment.
type WsHub struct {
	Clients    map[string]map[*websocket.Conn]bool
	Broadcast  chan WsMessage
	Register   chan *WsClient
	Unregister chan *WsClient
	Logger     zerolog.Logger
}

type WsClient struct {
	WalletAddress string
	Conn          *websocket.Conn
}

type WsMessage struct {
	Type          string              `json:"type"`
	WalletAddress string              `json:"wallet_address"`
	Status        domain.StatusReport `json:"status"`
}

func NewWsHub(logger zerolog.Logger) *WsHub {
	return &WsHub{
		Clients:    make(map[string]map[*websocket.Conn]bool),
		Broadcast:  make(chan WsMessage, 100),
		Register:   make(chan *WsClient, 100),
		Unregister: make(chan *WsClient, 100),
		Logger:     logger,
	}
}

func (h *WsHub) Run() {
	for {
		select {
		case client := <-h.Register:
			if h.Clients[client.WalletAddress] == nil {
				h.Clients[client.WalletAddress] = make(map[*websocket.Conn]bool)
			}
			h.Clients[client.WalletAddress][client.Conn] = true
			h.Logger.Info().
				Str("wallet_address", client.WalletAddress).
				Int("connection_count", len(h.Clients[client.WalletAddress])).
				Msg("WebSocket client registered")

		case client := <-h.Unregister:
			if clients, ok := h.Clients[client.WalletAddress]; ok {
				delete(clients, client.Conn)
				if len(clients) == 0 {
					delete(h.Clients, client.WalletAddress)
				}
				client.Conn.Close()
				h.Logger.Info().
					Str("wallet_address", client.WalletAddress).
					Msg("WebSocket client unregistered")
			}

		case message := <-h.Broadcast:
			clients, ok := h.Clients[message.WalletAddress]
			if !ok {
				continue
			}
			for conn := range clients {
				if err := conn.WriteJSON(message); err != nil {
					h.Logger.Err(err).
						Str("wallet_address", message.WalletAddress).
						Str("type", message.Type).
						Msg("Failed to send WebSocket message")
					conn.Close()
					delete(clients, conn)
				}
			}
			if len(clients) == 0 {
				delete(h.Clients, message.WalletAddress)
			}
		}
	}
}

// BroadcastStatus pushes a status report to every connection watching the
// wallet address. Non-blocking from the caller's point of view.
func (h *WsHub) BroadcastStatus(walletAddress string, report domain.StatusReport) {
	h.Broadcast <- WsMessage{
		Type:          "payment_status",
		WalletAddress: walletAddress,
		Status:        report,
	}
}
