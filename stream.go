package driftmarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/driftsea/market-sdk-go/chain"
)

const (
	// Heartbeat interval
	HeartbeatInterval = 30 * time.Second

	// Reconnect settings
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// Relay action types
const (
	ActionHeartbeat   = "HEARTBEAT"
	ActionSubscribe   = "SUBSCRIBE"
	ActionUnsubscribe = "UNSUBSCRIBE"
)

// Relay channel types
const (
	ChannelOrderStatus = "order.status"
	ChannelMakerOrders = "maker.orders"
)

// SubscribeOrderMessage subscribes to status changes of a single order.
type SubscribeOrderMessage struct {
	Action    string `json:"action"`
	Channel   string `json:"channel"`
	OrderHash string `json:"orderHash"`
}

// SubscribeMakerMessage subscribes to status changes of all orders made by
// one address.
type SubscribeMakerMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
	Maker   string `json:"maker"`
}

// HeartbeatMessage keeps the relay connection alive.
type HeartbeatMessage struct {
	Action string `json:"action"`
}

// relayMsgOrderUpdate tags the relay frames the stream translates into
// OrderEvents. Other frame types are ignored.
const relayMsgOrderUpdate = "orderUpdate"

// orderEventWire is the relay's JSON form of an order update.
type orderEventWire struct {
	MsgType   string `json:"msgType"`
	OrderHash string `json:"orderHash"`
	Maker     string `json:"maker"`
	State     uint8  `json:"state"`
	TxHash    string `json:"txHash"`
	Sequence  uint64 `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

// OrderEvent is one order status change pushed by the relay. Events are
// advisory; read the chain for the authoritative status.
type OrderEvent struct {
	OrderHash common.Hash
	Maker     common.Address
	State     chain.OrderState
	Status    OrderStatus
	TxHash    common.Hash
	Sequence  uint64
	Timestamp int64
}

// OrderEventHandler is a callback for incoming order events.
type OrderEventHandler func(event OrderEvent)

// StreamErrorHandler is a callback for stream errors.
type StreamErrorHandler func(err error)

// StreamConfig holds configuration for the relay stream.
type StreamConfig struct {
	Endpoint             string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	OnEvent              OrderEventHandler
	OnError              StreamErrorHandler
	OnConnect            func()
	OnDisconnect         func()
	Logger               zerolog.Logger
}

// OrderStream is a live feed of order status changes from the network's
// event relay. It reconnects on connection loss and replays its
// subscriptions after reconnecting.
type OrderStream struct {
	config           StreamConfig
	conn             *websocket.Conn
	mu               sync.RWMutex
	connected        bool
	subscriptions    map[string]interface{}
	subMu            sync.RWMutex
	ctx              context.Context
	cancel           context.CancelFunc
	heartbeatTicker  *time.Ticker
	reconnectAttempt int
	log              zerolog.Logger
}

// NewOrderStream creates a relay stream. The endpoint usually comes from
// Client.RelayEndpoint; Connect fails when it is empty.
func NewOrderStream(config StreamConfig) *OrderStream {
	if config.ReconnectInterval == 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	if config.MaxReconnectAttempts == 0 {
		config.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	return &OrderStream{
		config:        config,
		subscriptions: make(map[string]interface{}),
		log:           config.Logger.With().Str("component", "order_stream").Logger(),
	}
}

// Connect establishes the relay connection and starts the reader and
// heartbeat.
func (s *OrderStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.config.Endpoint == "" {
		return &InvalidParamError{Message: "relay endpoint is required"}
	}

	u, err := url.Parse(s.config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to parse relay endpoint: %w", err)
	}

	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(ctx)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}

	s.conn = conn
	s.connected = true
	s.reconnectAttempt = 0

	// stop ends this connection's goroutines without ending the session.
	stop := make(chan struct{})
	s.startHeartbeat(s.ctx, stop)
	go s.readLoop(s.ctx, conn, stop)

	if s.config.OnConnect != nil {
		go s.config.OnConnect()
	}

	s.log.Debug().Str("endpoint", s.config.Endpoint).Msg("relay stream connected")
	return nil
}

// Disconnect closes the relay connection and stops reconnection attempts.
func (s *OrderStream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.disconnect()
}

// disconnect must be called with the lock held.
func (s *OrderStream) disconnect() error {
	if s.ctx == nil && !s.connected {
		return nil
	}

	wasConnected := s.connected
	s.connected = false

	if s.cancel != nil {
		s.cancel()
		s.ctx, s.cancel = nil, nil
	}
	if s.heartbeatTicker != nil {
		s.heartbeatTicker.Stop()
	}

	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}

	if wasConnected && s.config.OnDisconnect != nil {
		go s.config.OnDisconnect()
	}

	return err
}

// IsConnected returns the current connection status.
func (s *OrderStream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// SubscribeOrder subscribes to status changes of one order.
func (s *OrderStream) SubscribeOrder(orderHash common.Hash) error {
	msg := SubscribeOrderMessage{
		Action:    ActionSubscribe,
		Channel:   ChannelOrderStatus,
		OrderHash: orderHash.Hex(),
	}

	if err := s.sendMessage(msg); err != nil {
		return err
	}

	s.subMu.Lock()
	s.subscriptions["order:"+orderHash.Hex()] = msg
	s.subMu.Unlock()

	return nil
}

// UnsubscribeOrder stops status updates for one order.
func (s *OrderStream) UnsubscribeOrder(orderHash common.Hash) error {
	msg := SubscribeOrderMessage{
		Action:    ActionUnsubscribe,
		Channel:   ChannelOrderStatus,
		OrderHash: orderHash.Hex(),
	}

	if err := s.sendMessage(msg); err != nil {
		return err
	}

	s.subMu.Lock()
	delete(s.subscriptions, "order:"+orderHash.Hex())
	s.subMu.Unlock()

	return nil
}

// SubscribeMaker subscribes to status changes of every order made by one
// address.
func (s *OrderStream) SubscribeMaker(maker common.Address) error {
	msg := SubscribeMakerMessage{
		Action:  ActionSubscribe,
		Channel: ChannelMakerOrders,
		Maker:   maker.Hex(),
	}

	if err := s.sendMessage(msg); err != nil {
		return err
	}

	s.subMu.Lock()
	s.subscriptions["maker:"+maker.Hex()] = msg
	s.subMu.Unlock()

	return nil
}

// UnsubscribeMaker stops maker-wide updates for one address.
func (s *OrderStream) UnsubscribeMaker(maker common.Address) error {
	msg := SubscribeMakerMessage{
		Action:  ActionUnsubscribe,
		Channel: ChannelMakerOrders,
		Maker:   maker.Hex(),
	}

	if err := s.sendMessage(msg); err != nil {
		return err
	}

	s.subMu.Lock()
	delete(s.subscriptions, "maker:"+maker.Hex())
	s.subMu.Unlock()

	return nil
}

// Subscriptions returns the keys of the active subscriptions.
func (s *OrderStream) Subscriptions() []string {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	subs := make([]string, 0, len(s.subscriptions))
	for key := range s.subscriptions {
		subs = append(subs, key)
	}
	return subs
}

// sendMessage sends a message over the relay connection.
func (s *OrderStream) sendMessage(msg interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected || s.conn == nil {
		return fmt.Errorf("relay stream not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal relay message: %w", err)
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send relay message: %w", err)
	}

	return nil
}

// startHeartbeat starts the heartbeat ticker. Must be called with the lock
// held.
func (s *OrderStream) startHeartbeat(ctx context.Context, stop chan struct{}) {
	s.heartbeatTicker = time.NewTicker(HeartbeatInterval)
	ticker := s.heartbeatTicker

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := s.sendMessage(HeartbeatMessage{Action: ActionHeartbeat}); err != nil {
					s.reportError(fmt.Errorf("heartbeat failed: %w", err))
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// readLoop reads relay frames until the connection drops or the session
// ends.
func (s *OrderStream) readLoop(ctx context.Context, conn *websocket.Conn, stop chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				// Deliberate disconnect.
				return
			default:
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.reportError(fmt.Errorf("relay read failed: %w", err))
			}
			s.handleDisconnect(stop)
			return
		}

		s.dispatch(data)
	}
}

// dispatch translates one relay frame and hands it to the event handler.
func (s *OrderStream) dispatch(data []byte) {
	var wire orderEventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		s.reportError(fmt.Errorf("malformed relay frame: %w", err))
		return
	}
	if wire.MsgType != relayMsgOrderUpdate {
		return
	}
	if s.config.OnEvent == nil {
		return
	}

	state := chain.OrderState(wire.State)
	s.config.OnEvent(OrderEvent{
		OrderHash: common.HexToHash(wire.OrderHash),
		Maker:     common.HexToAddress(wire.Maker),
		State:     state,
		Status:    chain.TranslateState(state),
		TxHash:    common.HexToHash(wire.TxHash),
		Sequence:  wire.Sequence,
		Timestamp: wire.Timestamp,
	})
}

// handleDisconnect tears the lost connection down and starts reconnection.
func (s *OrderStream) handleDisconnect(stop chan struct{}) {
	s.mu.Lock()
	wasConnected := s.connected
	s.connected = false
	close(stop)
	if s.heartbeatTicker != nil {
		s.heartbeatTicker.Stop()
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	if !wasConnected {
		return
	}

	s.log.Warn().Msg("relay stream disconnected")
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect()
	}

	go s.attemptReconnect()
}

// attemptReconnect retries the connection until it succeeds, the session
// ends, or the attempt limit is reached.
func (s *OrderStream) attemptReconnect() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		return
	}

	for s.reconnectAttempt < s.config.MaxReconnectAttempts {
		s.reconnectAttempt++

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.ReconnectInterval):
		}

		if err := s.Connect(context.Background()); err != nil {
			s.reportError(fmt.Errorf("reconnect attempt %d failed: %w", s.reconnectAttempt, err))
			continue
		}

		s.log.Info().Int("attempts", s.reconnectAttempt).Msg("relay stream reconnected")
		s.resubscribe()
		return
	}

	s.reportError(fmt.Errorf("max reconnect attempts (%d) reached", s.config.MaxReconnectAttempts))
}

// resubscribe replays all tracked subscriptions after a reconnect.
func (s *OrderStream) resubscribe() {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, msg := range s.subscriptions {
		if err := s.sendMessage(msg); err != nil {
			s.reportError(fmt.Errorf("resubscribe failed: %w", err))
		}
	}
}

func (s *OrderStream) reportError(err error) {
	s.log.Debug().Err(err).Msg("relay stream error")
	if s.config.OnError != nil {
		s.config.OnError(err)
	}
}
