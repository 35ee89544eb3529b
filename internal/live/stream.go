// Package live connects the strategy engine to a real-time bar stream and a
// real trading account.
package live

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

const barBufferSize = 512

// streamMessage is one element of the message arrays the Alpaca data stream
// sends. Control and data messages share the envelope; Type discriminates.
type streamMessage struct {
	Type       string    `json:"T"`
	Msg        string    `json:"msg,omitempty"`
	Code       int       `json:"code,omitempty"`
	Symbol     string    `json:"S,omitempty"`
	Open       float64   `json:"o,omitempty"`
	High       float64   `json:"h,omitempty"`
	Low        float64   `json:"l,omitempty"`
	Close      float64   `json:"c,omitempty"`
	Volume     float64   `json:"v,omitempty"`
	TradeCount int64     `json:"n,omitempty"`
	VWAP       float64   `json:"vw,omitempty"`
	Timestamp  time.Time `json:"t,omitempty"`
}

type streamRequest struct {
	Action string   `json:"action"`
	Key    string   `json:"key,omitempty"`
	Secret string   `json:"secret,omitempty"`
	Bars   []string `json:"bars,omitempty"`
}

// Stream consumes minute bars from an Alpaca-protocol market data websocket.
type Stream struct {
	url    string
	key    string
	secret string
	logger *logger.Logger
	conn   *websocket.Conn
	bars   chan types.Bar
}

// NewStream creates a stream client for the given websocket endpoint.
func NewStream(url, key, secret string, log *logger.Logger) *Stream {
	return &Stream{
		url:    url,
		key:    key,
		secret: secret,
		logger: log,
		bars:   make(chan types.Bar, barBufferSize),
	}
}

// Connect dials the stream and authenticates. The server greets with a
// connected message, then acknowledges the credentials or reports an error.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeStreamClosed, err, "failed to dial %s", s.url)
	}
	s.conn = conn

	if _, err := s.readControl(); err != nil {
		return err
	}

	if err := conn.WriteJSON(streamRequest{Action: "auth", Key: s.key, Secret: s.secret}); err != nil {
		return errors.Wrap(errors.ErrCodeStreamClosed, "failed to send auth request", err)
	}

	ack, err := s.readControl()
	if err != nil {
		return err
	}
	if ack.Type == "error" {
		return errors.Newf(errors.ErrCodeStreamAuthFailed, "stream authentication failed: %s", ack.Msg)
	}

	s.logger.Info("market data stream authenticated", zap.String("url", s.url))

	return nil
}

// Subscribe requests minute bars for the given symbols.
func (s *Stream) Subscribe(symbols []string) error {
	if err := s.conn.WriteJSON(streamRequest{Action: "subscribe", Bars: symbols}); err != nil {
		return errors.Wrap(errors.ErrCodeStreamClosed, "failed to subscribe", err)
	}

	s.logger.Info("subscribed to bar stream", zap.Strings("symbols", symbols))

	return nil
}

// Bars returns the channel incoming bars are delivered on. The channel is
// closed when Run exits.
func (s *Stream) Bars() <-chan types.Bar {
	return s.bars
}

// Run reads the stream until the context is cancelled or the connection
// drops, forwarding bar messages to the Bars channel.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.bars)

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		var messages []streamMessage
		if err := s.conn.ReadJSON(&messages); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return errors.Wrap(errors.ErrCodeStreamClosed, "stream read failed", err)
		}

		for _, message := range messages {
			s.handleMessage(ctx, message)
		}
	}
}

func (s *Stream) handleMessage(ctx context.Context, message streamMessage) {
	switch message.Type {
	case "b":
		bar := types.Bar{
			Symbol:     message.Symbol,
			Timeframe:  types.TimeframeMinute,
			Timestamp:  message.Timestamp.UTC(),
			Open:       message.Open,
			High:       message.High,
			Low:        message.Low,
			Close:      message.Close,
			Volume:     message.Volume,
			TradeCount: message.TradeCount,
			VWAP:       message.VWAP,
		}

		select {
		case s.bars <- bar:
		case <-ctx.Done():
		}
	case "error":
		s.logger.Error("stream error message",
			zap.Int("code", message.Code),
			zap.String("msg", message.Msg))
	case "subscription", "success":
		s.logger.Debug("stream control message",
			zap.String("type", message.Type),
			zap.String("msg", message.Msg))
	}
}

// Close tears down the websocket connection.
func (s *Stream) Close() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *Stream) readControl() (streamMessage, error) {
	var messages []streamMessage
	if err := s.conn.ReadJSON(&messages); err != nil {
		return streamMessage{}, errors.Wrap(errors.ErrCodeStreamClosed, "stream read failed", err)
	}
	if len(messages) == 0 {
		return streamMessage{}, errors.New(errors.ErrCodeStreamClosed, "empty control message")
	}

	return messages[0], nil
}
