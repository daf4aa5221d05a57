package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/auth"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/telemetry"
)

const writeTimeout = 5 * time.Second

type clientMessage struct {
	Type    string `json:"type"`
	Scope   string `json:"scope"`
	AssetID string `json:"asset_id,omitempty"`
}

type serverMessage struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id,omitempty"`
	Scope   string `json:"scope,omitempty"`
	AssetID string `json:"asset_id,omitempty"`
	Message string `json:"message,omitempty"`
}

type Server struct {
	Hub      *Hub
	Verifier auth.Verifier
	Log      logrus.FieldLogger
}

func NewServer(hub *Hub, verifier auth.Verifier) *Server {
	return &Server{
		Hub:      hub,
		Verifier: verifier,
		Log:      logrus.StandardLogger().WithField("component", "ws"),
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			token = bearerToken(r)
		}
		if token == "" {
			telemetry.WSAuthFailure()
			http.Error(w, "missing auth token", http.StatusUnauthorized)
			return
		}

		claims, err := s.Verifier.Verify(r.Context(), token)
		if err != nil || strings.TrimSpace(claims.Subject) == "" {
			telemetry.WSAuthFailure()
			http.Error(w, "invalid auth token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			s.Log.WithError(err).Warn("websocket accept failed")
			return
		}
		defer conn.Close(websocket.StatusInternalError, "server error")

		sessionID := uuid.NewString()
		notifications, err := s.Hub.Add(sessionID, claims.Subject)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "session registration failed")
			return
		}
		defer s.Hub.Remove(sessionID)

		telemetry.WSConnectionOpened()
		defer telemetry.WSConnectionClosed()

		log := s.Log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": claims.Subject})
		log.Debug("session opened")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		if err := writeMessage(ctx, conn, serverMessage{Type: "ready", UserID: claims.Subject}); err != nil {
			return
		}

		replies := make(chan serverMessage)
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			defer cancel()
			s.writeLoop(ctx, conn, notifications, replies)
		}()

		err = s.readLoop(ctx, conn, sessionID, replies)
		cancel()
		<-writerDone

		status := websocket.CloseStatus(err)
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			log.Debug("session closed by client")
		} else if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Debug("session ended")
		}
		conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string, replies chan<- serverMessage) error {
	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err
		}

		reply := s.handleMessage(sessionID, msg)
		select {
		case replies <- reply:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, notifications <-chan serverMessage, replies <-chan serverMessage) {
	for {
		var msg serverMessage
		select {
		case <-ctx.Done():
			return
		case msg = <-replies:
		case next, ok := <-notifications:
			if !ok {
				return
			}
			msg = next
		}
		if err := writeMessage(ctx, conn, msg); err != nil {
			return
		}
	}
}

func (s *Server) handleMessage(sessionID string, msg clientMessage) serverMessage {
	subscribe := false
	switch strings.ToLower(strings.TrimSpace(msg.Type)) {
	case "subscribe":
		subscribe = true
	case "unsubscribe":
	default:
		return serverMessage{Type: "error", Message: "type must be subscribe or unsubscribe"}
	}

	scope := strings.ToLower(strings.TrimSpace(msg.Scope))
	switch scope {
	case "portfolio":
		if subscribe {
			s.Hub.SubscribePortfolio(sessionID)
		} else {
			s.Hub.UnsubscribePortfolio(sessionID)
		}
		return serverMessage{Type: replyType(subscribe), Scope: scope}
	case "asset":
		assetID := strings.ToLower(strings.TrimSpace(msg.AssetID))
		if assetID == "" {
			return serverMessage{Type: "error", Scope: scope, Message: "asset_id is required for asset scope"}
		}
		if subscribe {
			s.Hub.SubscribeAsset(sessionID, assetID)
		} else {
			s.Hub.UnsubscribeAsset(sessionID, assetID)
		}
		return serverMessage{Type: replyType(subscribe), Scope: scope, AssetID: assetID}
	default:
		return serverMessage{Type: "error", Message: "scope must be portfolio or asset"}
	}
}

func replyType(subscribe bool) string {
	if subscribe {
		return "subscribed"
	}
	return "unsubscribed"
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg serverMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func bearerToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}
