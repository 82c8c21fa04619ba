package natsadapter

import (
	"encoding/json"
	"errors"

	"github.com/golang-jwt/jwt/v5"
	nats "github.com/nats-io/nats.go"

	"github.com/example/otp-auth-service/internal/usecase"
)

type sessionVerifier interface {
	Verify(token string) (*usecase.SessionClaims, error)
}

// VerifyHandler answers session checks from peer services that share the
// auth cookie but not the signing secret.
type VerifyHandler struct {
	verifier  sessionVerifier
	respondFn func(msg *nats.Msg, resp verifyResponse)
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	OK        bool   `json:"ok"`
	UserID    string `json:"user_id,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

func NewVerifyHandler(verifier sessionVerifier) *VerifyHandler {
	return &VerifyHandler{verifier: verifier, respondFn: respond}
}

func (h *VerifyHandler) Subscribe(conn *nats.Conn, subject, queue string) (*nats.Subscription, error) {
	if conn == nil {
		return nil, errors.New("nats connection is nil")
	}
	return conn.QueueSubscribe(subject, queue, h.handle)
}

func (h *VerifyHandler) handle(msg *nats.Msg) {
	var req verifyRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.respondFn(msg, verifyResponse{Error: "invalid_payload"})
		return
	}
	claims, err := h.verifier.Verify(req.Token)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrUnauthenticated):
			h.respondFn(msg, verifyResponse{Error: "token_missing"})
		case errors.Is(err, jwt.ErrTokenExpired):
			h.respondFn(msg, verifyResponse{Error: "expired"})
		default:
			h.respondFn(msg, verifyResponse{Error: "invalid_token"})
		}
		return
	}
	resp := verifyResponse{OK: true, UserID: claims.UserID}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.Unix()
	}
	h.respondFn(msg, resp)
}

func respond(msg *nats.Msg, resp verifyResponse) {
	data, _ := json.Marshal(resp)
	_ = msg.Respond(data)
}
