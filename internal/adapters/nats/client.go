package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"
)

const requestTimeout = 3 * time.Second

// UserClient tells the user service that an account was created.
type UserClient interface {
	CreateUser(ctx context.Context, userID, email, source, typ string) error
}

type userClient struct {
	conn    *nats.Conn
	subject string
}

func NewUserClient(conn *nats.Conn, subject string) UserClient {
	return &userClient{conn: conn, subject: subject}
}

func (c *userClient) CreateUser(ctx context.Context, userID, email, source, typ string) error {
	payload := map[string]string{"id": userID, "email": email, "source": source, "type": typ}
	return requestAck(ctx, c.conn, c.subject, payload)
}

func requestAck(ctx context.Context, conn *nats.Conn, subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	if msg == nil {
		return fmt.Errorf("empty response from %s", subject)
	}
	return decodeAck(subject, msg.Data)
}

func decodeAck(subject string, data []byte) error {
	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode %s response: %w", subject, err)
	}
	if !resp.OK {
		if resp.Error != "" {
			return errors.New(resp.Error)
		}
		return fmt.Errorf("request to %s failed", subject)
	}
	return nil
}
