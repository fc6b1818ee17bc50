package notification

import (
	"context"
	"errors"
	"log"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice is a transient user-visible message.
type Notice struct {
	UserID  string `json:"user_id"`
	Level   Level  `json:"level"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

// Sink delivers notices. Implementations must not block for long.
type Sink interface {
	Notify(ctx context.Context, n Notice) error
}

// LogSink writes notices to the process log.
type LogSink struct{}

func (LogSink) Notify(ctx context.Context, n Notice) error {
	log.Printf("[Notice] user=%s level=%s code=%s order=%s: %s", n.UserID, n.Level, n.Code, n.OrderID, n.Message)
	return nil
}

// Sinks fans a notice out to every sink.
type Sinks []Sink

func (s Sinks) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, sink := range s {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
