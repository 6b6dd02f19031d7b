package events

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPublishRunsHandlersInOrderAndSwallowsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewInMemoryDispatcher(zap.New(core))

	var order []string
	d.Subscribe(EventCommentAdded, func(context.Context, Event) error {
		order = append(order, "first")
		return errors.New("smtp down")
	})
	d.Subscribe(EventCommentAdded, func(context.Context, Event) error {
		order = append(order, "second")
		panic("bad handler")
	})
	d.Subscribe(EventCommentAdded, func(context.Context, Event) error {
		order = append(order, "third")
		return nil
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		order = append(order, "other type")
		return nil
	})

	d.Publish(context.Background(), Event{Type: EventCommentAdded, TicketID: "t1"})

	if len(order) != 3 || order[0] != "first" || order[2] != "third" {
		t.Fatalf("handlers ran as %v", order)
	}
	if logs.Len() != 2 {
		t.Fatalf("expected a warning and an error log, got %d entries", logs.Len())
	}
}
