package services

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Clock is the time source of the circulation services
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock returns the wall clock in UTC
func SystemClock() Clock {
	return realClock{}
}

// IDGen produces loan reference numbers
type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ULIDGenerator returns the default reference generator
func ULIDGenerator() IDGen {
	return ulidGen{}
}

// QueueAdvancer offers a freed copy to the next waiting user of a book
type QueueAdvancer interface {
	AdvanceQueue(ctx context.Context, bookID uint) error
}

// EventPublisher accepts notification events after commit. Implementations
// must not block the caller.
type EventPublisher interface {
	Publish(evt NotificationEvent)
}
