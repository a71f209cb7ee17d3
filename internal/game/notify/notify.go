// Package notify delivers game change signals to interested observers.
// Notifications are best effort hints to refresh, never a state transport:
// observers fetch the authoritative state through the read path, and a lost
// notification never affects game-state correctness.
package notify

import (
	"context"
	"log"
)

// Kind names what changed.
type Kind string

const (
	KindStateUpdated Kind = "state_updated"
	KindTurnChanged  Kind = "turn_changed"
	KindGameEnded    Kind = "game_ended"
)

// Notification describes one change to a game stream. Version is the stream
// head after the append that caused it.
type Notification struct {
	GameID          string
	Version         uint64
	Kind            Kind
	CurrentPlayerID string
	WinnerID        string
}

// Notifier receives change notifications after events were appended.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, n Notification) {
	if f != nil {
		f(ctx, n)
	}
}

// Nop discards all notifications.
func Nop() Notifier {
	return Func(nil)
}

// Log writes notifications to the standard logger. Useful for local runs
// and as a placeholder until a push transport is wired in.
func Log() Notifier {
	return Func(func(ctx context.Context, n Notification) {
		log.Printf("game %s %s, version %d", n.GameID, n.Kind, n.Version)
	})
}

// Multi fans a notification out to every notifier in order.
func Multi(notifiers ...Notifier) Notifier {
	return Func(func(ctx context.Context, n Notification) {
		for _, notifier := range notifiers {
			if notifier != nil {
				notifier.Notify(ctx, n)
			}
		}
	})
}
