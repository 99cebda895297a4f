// Package channel carries per-frame presentation output (alignment guides,
// follower offsets) from the drag controller to whoever renders it.
package channel

// Sender accepts values. Implementations must not block the caller for
// longer than a frame.
type Sender[T any] interface {
	Send(T)
}

// Receiver is the consuming side of a Channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Channel is a Sender whose values are read from Receive until Close.
type Channel[T any] interface {
	Sender[T]
	Receiver[T]
	Close()
}

// SenderFunc turns a function into a Sender.
type SenderFunc[T any] func(T)

func (f SenderFunc[T]) Send(v T) { f(v) }

// Discard is a Sender that drops every value.
func Discard[T any]() Sender[T] {
	return SenderFunc[T](func(T) {})
}
