package broker

import "errors"

// Broker lifecycle and backpressure error types.
var (
	ErrBrokerAlreadyRunning = errors.New("broker is already running")
	ErrBrokerNotRunning     = errors.New("broker is not running")
	ErrPublishChannelFull   = errors.New("broker publish channel is full")
	ErrSubscribeChannelFull = errors.New("broker subscribe channel is full")
)
