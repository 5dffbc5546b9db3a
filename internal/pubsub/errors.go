package pubsub

import "errors"

var ErrClosed = errors.New("pubsub: broker closed")
