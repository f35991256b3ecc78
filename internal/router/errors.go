package router

import "errors"

var (
	ErrRecipientNotConnected = errors.New("recipient not connected")
)
