package session

import "errors"

var (
	MalformedResponseErr = errors.New("malformed authentication response")
	NotAuthenticatedErr  = errors.New("not authenticated")
)
