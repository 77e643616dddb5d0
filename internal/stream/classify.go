package stream

import (
	"errors"
	"net/http"
	"strings"
)

// Failure classifies why a connection attempt or open stream ended.
type Failure int

const (
	FailureTransient Failure = iota
	FailureRateLimit
)

func (f Failure) String() string {
	switch f {
	case FailureRateLimit:
		return "rate_limit"
	default:
		return "transient"
	}
}

// ErrStreamClosed is reported when the server ends the stream without an
// error of its own.
var ErrStreamClosed = errors.New("stream closed by remote")

type statusCoder interface {
	StatusCode() int
}

var rateLimitMessages = []string{
	"rate limit exceeded",
	"too many requests",
	"toomanyconnections",
	"too many connections",
}

// Classify decides how the supervisor reacts to err. Rate limiting is
// recognised by an HTTP 429 status anywhere in the chain or by message.
func Classify(err error) Failure {
	if err == nil {
		return FailureTransient
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() == http.StatusTooManyRequests {
		return FailureRateLimit
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range rateLimitMessages {
		if strings.Contains(msg, pattern) {
			return FailureRateLimit
		}
	}
	return FailureTransient
}
