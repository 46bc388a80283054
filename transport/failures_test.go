package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/miladsoleymani/gatemux/message"
)

func TestClassify(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	tests := []struct {
		name string
		err  error
		want message.FailureCode
	}{
		{"tagged temporary", Temporaryf("carrier busy"), message.FailureTemporary},
		{"tagged permanent", Permanentf("HTTP 404 from carrier"), message.FailurePermanent},
		{"wrapped temporary", fmt.Errorf("send: %w", Temporaryf("busy")), message.FailureTemporary},
		{"deadline exceeded", context.DeadlineExceeded, message.FailureTemporary},
		{"wrapped deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), message.FailureTemporary},
		{"net.Error", refused, message.FailureTemporary},
		{"wrapped net.Error", fmt.Errorf("posting: %w", refused), message.FailureTemporary},
		{"plain error", errors.New("missing message id in response"), message.FailurePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestFailureErrorStrings(t *testing.T) {
	cause := errors.New("tcp reset")
	tmp := &TemporaryFailure{Reason: "carrier unreachable", Err: cause}
	assert.Equal(t, "carrier unreachable: tcp reset", tmp.Error())
	assert.ErrorIs(t, tmp, cause)

	perm := &PermanentFailure{Reason: "bad request"}
	assert.Equal(t, "bad request", perm.Error())
}
