package gateway

import (
	"context"
	"time"

	"github.com/mosaicnetworks/satp/src/net"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type callResult struct {
	resp interface{}
	err  error
}

// call runs rpc up to maxRetries+1 times, each attempt bounded by timeout. A
// refusal by the counterpart is not retried and is returned as the error type
// the counterpart reported; exhausted attempts give a TransportError.
func (g *Gateway) call(ctx context.Context, sessionID string, phase odap.Phase, maxRetries int, timeout time.Duration, rpc func() (interface{}, error)) (interface{}, error) {
	var lastErr error

	attempts := 0
	for attempts <= maxRetries {
		attempts++

		if err := g.checkRunning(sessionID, phase); err != nil {
			return nil, err
		}

		resCh := make(chan callResult, 1)
		go func() {
			resp, err := rpc()
			resCh <- callResult{resp, err}
		}()

		var timer <-chan time.Time
		if timeout > 0 {
			timer = time.After(timeout)
		}

		select {
		case res := <-resCh:
			if res.err == nil {
				return res.resp, nil
			}
			var re *net.RemoteError
			if errors.As(res.err, &re) {
				return nil, remoteError(sessionID, phase, re)
			}
			lastErr = res.err
		case <-timer:
			lastErr = net.ErrTimeout
		case <-ctx.Done():
			return nil, &TransportError{
				SessionID: sessionID,
				Phase:     phase,
				Attempts:  attempts,
				Cause:     ctx.Err(),
			}
		}

		g.logger.WithFields(logrus.Fields{
			"session": sessionID,
			"phase":   phase,
			"attempt": attempts,
			"error":   lastErr,
		}).Debug("Exchange failed")
	}

	return nil, &TransportError{
		SessionID: sessionID,
		Phase:     phase,
		Attempts:  attempts,
		Cause:     lastErr,
	}
}

// callSession is call with the retry parameters negotiated for s.
func (g *Gateway) callSession(ctx context.Context, sessionID string, phase odap.Phase, rpc func() (interface{}, error)) (interface{}, error) {
	s, err := g.store.Get(sessionID)
	if err != nil {
		return nil, storeErr(sessionID, phase, err)
	}

	return g.call(ctx, sessionID, phase, s.MaxRetries, time.Duration(s.MaxTimeout)*time.Millisecond, rpc)
}
