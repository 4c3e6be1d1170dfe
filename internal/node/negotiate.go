package node

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vectornav-ng/internal/vn"
)

var (
	// ErrFatalNegotiation wraps a non-transient fault seen while negotiating.
	ErrFatalNegotiation = stderrors.New("node: fatal error during baud negotiation")
	// ErrNoDeviceCommunication means the link came up but the device did not answer.
	ErrNoDeviceCommunication = stderrors.New("node: no device communication")
)

type Outcome int

const (
	OutcomeExhausted Outcome = iota
	OutcomeConnected
)

func (o Outcome) String() string {
	if o == OutcomeConnected {
		return "connected"
	}
	return "exhausted"
}

type NegotiateOptions struct {
	Port string
	// Target is the baud rate the device is switched to once reachable.
	Target int
	// Candidates are tried in order. Defaults to vn.SupportedBaudRates.
	Candidates []int
	// Incompatible is never used for a connection, neither as candidate nor
	// as target. Defaults to vn.IncompatibleBaudRate.
	Incompatible int

	ResponseTimeout time.Duration
	RetransmitDelay time.Duration
	// SettleDelay is waited after disconnecting from a failed candidate.
	SettleDelay time.Duration

	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

type NegotiationResult struct {
	Outcome Outcome `json:"outcome"`
	// Baud is the rate the port is open at after a connected outcome.
	Baud      int   `json:"baud,omitempty"`
	Candidate int   `json:"candidate,omitempty"`
	Attempts  int   `json:"attempts"`
	Connects  int   `json:"connects"`
	Skipped   int   `json:"skipped"`
	LastErr   error `json:"-"`
}

// Negotiate finds the rate the device is currently listening at and switches
// it to opts.Target. It tries each candidate once, so it always terminates.
//
// Transient faults move on to the next candidate. Any other fault aborts
// with an error wrapping ErrFatalNegotiation. Running out of candidates is
// not an error; the caller decides from Outcome.
func Negotiate(ctx context.Context, s vn.Sensor, opts NegotiateOptions) (NegotiationResult, error) {
	var res NegotiationResult
	if s == nil {
		return res, errors.New("node: sensor is nil")
	}
	candidates := opts.Candidates
	if candidates == nil {
		candidates = vn.SupportedBaudRates
	}
	incompatible := opts.Incompatible
	if incompatible == 0 {
		incompatible = vn.IncompatibleBaudRate
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempts++
		log.Infof("Connecting with default at %d", cand)

		if cand == incompatible || opts.Target == incompatible {
			res.Skipped++
			continue
		}

		s.SetResponseTimeout(opts.ResponseTimeout)
		s.SetRetransmitDelay(opts.RetransmitDelay)

		res.Connects++
		err := s.Connect(ctx, opts.Port, cand)
		if err == nil {
			err = s.ChangeBaudRate(ctx, opts.Target)
		}
		if err == nil {
			res.Outcome = OutcomeConnected
			res.Candidate = cand
			res.Baud = s.Baudrate()
			log.Infof("Connected baud rate is %d", res.Baud)
			return res, nil
		}

		res.LastErr = err
		if derr := s.Disconnect(); derr != nil {
			log.Debugw("disconnect after failed candidate", "baud", cand, "error", derr)
		}
		if !vn.IsTransient(err) {
			return res, errors.Wrapf(ErrFatalNegotiation, "%s@%d: %v", opts.Port, cand, err)
		}
		log.Debugw("candidate failed", "baud", cand, "error", err)

		if opts.SettleDelay > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-clk.After(opts.SettleDelay):
			}
		}
	}
	return res, nil
}
