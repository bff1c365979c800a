package panel

import (
	"context"
	"errors"
	"sync"
	"time"

	"aritech2mqtt/internal/ats"
	"aritech2mqtt/internal/log"
)

// Dispatcher serializes commands per entity: at most one command is in
// flight for any given EntityID, while commands for distinct entities run
// concurrently. Each command gets its own timeout and resolves to exactly
// one CommandResult.
type Dispatcher struct {
	logger  *log.Logger
	timeout time.Duration

	mu    sync.Mutex
	locks map[EntityID]*sync.Mutex
}

func NewDispatcher(logger *log.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		logger:  logger,
		timeout: timeout,
		locks:   make(map[EntityID]*sync.Mutex),
	}
}

func (d *Dispatcher) entityLock(id EntityID) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[id]
	if !ok {
		l = &sync.Mutex{}
		d.locks[id] = l
	}
	return l
}

// Submit runs fn under the entity's lock with the configured timeout and
// maps its outcome to a CommandResult. The error is returned alongside
// for logging; callers decide on Result alone.
func (d *Dispatcher) Submit(ctx context.Context, id EntityID, fn func(context.Context) error) (CommandResult, error) {
	l := d.entityLock(id)
	l.Lock()
	defer l.Unlock()

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	elapsed := time.Since(start)

	result := resultOf(err)
	if err != nil {
		d.logger.Debug("Command for %s resolved %s after %s: %v", id, result, elapsed.Round(time.Millisecond), err)
	} else {
		d.logger.Debug("Command for %s acknowledged after %s", id, elapsed.Round(time.Millisecond))
	}
	commandsTotal.WithLabelValues(id.Kind.String(), result.String()).Inc()
	return result, err
}

func resultOf(err error) CommandResult {
	switch {
	case err == nil:
		return ResultAcknowledged
	case errors.As(err, new(*ats.RejectionError)):
		return ResultRejected
	case errors.As(err, new(*ats.AuthError)):
		return ResultRejected
	case errors.Is(err, context.DeadlineExceeded):
		return ResultTimedOut
	case errors.Is(err, context.Canceled),
		errors.Is(err, ats.ErrClosed),
		errors.Is(err, ats.ErrNotConnected):
		return ResultCancelled
	default:
		return ResultTimedOut
	}
}
