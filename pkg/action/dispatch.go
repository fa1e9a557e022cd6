package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/txn2/sam/pkg/credential"
)

// DefaultTimeout bounds a single executor call.
const DefaultTimeout = 10 * time.Second

// Outcome tags a dispatch result.
type Outcome string

// Dispatch outcomes.
const (
	OutcomeSuccess    Outcome = "SUCCESS"
	OutcomeNeedsInput Outcome = "PENDING"
	OutcomeFailed     Outcome = "ERROR"
)

// FailureKind classifies a failed dispatch.
type FailureKind string

// Failure kinds.
const (
	KindCapability     FailureKind = "capability_unsupported"
	KindUnavailable    FailureKind = "not_implemented"
	KindAuthentication FailureKind = "authentication"
	KindDeviceNotFound FailureKind = "device_not_found"
	KindExternalAPI    FailureKind = "external_api"
	KindUnclassified   FailureKind = "unclassified"
)

// Result is the tagged outcome of dispatching one action.
type Result struct {
	Action  string
	Outcome Outcome

	// Output is set on success.
	Output Output

	// Missing lists absent required parameters when input is needed.
	Missing []string

	// Kind, Message and Err describe a failure. Message is user-facing.
	Kind    FailureKind
	Message string
	Err     error
}

// Success builds a successful result.
func Success(action string, out Output) Result {
	return Result{Action: action, Outcome: OutcomeSuccess, Output: out}
}

// NeedsInput builds a result asking for more parameters.
func NeedsInput(action string, missing []string) Result {
	return Result{Action: action, Outcome: OutcomeNeedsInput, Missing: missing}
}

// Failed builds a failure result.
func Failed(action string, kind FailureKind, message string, err error) Result {
	return Result{Action: action, Outcome: OutcomeFailed, Kind: kind, Message: message, Err: err}
}

// Request is one resolved action to dispatch.
type Request struct {
	Platform   string
	AccountID  string
	Action     string
	Parameters map[string]any
}

// TokenSource resolves and invalidates platform access tokens.
type TokenSource interface {
	ResolveAccessToken(ctx context.Context, platform, accountID string) (string, error)
	Invalidate(ctx context.Context, platform, accountID string) error
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Timeout bounds each executor call.
	Timeout time.Duration

	Logger *slog.Logger
}

// Dispatcher validates and executes canonical actions.
type Dispatcher struct {
	registry *Registry
	caps     CapabilityProvider
	tokens   TokenSource
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry *Registry, caps CapabilityProvider, tokens TokenSource, cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		caps:     caps,
		tokens:   tokens,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
}

// Catalog returns the catalog actions are validated against.
func (d *Dispatcher) Catalog() *Catalog {
	return d.registry.Catalog()
}

// Offered returns the actions platform can run: registered and backed by a
// declared capability. It is never nil.
func (d *Dispatcher) Offered(platform string) []string {
	caps := d.caps.Capabilities(platform)
	out := make([]string, 0)
	for _, name := range d.registry.Actions(platform) {
		if def, ok := d.registry.Catalog().Lookup(name); ok && caps[def.Capability] {
			out = append(out, name)
		}
	}
	return out
}

// Dispatch checks required parameters, then the platform capability, then
// that an executor is registered, then resolves a token and runs the
// executor. The executor is never invoked when a check fails.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	def, ok := d.registry.Catalog().Lookup(req.Action)
	if !ok {
		return Failed(req.Action, KindUnclassified, GenericFailure(req.Platform),
			fmt.Errorf("unknown action %q", req.Action))
	}

	if missing := def.Missing(req.Parameters); len(missing) > 0 {
		return NeedsInput(req.Action, missing)
	}

	if !d.caps.Capabilities(req.Platform)[def.Capability] {
		msg := fmt.Sprintf("%s does not support %s.", DisplayName(req.Platform), Words(req.Action))
		d.logger.Info("action not supported",
			"platform", req.Platform, "action", req.Action, "capability", def.Capability)
		return Failed(req.Action, KindCapability, msg,
			fmt.Errorf("platform %s lacks capability %s for %s", req.Platform, def.Capability, req.Action))
	}

	reg, registered := d.registry.lookup(req.Platform, req.Action)
	if !registered {
		msg := fmt.Sprintf("I can't %s on %s yet.", Words(req.Action), DisplayName(req.Platform))
		d.logger.Info("no executor registered", "platform", req.Platform, "action", req.Action)
		return Failed(req.Action, KindUnavailable, msg,
			fmt.Errorf("no executor for %s on %s", req.Action, req.Platform))
	}

	call := Call{
		Platform:   req.Platform,
		AccountID:  req.AccountID,
		Action:     req.Action,
		Parameters: req.Parameters,
	}
	if !reg.tokenless {
		token, err := d.tokens.ResolveAccessToken(ctx, req.Platform, req.AccountID)
		if err != nil {
			return d.classify(ctx, req, err)
		}
		call.AccessToken = token
	}

	start := time.Now()
	out, err := d.execute(ctx, reg.exec, call)
	if err != nil {
		return d.classify(ctx, req, err)
	}
	d.logger.Debug("action executed",
		"platform", req.Platform, "action", req.Action, "duration_ms", time.Since(start).Milliseconds())
	return Success(req.Action, out)
}

// execute runs exec on its own goroutine so an executor that ignores its
// context cannot hold the turn past the timeout.
func (d *Dispatcher) execute(ctx context.Context, exec Executor, call Call) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type result struct {
		out Output
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("executor panic: %v", p)}
			}
		}()
		out, err := exec(ctx, call)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Output{}, d.timeoutError(call, r.err)
		}
		return r.out, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Output{}, d.timeoutError(call, ctx.Err())
		}
		return Output{}, ctx.Err()
	}
}

func (*Dispatcher) timeoutError(call Call, err error) error {
	var apiErr *ExternalAPIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &ExternalAPIError{Code: http.StatusGatewayTimeout, Platform: call.Platform, Action: call.Action, Err: err}
}

// classify turns an executor or credential error into a failure result.
func (d *Dispatcher) classify(ctx context.Context, req Request, err error) Result {
	var (
		authErr   *credential.AuthenticationError
		deviceErr *DeviceNotFoundError
		apiErr    *ExternalAPIError
		netErr    net.Error
	)
	switch {
	case errors.As(err, &authErr):
		d.logger.Warn("authentication required", "platform", req.Platform, "account_id", req.AccountID, "action", req.Action)
		return Failed(req.Action, KindAuthentication, authErr.UserMessage(), err)

	case errors.As(err, &deviceErr):
		return Failed(req.Action, KindDeviceNotFound, TranslateError(errorNoDevice, req.Platform, req.Action), err)

	case errors.As(err, &apiErr):
		if apiErr.Unauthorized() {
			if ierr := d.tokens.Invalidate(context.WithoutCancel(ctx), req.Platform, req.AccountID); ierr != nil {
				d.logger.Error("invalidating token after 401", "platform", req.Platform, "account_id", req.AccountID, "error", ierr)
			}
		}
		d.logger.Warn("platform call failed",
			"platform", req.Platform, "action", req.Action, "status", apiErr.Code, "error", err)
		return Failed(req.Action, KindExternalAPI, apiErr.UserMessage(), err)

	case errors.As(err, &netErr):
		wrapped := &ExternalAPIError{Platform: req.Platform, Action: req.Action, Err: err}
		d.logger.Warn("platform unreachable", "platform", req.Platform, "action", req.Action, "error", err)
		return Failed(req.Action, KindExternalAPI, wrapped.UserMessage(), wrapped)

	default:
		d.logger.Error("action failed", "platform", req.Platform, "action", req.Action, "error", err)
		return Failed(req.Action, KindUnclassified, GenericFailure(req.Platform),
			fmt.Errorf("executing %s on %s: %w", req.Action, req.Platform, err))
	}
}
