// Package gateway is the privileged boundary: every enforcement-tool
// invocation funnels through here, argument-array only, re-validated even
// when callers already validated.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	serr "shaperd/internal/errors"
	"shaperd/internal/validate"
)

// pkexec exit codes: 126 when the authorization dialog is dismissed, 127 when
// the user is not authorized.
const (
	pkexecExitDismissed     = 126
	pkexecExitNotAuthorized = 127
)

// Status reports whether shaping is currently active on an interface.
type Status struct {
	Enabled bool
	Detail  string
}

// Options configures a Runner. Zero values fall back to sensible defaults.
type Options struct {
	PkexecPath string
	ShaperPath string
	TCPath     string
	Timeout    time.Duration
	Executor   CommandExecutor
	LookPath   func(string) (string, error)
}

func (o Options) withDefaults() Options {
	if o.PkexecPath == "" {
		o.PkexecPath = "pkexec"
	}
	if o.ShaperPath == "" {
		o.ShaperPath = "wondershaper"
	}
	if o.TCPath == "" {
		o.TCPath = "tc"
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	o.Executor = ensureExecutor(o.Executor)
	if o.LookPath == nil {
		o.LookPath = exec.LookPath
	}
	return o
}

// Runner invokes the enforcement tools through pkexec. The primary tool is
// wondershaper; raw tc commands serve as the fallback mechanism.
type Runner struct {
	logger   *slog.Logger
	pkexec   string
	shaper   string
	tc       string
	timeout  time.Duration
	executor CommandExecutor
	lookPath func(string) (string, error)
}

// New constructs a Runner and logs a warning when no enforcement tool is
// reachable on PATH. A missing tool is not fatal here; each call reports its
// own failure.
func New(logger *slog.Logger, opts Options) *Runner {
	opts = opts.withDefaults()
	r := &Runner{
		logger:   logger,
		pkexec:   opts.PkexecPath,
		shaper:   opts.ShaperPath,
		tc:       opts.TCPath,
		timeout:  opts.Timeout,
		executor: opts.Executor,
		lookPath: opts.LookPath,
	}

	if _, err := r.lookPath(r.shaper); err != nil {
		if _, tcErr := r.lookPath(r.tc); tcErr != nil && logger != nil {
			logger.Warn("no enforcement tool found on PATH",
				slog.String("shaper", r.shaper),
				slog.String("tc", r.tc))
		}
	}
	return r
}

// Apply establishes the given limits on iface. Inputs are re-validated here
// regardless of what callers did.
func (r *Runner) Apply(ctx context.Context, iface string, downMbps, upMbps int) error {
	if err := r.validateTarget(iface); err != nil {
		return err
	}
	if err := validate.Mbps(downMbps); err != nil {
		return err
	}
	if err := validate.Mbps(upMbps); err != nil {
		return err
	}

	cmd := newApplyCommand(iface, downMbps, upMbps)

	if r.shaperAvailable() {
		output, err := r.runPrivileged(ctx, r.shaper, cmd.ShaperArgs(), "apply")
		if err == nil {
			return nil
		}
		if serr.IsKind(err, serr.KindAuthorizationDenied) {
			return err
		}
		fbErr := r.applyWithTC(ctx, cmd)
		if fbErr == nil {
			return nil
		}
		var all serr.MultiError
		all.Add(err)
		all.Add(fbErr)
		return serr.New(serr.KindGateway, all.ErrorOrNil(), serr.ErrorContext{
			Operation: "apply",
			Interface: iface,
			Output:    strings.TrimSpace(output),
		})
	}

	return r.applyWithTC(ctx, cmd)
}

// Disable removes shaping from iface.
func (r *Runner) Disable(ctx context.Context, iface string) error {
	if err := r.validateTarget(iface); err != nil {
		return err
	}

	cmd := clearCommand{Iface: iface}

	if r.shaperAvailable() {
		_, err := r.runPrivileged(ctx, r.shaper, cmd.ShaperArgs(), "disable")
		if err == nil {
			return nil
		}
		if serr.IsKind(err, serr.KindAuthorizationDenied) {
			return err
		}
	}

	return r.disableWithTC(ctx, cmd)
}

// CheckStatus reports whether shaping is active on iface. The qdisc listing
// is readable without escalation.
func (r *Runner) CheckStatus(ctx context.Context, iface string) (Status, error) {
	if err := r.validateTarget(iface); err != nil {
		return Status{}, err
	}

	ctxRun, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := statusCommand{Iface: iface}.Args()
	output, code, err := r.executor.Run(ctxRun, r.tc, args)
	if err != nil || code != 0 {
		return Status{}, serr.New(
			serr.KindGateway,
			fmt.Errorf("status query failed (exit %d): %w", code, errOrExit(err, code)),
			serr.ErrorContext{Operation: "status", Interface: iface, Output: strings.TrimSpace(output)},
		)
	}

	lower := strings.ToLower(output)
	enabled := strings.Contains(lower, "tbf") || strings.Contains(lower, "htb")
	return Status{Enabled: enabled, Detail: strings.TrimSpace(output)}, nil
}

func (r *Runner) validateTarget(iface string) error {
	if !validate.InterfaceName(iface) {
		return serr.New(
			serr.KindValidation,
			fmt.Errorf("interface name %q fails the allow-list", iface),
			serr.ErrorContext{Operation: "gateway_validate", Interface: iface},
		)
	}
	return nil
}

func (r *Runner) shaperAvailable() bool {
	_, err := r.lookPath(r.shaper)
	return err == nil
}

// runPrivileged executes tool with args through pkexec and classifies the
// outcome. Prompt denial is never retried here.
func (r *Runner) runPrivileged(ctx context.Context, tool string, args []string, operation string) (string, error) {
	ctxRun, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	full := append([]string{tool}, args...)
	output, code, err := r.executor.Run(ctxRun, r.pkexec, full)
	argStr := strings.Join(full, " ")

	if err != nil {
		return output, serr.New(
			serr.KindGateway,
			fmt.Errorf("run %s: %w", r.pkexec, err),
			serr.ErrorContext{Operation: operation, Command: argStr},
		)
	}

	switch code {
	case 0:
		if r.logger != nil && strings.TrimSpace(output) != "" {
			r.logger.Debug("tool output",
				slog.String("cmd", r.pkexec),
				slog.String("args", argStr),
				slog.String("output", strings.TrimSpace(output)))
		}
		return output, nil
	case pkexecExitDismissed, pkexecExitNotAuthorized:
		return output, serr.New(
			serr.KindAuthorizationDenied,
			fmt.Errorf("authorization denied (exit %d)", code),
			serr.ErrorContext{Operation: operation, Command: argStr},
		)
	default:
		return output, serr.New(
			serr.KindGateway,
			fmt.Errorf("%s exited %d", tool, code),
			serr.ErrorContext{Operation: operation, Command: argStr, Output: strings.TrimSpace(output)},
		)
	}
}

// runPrivilegedOptional suppresses expected failures (already-removed qdiscs
// and the like) so cleanup paths stay quiet.
func (r *Runner) runPrivilegedOptional(ctx context.Context, tool string, args []string, operation string, suppressed []string) error {
	output, err := r.runPrivileged(ctx, tool, args, operation)
	if err == nil {
		return nil
	}
	if serr.IsKind(err, serr.KindAuthorizationDenied) {
		return err
	}
	if containsAny(output, suppressed) || containsAny(err.Error(), suppressed) {
		return nil
	}
	return err
}

func (r *Runner) applyWithTC(ctx context.Context, cmd applyCommand) error {
	if _, err := r.lookPath(r.tc); err != nil {
		return serr.New(
			serr.KindGateway,
			fmt.Errorf("no enforcement tool available: %w", err),
			serr.ErrorContext{Operation: "apply", Interface: cmd.Iface},
		)
	}

	if _, err := r.runPrivileged(ctx, r.tc, cmd.EgressArgs(), "apply_tc_egress"); err != nil {
		return err
	}
	if _, err := r.runPrivileged(ctx, r.tc, cmd.IngressQdiscArgs(), "apply_tc_ingress"); err != nil {
		return err
	}
	_ = r.runPrivilegedOptional(ctx, r.tc, cmd.IngressFilterDeleteArgs(), "apply_tc_filter_del", expectedCleanupErrors)
	if _, err := r.runPrivileged(ctx, r.tc, cmd.IngressFilterAddArgs(), "apply_tc_filter_add"); err != nil {
		return err
	}
	return nil
}

func (r *Runner) disableWithTC(ctx context.Context, cmd clearCommand) error {
	if _, err := r.lookPath(r.tc); err != nil {
		return serr.New(
			serr.KindGateway,
			fmt.Errorf("no enforcement tool available: %w", err),
			serr.ErrorContext{Operation: "disable", Interface: cmd.Iface},
		)
	}

	var all serr.MultiError
	all.Add(r.runPrivilegedOptional(ctx, r.tc, cmd.RootDeleteArgs(), "disable_tc_root", expectedCleanupErrors))
	all.Add(r.runPrivilegedOptional(ctx, r.tc, cmd.IngressDeleteArgs(), "disable_tc_ingress", expectedCleanupErrors))
	return all.ErrorOrNil()
}

var expectedCleanupErrors = []string{
	"no such file",
	"no such qdisc",
	"invalid handle",
	"invalid argument",
	"cannot find",
}

func containsAny(message string, substrings []string) bool {
	if message == "" || len(substrings) == 0 {
		return false
	}
	lower := strings.ToLower(message)
	for _, sub := range substrings {
		if sub == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func errOrExit(err error, code int) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("exit status %d", code)
}
