package executor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/relaygate/model"
)

const simulatedOutputLine = "Simulated output"

// ShellConfig holds the shell executor's boot-time tunables.
type ShellConfig struct {
	AllowedCommands []string

	// Phase durations for the simulated session; kept small and
	// configurable only for tests, production uses the zero-value
	// defaults applied in NewShellExecutor.
	ConnectDelay    time.Duration
	DisconnectDelay time.Duration
}

// ShellExecutor simulates a three-phase remote-shell session (connect, run,
// disconnect) against an allowlist of command names, producing
// deterministic structured output per command. Grounded on the teacher's
// SDKHandlerRegistry allowlist-by-name dispatch, with the connect/execute/
// disconnect phases modeled on the context-bounded check pattern in
// health.go's runCheck.
type ShellExecutor struct {
	allowed map[string]bool
	connect time.Duration
	discon  time.Duration
	log     *zap.Logger
}

// NewShellExecutor builds a ShellExecutor from the configured allowlist,
// case-insensitively indexed.
func NewShellExecutor(cfg ShellConfig, log *zap.Logger) *ShellExecutor {
	allowed := make(map[string]bool, len(cfg.AllowedCommands))
	for _, c := range cfg.AllowedCommands {
		allowed[strings.ToLower(c)] = true
	}
	connect := cfg.ConnectDelay
	if connect == 0 {
		connect = 15 * time.Millisecond
	}
	discon := cfg.DisconnectDelay
	if discon == 0 {
		discon = 5 * time.Millisecond
	}
	return &ShellExecutor{allowed: allowed, connect: connect, discon: discon, log: log}
}

// Name returns the executor's stable lowercase tag.
func (s *ShellExecutor) Name() string { return "shell" }

// Execute implements Executor.
func (s *ShellExecutor) Execute(ctx context.Context, env *model.RequestEnvelope, attempt int) *model.ExecutionResult {
	started := time.Now()

	command, present := env.Header("X-PS-Command")
	if !present || command == "" {
		return model.NewFailure(started, time.Now(), model.ErrMissingCommand, "X-PS-Command header is required", false)
	}

	if !s.allowed[strings.ToLower(command)] {
		return model.NewFailure(started, time.Now(),
			model.ErrCommandNotAllowed,
			fmt.Sprintf("command %q is not allowed; allowed commands: %s", command, s.allowedList()),
			false)
	}

	filter, hasFilter := env.Header("X-PS-Filter")
	resultSize := env.HeaderDefault("X-PS-ResultSize", "100")
	maxResults := parseMaxResults(env.HeaderDefault("X-PS-MaxResults", "100"))

	// Guaranteed disconnect on every exit path, mirroring the
	// scoped-session-resource discipline the shell executor owns alone.
	session := newSimulatedSession(s.connect, s.discon)
	defer func() {
		if err := session.disconnect(context.Background()); err != nil && s.log != nil {
			s.log.Warn("shell executor: disconnect failed", zap.Error(err), zap.String("request_id", env.RequestID))
		}
	}()

	if err := session.connect(ctx); err != nil {
		return s.classifySessionError(started, ctx, err)
	}

	renderedCommand := renderCommandLine(command, filter, hasFilter, resultSize)
	stdout, stderr, objects, err := s.runCommand(ctx, command, filter, maxResults)
	if err != nil {
		return s.classifySessionError(started, ctx, err)
	}

	return &model.ExecutionResult{
		Outcome:     model.OutcomeSuccess,
		StartedAt:   started,
		CompletedAt: time.Now(),
		Command:     renderedCommand,
		Stdout:      stdout,
		Stderr:      stderr,
		Objects:     objects,
	}
}

func (s *ShellExecutor) allowedList() string {
	names := make([]string, 0, len(s.allowed))
	for n := range s.allowed {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func (s *ShellExecutor) classifySessionError(started time.Time, ctx context.Context, err error) *model.ExecutionResult {
	if ctx.Err() != nil {
		return model.NewFailure(started, time.Now(), model.ErrTimeout, "shell session cancelled before completion", true)
	}
	msg := strings.ToLower(err.Error())
	transient := strings.Contains(msg, "busy") || strings.Contains(msg, "timeout") || strings.Contains(msg, "unavailable")
	return model.NewFailure(started, time.Now(), model.ErrPSFailure, err.Error(), transient)
}

func renderCommandLine(command, filter string, hasFilter bool, resultSize string) string {
	var b strings.Builder
	b.WriteString(command)
	if hasFilter && filter != "" {
		fmt.Fprintf(&b, " -Filter %q", filter)
	}
	fmt.Fprintf(&b, " -ResultSize %s", resultSize)
	return b.String()
}

func parseMaxResults(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 100
	}
	return n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// runCommand produces deterministic stdout/objects for the known
// allowlisted commands, and a textual echo for any other allowlisted name.
func (s *ShellExecutor) runCommand(ctx context.Context, command, filter string, maxResults int) ([]string, []string, []map[string]string, error) {
	if err := sleepPhase(ctx, 0); err != nil {
		return nil, nil, nil, err
	}

	var stdout []string
	var objects []map[string]string

	switch strings.ToLower(command) {
	case "get-mailbox":
		count := minInt(5, maxResults)
		for i := 0; i < count; i++ {
			obj := map[string]string{
				"DisplayName":        fmt.Sprintf("Mailbox User %d", i+1),
				"PrimarySmtpAddress": fmt.Sprintf("user%d@example.com", i+1),
				"MailboxType":        "UserMailbox",
				"DatabaseName":       fmt.Sprintf("DB%02d", (i%3)+1),
			}
			objects = append(objects, obj)
			stdout = append(stdout, fmt.Sprintf("%s <%s>", obj["DisplayName"], obj["PrimarySmtpAddress"]))
		}
	case "get-user":
		count := minInt(3, maxResults)
		for i := 0; i < count; i++ {
			obj := map[string]string{
				"Name":              fmt.Sprintf("User %d", i+1),
				"UserPrincipalName": fmt.Sprintf("user%d@example.com", i+1),
				"Department":        "Engineering",
			}
			objects = append(objects, obj)
			stdout = append(stdout, fmt.Sprintf("%s (%s)", obj["Name"], obj["UserPrincipalName"]))
		}
	default:
		stdout = append(stdout, fmt.Sprintf("command=%s filter=%s size=%d", command, filter, maxResults))
	}

	stdout = append(stdout, simulatedOutputLine)
	return stdout, nil, objects, nil
}

// simulatedSession models the scoped connect/disconnect lifecycle; its
// release (disconnect) is guaranteed to run by Execute's defer regardless
// of whether connect or run failed.
type simulatedSession struct {
	connectDelay    time.Duration
	disconnectDelay time.Duration
}

func newSimulatedSession(connect, disconnect time.Duration) *simulatedSession {
	return &simulatedSession{connectDelay: connect, disconnectDelay: disconnect}
}

func (s *simulatedSession) connect(ctx context.Context) error {
	return sleepPhase(ctx, s.connectDelay)
}

func (s *simulatedSession) disconnect(ctx context.Context) error {
	return sleepPhase(ctx, s.disconnectDelay)
}

// sleepPhase sleeps d while honoring ctx cancellation, returning ctx.Err()
// if the context is done first.
func sleepPhase(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
