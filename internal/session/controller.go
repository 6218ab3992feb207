// Package session drives the interactive flow: it asks what to transfer,
// optionally dedupes first, runs the transfer and prints the outcome.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/lyallcooper/shuttle/internal/config"
	"github.com/lyallcooper/shuttle/internal/db"
	"github.com/lyallcooper/shuttle/internal/fclones"
	"github.com/lyallcooper/shuttle/internal/output"
	"github.com/lyallcooper/shuttle/internal/rsync"
	"github.com/lyallcooper/shuttle/internal/transfer"
)

// Context carries what a session remembers and where it keeps files. It is
// passed explicitly; nothing is stored in package state.
type Context struct {
	LastLocalPath string
	LastRemote    string
	CaptureDir    string
	LogDir        string
	LogEnabled    bool
}

// Settings persists remembered values between sessions. *db.DB implements it.
type Settings interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

var _ Settings = (*db.DB)(nil)

// LoadContext fills the remembered paths from settings, keeping base's
// values where nothing was stored
func LoadContext(settings Settings, base Context) (Context, error) {
	sc := base
	if settings == nil {
		return sc, nil
	}
	local, err := settings.GetSetting(db.SettingLastLocalPath)
	if err != nil {
		return sc, errors.Errorf("loading remembered local path: %w", err)
	}
	if local != "" {
		sc.LastLocalPath = local
	}
	remote, err := settings.GetSetting(db.SettingLastRemote)
	if err != nil {
		return sc, errors.Errorf("loading remembered remote: %w", err)
	}
	if remote != "" {
		sc.LastRemote = remote
	}
	return sc, nil
}

// Transferer starts transfers. *transfer.Orchestrator implements it.
type Transferer interface {
	Start(ctx context.Context, req transfer.Request) (*transfer.Task, error)
}

var _ Transferer = (*transfer.Orchestrator)(nil)

// Deduper removes duplicate files. *fclones.Executor implements it.
type Deduper interface {
	Dedupe(ctx context.Context, dir string, dryRun bool, progressChan chan<- fclones.Progress, log io.Writer) (*fclones.DedupeResult, error)
}

// Logs supplies raw output destinations when --log is set. *logging.Session implements it.
type Logs interface {
	TransferLogPath() string
	OpenDedupeLog() (io.WriteCloser, string, error)
}

// Deps are the collaborators of a Controller
type Deps struct {
	Prompter    Prompter
	Transfers   Transferer
	Deduper     Deduper // nil disables the dedupe step
	Settings    Settings
	Logs        Logs
	Out         io.Writer
	Spinner     SpinnerFunc // nil disables spinners
	SudoDefault bool
}

// Controller runs interactive sessions
type Controller struct {
	deps Deps
	sc   Context
}

// NewController creates a controller for one session
func NewController(deps Deps, sc Context) *Controller {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	return &Controller{deps: deps, sc: sc}
}

// Context returns the session context, including values remembered during the session
func (c *Controller) Context() Context {
	return c.sc
}

var directions = []string{
	"push  (local → remote)",
	"pull  (remote → local)",
}

// Run asks for a transfer, optionally dedupes, runs it and prints the outcome
func (c *Controller) Run(ctx context.Context) error {
	p := c.deps.Prompter

	idx, err := p.Select("Direction", directions)
	if err != nil {
		return err
	}
	direction := rsync.DirectionPush
	if idx == 1 {
		direction = rsync.DirectionPull
	}

	localLabel := "Local source (trailing / sends its contents)"
	if direction == rsync.DirectionPull {
		localLabel = "Local destination"
	}
	local, err := p.Input(localLabel, c.sc.LastLocalPath, validateLocal(direction))
	if err != nil {
		return err
	}
	local = ExpandLocal(local)

	remote, err := p.Input("Remote (user@host:/path)", c.sc.LastRemote, validateRemote)
	if err != nil {
		return err
	}
	remote = strings.TrimSpace(remote)

	c.remember(ctx, local, remote)

	if direction == rsync.DirectionPush && c.deps.Deduper != nil {
		if err := c.maybeDedupe(ctx, local); err != nil {
			return err
		}
	}

	req := transfer.Request{Direction: direction, Source: local, Destination: remote}
	if direction == rsync.DirectionPull {
		req.Source, req.Destination = remote, local
	}

	if req.Options.DryRun, err = p.Confirm("Dry run?", false); err != nil {
		return err
	}
	if req.Options.UseRemoteSudo, err = p.Confirm("Use sudo for the remote rsync?", c.deps.SudoDefault); err != nil {
		return err
	}
	if req.Options.RunInBackground, err = p.Confirm("Run in the background?", false); err != nil {
		return err
	}
	if direction == rsync.DirectionPush && !req.Options.DryRun {
		if req.DeleteAfter, err = p.Confirm("Delete local files once the push is verified?", false); err != nil {
			return err
		}
	}

	c.describe(req)
	ok, err := p.Confirm("Start transfer?", true)
	if err != nil {
		return err
	}
	if !ok {
		return errors.WithStack(ErrAborted)
	}

	return c.Execute(ctx, req)
}

// Execute runs a transfer, waiting with a spinner when it runs in the
// background, and prints the outcome
func (c *Controller) Execute(ctx context.Context, req transfer.Request) error {
	if req.LogPath == "" && c.deps.Logs != nil {
		req.LogPath = c.deps.Logs.TransferLogPath()
	}

	task, err := c.deps.Transfers.Start(ctx, req)
	if err != nil {
		return err
	}

	if req.Options.RunInBackground && !task.Detached() {
		spin := c.spinner("Transferring in the background; waiting to verify before deleting")
		<-task.Done()
		spin.Stop()
	}

	res, err := task.Wait()
	if res != nil {
		if res.Report != nil && len(res.Report.Records())+len(res.Report.KeptDueToFailure) > 0 {
			output.Legend(c.deps.Out)
		}
		output.Result(c.deps.Out, res)
	}
	return err
}

// Dedupe runs fclones on dir with a progress spinner and prints the outcome
func (c *Controller) Dedupe(ctx context.Context, dir string, dryRun bool) error {
	var log io.Writer
	if c.deps.Logs != nil {
		w, path, err := c.deps.Logs.OpenDedupeLog()
		if err != nil {
			return err
		}
		if w != nil {
			defer w.Close()
			log = w
			zerolog.Ctx(ctx).Info().Str("log", path).Msg("writing fclones output")
		}
	}

	spin := c.spinner("Looking for duplicates")
	progress := make(chan fclones.Progress, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			text := p.PhaseName
			if p.PhasePercent >= 0 {
				text = fmt.Sprintf("%s (%.0f%%)", p.PhaseName, p.PhasePercent)
			}
			spin.UpdateText(fmt.Sprintf("[%d/%d] %s", p.PhaseNum, p.PhaseTotal, text))
		}
	}()

	res, err := c.deps.Deduper.Dedupe(ctx, dir, dryRun, progress, log)
	close(progress)
	<-done
	spin.Stop()

	if res != nil {
		output.Dedupe(c.deps.Out, res)
	}
	return err
}

func (c *Controller) maybeDedupe(ctx context.Context, dir string) error {
	p := c.deps.Prompter

	run, err := p.Confirm("Remove duplicates with fclones first?", false)
	if err != nil || !run {
		return err
	}
	dryRun, err := p.Confirm("Only list duplicates (dry run)?", true)
	if err != nil {
		return err
	}

	dedupeErr := c.Dedupe(ctx, dir, dryRun)
	if dedupeErr == nil {
		return nil
	}

	fmt.Fprintf(c.deps.Out, "%s dedupe failed: %v\n", color.New(color.FgRed).Sprint("✗"), dedupeErr)
	cont, err := p.Confirm("Continue with the transfer anyway?", false)
	if err != nil {
		return err
	}
	if !cont {
		return errors.WrapWith(dedupeErr, ErrAborted)
	}
	return nil
}

func (c *Controller) remember(ctx context.Context, local, remote string) {
	c.sc.LastLocalPath = local
	c.sc.LastRemote = remote
	if c.deps.Settings == nil {
		return
	}
	log := zerolog.Ctx(ctx)
	if err := c.deps.Settings.SetSetting(db.SettingLastLocalPath, local); err != nil {
		log.Warn().Err(err).Msg("failed to remember local path")
	}
	if err := c.deps.Settings.SetSetting(db.SettingLastRemote, remote); err != nil {
		log.Warn().Err(err).Msg("failed to remember remote")
	}
}

func (c *Controller) describe(req transfer.Request) {
	w := c.deps.Out
	bold := color.New(color.Bold)
	fmt.Fprintf(w, "\n%s %s → %s\n", bold.Sprint(string(req.Direction)), req.Source, req.Destination)

	var flags []string
	if req.Options.DryRun {
		flags = append(flags, "dry run")
	}
	if req.Options.UseRemoteSudo {
		flags = append(flags, "remote sudo")
	}
	if req.Options.RunInBackground {
		flags = append(flags, "background")
	}
	if req.DeleteAfter {
		flags = append(flags, color.New(color.FgYellow).Sprintf("delete local files from %s", transfer.DeletionBase(req.Source)))
	}
	if len(flags) > 0 {
		fmt.Fprintf(w, "  %s\n", strings.Join(flags, ", "))
	}
}

func (c *Controller) spinner(text string) Spinner {
	if c.deps.Spinner == nil {
		return noopSpinner{}
	}
	s, err := c.deps.Spinner(text)
	if err != nil {
		return noopSpinner{}
	}
	return s
}

// ExpandLocal expands ~ and cleans a local path, keeping a trailing slash
// since it changes what rsync sends
func ExpandLocal(path string) string {
	path = strings.TrimSpace(path)
	trailing := strings.HasSuffix(path, "/") && path != "/"
	path = config.ExpandPath(path)
	if trailing {
		path += "/"
	}
	return path
}

func validateLocal(direction rsync.Direction) func(string) error {
	return func(input string) error {
		path := ExpandLocal(input)
		if path == "" {
			return errors.New("path is required")
		}
		info, err := os.Stat(path)
		if direction == rsync.DirectionPush {
			if err != nil {
				return errors.New("path does not exist")
			}
			return nil
		}
		if err == nil && !info.IsDir() {
			return errors.New("destination must be a directory")
		}
		return nil
	}
}

func validateRemote(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return errors.New("remote is required")
	}
	if !strings.Contains(input, ":") {
		return errors.New("expected host:path")
	}
	return nil
}
