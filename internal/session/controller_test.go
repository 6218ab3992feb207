package session

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/shuttle/internal/db"
	"github.com/lyallcooper/shuttle/internal/fclones"
	"github.com/lyallcooper/shuttle/internal/rsync"
	"github.com/lyallcooper/shuttle/internal/transfer"
)

func init() {
	color.NoColor = true
}

// scriptedPrompter answers prompts from a queue, in order
type scriptedPrompter struct {
	t       *testing.T
	answers []any
	labels  []string
}

func (p *scriptedPrompter) next(label string) any {
	p.t.Helper()
	p.labels = append(p.labels, label)
	if len(p.answers) == 0 {
		p.t.Fatalf("unexpected prompt %q", label)
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a
}

func (p *scriptedPrompter) Select(label string, items []string) (int, error) {
	return p.next(label).(int), nil
}

func (p *scriptedPrompter) Input(label, def string, validate func(string) error) (string, error) {
	v := p.next(label).(string)
	if v == "" {
		v = def
	}
	if validate != nil {
		if err := validate(v); err != nil {
			p.t.Fatalf("answer %q to %q rejected: %v", v, label, err)
		}
	}
	return v, nil
}

func (p *scriptedPrompter) Confirm(label string, def bool) (bool, error) {
	return p.next(label).(bool), nil
}

// fakeRsync writes canned output and succeeds
type fakeRsync struct {
	output    string
	exitCode  int
	transfers int
	lastSrc   string
	lastDst   string
	lastOpts  rsync.TransferOptions
}

func (f *fakeRsync) CheckInstalled(ctx context.Context) error    { return nil }
func (f *fakeRsync) Version(ctx context.Context) (string, error) { return "rsync 3.2.7", nil }

func (f *fakeRsync) Transfer(ctx context.Context, source, destination string, opts rsync.TransferOptions, out io.Writer) (rsync.TransferStatus, error) {
	f.transfers++
	f.lastSrc, f.lastDst, f.lastOpts = source, destination, opts
	io.WriteString(out, f.output)
	return rsync.TransferStatus{ExitCode: f.exitCode}, nil
}

func (f *fakeRsync) Spawn(ctx context.Context, source, destination string, opts rsync.TransferOptions, out *os.File) (int, error) {
	f.lastSrc, f.lastDst, f.lastOpts = source, destination, opts
	return 99, nil
}

// fakeDeduper records its calls
type fakeDeduper struct {
	calls  int
	dryRun bool
	dir    string
	err    error
}

func (d *fakeDeduper) Dedupe(ctx context.Context, dir string, dryRun bool, progressChan chan<- fclones.Progress, log io.Writer) (*fclones.DedupeResult, error) {
	d.calls++
	d.dir, d.dryRun = dir, dryRun
	progressChan <- fclones.Progress{PhaseNum: 1, PhaseTotal: 6, PhaseName: "Scanning files", PhasePercent: -1}
	return &fclones.DedupeResult{DryRun: dryRun, Groups: 1, RedundantFiles: 2, RedundantBytes: 100}, d.err
}

type recordingSpinner struct {
	texts   []string
	stopped bool
}

func (s *recordingSpinner) UpdateText(text string) { s.texts = append(s.texts, text) }
func (s *recordingSpinner) Stop() error            { s.stopped = true; return nil }

func testSettings(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func mediaTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.mkv"), []byte("0123456789"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.mkv"), []byte("x"), 0o644))
	return dir
}

func TestRun_PushWithDeletion(t *testing.T) {
	src := mediaTree(t)
	settings := testSettings(t)
	rs := &fakeRsync{output: "sending incremental file list\nmovie.mkv\n\nsent 100 bytes  received 20 bytes\n"}
	orch := transfer.New(rs, nil, transfer.Config{CaptureDir: t.TempDir()})

	prompter := &scriptedPrompter{t: t, answers: []any{
		0,          // push
		src + "/",  // local
		"nas:/srv", // remote
		false,      // dedupe?
		false,      // dry run
		true,       // sudo
		false,      // background
		true,       // delete after
		true,       // start
	}}
	var out bytes.Buffer
	c := NewController(Deps{
		Prompter:  prompter,
		Transfers: orch,
		Deduper:   &fakeDeduper{},
		Settings:  settings,
		Out:       &out,
	}, Context{})

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, src+"/", rs.lastSrc)
	assert.Equal(t, "nas:/srv", rs.lastDst)
	assert.True(t, rs.lastOpts.UseRemoteSudo)
	assert.False(t, rs.lastOpts.DryRun)

	assert.NoFileExists(t, filepath.Join(src, "movie.mkv"))
	assert.FileExists(t, filepath.Join(src, "keep.mkv"))
	assert.Contains(t, out.String(), "1 deleted, 0 kept")
	assert.Contains(t, out.String(), "Legend")

	// Paths are remembered for the next session
	sc, err := LoadContext(settings, Context{})
	require.NoError(t, err)
	assert.Equal(t, src+"/", sc.LastLocalPath)
	assert.Equal(t, "nas:/srv", sc.LastRemote)
	assert.Equal(t, sc.LastLocalPath, c.Context().LastLocalPath)
}

func TestRun_DryRunSkipsDeletePrompt(t *testing.T) {
	src := mediaTree(t)
	rs := &fakeRsync{output: "sending incremental file list\nmovie.mkv\n"}
	orch := transfer.New(rs, nil, transfer.Config{CaptureDir: t.TempDir()})

	prompter := &scriptedPrompter{t: t, answers: []any{
		0, src, "nas:/srv",
		true,  // dry run
		false, // sudo
		false, // background
		true,  // start
	}}
	c := NewController(Deps{Prompter: prompter, Transfers: orch, Out: &bytes.Buffer{}}, Context{})

	require.NoError(t, c.Run(context.Background()))
	assert.True(t, rs.lastOpts.DryRun)
	assert.NotContains(t, prompter.labels, "Delete local files once the push is verified?")
	assert.FileExists(t, filepath.Join(src, "movie.mkv"))
}

func TestRun_PullSwapsEndpoints(t *testing.T) {
	local := t.TempDir()
	rs := &fakeRsync{output: "receiving incremental file list\nmovie.mkv\n"}
	orch := transfer.New(rs, nil, transfer.Config{CaptureDir: t.TempDir()})
	deduper := &fakeDeduper{}

	prompter := &scriptedPrompter{t: t, answers: []any{
		1, local, "nas:/srv/",
		false, false, false, // dry run, sudo, background
		true, // start
	}}
	c := NewController(Deps{Prompter: prompter, Transfers: orch, Deduper: deduper, Out: &bytes.Buffer{}}, Context{})

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, "nas:/srv/", rs.lastSrc)
	assert.Equal(t, local, rs.lastDst)
	assert.Equal(t, 0, deduper.calls, "pull never offers dedupe")
}

func TestRun_DeclineAborts(t *testing.T) {
	src := mediaTree(t)
	rs := &fakeRsync{}
	orch := transfer.New(rs, nil, transfer.Config{CaptureDir: t.TempDir()})

	prompter := &scriptedPrompter{t: t, answers: []any{
		0, src, "nas:/srv",
		false, false, false, false, // dry run, sudo, background, delete
		false, // start
	}}
	c := NewController(Deps{Prompter: prompter, Transfers: orch, Out: &bytes.Buffer{}}, Context{})

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, 0, rs.transfers)
}

func TestRun_DefaultsFromContext(t *testing.T) {
	src := mediaTree(t)
	rs := &fakeRsync{}
	orch := transfer.New(rs, nil, transfer.Config{CaptureDir: t.TempDir()})

	prompter := &scriptedPrompter{t: t, answers: []any{
		0, "", "", // accept remembered defaults
		false, false, false, false,
		true,
	}}
	c := NewController(Deps{Prompter: prompter, Transfers: orch, Out: &bytes.Buffer{}},
		Context{LastLocalPath: src, LastRemote: "media@nas:/srv/media/"})

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, src, rs.lastSrc)
	assert.Equal(t, "media@nas:/srv/media/", rs.lastDst)
}

func TestRun_DedupeBeforePush(t *testing.T) {
	src := mediaTree(t)
	rs := &fakeRsync{}
	orch := transfer.New(rs, nil, transfer.Config{CaptureDir: t.TempDir()})
	deduper := &fakeDeduper{}
	spin := &recordingSpinner{}

	prompter := &scriptedPrompter{t: t, answers: []any{
		0, src, "nas:/srv",
		true,  // dedupe?
		false, // dedupe dry run
		false, false, false, false,
		true,
	}}
	var out bytes.Buffer
	c := NewController(Deps{
		Prompter:  prompter,
		Transfers: orch,
		Deduper:   deduper,
		Out:       &out,
		Spinner:   func(string) (Spinner, error) { return spin, nil },
	}, Context{})

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 1, deduper.calls)
	assert.Equal(t, src, deduper.dir)
	assert.False(t, deduper.dryRun)
	assert.True(t, spin.stopped)
	assert.Contains(t, spin.texts, "[1/6] Scanning files")
	assert.Contains(t, out.String(), "removed 2 files")
	assert.Equal(t, 1, rs.transfers)
}

func TestRun_DedupeFailureCanAbort(t *testing.T) {
	src := mediaTree(t)
	rs := &fakeRsync{}
	orch := transfer.New(rs, nil, transfer.Config{CaptureDir: t.TempDir()})
	deduper := &fakeDeduper{err: fclones.ErrDedupeFailed}

	prompter := &scriptedPrompter{t: t, answers: []any{
		0, src, "nas:/srv",
		true, true, // dedupe, dry run
		false, // continue?
	}}
	var out bytes.Buffer
	c := NewController(Deps{Prompter: prompter, Transfers: orch, Deduper: deduper, Out: &out}, Context{})

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	assert.Contains(t, out.String(), "dedupe failed")
	assert.Equal(t, 0, rs.transfers)
}

func TestRun_DedupeFailureCanContinue(t *testing.T) {
	src := mediaTree(t)
	rs := &fakeRsync{}
	orch := transfer.New(rs, nil, transfer.Config{CaptureDir: t.TempDir()})
	deduper := &fakeDeduper{err: fclones.ErrDedupeFailed}

	prompter := &scriptedPrompter{t: t, answers: []any{
		0, src, "nas:/srv",
		true, true, // dedupe, dry run
		true, // continue?
		false, false, false, false,
		true,
	}}
	c := NewController(Deps{Prompter: prompter, Transfers: orch, Deduper: deduper, Out: &bytes.Buffer{}}, Context{})

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 1, rs.transfers)
}

func TestExecute_BackgroundWithDeletionShowsSpinner(t *testing.T) {
	src := mediaTree(t)
	rs := &fakeRsync{output: "sending incremental file list\nmovie.mkv\n"}
	orch := transfer.New(rs, nil, transfer.Config{CaptureDir: t.TempDir()})
	spin := &recordingSpinner{}

	var out bytes.Buffer
	c := NewController(Deps{
		Transfers: orch,
		Out:       &out,
		Spinner:   func(string) (Spinner, error) { return spin, nil },
	}, Context{})

	err := c.Execute(context.Background(), transfer.Request{
		Direction:   rsync.DirectionPush,
		Source:      src + "/",
		Destination: "nas:/srv",
		Options:     transfer.Options{RunInBackground: true},
		DeleteAfter: true,
	})
	require.NoError(t, err)
	assert.True(t, spin.stopped)
	assert.Contains(t, out.String(), "1 deleted, 0 kept")
	assert.NoFileExists(t, filepath.Join(src, "movie.mkv"))
}

func TestExecute_TransferFailure(t *testing.T) {
	src := mediaTree(t)
	rs := &fakeRsync{output: "sending incremental file list\nmovie.mkv\nrsync error: some files could not be transferred (code 23)\n", exitCode: 23}
	orch := transfer.New(rs, nil, transfer.Config{CaptureDir: t.TempDir()})

	var out bytes.Buffer
	c := NewController(Deps{Transfers: orch, Out: &out}, Context{})

	err := c.Execute(context.Background(), transfer.Request{
		Direction:   rsync.DirectionPush,
		Source:      src + "/",
		Destination: "nas:/srv",
		DeleteAfter: true,
	})
	assert.ErrorIs(t, err, transfer.ErrTransferFailed)
	assert.Contains(t, out.String(), "nothing was deleted")
	assert.FileExists(t, filepath.Join(src, "movie.mkv"))
}

func TestExpandLocal(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"/media/incoming/", "/media/incoming/"},
		{"/media/incoming", "/media/incoming"},
		{" /media//incoming/ ", "/media/incoming/"},
		{"~/media/", filepath.Join(home, "media") + "/"},
		{"/", "/"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandLocal(tt.in))
		})
	}
}

func TestValidateRemote(t *testing.T) {
	assert.NoError(t, validateRemote("media@nas:/srv/media/"))
	assert.Error(t, validateRemote(""))
	assert.Error(t, validateRemote("/just/a/path"))
}

func TestValidateLocal(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	push := validateLocal(rsync.DirectionPush)
	assert.NoError(t, push(dir))
	assert.NoError(t, push(file))
	assert.Error(t, push(filepath.Join(dir, "missing")))

	pull := validateLocal(rsync.DirectionPull)
	assert.NoError(t, pull(dir))
	assert.NoError(t, pull(filepath.Join(dir, "new")))
	assert.Error(t, pull(file))
}
