// Package upload owns the lifecycle of one file-selection-to-ingestion flow.
package upload

import (
	"context"
	"errors"
	"math"
	"sync"

	"go.uber.org/zap"

	"studio/internal/apiclient"
	"studio/internal/domain"
)

var (
	ErrUnsupportedType = errors.New("only PDF files are supported")
	ErrNoFile          = errors.New("select a PDF first")
	ErrBusy            = errors.New("an upload is already in progress")
)

// Uploader is the transport the orchestrator submits through.
type Uploader interface {
	Upload(ctx context.Context, file domain.FileCandidate, progress apiclient.ProgressFunc) apiclient.Result[domain.UploadResult]
}

// Notice is a user-facing notification raised when an upload settles.
type Notice struct {
	Success bool
	Text    string
}

// Notifier shows notices to the user.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Options bound the displayed progress while the transfer runs.
type Options struct {
	InitialProgress int
	ProgressCap     int
}

// Job is a started upload attempt.
type Job struct {
	Generation int
	File       domain.FileCandidate
}

// Orchestrator holds the single UploadTask of a flow. It is driven from one
// event loop; progress from the transport reaches it as Events.
type Orchestrator struct {
	task   domain.UploadTask
	opts   Options
	notify Notifier
	log    *zap.Logger
}

// New returns an orchestrator in the Idle state.
func New(opts Options, notify Notifier, log *zap.Logger) *Orchestrator {
	if opts.InitialProgress <= 0 {
		opts.InitialProgress = 10
	}
	if opts.ProgressCap <= opts.InitialProgress || opts.ProgressCap >= 100 {
		opts.ProgressCap = 95
	}
	if notify == nil {
		notify = NotifierFunc(func(Notice) {})
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{opts: opts, notify: notify, log: log}
}

// Task returns a copy of the current task.
func (o *Orchestrator) Task() domain.UploadTask {
	t := o.task
	if t.File != nil {
		f := *t.File
		t.File = &f
	}
	if t.Result != nil {
		r := *t.Result
		t.Result = &r
	}
	return t
}

// SelectFile makes c the active file. Non-PDF candidates and selections made
// while an upload is running are rejected without touching the task.
func (o *Orchestrator) SelectFile(c domain.FileCandidate) error {
	if o.task.Status == domain.UploadUploading {
		return ErrBusy
	}
	if c.MIMEType != domain.AcceptedMIMEType {
		o.log.Debug("rejected selection", zap.String("file", c.Name), zap.String("mime", c.MIMEType))
		return ErrUnsupportedType
	}
	o.task = domain.UploadTask{
		Generation: o.task.Generation + 1,
		File:       &c,
		Status:     domain.UploadSelected,
	}
	o.log.Debug("file selected", zap.String("file", c.Name), zap.Int64("size", c.Size), zap.Int("generation", o.task.Generation))
	return nil
}

// Begin moves a Selected (or previously Failed) task to Uploading and shows
// initial progress before any byte is sent.
func (o *Orchestrator) Begin() (Job, error) {
	switch {
	case o.task.Status == domain.UploadUploading:
		return Job{}, ErrBusy
	case o.task.File == nil, o.task.Status != domain.UploadSelected && o.task.Status != domain.UploadFailed:
		return Job{}, ErrNoFile
	}
	o.task.Status = domain.UploadUploading
	o.task.Progress = o.opts.InitialProgress
	o.task.Result = nil
	o.task.Error = ""
	o.log.Info("upload started", zap.String("file", o.task.File.Name), zap.Int("generation", o.task.Generation))
	return Job{Generation: o.task.Generation, File: *o.task.File}, nil
}

// Progress applies a transport byte count. Progress never decreases and stays
// below 100 until the server confirms success.
func (o *Orchestrator) Progress(generation int, loaded, total int64) {
	if generation != o.task.Generation || o.task.Status != domain.UploadUploading || total <= 0 {
		return
	}
	pct := int(math.Round(float64(loaded) * 100 / float64(total)))
	if pct > o.opts.ProgressCap {
		pct = o.opts.ProgressCap
	}
	if pct > o.task.Progress {
		o.task.Progress = pct
	}
}

// Settle finalizes the attempt and raises a notice either way.
func (o *Orchestrator) Settle(generation int, res apiclient.Result[domain.UploadResult]) {
	if generation != o.task.Generation || o.task.Status != domain.UploadUploading {
		o.log.Debug("ignored settle for inactive upload", zap.Int("generation", generation))
		return
	}
	if res.OK() {
		r := res.Value
		o.task.Status = domain.UploadSucceeded
		o.task.Progress = 100
		o.task.Result = &r
		o.log.Info("upload succeeded", zap.String("paper_id", r.PaperID), zap.Int("chunks", r.Chunks))
		o.notify.Notify(Notice{Success: true, Text: "Upload complete"})
		return
	}
	o.task.Status = domain.UploadFailed
	o.task.Error = res.Err.Message("Upload failed")
	o.log.Warn("upload failed", zap.Stringer("kind", res.Err.Kind), zap.Int("status", res.Err.Status), zap.String("message", o.task.Error))
	o.notify.Notify(Notice{Success: false, Text: o.task.Error})
}

// Apply feeds one transfer event into the task.
func (o *Orchestrator) Apply(ev Event) {
	if ev.Done {
		o.Settle(ev.Generation, ev.Result)
		return
	}
	o.Progress(ev.Generation, ev.Loaded, ev.Total)
}

// Reset returns to Idle. Pending display timers for the old task become no-ops.
func (o *Orchestrator) Reset() {
	o.task = domain.UploadTask{Generation: o.task.Generation + 1}
}

// ResetAfterDisplay resets only if generation is still the settled task on
// screen; a newer selection is left alone.
func (o *Orchestrator) ResetAfterDisplay(generation int) bool {
	if generation != o.task.Generation || !o.task.Status.Terminal() {
		return false
	}
	o.Reset()
	return true
}

// Submit runs a whole attempt on the calling goroutine. Failures end up in
// the task; only precondition errors are returned.
func (o *Orchestrator) Submit(ctx context.Context, up Uploader, onChange func(domain.UploadTask)) error {
	job, err := o.Begin()
	if err != nil {
		return err
	}
	if onChange != nil {
		onChange(o.Task())
	}
	for ev := range Transfer(ctx, up, job) {
		before := o.task.Progress
		o.Apply(ev)
		if onChange != nil && (ev.Done || o.task.Progress != before) {
			onChange(o.Task())
		}
	}
	return nil
}

// Event is one step of a running transfer: a byte count, or the final result.
type Event struct {
	Generation int
	Loaded     int64
	Total      int64
	Done       bool
	Result     apiclient.Result[domain.UploadResult]
}

// Transfer runs job on its own goroutine and streams its events. Progress
// events may be dropped under backpressure; the final Done event never is.
// The channel closes after Done.
func Transfer(ctx context.Context, up Uploader, job Job) <-chan Event {
	ch := make(chan Event, 32)
	go func() {
		defer close(ch)
		var mu sync.Mutex
		finished := false
		progress := func(loaded, total int64) {
			mu.Lock()
			defer mu.Unlock()
			if finished {
				return
			}
			select {
			case ch <- Event{Generation: job.Generation, Loaded: loaded, Total: total}:
			default:
			}
		}
		res := up.Upload(ctx, job.File, progress)
		mu.Lock()
		finished = true
		mu.Unlock()
		ch <- Event{Generation: job.Generation, Done: true, Result: res}
	}()
	return ch
}
