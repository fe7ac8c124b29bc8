package upload

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"studio/internal/apiclient"
	"studio/internal/domain"
)

// fakeUploader replays byte counters and then returns a fixed result.
type fakeUploader struct {
	steps  []int64
	total  int64
	result apiclient.Result[domain.UploadResult]
	seen   domain.FileCandidate
}

func (f *fakeUploader) Upload(_ context.Context, file domain.FileCandidate, progress apiclient.ProgressFunc) apiclient.Result[domain.UploadResult] {
	f.seen = file
	for _, s := range f.steps {
		progress(s, f.total)
	}
	return f.result
}

func pdfCandidate(name string) domain.FileCandidate {
	return domain.FileCandidate{Path: "/tmp/" + name, Name: name, Size: 1024, MIMEType: domain.AcceptedMIMEType}
}

func newOrchestrator(notices *[]Notice) *Orchestrator {
	return New(Options{InitialProgress: 10, ProgressCap: 95}, NotifierFunc(func(n Notice) {
		if notices != nil {
			*notices = append(*notices, n)
		}
	}), nil)
}

func TestSubmit_SuccessScenario(t *testing.T) {
	var notices []Notice
	o := newOrchestrator(&notices)
	require.NoError(t, o.SelectFile(pdfCandidate("paper.pdf")))

	up := &fakeUploader{
		steps:  []int64{100, 500, 1000},
		total:  1000,
		result: apiclient.Ok(domain.UploadResult{PaperID: "42", EmbeddingID: "7", Chunks: 18}),
	}
	var observed []int
	err := o.Submit(context.Background(), up, func(task domain.UploadTask) {
		observed = append(observed, task.Progress)
		if task.Status == domain.UploadUploading {
			require.Less(t, task.Progress, 100)
		}
	})
	require.NoError(t, err)

	task := o.Task()
	require.Equal(t, domain.UploadSucceeded, task.Status)
	require.Equal(t, 100, task.Progress)
	require.Equal(t, &domain.UploadResult{PaperID: "42", EmbeddingID: "7", Chunks: 18}, task.Result)
	require.Empty(t, task.Error)
	require.Equal(t, "paper.pdf", up.seen.Name)
	require.Equal(t, 10, observed[0])
	require.Equal(t, 100, observed[len(observed)-1])
	require.Equal(t, []Notice{{Success: true, Text: "Upload complete"}}, notices)
}

func TestSubmit_ServerFailureUsesDetail(t *testing.T) {
	var notices []Notice
	o := newOrchestrator(&notices)
	require.NoError(t, o.SelectFile(pdfCandidate("scan.pdf")))

	up := &fakeUploader{result: apiclient.Fail[domain.UploadResult](&apiclient.Error{
		Kind: apiclient.KindServer, Status: http.StatusBadRequest, Detail: "No extractable text found in PDF",
	})}
	require.NoError(t, o.Submit(context.Background(), up, nil))

	task := o.Task()
	require.Equal(t, domain.UploadFailed, task.Status)
	require.Nil(t, task.Result)
	require.Equal(t, "No extractable text found in PDF", task.Error)
	require.Less(t, task.Progress, 100)
	require.Equal(t, []Notice{{Success: false, Text: "No extractable text found in PDF"}}, notices)
}

func TestSubmit_NetworkAndServerMessagesDiffer(t *testing.T) {
	run := func(e *apiclient.Error) string {
		o := newOrchestrator(nil)
		require.NoError(t, o.SelectFile(pdfCandidate("a.pdf")))
		require.NoError(t, o.Submit(context.Background(), &fakeUploader{result: apiclient.Fail[domain.UploadResult](e)}, nil))
		return o.Task().Error
	}
	network := run(&apiclient.Error{Kind: apiclient.KindNetwork})
	server := run(&apiclient.Error{Kind: apiclient.KindServer, Status: http.StatusInternalServerError})
	require.NotEqual(t, network, server)
	require.Contains(t, network, "Upload failed")
	require.Contains(t, server, "Upload failed")
}

func TestSelectFile_RejectsNonPDF(t *testing.T) {
	o := newOrchestrator(nil)
	require.NoError(t, o.SelectFile(pdfCandidate("keep.pdf")))
	before := o.Task()

	err := o.SelectFile(domain.FileCandidate{Name: "notes.docx", MIMEType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"})
	require.ErrorIs(t, err, ErrUnsupportedType)
	require.Equal(t, before, o.Task())
}

func TestSelectFile_RejectedWhileUploading(t *testing.T) {
	o := newOrchestrator(nil)
	require.NoError(t, o.SelectFile(pdfCandidate("first.pdf")))
	_, err := o.Begin()
	require.NoError(t, err)

	require.ErrorIs(t, o.SelectFile(pdfCandidate("second.pdf")), ErrBusy)
	require.Equal(t, "first.pdf", o.Task().File.Name)
}

func TestSelectFile_ClearsPriorOutcome(t *testing.T) {
	o := newOrchestrator(nil)
	require.NoError(t, o.SelectFile(pdfCandidate("a.pdf")))
	require.NoError(t, o.Submit(context.Background(), &fakeUploader{result: apiclient.Ok(domain.UploadResult{PaperID: "1"})}, nil))

	require.NoError(t, o.SelectFile(pdfCandidate("b.pdf")))
	task := o.Task()
	require.Equal(t, domain.UploadSelected, task.Status)
	require.Nil(t, task.Result)
	require.Empty(t, task.Error)
	require.Zero(t, task.Progress)
}

func TestBegin_Preconditions(t *testing.T) {
	o := newOrchestrator(nil)
	_, err := o.Begin()
	require.ErrorIs(t, err, ErrNoFile)

	require.NoError(t, o.SelectFile(pdfCandidate("a.pdf")))
	job, err := o.Begin()
	require.NoError(t, err)
	require.Equal(t, 10, o.Task().Progress)

	_, err = o.Begin()
	require.ErrorIs(t, err, ErrBusy)

	o.Settle(job.Generation, apiclient.Fail[domain.UploadResult](&apiclient.Error{Kind: apiclient.KindNetwork}))
	_, err = o.Begin()
	require.NoError(t, err, "a failed attempt can be resubmitted")
}

func TestResetAfterDisplay_IgnoresNewerSelection(t *testing.T) {
	o := newOrchestrator(nil)
	require.NoError(t, o.SelectFile(pdfCandidate("a.pdf")))
	require.NoError(t, o.Submit(context.Background(), &fakeUploader{result: apiclient.Ok(domain.UploadResult{})}, nil))
	settled := o.Task().Generation

	require.NoError(t, o.SelectFile(pdfCandidate("b.pdf")))
	require.False(t, o.ResetAfterDisplay(settled))
	require.Equal(t, domain.UploadSelected, o.Task().Status)

	require.NoError(t, o.Submit(context.Background(), &fakeUploader{result: apiclient.Ok(domain.UploadResult{})}, nil))
	require.True(t, o.ResetAfterDisplay(o.Task().Generation))
	require.Equal(t, domain.UploadIdle, o.Task().Status)
	require.Nil(t, o.Task().File)
}

func TestSettle_StaleGenerationIgnored(t *testing.T) {
	o := newOrchestrator(nil)
	require.NoError(t, o.SelectFile(pdfCandidate("a.pdf")))
	job, err := o.Begin()
	require.NoError(t, err)

	o.Progress(job.Generation+1, 90, 100)
	o.Settle(job.Generation+1, apiclient.Ok(domain.UploadResult{}))
	require.Equal(t, domain.UploadUploading, o.Task().Status)
	require.Equal(t, 10, o.Task().Progress)
}

func TestProperty_SelectionTracksLastValid(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		o := newOrchestrator(nil)
		var want *string
		n := rapid.IntRange(1, 25).Draw(rt, "n")
		for i := 0; i < n; i++ {
			name := rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "name")
			mime := rapid.SampledFrom([]string{domain.AcceptedMIMEType, "text/plain", "image/png", "application/zip"}).Draw(rt, "mime")
			err := o.SelectFile(domain.FileCandidate{Name: name, MIMEType: mime})
			if mime == domain.AcceptedMIMEType {
				if err != nil {
					rt.Fatalf("valid selection rejected: %v", err)
				}
				nm := name
				want = &nm
			} else if err == nil {
				rt.Fatalf("invalid selection %q accepted", mime)
			}
		}
		got := o.Task().File
		if want == nil {
			if got != nil {
				rt.Fatalf("file selected without any valid candidate")
			}
			return
		}
		if got == nil || got.Name != *want {
			rt.Fatalf("selected %v, want %q", got, *want)
		}
	})
}

func TestProperty_ProgressMonotonicAndHundredOnlyOnSuccess(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		o := newOrchestrator(nil)
		if err := o.SelectFile(pdfCandidate("p.pdf")); err != nil {
			rt.Fatal(err)
		}
		job, err := o.Begin()
		if err != nil {
			rt.Fatal(err)
		}
		total := rapid.Int64Range(1, 1<<20).Draw(rt, "total")
		steps := rapid.SliceOf(rapid.Int64Range(0, total)).Draw(rt, "steps")
		last := o.Task().Progress
		for _, s := range steps {
			o.Progress(job.Generation, s, total)
			p := o.Task().Progress
			if p < last {
				rt.Fatalf("progress went from %d to %d", last, p)
			}
			if p >= 100 {
				rt.Fatalf("progress reached %d before confirmation", p)
			}
			last = p
		}
		succeed := rapid.Bool().Draw(rt, "succeed")
		if succeed {
			o.Settle(job.Generation, apiclient.Ok(domain.UploadResult{}))
			if o.Task().Progress != 100 {
				rt.Fatalf("progress %d after success", o.Task().Progress)
			}
		} else {
			o.Settle(job.Generation, apiclient.Fail[domain.UploadResult](&apiclient.Error{Kind: apiclient.KindServer}))
			if o.Task().Progress == 100 {
				rt.Fatalf("progress reached 100 on failure")
			}
		}
	})
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"  /tmp/paper.pdf \n":        "/tmp/paper.pdf",
		"'/tmp/my paper.pdf'":        "/tmp/my paper.pdf",
		`"/tmp/my paper.pdf"`:        "/tmp/my paper.pdf",
		`/tmp/my\ paper.pdf`:         "/tmp/my paper.pdf",
		"file:///tmp/my%20paper.pdf": "/tmp/my paper.pdf",
		"/tmp/a.pdf\n/tmp/b.pdf":     "/tmp/a.pdf",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizePath(in), "input %q", in)
	}
}

func TestInspect_SniffsContent(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "renamed.bin")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4\n%âãÏÓ\n"), 0o644))
	notPDF := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(notPDF, []byte("just some notes, not a pdf\n"), 0o644))

	c, err := Inspect(pdfPath)
	require.NoError(t, err)
	require.Equal(t, domain.AcceptedMIMEType, c.MIMEType)
	require.Equal(t, "renamed.bin", c.Name)
	require.Zero(t, c.Pages, "truncated document has no readable pages")

	c, err = Inspect(notPDF)
	require.NoError(t, err)
	require.NotEqual(t, domain.AcceptedMIMEType, c.MIMEType)

	_, err = Inspect(dir)
	require.Error(t, err)
}
