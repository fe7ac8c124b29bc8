package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"studio/internal/citation"
	"studio/internal/domain"
)

// ProgressFunc receives transport byte counters while a request body is sent.
type ProgressFunc func(loaded, total int64)

// ChatReply is a normalized chat answer.
type ChatReply struct {
	Answer    string
	Citations []domain.Citation
}

// noAnswer is shown when a successful chat response carries no text.
const noAnswer = "No response from backend."

// Upload sends file as the single "file" field of a multipart form.
func (c *Client) Upload(ctx context.Context, file domain.FileCandidate, progress ProgressFunc) Result[domain.UploadResult] {
	f, err := os.Open(file.Path)
	if err != nil {
		return Fail[domain.UploadResult](&Error{Kind: KindNetwork, Detail: "could not open " + file.Name, Err: err})
	}
	defer f.Close()

	name := file.Name
	if name == "" {
		name = filepath.Base(file.Path)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", domain.AcceptedMIMEType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return Fail[domain.UploadResult](&Error{Kind: KindNetwork, Err: err})
	}
	if _, err := io.Copy(part, f); err != nil {
		return Fail[domain.UploadResult](&Error{Kind: KindNetwork, Detail: "could not read " + name, Err: err})
	}
	if err := mw.Close(); err != nil {
		return Fail[domain.UploadResult](&Error{Kind: KindNetwork, Err: err})
	}

	total := int64(buf.Len())
	body := &progressReader{r: bytes.NewReader(buf.Bytes()), total: total, fn: progress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.paths.UploadPath), body)
	if err != nil {
		return Fail[domain.UploadResult](&Error{Kind: KindNetwork, Err: err})
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, apiErr := c.send(req)
	if apiErr != nil {
		return Fail[domain.UploadResult](apiErr)
	}
	return normalizeUpload(resp)
}

type uploadFields struct {
	PaperID     flexString `json:"paper_id"`
	EmbeddingID flexString `json:"embedding_id"`
	Chunks      int        `json:"chunks"`
	FileName    string     `json:"file_name"`
	Summary     string     `json:"summary"`
}

// normalizeUpload accepts the nested /api/upload shape, the flat /ingest/pdf
// shape, or a bare acknowledgement without fields.
func normalizeUpload(resp *response) Result[domain.UploadResult] {
	var env envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return Ok(domain.UploadResult{})
	}
	if e := env.failed(resp.status); e != nil {
		return Fail[domain.UploadResult](e)
	}
	var fields uploadFields
	src := resp.body
	if len(env.Data) > 0 && env.Data[0] == '{' {
		src = env.Data
	}
	if err := json.Unmarshal(src, &fields); err != nil {
		return Fail[domain.UploadResult](&Error{Kind: KindContract, Status: resp.status, Err: err})
	}
	return Ok(domain.UploadResult{
		PaperID:     string(fields.PaperID),
		EmbeddingID: string(fields.EmbeddingID),
		Chunks:      fields.Chunks,
		FileName:    fields.FileName,
		Summary:     fields.Summary,
	})
}

// Chat sends one stateless question.
func (c *Client) Chat(ctx context.Context, message string) Result[ChatReply] {
	resp, apiErr := c.postJSON(ctx, c.paths.ChatPath, map[string]string{"message": message})
	if apiErr != nil {
		return Fail[ChatReply](apiErr)
	}
	return normalizeChat(resp)
}

type wireCitation struct {
	Index    *int       `json:"index"`
	ID       flexString `json:"id"`
	SourceID flexString `json:"source_id"`
	Snippet  *string    `json:"snippet"`
}

func normalizeChat(resp *response) Result[ChatReply] {
	var payload struct {
		envelope
		Response  *string        `json:"response"`
		Answer    *string        `json:"answer"`
		Citations []wireCitation `json:"citations"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return Fail[ChatReply](&Error{Kind: KindContract, Status: resp.status, Err: err})
	}
	if e := payload.failed(resp.status); e != nil {
		return Fail[ChatReply](e)
	}

	answer := noAnswer
	switch {
	case payload.Response != nil && *payload.Response != "":
		answer = *payload.Response
	case payload.Answer != nil && *payload.Answer != "":
		answer = *payload.Answer
	}

	raw := make([]citation.Raw, len(payload.Citations))
	for i, wc := range payload.Citations {
		id := string(wc.ID)
		if id == "" {
			id = string(wc.SourceID)
		}
		raw[i] = citation.Raw{Index: wc.Index, SourceID: id, Snippet: wc.Snippet}
	}
	return Ok(ChatReply{Answer: answer, Citations: citation.Normalize(raw)})
}

// Library lists every stored paper.
func (c *Client) Library(ctx context.Context) Result[[]domain.LibraryEntry] {
	resp, apiErr := c.getJSON(ctx, c.paths.LibraryPath)
	if apiErr != nil {
		return Fail[[]domain.LibraryEntry](apiErr)
	}
	return normalizeLibrary(resp)
}

type wireEntry struct {
	ID        flexString `json:"id"`
	Title     string     `json:"title"`
	Year      int        `json:"year"`
	Authors   string     `json:"authors"`
	Author    string     `json:"author"`
	Source    string     `json:"source"`
	CreatedAt string     `json:"created_at"`
	Tags      []string   `json:"tags"`
}

// normalizeLibrary accepts {success, data: [...]} or a bare array.
func normalizeLibrary(resp *response) Result[[]domain.LibraryEntry] {
	src := bytes.TrimSpace(resp.body)
	if len(src) > 0 && src[0] == '{' {
		var env envelope
		if err := json.Unmarshal(src, &env); err != nil {
			return Fail[[]domain.LibraryEntry](&Error{Kind: KindContract, Status: resp.status, Err: err})
		}
		if e := env.failed(resp.status); e != nil {
			return Fail[[]domain.LibraryEntry](e)
		}
		src = env.Data
	}
	var wire []wireEntry
	if len(src) > 0 && string(src) != "null" {
		if err := json.Unmarshal(src, &wire); err != nil {
			return Fail[[]domain.LibraryEntry](&Error{Kind: KindContract, Status: resp.status, Err: err})
		}
	}
	out := make([]domain.LibraryEntry, 0, len(wire))
	for _, w := range wire {
		authors := w.Authors
		if authors == "" {
			authors = w.Author
		}
		out = append(out, domain.LibraryEntry{
			ID:        string(w.ID),
			Title:     w.Title,
			Year:      w.Year,
			Authors:   authors,
			Source:    w.Source,
			CreatedAt: parseTimestamp(w.CreatedAt),
			Tags:      w.Tags,
		})
	}
	return Ok(out)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp returns the zero time for values it cannot read.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Analytics fetches one aggregate snapshot.
func (c *Client) Analytics(ctx context.Context) Result[domain.AnalyticsSnapshot] {
	resp, apiErr := c.getJSON(ctx, c.paths.AnalyticsPath)
	if apiErr != nil {
		return Fail[domain.AnalyticsSnapshot](apiErr)
	}
	return normalizeAnalytics(resp)
}

type wireRanked struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type wireAnalytics struct {
	TopKeyword      *string      `json:"top_keyword"`
	NewestPaper     *string      `json:"newest_paper"`
	MostQueried     *string      `json:"most_queried"`
	LibrarySize     *int         `json:"library_size"`
	EmbeddingsCount *int         `json:"embeddings_count"`
	ChatCount       *int         `json:"chat_count"`
	LastImport      *string      `json:"last_import"`
	TopicChart      []wireRanked `json:"topic_chart"`
	SourceChart     []wireRanked `json:"source_chart"`
}

func normalizeAnalytics(resp *response) Result[domain.AnalyticsSnapshot] {
	var env envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return Fail[domain.AnalyticsSnapshot](&Error{Kind: KindContract, Status: resp.status, Err: err})
	}
	if e := env.failed(resp.status); e != nil {
		return Fail[domain.AnalyticsSnapshot](e)
	}
	src := resp.body
	if len(env.Data) > 0 && env.Data[0] == '{' {
		src = env.Data
	}
	var w wireAnalytics
	if err := json.Unmarshal(src, &w); err != nil {
		return Fail[domain.AnalyticsSnapshot](&Error{Kind: KindContract, Status: resp.status, Err: err})
	}
	return Ok(domain.AnalyticsSnapshot{
		TopKeyword:      deref(w.TopKeyword),
		NewestPaper:     deref(w.NewestPaper),
		MostQueried:     deref(w.MostQueried),
		LibrarySize:     w.LibrarySize,
		EmbeddingsCount: w.EmbeddingsCount,
		ChatCount:       w.ChatCount,
		LastImport:      deref(w.LastImport),
		Topics:          ranked(w.TopicChart),
		Sources:         ranked(w.SourceChart),
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ranked(in []wireRanked) []domain.RankedItem {
	out := make([]domain.RankedItem, 0, len(in))
	for _, r := range in {
		out = append(out, domain.RankedItem{Label: r.Label, Value: int(r.Value)})
	}
	return out
}

// progressReader reports cumulative bytes read to fn.
type progressReader struct {
	r      io.Reader
	loaded int64
	total  int64
	fn     ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		if p.fn != nil {
			p.fn(p.loaded, p.total)
		}
	}
	return n, err
}
