package devserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"studio/internal/index"
)

type chatIn struct {
	Message *string `json:"message"`
}

type citationOut struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	Snippet string `json:"snippet"`
}

type paperOut struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

type rankedOut struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// upload wraps ingest in the {success, data} envelope.
func (s *Server) upload(c *gin.Context) {
	p, name, ok := s.ingestFile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"embedding_id": p.EmbeddingID,
			"paper_id":     p.ID,
			"file_name":    name,
			"chunks":       p.Chunks,
			"summary":      p.Summary,
		},
	})
}

func (s *Server) ingest(c *gin.Context) {
	p, _, ok := s.ingestFile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":      "PDF processed",
		"paper_id":     p.ID,
		"embedding_id": p.EmbeddingID,
		"chunks":       p.Chunks,
		"summary":      p.Summary,
	})
}

// ask reads the question; on a bad body it answers the way a validating
// framework would and reports false.
func (s *Server) ask(c *gin.Context) (index.Answer, bool) {
	var in chatIn
	if err := c.ShouldBindJSON(&in); err != nil || in.Message == nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"detail": []gin.H{{"loc": []string{"body", "message"}, "msg": "field required"}},
		})
		return index.Answer{}, false
	}
	if strings.TrimSpace(*in.Message) == "" {
		fail(c, http.StatusBadRequest, "message is empty")
		return index.Answer{}, false
	}
	return s.idx.Ask(*in.Message), true
}

func citations(a index.Answer) []citationOut {
	out := make([]citationOut, len(a.Citations))
	for i, ct := range a.Citations {
		out[i] = citationOut{ID: ct.ID, Index: ct.Index, Snippet: ct.Snippet}
	}
	return out
}

func (s *Server) chat(c *gin.Context) {
	a, ok := s.ask(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "response": a.Text, "citations": citations(a)})
}

func (s *Server) legacyChat(c *gin.Context) {
	a, ok := s.ask(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": a.Text, "citations": citations(a)})
}

func (s *Server) listPapers() []paperOut {
	papers := s.idx.Papers()
	out := make([]paperOut, len(papers))
	for i, p := range papers {
		out[i] = paperOut{ID: p.ID, Title: p.Title, Author: p.Author, Source: p.Source, CreatedAt: p.CreatedAt}
	}
	return out
}

func (s *Server) library(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": s.listPapers()})
}

func (s *Server) papers(c *gin.Context) {
	c.JSON(http.StatusOK, s.listPapers())
}

func (s *Server) analytics(c *gin.Context) {
	st := s.idx.Stats()
	data := gin.H{
		"top_keyword":      nullable(st.TopKeyword),
		"newest_paper":     nullable(st.NewestPaper),
		"most_queried":     nullable(st.MostQueried),
		"library_size":     st.Papers,
		"embeddings_count": st.Embeddings,
		"chat_count":       st.Chats,
		"last_import":      nil,
		"topic_chart":      ranked(st.Topics),
		"source_chart":     ranked(st.Sources),
	}
	if !st.LastImport.IsZero() {
		data["last_import"] = st.LastImport.Format("Jan 2006")
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ranked(in []index.Keyword) []rankedOut {
	out := make([]rankedOut, len(in))
	for i, k := range in {
		out[i] = rankedOut{Label: k.Term, Value: k.Weight}
	}
	return out
}
