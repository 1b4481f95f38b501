package summarizer_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/local/chopdok/internal/ai"
	"github.com/local/chopdok/internal/apperr"
	"github.com/local/chopdok/internal/limiter"
	"github.com/local/chopdok/internal/pdftest"
	"github.com/local/chopdok/internal/summarizer"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memStore) UpsertSummary(_ context.Context, path, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[path] = summary
	return nil
}

func (m *memStore) get(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[path]
}

type fakeOffice struct {
	pdf []byte
	err error
	got string
}

func (f *fakeOffice) ToPDF(_ context.Context, fileName string, _ []byte) ([]byte, error) {
	f.got = fileName
	return f.pdf, f.err
}

func ollamaServer(prompts chan<- string, lines ...string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer GinkgoRecover()
		var body struct{ Prompt string }
		Expect(jsonDecode(r, &body)).To(Succeed())
		if prompts != nil {
			prompts <- body.Prompt
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	DeferCleanup(srv.Close)
	return srv
}

var _ = Describe("Service", func() {
	var (
		ctx   context.Context
		store *memStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = &memStore{data: map[string]string{}}
	})

	request := func(provider string, content string) summarizer.Request {
		return summarizer.Request{
			FileName:       "notes.txt",
			Content:        []byte(content),
			Provider:       provider,
			Model:          "llama3",
			PromptTemplate: "Summarize:",
		}
	}

	Describe("validation", func() {
		It("requires every field", func() {
			svc := summarizer.New(store, nil, nil, summarizer.Options{})
			_, err := svc.Summarize(ctx, summarizer.Request{FileName: "a.txt", Content: []byte("x")})
			Expect(apperr.IsValidation(err)).To(BeTrue())
			Expect(apperr.MessageOf(err)).To(ContainSubstring("modelProvider"))
			Expect(apperr.MessageOf(err)).To(ContainSubstring("promptTemplate"))
		})
	})

	Describe("Ollama backend", func() {
		It("concatenates the stream, builds the prompt and stores under the file name", func() {
			prompts := make(chan string, 1)
			srv := ollamaServer(prompts,
				`{"response":"Short ","done":false}`,
				`{"response":"summary.","done":true}`)
			svc := summarizer.New(store, nil, nil, summarizer.Options{}, ai.NewOllamaClient(srv.URL, nil))

			res, err := svc.Summarize(ctx, request("Ollama", "hello document"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Summary).To(Equal("Short summary."))
			Expect(res.Backend).To(Equal("ollama"))
			Expect(res.Path).To(Equal("notes.txt"))
			Expect(<-prompts).To(Equal("Summarize:\n\nhello document"))
			Expect(store.get("notes.txt")).To(Equal("Short summary."))
		})

		It("stores under an explicit path", func() {
			srv := ollamaServer(nil, `{"response":"ok","done":true}`)
			svc := summarizer.New(store, nil, nil, summarizer.Options{}, ai.NewOllamaClient(srv.URL, nil))
			req := request("ollama", "text")
			req.Path = "projects/1/notes.txt"

			_, err := svc.Summarize(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.get("projects/1/notes.txt")).To(Equal("ok"))
		})

		It("sends PDF text instead of raw bytes", func() {
			prompts := make(chan string, 1)
			srv := ollamaServer(prompts, `{"response":"pdf summary","done":true}`)
			svc := summarizer.New(store, nil, nil, summarizer.Options{}, ai.NewOllamaClient(srv.URL, nil))
			req := request("Ollama", "")
			req.FileName = "offer.pdf"
			req.Content = pdftest.GenerateWithText([]string{"Offer for the roof renovation works", "Total price twelve thousand"})

			_, err := svc.Summarize(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			prompt := <-prompts
			Expect(prompt).To(HavePrefix("Summarize:\n\n"))
			Expect(prompt).To(ContainSubstring("roof renovation"))
			Expect(prompt).NotTo(ContainSubstring("%PDF"))
		})

		It("rejects PDFs without text", func() {
			svc := summarizer.New(store, nil, nil, summarizer.Options{}, ai.NewOllamaClient("http://127.0.0.1:1", nil))
			req := request("Ollama", "")
			req.FileName = "scan.pdf"
			req.Content = pdftest.GenerateWithText([]string{"", ""})

			_, err := svc.Summarize(ctx, req)
			Expect(apperr.IsInput(err)).To(BeTrue())
		})

		It("fails with BackendUnavailable and keeps the stored summary when the server is down", func() {
			Expect(store.UpsertSummary(ctx, "notes.txt", "previous")).To(Succeed())
			srv := httptest.NewServer(http.NotFoundHandler())
			url := srv.URL
			srv.Close()

			svc := summarizer.New(store, nil, nil, summarizer.Options{Timeout: 2 * time.Second}, ai.NewOllamaClient(url, nil))
			_, err := svc.Summarize(ctx, request("Ollama", "new text"))
			Expect(apperr.IsBackendUnavailable(err)).To(BeTrue())
			Expect(store.get("notes.txt")).To(Equal("previous"))
		})

		It("opens the breaker after repeated server errors", func() {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "boom", http.StatusBadGateway)
			}))
			DeferCleanup(srv.Close)
			svc := summarizer.New(store, nil, nil,
				summarizer.Options{BreakerFailures: 2, BreakerCooldown: time.Minute},
				ai.NewOllamaClient(srv.URL, nil))

			for i := 0; i < 3; i++ {
				_, err := svc.Summarize(ctx, request("Ollama", "text"))
				Expect(apperr.IsBackendUnavailable(err)).To(BeTrue())
			}
			Expect(calls.Load()).To(BeEquivalentTo(2))
			Expect(svc.BreakerState("ollama")).To(Equal("open"))
		})

		It("maps client errors to validation without tripping the breaker", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not found", http.StatusNotFound)
			}))
			DeferCleanup(srv.Close)
			svc := summarizer.New(store, nil, nil, summarizer.Options{BreakerFailures: 1}, ai.NewOllamaClient(srv.URL, nil))

			_, err := svc.Summarize(ctx, request("Ollama", "text"))
			Expect(apperr.IsValidation(err)).To(BeTrue())
			Expect(svc.BreakerState("ollama")).To(Equal("closed"))
		})

		It("rejects work beyond the in-flight cap", func() {
			release := make(chan struct{})
			started := make(chan struct{}, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				started <- struct{}{}
				<-release
				fmt.Fprintln(w, `{"response":"done","done":true}`)
			}))
			DeferCleanup(srv.Close)
			lim, err := limiter.New(limiter.Options{MaxInflight: 1})
			Expect(err).NotTo(HaveOccurred())
			svc := summarizer.New(store, nil, lim, summarizer.Options{}, ai.NewOllamaClient(srv.URL, nil))

			done := make(chan error, 1)
			go func() {
				_, err := svc.Summarize(ctx, request("Ollama", "first"))
				done <- err
			}()
			Eventually(started).Should(Receive())

			_, err = svc.Summarize(ctx, request("Ollama", "second"))
			Expect(apperr.IsBackendUnavailable(err)).To(BeTrue())
			Expect(apperr.MessageOf(err)).To(ContainSubstring("busy"))

			close(release)
			Eventually(done).Should(Receive(BeNil()))
		})

		It("refuses binary files a model cannot read", func() {
			svc := summarizer.New(store, nil, nil, summarizer.Options{}, ai.NewOllamaClient("http://127.0.0.1:1", nil))
			req := request("Ollama", "")
			req.FileName = "photo.png"
			req.Content = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
			_, err := svc.Summarize(ctx, req)
			Expect(apperr.IsInput(err)).To(BeTrue())
		})

		It("converts office documents to PDF before extracting text", func() {
			prompts := make(chan string, 1)
			srv := ollamaServer(prompts, `{"response":"docx summary","done":true}`)
			office := &fakeOffice{pdf: pdftest.GenerateWithText([]string{"Tender for the school extension"})}
			svc := summarizer.New(store, nil, nil, summarizer.Options{Office: office}, ai.NewOllamaClient(srv.URL, nil))
			req := request("Ollama", "")
			req.FileName = "Ausschreibung.docx"
			req.Content = []byte("PK\x03\x04\x14\x00\x06\x00fake docx body")

			_, err := svc.Summarize(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(office.got).To(Equal("Ausschreibung.docx"))
			Expect(<-prompts).To(ContainSubstring("school extension"))
		})

		It("rejects office documents without a converter and passes converter errors through", func() {
			svc := summarizer.New(store, nil, nil, summarizer.Options{}, ai.NewOllamaClient("http://127.0.0.1:1", nil))
			req := request("Ollama", "")
			req.FileName = "Angebot.xlsx"
			req.Content = []byte("PK\x03\x04\x14\x00\x06\x00fake xlsx body")
			_, err := svc.Summarize(ctx, req)
			Expect(apperr.IsInput(err)).To(BeTrue())

			office := &fakeOffice{err: apperr.BackendUnavailable(nil, "soffice not found")}
			svc = summarizer.New(store, nil, nil, summarizer.Options{Office: office}, ai.NewOllamaClient("http://127.0.0.1:1", nil))
			_, err = svc.Summarize(ctx, req)
			Expect(apperr.IsBackendUnavailable(err)).To(BeTrue())
		})
	})

	Describe("script backend", func() {
		var script *summarizer.Script

		BeforeEach(func() {
			dir := GinkgoT().TempDir()
			path := filepath.Join(dir, "summarize.sh")
			body := "#!/bin/sh\nif [ \"$2\" = \"Broken\" ]; then echo oops >&2; exit 3; fi\n" +
				"printf '  %s|%s|%s|%s  \\n' \"$(basename \"$1\")\" \"$2\" \"$3\" \"$4\"\n"
			Expect(os.WriteFile(path, []byte(body), 0o755)).To(Succeed())
			script = &summarizer.Script{Python: "sh", Path: path, Timeout: 10 * time.Second, TempDir: dir}
		})

		It("passes file, provider, model and template and trims stdout", func() {
			svc := summarizer.New(store, script, nil, summarizer.Options{})
			res, err := svc.Summarize(ctx, request("Claude", "content"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Backend).To(Equal("script"))
			Expect(res.Summary).To(Equal("notes.txt|Claude|llama3|Summarize:"))
			Expect(store.get("notes.txt")).To(Equal(res.Summary))
		})

		It("reports a non-zero exit as BackendUnavailable", func() {
			Expect(store.UpsertSummary(ctx, "notes.txt", "kept")).To(Succeed())
			svc := summarizer.New(store, script, nil, summarizer.Options{})
			_, err := svc.Summarize(ctx, request("Broken", "content"))
			Expect(apperr.IsBackendUnavailable(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("oops"))
			Expect(store.get("notes.txt")).To(Equal("kept"))
		})

		It("is unavailable when no script is configured", func() {
			svc := summarizer.New(store, nil, nil, summarizer.Options{})
			_, err := svc.Summarize(ctx, request("Other", "content"))
			Expect(apperr.IsBackendUnavailable(err)).To(BeTrue())
		})

		It("cleans up its work directory", func() {
			svc := summarizer.New(store, script, nil, summarizer.Options{})
			_, err := svc.Summarize(ctx, request("Claude", "content"))
			Expect(err).NotTo(HaveOccurred())
			entries, err := os.ReadDir(script.TempDir)
			Expect(err).NotTo(HaveOccurred())
			for _, e := range entries {
				Expect(strings.HasPrefix(e.Name(), "chopdok_summarize_")).To(BeFalse())
			}
		})
	})
})
