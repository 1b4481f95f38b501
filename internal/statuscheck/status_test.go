package statuscheck_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/local/chopdok/internal/statuscheck"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var up = pingFunc(func(context.Context) error { return nil })

var _ = Describe("Checker", func() {
	It("reports healthy when the stores answer", func() {
		ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/api/tags"))
			w.Write([]byte(`{"models":[]}`))
		}))
		DeferCleanup(ollama.Close)

		sum := statuscheck.New(statuscheck.Options{
			Documents: up, Projects: up, OllamaURL: ollama.URL + "/",
		}).Summary(context.Background())

		Expect(sum.Documents.OK).To(BeTrue())
		Expect(sum.Projects.OK).To(BeTrue())
		Expect(sum.Ollama.OK).To(BeTrue())
		Expect(sum.Cache.OK).To(BeFalse())
		Expect(sum.Cache.Optional).To(BeTrue())
		Expect(sum.Cache.Message).To(Equal("not configured"))
		Expect(sum.Healthy()).To(BeTrue())
	})

	It("is unhealthy when a database ping fails", func() {
		down := pingFunc(func(context.Context) error { return errors.New("database is locked") })
		sum := statuscheck.New(statuscheck.Options{Documents: down, Projects: up}).Summary(context.Background())
		Expect(sum.Documents.OK).To(BeFalse())
		Expect(sum.Documents.Message).To(Equal("database is locked"))
		Expect(sum.Healthy()).To(BeFalse())
	})

	It("truncates long error messages", func() {
		long := pingFunc(func(context.Context) error { return errors.New(strings.Repeat("x", 300)) })
		sum := statuscheck.New(statuscheck.Options{Documents: up, Projects: up, Export: long}).Summary(context.Background())
		Expect(sum.Export.Message).To(HaveLen(120))
		Expect(sum.Healthy()).To(BeTrue())
	})

	It("reports the model server status code", func() {
		ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		DeferCleanup(ollama.Close)
		sum := statuscheck.New(statuscheck.Options{OllamaURL: ollama.URL}).Summary(context.Background())
		Expect(sum.Ollama.OK).To(BeFalse())
		Expect(sum.Ollama.Message).To(Equal("HTTP 502"))
	})

	It("checks the script and its interpreter", func() {
		dir := GinkgoT().TempDir()
		script := filepath.Join(dir, "summarize.py")
		Expect(os.WriteFile(script, []byte("print('ok')\n"), 0o644)).To(Succeed())

		sum := statuscheck.New(statuscheck.Options{Python: "sh", Script: script}).Summary(context.Background())
		Expect(sum.Script.OK).To(BeTrue())

		sum = statuscheck.New(statuscheck.Options{Python: "sh", Script: filepath.Join(dir, "nope.py")}).Summary(context.Background())
		Expect(sum.Script.Message).To(Equal("Script not found"))

		sum = statuscheck.New(statuscheck.Options{Python: "definitely-not-a-binary", Script: script}).Summary(context.Background())
		Expect(sum.Script.Message).To(Equal("Interpreter not found"))
	})

	It("reports LibreOffice as optional", func() {
		sum := statuscheck.New(statuscheck.Options{Documents: up, Projects: up, Soffice: "sh"}).Summary(context.Background())
		Expect(sum.LibreOffice.OK).To(BeTrue())

		sum = statuscheck.New(statuscheck.Options{Documents: up, Projects: up, Soffice: "no-such-soffice"}).Summary(context.Background())
		Expect(sum.LibreOffice.Message).To(Equal("Binary not found"))
		Expect(sum.Healthy()).To(BeTrue())
	})
})
