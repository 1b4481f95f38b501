package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	fitz "github.com/gen2brain/go-fitz"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/local/chopdok/internal/apperr"
	"github.com/local/chopdok/internal/partition"
	"github.com/local/chopdok/internal/pdfsplit"
	"github.com/local/chopdok/internal/pdftest"
	"github.com/local/chopdok/internal/storage"
)

func pageTexts(data []byte) []string {
	doc, err := fitz.NewFromMemory(data)
	Expect(err).NotTo(HaveOccurred())
	defer doc.Close()
	out := make([]string, doc.NumPage())
	for i := range out {
		text, err := doc.Text(i)
		Expect(err).NotTo(HaveOccurred())
		out[i] = strings.TrimSpace(text)
	}
	return out
}

type fakeExporter struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (f *fakeExporter) Upload(_ context.Context, fileName string, data []byte, contentType string, meta map[string]string) (storage.Export, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return storage.Export{}, f.err
	}
	f.names = append(f.names, fileName)
	return storage.Export{Bucket: "b", Key: "chopdok/" + fileName, Version: len(f.names), Size: len(data)}, nil
}

type rootFiles map[string]string

func (r rootFiles) Resolve(rel string) (string, string, error) {
	if full, ok := r[rel]; ok {
		return full, rel, nil
	}
	return "", "", apperr.NotFound("%s not found", rel)
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx   context.Context
		o     *Orchestrator
		clock time.Time
		exp   *fakeExporter
		id    string
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		exp = &fakeExporter{}
		o = New(Dependencies{Exporter: exp, TTL: 10 * time.Minute, Now: func() time.Time { return clock }})
		info, err := o.Create(ctx, "ten.pdf", bytes.NewReader(pdftest.Generate(10)))
		Expect(err).NotTo(HaveOccurred())
		id = info.ID
		Expect(info.PageCount).To(Equal(10))
		Expect(info.Parts).To(HaveLen(1))
		Expect(info.Processed).To(BeFalse())
	})

	It("rejects uploads that are not PDFs", func() {
		_, err := o.Create(ctx, "notes.txt", strings.NewReader("hello"))
		Expect(apperr.IsInput(err)).To(BeTrue())
		Expect(o.Count()).To(Equal(1))
	})

	It("previews parts from a plan, dropping out of range pages", func() {
		info, err := o.SetPlan(id, partition.State{SplitPoints: []int{7, 4, 4, 1, 42}, DeletedPages: []int{5, 0}})
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Plan.SplitPoints).To(Equal([]int{4, 7}))
		Expect(info.Plan.DeletedPages).To(Equal([]int{5}))
		Expect(info.Parts).To(HaveLen(3))
		Expect(info.Parts[1].Pages).To(Equal([]int{4, 6}))
	})

	It("processes parts and serves them individually", func() {
		_, err := o.SetPlan(id, partition.State{SplitPoints: []int{4, 7}, DeletedPages: []int{5}})
		Expect(err).NotTo(HaveOccurred())
		_, err = o.Rename(id, 2, "Tail")
		Expect(err).NotTo(HaveOccurred())

		res, err := o.Process(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(HaveLen(3))
		Expect(res[0].FileName).To(Equal("Part 1 - Part 1.pdf"))
		Expect(res[2].FileName).To(Equal("Part 3 - Tail.pdf"))
		Expect(res[1].Size).To(BeNumerically(">", 0))

		out, err := o.Part(ctx, id, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(pageTexts(out.Data)).To(Equal([]string{"Page 4", "Page 6"}))

		_, err = o.Part(ctx, id, 4)
		Expect(apperr.IsNotFound(err)).To(BeTrue())

		info, err := o.Get(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Processed).To(BeTrue())
	})

	It("drops outputs when the plan changes", func() {
		_, err := o.Process(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		info, err := o.ToggleSplit(id, 6)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Processed).To(BeFalse())
		Expect(info.Parts).To(HaveLen(2))

		info, err = o.ToggleSplit(id, 6)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Parts).To(HaveLen(1))
	})

	It("builds an archive with one entry per part, empty ones included", func() {
		_, err := o.SetPlan(id, partition.State{SplitPoints: []int{4, 5}, DeletedPages: []int{4}})
		Expect(err).NotTo(HaveOccurred())

		data, err := o.Archive(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		Expect(err).NotTo(HaveOccurred())
		var names []string
		for _, f := range zr.File {
			names = append(names, f.Name)
		}
		Expect(names).To(Equal([]string{"Part 1 - Part 1.pdf", "Part 2 - Part 2.pdf", "Part 3 - Part 3.pdf"}))

		out, err := o.Part(ctx, id, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Part.Empty).To(BeTrue())
		Expect(string(out.Data)).To(HavePrefix("%PDF-"))
		Expect(pageTexts(out.Data)).To(BeEmpty())
	})

	It("only renames parts of the current plan", func() {
		_, err := o.SetPlan(id, partition.State{SplitPoints: []int{6}})
		Expect(err).NotTo(HaveOccurred())

		_, err = o.Rename(id, 999, "Orphan")
		Expect(apperr.IsNotFound(err)).To(BeTrue())
		_, err = o.Rename(id, 2, "Orphan")
		Expect(apperr.IsNotFound(err)).To(BeTrue())

		info, err := o.Rename(id, 1, "Anhang")
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Parts[1].Name).To(Equal("Anhang"))

		info, err = o.ToggleSplit(id, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Parts).To(HaveLen(3))
		Expect(info.Parts[2].Name).To(Equal("Part 3"))
	})

	It("produces the whole document minus deletions", func() {
		_, err := o.SetPlan(id, partition.State{SplitPoints: []int{3}, DeletedPages: []int{2, 4, 6, 8, 10}})
		Expect(err).NotTo(HaveOccurred())
		out, err := o.DeletePages(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.FileName).To(Equal(pdfsplit.ModifiedFileName))
		Expect(pageTexts(out.Data)).To(Equal([]string{"Page 1", "Page 3", "Page 5", "Page 7", "Page 9"}))
	})

	It("renders thumbnails and rejects pages out of range", func() {
		th, err := o.Thumbnail(id, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(th.JPEG[:2]).To(Equal([]byte{0xFF, 0xD8}))

		_, err = o.Thumbnail(id, 11)
		Expect(apperr.IsInput(err)).To(BeTrue())
	})

	It("exports the archive", func() {
		res, err := o.Export(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Key).To(Equal("chopdok/" + pdfsplit.ArchiveName))
		Expect(exp.names).To(Equal([]string{pdfsplit.ArchiveName}))
	})

	It("reports export failures as backend unavailable", func() {
		exp.err = errors.New("connection refused")
		_, err := o.Export(ctx, id)
		Expect(apperr.IsBackendUnavailable(err)).To(BeTrue())

		o.deps.Exporter = nil
		_, err = o.Export(ctx, id)
		Expect(apperr.IsBackendUnavailable(err)).To(BeTrue())
	})

	It("forgets deleted sessions", func() {
		Expect(o.Delete(id)).To(Succeed())
		_, err := o.Get(id)
		Expect(apperr.IsNotFound(err)).To(BeTrue())
		Expect(apperr.IsNotFound(o.Delete(id))).To(BeTrue())
	})

	It("discards a process that finishes after a clear", func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		orig := o.materialize
		o.materialize = func(ctx context.Context, src *pdfsplit.Source, parts []partition.Part) ([]pdfsplit.Output, error) {
			close(entered)
			<-release
			return orig(ctx, src, parts)
		}

		done := make(chan error, 1)
		go func() {
			_, err := o.Process(ctx, id)
			done <- err
		}()
		Eventually(entered).Should(BeClosed())
		Expect(o.Delete(id)).To(Succeed())
		close(release)

		var err error
		Eventually(done).Should(Receive(&err))
		Expect(apperr.IsValidation(err)).To(BeTrue())
	})

	It("discards a process when the plan changes mid-flight", func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		orig := o.materialize
		o.materialize = func(ctx context.Context, src *pdfsplit.Source, parts []partition.Part) ([]pdfsplit.Output, error) {
			close(entered)
			<-release
			return orig(ctx, src, parts)
		}

		done := make(chan error, 1)
		go func() {
			_, err := o.Process(ctx, id)
			done <- err
		}()
		Eventually(entered).Should(BeClosed())
		_, err := o.ToggleDelete(id, 3)
		Expect(err).NotTo(HaveOccurred())
		close(release)

		Eventually(done).Should(Receive(HaveOccurred()))
		info, err := o.Get(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Processed).To(BeFalse())
	})

	It("expires idle sessions", func() {
		clock = clock.Add(5 * time.Minute)
		second, err := o.Create(ctx, "two.pdf", bytes.NewReader(pdftest.Generate(2)))
		Expect(err).NotTo(HaveOccurred())

		clock = clock.Add(6 * time.Minute)
		Expect(o.Expire()).To(Equal(1))
		_, err = o.Get(id)
		Expect(apperr.IsNotFound(err)).To(BeTrue())
		_, err = o.Get(second.ID)
		Expect(err).NotTo(HaveOccurred())
	})

	It("opens sessions on files under the root", func() {
		dir := GinkgoT().TempDir()
		path := dir + "/three.pdf"
		Expect(writeFile(path, pdftest.Generate(3))).To(Succeed())
		o.deps.Files = rootFiles{"docs/three.pdf": path}

		info, err := o.CreateFromPath(ctx, "docs/three.pdf")
		Expect(err).NotTo(HaveOccurred())
		Expect(info.PageCount).To(Equal(3))
		Expect(info.FileName).To(Equal("three.pdf"))

		_, err = o.CreateFromPath(ctx, "docs/missing.pdf")
		Expect(apperr.IsNotFound(err)).To(BeTrue())
		Expect(o.List()).To(HaveLen(2))
	})
})

func writeFile(path string, data []byte) error { return os.WriteFile(path, data, 0o644) }
