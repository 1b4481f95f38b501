package store_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/local/chopdok/internal/apperr"
	"github.com/local/chopdok/internal/store"
)

var _ = Describe("DocumentStore", func() {
	var (
		ctx  context.Context
		docs *store.DocumentStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		docs, err = store.OpenDocumentStore(ctx, filepath.Join(GinkgoT().TempDir(), "directories.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(docs.Close)
	})

	Context("directories", func() {
		It("returns nil for unknown paths", func() {
			seen, err := docs.GetFirstSeen(ctx, "/nowhere")
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(BeNil())
		})

		It("keeps the first timestamp on repeated records", func() {
			Expect(docs.RecordDirectory(ctx, "/root/a")).To(Succeed())
			first, err := docs.GetFirstSeen(ctx, "/root/a")
			Expect(err).NotTo(HaveOccurred())
			Expect(first).NotTo(BeNil())
			Expect(*first).To(BeTemporally("~", time.Now().UTC(), time.Minute))

			Expect(docs.RecordDirectory(ctx, "/root/a")).To(Succeed())
			again, err := docs.GetFirstSeen(ctx, "/root/a")
			Expect(err).NotTo(HaveOccurred())
			Expect(*again).To(Equal(*first))
		})

		It("rejects empty paths", func() {
			Expect(apperr.IsValidation(docs.RecordDirectory(ctx, " "))).To(BeTrue())
		})
	})

	Context("summaries", func() {
		It("stores and replaces summaries", func() {
			got, err := docs.GetSummary(ctx, "a.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())

			Expect(docs.UpsertSummary(ctx, "a.pdf", "first")).To(Succeed())
			Expect(docs.UpsertSummary(ctx, "a.pdf", "second")).To(Succeed())

			got, err = docs.GetSummary(ctx, "a.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(*got).To(Equal("second"))

			rec, err := docs.GetSummaryRecord(ctx, "a.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.FilePath).To(Equal("a.pdf"))
			Expect(rec.CreatedAt.IsZero()).To(BeFalse())
		})

		It("keeps an empty summary distinct from a missing one", func() {
			Expect(docs.UpsertSummary(ctx, "blank.pdf", "")).To(Succeed())
			got, err := docs.GetSummary(ctx, "blank.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(BeNil())
			Expect(*got).To(BeEmpty())
		})
	})

	Context("proposed names", func() {
		It("stores and replaces proposed names", func() {
			Expect(docs.UpsertProposedName(ctx, "scan.pdf", "Rechnung")).To(Succeed())
			Expect(docs.UpsertProposedName(ctx, "scan.pdf", "Angebot")).To(Succeed())
			got, err := docs.GetProposedName(ctx, "scan.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(*got).To(Equal("Angebot"))
		})

		It("validates its input", func() {
			Expect(apperr.IsValidation(docs.UpsertProposedName(ctx, "scan.pdf", ""))).To(BeTrue())
		})
	})

	Context("summary cache wrapper without redis", func() {
		It("reads and writes through to SQLite", func() {
			s := store.NewSummaries(docs, nil)
			Expect(s.UpsertSummary(ctx, "b.pdf", "text")).To(Succeed())
			got, err := s.GetSummary(ctx, "b.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(*got).To(Equal("text"))
		})
	})
})

var _ = Describe("Open", func() {
	It("fails with backend unavailable when the directory does not exist", func() {
		_, err := store.Open(context.Background(), filepath.Join(GinkgoT().TempDir(), "missing", "sub", "x.db"), store.DocumentSchema...)
		Expect(apperr.IsBackendUnavailable(err)).To(BeTrue())
	})

	It("rejects an empty path", func() {
		_, err := store.Open(context.Background(), "")
		Expect(apperr.IsValidation(err)).To(BeTrue())
	})

	It("works in memory", func() {
		db, err := store.Open(context.Background(), ":memory:", store.DocumentSchema...)
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()
		Expect(db.Ping(context.Background())).To(Succeed())
	})
})

var _ = Describe("SummaryCache", func() {
	It("round-trips through a real redis when REDIS_URL is set", func() {
		url := os.Getenv("REDIS_URL")
		if url == "" {
			Skip("REDIS_URL not set")
		}
		ctx := context.Background()
		cache, err := store.NewSummaryCache(url, time.Minute)
		Expect(err).NotTo(HaveOccurred())
		defer cache.Close()

		Expect(cache.Set(ctx, "test/cache.pdf", "cached")).To(Succeed())
		text, ok, err := cache.Get(ctx, "test/cache.pdf")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(text).To(Equal("cached"))
		Expect(cache.Delete(ctx, "test/cache.pdf")).To(Succeed())
	})
})
