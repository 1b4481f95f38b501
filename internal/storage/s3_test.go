package storage_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/local/chopdok/internal/storage"
)

// fakeS3 answers the path-style HeadBucket, PutObject, GetObject and ListObjectsV2 calls
// the exporter makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]http.Header
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	switch {
	case r.Method == http.MethodHead && len(parts) == 1:
		if parts[0] != "archives" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && len(parts) == 2:
		body, _ := io.ReadAll(r.Body)
		f.objects[parts[1]] = body
		f.meta[parts[1]] = r.Header.Clone()
		w.Header().Set("ETag", `"etag-1"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><IsTruncated>false</IsTruncated>`, parts[0], prefix, len(keys))
		for _, k := range keys {
			fmt.Fprintf(w, `<Contents><Key>%s</Key><Size>%d</Size></Contents>`, k, len(f.objects[k]))
		}
		fmt.Fprint(w, `</ListBucketResult>`)
	case r.Method == http.MethodGet && len(parts) == 2:
		body, ok := f.objects[parts[1]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		w.Write(body)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

var _ = Describe("S3Exporter", func() {
	var (
		ctx  context.Context
		fake *fakeS3
		srv  *httptest.Server
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &fakeS3{objects: map[string][]byte{}, meta: map[string]http.Header{}}
		srv = httptest.NewServer(fake)
		DeferCleanup(srv.Close)
	})

	newExporter := func(password string) *storage.S3Exporter {
		exp, err := storage.NewS3Exporter(ctx, storage.Options{
			Bucket: "archives", Region: "us-east-1", Endpoint: srv.URL,
			AccessKey: "test", SecretKey: "test", Prefix: "/exports/", Password: password,
		})
		Expect(err).NotTo(HaveOccurred())
		return exp
	}

	It("requires a bucket", func() {
		_, err := storage.NewS3Exporter(ctx, storage.Options{})
		Expect(err).To(HaveOccurred())
	})

	It("uploads successive versions under the prefix", func() {
		exp := newExporter("")
		first, err := exp.Upload(ctx, "split_pdfs.zip", []byte("zip-1"), "application/zip", map[string]string{"session": "abc"})
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Key).To(Equal("exports/split_pdfs_v1.zip"))
		Expect(first.Encrypted).To(BeFalse())
		Expect(fake.objects).To(HaveKeyWithValue("exports/split_pdfs_v1.zip", []byte("zip-1")))
		Expect(fake.meta["exports/split_pdfs_v1.zip"].Get("X-Amz-Meta-Session")).To(Equal("abc"))

		second, err := exp.Upload(ctx, "split_pdfs.zip", []byte("zip-2"), "application/zip", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Version).To(Equal(2))
		Expect(second.Key).To(Equal("exports/split_pdfs_v2.zip"))

		data, err := exp.Download(ctx, second.Key)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("zip-2")))
	})

	It("encrypts when a password is configured", func() {
		exp := newExporter("pw")
		res, err := exp.Upload(ctx, "Modified.pdf", []byte("%PDF-1.4 body"), "application/pdf", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Encrypted).To(BeTrue())
		Expect(storage.IsEncrypted(fake.objects[res.Key])).To(BeTrue())

		data, err := exp.Download(ctx, res.Key)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("%PDF-1.4 body"))
	})

	It("pings the configured bucket", func() {
		Expect(newExporter("").Ping(ctx)).To(Succeed())

		other, err := storage.NewS3Exporter(ctx, storage.Options{
			Bucket: "missing", Region: "us-east-1", Endpoint: srv.URL, AccessKey: "test", SecretKey: "test",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(other.Ping(ctx)).NotTo(Succeed())
	})
})
