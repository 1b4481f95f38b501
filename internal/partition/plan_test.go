package partition_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/local/chopdok/internal/apperr"
	"github.com/local/chopdok/internal/partition"
)

var _ = Describe("plans", func() {
	It("loads split points, deletions and names from YAML", func() {
		path := filepath.Join(GinkgoT().TempDir(), "plan.yaml")
		Expect(os.WriteFile(path, []byte("splitPoints: [7, 4]\ndeletedPages: [5]\npartNames:\n  1: Anhang\n"), 0o644)).To(Succeed())

		s, err := partition.LoadPlan(path)
		Expect(err).NotTo(HaveOccurred())
		s.PageCount = 10
		parts := partition.ComputeParts(s)
		Expect(parts).To(HaveLen(3))
		Expect(parts[1].Name).To(Equal("Anhang"))
		Expect(parts[1].Pages).To(Equal([]int{4, 6}))
	})

	It("round trips through MarshalPlan", func() {
		in := partition.State{PageCount: 5, SplitPoints: []int{3}, DeletedPages: []int{1}, PartNames: map[int]string{0: "A"}}
		data, err := partition.MarshalPlan(in)
		Expect(err).NotTo(HaveOccurred())
		out, err := partition.ParsePlan(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(in))
	})

	It("reports a missing file as input error and bad YAML as validation error", func() {
		_, err := partition.LoadPlan(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(apperr.KindOf(err)).To(Equal(apperr.KindInput))

		_, err = partition.ParsePlan([]byte("splitPoints: [a, b"))
		Expect(apperr.KindOf(err)).To(Equal(apperr.KindValidation))
	})
})
