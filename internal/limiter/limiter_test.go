package limiter

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Adaptive", func() {
	var (
		ctx   context.Context
		a     *Adaptive
		clock time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		a, err = New(Options{MaxInflight: 1, BaseBackoff: time.Second, MaxBackoff: 3 * time.Second})
		Expect(err).NotTo(HaveOccurred())
		clock = time.Unix(1_700_000_000, 0)
		a.now = func() time.Time { return clock }
	})

	It("caps in-flight calls per backend and model", func() {
		release, ok := a.Allow("Ollama", "llama3")
		Expect(ok).To(BeTrue())

		_, ok = a.Allow("ollama", "LLAMA3")
		Expect(ok).To(BeFalse())

		_, ok = a.Allow("ollama", "mistral")
		Expect(ok).To(BeTrue())

		release()
		_, ok = a.Allow("ollama", "llama3")
		Expect(ok).To(BeTrue())
	})

	It("doubles the cooldown up to the maximum", func() {
		Expect(a.IsOpen(ctx, "openai", "m")).To(BeFalse())
		Expect(a.Open(ctx, "openai", "m")).To(Equal(time.Second))
		Expect(a.IsOpen(ctx, "openai", "m")).To(BeTrue())
		Expect(a.Open(ctx, "openai", "m")).To(Equal(2 * time.Second))
		Expect(a.Open(ctx, "openai", "m")).To(Equal(3 * time.Second))
		Expect(a.Open(ctx, "openai", "m")).To(Equal(3 * time.Second))

		clock = clock.Add(4 * time.Second)
		Expect(a.IsOpen(ctx, "openai", "m")).To(BeFalse())
	})

	It("resets on Close", func() {
		a.Open(ctx, "openai", "m")
		a.Close(ctx, "openai", "m")
		Expect(a.IsOpen(ctx, "openai", "m")).To(BeFalse())
		Expect(a.Open(ctx, "openai", "m")).To(Equal(time.Second))
	})

	It("needs no client to close without redis", func() {
		Expect(a.CloseClient()).To(Succeed())
	})
})
