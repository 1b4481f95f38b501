package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/local/chopdok/internal/ai"
)

var _ = Describe("OllamaClient", func() {
	It("concatenates streamed response fragments", func() {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/api/generate"))
			Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
			fmt.Fprintln(w, `{"response":"Hello","done":false}`)
			fmt.Fprintln(w, `not json`)
			fmt.Fprintln(w, `{"response":", world","done":false}`)
			fmt.Fprintln(w, `{"response":"","done":true,"prompt_eval_count":7,"eval_count":3}`)
		}))
		DeferCleanup(srv.Close)

		c := ai.NewOllamaClient(srv.URL+"/", nil)
		resp, err := c.Do(context.Background(), ai.Request{Model: "llama3", Prompt: "sum it"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(Equal("Hello, world"))
		Expect(resp.TokensIn).To(Equal(7))
		Expect(resp.TokensOut).To(Equal(3))
		Expect(got["model"]).To(Equal("llama3"))
		Expect(got["prompt"]).To(Equal("sum it"))
	})

	It("surfaces stream errors", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			fmt.Fprintln(w, `{"error":"model not found"}`)
		}))
		DeferCleanup(srv.Close)

		_, err := ai.NewOllamaClient(srv.URL, nil).Do(context.Background(), ai.Request{Model: "x"})
		Expect(err).To(MatchError(ContainSubstring("model not found")))
	})

	It("returns an HTTPError on non-2xx", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			http.Error(w, "overloaded", http.StatusTooManyRequests)
		}))
		DeferCleanup(srv.Close)

		_, err := ai.NewOllamaClient(srv.URL, nil).Do(context.Background(), ai.Request{Model: "x"})
		var httpErr *ai.HTTPError
		Expect(errors.As(err, &httpErr)).To(BeTrue())
		Expect(httpErr.StatusCode).To(Equal(http.StatusTooManyRequests))
		Expect(httpErr.Provider).To(Equal("ollama"))
		Expect(ai.IsRateLimited(err)).To(BeTrue())
	})
})

var _ = Describe("OpenAIClient", func() {
	It("sends the system and user messages with a bearer key", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/chat/completions"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer k"))
			var body struct {
				Messages []struct{ Role, Content string }
			}
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			Expect(body.Messages).To(HaveLen(2))
			Expect(body.Messages[0].Role).To(Equal("system"))
			fmt.Fprint(w, `{"choices":[{"message":{"content":"short"}}],"usage":{"prompt_tokens":5,"completion_tokens":1}}`)
		}))
		DeferCleanup(srv.Close)

		resp, err := ai.NewOpenAIClient(srv.URL+"/v1", "k", nil).Do(context.Background(),
			ai.Request{Model: "gpt", Prompt: "p", SystemPrompt: "s"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(Equal("short"))
		Expect(resp.TokensIn).To(Equal(5))
	})

	It("requires an api key", func() {
		_, err := ai.NewOpenAIClient("http://127.0.0.1:1", "", nil).Do(context.Background(), ai.Request{})
		Expect(err).To(HaveOccurred())
	})

	It("reports empty choices", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			fmt.Fprint(w, `{"choices":[]}`)
		}))
		DeferCleanup(srv.Close)

		_, err := ai.NewOpenAIClient(srv.URL, "k", nil).Do(context.Background(), ai.Request{})
		Expect(err).To(MatchError(ai.ErrNoOutput))
	})
})

var _ = Describe("AnthropicClient", func() {
	It("joins content blocks", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/messages"))
			Expect(r.Header.Get("x-api-key")).To(Equal("k"))
			Expect(r.Header.Get("anthropic-version")).NotTo(BeEmpty())
			fmt.Fprint(w, `{"content":[{"text":"a"},{"text":"b"}],"usage":{"input_tokens":2,"output_tokens":2}}`)
		}))
		DeferCleanup(srv.Close)

		resp, err := ai.NewAnthropicClient(srv.URL, "k", nil).Do(context.Background(), ai.Request{Model: "m", Prompt: "p"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(Equal("ab"))
	})
})
