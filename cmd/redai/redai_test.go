package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"red-ai/internal/repository"
	"red-ai/internal/usecase"
)

// clearEnv unsets keys for the current test and restores them afterwards.
func clearEnv(keys ...string) {
	for _, key := range keys {
		if v, ok := os.LookupEnv(key); ok {
			Expect(os.Unsetenv(key)).To(Succeed())
			DeferCleanup(os.Setenv, key, v)
		}
	}
}

var _ = Describe("redai", func() {
	var (
		ctx        context.Context
		dbPath     string
		configPath string
		mu         sync.Mutex
		requests   []map[string]any
	)

	BeforeEach(func() {
		ctx = context.Background()
		clearEnv("CONVERSATION_STORE", "SQLITE_PATH", "CHAT_TABLE", "OPENAI_API_KEY",
			"OPENAI_API_KEY_PARAM", "OPENAI_BASE_URL", "AUDIO_BUCKET", "PIPELINE_FLOW")
		requests = nil

		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			mu.Lock()
			requests = append(requests, body)
			mu.Unlock()
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`))
		}))
		DeferCleanup(upstream.Close)

		tmpDir := GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "chat.db")
		configPath = filepath.Join(tmpDir, "redai.toml")
		Expect(os.WriteFile(configPath, []byte(fmt.Sprintf(`
[store]
backend = "sqlite"
sqlite_path = %q

[openai]
api_key = "sk-test"
base_url = %q
`, dbPath, upstream.URL)), 0o600)).To(Succeed())
	})

	run := func(args ...string) (string, error) {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--config", configPath}, args...))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	It("stores a message and completes from history", func() {
		out, err := run("chat", "u1", "hello", "there")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Stored message for u1"))

		out, err = run("complete", "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("hi there\n"))

		Expect(requests).To(HaveLen(1))
		Expect(requests[0]["messages"]).To(Equal([]any{
			map[string]any{"role": "user", "content": "hello there"},
		}))

		store, err := repository.NewSQLite(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()
		turns, err := store.History(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(turns).To(HaveLen(2))
	})

	It("runs a whole turn with converse and skips speech without a bucket", func() {
		out, err := run("converse", "u2", "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("hi there\n"))
	})

	It("fails fast with a configuration error when speech is not configured", func() {
		_, err := run("speak", "hello")
		kind, ok := usecase.KindOf(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(usecase.KindConfiguration))
		Expect(requests).To(BeEmpty())
	})

	It("rejects an empty message", func() {
		_, err := run("chat", "u1", " ")
		kind, ok := usecase.KindOf(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(usecase.KindInvalidInput))
	})
})
