package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"red-ai/internal/domain"
	"red-ai/internal/repository"
	"red-ai/internal/usecase"
)

type echoCompleter struct {
	reply string
	seen  [][]domain.ChatMessage
}

func (e *echoCompleter) Complete(_ context.Context, msgs []domain.ChatMessage) (string, error) {
	e.seen = append(e.seen, msgs)
	return e.reply, nil
}

type toneSynth struct{}

func (toneSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte("ID3:" + text), nil
}

type memoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (b *memoryBucket) Put(_ context.Context, key string, audio []byte) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = map[string][]byte{}
	}
	b.objects[key] = audio
	return "https://clips.s3.amazonaws.com/" + key, nil
}

type failingSynth struct{}

func (failingSynth) Synthesize(context.Context, string) ([]byte, error) {
	return nil, errors.New("engine unavailable")
}

// steppingClock returns the given instants in order, then keeps advancing by a second.
func steppingClock(instants ...time.Time) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		if i < len(instants) {
			t := instants[i]
			i++
			return t
		}
		last := instants[len(instants)-1]
		i++
		return last.Add(time.Duration(i) * time.Second)
	}
}

func kindOf(err error) usecase.Kind {
	kind, ok := usecase.KindOf(err)
	Expect(ok).To(BeTrue(), "expected a pipeline error, got %v", err)
	return kind
}

var _ = Describe("Pipeline", func() {
	var (
		ctx    context.Context
		store  *repository.SQLiteClient
		llm    *echoCompleter
		bucket *memoryBucket
		t0     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = repository.NewSQLite(ctx, ":memory:")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		llm = &echoCompleter{reply: "hi"}
		bucket = &memoryBucket{}
		t0 = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	})

	newPipeline := func(opts ...usecase.Option) *usecase.Pipeline {
		p, err := usecase.New(opts...)
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	Describe("Ingest", func() {
		It("stores exactly one user turn and returns the pair unchanged", func() {
			p := newPipeline(usecase.WithStore(store), usecase.WithClock(steppingClock(t0)))

			out, err := p.Ingest(ctx, usecase.IngestInput{UserID: "u1", Message: "hello"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(usecase.IngestOutput{UserID: "u1", Message: "hello"}))

			turns, err := store.History(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
			Expect(turns[0]).To(Equal(domain.Turn{UserID: "u1", Timestamp: t0, Role: domain.RoleUser, Content: "hello"}))
		})

		It("records nothing when the write fails", func() {
			p := newPipeline(usecase.WithStore(store))

			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := p.Ingest(cancelled, usecase.IngestInput{UserID: "u1", Message: "hello"})
			Expect(kindOf(err)).To(Equal(usecase.KindStorageWrite))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())

			turns, err := store.History(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})

		It("keeps turns distinct when the clock does not advance", func() {
			p := newPipeline(usecase.WithStore(store), usecase.WithClock(func() time.Time { return t0 }))

			for i := 0; i < 3; i++ {
				_, err := p.Ingest(ctx, usecase.IngestInput{UserID: "u1", Message: fmt.Sprintf("m%d", i)})
				Expect(err).NotTo(HaveOccurred())
			}

			turns, err := store.History(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(3))
			for i := 1; i < len(turns); i++ {
				Expect(turns[i].Timestamp.After(turns[i-1].Timestamp)).To(BeTrue())
			}
		})
	})

	Describe("History ordering", func() {
		It("returns N turns in ascending timestamp order regardless of append order", func() {
			p := newPipeline(usecase.WithStore(store), usecase.WithClock(steppingClock(
				t0.Add(3*time.Second), t0.Add(1*time.Second), t0.Add(2*time.Second), t0,
			)))
			for _, msg := range []string{"d", "b", "c", "a"} {
				_, err := p.Ingest(ctx, usecase.IngestInput{UserID: "u1", Message: msg})
				Expect(err).NotTo(HaveOccurred())
			}

			turns, err := store.History(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(4))
			contents := make([]string, 0, len(turns))
			for i, turn := range turns {
				contents = append(contents, turn.Content)
				if i > 0 {
					Expect(turn.Timestamp.After(turns[i-1].Timestamp)).To(BeTrue())
				}
			}
			Expect(contents).To(Equal([]string{"a", "b", "c", "d"}))
		})
	})

	Describe("Complete", func() {
		It("sends the persisted history in order", func() {
			Expect(store.Append(ctx, domain.Turn{UserID: "u1", Timestamp: t0, Role: domain.RoleUser, Content: "hello"})).To(Succeed())
			Expect(store.Append(ctx, domain.Turn{UserID: "u1", Timestamp: t0.Add(time.Second), Role: domain.RoleAssistant, Content: "hi"})).To(Succeed())
			p := newPipeline(usecase.WithStore(store), usecase.WithCompleter(llm),
				usecase.WithClock(steppingClock(t0.Add(time.Minute))))

			out, err := p.Complete(ctx, usecase.CompletionInput{UserID: "u1", Prompt: "ignored"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(usecase.CompletionOutput{Completion: "hi", UserID: "u1"}))
			Expect(llm.seen).To(HaveLen(1))
			Expect(llm.seen[0]).To(Equal([]domain.ChatMessage{
				{Role: "user", Content: "hello"},
				{Role: "assistant", Content: "hi"},
			}))
		})

		It("calls the provider once with an empty context for a new user", func() {
			llm.reply = ""
			p := newPipeline(usecase.WithStore(store), usecase.WithCompleter(llm))

			out, err := p.Complete(ctx, usecase.CompletionInput{UserID: "fresh", Prompt: "hi"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Completion).To(BeEmpty())
			Expect(llm.seen).To(HaveLen(1))
			Expect(llm.seen[0]).To(BeEmpty())
		})

		It("makes the reply part of the next request's context", func() {
			p := newPipeline(usecase.WithStore(store), usecase.WithCompleter(llm), usecase.WithClock(steppingClock(t0)))

			_, err := p.Ingest(ctx, usecase.IngestInput{UserID: "u1", Message: "hello"})
			Expect(err).NotTo(HaveOccurred())
			_, err = p.Complete(ctx, usecase.CompletionInput{UserID: "u1", Prompt: "hello"})
			Expect(err).NotTo(HaveOccurred())
			_, err = p.Complete(ctx, usecase.CompletionInput{UserID: "u1"})
			Expect(err).NotTo(HaveOccurred())

			Expect(llm.seen).To(HaveLen(2))
			Expect(llm.seen[1]).To(Equal([]domain.ChatMessage{
				{Role: "user", Content: "hello"},
				{Role: "assistant", Content: "hi"},
			}))
		})
	})

	Describe("Synthesize", func() {
		It("publishes a new artifact for every call with the same text", func() {
			p := newPipeline(usecase.WithSynthesizer(toneSynth{}), usecase.WithAudioStore(bucket))

			first, err := p.Synthesize(ctx, usecase.SynthesisInput{Text: "same words"})
			Expect(err).NotTo(HaveOccurred())
			second, err := p.Synthesize(ctx, usecase.SynthesisInput{Text: "same words"})
			Expect(err).NotTo(HaveOccurred())

			Expect(first.AudioURL).NotTo(Equal(second.AudioURL))
			Expect(bucket.objects).To(HaveLen(2))
		})

		It("tells a publish failure apart from a synthesis failure", func() {
			bucket.err = errors.New("access denied")
			p := newPipeline(usecase.WithSynthesizer(toneSynth{}), usecase.WithAudioStore(bucket))
			_, err := p.Synthesize(ctx, usecase.SynthesisInput{Text: "hello"})
			Expect(kindOf(err)).To(Equal(usecase.KindPublish))

			p = newPipeline(usecase.WithSynthesizer(failingSynth{}), usecase.WithAudioStore(&memoryBucket{}))
			_, err = p.Synthesize(ctx, usecase.SynthesisInput{Text: "hello"})
			Expect(kindOf(err)).To(Equal(usecase.KindSynthesis))
		})
	})

	Describe("Converse", func() {
		It("runs ingest, completion and synthesis against one store", func() {
			p := newPipeline(usecase.WithStore(store), usecase.WithCompleter(llm),
				usecase.WithSynthesizer(toneSynth{}), usecase.WithAudioStore(bucket),
				usecase.WithClock(steppingClock(t0)))

			out, err := p.Converse(ctx, usecase.ConverseInput{UserID: "u1", Message: "hello"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Completion).To(Equal("hi"))
			Expect(out.AudioURL).To(HavePrefix("https://clips.s3.amazonaws.com/audio/"))

			turns, err := store.History(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Role).To(Equal(domain.RoleUser))
			Expect(turns[1].Role).To(Equal(domain.RoleAssistant))
			Expect(llm.seen[0]).To(Equal([]domain.ChatMessage{{Role: "user", Content: "hello"}}))
		})
	})
})
