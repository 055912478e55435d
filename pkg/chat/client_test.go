package chat_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marketstead/chatstream/pkg/chat"
	"github.com/marketstead/chatstream/pkg/llm"
	"github.com/marketstead/chatstream/pkg/logger"
	"github.com/marketstead/chatstream/pkg/storage/inmemory"
	"github.com/marketstead/chatstream/pkg/transcript"
	"github.com/marketstead/chatstream/pkg/worker"
)

// streamHandler writes each chunk followed by a flush, approximating one
// network chunk per element.
func streamHandler(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			_, _ = w.Write([]byte(chunk))
			flusher.Flush()
		}
	}
}

func statusHandler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}
}

type fixture struct {
	client *chat.Client
	tr     *transcript.Transcript
	store  *inmemory.Store
	pool   *worker.Pool
	ref    llm.ConversationRef
}

func newFixture(endpoint string) *fixture {
	store := inmemory.NewStore()
	pool, err := worker.NewPool(&worker.Config{
		Store:  store,
		Logger: logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	tr := transcript.New()
	client := chat.New(chat.Config{
		Endpoint: endpoint,
		Model:    "assistant-v2",
	}, tr, pool, logger.Nop())

	return &fixture{
		client: client,
		tr:     tr,
		store:  store,
		pool:   pool,
		ref:    llm.ConversationRef{UserID: "u1", Topic: "services"},
	}
}

// drained closes the pool and returns the persisted history.
func (f *fixture) drained() []llm.Turn {
	f.pool.Close()
	turns, err := f.store.LoadHistory(context.Background(), f.ref, 0)
	Expect(err).NotTo(HaveOccurred())
	return turns
}

func lastTurn(turns []llm.Turn) llm.Turn {
	Expect(turns).NotTo(BeEmpty())
	return turns[len(turns)-1]
}

var _ = Describe("Client", func() {
	Describe("Send", func() {
		It("assembles a response split mid-token across chunks", func() {
			srv := httptest.NewServer(streamHandler(
				`data: {"choices":[{"delta":{"content":"Hel`,
				"lo\"}}]}\n\n",
				"data: [DONE]\n",
			))
			defer srv.Close()

			f := newFixture(srv.URL)
			Expect(f.client.Send(context.Background(), f.ref, "hi", "")).To(Succeed())
			Expect(f.client.State()).To(Equal(chat.StateCompleted))

			Expect(lastTurn(f.tr.Turns()).Text).To(Equal("Hello"))

			persisted := f.drained()
			Expect(persisted).To(HaveLen(2))
			Expect(persisted[1].Role).To(Equal(llm.RoleAssistant))
			Expect(persisted[1].Text).To(Equal("Hello"))
		})

		It("concatenates deltas in arrival order preserving whitespace", func() {
			srv := httptest.NewServer(streamHandler(
				"data: {\"choices\":[{\"delta\":{\"content\":\"Good\"}}]}\n\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\" morning,\"}}]}\n\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"  friend\"}}]}\n\n",
				"data: [DONE]\n",
			))
			defer srv.Close()

			f := newFixture(srv.URL)
			Expect(f.client.Send(context.Background(), f.ref, "hi", "")).To(Succeed())
			Expect(lastTurn(f.tr.Turns()).Text).To(Equal("Good morning,  friend"))
		})

		It("ignores comments, blanks, and unrecognized lines", func() {
			srv := httptest.NewServer(streamHandler(
				": keepalive\n\n",
				"event: ping\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n",
				"data: [DONE]\n",
			))
			defer srv.Close()

			f := newFixture(srv.URL)
			Expect(f.client.Send(context.Background(), f.ref, "hi", "")).To(Succeed())
			Expect(lastTurn(f.tr.Turns()).Text).To(Equal("ok"))
		})

		It("contributes nothing for empty or absent deltas", func() {
			srv := httptest.NewServer(streamHandler(
				"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\n\n",
				"data: {\"choices\":[]}\n\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"B\"}}]}\n\n",
				"data: [DONE]\n",
			))
			defer srv.Close()

			f := newFixture(srv.URL)
			Expect(f.client.Send(context.Background(), f.ref, "hi", "")).To(Succeed())
			Expect(lastTurn(f.tr.Turns()).Text).To(Equal("AB"))
		})

		It("stops at the terminator even with trailing data in the same chunk", func() {
			srv := httptest.NewServer(streamHandler(
				"data: {\"choices\":[{\"delta\":{\"content\":\"kept\"}}]}\n\n" +
					"data: [DONE]\n" +
					"data: {\"choices\":[{\"delta\":{\"content\":\"dropped\"}}]}\n\n",
			))
			defer srv.Close()

			f := newFixture(srv.URL)
			Expect(f.client.Send(context.Background(), f.ref, "hi", "")).To(Succeed())
			Expect(f.client.State()).To(Equal(chat.StateCompleted))
			Expect(lastTurn(f.tr.Turns()).Text).To(Equal("kept"))
		})

		It("recombines a payload split at a newline in its serialization", func() {
			srv := httptest.NewServer(streamHandler(
				"data: {\"choices\":[{\"delta\":\n",
				"{\"content\":\"once\"}}]}\n\n",
				"data: [DONE]\n",
			))
			defer srv.Close()

			f := newFixture(srv.URL)
			Expect(f.client.Send(context.Background(), f.ref, "hi", "")).To(Succeed())
			Expect(f.client.State()).To(Equal(chat.StateCompleted))
			Expect(lastTurn(f.tr.Turns()).Text).To(Equal("once"))
		})

		It("persists an assistant turn that produced no deltas", func() {
			srv := httptest.NewServer(streamHandler("data: [DONE]\n"))
			defer srv.Close()

			f := newFixture(srv.URL)
			Expect(f.client.Send(context.Background(), f.ref, "hi", "")).To(Succeed())

			persisted := f.drained()
			Expect(persisted).To(HaveLen(2))
			Expect(persisted[1].Role).To(Equal(llm.RoleAssistant))
			Expect(persisted[1].Text).To(BeEmpty())
		})

		It("completes when the body ends without a terminator", func() {
			srv := httptest.NewServer(streamHandler(
				"data: {\"choices\":[{\"delta\":{\"content\":\"done\"}}]}\n\n",
			))
			defer srv.Close()

			f := newFixture(srv.URL)
			Expect(f.client.Send(context.Background(), f.ref, "hi", "")).To(Succeed())
			Expect(f.client.State()).To(Equal(chat.StateCompleted))
			Expect(lastTurn(f.tr.Turns()).Text).To(Equal("done"))
		})

		It("persists the user turn with its image reference", func() {
			srv := httptest.NewServer(streamHandler("data: [DONE]\n"))
			defer srv.Close()

			f := newFixture(srv.URL)
			Expect(f.client.Send(context.Background(), f.ref, "see this", "uploads/photo.jpg")).To(Succeed())

			persisted := f.drained()
			Expect(persisted[0].Role).To(Equal(llm.RoleUser))
			Expect(persisted[0].ImageRef).To(Equal("uploads/photo.jpg"))
		})
	})

	Describe("status mapping", func() {
		assertRejected := func(status int, category chat.Category) {
			srv := httptest.NewServer(statusHandler(status))
			defer srv.Close()

			f := newFixture(srv.URL)
			err := f.client.Send(context.Background(), f.ref, "hi", "")

			var streamErr *chat.Error
			Expect(errors.As(err, &streamErr)).To(BeTrue())
			Expect(streamErr.Category).To(Equal(category))
			Expect(streamErr.Status).To(Equal(status))
			Expect(f.client.State()).To(Equal(chat.StateFailed))

			// The opened assistant turn is discarded; only the user turn
			// remains visible and persisted.
			turns := f.tr.Turns()
			Expect(turns).To(HaveLen(1))
			Expect(turns[0].Role).To(Equal(llm.RoleUser))

			persisted := f.drained()
			Expect(persisted).To(HaveLen(1))
			Expect(persisted[0].Role).To(Equal(llm.RoleUser))
		}

		It("maps 429 to RateLimited", func() {
			assertRejected(http.StatusTooManyRequests, chat.CategoryRateLimited)
		})

		It("maps 402 to PaymentRequired", func() {
			assertRejected(http.StatusPaymentRequired, chat.CategoryPaymentRequired)
		})

		It("maps 500 to TransportFailure", func() {
			assertRejected(http.StatusInternalServerError, chat.CategoryTransportFailure)
		})

		It("gives rate limiting and payment distinct user messages", func() {
			rate := &chat.Error{Category: chat.CategoryRateLimited}
			pay := &chat.Error{Category: chat.CategoryPaymentRequired}
			generic := &chat.Error{Category: chat.CategoryTransportFailure}

			Expect(rate.UserMessage()).NotTo(Equal(pay.UserMessage()))
			Expect(rate.UserMessage()).NotTo(Equal(generic.UserMessage()))
			Expect(pay.UserMessage()).NotTo(Equal(generic.UserMessage()))
		})
	})

	Describe("cancellation", func() {
		It("keeps partial text and persists best-effort", func() {
			srv := httptest.NewServer(func() http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "text/event-stream")
					flusher := w.(http.Flusher)
					for _, chunk := range []string{
						"data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\n\n",
						"data: {\"choices\":[{\"delta\":{\"content\":\"B\"}}]}\n\n",
					} {
						_, _ = w.Write([]byte(chunk))
						flusher.Flush()
					}
					// Hold the stream open until the client goes away.
					<-r.Context().Done()
				}
			}())
			defer srv.Close()

			f := newFixture(srv.URL)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			f.tr.Subscribe(func(turns []llm.Turn) {
				last := turns[len(turns)-1]
				if last.Role == llm.RoleAssistant && last.Text == "AB" {
					cancel()
				}
			})

			err := f.client.Send(ctx, f.ref, "question", "")

			var streamErr *chat.Error
			Expect(errors.As(err, &streamErr)).To(BeTrue())
			Expect(streamErr.Category).To(Equal(chat.CategoryCancelled))
			Expect(f.client.State()).To(Equal(chat.StateAborted))

			// Partial text is not reverted.
			Expect(lastTurn(f.tr.Turns()).Text).To(Equal("AB"))

			persisted := f.drained()
			Expect(persisted).To(HaveLen(2))
			Expect(persisted[1].Text).To(Equal("AB"))
		})
	})

	Describe("protocol violations", func() {
		It("reports a payload that never recombines, keeping partial text", func() {
			srv := httptest.NewServer(streamHandler(
				"data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n",
				"data: {\"choices\":[{\"delta\"\n\n",
			))
			defer srv.Close()

			f := newFixture(srv.URL)
			err := f.client.Send(context.Background(), f.ref, "hi", "")

			var streamErr *chat.Error
			Expect(errors.As(err, &streamErr)).To(BeTrue())
			Expect(streamErr.Category).To(Equal(chat.CategoryProtocolViolation))
			Expect(f.client.State()).To(Equal(chat.StateFailed))

			// Accumulated text stays visible and is still persisted.
			Expect(lastTurn(f.tr.Turns()).Text).To(Equal("partial"))

			persisted := f.drained()
			Expect(persisted).To(HaveLen(2))
			Expect(persisted[1].Text).To(Equal("partial"))
		})
	})

	Describe("concurrent sends", func() {
		It("rejects a send while a stream is active", func() {
			release := make(chan struct{})
			srv := httptest.NewServer(func() http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "text/event-stream")
					flusher := w.(http.Flusher)
					_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n"))
					flusher.Flush()
					select {
					case <-release:
					case <-r.Context().Done():
					}
				}
			}())
			defer srv.Close()

			f := newFixture(srv.URL)

			firstDone := make(chan error, 1)
			go func() {
				firstDone <- f.client.Send(context.Background(), f.ref, "first", "")
			}()

			Eventually(f.client.State).Should(Equal(chat.StateStreaming))

			err := f.client.Send(context.Background(), f.ref, "second", "")
			Expect(err).To(MatchError(chat.ErrStreamInProgress))

			close(release)
			Eventually(firstDone).Should(Receive(Succeed()))
		})
	})
})
