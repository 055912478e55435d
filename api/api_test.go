package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marketstead/chatstream/api"
	"github.com/marketstead/chatstream/pkg/llm"
	"github.com/marketstead/chatstream/pkg/logger"
	"github.com/marketstead/chatstream/pkg/storage/inmemory"
)

var _ = Describe("Server", func() {
	var (
		server *api.Server
		store  *inmemory.Store
		ref    llm.ConversationRef
	)

	BeforeEach(func() {
		store = inmemory.NewStore()
		server = api.NewServer(api.Config{ListenAddr: ":0"}, store, logger.Nop())
		ref = llm.ConversationRef{UserID: "u1", Topic: "billing"}
	})

	get := func(path string) (*http.Response, []byte) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := server.App().Test(req)
		Expect(err).NotTo(HaveOccurred())
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, body
	}

	Describe("GET /ping", func() {
		It("returns pong", func() {
			resp, body := get("/ping")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring("pong"))
		})
	})

	Describe("GET /conversations/:user/:topic/history", func() {
		BeforeEach(func() {
			ctx := context.Background()
			Expect(store.SaveTurn(ctx, ref, llm.NewUserTurn("first", ""))).To(Succeed())
			Expect(store.SaveTurn(ctx, ref, llm.Turn{Role: llm.RoleAssistant, Text: "second"})).To(Succeed())
			Expect(store.SaveTurn(ctx, ref, llm.NewUserTurn("third", "img.png"))).To(Succeed())
		})

		It("returns all turns oldest first", func() {
			resp, body := get("/conversations/u1/billing/history")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var history api.HistoryResponse
			Expect(json.Unmarshal(body, &history)).To(Succeed())
			Expect(history.Count).To(Equal(3))
			Expect(history.Conversation).To(Equal(ref))
			Expect(history.Turns[0].Text).To(Equal("first"))
			Expect(history.Turns[1].Role).To(Equal("assistant"))
			Expect(history.Turns[2].ImageRef).To(Equal("img.png"))
		})

		It("caps the result to the most recent turns with limit", func() {
			resp, body := get("/conversations/u1/billing/history?limit=2")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var history api.HistoryResponse
			Expect(json.Unmarshal(body, &history)).To(Succeed())
			Expect(history.Count).To(Equal(2))
			Expect(history.Turns[0].Text).To(Equal("second"))
			Expect(history.Turns[1].Text).To(Equal("third"))
		})

		It("returns an empty history for an unknown conversation", func() {
			resp, body := get("/conversations/nobody/nothing/history")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var history api.HistoryResponse
			Expect(json.Unmarshal(body, &history)).To(Succeed())
			Expect(history.Count).To(Equal(0))
			Expect(history.Turns).To(BeEmpty())
		})

		It("rejects a non-numeric limit", func() {
			resp, _ := get("/conversations/u1/billing/history?limit=abc")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a negative limit", func() {
			resp, _ := get("/conversations/u1/billing/history?limit=-1")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})
})
