package rpc_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/recurpay/internal/chain"
	"github.com/frahmantamala/recurpay/internal/chain/rpc"
)

func TestRPC(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Chain RPC Suite")
}

type relay struct {
	mu      sync.Mutex
	calls   map[string]int
	methods map[string]func(params []json.RawMessage, call int) (interface{}, *rpc.RPCError)
}

func (r *relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	var in struct {
		ID     int64             `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	_ = json.Unmarshal(body, &in)

	r.mu.Lock()
	r.calls[in.Method]++
	n := r.calls[in.Method]
	handler := r.methods[in.Method]
	r.mu.Unlock()

	out := map[string]interface{}{"jsonrpc": "2.0", "id": in.ID}
	if handler == nil {
		out["error"] = rpc.RPCError{Code: -32601, Message: "method not found"}
	} else {
		result, rpcErr := handler(in.Params, n)
		if rpcErr != nil {
			out["error"] = rpcErr
		} else {
			out["result"] = result
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (r *relay) count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

var _ = Describe("Client", func() {
	var (
		server *httptest.Server
		fake   *relay
		client *rpc.Client
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &relay{
			calls:   map[string]int{},
			methods: map[string]func([]json.RawMessage, int) (interface{}, *rpc.RPCError){},
		}
		server = httptest.NewServer(fake)
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		client = rpc.NewClient(rpc.Config{URL: server.URL, Timeout: time.Second, PollInterval: time.Millisecond}, logger)
	})

	AfterEach(func() {
		server.Close()
	})

	It("reads the latest block reference", func() {
		fake.methods["getLatestBlockhash"] = func([]json.RawMessage, int) (interface{}, *rpc.RPCError) {
			return map[string]interface{}{"value": map[string]interface{}{"blockhash": "abc", "lastValidBlockHeight": 99}}, nil
		}

		block, err := client.LatestBlockReference(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(block.Hash).To(Equal("abc"))
		Expect(block.LastValidBlockHeight).To(Equal(uint64(99)))
	})

	It("submits base64 transactions and defaults the delivery method", func() {
		var received string
		fake.methods["sendTransaction"] = func(params []json.RawMessage, _ int) (interface{}, *rpc.RPCError) {
			_ = json.Unmarshal(params[0], &received)
			return map[string]interface{}{"signature": "sig-1"}, nil
		}

		res, err := client.Submit(ctx, []byte(`{"fee_payer":"x"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Signature).To(Equal("sig-1"))
		Expect(res.DeliveryMethod).To(Equal("rpc"))
		Expect(received).To(Equal("eyJmZWVfcGF5ZXIiOiJ4In0="))
	})

	It("surfaces relay errors", func() {
		fake.methods["sendTransaction"] = func([]json.RawMessage, int) (interface{}, *rpc.RPCError) {
			return nil, &rpc.RPCError{Code: -32002, Message: "blockhash not found"}
		}

		_, err := client.Submit(ctx, []byte("{}"))
		Expect(err).To(MatchError(ContainSubstring("blockhash not found")))
	})

	Describe("Confirm", func() {
		It("polls until the signature is confirmed", func() {
			fake.methods["getSignatureStatuses"] = func(_ []json.RawMessage, call int) (interface{}, *rpc.RPCError) {
				if call < 3 {
					return map[string]interface{}{"value": []interface{}{nil}}, nil
				}
				return map[string]interface{}{"value": []interface{}{map[string]interface{}{"confirmationStatus": "confirmed", "err": nil}}}, nil
			}

			ok, err := client.Confirm(ctx, "sig", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(fake.count("getSignatureStatuses")).To(Equal(3))
		})

		It("reports a timeout as not confirmed", func() {
			fake.methods["getSignatureStatuses"] = func([]json.RawMessage, int) (interface{}, *rpc.RPCError) {
				return map[string]interface{}{"value": []interface{}{map[string]interface{}{"confirmationStatus": "processed"}}}, nil
			}

			ok, err := client.Confirm(ctx, "sig", 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(fake.count("getSignatureStatuses")).To(Equal(4))
		})

		It("fails fast when the transaction errored on chain", func() {
			fake.methods["getSignatureStatuses"] = func([]json.RawMessage, int) (interface{}, *rpc.RPCError) {
				return map[string]interface{}{"value": []interface{}{map[string]interface{}{"confirmationStatus": "confirmed", "err": map[string]interface{}{"InstructionError": 1}}}}, nil
			}

			ok, err := client.Confirm(ctx, "sig", 4)
			Expect(ok).To(BeFalse())
			Expect(err).To(MatchError(chain.ErrTransactionError))
		})
	})

	It("maps a null token account to ErrAccountNotFound", func() {
		fake.methods["getTokenAccount"] = func([]json.RawMessage, int) (interface{}, *rpc.RPCError) {
			return nil, nil
		}

		_, err := client.TokenAccount(ctx, "acct")
		Expect(err).To(MatchError(chain.ErrAccountNotFound))
	})

	It("decodes token account delegation state", func() {
		fake.methods["getTokenAccount"] = func([]json.RawMessage, int) (interface{}, *rpc.RPCError) {
			return map[string]interface{}{"owner": "o", "mint": "m", "amount": 50, "delegate": "d", "delegatedAmount": 30}, nil
		}

		acc, err := client.TokenAccount(ctx, "acct")
		Expect(err).NotTo(HaveOccurred())
		Expect(acc.Address).To(Equal("acct"))
		Expect(acc.Delegate).To(Equal("d"))
		Expect(acc.DelegatedAmount).To(Equal(int64(30)))
	})
})
