package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// fakeNode emulates the fullnode REST surface the client talks to:
// account info, transaction submission, and by-hash polling.
type fakeNode struct {
	mu sync.Mutex

	srv *httptest.Server

	// outcome for the next submitted transaction
	success    bool
	vmStatus   string
	pendingFor int // polls answered "pending_transaction" before terminal

	submitted []txPayload
	polls     int
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()
	n := &fakeNode{success: true}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/accounts/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(accountInfo{SequenceNumber: "7"})
	})
	mux.HandleFunc("/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		var tx signedTx
		if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n.mu.Lock()
		n.submitted = append(n.submitted, tx.Payload)
		n.mu.Unlock()
		json.NewEncoder(w).Encode(pendingTx{Hash: "0xabc123"})
	})
	mux.HandleFunc("/v1/transactions/by_hash/", func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		n.polls++
		pending := n.polls <= n.pendingFor
		info := txInfo{Type: "user_transaction", Hash: "0xabc123", Success: n.success, VMStatus: n.vmStatus}
		n.mu.Unlock()
		if pending {
			json.NewEncoder(w).Encode(txInfo{Type: "pending_transaction", Hash: "0xabc123"})
			return
		}
		json.NewEncoder(w).Encode(info)
	})

	n.srv = httptest.NewServer(mux)
	t.Cleanup(n.srv.Close)
	return n
}

func (n *fakeNode) lastPayload(t *testing.T) txPayload {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.submitted) == 0 {
		t.Fatal("no transaction submitted")
	}
	return n.submitted[len(n.submitted)-1]
}

func newTestClient(t *testing.T, node *fakeNode) *NodeClient {
	t.Helper()
	signer, err := NewSigner(testSeed)
	if err != nil {
		t.Fatalf("signer setup failed: %v", err)
	}
	c := NewNodeClient(node.srv.URL, signer, signer.Address())
	c.pollInterval = time.Millisecond
	return c
}

func TestInitEscrow_Confirmed(t *testing.T) {
	node := newFakeNode(t)
	node.vmStatus = "Executed successfully"
	c := newTestClient(t, node)

	res, err := c.InitEscrow(context.Background(), "market-1")
	if err != nil {
		t.Fatalf("InitEscrow: %v", err)
	}
	if !res.Success {
		t.Error("expected a successful result")
	}
	if res.Hash != "0xabc123" {
		t.Errorf("hash = %q, want 0xabc123", res.Hash)
	}

	payload := node.lastPayload(t)
	if !strings.HasSuffix(payload.Function, "::market::init_market") {
		t.Errorf("function = %q, want ::market::init_market suffix", payload.Function)
	}
	if len(payload.Arguments) != 1 {
		t.Fatalf("arguments = %v, want one seed argument", payload.Arguments)
	}
}

func TestInitEscrow_AlreadyInitialized(t *testing.T) {
	node := newFakeNode(t)
	node.success = false
	node.vmStatus = "Move abort: EESCROW_EXISTS"
	c := newTestClient(t, node)

	_, err := c.InitEscrow(context.Background(), "market-1")
	if !errors.Is(err, ErrEscrowExists) {
		t.Fatalf("err = %v, want ErrEscrowExists", err)
	}
}

func TestPlaceStake_WaitsOutPending(t *testing.T) {
	node := newFakeNode(t)
	node.pendingFor = 3
	c := newTestClient(t, node)

	escrow := DeriveEscrowAddress(c.signer.Address(), "market-1")
	res, err := c.PlaceStake(context.Background(), escrow, 1, decimal.RequireFromString("10"))
	if err != nil {
		t.Fatalf("PlaceStake: %v", err)
	}
	if !res.Success {
		t.Error("expected a successful result")
	}
	if node.polls < 4 {
		t.Errorf("polls = %d, want at least 4", node.polls)
	}

	payload := node.lastPayload(t)
	if !strings.HasSuffix(payload.Function, "::market::place_bet") {
		t.Errorf("function = %q, want ::market::place_bet suffix", payload.Function)
	}
	want := []any{escrow.Hex(), "1", "10"}
	if len(payload.Arguments) != len(want) {
		t.Fatalf("arguments = %v, want %v", payload.Arguments, want)
	}
	for i := range want {
		if payload.Arguments[i] != want[i] {
			t.Errorf("argument %d = %v, want %v", i, payload.Arguments[i], want[i])
		}
	}
}

func TestPlaceStake_FailedTransaction(t *testing.T) {
	node := newFakeNode(t)
	node.success = false
	node.vmStatus = "Move abort: EINSUFFICIENT_BALANCE"
	c := newTestClient(t, node)

	escrow := DeriveEscrowAddress(c.signer.Address(), "market-1")
	res, err := c.PlaceStake(context.Background(), escrow, 0, decimal.RequireFromString("10"))
	if !errors.Is(err, ErrTxFailed) {
		t.Fatalf("err = %v, want ErrTxFailed", err)
	}
	if res.Success {
		t.Error("failed transaction must not report success")
	}
	if !strings.Contains(err.Error(), "EINSUFFICIENT_BALANCE") {
		t.Errorf("error should carry the vm status, got %v", err)
	}
}

func TestResolve_SubmitsWinningSide(t *testing.T) {
	node := newFakeNode(t)
	c := newTestClient(t, node)

	escrow := DeriveEscrowAddress(c.signer.Address(), "market-1")
	if _, err := c.Resolve(context.Background(), escrow, 0); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	payload := node.lastPayload(t)
	if !strings.HasSuffix(payload.Function, "::market::resolve") {
		t.Errorf("function = %q, want ::market::resolve suffix", payload.Function)
	}
	if payload.Arguments[1] != "0" {
		t.Errorf("winning side argument = %v, want \"0\"", payload.Arguments[1])
	}
}

func TestWaitForTransaction_ContextCancel(t *testing.T) {
	node := newFakeNode(t)
	node.pendingFor = 1 << 30
	c := newTestClient(t, node)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.PlaceStake(ctx, DeriveEscrowAddress(c.signer.Address(), "m"), 0, decimal.RequireFromString("1"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline", err)
	}
}
