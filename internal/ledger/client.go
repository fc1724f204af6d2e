package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrEscrowExists is returned by InitEscrow when the escrow account
	// was already initialized. Callers treat it as success — escrow
	// provisioning is lazy and may be attempted redundantly.
	ErrEscrowExists = errors.New("ledger: escrow already initialized")

	// ErrTxFailed is returned when a submitted transaction reaches a
	// terminal failed state (rejected, aborted, out of gas).
	ErrTxFailed = errors.New("ledger: transaction failed")
)

// TxResult is the terminal outcome of a ledger operation. The client
// never returns a pending result: it blocks until the transaction is
// confirmed or failed.
type TxResult struct {
	Hash     string `json:"hash"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status"`
}

// Client is the settlement-ledger contract the orchestrator and the
// resolution scheduler depend on. Implementations must block until the
// operation reaches a terminal state.
type Client interface {
	// InitEscrow creates the escrow account for a market. Idempotent
	// from the caller's perspective: a redundant call returns
	// ErrEscrowExists, which callers swallow.
	InitEscrow(ctx context.Context, marketID string) (TxResult, error)

	// PlaceStake moves a stake into the escrow for the given side.
	PlaceStake(ctx context.Context, escrow Address, side int, amount decimal.Decimal) (TxResult, error)

	// Resolve pays out the escrow to the winning side, minus the
	// protocol fee.
	Resolve(ctx context.Context, escrow Address, winningSide int) (TxResult, error)
}

// NodeClient implements Client against a settlement fullnode's REST API.
// All operations are entry-function calls into the deployed market
// module, signed by the custodial backend signer.
type NodeClient struct {
	baseURL      string
	httpClient   *http.Client
	signer       *Signer
	moduleAddr   Address
	pollInterval time.Duration
}

// NewNodeClient creates a client for the fullnode at baseURL. moduleAddr
// is the account the market module is published under — typically the
// deployer account itself.
func NewNodeClient(baseURL string, signer *Signer, moduleAddr Address) *NodeClient {
	return &NodeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer:       signer,
		moduleAddr:   moduleAddr,
		pollInterval: 500 * time.Millisecond,
	}
}

func (c *NodeClient) InitEscrow(ctx context.Context, marketID string) (TxResult, error) {
	seed := "0x" + hex.EncodeToString([]byte(marketID))
	res, err := c.submitAndWait(ctx, "init_market", []any{seed})
	if err != nil {
		if isAlreadyInitialized(res.VMStatus) {
			return res, ErrEscrowExists
		}
		return res, err
	}
	return res, nil
}

func (c *NodeClient) PlaceStake(ctx context.Context, escrow Address, side int, amount decimal.Decimal) (TxResult, error) {
	return c.submitAndWait(ctx, "place_bet", []any{escrow.Hex(), strconv.Itoa(side), amount.String()})
}

func (c *NodeClient) Resolve(ctx context.Context, escrow Address, winningSide int) (TxResult, error) {
	return c.submitAndWait(ctx, "resolve", []any{escrow.Hex(), strconv.Itoa(winningSide)})
}

// --- fullnode API types ---

type txPayload struct {
	Type          string   `json:"type"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

type unsignedTx struct {
	Sender         string    `json:"sender"`
	SequenceNumber string    `json:"sequence_number"`
	Payload        txPayload `json:"payload"`
}

type signedTx struct {
	unsignedTx
	Signature txSignature `json:"signature"`
}

type txSignature struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

type accountInfo struct {
	SequenceNumber string `json:"sequence_number"`
}

type pendingTx struct {
	Hash string `json:"hash"`
}

type txInfo struct {
	Type     string `json:"type"` // "pending_transaction" until terminal
	Hash     string `json:"hash"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status"`
}

// submitAndWait builds, signs, and submits an entry-function call, then
// polls until the transaction is terminal. On a failed transaction it
// returns the TxResult alongside an error wrapping ErrTxFailed.
func (c *NodeClient) submitAndWait(ctx context.Context, function string, args []any) (TxResult, error) {
	seq, err := c.sequenceNumber(ctx)
	if err != nil {
		return TxResult{}, err
	}

	unsigned := unsignedTx{
		Sender:         c.signer.Address().Hex(),
		SequenceNumber: seq,
		Payload: txPayload{
			Type:          "entry_function_payload",
			Function:      fmt.Sprintf("%s::market::%s", c.moduleAddr.Hex(), function),
			TypeArguments: []string{},
			Arguments:     args,
		},
	}

	// The node verifies the signature over the canonical JSON encoding
	// of the unsigned transaction.
	signingMsg, err := json.Marshal(unsigned)
	if err != nil {
		return TxResult{}, fmt.Errorf("ledger: encode transaction: %w", err)
	}

	tx := signedTx{
		unsignedTx: unsigned,
		Signature: txSignature{
			Type:      "ed25519_signature",
			PublicKey: c.signer.PublicKeyHex(),
			Signature: "0x" + hex.EncodeToString(c.signer.Sign(signingMsg)),
		},
	}

	var pending pendingTx
	if err := c.doRequest(ctx, http.MethodPost, "/v1/transactions", tx, &pending); err != nil {
		return TxResult{}, fmt.Errorf("ledger: submit %s: %w", function, err)
	}

	return c.waitForTransaction(ctx, pending.Hash)
}

// waitForTransaction polls until the transaction leaves the pending
// state. The orchestrator never observes an intermediate state.
func (c *NodeClient) waitForTransaction(ctx context.Context, hash string) (TxResult, error) {
	for {
		var info txInfo
		err := c.doRequest(ctx, http.MethodGet, "/v1/transactions/by_hash/"+hash, nil, &info)
		if err == nil && info.Type != "pending_transaction" {
			res := TxResult{Hash: info.Hash, Success: info.Success, VMStatus: info.VMStatus}
			if !info.Success {
				return res, fmt.Errorf("%w: %s (tx %s)", ErrTxFailed, info.VMStatus, hash)
			}
			return res, nil
		}
		// 404 right after submit means the node has not indexed the
		// transaction yet; keep polling.

		select {
		case <-ctx.Done():
			return TxResult{Hash: hash}, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *NodeClient) sequenceNumber(ctx context.Context) (string, error) {
	var info accountInfo
	err := c.doRequest(ctx, http.MethodGet, "/v1/accounts/"+c.signer.Address().Hex(), nil, &info)
	if err != nil {
		return "", fmt.Errorf("ledger: fetch sequence number: %w", err)
	}
	return info.SequenceNumber, nil
}

func (c *NodeClient) doRequest(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}

// isAlreadyInitialized matches the abort the market module raises when
// init_market runs against an existing escrow account.
func isAlreadyInitialized(vmStatus string) bool {
	s := strings.ToUpper(vmStatus)
	return strings.Contains(s, "EESCROW_EXISTS") ||
		strings.Contains(s, "ERESOURCE_ACCOUNT_ALREADY_EXISTS") ||
		strings.Contains(s, "ALREADY EXISTS")
}
