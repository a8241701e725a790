package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"tenderbridge/internal/models"
)

// AgentClient talks to the local signing agent, the process that holds
// the user's keys and a node connection. The bridge never signs
// anything itself: reads pass straight through, mutations are handed
// to the agent for approval, signing and submission.
type AgentClient struct {
	base    string
	program string
	client  *http.Client
}

const receiptPollInterval = 500 * time.Millisecond

func NewAgentClient(endpoint, programAddress string, timeout time.Duration) *AgentClient {
	return &AgentClient{
		base:    endpoint,
		program: programAddress,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *AgentClient) ChainID(ctx context.Context) (string, error) {
	var out struct {
		ChainID string `json:"chainId"`
	}
	err := c.get(ctx, "/chain", nil, &out)
	if err != nil {
		return "", fmt.Errorf("ledger.AgentClient.ChainID: %w", err)
	}
	return out.ChainID, nil
}

func (c *AgentClient) GetCode(ctx context.Context, address string) (string, error) {
	var out struct {
		Code string `json:"code"`
	}
	err := c.get(ctx, "/code", url.Values{"address": {address}}, &out)
	if err != nil {
		return "", fmt.Errorf("ledger.AgentClient.GetCode: %w", err)
	}
	return out.Code, nil
}

func (c *AgentClient) Functions(ctx context.Context, address string) ([]string, error) {
	var out struct {
		Functions []string `json:"functions"`
	}
	err := c.get(ctx, "/functions", url.Values{"address": {address}}, &out)
	if err != nil {
		return nil, fmt.Errorf("ledger.AgentClient.Functions: %w", err)
	}
	return out.Functions, nil
}

func (c *AgentClient) Read(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	in := struct {
		Program string `json:"program"`
		Fn      string `json:"fn"`
		Args    []any  `json:"args,omitempty"`
	}{Program: c.program, Fn: fn, Args: args}

	var out struct {
		Data json.RawMessage `json:"data"`
	}
	err := c.post(ctx, "/read", in, &out)
	if err != nil {
		return nil, fmt.Errorf("ledger.AgentClient.Read %s: %w", fn, err)
	}
	return out.Data, nil
}

func (c *AgentClient) Send(ctx context.Context, fn string, actor string, args ...any) (PendingHandle, error) {
	in := struct {
		Program string `json:"program"`
		Fn      string `json:"fn"`
		Actor   string `json:"actor"`
		Args    []any  `json:"args,omitempty"`
	}{Program: c.program, Fn: fn, Actor: actor, Args: args}

	var out struct {
		Ref string `json:"ref"`
	}
	err := c.post(ctx, "/send", in, &out)
	if err != nil {
		return PendingHandle{}, fmt.Errorf("ledger.AgentClient.Send %s: %w", fn, err)
	}
	return PendingHandle{Ref: out.Ref}, nil
}

// AwaitFinalization polls the agent until the submitted call is
// finalized or reverted. Cancellation of ctx abandons the wait, not
// the call itself: the ledger may still finalize it later.
func (c *AgentClient) AwaitFinalization(ctx context.Context, handle PendingHandle) (*Receipt, error) {
	for {
		var out struct {
			Status string `json:"status"`
			Revert string `json:"revert,omitempty"`
			Facts  []Fact `json:"facts,omitempty"`
		}
		err := c.get(ctx, "/receipt", url.Values{"ref": {handle.Ref}}, &out)
		if err != nil {
			return nil, fmt.Errorf("ledger.AgentClient.AwaitFinalization: %w", err)
		}

		switch out.Status {
		case "finalized":
			return &Receipt{Ref: handle.Ref, Facts: out.Facts}, nil
		case "reverted":
			return nil, fmt.Errorf("ledger.AgentClient.AwaitFinalization: %w",
				&RevertError{Message: out.Revert})
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("ledger.AgentClient.AwaitFinalization: %w", wireErr(ctx.Err()))
		case <-time.After(receiptPollInterval):
		}
	}
}

//// Transport

func (c *AgentClient) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *AgentClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *AgentClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return wireErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return wireErr(err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if out == nil {
			return nil
		}
		return json.Unmarshal(body, out)
	case http.StatusConflict:
		return models.ErrUserCancelled
	case http.StatusUnprocessableEntity:
		var reject struct {
			Revert string `json:"revert"`
		}
		if json.Unmarshal(body, &reject) == nil && reject.Revert != "" {
			return &RevertError{Message: reject.Revert}
		}
		return &RevertError{Message: string(body)}
	}

	var fail struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &fail) == nil && fail.Error != "" {
		return fmt.Errorf("agent returned %d: %s: %w",
			resp.StatusCode, fail.Error, models.ErrLedgerUnavailable)
	}
	return fmt.Errorf("agent returned %d: %w", resp.StatusCode, models.ErrLedgerUnavailable)
}

// wireErr folds transport failures into the bridge taxonomy: deadline
// expiry is a timeout, everything else means the ledger cannot be
// reached.
func wireErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", err, models.ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s: %w", err, models.ErrLedgerUnavailable)
}
