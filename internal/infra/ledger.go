package infra

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"key-lifecycle-service/internal/domain"
)

// LedgerClient は外部の改ざん検知台帳のHTTPクライアント。
// アンカーの成否は呼び出し側（監査サービス）が処理する。
type LedgerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewLedgerClient は新しいLedgerClientを生成する。
func NewLedgerClient(baseURL string, timeout time.Duration) *LedgerClient {
	return &LedgerClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type anchorRequest struct {
	Payload string `json:"payload"` // base64
}

type anchorResponse struct {
	Ref string `json:"ref"`
}

// Anchor は正規化ペイロードを台帳に記録し、アンカー参照を返す。
func (c *LedgerClient) Anchor(ctx context.Context, payload []byte) (string, error) {
	body, err := json.Marshal(anchorRequest{
		Payload: base64.StdEncoding.EncodeToString(payload),
	})
	if err != nil {
		return "", fmt.Errorf("encoding anchor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/anchors", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating anchor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anchoring to ledger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ledger returned status %d", resp.StatusCode)
	}

	var result anchorResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding anchor response: %w", err)
	}
	if result.Ref == "" {
		return "", fmt.Errorf("ledger returned empty anchor ref")
	}
	return result.Ref, nil
}

// Proof は指定アンカーのMerkle包含証明を取得する。
func (c *LedgerClient) Proof(ctx context.Context, ref string) (*domain.InclusionProof, error) {
	endpoint := fmt.Sprintf("%s/v1/anchors/%s/proof", c.baseURL, url.PathEscape(ref))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating proof request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching proof: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ledger returned status %d", resp.StatusCode)
	}

	var proof domain.InclusionProof
	if err := json.NewDecoder(resp.Body).Decode(&proof); err != nil {
		return nil, fmt.Errorf("decoding proof response: %w", err)
	}
	return &proof, nil
}
