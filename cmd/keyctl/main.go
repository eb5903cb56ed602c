// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	apiURL    string
	output    string
	timeout   time.Duration
	actorID   string
	actorRole string
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	rootCmd := &cobra.Command{
		Use:   "keyctl",
		Short: "Key Lifecycle Service CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("KEYCTL_API_URL")
			}
			if actorID == "" {
				actorID = os.Getenv("KEYCTL_ACTOR_ID")
			}
			if actorRole == "" {
				actorRole = os.Getenv("KEYCTL_ACTOR_ROLE")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set KEYCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", "", "Actor ID sent as X-Actor-Id (or set KEYCTL_ACTOR_ID)")
	rootCmd.PersistentFlags().StringVar(&actorRole, "role", "", "Actor role sent as X-Actor-Role (or set KEYCTL_ACTOR_ROLE)")

	// サブコマンド登録
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(rotateCmd())
	rootCmd.AddCommand(revokeCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("keyctl version %s\n", version)
		},
	}
}

// doRequest はアクターヘッダ付きでAPIリクエストを実行し、レスポンス本文を返す。
func doRequest(method, url string, payload any, wantStatus int) ([]byte, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set KEYCTL_API_URL)")
	}

	var bodyReader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actorID != "" {
		req.Header.Set("X-Actor-Id", actorID)
	}
	if actorRole != "" {
		req.Header.Set("X-Actor-Role", actorRole)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

// generateCmd は鍵の生成コマンド。
func generateCmd() *cobra.Command {
	var algorithm string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new key",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := doRequest(http.MethodPost, apiURL+"/v1/keys",
				map[string]string{"algorithm": algorithm}, http.StatusCreated)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]interface{}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Generated %s key %v\n", algorithm, result["key_id"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "Key algorithm: kyber, dilithium, aes (required)")
	cmd.MarkFlagRequired("algorithm")
	return cmd
}

// rotateCmd は鍵のローテーションコマンド。
func rotateCmd() *cobra.Command {
	var keyID string
	var reason string
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate an active key",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("%s/v1/keys/%s/rotate", apiURL, keyID)
			body, err := doRequest(http.MethodPost, url,
				map[string]string{"reason": reason}, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]interface{}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Rotated key %v -> %v\n", result["old_key_id"], result["new_key_id"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keyID, "key", "", "Key ID (required)")
	cmd.Flags().StringVar(&reason, "reason", "Manual rotation", "Rotation reason")
	cmd.MarkFlagRequired("key")
	return cmd
}

// revokeCmd は鍵の失効コマンド。
func revokeCmd() *cobra.Command {
	var keyID string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a key as compromised",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("%s/v1/keys/%s/revoke", apiURL, keyID)
			body, err := doRequest(http.MethodPost, url, nil, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				fmt.Printf("Revoked key %s\n", keyID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keyID, "key", "", "Key ID (required)")
	cmd.MarkFlagRequired("key")
	return cmd
}

// listCmd は鍵一覧の取得コマンド。
func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := doRequest(http.MethodGet, apiURL+"/v1/keys", nil, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Keys []struct {
						KeyID      string `json:"key_id"`
						Algorithm  string `json:"algorithm"`
						Status     string `json:"status"`
						ExpiryDate string `json:"expiry_date"`
					} `json:"keys"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}

				fmt.Printf("%-34s %-10s %-12s %s\n", "KEY_ID", "ALGORITHM", "STATUS", "EXPIRES")
				for _, k := range result.Keys {
					fmt.Printf("%-34s %-10s %-12s %s\n", k.KeyID, k.Algorithm, k.Status, k.ExpiryDate)
				}
			}
			return nil
		},
	}
}

// auditCmd は監査エントリ一覧の取得コマンド。
func auditCmd() *cobra.Command {
	var action string
	var page, limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("%s/v1/audit/entries?page=%d&limit=%d", apiURL, page, limit)
			if action != "" {
				url += "&action=" + action
			}
			body, err := doRequest(http.MethodGet, url, nil, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Entries []struct {
						ID        string  `json:"id"`
						Action    string  `json:"action"`
						EntityID  string  `json:"entity_id"`
						LedgerRef *string `json:"ledger_ref"`
						CreatedAt string  `json:"created_at"`
					} `json:"entries"`
					Total int64 `json:"total"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}

				fmt.Printf("%-38s %-18s %-10s %s\n", "ID", "ACTION", "ANCHORED", "CREATED_AT")
				for _, e := range result.Entries {
					anchored := "no"
					if e.LedgerRef != nil {
						anchored = "yes"
					}
					fmt.Printf("%-38s %-18s %-10s %s\n", e.ID, e.Action, anchored, e.CreatedAt)
				}
				fmt.Printf("Total: %d\n", result.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "Filter by audit action")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "Page size")
	return cmd
}

// verifyCmd は監査エントリの検証コマンド。
func verifyCmd() *cobra.Command {
	var entryID string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an audit entry against the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("%s/v1/audit/entries/%s/verification", apiURL, entryID)
			body, err := doRequest(http.MethodGet, url, nil, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]interface{}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Entry %s: %v\n", entryID, result["status"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entryID, "entry", "", "Audit entry ID (required)")
	cmd.MarkFlagRequired("entry")
	return cmd
}

// statusCmd はシステム状態の取得コマンド。
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := doRequest(http.MethodGet, apiURL+"/v1/system/status", nil, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Status string           `json:"status"`
					Keys   map[string]int64 `json:"keys"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Status: %s\n", result.Status)
				for status, count := range result.Keys {
					fmt.Printf("  %-12s %d\n", status, count)
				}
			}
			return nil
		},
	}
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("Error: %s", errResp.Message)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
