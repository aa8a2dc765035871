// Package assistant – client.go implements the HTTP client for the
// hosted Assistants API (threads, messages, runs, vector stores).
// Uses the OpenAI wire format; any compatible endpoint works via
// the configurable base URL.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Run status values reported by the remote service.
const (
	RunStatusQueued         = "queued"
	RunStatusInProgress     = "in_progress"
	RunStatusRequiresAction = "requires_action"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"
	RunStatusCancelled      = "cancelled"
	RunStatusExpired        = "expired"
)

// EscalationToolName is the function tool the assistant calls when a
// conversation should be handed to a human.
const EscalationToolName = "open_real_person_dialog"

// ---------- Client ----------

// Client handles communication with the assistant provider API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the given base URL and API key.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger.With("component", "assistant"),
	}
}

// ---------- Wire Types ----------

// Thread is a remote conversation session.
type Thread struct {
	ID string `json:"id"`
}

// ThreadMessage is one message inside a remote thread.
type ThreadMessage struct {
	ID        string           `json:"id"`
	Role      string           `json:"role"`
	Content   []messageContent `json:"content"`
	CreatedAt int64            `json:"created_at"`
}

// Text returns the first text segment of the message content.
func (m *ThreadMessage) Text() string {
	for _, c := range m.Content {
		if c.Type == "text" {
			return c.Text.Value
		}
	}
	return ""
}

type messageContent struct {
	Type string `json:"type"`
	Text struct {
		Value string `json:"value"`
	} `json:"text"`
}

// Run is one invocation of the assistant against a thread.
type Run struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	RequiredAction *RequiredAction `json:"required_action,omitempty"`
	LastError      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error,omitempty"`
}

// RequiredAction carries the tool calls a run is blocked on.
type RequiredAction struct {
	SubmitToolOutputs struct {
		ToolCalls []ToolCall `json:"tool_calls"`
	} `json:"submit_tool_outputs"`
}

// ToolCall is a tool invocation requested by the assistant.
type ToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ToolDefinition declares a tool in the assistant profile.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function *FunctionDef `json:"function,omitempty"`
}

// FunctionDef describes a callable function exposed to the assistant.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// AssistantProfile is the remote assistant definition.
type AssistantProfile struct {
	ID string `json:"id"`
}

// VectorStore is a remote document index backing file_search.
type VectorStore struct {
	ID string `json:"id"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type listMessagesResponse struct {
	Data []ThreadMessage `json:"data"`
}

// ---------- Thread & Run Operations ----------

// CreateThread creates a new remote session.
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	var thread Thread
	if err := c.doJSON(ctx, http.MethodPost, "/threads", map[string]any{}, &thread); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	c.logger.Debug("thread created", "thread_id", thread.ID)
	return &thread, nil
}

// AddMessage appends a user message to a thread.
func (c *Client) AddMessage(ctx context.Context, threadID, role, content string) error {
	body := map[string]any{"role": role, "content": content}
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, nil); err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// CreateRun starts a run of the given assistant against a thread.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	body := map[string]any{"assistant_id": assistantID}
	var run Run
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, &run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return &run, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// ListMessages returns the messages of a thread, newest first.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	var resp listMessagesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/messages", nil, &resp); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return resp.Data, nil
}

// ---------- Provisioning Operations ----------

// CreateAssistant creates a remote assistant profile.
func (c *Client) CreateAssistant(ctx context.Context, name, model, instructions string, tools []ToolDefinition, vectorStoreID string) (*AssistantProfile, error) {
	body := map[string]any{
		"name":         name,
		"model":        model,
		"instructions": instructions,
		"tools":        tools,
	}
	if vectorStoreID != "" {
		body["tool_resources"] = map[string]any{
			"file_search": map[string]any{
				"vector_store_ids": []string{vectorStoreID},
			},
		}
	}
	var profile AssistantProfile
	if err := c.doJSON(ctx, http.MethodPost, "/assistants", body, &profile); err != nil {
		return nil, fmt.Errorf("create assistant: %w", err)
	}
	c.logger.Info("assistant created", "assistant_id", profile.ID, "model", model)
	return &profile, nil
}

// CreateVectorStore creates a document index for file_search.
func (c *Client) CreateVectorStore(ctx context.Context, name string) (*VectorStore, error) {
	var vs VectorStore
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores", map[string]any{"name": name}, &vs); err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	return &vs, nil
}

// SetVectorStoreExpiry configures automatic expiry after the given
// number of days of inactivity.
func (c *Client) SetVectorStoreExpiry(ctx context.Context, vectorStoreID string, days int) error {
	body := map[string]any{
		"expires_after": map[string]any{
			"anchor": "last_active_at",
			"days":   days,
		},
	}
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores/"+vectorStoreID, body, nil); err != nil {
		return fmt.Errorf("set vector store expiry: %w", err)
	}
	return nil
}

// UploadFile uploads a local file with purpose "assistants" and returns
// the remote file id.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "assistants"); err != nil {
		return "", fmt.Errorf("write purpose field: %w", err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy file contents: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var file struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &file); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	return file.ID, nil
}

// AttachFileToVectorStore indexes an uploaded file into a vector store.
func (c *Client) AttachFileToVectorStore(ctx context.Context, vectorStoreID, fileID string) error {
	body := map[string]any{"file_id": fileID}
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores/"+vectorStoreID+"/files", body, nil); err != nil {
		return fmt.Errorf("attach file: %w", err)
	}
	return nil
}

// ---------- Internal ----------

func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
}

// doJSON performs a JSON request against the API and decodes the
// response into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("API key not configured. Run 'supportd config set-key' or set OPENAI_API_KEY")
	}

	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("assistant API call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("API returned %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
