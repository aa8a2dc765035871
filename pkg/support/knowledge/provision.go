// Package knowledge provisions the remote assistant profile and its
// document index at startup: create a vector store, upload the support
// documents, and create the assistant with file search plus the
// human-handover function tool.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/christried/GilgesBA/pkg/support/assistant"
)

// vectorStoreExpiryDays keeps the remote index from accumulating when
// the service is redeployed often.
const vectorStoreExpiryDays = 7

// defaultInstructions is the assistant system prompt used when the
// config does not supply one.
const defaultInstructions = `You are a customer support assistant. Always consult the provided
documents before answering. Be concise, friendly, and helpful, and only
answer questions related to the company and its products. Track your own
attempts to answer: if you fail to give a helpful, relevant answer in two
consecutive turns for the same question, call the open_real_person_dialog
function instead of answering a third time.`

// uploadExtensions lists the document types uploaded to the index.
var uploadExtensions = map[string]bool{
	".pdf":  true,
	".json": true,
	".txt":  true,
	".md":   true,
}

// Options configures provisioning.
type Options struct {
	// Name labels the assistant and its vector store.
	Name string

	// Model backs the assistant.
	Model string

	// Instructions overrides the built-in system prompt when non-empty.
	Instructions string

	// Dir holds the documents to upload. Empty skips the vector store
	// and creates an assistant without file search.
	Dir string
}

// Provision creates the vector store, uploads the knowledge documents
// and creates the assistant. Individual upload failures are logged and
// skipped; provisioning fails only when the assistant itself cannot be
// created.
func Provision(ctx context.Context, client *assistant.Client, opts Options, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "knowledge")

	instructions := opts.Instructions
	if instructions == "" {
		instructions = defaultInstructions
	}

	tools := []assistant.ToolDefinition{
		{
			Type: "function",
			Function: &assistant.FunctionDef{
				Name:        assistant.EscalationToolName,
				Description: "Opens a dialog for the user to enter their email and speak with a human agent. Call this after failing to provide a satisfactory answer twice.",
			},
		},
	}

	vectorStoreID := ""
	if opts.Dir != "" {
		id, err := buildVectorStore(ctx, client, opts.Name, opts.Dir, logger)
		if err != nil {
			// A missing knowledge base degrades answer quality but the
			// service still works; keep going without file search.
			logger.Error("vector store provisioning failed", "error", err)
		} else {
			vectorStoreID = id
			tools = append(tools, assistant.ToolDefinition{Type: "file_search"})
		}
	}

	profile, err := client.CreateAssistant(ctx, opts.Name, opts.Model, instructions, tools, vectorStoreID)
	if err != nil {
		return "", fmt.Errorf("provision assistant: %w", err)
	}
	return profile.ID, nil
}

// buildVectorStore creates the index and uploads every supported file
// in dir.
func buildVectorStore(ctx context.Context, client *assistant.Client, name, dir string, logger *slog.Logger) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read knowledge dir: %w", err)
	}

	vs, err := client.CreateVectorStore(ctx, name+" Knowledge Base")
	if err != nil {
		return "", err
	}

	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !uploadExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		fileID, err := client.UploadFile(ctx, path)
		if err != nil {
			logger.Error("knowledge upload failed", "file", path, "error", err)
			continue
		}
		if err := client.AttachFileToVectorStore(ctx, vs.ID, fileID); err != nil {
			logger.Error("knowledge indexing failed", "file", path, "error", err)
			continue
		}
		logger.Info("knowledge document uploaded", "file", path)
		uploaded++
	}

	if err := client.SetVectorStoreExpiry(ctx, vs.ID, vectorStoreExpiryDays); err != nil {
		logger.Warn("setting vector store expiry failed", "error", err)
	}

	logger.Info("vector store ready", "vector_store_id", vs.ID, "documents", uploaded)
	return vs.ID, nil
}
