// Package ingest imports agent session transcripts as episodes so that
// past conversations become consolidatable memory.
package ingest

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// TranscriptMessage represents the message field within a JSONL entry.
type TranscriptMessage struct {
	ID      string          `json:"id"`
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
}

// TranscriptBlock represents a content block in a transcript message.
type TranscriptBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TranscriptEntry represents a single line in a JSONL session transcript.
type TranscriptEntry struct {
	Type       string             `json:"type"`
	UUID       string             `json:"uuid"`
	ParentUUID *string            `json:"parentUuid"`
	Timestamp  string             `json:"timestamp"`
	SessionID  string             `json:"sessionId"`
	Message    *TranscriptMessage `json:"message"`
}

// TextContent extracts the text of the entry's message. Content arrives
// either as a plain string or as a list of typed blocks; both forms occur
// in the same transcript.
func (e *TranscriptEntry) TextContent() string {
	if e.Message == nil || len(e.Message.Content) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(e.Message.Content, &plain); err == nil {
		return plain
	}

	var blocks []TranscriptBlock
	if err := json.Unmarshal(e.Message.Content, &blocks); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// ScanTranscriptDir finds all JSONL files under the given directory.
func ScanTranscriptDir(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".jsonl") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// ParseTranscript reads a JSONL file and returns the conversational entries
// (user and assistant turns) in order. Assistant entries are deduplicated by
// message ID, keeping the last entry per message because streaming rewrites
// the same message with progressively more content.
func ParseTranscript(path string) ([]TranscriptEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	byKey := make(map[string]TranscriptEntry)
	var order []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // 10MB max line

	for scanner.Scan() {
		var entry TranscriptEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}

		if entry.Type != "user" && entry.Type != "assistant" {
			continue
		}
		if entry.Message == nil {
			continue
		}

		key := entry.Message.ID
		if key == "" {
			// User turns carry no message ID; the line UUID is unique.
			key = entry.UUID
		}
		if key == "" {
			continue
		}

		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = entry
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	entries := make([]TranscriptEntry, 0, len(order))
	for _, key := range order {
		entries = append(entries, byKey[key])
	}

	return entries, nil
}
