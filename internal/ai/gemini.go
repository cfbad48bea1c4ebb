package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beeziehmf/threadyflow-app/internal/id"
	"github.com/beeziehmf/threadyflow-app/internal/types"
)

const defaultTimeout = 30 * time.Second

const threadSystemInstruction = "You are a world-class social media manager specializing in creating engaging, viral threads for B2B brands on platforms like Meta Threads. Your tone is professional, insightful, and designed to capture the attention of a business audience. Generate a thread based on the user's idea."

const voiceSystemInstruction = "You are a brand strategist. Analyze the provided writing samples and describe the author's voice so that future content can be written in the same voice."

// Config carries the connection settings for a Gemini-compatible endpoint.
type Config struct {
	BaseURL string // e.g. https://generativelanguage.googleapis.com
	APIKey  string
	Model   string // e.g. gemini-2.5-flash
	Timeout time.Duration
}

// Client talks to a generateContent endpoint. It implements Generator.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a Client. A zero Timeout falls back to defaultTimeout.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// ─── Wire types ───────────────────────────────────────────────────────────────

type generateRequest struct {
	SystemInstruction content          `json:"system_instruction"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType"`
	ResponseSchema   json.RawMessage `json:"responseSchema"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// threadSchema constrains thread generation output.
var threadSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"threadTitle": {"type": "STRING", "description": "A catchy, short title for the entire thread."},
		"posts": {"type": "ARRAY", "description": "Each string is a single, concise post in the thread, at most 280 characters.", "items": {"type": "STRING"}},
		"hashtags": {"type": "ARRAY", "description": "3-5 relevant hashtags for the thread.", "items": {"type": "STRING"}}
	},
	"required": ["threadTitle", "posts", "hashtags"]
}`)

// voiceSchema constrains voice analysis output.
var voiceSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"tone": {"type": "STRING"},
		"style": {"type": "STRING"},
		"description": {"type": "STRING", "description": "A short summary of the author's voice."}
	},
	"required": ["tone", "style", "description"]
}`)

// ─── Generator ────────────────────────────────────────────────────────────────

// GenerateThread implements Generator.
func (c *Client) GenerateThread(ctx context.Context, idea string, voice *types.VoiceProfile) (types.Thread, error) {
	if strings.TrimSpace(idea) == "" {
		return types.Thread{}, fmt.Errorf("ai: idea must not be empty")
	}

	instruction := threadSystemInstruction
	if voice != nil {
		instruction += fmt.Sprintf(" Write in the brand's own voice. Tone: %s. Style: %s. Voice summary: %s.",
			voice.Tone, voice.Style, voice.Description)
	}
	prompt := fmt.Sprintf("Based on the following idea, create a compelling thread with multiple posts. The idea is: %q", idea)

	raw, err := c.generate(ctx, instruction, prompt, threadSchema)
	if err != nil {
		return types.Thread{}, err
	}

	var out struct {
		ThreadTitle string   `json:"threadTitle"`
		Posts       []string `json:"posts"`
		Hashtags    []string `json:"hashtags"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return types.Thread{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if out.ThreadTitle == "" || len(out.Posts) == 0 {
		return types.Thread{}, fmt.Errorf("%w: missing title or posts", ErrBadResponse)
	}

	thread := types.Thread{Title: out.ThreadTitle, Hashtags: out.Hashtags}
	for _, text := range out.Posts {
		thread.Posts = append(thread.Posts, types.PostSegment{ID: id.MustNew(), Text: text})
	}
	return thread, nil
}

// AnalyzeVoice implements Generator.
func (c *Client) AnalyzeVoice(ctx context.Context, samples []string) (types.VoiceProfile, error) {
	if len(samples) == 0 {
		return types.VoiceProfile{}, fmt.Errorf("ai: at least one writing sample is required")
	}

	var b strings.Builder
	b.WriteString("Analyze the voice of the following writing samples.\n")
	for i, s := range samples {
		fmt.Fprintf(&b, "\nSample %d:\n%s\n", i+1, s)
	}

	raw, err := c.generate(ctx, voiceSystemInstruction, b.String(), voiceSchema)
	if err != nil {
		return types.VoiceProfile{}, err
	}

	var profile types.VoiceProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return types.VoiceProfile{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return profile, nil
}

// generate POSTs one generateContent call and returns the first candidate's
// text, which per the response schema is a JSON document.
func (c *Client) generate(ctx context.Context, instruction, prompt string, schema json.RawMessage) (string, error) {
	reqBody := generateRequest{
		SystemInstruction: content{Parts: []part{{Text: instruction}}},
		Contents:          []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("ai: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ai: endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrBadResponse)
	}
	return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
}
