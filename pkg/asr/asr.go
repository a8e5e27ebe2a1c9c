package asr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TranscriptResult is the (text, slots, confidence) triple the recognition
// boundary hands to the classifier. How the bridge produces it is not this
// service's concern.
type TranscriptResult struct {
	Text       string                 `json:"text"`
	Confidence float64                `json:"confidence"`
	Slots      map[string]interface{} `json:"slots,omitempty"`
}

type ITranscriber interface {
	Transcribe(audio []byte) (*TranscriptResult, error)
	IsConnected() bool
	Reconnect() error
	Close()
}

type transcriberClient struct {
	conn         *websocket.Conn
	mu           sync.Mutex
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewTranscriberClient() ITranscriber {
	client := &transcriberClient{
		readTimeout:  10 * time.Second,
		writeTimeout: 5 * time.Second,
	}

	go func() {
		if err := client.Reconnect(); err != nil {
			log.Printf("Initial connection to ASR bridge failed: %v. Will retry on demand.", err)
		} else {
			log.Printf("Successfully connected to ASR bridge")
		}
	}()

	return client
}

func (c *transcriberClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *transcriberClient) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialLocked()
}

func (c *transcriberClient) dialLocked() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	url := os.Getenv("ASR_WS_URL")
	if url == "" {
		return fmt.Errorf("ASR_WS_URL not set")
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to ASR bridge: %w", err)
	}

	c.conn = conn
	return nil
}

type transcribeRequest struct {
	AudioB64 string `json:"audio_b64"`
}

func (c *transcriberClient) Transcribe(audio []byte) (*TranscriptResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.dialLocked(); err != nil {
			return nil, err
		}
	}

	req := transcribeRequest{AudioB64: base64.StdEncoding.EncodeToString(audio)}
	message, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return nil, err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("failed to send audio to ASR bridge: %w", err)
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return nil, err
	}
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("failed to read ASR result: %w", err)
	}

	var result TranscriptResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("malformed ASR result: %w", err)
	}

	return &result, nil
}

func (c *transcriberClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
