// internal/firedetect/client.go
package firedetect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"smart-home-gateway/internal/data"
)

// Client calls the external fire-detection service. Every call carries a
// timeout; a failed or slow service degrades to "no detections", it never
// stalls the ingestion pipeline.
type Client struct {
	baseURL string
	wsURL   string
	timeout time.Duration
	httpc   *http.Client
}

func NewClient(baseURL, wsURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		wsURL:   wsURL,
		timeout: timeout,
		httpc:   &http.Client{Timeout: timeout},
	}
}

type detectResponse struct {
	Detections []data.Detection `json:"detections"`
}

// DetectImage uploads one image (multipart field "file") and returns the
// detected bounding boxes.
func (c *Client) DetectImage(ctx context.Context, filename string, image io.Reader) ([]data.Detection, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: fire detection service not configured", data.ErrUpstreamUnavailable)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect_images", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", data.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: detect_images returned %s", data.ErrUpstreamUnavailable, resp.Status)
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: bad detection response: %v", data.ErrUpstreamUnavailable, err)
	}
	return out.Detections, nil
}

// Stream is the per-frame streaming variant: send raw JPEG bytes, receive a
// JSON array of detections for that frame.
type Stream struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (c *Client) OpenStream(ctx context.Context) (*Stream, error) {
	if c.wsURL == "" {
		return nil, fmt.Errorf("%w: fire detection stream not configured", data.ErrUpstreamUnavailable)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", data.ErrUpstreamUnavailable, c.wsURL, err)
	}
	return &Stream{conn: conn, timeout: c.timeout}, nil
}

// Detect sends one JPEG frame and waits for its detections.
func (s *Stream) Detect(frame []byte) ([]data.Detection, error) {
	s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("%w: %v", data.ErrUpstreamUnavailable, err)
	}
	s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", data.ErrUpstreamUnavailable, err)
	}
	var dets []data.Detection
	if err := json.Unmarshal(msg, &dets); err != nil {
		return nil, fmt.Errorf("%w: bad frame response: %v", data.ErrUpstreamUnavailable, err)
	}
	return dets, nil
}

func (s *Stream) Close() error {
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
