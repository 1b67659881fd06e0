package rtk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-gnss/rtcm/rtcm3"

	"github.com/bramburn/motionlink/errs"
)

// NetworkSource pulls an RTCM3 stream from an NTRIP-style HTTP caster,
// adapted from this client's own NTRIP-client ancestor: the same
// User-Agent/Ntrip-Version headers and basic-auth handshake, generalized
// here to feed an rtk.Forwarder instead of a position-averaging pipeline.
type NetworkSource struct {
	URL        string
	Username   string
	Password   string
	Mountpoint string

	httpClient *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	body   io.ReadCloser
	wg     sync.WaitGroup
}

// NewNetworkSource builds a Source that streams RTCM3 from an NTRIP caster.
func NewNetworkSource(url, username, password, mountpoint string) *NetworkSource {
	return &NetworkSource{
		URL:        url,
		Username:   username,
		Password:   password,
		Mountpoint: mountpoint,
		httpClient: &http.Client{Timeout: 0}, // streaming response, no overall deadline
	}
}

func (s *NetworkSource) fullURL() string {
	u := s.URL
	if s.Mountpoint != "" && !strings.Contains(u, s.Mountpoint) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		u += s.Mountpoint
	}
	return u
}

// Start connects to the caster and runs a background reader task that
// frames RTCM3 messages out of the response body until Stop is called.
func (s *NetworkSource) Start(onFrame func(messageType int, frame []byte)) error {
	ctx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.fullURL(), nil)
	if err != nil {
		cancel()
		return errs.Wrap(errs.TransportOpenFailed, "building NTRIP request", err)
	}
	req.Header.Set("User-Agent", "NTRIP motionlink/rtk")
	req.Header.Set("Ntrip-Version", "Ntrip/2.0")
	if s.Username != "" {
		req.SetBasicAuth(s.Username, s.Password)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		cancel()
		return errs.Wrap(errs.TransportOpenFailed, "connecting to NTRIP caster", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return errs.New(errs.TransportOpenFailed, fmt.Sprintf("NTRIP caster returned status %d", resp.StatusCode))
	}

	s.mu.Lock()
	s.cancel = cancel
	s.body = resp.Body
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(resp.Body, onFrame)
	return nil
}

func (s *NetworkSource) readLoop(body io.ReadCloser, onFrame func(int, []byte)) {
	defer s.wg.Done()
	parser := rtcm3.NewParser()
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			parser.Write(buf[:n])
			for {
				frame, ferr := parser.NextFrame()
				if ferr != nil {
					break
				}
				msg, derr := rtcm3.DeserializeMessage(frame.Data)
				if derr != nil {
					continue
				}
				onFrame(int(msg.Number()), frame.Data)
			}
		}
		if err != nil {
			return
		}
	}
}

// Stop cancels the request context, closes the body, and waits for the
// reader task to exit.
func (s *NetworkSource) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	body := s.body
	s.cancel = nil
	s.body = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		_ = body.Close()
	}
	s.wg.Wait()
	return nil
}
