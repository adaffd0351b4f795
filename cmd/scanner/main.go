package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/qr-credential-service/internal/config"
	"github.com/spec-kit/qr-credential-service/internal/domain"
	"github.com/spec-kit/qr-credential-service/internal/observability"
	"github.com/spec-kit/qr-credential-service/internal/retry"
	"github.com/spec-kit/qr-credential-service/internal/scanner"
)

// Terminal scanner client. Decoded QR text arrives one per line on stdin
// (wedge scanners and test rigs emit exactly that) and each accepted event is
// submitted to the validation endpoint.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	baseURL := getenv("SCANNER_API_URL", "http://127.0.0.1:8080")
	token := os.Getenv("SCANNER_API_TOKEN")
	if token == "" {
		logger.Fatal("SCANNER_API_TOKEN is required")
	}

	client := &validationClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}

	backends := []scanner.Backend{
		scanner.NewNativeBackend(newStdinProvider(os.Stdin)),
	}
	probes := retry.Policy{
		MaxAttempts: cfg.Scanner.ProbeMaxAttempts,
		BaseDelay:   time.Duration(cfg.Scanner.ProbeBaseDelayMSec) * time.Millisecond,
		MaxDelay:    cfg.Scanner.ProbeTimeout(),
		Jitter:      0.2,
	}
	manager := scanner.NewManager(backends, probes, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := manager.StartScanning(ctx, scanner.Options{
		Throttle:     cfg.Scanner.Throttle(),
		ProbeTimeout: cfg.Scanner.ProbeTimeout(),
	}, func(event domain.ScanEvent) {
		outcome, err := client.Validate(ctx, event.Text)
		if err != nil {
			logger.Error("validation request failed", zap.Error(err))
			return
		}
		fmt.Printf("[%s] %s\n", outcome.Classification, outcome.Message)
	}, func(err error) {
		logger.Warn("scan pipeline error", zap.Error(err))
	})
	if err != nil {
		logger.Fatal("failed to start scanning", zap.Error(err))
	}
	defer session.Stop()

	logger.Info("scanner terminal started", zap.String("api", baseURL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("scanner terminal stopping")
}

type validationClient struct {
	baseURL string
	token   string
	http    *http.Client
}

type scanOutcome struct {
	Valid          bool   `json:"valid"`
	Classification string `json:"classification"`
	Message        string `json:"message"`
}

type outcomeEnvelope struct {
	Data scanOutcome `json:"data"`
}

func (c *validationClient) Validate(ctx context.Context, data string) (*scanOutcome, error) {
	body, err := json.Marshal(map[string]string{"data": data})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scan/validate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validate: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var envelope outcomeEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// stdinProvider adapts line-oriented input to the media provider contract.
// Permission is always granted; availability is simply whether stdin is open.
type stdinProvider struct {
	reader io.Reader
}

func newStdinProvider(reader io.Reader) *stdinProvider {
	return &stdinProvider{reader: reader}
}

func (p *stdinProvider) Available(context.Context) bool { return p.reader != nil }

func (p *stdinProvider) Permission(context.Context) (scanner.PermissionResult, error) {
	return scanner.PermissionResult{Status: scanner.PermissionGranted}, nil
}

func (p *stdinProvider) RequestPermission(context.Context) (scanner.PermissionResult, error) {
	return scanner.PermissionResult{Status: scanner.PermissionGranted}, nil
}

func (p *stdinProvider) Acquire(context.Context) (scanner.MediaStream, error) {
	stream := &stdinStream{decodes: make(chan scanner.RawDecode, 8), closed: make(chan struct{})}
	go stream.pump(p.reader)
	return stream, nil
}

type stdinStream struct {
	decodes chan scanner.RawDecode
	closed  chan struct{}
}

func (s *stdinStream) Decodes() <-chan scanner.RawDecode { return s.decodes }

func (s *stdinStream) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

func (s *stdinStream) pump(reader io.Reader) {
	defer close(s.decodes)
	lines := bufio.NewScanner(reader)
	for lines.Scan() {
		text := strings.TrimSpace(lines.Text())
		if text == "" {
			continue
		}
		decode := scanner.RawDecode{Text: text, Symbology: scanner.SymbologyQR, At: time.Now()}
		select {
		case s.decodes <- decode:
		case <-s.closed:
			return
		}
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
