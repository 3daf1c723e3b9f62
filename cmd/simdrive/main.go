// simdrive is the command-line step driver: it creates a run on a consultsim
// server, advances it one turn at a time at a human pace, plays the audio
// handoff slot to disk, and exports the transcript when the run finishes.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gmarchetti/consultsim/internal/reliability"
)

type options struct {
	baseURL      string
	caseID       string
	clinicianID  string
	patientID    string
	provider     string
	maxTurns     int
	interval     time.Duration
	stepAttempts int
	audioDir     string
	exportFormat string
	exportPath   string
	verbose      bool
}

type createRunResponse struct {
	ID        string `json:"id"`
	CaseTitle string `json:"case_title"`
	Clinician struct {
		Name string `json:"name"`
	} `json:"clinician"`
	Patient struct {
		Name string `json:"name"`
	} `json:"patient"`
}

type stepResponse struct {
	Turn *struct {
		Sequence int    `json:"sequence"`
		Role     string `json:"role"`
		Content  string `json:"content"`
	} `json:"turn"`
	Phase      string `json:"phase"`
	Turns      int    `json:"turns"`
	Reason     string `json:"reason"`
	AudioSeq   int    `json:"audio_seq"`
	AudioError string `json:"audio_error"`
}

type apiError struct {
	Status int
	Code   string
	Detail string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Detail)
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "simdrive: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "simdrive: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var intervalMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "consultsim base URL")
	flag.StringVar(&cfg.caseID, "case", "", "case id (default: server's first case)")
	flag.StringVar(&cfg.clinicianID, "clinician", "", "clinician persona id (default: server default)")
	flag.StringVar(&cfg.patientID, "patient", "", "patient persona id (default: server default)")
	flag.StringVar(&cfg.provider, "provider", "", "model backend name (default: server default)")
	flag.IntVar(&cfg.maxTurns, "max-turns", 0, "turn ceiling (0 = server default)")
	flag.IntVar(&intervalMS, "interval-ms", 800, "pause between steps in milliseconds")
	flag.IntVar(&cfg.stepAttempts, "step-attempts", 4, "attempts per step for retryable failures")
	flag.StringVar(&cfg.audioDir, "audio-dir", "", "directory for synthesized clips (empty = discard)")
	flag.StringVar(&cfg.exportFormat, "export-format", "text", "export format: text, json or html")
	flag.StringVar(&cfg.exportPath, "export", "", "file to write the final export to (empty = stdout)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print dialogue as it happens")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.maxTurns < 0 {
		return options{}, fmt.Errorf("max-turns must be >= 0")
	}
	if intervalMS < 0 {
		intervalMS = 0
	}
	cfg.interval = time.Duration(intervalMS) * time.Millisecond
	if cfg.stepAttempts <= 0 {
		cfg.stepAttempts = 1
	}
	switch cfg.exportFormat {
	case "text", "json", "html":
	default:
		return options{}, fmt.Errorf("export-format must be text, json or html")
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &http.Client{Timeout: 90 * time.Second}

	created, err := createRun(ctx, client, cfg)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	if cfg.verbose {
		fmt.Printf("simdrive: run=%s case=%q %s vs %s\n",
			created.ID, created.CaseTitle, created.Clinician.Name, created.Patient.Name)
	}

	// Ctrl-C stops the run cooperatively; the export still happens.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "simdrive: stopping run")
		_ = postControl(context.Background(), client, cfg.baseURL, created.ID, "stop")
		cancel()
	}()

	if cfg.audioDir != "" {
		if err := os.MkdirAll(cfg.audioDir, 0o755); err != nil {
			return fmt.Errorf("create audio dir: %w", err)
		}
	}

	for {
		step, err := stepWithRetry(ctx, client, cfg, created.ID)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "simdrive: step failed: %v\n", err)
			break
		}

		if step.Turn != nil {
			if cfg.verbose {
				name := created.Clinician.Name
				if step.Turn.Role == "patient" {
					name = created.Patient.Name
				}
				fmt.Printf("[%d] %s: %s\n\n", step.Turn.Sequence, name, step.Turn.Content)
			}
			if step.AudioError != "" {
				fmt.Fprintf(os.Stderr, "simdrive: audio unavailable for turn %d: %s\n", step.Turn.Sequence, step.AudioError)
			} else if step.AudioSeq > 0 {
				if err := consumeAudio(ctx, client, cfg, created.ID, step.AudioSeq); err != nil {
					fmt.Fprintf(os.Stderr, "simdrive: consume audio %d: %v\n", step.AudioSeq, err)
				}
			}
		}

		if step.Phase == "completed" || step.Phase == "stopped" || step.Phase == "failed" {
			if cfg.verbose {
				outcome := step.Phase
				if step.Reason != "" {
					outcome += " (" + step.Reason + ")"
				}
				fmt.Printf("simdrive: run finished after %d turns: %s\n", step.Turns, outcome)
			}
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(cfg.interval):
		}
		if ctx.Err() != nil {
			break
		}
	}

	return writeExport(context.Background(), client, cfg, created.ID)
}

// stepWithRetry advances the run once, backing off and retrying on failures
// the server classifies as transient. Conflicts from an in-flight step are
// treated the same way: wait and ask again.
func stepWithRetry(ctx context.Context, client *http.Client, cfg options, runID string) (stepResponse, error) {
	var lastErr error
	for attempt := 0; attempt < cfg.stepAttempts; attempt++ {
		if attempt > 0 {
			delay := reliability.ExponentialBackoff(attempt, 500*time.Millisecond, 8*time.Second)
			select {
			case <-ctx.Done():
				return stepResponse{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		step, err := postStep(ctx, client, cfg.baseURL, runID)
		if err == nil {
			return step, nil
		}
		lastErr = err

		var apiErr *apiError
		if e, ok := err.(*apiError); ok {
			apiErr = e
		}
		switch {
		case apiErr == nil:
			// Transport-level failure; worth another try.
		case apiErr.Code == "step_in_flight":
		case reliability.IsRetryableHTTPStatus(apiErr.Status):
		default:
			return stepResponse{}, err
		}
	}
	return stepResponse{}, lastErr
}

func createRun(ctx context.Context, client *http.Client, cfg options) (createRunResponse, error) {
	payload, err := json.Marshal(map[string]any{
		"case_id":              cfg.caseID,
		"clinician_persona_id": cfg.clinicianID,
		"patient_persona_id":   cfg.patientID,
		"provider":             cfg.provider,
		"max_turns":            cfg.maxTurns,
	})
	if err != nil {
		return createRunResponse{}, err
	}
	body, err := doJSON(ctx, client, http.MethodPost, cfg.baseURL+"/v1/runs", payload, http.StatusCreated)
	if err != nil {
		return createRunResponse{}, err
	}
	var out createRunResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return createRunResponse{}, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return createRunResponse{}, fmt.Errorf("missing run id in response")
	}
	return out, nil
}

func postStep(ctx context.Context, client *http.Client, baseURL, runID string) (stepResponse, error) {
	body, err := doJSON(ctx, client, http.MethodPost, baseURL+"/v1/runs/"+url.PathEscape(runID)+"/step", nil, http.StatusOK)
	if err != nil {
		return stepResponse{}, err
	}
	var out stepResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return stepResponse{}, err
	}
	return out, nil
}

func postControl(ctx context.Context, client *http.Client, baseURL, runID, action string) error {
	_, err := doJSON(ctx, client, http.MethodPost, baseURL+"/v1/runs/"+url.PathEscape(runID)+"/"+action, nil, http.StatusOK)
	return err
}

func consumeAudio(ctx context.Context, client *http.Client, cfg options, runID string, seq int) error {
	u := cfg.baseURL + "/v1/runs/" + url.PathEscape(runID) + "/audio?seq=" + strconv.Itoa(seq)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusGone {
		// The clip went stale between the step and this call. Nothing to play.
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	if cfg.audioDir == "" {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	path := filepath.Join(cfg.audioDir, fmt.Sprintf("turn-%03d%s", seq, extensionFor(res.Header.Get("Content-Type"))))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, res.Body)
	return err
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "wav"):
		return ".wav"
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return ".mp3"
	default:
		return ".bin"
	}
}

func writeExport(ctx context.Context, client *http.Client, cfg options, runID string) error {
	u := cfg.baseURL + "/v1/runs/" + url.PathEscape(runID) + "/export?format=" + url.QueryEscape(cfg.exportFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer res.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("export HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(payload)))
	}

	if cfg.exportPath == "" {
		_, err = os.Stdout.Write(payload)
		return err
	}
	if err := os.WriteFile(cfg.exportPath, payload, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if cfg.verbose {
		fmt.Printf("simdrive: export written to %s\n", cfg.exportPath)
	}
	return nil
}

func doJSON(ctx context.Context, client *http.Client, method, u string, payload []byte, wantStatus int) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode != wantStatus {
		apiErr := &apiError{Status: res.StatusCode, Detail: strings.TrimSpace(string(body))}
		var decoded struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(body, &decoded) == nil && decoded.Code != "" {
			apiErr.Code = decoded.Code
			apiErr.Detail = decoded.Error
		}
		return nil, apiErr
	}
	return body, nil
}
