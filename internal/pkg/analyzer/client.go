package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/meetsum/internal/pkg/api"
	"github.com/airenas/meetsum/internal/pkg/utils"
	"github.com/cenkalti/backoff/v4"
)

const maxResponseSize = 50 * 1024 * 1024

// Client communicates with the transcription and summarization service
type Client struct {
	httpclient   *http.Client
	uploadURL    string
	summarizeURL string
	timeout      time.Duration
	backoff      func() backoff.BackOff
}

// NewClient creates a service client.
// timeout <= 0 means no client side timeout, retries <= 0 disables retries
func NewClient(baseURL string, timeout time.Duration, retries int) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("no service URL")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("wrong service URL '%s': %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("no http in service URL '%s'", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("no host in service URL '%s'", baseURL)
	}
	res := Client{}
	if res.uploadURL, err = url.JoinPath(baseURL, "upload"); err != nil {
		return nil, fmt.Errorf("can't make upload URL: %w", err)
	}
	if res.summarizeURL, err = url.JoinPath(baseURL, "summarize"); err != nil {
		return nil, fmt.Errorf("can't make summarize URL: %w", err)
	}
	res.timeout = timeout
	res.httpclient = &http.Client{Transport: newTransport()}
	res.backoff = newBackoffFunc(retries)
	goapp.Log.Info().Str("upload", res.uploadURL).Str("summarize", res.summarizeURL).
		Dur("timeout", timeout).Int("retries", retries).Msg("service client")
	return &res, nil
}

// Transcribe uploads file and returns transcription
func (sp *Client) Transcribe(ctx context.Context, file *api.UploadFile) (*api.TranscriptionResult, error) {
	if file == nil {
		return nil, fmt.Errorf("no file")
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(api.PrmFile, file.Name)
	if err != nil {
		return nil, fmt.Errorf("can't add file to request: %w", err)
	}
	if _, err = part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("can't add file content to request: %w", err)
	}
	if err = writer.Close(); err != nil {
		return nil, fmt.Errorf("can't finish multipart body: %w", err)
	}
	data := body.Bytes()
	return invoke(ctx, sp, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, sp.uploadURL, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	}, func(r *api.TranscriptionResult) string { return r.Error })
}

// Analyze sends transcript for analysis
func (sp *Client) Analyze(ctx context.Context, in *api.AnalysisRequest) (*api.AnalysisResult, error) {
	if in == nil {
		return nil, fmt.Errorf("no request")
	}
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("can't marshal request: %w", err)
	}
	return invoke(ctx, sp, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, sp.summarizeURL, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, func(r *api.AnalysisResult) string { return r.Error })
}

func invoke[T any](ctx context.Context, sp *Client, makeReq func() (*http.Request, error), errMsg func(*T) string) (*T, error) {
	res, err := goapp.InvokeWithBackoff(ctx, func() (*T, bool, error) {
		return call(ctx, sp, makeReq, errMsg)
	}, sp.backoff())
	if err != nil {
		return nil, asTyped(err)
	}
	return res, nil
}

// asTyped keeps service and transport errors, anything else (a done context) is reported as transport failure
func asTyped(err error) error {
	var errService *utils.ErrService
	var errTransport *utils.ErrTransport
	if errors.As(err, &errService) || errors.As(err, &errTransport) {
		return err
	}
	return utils.NewErrTransport(err)
}

func call[T any](ctx context.Context, sp *Client, makeReq func() (*http.Request, error), errMsg func(*T) string) (*T, bool, error) {
	if sp.timeout > 0 {
		var cancelF func()
		ctx, cancelF = context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
	}
	req, err := makeReq()
	if err != nil {
		return nil, false, err
	}
	req = req.WithContext(ctx)
	goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
	resp, err := sp.httpclient.Do(req)
	if err != nil {
		return nil, goapp.IsRetryableErr(err), utils.NewErrTransport(fmt.Errorf("can't call: %w", err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	br, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, goapp.IsRetryableErr(err), utils.NewErrTransport(fmt.Errorf("can't read body: %w", err))
	}
	res := new(T)
	errJSON := json.Unmarshal(br, res)
	// the service reports failures as {"error": "..."} with 4xx/5xx codes
	if errJSON == nil {
		if msg := strings.TrimSpace(errMsg(res)); msg != "" {
			goapp.Log.Warn().Int("code", resp.StatusCode).Str("error", goapp.Sanitize(msg)).Msg("service error")
			return nil, false, utils.NewErrService(msg)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		goapp.Log.Warn().Str("url", req.URL.String()).Int("code", resp.StatusCode).Msg("wrong response code")
		return nil, isRetryableCode(resp.StatusCode),
			utils.NewErrTransport(fmt.Errorf("status %d", resp.StatusCode))
	}
	if errJSON != nil {
		return nil, false, utils.NewErrTransport(fmt.Errorf("can't decode response: %w", errJSON))
	}
	return res, false, nil
}

func isRetryableCode(c int) bool {
	return c == http.StatusTooManyRequests || c == http.StatusBadGateway ||
		c == http.StatusServiceUnavailable || c == http.StatusGatewayTimeout
}

func newTransport() http.RoundTripper {
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newBackoffFunc(retries int) func() backoff.BackOff {
	if retries <= 0 {
		return func() backoff.BackOff { return &backoff.StopBackOff{} }
	}
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries))
	}
}
