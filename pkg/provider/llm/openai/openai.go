// Package openai provides an llm.Provider for OpenAI-compatible
// chat-completions endpoints (OpenAI, OpenRouter and similar gateways).
//
// Requests are built with the openai-go parameter types and sent with the
// SDK's generic Post so that the reply body can be decoded by
// [llm.DecodeResponse], which also accepts gateways that answer in the
// content-block shape. The SDK's automatic retries are disabled: every call
// reaches the network at most once.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/reshka/pkg/provider/llm"
)

// DefaultAuthCheckPath is resolved against the endpoint's API base to find the
// key inspection route (OpenRouter's "GET /api/v1/auth/key").
const DefaultAuthCheckPath = "auth/key"

// chatCompletionsSuffix is stripped from the endpoint to find the API base.
const chatCompletionsSuffix = "chat/completions"

// Provider implements llm.Provider against one endpoint and key.
type Provider struct {
	client   oai.Client
	endpoint string
	authURL  string
}

type config struct {
	authCheckPath string
	httpClient    *http.Client
	timeout       time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithAuthCheckPath overrides the key inspection route, relative to the API
// base derived from the endpoint. An absolute URL is used as-is.
func WithAuthCheckPath(path string) Option {
	return func(c *config) {
		c.authCheckPath = path
	}
}

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithTimeout sets a per-request HTTP timeout. The default is none: a
// transcription call waits as long as the endpoint takes.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a Provider for creds.
func New(creds llm.Credentials, opts ...Option) (*Provider, error) {
	if creds.APIKey == "" {
		return nil, llm.ErrNoAPIKey
	}
	endpoint, err := url.Parse(creds.Endpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("openai: invalid endpoint %q", creds.Endpoint)
	}

	cfg := &config{authCheckPath: DefaultAuthCheckPath}
	for _, o := range opts {
		o(cfg)
	}

	base := APIBase(endpoint)
	authURL, err := base.Parse(cfg.authCheckPath)
	if err != nil {
		return nil, fmt.Errorf("openai: invalid auth check path %q: %w", cfg.authCheckPath, err)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(creds.APIKey),
		option.WithBaseURL(base.String()),
		option.WithMaxRetries(0),
	}
	hc := cfg.httpClient
	if hc == nil && cfg.timeout > 0 {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	if hc != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(hc))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		endpoint: endpoint.String(),
		authURL:  authURL.String(),
	}, nil
}

// Factory returns an llm.Factory that builds providers with opts.
func Factory(opts ...Option) llm.Factory {
	return func(creds llm.Credentials) (llm.Provider, error) {
		return New(creds, opts...)
	}
}

// APIBase returns the directory URL the endpoint lives under, with a trailing
// slash: ".../v1/chat/completions" becomes ".../v1/".
func APIBase(endpoint *url.URL) *url.URL {
	base := *endpoint
	base.RawQuery = ""
	base.Fragment = ""
	p := strings.TrimSuffix(base.Path, "/")
	if strings.HasSuffix(p, "/"+chatCompletionsSuffix) {
		p = strings.TrimSuffix(p, chatCompletionsSuffix)
	} else if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[:i+1]
	} else {
		p = "/"
	}
	base.Path = p
	base.RawPath = ""
	return &base
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	var body []byte
	if err := p.client.Post(ctx, p.endpoint, params, &body); err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", mapError(err))
	}
	resp, err := llm.DecodeResponse(body)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return resp, nil
}

// VerifyKey implements llm.Provider. Any 2xx answer from the key inspection
// route counts as accepted.
func (p *Provider) VerifyKey(ctx context.Context) error {
	var body []byte
	if err := p.client.Get(ctx, p.authURL, nil, &body); err != nil {
		return fmt.Errorf("openai: verify key: %w", mapError(err))
	}
	return nil
}

// mapError converts SDK status errors into *llm.StatusError and leaves
// transport errors untouched.
func mapError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &llm.StatusError{
			StatusCode: apiErr.StatusCode,
			Status:     http.StatusText(apiErr.StatusCode),
			Err:        err,
		}
	}
	return err
}

// buildParams converts a CompletionRequest into OpenAI SDK params.
func buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	if req.Model == "" {
		return oai.ChatCompletionNewParams{}, errors.New("model must not be empty")
	}
	if len(req.Messages) == 0 {
		return oai.ChatCompletionNewParams{}, errors.New("messages must not be empty")
	}

	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	return params, nil
}

// convertMessage converts an llm.Message to an OpenAI SDK message param.
func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil

	case llm.RoleUser:
		if len(m.Parts) == 0 {
			return oai.UserMessage(m.Content), nil
		}
		parts := make([]oai.ChatCompletionContentPartUnionParam, 0, len(m.Parts))
		for _, part := range m.Parts {
			cp, err := convertPart(part)
			if err != nil {
				return oai.ChatCompletionMessageParamUnion{}, err
			}
			parts = append(parts, cp)
		}
		return oai.UserMessage(parts), nil

	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil

	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown message role %q", m.Role)
	}
}

func convertPart(p llm.ContentPart) (oai.ChatCompletionContentPartUnionParam, error) {
	switch p.Type {
	case llm.PartText:
		return oai.TextContentPart(p.Text), nil
	case llm.PartInputAudio:
		if p.Audio == nil {
			return oai.ChatCompletionContentPartUnionParam{}, errors.New("input_audio part without audio")
		}
		in := oai.ChatCompletionContentPartInputAudioInputAudioParam{Data: p.Audio.Data}
		switch p.Audio.Format {
		case "wav":
			in.Format = "wav"
		case "mp3":
			in.Format = "mp3"
		default:
			return oai.ChatCompletionContentPartUnionParam{}, fmt.Errorf("unsupported audio format %q", p.Audio.Format)
		}
		return oai.InputAudioContentPart(in), nil
	default:
		return oai.ChatCompletionContentPartUnionParam{}, fmt.Errorf("unknown content part type %q", p.Type)
	}
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
