// Package settings persists the user-editable configuration: the remote
// endpoint credentials and models ([App]) and the prompt templates
// ([prompt.Config]).
//
// Both live in the key-value store as JSON documents. Missing or blank
// fields fall back to defaults on load, so a partially saved document from an
// older build still yields a usable configuration.
package settings

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/reshka/internal/prompt"
	"github.com/MrWong99/reshka/internal/store"
	"github.com/MrWong99/reshka/pkg/provider/llm"
)

// Built-in defaults for [App].
const (
	DefaultEndpoint         = "https://openrouter.ai/api/v1/chat/completions"
	DefaultModel            = "google/gemini-2.5-flash"
	DefaultAutoSleepSeconds = 60

	// MinAutoSleepSeconds is the smallest accepted auto-sleep interval.
	// Lower values are replaced by the default on save.
	MinAutoSleepSeconds = 10
)

// App is the persisted application configuration.
type App struct {
	Endpoint         string `json:"endpoint"`
	APIKey           string `json:"apiKey"`
	SpeechModel      string `json:"speechModel"`
	RephraseModel    string `json:"rephraseModel"`
	QuestionModel    string `json:"questionModel"`
	AutoSleepSeconds int    `json:"autoSleepSeconds"`
}

// DefaultApp returns the built-in application configuration. The API key is
// empty.
func DefaultApp() App {
	return App{
		Endpoint:         DefaultEndpoint,
		SpeechModel:      DefaultModel,
		RephraseModel:    DefaultModel,
		QuestionModel:    DefaultModel,
		AutoSleepSeconds: DefaultAutoSleepSeconds,
	}
}

// Normalize trims every field and replaces blanks with the values from def.
// The API key is trimmed but never defaulted. An auto-sleep interval below
// [MinAutoSleepSeconds] becomes def.AutoSleepSeconds.
func (a App) Normalize(def App) App {
	pick := func(v, fallback string) string {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
		return fallback
	}
	out := App{
		Endpoint:         pick(a.Endpoint, def.Endpoint),
		APIKey:           strings.TrimSpace(a.APIKey),
		SpeechModel:      pick(a.SpeechModel, def.SpeechModel),
		RephraseModel:    pick(a.RephraseModel, def.RephraseModel),
		QuestionModel:    pick(a.QuestionModel, def.QuestionModel),
		AutoSleepSeconds: a.AutoSleepSeconds,
	}
	if out.AutoSleepSeconds < MinAutoSleepSeconds {
		out.AutoSleepSeconds = def.AutoSleepSeconds
	}
	return out
}

// AutoSleep returns the auto-sleep interval as a duration.
func (a App) AutoSleep() time.Duration {
	return time.Duration(a.AutoSleepSeconds) * time.Second
}

// Credentials returns the endpoint and key for building a provider.
func (a App) Credentials() llm.Credentials {
	return llm.Credentials{Endpoint: a.Endpoint, APIKey: a.APIKey}
}

// HasAPIKey reports whether a key is configured.
func (a App) HasAPIKey() bool {
	return a.APIKey != ""
}

// storedPrompts is the persisted prompt document. Jargons is a pointer so an
// explicitly saved empty list can be told apart from an absent field.
type storedPrompts struct {
	SystemPrompt   string  `json:"systemPrompt"`
	UserPrompt     string  `json:"userPrompt"`
	RephrasePrompt string  `json:"rephrasePrompt"`
	QuestionPrompt string  `json:"questionPrompt"`
	Jargons        *string `json:"jargons,omitempty"`
}

// Store loads and saves settings. It is safe for concurrent use.
type Store struct {
	kv store.KV

	mu       sync.RWMutex
	defaults App
}

// Option configures a [Store].
type Option func(*Store)

// WithDefaults sets the values blank fields fall back to. Fields left blank
// in d fall back to [DefaultApp].
func WithDefaults(d App) Option {
	return func(s *Store) { s.defaults = d.Normalize(DefaultApp()) }
}

// New creates a Store on kv.
func New(kv store.KV, opts ...Option) *Store {
	s := &Store{kv: kv, defaults: DefaultApp()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetDefaults replaces the fallback values. Used when the service config is
// reloaded.
func (s *Store) SetDefaults(d App) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = d.Normalize(DefaultApp())
}

// Defaults returns the current fallback values.
func (s *Store) Defaults() App {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

// App loads the application configuration. A missing document yields the
// defaults with an empty API key.
func (s *Store) App(ctx context.Context) (App, error) {
	def := s.Defaults()
	saved, found, err := store.GetJSON[App](ctx, s.kv, store.KeyAppConfig)
	if err != nil {
		return def, fmt.Errorf("settings: load app config: %w", err)
	}
	if !found {
		return def, nil
	}
	return saved.Normalize(def), nil
}

// SaveApp normalizes a and persists it. The stored value is returned.
func (s *Store) SaveApp(ctx context.Context, a App) (App, error) {
	a = a.Normalize(s.Defaults())
	if err := store.SetJSON(ctx, s.kv, store.KeyAppConfig, a); err != nil {
		return App{}, fmt.Errorf("settings: save app config: %w", err)
	}
	return a, nil
}

// Prompts loads the prompt configuration. Blank templates fall back to the
// defaults. The jargon list falls back only when it was never saved; an
// empty saved list stays empty.
func (s *Store) Prompts(ctx context.Context) (prompt.Config, error) {
	cfg := prompt.Defaults()
	saved, found, err := store.GetJSON[storedPrompts](ctx, s.kv, store.KeyPromptConfig)
	if err != nil {
		return cfg, fmt.Errorf("settings: load prompts: %w", err)
	}
	if !found {
		return cfg, nil
	}
	if saved.SystemPrompt != "" {
		cfg.SystemPrompt = saved.SystemPrompt
	}
	if saved.UserPrompt != "" {
		cfg.UserPrompt = saved.UserPrompt
	}
	if saved.RephrasePrompt != "" {
		cfg.RephrasePrompt = saved.RephrasePrompt
	}
	if saved.QuestionPrompt != "" {
		cfg.QuestionPrompt = saved.QuestionPrompt
	}
	if saved.Jargons != nil {
		cfg.Jargons = *saved.Jargons
	}
	return cfg, nil
}

// SavePrompts validates cfg and persists it. The system prompt is not
// user-editable and is always stored as [prompt.DefaultSystemPrompt]. The
// returned warnings list templates that will not receive the jargon list.
func (s *Store) SavePrompts(ctx context.Context, cfg prompt.Config) (prompt.Config, []string, error) {
	if err := cfg.Validate(); err != nil {
		return prompt.Config{}, nil, err
	}
	cfg.SystemPrompt = prompt.DefaultSystemPrompt
	jargons := cfg.Jargons
	doc := storedPrompts{
		SystemPrompt:   cfg.SystemPrompt,
		UserPrompt:     cfg.UserPrompt,
		RephrasePrompt: cfg.RephrasePrompt,
		QuestionPrompt: cfg.QuestionPrompt,
		Jargons:        &jargons,
	}
	if err := store.SetJSON(ctx, s.kv, store.KeyPromptConfig, doc); err != nil {
		return prompt.Config{}, nil, fmt.Errorf("settings: save prompts: %w", err)
	}
	return cfg, cfg.Warnings(), nil
}

// ResetPrompts removes the saved prompt configuration and returns the
// defaults.
func (s *Store) ResetPrompts(ctx context.Context) (prompt.Config, error) {
	if err := s.kv.Delete(ctx, store.KeyPromptConfig); err != nil {
		return prompt.Config{}, fmt.Errorf("settings: reset prompts: %w", err)
	}
	return prompt.Defaults(), nil
}
