package pipelines

import (
	"context"
	"sync"
	"time"

	"alphadip-config/configs"
	"alphadip-config/tasks"
	"alphadip-config/types"
)

// SheetDescriber reads spreadsheet metadata
type SheetDescriber interface {
	Describe(ctx context.Context) (*types.SheetInfo, error)
}

// ScriptPinger checks that the Apps Script web app answers
type ScriptPinger interface {
	Ping(ctx context.Context) (*types.ScriptInfo, error)
}

// State holds shared state between pipeline tasks
// Pipeline-specific data goes in the Data map
// State is safe for concurrent access via Get/Set methods
type State struct {
	// Config is the credential record under check
	Config configs.Config

	// Offline skips checks that call Google
	Offline bool

	Sheets SheetDescriber
	Script ScriptPinger

	// mu protects Data from concurrent access
	mu sync.RWMutex

	// Data holds pipeline-specific state set by individual tasks
	Data map[string]interface{}
}

// NewState creates a state with live Sheets and Apps Script clients for cfg.
// An invalid cfg gets no clients; the validate step reports it.
func NewState(ctx context.Context, cfg configs.Config, timeout time.Duration) (*State, error) {
	state := &State{
		Config: cfg,
		Data:   make(map[string]interface{}),
	}
	if cfg.Validate() != nil {
		return state, nil
	}

	sheetsClient, err := tasks.NewSheetsClient(ctx, cfg.GoogleAPIKey, cfg.GoogleSheetsID)
	if err != nil {
		return nil, err
	}
	state.Sheets = sheetsClient
	state.Script = tasks.NewAppsScriptClient(cfg.AppsScriptURL, timeout)
	return state, nil
}

// NewOfflineState creates a state that only validates cfg
func NewOfflineState(cfg configs.Config) *State {
	return &State{
		Config:  cfg,
		Offline: true,
		Data:    make(map[string]interface{}),
	}
}

// Set stores a value in the pipeline state (thread-safe)
func (s *State) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Data == nil {
		s.Data = make(map[string]interface{})
	}
	s.Data[key] = value
}

// Get retrieves a value from the pipeline state (thread-safe)
func (s *State) Get(key string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Data[key]
}
