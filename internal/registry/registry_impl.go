package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

type fileRegistry struct {
	manifestRoots   []string
	toolHostAddress string
	refreshInterval time.Duration
	httpClient      *http.Client
	logger          *zap.Logger

	refreshMu   sync.Mutex // serializes Refresh; never held across the atomic swap below
	lastRefresh atomic.Int64

	snapMu  sync.RWMutex
	current Snapshot
}

// Config carries the constructor parameters for a filesystem-backed Registry.
type Config struct {
	ManifestRoots   []string
	ToolHostAddress string
	RefreshInterval time.Duration
	Logger          *zap.Logger
}

// New constructs a Registry that discovers service.json manifests under the
// given search roots.
func New(cfg Config) Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fileRegistry{
		manifestRoots:   cfg.ManifestRoots,
		toolHostAddress: cfg.ToolHostAddress,
		refreshInterval: cfg.RefreshInterval,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
		current: Snapshot{
			Tools:   map[string]types.ToolSchema{},
			Version: 0,
		},
	}
}

func (r *fileRegistry) Snapshot(ctx context.Context) Snapshot {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	return r.current
}

func (r *fileRegistry) Refresh(ctx context.Context, force bool) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	if !force {
		last := r.lastRefresh.Load()
		if last != 0 && time.Since(time.Unix(0, last)) < r.refreshInterval {
			return nil
		}
	}

	discovered, err := r.discover(ctx)
	if err != nil {
		// Discovery failure: keep the previous snapshot (shadow-map rollback).
		return fmt.Errorf("registry refresh: discovery failed, keeping previous snapshot: %w", err)
	}

	r.snapMu.RLock()
	prevVersion := r.current.Version
	r.snapMu.RUnlock()

	next := Snapshot{
		Tools:   discovered,
		Version: prevVersion + 1,
	}

	r.snapMu.Lock()
	r.current = next
	r.snapMu.Unlock()

	r.lastRefresh.Store(time.Now().UnixNano())
	return nil
}

// discover walks every manifest root for service.json files and builds the
// next generation of the tool catalog. Individual malformed tool entries are
// auto-fixed or dropped with a logged warning rather than failing the whole
// refresh.
func (r *fileRegistry) discover(ctx context.Context) (map[string]types.ToolSchema, error) {
	tools := map[string]types.ToolSchema{}

	for _, root := range r.manifestRoots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// A missing/unreadable search root is not fatal; skip it.
				return nil
			}
			if d.IsDir() || d.Name() != "service.json" {
				return nil
			}
			schema, err := loadManifest(path)
			if err != nil {
				r.logger.Warn("skipping malformed tool manifest", zap.String("path", path), zap.Error(err))
				return nil
			}
			fixed, issues := validateAndFix(schema)
			for _, issue := range issues {
				r.logger.Warn("auto-fixed tool manifest issue", zap.String("tool_id", fixed.ToolID), zap.String("issue", issue))
			}
			if existing, ok := tools[fixed.ToolID]; ok && existing.Version >= fixed.Version {
				return nil
			}
			tools[fixed.ToolID] = fixed
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if r.toolHostAddress != "" {
		r.applyVersionFingerprints(ctx, tools)
	}

	return tools, nil
}

func loadManifest(path string) (types.ToolSchema, error) {
	var schema types.ToolSchema
	data, err := os.ReadFile(path)
	if err != nil {
		return schema, err
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		return schema, fmt.Errorf("parsing %s: %w", path, err)
	}
	return schema, nil
}

// validateAndFix applies the structural-validation-with-auto-fix rules: a
// missing category defaults to "general", a missing version defaults to 1,
// and actions with a nil Parameters map get an empty one so downstream
// lookups never nil-deref.
func validateAndFix(schema types.ToolSchema) (types.ToolSchema, []string) {
	var issues []string

	if schema.Category == "" {
		schema.Category = "general"
		issues = append(issues, "missing category, defaulted to 'general'")
	}
	if schema.Version == 0 {
		schema.Version = 1
		issues = append(issues, "missing version, defaulted to 1")
	}
	if schema.Actions == nil {
		schema.Actions = map[string]types.ActionSpec{}
		issues = append(issues, "missing actions map, defaulted to empty")
	}

	for name, action := range schema.Actions {
		if action.Parameters == nil {
			action.Parameters = map[string]types.ParamSpec{}
			schema.Actions[name] = action
			issues = append(issues, fmt.Sprintf("action %q missing parameters map, defaulted to empty", name))
		}
	}

	return schema, issues
}

// applyVersionFingerprints queries the tool host for each tool's current
// version and, where the host reports a higher version than the local
// manifest, raises the entry's Version to the host's value. Entries are
// never dropped; an unreachable host or undecodable reply leaves the entry
// as it is.
func (r *fileRegistry) applyVersionFingerprints(ctx context.Context, tools map[string]types.ToolSchema) {
	for id, schema := range tools {
		url := strings.TrimRight(r.toolHostAddress, "/") + "/tools/" + id + "/version"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			continue
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			continue
		}
		var body struct {
			Version int64 `json:"version"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if decodeErr != nil {
			continue
		}
		if body.Version > schema.Version {
			schema.Version = body.Version
			tools[id] = schema
		}
	}
}

func (r *fileRegistry) ActionWhitelistHash(ctx context.Context) string {
	snap := r.Snapshot(ctx)

	pairs := make([]string, 0, len(snap.Tools))
	for toolID, schema := range snap.Tools {
		for action := range schema.Actions {
			pairs = append(pairs, toolID+"/"+action)
		}
	}
	sort.Strings(pairs)

	h := sha256.New()
	for _, p := range pairs {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
