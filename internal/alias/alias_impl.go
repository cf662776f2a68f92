package alias

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

type fileManager struct {
	path      string
	hotReload bool

	mu      sync.RWMutex
	current Mappings

	watcher *fsnotify.Watcher
}

// NewManager constructs a Manager backed by a YAML mapping file at path.
func NewManager(path string, hotReload bool) Manager {
	return &fileManager{
		path:      path,
		hotReload: hotReload,
		current: Mappings{
			ToolIDAliases:    map[string]string{},
			ActionAliases:    map[string]string{},
			ParameterAliases: map[string]string{},
		},
	}
}

func (m *fileManager) Load(ctx context.Context) error {
	next, err := loadFile(m.path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.current = next
	m.mu.Unlock()

	return nil
}

func loadFile(path string) (Mappings, error) {
	empty := Mappings{
		ToolIDAliases:    map[string]string{},
		ActionAliases:    map[string]string{},
		ParameterAliases: map[string]string{},
		ErrorCorrections: ErrorCorrections{
			ActionDefaults:   map[string]string{},
			ParameterHints:   map[string]interface{}{},
			AlternativeTools: map[string]string{},
			SkillGapTools:    map[string]string{},
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return empty, fmt.Errorf("reading alias config %s: %w", path, err)
	}

	var m Mappings
	if err := yaml.Unmarshal(data, &m); err != nil {
		return empty, fmt.Errorf("parsing alias config %s: %w", path, err)
	}

	if m.ToolIDAliases == nil {
		m.ToolIDAliases = map[string]string{}
	}
	if m.ActionAliases == nil {
		m.ActionAliases = map[string]string{}
	}
	if m.ParameterAliases == nil {
		m.ParameterAliases = map[string]string{}
	}
	if m.ErrorCorrections.ActionDefaults == nil {
		m.ErrorCorrections.ActionDefaults = map[string]string{}
	}
	if m.ErrorCorrections.ParameterHints == nil {
		m.ErrorCorrections.ParameterHints = map[string]interface{}{}
	}
	if m.ErrorCorrections.AlternativeTools == nil {
		m.ErrorCorrections.AlternativeTools = map[string]string{}
	}
	if m.ErrorCorrections.SkillGapTools == nil {
		m.ErrorCorrections.SkillGapTools = map[string]string{}
	}

	return m, nil
}

func (m *fileManager) Current() Mappings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *fileManager) Normalize(toolID, action string, parameters map[string]interface{}) (string, string, map[string]interface{}, []string) {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()

	var rewritten []string

	normToolID := toolID
	if canon, ok := cur.ToolIDAliases[toolID]; ok && canon != toolID {
		normToolID = canon
		rewritten = append(rewritten, "tool_id")
	}

	normAction := action
	actionKey := normToolID + "/" + action
	if canon, ok := cur.ActionAliases[actionKey]; ok && canon != action {
		normAction = canon
		rewritten = append(rewritten, "action")
	}

	normParams := make(map[string]interface{}, len(parameters))
	for k, v := range parameters {
		canonKey := k
		scoped := normToolID + "/" + normAction + "/" + k
		wildcard := "*/*/" + k
		if canon, ok := cur.ParameterAliases[scoped]; ok {
			canonKey = canon
		} else if canon, ok := cur.ParameterAliases[wildcard]; ok {
			canonKey = canon
		}
		if canonKey != k {
			rewritten = append(rewritten, "parameters."+k)
		}
		normParams[canonKey] = v
	}

	return normToolID, normAction, normParams, rewritten
}

func (m *fileManager) Watch(ctx context.Context) <-chan Diff {
	out := make(chan Diff, 1)

	if !m.hotReload {
		close(out)
		return out
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		close(out)
		return out
	}
	if err := watcher.Add(dirOf(m.path)); err != nil {
		watcher.Close()
		close(out)
		return out
	}
	m.watcher = watcher

	go func() {
		defer watcher.Close()
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, baseOf(m.path)) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				next, err := loadFile(m.path)
				if err != nil {
					continue
				}
				m.mu.Lock()
				prev := m.current
				m.current = next
				m.mu.Unlock()

				diff := diffMappings(prev, next)
				if !diff.Empty() {
					select {
					case out <- diff:
					case <-ctx.Done():
						return
					}
				}
			case <-watcher.Errors:
				continue
			}
		}
	}()

	return out
}

func diffMappings(prev, next Mappings) Diff {
	var d Diff
	d.AddedToolAliases, d.RemovedToolAliases = diffKeys(prev.ToolIDAliases, next.ToolIDAliases)
	d.AddedActionAliases, d.RemovedActionAliases = diffKeys(prev.ActionAliases, next.ActionAliases)
	d.AddedParamAliases, d.RemovedParamAliases = diffKeys(prev.ParameterAliases, next.ParameterAliases)
	return d
}

func diffKeys(prev, next map[string]string) (added, removed []string) {
	for k := range next {
		if _, ok := prev[k]; !ok {
			added = append(added, k)
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			removed = append(removed, k)
		}
	}
	return
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}

func baseOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
