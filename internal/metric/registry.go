package metric

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chihung1024/back-test/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// presetSchema 约束指标预设文件的结构，防止配置错字静默生效。
const presetSchema = `{
	"type": "object",
	"required": ["metrics"],
	"properties": {
		"metrics": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["key", "label", "class"],
				"properties": {
					"key": {"type": "string", "minLength": 1},
					"label": {"type": "string", "minLength": 1},
					"class": {"enum": ["percentage", "ratio"]},
					"precision": {"type": "integer", "minimum": 0, "maximum": 8},
					"null_policy": {"enum": ["none", "null", "nonfinite"]}
				},
				"additionalProperties": false
			}
		}
	},
	"additionalProperties": false
}`

type presetFile struct {
	Metrics []Definition `yaml:"metrics"`
}

// Snapshot 是注册表在某一时刻的指标定义快照。
type Snapshot struct {
	Version     int64
	LoadedAt    time.Time
	Definitions []Definition
}

// Formatters 返回快照内定义集的格式化映射。
func (s Snapshot) Formatters() map[string]Formatter {
	return Formatters(s.Definitions)
}

// ChangeListener 在注册表重载后触发。
type ChangeListener func(Snapshot)

// Registry 管理指标定义预设，支持文件热更新。
// path 为空时退化为内置指标集（无监听）。
type Registry struct {
	path     string
	v        *viper.Viper
	compiled *jsonschema.Schema

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取预设文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	compiled, err := compilePresetSchema()
	if err != nil {
		return nil, fmt.Errorf("指標預設 schema 編譯失敗: %w", err)
	}
	r := &Registry{path: strings.TrimSpace(path), compiled: compiled}
	if r.path == "" {
		r.snapshot = Snapshot{Version: 1, LoadedAt: time.Now(), Definitions: DefaultDefinitions()}
		return r, nil
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("讀取指標預設失敗: %w", err)
	}
	r.v = v
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("指標預設重載失敗: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前定义快照。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Definitions 返回当前定义集（按展示顺序）。
func (r *Registry) Definitions() []Definition {
	return r.Snapshot().Definitions
}

// OnChange 注册重载回调。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	defs, err := readPresetFile(r.path, r.compiled)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:     r.snapshot.Version + 1,
		LoadedAt:    time.Now(),
		Definitions: defs,
	}
	r.mu.Unlock()
	logger.Infof("指標註冊表載入 %d 個定義（%s）", len(defs), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("指標註冊表回調 panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{Version: src.Version, LoadedAt: src.LoadedAt}
	dst.Definitions = append([]Definition(nil), src.Definitions...)
	return dst
}

func readPresetFile(path string, compiled *jsonschema.Schema) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("讀取指標預設失敗: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("解析指標預設失敗: %w", err)
	}
	if err := compiled.Validate(normalizeYAML(doc)); err != nil {
		return nil, fmt.Errorf("指標預設校驗失敗: %w", err)
	}
	var cfg presetFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("解析指標預設失敗: %w", err)
	}
	defs := make([]Definition, 0, len(cfg.Metrics))
	for _, d := range cfg.Metrics {
		d.Key = strings.TrimSpace(d.Key)
		if d.Null == "" {
			d.Null = NullNone
		}
		defs = append(defs, d)
	}
	if err := ValidateDefinitions(defs); err != nil {
		return nil, err
	}
	return defs, nil
}

func compilePresetSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("metrics.json", strings.NewReader(presetSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("metrics.json")
}

// normalizeYAML 把 yaml 解码出的 map[any]any / 整数统一为 JSON 兼容形态，
// 以便交给 jsonschema 校验。
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = normalizeYAML(child)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			ks, ok := k.(string)
			if !ok {
				ks = fmt.Sprint(k)
			}
			out[ks] = normalizeYAML(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = normalizeYAML(child)
		}
		return out
	case int:
		return json.Number(fmt.Sprint(val))
	case int64:
		return json.Number(fmt.Sprint(val))
	default:
		return val
	}
}
