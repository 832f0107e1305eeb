package metric

import "strings"

// Class 区分指标的数值形态，决定格式化方式。
type Class string

const (
	// ClassPercentage 百分比类：原始小数 ×100 后追加 %。
	ClassPercentage Class = "percentage"
	// ClassRatio 比率类：直接按小数位输出。
	ClassRatio Class = "ratio"
)

// NullPolicy 描述取值缺陷时的占位规则。
type NullPolicy string

const (
	// NullNone 始终是数值，不做占位。
	NullNone NullPolicy = "none"
	// NullAsNA 值为 null（统计上无定义）时输出 N/A。
	NullAsNA NullPolicy = "null"
	// NonFiniteAsNA 值非有限（Inf/NaN，含 null）时输出 N/A。
	NonFiniteAsNA NullPolicy = "nonfinite"
)

// Definition 描述单个指标的显示契约；切片顺序即展示顺序。
type Definition struct {
	Key       string     `mapstructure:"key" yaml:"key" json:"key"`
	Label     string     `mapstructure:"label" yaml:"label" json:"label"`
	Class     Class      `mapstructure:"class" yaml:"class" json:"class"`
	Precision int        `mapstructure:"precision" yaml:"precision" json:"precision"`
	Null      NullPolicy `mapstructure:"null_policy" yaml:"null_policy" json:"null_policy"`
}

// 指标 key 常量，与上游计算结果字段一一对应。
const (
	KeyCAGR        = "cagr"
	KeyVolatility  = "volatility"
	KeyMDD         = "mdd"
	KeySharpe      = "sharpe_ratio"
	KeySortino     = "sortino_ratio"
	KeyBeta        = "beta"
	KeyAlpha       = "alpha"
	KeyCustomScore = "custom_score"
)

// DefaultDefinitions 返回内置指标集（顺序固定）。
func DefaultDefinitions() []Definition {
	return []Definition{
		{Key: KeyCAGR, Label: "年化報酬率", Class: ClassPercentage, Precision: 2, Null: NullNone},
		{Key: KeyVolatility, Label: "年化波動率", Class: ClassPercentage, Precision: 2, Null: NullNone},
		{Key: KeyMDD, Label: "最大回撤", Class: ClassPercentage, Precision: 2, Null: NullNone},
		{Key: KeySharpe, Label: "夏普比率", Class: ClassRatio, Precision: 2, Null: NonFiniteAsNA},
		{Key: KeySortino, Label: "索提諾比率", Class: ClassRatio, Precision: 2, Null: NonFiniteAsNA},
		{Key: KeyBeta, Label: "Beta", Class: ClassRatio, Precision: 2, Null: NullAsNA},
		{Key: KeyAlpha, Label: "Alpha", Class: ClassPercentage, Precision: 2, Null: NullAsNA},
		{Key: KeyCustomScore, Label: "綜合評分", Class: ClassRatio, Precision: 4, Null: NonFiniteAsNA},
	}
}

// Value 是三态指标值：未计算（undefined）、统计上无定义（null）、数值。
// 零值即 undefined。
type Value struct {
	num     float64
	null    bool
	defined bool
}

// Num 构造数值。
func Num(v float64) Value { return Value{num: v, defined: true} }

// Null 构造 null 值（已计算，但统计上无定义，例如回归样本不足的 beta）。
func Null() Value { return Value{null: true, defined: true} }

// Undefined 构造未计算值。
func Undefined() Value { return Value{} }

// Defined 报告该值是否被上游计算过（null 也算计算过）。
func (v Value) Defined() bool { return v.defined }

// IsNull 报告该值是否为 null。
func (v Value) IsNull() bool { return v.defined && v.null }

// Float 返回数值部分；null/undefined 返回 0。
func (v Value) Float() float64 {
	if !v.defined || v.null {
		return 0
	}
	return v.num
}

// Row 是一条数据行：标识标签 + 指标值集合。
// Note 为可选脚注（例如数据起点备注），展示时直接拼接在标签之后。
type Row struct {
	Label  string
	Note   string
	Values map[string]Value
}

// Value 按 key 取值；key 不存在视为 undefined。
func (r Row) Value(key string) Value {
	if r.Values == nil {
		return Undefined()
	}
	v, ok := r.Values[key]
	if !ok {
		return Undefined()
	}
	return v
}

// DisplayLabel 返回标签与脚注的拼接显示串。
func (r Row) DisplayLabel() string {
	if r.Note == "" {
		return r.Label
	}
	return r.Label + r.Note
}

// ValidateDefinitions 校验指标定义：非空且 key 唯一。
func ValidateDefinitions(defs []Definition) error {
	if len(defs) == 0 {
		return errEmptyDefinitions
	}
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		key := strings.TrimSpace(d.Key)
		if key == "" {
			return errBlankKey
		}
		if seen[key] {
			return duplicateKeyError(key)
		}
		seen[key] = true
	}
	return nil
}
