package metric

import (
	"fmt"
	"math"
)

// 占位字符串。前端对这两个串有精确匹配逻辑，不可改动。
const (
	// Placeholder 表示该格的值从未被计算（undefined）。
	Placeholder = "—"
	// NotAvailable 表示值已计算但统计上无定义或非有限。
	NotAvailable = "N/A"
)

var (
	errEmptyDefinitions = fmt.Errorf("指標定義不可為空")
	errBlankKey         = fmt.Errorf("指標定義缺少 key")
)

func duplicateKeyError(key string) error {
	return fmt.Errorf("指標 key 重複: %s", key)
}

// Formatter 将单个指标值转换为显示字符串。
// 占位规则（null → N/A 等）由 Formatter 自己负责；
// undefined 的占位（—）在渲染层处理，不会调用 Formatter。
type Formatter func(Value) string

// Formatter 根据定义生成格式化函数。
func (d Definition) Formatter() Formatter {
	class := d.Class
	prec := d.Precision
	policy := d.Null
	return func(v Value) string {
		switch policy {
		case NullAsNA:
			if v.IsNull() {
				return NotAvailable
			}
		case NonFiniteAsNA:
			if v.IsNull() || math.IsInf(v.Float(), 0) || math.IsNaN(v.Float()) {
				return NotAvailable
			}
		}
		switch class {
		case ClassPercentage:
			return fmt.Sprintf("%.*f%%", prec, v.Float()*100)
		default:
			return fmt.Sprintf("%.*f", prec, v.Float())
		}
	}
}

// Formatters 为给定定义集构建 key → Formatter 映射。
func Formatters(defs []Definition) map[string]Formatter {
	out := make(map[string]Formatter, len(defs))
	for _, d := range defs {
		out[d.Key] = d.Formatter()
	}
	return out
}

// DefaultFormatters 返回内置指标集的格式化映射。
func DefaultFormatters() map[string]Formatter {
	return Formatters(DefaultDefinitions())
}
