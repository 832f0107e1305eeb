// Package render 把指标结果集变换为可展示的二维表格。
// 核心是纯函数 Table：同一组输入永远产出同一张表，
// 展示层（终端 / HTTP JSON）只消费产出的 Grid。
package render

import (
	"fmt"

	"github.com/chihung1024/back-test/internal/metric"
)

// Orientation 决定表格取向。
type Orientation int

const (
	// RowsAreEntities 实体为行、指标为列（掃描结果的默认取向）。
	RowsAreEntities Orientation = iota
	// RowsAreMetrics 指标为行、实体为列（单一标的与基准对比的取向）。
	RowsAreMetrics
)

// 左上角固定表头。
const (
	cornerEntities = "Ticker"
	cornerMetrics  = "指標"
)

// Options 控制一次渲染。
type Options struct {
	Orientation Orientation
	// Reference 可选基准行，总是排在所有主数据之后。
	Reference *metric.Row
	// CornerLabel 覆盖左上角表头；空串使用取向默认值。
	CornerLabel string
}

// Grid 是渲染结果：表头 + 矩形字符串行。
// SortKeys 与 Header 等长，给每一列一个稳定排序键
// （实体取向下为指标 key，指标取向下为实体标签），
// 供展示层挂接排序逻辑而不依赖列位置。
type Grid struct {
	Header   []string   `json:"header"`
	SortKeys []string   `json:"sort_keys"`
	Rows     [][]string `json:"rows"`
}

// Table 把指标定义、格式化映射与数据行变换为 Grid。
// 逐格规则：
//   - 行内缺少该 key（undefined）→ 直接输出 Placeholder，不调用 Formatter；
//   - 其余情况交给 Formatter（null / 非有限由其按策略输出 N/A）。
//
// 唯一的硬错误是配置不匹配：定义为空、key 重复或缺少对应 Formatter。
func Table(defs []metric.Definition, formatters map[string]metric.Formatter, rows []metric.Row, opts Options) (Grid, error) {
	if err := metric.ValidateDefinitions(defs); err != nil {
		return Grid{}, err
	}
	for _, d := range defs {
		if _, ok := formatters[d.Key]; !ok {
			return Grid{}, fmt.Errorf("指標 %s 缺少 formatter", d.Key)
		}
	}

	all := rows
	if opts.Reference != nil {
		all = make([]metric.Row, 0, len(rows)+1)
		all = append(all, rows...)
		all = append(all, *opts.Reference)
	}

	switch opts.Orientation {
	case RowsAreMetrics:
		return renderMetricRows(defs, formatters, all, opts), nil
	default:
		return renderEntityRows(defs, formatters, all, opts), nil
	}
}

// renderEntityRows：每条数据行占一行，指标依定义顺序展开为列。
func renderEntityRows(defs []metric.Definition, formatters map[string]metric.Formatter, rows []metric.Row, opts Options) Grid {
	corner := opts.CornerLabel
	if corner == "" {
		corner = cornerEntities
	}
	header := make([]string, 0, len(defs)+1)
	sortKeys := make([]string, 0, len(defs)+1)
	header = append(header, corner)
	sortKeys = append(sortKeys, "ticker")
	for _, d := range defs {
		header = append(header, d.Label)
		sortKeys = append(sortKeys, d.Key)
	}

	body := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(defs)+1)
		cells = append(cells, row.DisplayLabel())
		for _, d := range defs {
			cells = append(cells, renderCell(row, d.Key, formatters))
		}
		body = append(body, cells)
	}
	return Grid{Header: header, SortKeys: sortKeys, Rows: body}
}

// renderMetricRows：每个指标占一行，数据行展开为列。
func renderMetricRows(defs []metric.Definition, formatters map[string]metric.Formatter, rows []metric.Row, opts Options) Grid {
	corner := opts.CornerLabel
	if corner == "" {
		corner = cornerMetrics
	}
	header := make([]string, 0, len(rows)+1)
	sortKeys := make([]string, 0, len(rows)+1)
	header = append(header, corner)
	sortKeys = append(sortKeys, "metric")
	for _, row := range rows {
		header = append(header, row.DisplayLabel())
		sortKeys = append(sortKeys, row.Label)
	}

	body := make([][]string, 0, len(defs))
	for _, d := range defs {
		cells := make([]string, 0, len(rows)+1)
		cells = append(cells, d.Label)
		for _, row := range rows {
			cells = append(cells, renderCell(row, d.Key, formatters))
		}
		body = append(body, cells)
	}
	return Grid{Header: header, SortKeys: sortKeys, Rows: body}
}

func renderCell(row metric.Row, key string, formatters map[string]metric.Formatter) string {
	v := row.Value(key)
	if !v.Defined() {
		return metric.Placeholder
	}
	return formatters[key](v)
}
