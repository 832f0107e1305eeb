package metric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatterPercentage(t *testing.T) {
	def := Definition{Key: KeyCAGR, Label: "年化報酬率", Class: ClassPercentage, Precision: 2, Null: NullNone}
	f := def.Formatter()

	assert.Equal(t, "15.34%", f(Num(0.1534)))
	assert.Equal(t, "-4.30%", f(Num(-0.043)))
	assert.Equal(t, "0.00%", f(Num(0)))
}

func TestFormatterRatioPrecision(t *testing.T) {
	def := Definition{Key: KeyCustomScore, Label: "綜合評分", Class: ClassRatio, Precision: 4, Null: NonFiniteAsNA}
	f := def.Formatter()

	assert.Equal(t, "1.2346", f(Num(1.23456)))
	assert.Equal(t, "0.0000", f(Num(0)))
}

func TestFormatterNonFinitePolicy(t *testing.T) {
	def := Definition{Key: KeySharpe, Label: "夏普比率", Class: ClassRatio, Precision: 2, Null: NonFiniteAsNA}
	f := def.Formatter()

	assert.Equal(t, NotAvailable, f(Num(math.Inf(1))))
	assert.Equal(t, NotAvailable, f(Num(math.Inf(-1))))
	assert.Equal(t, NotAvailable, f(Num(math.NaN())))
	assert.Equal(t, NotAvailable, f(Null()))
	assert.Equal(t, "1.50", f(Num(1.5)))
}

func TestFormatterNullPolicy(t *testing.T) {
	beta := Definition{Key: KeyBeta, Label: "Beta", Class: ClassRatio, Precision: 2, Null: NullAsNA}
	f := beta.Formatter()

	assert.Equal(t, NotAvailable, f(Null()))
	assert.Equal(t, "0.98", f(Num(0.98)))

	alpha := Definition{Key: KeyAlpha, Label: "Alpha", Class: ClassPercentage, Precision: 2, Null: NullAsNA}
	assert.Equal(t, NotAvailable, alpha.Formatter()(Null()))
	assert.Equal(t, "2.10%", alpha.Formatter()(Num(0.021)))
}

func TestFormatterNoNullPolicyFormatsAnything(t *testing.T) {
	// 百分比类指标没有占位策略，null 按 0 输出。
	def := Definition{Key: KeyMDD, Label: "最大回撤", Class: ClassPercentage, Precision: 2, Null: NullNone}
	f := def.Formatter()

	assert.Equal(t, "0.00%", f(Null()))
	assert.Equal(t, "-25.00%", f(Num(-0.25)))
}

func TestDefaultFormattersCoverAllKeys(t *testing.T) {
	formatters := DefaultFormatters()
	for _, def := range DefaultDefinitions() {
		_, ok := formatters[def.Key]
		assert.True(t, ok, "缺少 %s 的 formatter", def.Key)
	}
}

func TestValidateDefinitions(t *testing.T) {
	require.NoError(t, ValidateDefinitions(DefaultDefinitions()))

	err := ValidateDefinitions(nil)
	assert.Error(t, err)

	dup := []Definition{
		{Key: "x", Label: "X", Class: ClassRatio},
		{Key: "x", Label: "X2", Class: ClassRatio},
	}
	assert.Error(t, ValidateDefinitions(dup))

	blank := []Definition{{Key: "  ", Label: "blank", Class: ClassRatio}}
	assert.Error(t, ValidateDefinitions(blank))
}
