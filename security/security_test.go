package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBits(t *testing.T) {
	tests := []struct {
		in      string
		want    Bits
		wantErr bool
	}{
		{"101", FieldSelect | FieldInsert, false},
		{"111", FieldSelect | FieldUpdate | FieldInsert, false},
		{"000", 0, false},
		{"10", TableInsert, false},
		{"01", TableDelete, false},
		{"", 0, true},
		{"2", 0, true},
		{"1011", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBits(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRule(t *testing.T) {
	rule, err := ParseRule("everyone=100, admin=111,hr=010")
	require.NoError(t, err)
	assert.Equal(t, FieldSelect, rule.Everyone)
	assert.Equal(t, []GroupRule{
		{Group: "admin", Bits: 0b111},
		{Group: "hr", Bits: 0b010},
	}, rule.Groups)

	_, err = ParseRule("admin")
	assert.Error(t, err)

	_, err = ParseRule("admin=abc")
	assert.Error(t, err)
}

func TestEvaluatorBits(t *testing.T) {
	rule := MustParseRule("everyone=100,admin=011,hr=010")

	t.Run("nil principal only gets everyone", func(t *testing.T) {
		e := NewEvaluator(nil)
		assert.Equal(t, FieldSelect, e.Bits(rule))
		assert.True(t, e.CanSelect(rule))
		assert.False(t, e.CanUpdate(rule))
	})

	t.Run("groups are or-ed with everyone", func(t *testing.T) {
		e := NewEvaluator(Groups{"admin", "hr"})
		assert.Equal(t, FieldSelect|FieldUpdate|FieldInsert, e.Bits(rule))
	})

	t.Run("groups without rule add nothing", func(t *testing.T) {
		e := NewEvaluator(Groups{"sales"})
		assert.Equal(t, FieldSelect, e.Bits(rule))
	})

	t.Run("missing rule grants nothing when enabled", func(t *testing.T) {
		e := NewEvaluator(Groups{"admin"})
		assert.Equal(t, Bits(0), e.Bits(nil))
		assert.False(t, e.CanSelect(nil))
		assert.False(t, e.CanDeleteRow(nil))
	})

	t.Run("disabled evaluator permits everything", func(t *testing.T) {
		e := Disabled()
		assert.False(t, e.Enabled())
		assert.True(t, e.CanSelect(nil))
		assert.True(t, e.CanUpdate(nil))
		assert.True(t, e.CanInsert(nil))
		assert.True(t, e.CanInsertRow(nil))
		assert.True(t, e.CanDeleteRow(nil))
	})

	t.Run("nil evaluator behaves as disabled", func(t *testing.T) {
		var e *Evaluator
		assert.True(t, e.CanSelect(nil))
	})
}

func TestEvaluatorTable(t *testing.T) {
	table := MustParseRule("everyone=00,admin=11,clerk=10")

	assert.False(t, NewEvaluator(nil).CanInsertRow(table))
	assert.True(t, NewEvaluator(Groups{"clerk"}).CanInsertRow(table))
	assert.False(t, NewEvaluator(Groups{"clerk"}).CanDeleteRow(table))
	assert.True(t, NewEvaluator(Groups{"admin"}).CanDeleteRow(table))
}

func TestRights(t *testing.T) {
	field := MustParseRule("everyone=100,admin=111")
	table := MustParseRule("everyone=00,admin=11")

	assert.Equal(t, "10000", NewEvaluator(nil).Rights(field, table))
	assert.Equal(t, "11111", NewEvaluator(Groups{"admin"}).Rights(field, table))
	assert.Equal(t, "00000", NewEvaluator(nil).Rights(nil, nil))
}
