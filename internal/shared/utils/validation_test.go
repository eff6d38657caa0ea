package utils

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntParam(t *testing.T) {
	tests := []struct {
		name   string
		value  interface{}
		want   int
		wantOK bool
	}{
		{"float", 80.0, 80, true},
		{"fraction floors", 80.9, 80, true},
		{"numeric string", "132", 132, true},
		{"json number", json.Number("44"), 44, true},
		{"nan", math.NaN(), 0, false},
		{"inf", math.Inf(1), 0, false},
		{"garbage string", "wide", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := IntParam(map[string]interface{}{"v": tt.value}, "v")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIntegerParam(t *testing.T) {
	n, ok := IntegerParam(map[string]interface{}{"sessionId": 7.0}, "sessionId")
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	_, ok = IntegerParam(map[string]interface{}{"sessionId": 7.5}, "sessionId")
	assert.False(t, ok)

	_, ok = IntegerParam(map[string]interface{}{"sessionId": "7"}, "sessionId")
	assert.False(t, ok)

	_, ok = IntegerParam(nil, "sessionId")
	assert.False(t, ok)
}

func TestValidateOperation(t *testing.T) {
	assert.NoError(t, ValidateOperation("terminal.create"))
	assert.NoError(t, ValidateOperation("fs.listDirectory"))
	assert.Error(t, ValidateOperation(""))
	assert.Error(t, ValidateOperation("terminal"))
	assert.Error(t, ValidateOperation(".create"))
	assert.Error(t, ValidateOperation("a.b\x00"))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 20, Clamp(5, 20, 500))
	assert.Equal(t, 500, Clamp(10000, 20, 500))
	assert.Equal(t, 80, Clamp(80, 20, 500))
}

func TestSliceAndStringParams(t *testing.T) {
	params := map[string]interface{}{"args": []interface{}{1.0, "x"}, "path": "/tmp", "force": true}

	assert.Len(t, SliceParam(params, "args"), 2)
	assert.Empty(t, SliceParam(params, "missing"))

	s, ok := StringParam(params, "path")
	assert.True(t, ok)
	assert.Equal(t, "/tmp", s)

	assert.True(t, BoolParam(params, "force"))
	assert.False(t, BoolParam(nil, "force"))
}

func TestArgumentFallsBackToBareValue(t *testing.T) {
	bare := map[string]interface{}{ValueKey: "/ws"}
	named := map[string]interface{}{"path": "/named", ValueKey: "/ws"}

	s, ok := StringArgument(bare, "path")
	assert.True(t, ok)
	assert.Equal(t, "/ws", s)

	s, ok = StringArgument(named, "path")
	assert.True(t, ok)
	assert.Equal(t, "/named", s)

	assert.Nil(t, Argument(nil, "path"))
	_, ok = StringArgument(map[string]interface{}{ValueKey: 3.0}, "path")
	assert.False(t, ok)
}

func TestIntegerArgument(t *testing.T) {
	n, ok := IntegerArgument(map[string]interface{}{ValueKey: 7.0}, "sessionId")
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	_, ok = IntegerArgument(map[string]interface{}{"sessionId": 1.5}, "sessionId")
	assert.False(t, ok)
	_, ok = IntegerArgument(map[string]interface{}{"sessionId": "1"}, "sessionId")
	assert.False(t, ok)
}
