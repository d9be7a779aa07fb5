package tool

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type named struct{ v string }

func (n named) String() string { return "named:" + n.v }

type payload struct {
	City string `json:"city"`
	Temp int    `json:"temp"`
}

func TestStringify(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"bytes", []byte("raw"), "raw"},
		{"time", ts, "2024-03-01T12:00:00Z"},
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"uint8", uint8(8), "8"},
		{"float32", float32(1.5), "1.5"},
		{"float64", 18.25, "18.25"},
		{"text marshaler", net.ParseIP("10.0.0.1"), "10.0.0.1"},
		{"stringer", named{"x"}, "named:x"},
		{"struct", payload{City: "Paris", Temp: 18}, `{"city":"Paris","temp":18}`},
		{"slice", []int{1, 2}, `[1,2]`},
		{"map", map[string]int{"a": 1}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Stringify(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringify_Unencodable(t *testing.T) {
	_, err := Stringify(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
