package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCents(t *testing.T) {
	tests := []struct {
		in      string
		want    Cents
		wantErr bool
	}{
		{"10", 1000, false},
		{"10.5", 1050, false},
		{"0.25", 25, false},
		{".50", 50, false},
		{" 100.00 ", 10000, false},
		{"-1.05", -105, false},
		{"0.255", 0, true},
		{"", 0, true},
		{".", 0, true},
		{"1,50", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCents(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCents_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Cost Cents `json:"cost"`
	}{Cost: 1005})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cost": 10.05}`, string(b))

	var v struct {
		Balance Cents `json:"balance"`
		Limit   Cents `json:"limit"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"balance": 9.75, "limit": "100"}`), &v))
	assert.Equal(t, Cents(975), v.Balance)
	assert.Equal(t, Cents(10000), v.Limit)

	assert.Error(t, json.Unmarshal([]byte(`{"balance": 0.001}`), &v))
	assert.Equal(t, "-0.05", Cents(-5).String())
}
