package payouts

import (
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
)

func TestComputeNetCents(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		gross int64
		rate  string
		want  int64
	}{
		{name: "ten percent commission", gross: 149900, rate: "0.10", want: 134910},
		{name: "zero commission", gross: 50000, rate: "0", want: 50000},
		{name: "full commission", gross: 50000, rate: "1", want: 0},
		{name: "half cent tie rounds to even down", gross: 5, rate: "0.5", want: 2},
		{name: "half cent tie rounds to even up", gross: 7, rate: "0.5", want: 4},
		{name: "zero gross", gross: 0, rate: "0.15", want: 0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rate, err := ParseCommissionRate(tc.rate)
			if err != nil {
				t.Fatalf("parse rate: %v", err)
			}
			got, err := ComputeNetCents(tc.gross, rate)
			if err != nil {
				t.Fatalf("compute: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestComputeNetCentsRejectsOutOfRangeRate(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"-0.01", "1.01"} {
		_, err := ParseCommissionRate(raw)
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("rate %s: expected validation error, got %v", raw, err)
		}
	}

	_, err := ComputeNetCents(100, decimal.NewFromFloat(1.5))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseCommissionRateRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseCommissionRate("ten percent")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
