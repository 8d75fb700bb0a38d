package menu

import (
	"errors"
	"testing"
)

func TestPrice_KnownTriples(t *testing.T) {
	cases := []struct {
		drink, size, bean string
		want              int64
	}{
		{"아메리카노", "Grande", "일반", 50_000},
		{"아메리카노", "Tall", "일반", 45_000},
		{"아메리카노", "Short", "일반", 40_000},
		{"카페라떼", "Venti", "디카페인", 63_000},
		{"카푸치노", "Tall", "하프디카페인", 58_000},
		{"카라멜마끼아또", "Venti", "디카페인", 78_000},
	}
	for _, c := range cases {
		got, err := Price(c.drink, c.size, c.bean)
		if err != nil {
			t.Fatalf("Price(%s,%s,%s): %v", c.drink, c.size, c.bean, err)
		}
		if got != c.want {
			t.Fatalf("Price(%s,%s,%s): want %d got %d", c.drink, c.size, c.bean, c.want, got)
		}
	}
}

func TestPrice_Deterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		got, err := Price("모카", "Grande", "디카페인")
		if err != nil {
			t.Fatalf("Price: %v", err)
		}
		if got != 68_000 {
			t.Fatalf("Price not deterministic: got %d on run %d", got, i)
		}
	}
}

func TestPrice_UnknownOption(t *testing.T) {
	cases := []struct {
		name              string
		drink, size, bean string
	}{
		{"unknown drink", "에스프레소콘파나", "Tall", "일반"},
		{"unknown size", "아메리카노", "Trenta", "일반"},
		{"unknown bean", "아메리카노", "Tall", "곱빼기"},
		{"empty drink", "", "Tall", "일반"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Price(c.drink, c.size, c.bean); !errors.Is(err, ErrUnknownOption) {
				t.Fatalf("expected ErrUnknownOption, got %v", err)
			}
		})
	}
}

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		micro int64
		want  string
	}{
		{50_000, "$0.05"},
		{48_000, "$0.05"},
		{1_000_000, "$1.00"},
		{63_000, "$0.06"},
		{0, "$0.00"},
		{-5_000, "-$0.01"},
	}
	for _, c := range cases {
		if got := FormatUSD(c.micro); got != c.want {
			t.Fatalf("FormatUSD(%d): want %s got %s", c.micro, c.want, got)
		}
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe("아메리카노", "Grande", "일반"); got != "Grande 아메리카노" {
		t.Fatalf("Describe default bean: got %q", got)
	}
	if got := Describe("카페라떼", "Tall", "디카페인"); got != "Tall 카페라떼 디카페인" {
		t.Fatalf("Describe decaf: got %q", got)
	}
}

func TestBoard_PricesThroughSameTables(t *testing.T) {
	board := Board()
	if len(board.Drinks) != 6 || len(board.Sizes) != 4 || len(board.Beans) != 3 {
		t.Fatalf("unexpected board shape: %d drinks %d sizes %d beans", len(board.Drinks), len(board.Sizes), len(board.Beans))
	}
	for _, d := range board.Drinks {
		priced, err := Price(d.Name, DefaultSize, DefaultBean)
		if err != nil {
			t.Fatalf("Price(%s): %v", d.Name, err)
		}
		if priced != d.PriceMicro {
			t.Fatalf("board price for %s diverges from Price: %d vs %d", d.Name, d.PriceMicro, priced)
		}
	}
}
