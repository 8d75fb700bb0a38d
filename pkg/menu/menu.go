// Package menu holds the coffee catalog and the pricing rules for it.
//
// All prices are integers in micro-USDC (1 USDC = 1,000,000 micro units).
// Pricing is pure: the same (drink, size, bean) triple always prices the
// same, and an unknown component fails instead of defaulting.
package menu

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownOption = errors.New("unknown menu option")

const (
	DefaultSize = "Tall"
	DefaultBean = "일반"

	// MicroUnitsPerUSD converts micro-USDC amounts to display dollars.
	MicroUnitsPerUSD = 1_000_000
)

type Drink struct {
	Name          string `json:"name"`
	BasePrice     int64  `json:"base_price_micro"`
	Description   string `json:"description"`
	DescriptionEN string `json:"description_en"`
}

type Size struct {
	Name      string `json:"name"`
	PriceDiff int64  `json:"price_diff_micro"`
	Volume    string `json:"volume"`
	VolumeOz  string `json:"volume_oz"`
}

type Bean struct {
	Name          string `json:"name"`
	PriceDiff     int64  `json:"price_diff_micro"`
	Description   string `json:"description"`
	DescriptionEN string `json:"description_en"`
}

// Base prices are quoted for Tall; sizes and beans adjust from there.
var drinks = map[string]Drink{
	"아메리카노":   {Name: "아메리카노", BasePrice: 45_000, Description: "진한 에스프레소", DescriptionEN: "Rich espresso with water"},
	"카페라떼":    {Name: "카페라떼", BasePrice: 50_000, Description: "부드러운 우유와 에스프레소", DescriptionEN: "Smooth milk with espresso"},
	"카푸치노":    {Name: "카푸치노", BasePrice: 55_000, Description: "풍성한 거품", DescriptionEN: "Rich foam with espresso"},
	"바닐라라떼":   {Name: "바닐라라떼", BasePrice: 60_000, Description: "달콤한 바닐라 향", DescriptionEN: "Sweet vanilla latte"},
	"카라멜마끼아또": {Name: "카라멜마끼아또", BasePrice: 65_000, Description: "달콤한 카라멜 드리즐", DescriptionEN: "Sweet caramel drizzle"},
	"모카":      {Name: "모카", BasePrice: 60_000, Description: "초콜릿과 에스프레소의 조화", DescriptionEN: "Chocolate and espresso harmony"},
}

var sizes = map[string]Size{
	"Short":  {Name: "Short", PriceDiff: -5_000, Volume: "237ml", VolumeOz: "8oz"},
	"Tall":   {Name: "Tall", PriceDiff: 0, Volume: "355ml", VolumeOz: "12oz"},
	"Grande": {Name: "Grande", PriceDiff: 5_000, Volume: "473ml", VolumeOz: "16oz"},
	"Venti":  {Name: "Venti", PriceDiff: 10_000, Volume: "591ml", VolumeOz: "20oz"},
}

var beans = map[string]Bean{
	"일반":     {Name: "일반", PriceDiff: 0, Description: "하우스 블렌드", DescriptionEN: "House blend"},
	"디카페인":   {Name: "디카페인", PriceDiff: 3_000, Description: "카페인 제거 원두", DescriptionEN: "Decaffeinated beans"},
	"하프디카페인": {Name: "하프디카페인", PriceDiff: 3_000, Description: "50% 디카페인 블렌드", DescriptionEN: "50% decaf blend"},
}

var drinkOrder = []string{"아메리카노", "카페라떼", "카푸치노", "바닐라라떼", "카라멜마끼아또", "모카"}
var sizeOrder = []string{"Short", "Tall", "Grande", "Venti"}
var beanOrder = []string{"일반", "디카페인", "하프디카페인"}

// Price returns the total in micro-USDC: base(drink) + diff(size) + diff(bean).
func Price(drink, size, bean string) (int64, error) {
	d, ok := drinks[drink]
	if !ok {
		return 0, fmt.Errorf("%w: drink %q (available: %s)", ErrUnknownOption, drink, strings.Join(drinkOrder, ", "))
	}
	s, ok := sizes[size]
	if !ok {
		return 0, fmt.Errorf("%w: size %q (available: %s)", ErrUnknownOption, size, strings.Join(sizeOrder, ", "))
	}
	b, ok := beans[bean]
	if !ok {
		return 0, fmt.Errorf("%w: bean %q (available: %s)", ErrUnknownOption, bean, strings.Join(beanOrder, ", "))
	}
	return d.BasePrice + s.PriceDiff + b.PriceDiff, nil
}

// Validate checks the triple without pricing it.
func Validate(drink, size, bean string) error {
	_, err := Price(drink, size, bean)
	return err
}

// FormatUSD renders a micro-USDC amount as a dollar string rounded half-up
// to cents, e.g. 50000 -> "$0.05". Authorization paths never use this; they
// carry the integer micro amount.
func FormatUSD(micro int64) string {
	sign := ""
	if micro < 0 {
		sign = "-"
		micro = -micro
	}
	cents := (micro + 5_000) / 10_000
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// DecimalUSD renders the amount without the dollar sign, for wire fields
// that carry {currency, value} pairs.
func DecimalUSD(micro int64) string {
	return strings.TrimPrefix(FormatUSD(micro), "$")
}

// Describe builds the human-readable order line, e.g. "Grande 아메리카노 디카페인".
// The house-blend bean is omitted, matching how baristas actually call orders.
func Describe(drink, size, bean string) string {
	if bean == DefaultBean {
		return fmt.Sprintf("%s %s", size, drink)
	}
	return fmt.Sprintf("%s %s %s", size, drink, bean)
}

type DisplayItem struct {
	Name        string `json:"name"`
	PriceUSD    string `json:"base_price_usd,omitempty"`
	PriceMicro  int64  `json:"base_price_micro,omitempty"`
	Description string `json:"description,omitempty"`
	Volume      string `json:"volume,omitempty"`
	PriceDiff   string `json:"price_diff,omitempty"`
}

type Display struct {
	Drinks []DisplayItem `json:"menu"`
	Sizes  []DisplayItem `json:"sizes"`
	Beans  []DisplayItem `json:"beans"`
	Note   string        `json:"note"`
}

// Board returns the customer-facing menu. It prices through the same
// tables as Price so the two views can never diverge.
func Board() Display {
	out := Display{Note: "모든 가격은 Tall 사이즈 기준입니다. All prices are based on Tall size."}
	for _, name := range drinkOrder {
		d := drinks[name]
		out.Drinks = append(out.Drinks, DisplayItem{
			Name:        d.Name,
			PriceUSD:    FormatUSD(d.BasePrice),
			PriceMicro:  d.BasePrice,
			Description: d.Description,
		})
	}
	for _, name := range sizeOrder {
		s := sizes[name]
		out.Sizes = append(out.Sizes, DisplayItem{Name: s.Name, Volume: s.Volume, PriceDiff: diffLabel(s.PriceDiff, "(기준)")})
	}
	for _, name := range beanOrder {
		b := beans[name]
		out.Beans = append(out.Beans, DisplayItem{Name: b.Name, Description: b.Description, PriceDiff: diffLabel(b.PriceDiff, "(기본)")})
	}
	return out
}

func diffLabel(diff int64, zero string) string {
	switch {
	case diff > 0:
		return "+" + FormatUSD(diff)
	case diff < 0:
		return "-" + FormatUSD(-diff)
	default:
		return zero
	}
}
