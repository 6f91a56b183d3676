package market

import (
	"math"
	"strings"
)

// DatafeedConfig - конфигурация источника данных для графика (onReady)
type DatafeedConfig struct {
	SymbolsTypes           []string `json:"symbols_types"`
	Exchanges              []string `json:"exchanges"`
	SupportsMarks          bool     `json:"supports_marks"`
	SupportsTimescaleMarks bool     `json:"supports_timescale_marks"`
	SupportsTime           bool     `json:"supports_time"`
	SupportedResolutions   []string `json:"supported_resolutions"`
}

// NewDatafeedConfig возвращает конфигурацию с разрешениями биржи
func NewDatafeedConfig(resolutions []string) DatafeedConfig {
	return DatafeedConfig{
		SymbolsTypes:         []string{},
		Exchanges:            []string{},
		SupportedResolutions: resolutions,
	}
}

// SymbolInfo - описание символа для графика (resolveSymbol)
type SymbolInfo struct {
	Name                 string   `json:"name"`
	FullName             string   `json:"full_name"`
	Ticker               string   `json:"ticker"`
	Description          string   `json:"description"`
	Exchange             string   `json:"exchange"`
	ListedExchange       string   `json:"listed_exchange"`
	Type                 string   `json:"type"`
	Session              string   `json:"session"`
	Timezone             string   `json:"timezone"`
	MinMov               int      `json:"minmov"`
	PriceScale           int64    `json:"pricescale"`
	HasIntraday          bool     `json:"has_intraday"`
	HasNoVolume          bool     `json:"has_no_volume"`
	HasSeconds           bool     `json:"has_seconds"`
	HasDaily             bool     `json:"has_daily"`
	HasWeeklyAndMonthly  bool     `json:"has_weekly_and_monthly"`
	SupportedResolutions []string `json:"supported_resolutions"`
}

// PriceDecimals: 8 знаков для котировок в BTC и ETH, иначе 3
func PriceDecimals(symbol string) int {
	s := strings.ToUpper(symbol)
	if strings.HasSuffix(s, "BTC") || strings.HasSuffix(s, "ETH") {
		return 8
	}
	return 3
}

// ResolveSymbol описывает символ для графика
func ResolveSymbol(exchange, symbol string, resolutions []string) SymbolInfo {
	venue := strings.ToUpper(exchange)
	return SymbolInfo{
		Name:                 symbol,
		FullName:             symbol,
		Ticker:               symbol,
		Description:          symbol,
		Exchange:             venue,
		ListedExchange:       venue,
		Type:                 "pulsed",
		Session:              "24x7",
		Timezone:             "America/New_York",
		MinMov:               1,
		PriceScale:           int64(math.Pow10(PriceDecimals(symbol))),
		HasIntraday:          true,
		HasSeconds:           true,
		HasDaily:             true,
		HasWeeklyAndMonthly:  true,
		SupportedResolutions: resolutions,
	}
}

// HistoryDepth - насколько далеко назад график запрашивает историю
type HistoryDepth struct {
	ResolutionBack string  `json:"resolutionBack"` // D или M
	IntervalBack   float64 `json:"intervalBack"`
}

// baseHistoryDepth - глубина для 1000 свечей
var baseHistoryDepth = map[string]HistoryDepth{
	"1":   {"D", 0.5},
	"3":   {"D", 2},
	"5":   {"D", 3},
	"15":  {"D", 10},
	"30":  {"D", 20},
	"60":  {"M", 1},
	"120": {"M", 2},
	"240": {"M", 4},
	"360": {"M", 6},
	"480": {"M", 8},
	"720": {"M", 12},
	"D":   {"M", 33},
	"3D":  {"M", 90},
	"W":   {"M", 198},
	"M":   {"M", 1000},
}

// CalculateHistoryDepth возвращает глубину истории с учётом лимита свечей биржи.
// Если у биржи своя таблица (overrides), базовая не используется и деления на лимит нет.
// Для неизвестного разрешения ok=false.
func CalculateHistoryDepth(resolution string, maxLimit int, overrides map[string]HistoryDepth) (HistoryDepth, bool) {
	token := normalizeToken(resolution)
	if overrides != nil {
		d, ok := overrides[token]
		return d, ok
	}
	d, ok := baseHistoryDepth[token]
	if !ok {
		return HistoryDepth{}, false
	}
	if maxLimit <= 0 {
		maxLimit = 1000
	}
	d.IntervalBack = d.IntervalBack / (1000 / float64(maxLimit))
	return d, true
}
