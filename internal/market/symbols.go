package market

import (
	"fmt"
	"strings"
)

// UnifiedSymbol - унифицированный формат торговой пары
type UnifiedSymbol struct {
	BaseCurrency   string `json:"base_currency"`   // BTC
	QuoteCurrency  string `json:"quote_currency"`  // USDT
	MarketType     string `json:"market_type"`     // spot, futures
	Symbol         string `json:"symbol"`          // унифицированный символ
	OriginalSymbol string `json:"original_symbol"` // оригинальный символ от биржи
}

// String реализует интерфейс fmt.Stringer для корректного отображения в логах
func (us *UnifiedSymbol) String() string {
	if us == nil {
		return "<nil>"
	}
	return us.Symbol
}

// NewUnifiedSymbol создает унифицированный символ
func NewUnifiedSymbol(baseCurrency, quoteCurrency, marketType string) *UnifiedSymbol {
	symbol := formatUnifiedSymbol(baseCurrency, quoteCurrency, marketType)
	return &UnifiedSymbol{
		BaseCurrency:  strings.ToUpper(baseCurrency),
		QuoteCurrency: strings.ToUpper(quoteCurrency),
		MarketType:    strings.ToLower(marketType),
		Symbol:        symbol,
	}
}

// formatUnifiedSymbol создает унифицированный символ по правилам:
// spot: BTC/USDT
// futures: BTCUSDT
func formatUnifiedSymbol(base, quote, marketType string) string {
	base = strings.ToUpper(base)
	quote = strings.ToUpper(quote)
	marketType = strings.ToLower(marketType)

	switch marketType {
	case "spot":
		return fmt.Sprintf("%s/%s", base, quote)
	case "futures", "future":
		return fmt.Sprintf("%s%s", base, quote)
	default:
		// По умолчанию как spot
		return fmt.Sprintf("%s/%s", base, quote)
	}
}

// ParseSymbol парсит различные форматы символов в унифицированный
func ParseSymbol(symbol, marketType string) (*UnifiedSymbol, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	marketType = strings.ToLower(strings.TrimSpace(marketType))

	var base, quote string

	// Обработка различных форматов
	switch {
	case strings.Contains(symbol, "/"):
		// BTC/USDT
		parts := strings.Split(symbol, "/")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid symbol format with /: %s", symbol)
		}
		base, quote = parts[0], parts[1]

	case strings.Contains(symbol, "-"):
		// BTC-USDT (Kucoin, OKX)
		parts := strings.Split(symbol, "-")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid symbol format with -: %s", symbol)
		}
		base, quote = parts[0], parts[1]

	case strings.Contains(symbol, "_"):
		// BTC_USDT (некоторые биржи)
		parts := strings.Split(symbol, "_")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid symbol format with _: %s", symbol)
		}
		base, quote = parts[0], parts[1]

	default:
		// BTCUSDT - нужно разделить
		base, quote = splitConcatenatedSymbol(symbol)
		if base == "" || quote == "" {
			return nil, fmt.Errorf("cannot parse concatenated symbol: %s", symbol)
		}
	}

	unifiedSymbol := NewUnifiedSymbol(base, quote, marketType)
	unifiedSymbol.OriginalSymbol = symbol
	return unifiedSymbol, nil
}

// splitConcatenatedSymbol разделяет склеенные символы типа BTCUSDT
func splitConcatenatedSymbol(symbol string) (base, quote string) {
	// Общие quote валюты в порядке убывания длины
	commonQuotes := []string{
		"USDT", "USDC", "BUSD", "TUSD", "USDP",
		"BTC", "ETH", "BNB", "USD", "EUR", "GBP",
		"DAI", "FDUSD", "BTTC", "TRX", "INR",
	}

	for _, q := range commonQuotes {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			base = symbol[:len(symbol)-len(q)]
			quote = q
			return
		}
	}

	// Если не нашли, пробуем общие паттерны
	if len(symbol) >= 6 {
		// Попробуем разделить пополам для коротких символов
		if len(symbol) == 6 {
			return symbol[:3], symbol[3:]
		}
		// Для длинных символов предполагаем, что quote - последние 3-4 символа
		if strings.HasSuffix(symbol, "USDT") {
			return symbol[:len(symbol)-4], "USDT"
		}
		if len(symbol) >= 6 {
			return symbol[:len(symbol)-3], symbol[len(symbol)-3:]
		}
	}

	return "", ""
}

// ExchangeSymbolConverter - интерфейс для конвертации символов биржи
type ExchangeSymbolConverter interface {
	ToExchangeSymbol(unified *UnifiedSymbol) string
	FromExchangeSymbol(exchangeSymbol, marketType string) (*UnifiedSymbol, error)
}

// BinanceSymbolConverter - конвертер для Binance
type BinanceSymbolConverter struct{}

func (c *BinanceSymbolConverter) ToExchangeSymbol(unified *UnifiedSymbol) string {
	// Binance использует формат BTCUSDT для всех рынков
	return fmt.Sprintf("%s%s", unified.BaseCurrency, unified.QuoteCurrency)
}

func (c *BinanceSymbolConverter) FromExchangeSymbol(exchangeSymbol, marketType string) (*UnifiedSymbol, error) {
	return ParseSymbol(exchangeSymbol, marketType)
}

// FormatConverter - конвертер по шаблону: разделитель, порядок валют, префикс и алиасы валют
type FormatConverter struct {
	Separator  string            // "", "-", "_"
	QuoteFirst bool              // Bittrex: USDT-BTC
	Prefix     string            // Bitfinex: tBTCUSD
	Aliases    map[string]string // унифицированная валюта -> валюта биржи (BTC -> XBT)
}

func (c *FormatConverter) alias(currency string) string {
	if a, ok := c.Aliases[currency]; ok {
		return a
	}
	return currency
}

func (c *FormatConverter) unalias(currency string) string {
	for unified, venue := range c.Aliases {
		if venue == currency {
			return unified
		}
	}
	return currency
}

func (c *FormatConverter) ToExchangeSymbol(unified *UnifiedSymbol) string {
	base, quote := c.alias(unified.BaseCurrency), c.alias(unified.QuoteCurrency)
	if c.QuoteFirst {
		base, quote = quote, base
	}
	return c.Prefix + base + c.Separator + quote
}

func (c *FormatConverter) FromExchangeSymbol(exchangeSymbol, marketType string) (*UnifiedSymbol, error) {
	raw := strings.TrimPrefix(exchangeSymbol, c.Prefix)
	var first, second string
	if c.Separator != "" {
		parts := strings.Split(strings.ToUpper(raw), c.Separator)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid symbol format with %s: %s", c.Separator, exchangeSymbol)
		}
		first, second = parts[0], parts[1]
	} else if base, quote, ok := c.splitByAlias(strings.ToUpper(raw)); ok {
		first, second = base, quote
	} else {
		parsed, err := ParseSymbol(raw, marketType)
		if err != nil {
			return nil, err
		}
		first, second = parsed.BaseCurrency, parsed.QuoteCurrency
	}
	if c.QuoteFirst {
		first, second = second, first
	}
	unified := NewUnifiedSymbol(c.unalias(first), c.unalias(second), marketType)
	unified.OriginalSymbol = exchangeSymbol
	return unified, nil
}

// splitByAlias делит склеенный символ по известной валюте биржи (XBTUSD -> XBT, USD)
func (c *FormatConverter) splitByAlias(raw string) (string, string, bool) {
	for _, venue := range c.Aliases {
		if strings.HasPrefix(raw, venue) && len(raw) > len(venue) {
			return venue, raw[len(venue):], true
		}
		if strings.HasSuffix(raw, venue) && len(raw) > len(venue) {
			return raw[:len(raw)-len(venue)], venue, true
		}
	}
	return "", "", false
}

// SymbolRegistry - реестр конвертеров символов
type SymbolRegistry struct {
	converters map[string]ExchangeSymbolConverter
}

func NewSymbolRegistry() *SymbolRegistry {
	registry := &SymbolRegistry{
		converters: make(map[string]ExchangeSymbolConverter),
	}

	// Регистрируем стандартные конвертеры
	registry.RegisterConverter("binance", &BinanceSymbolConverter{})
	registry.RegisterConverter("bitfinex", &FormatConverter{Aliases: map[string]string{"USDT": "UST"}})
	registry.RegisterConverter("bitmex", &FormatConverter{Aliases: map[string]string{"BTC": "XBT"}})
	registry.RegisterConverter("bittrex", &FormatConverter{Separator: "-", QuoteFirst: true})
	registry.RegisterConverter("cobinhood", &FormatConverter{Separator: "-"})
	registry.RegisterConverter("coinbaseprime", &FormatConverter{Separator: "-"})
	registry.RegisterConverter("coindcx", &BinanceSymbolConverter{})
	registry.RegisterConverter("hitbtc", &BinanceSymbolConverter{})
	registry.RegisterConverter("kraken", &FormatConverter{Aliases: map[string]string{"BTC": "XBT"}})
	registry.RegisterConverter("okex", &FormatConverter{Separator: "-"})

	return registry
}

func (r *SymbolRegistry) RegisterConverter(exchange string, converter ExchangeSymbolConverter) {
	r.converters[exchange] = converter
}

func (r *SymbolRegistry) GetConverter(exchange string) ExchangeSymbolConverter {
	if converter, exists := r.converters[exchange]; exists {
		return converter
	}
	// Возвращаем дефолтный конвертер (как Binance)
	return &BinanceSymbolConverter{}
}

// ConvertToUnified конвертирует символ биржи в унифицированный формат
func (r *SymbolRegistry) ConvertToUnified(exchange, exchangeSymbol, marketType string) (*UnifiedSymbol, error) {
	converter := r.GetConverter(exchange)
	return converter.FromExchangeSymbol(exchangeSymbol, marketType)
}

// ConvertToExchange конвертирует унифицированный символ в формат биржи
func (r *SymbolRegistry) ConvertToExchange(exchange string, unified *UnifiedSymbol) string {
	converter := r.GetConverter(exchange)
	return converter.ToExchangeSymbol(unified)
}

// ExchangeSymbol переводит строку BASE/QUOTE в формат биржи
func (r *SymbolRegistry) ExchangeSymbol(exchange, symbol string) (string, error) {
	unified, err := ParseSymbol(symbol, "spot")
	if err != nil {
		return "", err
	}
	return r.ConvertToExchange(exchange, unified), nil
}
