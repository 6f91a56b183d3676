package market

import "strings"

// ResolutionTable - таблица соответствия токенов разрешения графика интервалам биржи.
// Неизвестный токен отображается в Default.
type ResolutionTable struct {
	Supported []string          // упорядоченный список токенов для графика
	Intervals map[string]string // токен -> интервал биржи
	Default   string            // интервал для неизвестных токенов
}

// Lookup возвращает интервал биржи для токена разрешения
func (t ResolutionTable) Lookup(token string) string {
	if interval, ok := t.Intervals[normalizeToken(token)]; ok {
		return interval
	}
	return t.Default
}

// Supports сообщает, принимает ли биржа токен
func (t ResolutionTable) Supports(token string) bool {
	token = normalizeToken(token)
	for _, s := range t.Supported {
		if s == token {
			return true
		}
	}
	return false
}

// SupportedResolutions возвращает копию упорядоченного списка
func (t ResolutionTable) SupportedResolutions() []string {
	out := make([]string, len(t.Supported))
	copy(out, t.Supported)
	return out
}

// normalizeToken приводит 1D/1W к D/W; 1M не трогаем (это месяц, а не минута)
func normalizeToken(token string) string {
	token = strings.TrimSpace(token)
	switch strings.ToUpper(token) {
	case "1D":
		return "D"
	case "1W":
		return "W"
	}
	if token == "1M" {
		return "M"
	}
	return token
}

// ResolutionMinutes возвращает длительность токена в минутах (0 для неизвестных)
func ResolutionMinutes(token string) int {
	switch normalizeToken(token) {
	case "D":
		return 1440
	case "3D":
		return 3 * 1440
	case "W":
		return 7 * 1440
	case "2W":
		return 14 * 1440
	case "15D":
		return 15 * 1440
	case "M":
		return 30 * 1440
	}
	n := 0
	for _, r := range token {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
