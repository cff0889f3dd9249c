package models

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

const (
	// DefaultRedisTTL время жизни состояния пользователя в Redis
	DefaultRedisTTL = 24 * 60 * 60 // 24 часа в секундах

	// RateLimitMessages количество сообщений в окне
	RateLimitMessages = 20

	// RateLimitWindow окно ограничения частоты сообщений
	RateLimitWindow = 60 // 1 минута в секундах

	// DefaultSignalsLimit размер выдачи списка сигналов
	DefaultSignalsLimit = 20

	// MaxSignalsLimit верхняя граница limit в API
	MaxSignalsLimit = 100

	// BroadcastQueueSize размер очереди рассылки
	BroadcastQueueSize = 256
)

// Значения по умолчанию для антиспама сигналов.
const (
	DefaultGlobalCooldownSeconds    = 30
	DefaultPerSymbolCooldownSeconds = 60
	DefaultMaxSignalsPerAdminPerDay = 50
	DefaultMaxSignalsPerSymbolDay   = 20
	DefaultDuplicateScanWindow      = 20
)

var (
	DefaultTimeframes = []string{"M5", "M15", "M30", "H1", "H4", "D1"}
	DefaultDirections = []string{DirectionLong, DirectionShort}
)
