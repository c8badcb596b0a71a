package usecase

import (
	"fmt"
	"strings"

	"HSEWrapped/internal/admission"
	"HSEWrapped/internal/domain"
)

const (
	MediaCaption = "🎓 Твоя статистика HSE Wrapped"

	msgAnalysing = "⏳ Начинаю анализ вашего портфолио...\n\nЭто может занять несколько минут. Пожалуйста, подождите!"
	msgRendering = "✅ Анализ завершен!\n\nСоздаю красивые изображения..."
	msgTimedOut  = "⏰ Время обработки истекло!\n\nПопробуйте еще раз через минуту. Если проблема повторяется, возможно портфолио недоступно."
	msgFailed    = "❌ Произошла ошибка при анализе портфолио!\n\nВозможные причины:\n• Портфолио недоступно или приватное\n• Проблемы с сетью\n• Неверная ссылка\n\nПопробуйте еще раз, отправив ссылку на портфолио!"
	msgInFlight  = "⏳ Ваш предыдущий запрос ещё обрабатывается. Дождитесь результата!"
)

func rejectionMessage(rej *admission.RejectedError) string {
	switch rej.Reason {
	case admission.ReasonCooldown:
		return fmt.Sprintf("⏰ Подождите %d секунд перед следующим запросом.\n\nЭто помогает боту работать стабильно для всех пользователей!", rej.Detail)
	case admission.ReasonCapacity:
		return fmt.Sprintf("🚦 Сейчас очень много запросов!\n\nВы в очереди на позиции %d.\nПопробуйте через 1-2 минуты.", rej.Detail)
	default:
		return msgInFlight
	}
}

// FormatUsageStats renders the admin statistics message.
func FormatUsageStats(s domain.UsageStats, top []domain.UserRecord) string {
	var b strings.Builder
	b.WriteString("📊 СТАТИСТИКА БОТА\n\n")
	fmt.Fprintf(&b, "👥 Всего пользователей: %d\n", s.TotalUsers)
	fmt.Fprintf(&b, "🟢 Активных за неделю: %d\n", s.ActiveUsers)
	fmt.Fprintf(&b, "✅ Успешно использовали: %d\n\n", s.SuccessfulUsers)

	b.WriteString("📈 ЗАПРОСЫ\n")
	fmt.Fprintf(&b, "📋 Всего запросов: %d\n", s.TotalRequests)
	fmt.Fprintf(&b, "✅ Успешных: %d\n", s.TotalSuccessful)
	fmt.Fprintf(&b, "❌ Неудачных: %d\n", s.TotalFailed)
	fmt.Fprintf(&b, "📊 Успешность: %.1f%%\n\n", s.SuccessRate)

	b.WriteString("🖼️ ИЗОБРАЖЕНИЯ\n")
	fmt.Fprintf(&b, "📸 Всего создано: %d\n", s.TotalImages)
	fmt.Fprintf(&b, "📊 В среднем на пользователя: %.1f\n", s.AverageImagesPerUser)

	if len(top) > 0 {
		b.WriteString("\n🏆 ТОП ПОЛЬЗОВАТЕЛЕЙ\n")
		for i, u := range top {
			fmt.Fprintf(&b, "%d. %s: %d запросов\n", i+1, u.Name(), u.PortfolioRequests)
		}
	}
	return b.String()
}
