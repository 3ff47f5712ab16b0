package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/avolkov/macrocoach/internal/database"
	"github.com/avolkov/macrocoach/internal/logger"
)

// TelegramNotifier pushes "your weekly review is ready" messages. Users
// without a linked Telegram account are silently skipped.
type TelegramNotifier struct {
	api *tgbotapi.BotAPI
}

func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	logger.Info("Telegram notifier authorized", "account", api.Self.UserName)
	return &TelegramNotifier{api: api}, nil
}

func (n *TelegramNotifier) ReviewReady(user *database.User, review *database.ProgramReview) error {
	if user.TelegramID == 0 {
		return nil
	}

	text := fmt.Sprintf(
		"📋 Your week %d review is ready.\n\n"+
			"Compliance: %d%% over %d logged days\n"+
			"Recommended targets: %d kcal / %dg protein / %dg carbs / %dg fat (confidence: %s)\n\n"+
			"Open the app to accept or reject.",
		review.ReviewWeek,
		review.ComplianceRate, review.DaysAnalyzed,
		review.RecommendedCalories, review.RecommendedProtein,
		review.RecommendedCarbs, review.RecommendedFat,
		review.Confidence,
	)

	msg := tgbotapi.NewMessage(user.TelegramID, text)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send review notification: %w", err)
	}
	return nil
}
