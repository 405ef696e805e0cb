package quizbot

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/stats"
	"github.com/m3rciful/quizbot/core/telegram/format"
	"github.com/m3rciful/quizbot/core/telegram/keyboard"
)

const (
	textNeedStart       = "🔄 Please use /start first!"
	textInvalidJSON     = "❌ *Invalid JSON!* Use /template to see the expected format."
	textNoQuestions     = "❌ No questions found! Use /template for the format."
	textProcessing      = "🔄 *Processing your quiz...*"
	textCreateAnother   = "🎉 *Create another one?* Use /start!"
	textNudge           = "🎯 Hi! Use /start to create a quiz."
	textTemplateHeader  = "📋 *JSON template:*"
	textTemplateHint    = "💡 *Copy the template, replace the questions and send it back.*"
	textUnknownCallback = "Unknown action"
	defaultFirstName    = "Friend"
)

func quizTypeLabel(anonymous bool) string {
	if anonymous {
		return "🔒 Anonymous"
	}
	return "👤 Public"
}

func welcomeText(firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = defaultFirstName
	}
	return fmt.Sprintf("👋 *Welcome, %s!*\n\n"+
		"I turn a list of questions in JSON into Telegram quiz polls.\n\n"+
		"Choose the quiz type:", format.EscapeV1(name))
}

func quizTypeKeyboard() *tele.ReplyMarkup {
	return keyboard.Column(
		keyboard.Button{Text: "🔒 Anonymous quiz", Data: CallbackAnonymous},
		keyboard.Button{Text: "👤 Public quiz", Data: CallbackPublic},
	)
}

func typeSelectedText(anonymous bool) string {
	return fmt.Sprintf("✅ *%s quiz selected!*\n\n⏳ Template coming up...", quizTypeLabel(anonymous))
}

func instructionsText(anonymous bool) string {
	return fmt.Sprintf("✅ *%s quiz selected!*\n\n"+
		"📝 *Next steps:*\n"+
		"1. Copy the JSON template above\n"+
		"2. Fill in your own questions, by hand or with an AI assistant\n"+
		"3. Send the JSON back here\n\n"+
		"📚 *Format:* `o` holds 2 to 10 options, `c` is the index of the correct one (0 = first)\n\n"+
		"🚀 *Send your JSON now*", quizTypeLabel(anonymous))
}

func helpText(cmds []tele.Command) string {
	var sb strings.Builder
	sb.WriteString("🆘 *Quiz Bot help*\n\n🤖 *Commands:*\n")
	for _, c := range cmds {
		fmt.Fprintf(&sb, "• `%s` %s\n", c.Text, format.EscapeV1(c.Description))
	}
	sb.WriteString("\n📚 *JSON format:*\n" +
		"• `all_q` list of questions\n" +
		"• `q` question text\n" +
		"• `o` answer options (2 to 10)\n" +
		"• `c` correct option index (0 = first)\n" +
		"• `e` explanation (optional)\n\n" +
		"🚀 *Quick start:* /start")
	return sb.String()
}

func statusText(snap stats.Snapshot, sessions int) string {
	return fmt.Sprintf("📊 *Bot status* 🟢\n\n"+
		"⏱ *Uptime:* %s\n"+
		"📈 *Requests:* %d\n"+
		"🎯 *Polls sent:* %d\n"+
		"🔧 *API calls:* %d\n"+
		"⚡ *Rate limits:* %d\n"+
		"🛠 *Recovery attempts:* %d\n"+
		"👥 *Active sessions:* %d",
		stats.HumanUptime(snap.Uptime),
		snap.TotalRequests,
		snap.SuccessfulPolls,
		snap.APICalls,
		snap.RateLimitHits,
		snap.RecoveryAttempts,
		sessions,
	)
}

func summaryText(sent int, anonymous bool, skipped []int, failed int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎯 *%d %s quiz polls sent!* ✅", sent, strings.ToLower(quizTypeLabel(anonymous)))
	if len(skipped) > 0 {
		nums := make([]string, len(skipped))
		for i, idx := range skipped {
			nums[i] = strconv.Itoa(idx + 1)
		}
		fmt.Fprintf(&sb, "\n⚠️ Skipped questions: %s (each needs at least 2 options)", strings.Join(nums, ", "))
	}
	if failed > 0 {
		fmt.Fprintf(&sb, "\n⚠️ %d polls could not be delivered", failed)
	}
	return sb.String()
}
