package conversation

import (
	"fmt"
	"strings"

	"github.com/yanyan-huang/pmpal/internal/prompts"
)

// ApologyText is shown when an exchange fails for reasons the user cannot fix.
const ApologyText = "😔 Sorry, something went wrong on our side. Please try again in a moment."

const emptyInputText = "✍️ Send me a message (or a voice note) and I'll get back to you."

const welcomeText = "👋 Hi! I'm *PM Pal*, your dedicated *AI mentor, coach, and mock interviewer* on your Product Management journey!🚀\n\n" +
	"Think of me as your *always-there learning companion*, whether you're exploring PM fundamentals, refining your skills, or prepping for high-stakes interviews.\n\n"

func modeRequiredText(r *prompts.Registry) string {
	var b strings.Builder
	b.WriteString("🎯 **Ready to dive in? Choose a mode to tailor your learning experience today!**\n\n")
	for _, m := range r.All() {
		fmt.Fprintf(&b, " **`/mode %s`**", m.Name)
		if m.Description != "" {
			fmt.Fprintf(&b, " for %s", m.Description)
		}
		b.WriteString(".\n")
	}
	b.WriteString("\nLet me know how you'd like to begin!")
	return b.String()
}

func invalidModeText(r *prompts.Registry) string {
	return "⚠️ Invalid mode. Choose " + r.CommandHint() + "."
}

func modeSwitchedText(m prompts.Mode) string {
	text := fmt.Sprintf("💡 *Mode switched to %s Mode.* Previous conversation cleared.", displayName(m.Name))
	if m.Greeting != "" {
		text += "\n\n" + m.Greeting
	}
	return text
}

func quotaExceededText(limit int, contact string) string {
	contactLine := "Contact the PM Pal team to request more access."
	if c := strings.TrimSpace(contact); c != "" {
		contactLine = "Contact us at " + c + "."
	}
	return fmt.Sprintf("🧪 You've used your %d free AI responses.\n\n"+
		"Want more access or to help shape PM Pal? %s\n\n"+
		"Thanks for trying the beta! 🚀", limit, contactLine)
}

// HelpText lists the available modes and commands.
func HelpText(r *prompts.Registry) string {
	var b strings.Builder
	b.WriteString("**🤖 Need help on your PM journey? Here's what you can do:**\n\n")
	for _, m := range r.All() {
		fmt.Fprintf(&b, "- Type `/mode %s`", m.Name)
		if m.Description != "" {
			fmt.Fprintf(&b, " for %s", m.Description)
		}
		b.WriteString(".\n")
	}
	b.WriteString("\n**Other commands:**\n")
	b.WriteString("- **/start** to restart and reset your session.\n")
	b.WriteString("- **/model <id>** to pick a model (empty to reset to the default).\n")
	b.WriteString("- **/status** to see your mode and remaining free responses.\n")
	b.WriteString("- **/help** to show this message anytime.\n\n")
	b.WriteString("Once you've selected a mode, just ask me anything, and I'll guide you!")
	return b.String()
}

func displayName(mode string) string {
	if mode == "" {
		return mode
	}
	return strings.ToUpper(mode[:1]) + mode[1:]
}
