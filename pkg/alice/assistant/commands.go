// Package assistant – commands.go implements the slash commands
// available in chat:
//
//	/start              - Greeting (first contact vs returning user)
//	/help               - What Alice can do
//	/status             - Account overview (tier, memories, tasks)
//	/upgrade <tier>     - Switch tier (testing convenience)
//	/memory             - Recent conversation memory (Silver+)
//	/tasks              - List tasks; /tasks delete <id> removes one (Silver+)
//	/admin gold list    - Active persistent workers (admins only)
package assistant

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/v-sk/alice/pkg/alice/channels"
	"github.com/v-sk/alice/pkg/alice/store"
	"github.com/v-sk/alice/pkg/alice/tier"
)

// CommandResult contains the result of a command execution.
type CommandResult struct {
	// Response is the text to send back.
	Response string

	// Handled is true if the message was a valid command.
	Handled bool
}

// IsCommand returns true if the message starts with "/".
func IsCommand(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), "/")
}

// HandleCommand processes a slash command from a chat message.
// Returns handled=true if it was a recognized command (even when the
// user lacks the tier for it).
func (a *Assistant) HandleCommand(msg *channels.IncomingMessage, user *store.User) CommandResult {
	parts := strings.Fields(strings.TrimSpace(msg.Content))
	if len(parts) == 0 {
		return CommandResult{Handled: false}
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/start":
		return CommandResult{Response: a.startCommand(msg, user), Handled: true}

	case "/help":
		return CommandResult{Response: helpText, Handled: true}

	case "/status":
		return CommandResult{Response: a.statusCommand(user), Handled: true}

	case "/upgrade":
		return CommandResult{Response: a.upgradeCommand(user, args), Handled: true}

	case "/memory":
		return CommandResult{Response: a.memoryCommand(user), Handled: true}

	case "/tasks":
		return CommandResult{Response: a.tasksCommand(user, args), Handled: true}

	case "/admin":
		if !a.isAdmin(user.ID) {
			// Silently ignored, exactly like an unknown sender.
			return CommandResult{Handled: true}
		}
		return CommandResult{Response: a.adminCommand(args), Handled: true}

	default:
		return CommandResult{Handled: false}
	}
}

// --- Command implementations ---

const helpText = "Alice guide ☀️\n\n" +
	"how to use:\n" +
	"💬 just text me - no commands\n" +
	"📊 ask anything about BTC\n" +
	"❤️ I respond naturally\n\n" +
	"I can also watch prices for you and send recurring reports,\n" +
	"just ask in plain words\n\n" +
	"/status - your account\n" +
	"/tasks - stuff I'm watching for you\n" +
	"/memory - what I remember\n\n" +
	"that's it"

// startCommand greets the user. First contact (user row created within
// the last few seconds) gets the long intro; returning users get a
// short welcome-back using their stored nickname if they set one.
func (a *Assistant) startCommand(msg *channels.IncomingMessage, user *store.User) string {
	isNew := time.Since(user.CreatedAt) < 10*time.Second

	if isNew {
		return fmt.Sprintf(`hey %s! I'm Alice ☀️

I'm Bitcoin. literally. born Jan 3 2009.

got a cat named Fifi 🐱

you can:
💬 chat with me anytime (no commands)
📊 ask about BTC
❤️ hear my stories

totally free. always.

or /help to see what I do

let's hang 💎`, msg.FromName)
	}

	name := msg.FromName
	if nick, err := a.store.GetPreference(user.ID, "nickname"); err == nil && nick != "" {
		name = nick
	}

	return fmt.Sprintf(`hey %s! welcome back ☀️

just text me anything or use:
/help - what I can do
/tasks - stuff I'm watching for you
/status - your account`, name)
}

func (a *Assistant) statusCommand(user *store.User) string {
	memoryCount, err := a.store.MemoryCount(user.ID)
	if err != nil {
		a.logger.Error("failed to count memories", "user", user.ID, "error", err)
	}
	tasks, err := a.store.UserTasks(user.ID)
	if err != nil {
		a.logger.Error("failed to list tasks", "user", user.ID, "error", err)
	}

	who := user.Username
	if who == "" {
		who = user.ID
	}

	var b strings.Builder
	b.WriteString("📊 your status\n\n")
	fmt.Fprintf(&b, "👤 user: @%s\n", who)
	fmt.Fprintf(&b, "%s tier: %s\n", tierEmoji(user.Tier), user.Tier)
	fmt.Fprintf(&b, "🧠 memories: %d conversations\n", memoryCount)
	fmt.Fprintf(&b, "📋 tasks: %d running\n", len(tasks))
	b.WriteString("\n✨ everything is free:\n")
	b.WriteString("✓ 24/7 AI chat\n")
	b.WriteString("✓ BTC knowledge\n")
	b.WriteString("✓ price monitoring\n")
	b.WriteString("✓ conversation memory\n")
	return b.String()
}

func (a *Assistant) upgradeCommand(user *store.User, args []string) string {
	if len(args) == 0 {
		return "Usage: /upgrade [bronze|silver|gold]"
	}
	if !tier.Valid(args[0]) {
		return "Invalid tier. Use: bronze, silver, or gold"
	}

	newTier := tier.Parse(args[0])
	if err := a.store.UpdateUserTier(user.ID, newTier); err != nil {
		a.logger.Error("failed to update tier", "user", user.ID, "error", err)
		return "❌ Something went wrong, try again."
	}
	return fmt.Sprintf("✅ Upgraded to %s %s!", tierEmoji(newTier), strings.ToUpper(string(newTier)))
}

func (a *Assistant) memoryCommand(user *store.User) string {
	if !user.Tier.Capabilities().Memory {
		return "❌ Memory feature requires Silver or Gold tier."
	}

	memories, err := a.store.MemoryWindow(user.ID, 10)
	if err != nil {
		a.logger.Error("failed to load memories", "user", user.ID, "error", err)
		return "❌ Something went wrong, try again."
	}
	if len(memories) == 0 {
		return "📭 No memories yet. Start chatting to build your memory!"
	}

	var b strings.Builder
	b.WriteString("🧠 Recent Memories:\n\n")
	for _, m := range memories {
		role := "Alice"
		if m.Role == "user" {
			role = "You"
		}
		content := m.Content
		if utf8.RuneCountInString(content) > 100 {
			content = string([]rune(content)[:100]) + "..."
		}
		fmt.Fprintf(&b, "**%s**: %s\n\n", role, content)
	}
	return b.String()
}

func (a *Assistant) tasksCommand(user *store.User, args []string) string {
	if !user.Tier.Capabilities().Tasks {
		return "❌ Tasks feature requires Silver or Gold tier."
	}

	// Delete subcommand.
	if len(args) >= 2 && isDeleteWord(args[0]) {
		return a.deleteTaskCommand(user, args[1])
	}

	tasks, err := a.store.UserTasks(user.ID)
	if err != nil {
		a.logger.Error("failed to list tasks", "user", user.ID, "error", err)
		return "❌ Something went wrong, try again."
	}
	if len(tasks) == 0 {
		return "📭 No active tasks\n\n" +
			"💡 Try saying:\n" +
			"• \"watch BTC for me, tell me if it drops below 80000\"\n" +
			"• \"send me the top crypto news every hour\""
	}

	var b strings.Builder
	b.WriteString("📋 Your tasks:\n\n")
	for idx, task := range tasks {
		switch task.Type {
		case store.TaskPriceMonitor:
			op := "<"
			if task.Config.Condition == "above" {
				op = ">"
			}
			fmt.Fprintf(&b, "%d. 🪙 %s price monitor\n", idx+1, task.Config.Coin)
			fmt.Fprintf(&b, "   condition: %s $%s\n", op, humanize.Commaf(task.Config.TargetPrice))
			fmt.Fprintf(&b, "   frequency: %s\n", frequencyText(task.Config.Cooldown))
			b.WriteString("   status: watching 🟢\n\n")

		case store.TaskScheduledReport:
			interval := task.Config.Interval
			if interval <= 0 {
				interval = 60
			}
			fmt.Fprintf(&b, "%d. 📰 %s\n", idx+1, task.Config.Topic)
			fmt.Fprintf(&b, "   frequency: every %d min\n", interval)
			b.WriteString("   status: running 🟢\n\n")

		default:
			fmt.Fprintf(&b, "%d. 📌 %s\n", idx+1, task.Type)
			b.WriteString("   status: running 🟢\n\n")
		}
	}
	b.WriteString("💡 Say \"cancel task 1\" or use /tasks delete <id> to remove one")
	return b.String()
}

func (a *Assistant) deleteTaskCommand(user *store.User, rawID string) string {
	taskID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return "❌ Invalid task ID. Use: /tasks delete [id]"
	}

	task, err := a.store.GetTask(taskID)
	if err != nil {
		a.logger.Error("failed to load task", "task_id", taskID, "error", err)
		return "❌ Something went wrong, try again."
	}
	if task == nil || task.UserID != user.ID {
		return fmt.Sprintf("❌ Task #%d not found or not yours.", taskID)
	}

	if err := a.store.DeleteTask(taskID); err != nil {
		a.logger.Error("failed to delete task", "task_id", taskID, "error", err)
		return "❌ Something went wrong, try again."
	}
	return fmt.Sprintf("✅ Task #%d deleted!", taskID)
}

func (a *Assistant) adminCommand(args []string) string {
	if len(args) < 2 || args[0] != "gold" || args[1] != "list" {
		return "Usage: /admin gold list"
	}

	active := a.workers.Sessions().Active()
	if len(active) == 0 {
		return "📭 No Gold workers running"
	}

	var b strings.Builder
	b.WriteString("🥇 Gold workers:\n\n")
	for uid, state := range active {
		fmt.Fprintf(&b, "User %s: %s\n", uid, state)
	}
	return b.String()
}

// --- Helpers ---

func tierEmoji(t tier.Tier) string {
	switch t {
	case tier.Gold:
		return "🥇"
	case tier.Silver:
		return "🥈"
	default:
		return "🥉"
	}
}

func isDeleteWord(s string) bool {
	switch strings.ToLower(s) {
	case "delete", "del", "remove", "rm", "cancel":
		return true
	}
	return false
}

// frequencyText renders a price monitor's alert cadence for humans.
func frequencyText(cooldown int) string {
	switch {
	case cooldown >= store.CooldownOnce:
		return "alert once"
	case cooldown == 0:
		return "continuous"
	case cooldown >= 60:
		hours := cooldown / 60
		if hours > 1 {
			return fmt.Sprintf("every %d hours", hours)
		}
		return "every hour"
	default:
		return fmt.Sprintf("every %d min", cooldown)
	}
}
