package app

import (
	"chatrelay/internal/ai"
	"chatrelay/internal/model"
)

// perMessageOverhead accounts for the role/formatting tokens each message
// costs on top of its content in the chat-completions wire format.
const perMessageOverhead = 4

// estimateTokens approximates the tokenizer cost of content as
// len(runes)/4 + 4. One token per four characters is the common
// approximation for BPE tokenizers; the exact tokenizer belongs to the
// upstream model and is not available locally. The formula is deliberately
// deterministic so truncation is reproducible.
func estimateTokens(content string) int {
	return len([]rune(content))/4 + perMessageOverhead
}

// buildContext selects a token-bounded window of prior turns. recent must be
// ordered newest first; the result is back in chronological order.
//
// The walk starts from the most recent message and accumulates estimates
// until the next older message would overflow the budget, so the window
// always holds the latest turns and never cuts a hole in the middle. A
// message whose estimate alone exceeds the whole budget is skipped rather
// than ending the walk - sending the smaller older turns beats sending
// nothing.
func buildContext(recent []model.Message, budget int) []ai.ChatMessage {
	total := 0
	picked := make([]model.Message, 0, len(recent))
	for _, msg := range recent {
		cost := estimateTokens(msg.Content)
		if cost > budget {
			continue
		}
		if total+cost > budget {
			break
		}
		total += cost
		picked = append(picked, msg)
	}

	out := make([]ai.ChatMessage, 0, len(picked))
	for i := len(picked) - 1; i >= 0; i-- {
		role := picked[i].Role
		if role == "" {
			role = model.RoleUser
		}
		out = append(out, ai.ChatMessage{Role: role, Content: picked[i].Content})
	}
	return out
}
