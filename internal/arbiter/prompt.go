package arbiter

import "fmt"

const promptTemplate = `You moderate player nicknames on a Minecraft server.
Classify the nickname into exactly one category:
- BAN: profanity or obscenity, insults, racism or discrimination, extremism, sexual (18+) content, drugs, cheats or hacks, impersonating staff or the project.
- REVIEW: doubtful cases where the meaning depends on context or the evidence is weak.
- OK: clean nickname.

The nickname may hide words with leetspeak, look-alike letters, separators or repeated letters; the normalized form is given to help.

Nickname: %q
Normalized: %q

Answer with JSON only, no markdown and no extra text:
{"decision":"BAN|REVIEW|OK","confidence":0.0-1.0,"reason":"short reason"}`

func buildPrompt(raw, normalized string) string {
	return fmt.Sprintf(promptTemplate, raw, normalized)
}
