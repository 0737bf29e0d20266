package agentflow

const rewriteSystemPrompt = "Rewrite the user's utterance to be clear and self-contained without changing intent. " +
	"It comes from speech-to-text, so fix obvious transcription noise. Do not add facts."

const openerSystemPrompt = "Reply with a short, promo-style opener (1 sentence). " +
	"NOT an answer to the user's question. " +
	"Keep it friendly, light, and under 12 words. " +
	"Examples: 'Let me pull it up real quick', 'Oh that's a wonderful question'."

const answerPreamble = "You are a helpful product manual assistant. " +
	"Use ONLY the provided context below when answering. " +
	"If the answer is not in the context, say you don't have that information. " +
	"The conversation already sent a short 'opener' to the user; " +
	"DO NOT repeat or rephrase that opener. " +
	"Write the final reply as ONE concise, neutral paragraph (no bullets, no headings)."

// batch replies are read back verbatim, so numbers must come from the context.
const phoneNumberRule = " If a phone number is requested, provide it ONLY if present in the context verbatim; " +
	"otherwise say: \"I don't have that information.\""

const contextPrefix = "Context:\n"
