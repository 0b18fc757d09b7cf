package transcribe

const (
	InaudibleToken = "[inaudible]"

	DefaultSystemPrompt = `You are generating a text transcript for documentation.
You will be given audio file, listen to it carefully ignoring background sounds.
Do not guess words that you cannot hear clearly. Say ` + InaudibleToken + ` for words that you cannot hear clearly.
Do not say transcription or anything else at start or end of the transcription.
Do not say I can't assist with transcribing audio.`

	DefaultUserPrompt = "Transcribe this audio file into text."

	DefaultWhisperPrompt = `You are generating a text transcript for documentation.
You will be given audio file, listen to it carefully ignoring background sounds.
Do not guess words that you cannot hear clearly.`
)
