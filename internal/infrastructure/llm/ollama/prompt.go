package ollama

import "fmt"

const followUpHeading = "**Suggested Follow-up Questions:**"

func buildAnswerPrompt(question, contextText string) string {
	return fmt.Sprintf(`You answer questions strictly from the document excerpts below.
Each excerpt starts with its source file and page. Quote or paraphrase the
excerpts, mention the source when you use it, and say plainly when the
excerpts do not contain the answer. Do not use outside knowledge.

Excerpts:
%s

Question:
%s

Write a direct answer first, then key points as a short list.
Finish with the heading %s followed by up to three
follow-up questions, one per line, each answerable from the excerpts.
`, contextText, question, followUpHeading)
}
